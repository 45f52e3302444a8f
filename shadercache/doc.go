// Package shadercache resolves (shader name, static combo, dynamic combo)
// to device shader objects loaded from combo cache files.
//
// A Cache is an explicit context object: it owns the open file
// directories, the per-combo lookup table, the creation counters and the
// fallback shaders. Use one Cache per device.
//
// # Files
//
// Combo cache files are searched as shaders/vsh/<name>.vcs (vertex) or
// shaders/psh/<name>.vcs (pixel) first, which marks the lookup IsAsm, and
// then as shaders/fxc/<name>.vcs. Versions 4, 5 and 6 are accepted; see
// package vcs for the layout.
//
// # Loading
//
// FindOrCreate registers a lookup for one static combo and loads its
// block of dynamic combos. With a QueuedLoader configured the read runs
// on the loader's goroutines and only decodes there; the device shaders
// are created by ProcessCompletedLoads on the calling goroutine. With
// create-on-demand, shaders are created on first Bind and the microcode
// is retained until FlushShaders.
//
// # Failures
//
// A missing file, an unsupported version, a missing static combo or a
// failed shader creation set the sticky FailedLoad flag. Binding a
// failed lookup warns once and returns the fallback shader. When dynamic
// compilation is enabled, a missing file or a source CRC mismatch
// switches the lookup to the Compiler instead, which is retried with a
// pause between attempts.
//
// All Cache methods except Stats must be called from one goroutine.
package shadercache
