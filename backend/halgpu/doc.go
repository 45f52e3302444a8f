// Package halgpu adapts a wgpu hal device to the push-buffer device
// interface and to the shader cache's factory interface.
//
// # Handles
//
// Buffers and shader modules share one handle space. Handle 0 is never
// issued, so [pushbuf.NoHandle] and [shadercache.InvalidShader] both mean
// "no object" and a shader id converts to a device handle directly:
//
//	id, _ := cache.Bind(h, dyn)
//	async.SetVertexShader(pushbuf.Handle(id))
//
// # Locking
//
// Lock maps the requested range with hal.Device.MapBuffer and returns the
// mapped memory as a byte slice. The slice is valid until the matching
// Unlock. A buffer can hold one lock at a time.
//
// # Goroutines
//
// Device methods replayed by the push-buffer worker run on that worker.
// Resource creation and Snapshot may run on any goroutine.
package halgpu
