// Package matsys is the core of a material system: a push-buffer engine
// that records device calls and replays them on a worker goroutine, and a
// shader combo cache that loads precompiled shader microcode.
//
// # Overview
//
// A [System] ties the parts together on one hal device:
//
//	sys, err := matsys.New(halDevice, os.DirFS("game"), matsys.WithAsync(true))
//	if err != nil {
//	    return err
//	}
//	defer sys.Close()
//	if err := sys.Start(ctx); err != nil {
//	    return err
//	}
//
//	h, _ := sys.FindShader("water_ps30", gputypes.ShaderStageFragment, static)
//	dev := sys.Device()
//	dev.BeginScene()
//	_ = sys.BindShader(h, dynamic)
//	dev.DrawPrimitive(gputypes.PrimitiveTopologyTriangleList, 0, 2)
//	dev.EndScene()
//	sys.EndFrame()
//
// # Packages
//
//   - pushbuf: push buffers, the work queue, the command interpreter and
//     the async device
//   - vcs: the shader cache file format (versions 4, 5 and 6)
//   - shadercache: combo lookups, loading, dynamic compilation, hot reload
//   - backend/halgpu: the device adapter over gogpu/wgpu hal
//   - metrics: a Prometheus collector over [System.Stats]
//
// # Configuration
//
// [Config] is the file form of the options. [LoadConfig] reads TOML or
// YAML and [Config.Options] converts the result.
//
// # Logging
//
// matsys is silent by default. [SetLogger] enables log/slog output for
// the package and every sub-package.
package matsys
