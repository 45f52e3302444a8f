// Package pushbuf implements the asynchronous push-buffer execution engine.
//
// A producer goroutine records device commands into fixed-size push buffers
// (arrays of 32-bit words). Filled buffers are handed to a single worker
// goroutine through a single-producer/single-consumer ring, and the worker
// replays them against a [Device]. The producer keeps recording while the
// worker submits, so device calls never stall command generation.
//
// # Architecture
//
// The package is built from four pieces:
//   - [RememberedPointers]: buffer handle to device mapping side table used
//     to pair deferred lock and unlock commands.
//   - [Interpreter]: table-driven decoder that executes a word stream.
//   - [WorkQueue]: lock-free SPSC ring of buffer indices.
//   - [AsyncDevice]: the producer facade that owns the buffer pool, the
//     queue and the worker goroutine.
//
// # Wire format
//
// Each command is an [Opcode] word followed by a fixed or count-prefixed
// number of argument words. [OpEnd] terminates a buffer. The format is
// in-process only and never persisted.
//
// # Example
//
//	ad := pushbuf.NewAsyncDevice(dev, pushbuf.WithBufferCount(32))
//	if err := ad.Enable(ctx); err != nil {
//		return err
//	}
//	defer ad.Disable()
//
//	ad.SetRenderState(7, 1)
//	ad.DrawPrimitive(gputypes.PrimitiveTopologyTriangleList, 0, 2)
//	ad.Synchronize()
package pushbuf
