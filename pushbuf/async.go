package pushbuf

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/gogpu/gputypes"
)

// ErrWorkerStopped is reported when the worker goroutine exited because
// its context was cancelled while async mode was still enabled.
var ErrWorkerStopped = errors.New("pushbuf: worker stopped")

// Stats is a snapshot of push-buffer engine counters.
type Stats struct {
	Submitted       uint64 // Buffers handed to the queue
	ForcedSubmits   uint64 // Submits forced by pool exhaustion
	Executed        uint64 // Commands replayed
	PushBufferStage uint64 // Async locks staged in a spare push buffer
	HeapStage       uint64 // Async locks staged on the heap
	Queued          int    // Buffers waiting for the worker
}

// AsyncDevice records device calls into push buffers and replays them on
// a dedicated worker goroutine.
//
// All methods except Stats must be called from the producer goroutine.
// While async mode is disabled every call is replayed immediately.
type AsyncDevice struct {
	dev  Device
	opts options

	pool   []*PushBuffer
	queue  *WorkQueue
	heap   heapArena
	interp *Interpreter

	// Producer state.
	cur     *PushBuffer
	cursor  int
	scratch []uint32

	enabled    atomic.Bool
	cancel     context.CancelFunc
	workerDone chan struct{}

	lockedBuffers atomic.Int32

	submitted     atomic.Uint64
	forcedSubmits atomic.Uint64
	pbStaged      atomic.Uint64
	heapStaged    atomic.Uint64
}

var _ Device = (*AsyncDevice)(nil)

// NewAsyncDevice wraps dev. Async mode starts disabled; call Enable.
func NewAsyncDevice(dev Device, opts ...Option) *AsyncDevice {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.queueCapacity < o.bufferCount && (o.buffered || o.queueCapacity <= 0) {
		o.queueCapacity = o.bufferCount
	}

	a := &AsyncDevice{
		dev:   dev,
		opts:  o,
		queue: NewWorkQueue(o.queueCapacity),
	}
	a.pool = make([]*PushBuffer, o.bufferCount)
	for i := range a.pool {
		a.pool[i] = newPushBuffer(i, o.bufferWords)
	}
	a.interp = NewInterpreter(dev, NewRememberedPointers(o.rememberedCapacity), a)
	return a
}

// Enable turns on async mode and, unless buffered calls were requested,
// starts the worker goroutine. Cancelling ctx stops the worker after it
// drains the queue.
func (a *AsyncDevice) Enable(ctx context.Context) error {
	if a.enabled.Load() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pushbuf: enable: %w", err)
	}
	if !a.opts.buffered {
		wctx, cancel := context.WithCancel(ctx)
		a.cancel = cancel
		a.workerDone = make(chan struct{})
		go a.run(wctx, a.workerDone)
	}
	a.enabled.Store(true)
	slogger().Info("pushbuf: async mode enabled",
		"buffers", len(a.pool), "words", a.opts.bufferWords, "buffered", a.opts.buffered)
	return nil
}

// Disable drains all pending work, stops the worker and returns to
// immediate replay.
func (a *AsyncDevice) Disable() {
	if !a.enabled.Load() {
		return
	}
	a.Synchronize()
	if a.cancel != nil {
		a.cancel()
		<-a.workerDone
		a.cancel = nil
	}
	if a.cur != nil {
		a.cur.setState(StateAvailable)
		a.cur = nil
		a.cursor = 0
	}
	a.enabled.Store(false)
	slogger().Info("pushbuf: async mode disabled", "submitted", a.submitted.Load())
}

// IsEnabled reports whether commands are being recorded.
func (a *AsyncDevice) IsEnabled() bool { return a.enabled.Load() }

// IsBuffered reports whether the device runs without a worker, replaying
// on ExecuteAllWork.
func (a *AsyncDevice) IsBuffered() bool { return a.opts.buffered }

// Pool returns the push-buffer pool. Intended for inspection.
func (a *AsyncDevice) Pool() []*PushBuffer { return a.pool }

// Queue returns the work queue. Intended for inspection.
func (a *AsyncDevice) Queue() *WorkQueue { return a.queue }

// Interpreter returns the interpreter that replays buffers.
func (a *AsyncDevice) Interpreter() *Interpreter { return a.interp }

// Stats returns a snapshot of the engine counters. Safe for concurrent use.
func (a *AsyncDevice) Stats() Stats {
	return Stats{
		Submitted:       a.submitted.Load(),
		ForcedSubmits:   a.forcedSubmits.Load(),
		Executed:        a.interp.Executed(),
		PushBufferStage: a.pbStaged.Load(),
		HeapStage:       a.heapStaged.Load(),
		Queued:          a.queue.Len(),
	}
}

// --------------------------------------------------------------------------
// Buffer management
// --------------------------------------------------------------------------

// GetPushBuffer returns the buffer being filled, acquiring a free one if
// the producer holds none.
func (a *AsyncDevice) GetPushBuffer() *PushBuffer {
	if a.cur == nil {
		a.cur = a.FindFreePushBuffer(StateBeingFilled)
		a.cursor = 0
	}
	return a.cur
}

// FindFreePushBuffer claims an available buffer and moves it to newState.
//
// When the pool is exhausted the current buffer is submitted so the
// worker can make progress, then the producer yields and scans again.
func (a *AsyncDevice) FindFreePushBuffer(newState BufferState) *PushBuffer {
	for {
		for _, b := range a.pool {
			if b.transition(StateAvailable, newState) {
				return b
			}
		}
		if a.cur != nil && a.cursor > 0 {
			a.forcedSubmits.Add(1)
			a.submitCurrent()
		}
		if a.opts.buffered || a.workerStopped() {
			a.drain()
		}
		runtime.Gosched()
	}
}

// AllocatePushBufferSpace reserves n words in the current buffer,
// submitting it and moving to a fresh one when it cannot hold n words
// plus the terminating OpEnd.
func (a *AsyncDevice) AllocatePushBufferSpace(n int) []uint32 {
	if n+1 > a.opts.bufferWords {
		panic(fmt.Sprintf("pushbuf: command of %d words exceeds push buffer size %d", n, a.opts.bufferWords))
	}
	a.GetPushBuffer()
	if a.cursor+n+1 > len(a.cur.words) {
		a.SubmitPushBufferAndGetANewOne()
	}
	dst := a.cur.words[a.cursor : a.cursor+n]
	a.cursor += n
	return dst
}

// SubmitPushBufferAndGetANewOne hands the current buffer to the worker
// and acquires a fresh one.
func (a *AsyncDevice) SubmitPushBufferAndGetANewOne() *PushBuffer {
	a.submitCurrent()
	return a.GetPushBuffer()
}

// SubmitIfNotBusy submits the current buffer when the worker is idle,
// trading batch size for latency.
func (a *AsyncDevice) SubmitIfNotBusy() {
	if !a.enabled.Load() || a.opts.buffered {
		return
	}
	if a.cursor > 0 && a.queue.IsEmpty() {
		a.submitCurrent()
	}
}

// Synchronize blocks until every recorded command has been replayed.
func (a *AsyncDevice) Synchronize() {
	if !a.enabled.Load() {
		return
	}
	a.submitCurrent()
	if a.opts.buffered {
		a.drain()
		return
	}
	for !a.queue.IsEmpty() {
		if a.workerStopped() {
			a.drain()
			return
		}
		runtime.Gosched()
	}
}

// ExecuteAllWork replays every submitted buffer on the calling goroutine.
// Used in buffered-calls mode at frame end; with a live worker it is
// equivalent to Synchronize.
func (a *AsyncDevice) ExecuteAllWork() {
	if !a.enabled.Load() {
		return
	}
	if !a.opts.buffered && !a.workerStopped() {
		a.Synchronize()
		return
	}
	a.submitCurrent()
	a.drain()
}

// WorkerErr returns ErrWorkerStopped if the worker exited while async mode
// is still enabled.
func (a *AsyncDevice) WorkerErr() error {
	if a.enabled.Load() && !a.opts.buffered && a.workerStopped() {
		return ErrWorkerStopped
	}
	return nil
}

func (a *AsyncDevice) submitCurrent() {
	if a.cur == nil || a.cursor == 0 {
		return
	}
	b := a.cur
	b.words[a.cursor] = uint32(OpEnd)
	b.setState(StateSubmitted)
	a.cur = nil
	a.cursor = 0
	a.submitted.Add(1)

	if a.opts.buffered {
		if err := a.queue.TryEnqueue(b.index); err != nil {
			panic(err)
		}
		return
	}
	for a.queue.TryEnqueue(b.index) != nil {
		if a.workerStopped() {
			a.drain()
		}
		runtime.Gosched()
	}
	if a.workerStopped() {
		a.drain()
	}
}

// drain replays queued buffers on the producer. Only valid when no worker
// is consuming the queue.
func (a *AsyncDevice) drain() {
	for idx := a.queue.Peek(); idx != NoBuffer; idx = a.queue.Peek() {
		a.executeBuffer(idx)
	}
}

func (a *AsyncDevice) workerStopped() bool {
	if a.workerDone == nil {
		return false
	}
	select {
	case <-a.workerDone:
		return true
	default:
		return false
	}
}

// --------------------------------------------------------------------------
// Recording
// --------------------------------------------------------------------------

// Push records cmd, or replays it at once when async mode is off.
func (a *AsyncDevice) Push(cmd Command) {
	a.scratch = cmd.appendWords(a.scratch[:0])
	if !a.enabled.Load() {
		a.scratch = append(a.scratch, uint32(OpEnd))
		if _, err := a.interp.Execute(a.scratch); err != nil {
			panic(err)
		}
		return
	}
	copy(a.AllocatePushBufferSpace(len(a.scratch)), a.scratch)
}

// SetRenderState implements Device.
func (a *AsyncDevice) SetRenderState(state, value uint32) {
	a.Push(SetRenderStateCommand{State: state, Value: value})
}

// SetTexture implements Device.
func (a *AsyncDevice) SetTexture(stage uint32, texture Handle) {
	a.Push(SetTextureCommand{Stage: stage, Texture: texture})
}

// DrawPrimitive implements Device. It submits early when the worker idles.
func (a *AsyncDevice) DrawPrimitive(topology gputypes.PrimitiveTopology, startVertex, primCount uint32) {
	a.Push(DrawPrimCommand{Topology: topology, StartVertex: startVertex, PrimCount: primCount})
	a.SubmitIfNotBusy()
}

// DrawPrimitiveUPResize implements Device.
func (a *AsyncDevice) DrawPrimitiveUPResize() {
	a.Push(DrawPrimUPResizeCommand{})
}

// DrawIndexedPrimitive implements Device. It submits early when the
// worker idles.
func (a *AsyncDevice) DrawIndexedPrimitive(topology gputypes.PrimitiveTopology, baseVertex int32, minIndex, numVertices, startIndex, primCount uint32) {
	a.Push(DrawIndexedPrimCommand{
		Topology:    topology,
		BaseVertex:  baseVertex,
		MinIndex:    minIndex,
		NumVertices: numVertices,
		StartIndex:  startIndex,
		PrimCount:   primCount,
	})
	a.SubmitIfNotBusy()
}

// SetVertexShader implements Device.
func (a *AsyncDevice) SetVertexShader(shader Handle) {
	a.Push(SetShaderCommand{Stage: gputypes.ShaderStageVertex, Shader: shader})
}

// SetPixelShader implements Device.
func (a *AsyncDevice) SetPixelShader(shader Handle) {
	a.Push(SetShaderCommand{Stage: gputypes.ShaderStageFragment, Shader: shader})
}

// SetShaderConstants implements Device.
func (a *AsyncDevice) SetShaderConstants(c ShaderConstants) { a.Push(c) }

// SetMaxUsedVertexShaderConstantsHint implements Device.
func (a *AsyncDevice) SetMaxUsedVertexShaderConstantsHint(count uint32) {
	a.Push(SetMaxUsedVertexShaderConstantsHintCommand{Count: count})
}

// SetRenderTarget implements Device.
func (a *AsyncDevice) SetRenderTarget(index uint32, surface Handle) {
	a.Push(SetRenderTargetCommand{Index: index, Surface: surface})
}

// SetDepthStencilSurface implements Device.
func (a *AsyncDevice) SetDepthStencilSurface(surface Handle) {
	a.Push(SetDepthStencilSurfaceCommand{Surface: surface})
}

// SetStreamSource implements Device.
func (a *AsyncDevice) SetStreamSource(stream uint32, buffer Handle, offset, stride uint32) {
	a.Push(SetStreamSourceCommand{Stream: stream, Buffer: buffer, Offset: offset, Stride: stride})
}

// SetIndices implements Device.
func (a *AsyncDevice) SetIndices(buffer Handle, format gputypes.IndexFormat) {
	a.Push(SetIndicesCommand{Buffer: buffer, Format: format})
}

// SetSamplerState implements Device.
func (a *AsyncDevice) SetSamplerState(stage, state, value uint32) {
	a.Push(SetSamplerStateCommand{Stage: stage, State: state, Value: value})
}

// SetSamplerStates records all address and filter states of a stage.
func (a *AsyncDevice) SetSamplerStates(c SetSamplerStatesCommand) { a.Push(c) }

// SetViewport implements Device.
func (a *AsyncDevice) SetViewport(vp Viewport) { a.Push(SetViewportCommand{Viewport: vp}) }

// Clear implements Device.
func (a *AsyncDevice) Clear(rects []Rect, flags, color uint32, z float32, stencil uint32) {
	a.Push(ClearCommand{Rects: rects, Flags: flags, Color: color, Z: z, Stencil: stencil})
}

// SetVertexDeclaration implements Device.
func (a *AsyncDevice) SetVertexDeclaration(decl Handle) {
	a.Push(SetVertexDeclarationCommand{Decl: decl})
}

// BeginScene implements Device.
func (a *AsyncDevice) BeginScene() { a.Push(SceneCommand{Begin: true}) }

// EndScene implements Device.
func (a *AsyncDevice) EndScene() { a.Push(SceneCommand{}) }

// Present implements Device. The frame is submitted right away.
func (a *AsyncDevice) Present(src, dst *Rect, window Handle) {
	a.Push(PresentCommand{Src: src, Dst: dst, Window: window})
	if a.enabled.Load() {
		a.submitCurrent()
	}
}

// SetClipPlane implements Device.
func (a *AsyncDevice) SetClipPlane(index uint32, plane [4]float32) {
	a.Push(SetClipPlaneCommand{Index: index, Plane: plane})
}

// StretchRect implements Device.
func (a *AsyncDevice) StretchRect(src Handle, srcRect *Rect, dst Handle, dstRect *Rect, filter uint32) {
	a.Push(StretchRectCommand{Src: src, SrcRect: srcRect, Dst: dst, DstRect: dstRect, Filter: filter})
}

// SetScissorRect implements Device.
func (a *AsyncDevice) SetScissorRect(r Rect) { a.Push(SetScissorRectCommand{Rect: r}) }

// AcquireThreadOwnership implements Device.
func (a *AsyncDevice) AcquireThreadOwnership() { a.Push(ThreadOwnershipCommand{Acquire: true}) }

// ReleaseThreadOwnership implements Device.
func (a *AsyncDevice) ReleaseThreadOwnership() { a.Push(ThreadOwnershipCommand{}) }

// --------------------------------------------------------------------------
// Locks
// --------------------------------------------------------------------------

// Lock implements Device with a synchronous lock: pending work is drained
// and the device is locked on the calling goroutine.
func (a *AsyncDevice) Lock(kind BufferKind, buffer Handle, offset, size, flags uint32) ([]byte, error) {
	a.Synchronize()
	return a.dev.Lock(kind, buffer, offset, size, flags)
}

// Unlock implements Device. The unlock is recorded like any other command.
func (a *AsyncDevice) Unlock(kind BufferKind, buffer Handle, actualSize uint32) error {
	a.Push(UnlockCommand{Kind: kind, Buffer: buffer, ActualSize: actualSize})
	return nil
}

// AsyncLock returns memory the caller may fill immediately without
// waiting for the device. The real lock is recorded and performed later by
// the worker; AsyncUnlock with the returned context copies the data over.
//
// Sizes up to one push buffer are staged in a spare pool buffer when one
// is free, larger sizes on the heap.
func (a *AsyncDevice) AsyncLock(kind BufferKind, buffer Handle, offset, size, flags uint32) ([]byte, LockedBufferContext, error) {
	if !a.enabled.Load() {
		mem, err := a.dev.Lock(kind, buffer, offset, size, flags)
		return mem, LockedBufferContext{Source: StagingDirect, Size: size}, err
	}
	ctx, mem := a.allocStaging(size)
	a.Push(AsyncLockCommand{Kind: kind, Buffer: buffer, Offset: offset, Size: size, Flags: flags})
	return mem, ctx, nil
}

// AsyncUnlock records the unlock paired with an AsyncLock. unlockSize is
// the number of bytes written; zero means the whole locked range.
func (a *AsyncDevice) AsyncUnlock(kind BufferKind, buffer Handle, ctx LockedBufferContext, unlockSize uint32) error {
	if ctx.Source == StagingDirect {
		if !a.enabled.Load() {
			return a.dev.Unlock(kind, buffer, unlockSize)
		}
		a.Push(UnlockCommand{Kind: kind, Buffer: buffer, ActualSize: unlockSize})
		return nil
	}
	a.Push(AsyncUnlockCommand{Kind: kind, Buffer: buffer, Context: ctx, UnlockSize: unlockSize})
	return nil
}

// allocStaging picks staging memory for an async lock. A pool buffer is
// only taken while at least two buffers stay free for recording.
func (a *AsyncDevice) allocStaging(size uint32) (LockedBufferContext, []byte) {
	if size == 0 {
		return LockedBufferContext{Source: StagingNone}, nil
	}
	if int(size) <= a.opts.bufferWords*4 && int(a.lockedBuffers.Load())+2 < len(a.pool) {
		for _, b := range a.pool {
			if b.transition(StateAvailable, StateLockedData) {
				a.lockedBuffers.Add(1)
				a.pbStaged.Add(1)
				return LockedBufferContext{
					Source: StagingPushBuffer,
					Slot:   uint32(b.index), // #nosec G115 -- pool index
					Size:   size,
				}, b.bytes()[:size]
			}
		}
	}
	id, mem := a.heap.alloc(size)
	a.heapStaged.Add(1)
	return LockedBufferContext{Source: StagingHeap, Slot: id, Size: size}, mem
}

// StagedBytes implements Staging.
func (a *AsyncDevice) StagedBytes(ctx LockedBufferContext) []byte {
	switch ctx.Source {
	case StagingPushBuffer:
		return a.pool[ctx.Slot].bytes()[:ctx.Size]
	case StagingHeap:
		return a.heap.get(ctx.Slot)
	default:
		return nil
	}
}

// ReleaseStaging implements Staging.
func (a *AsyncDevice) ReleaseStaging(ctx LockedBufferContext) {
	switch ctx.Source {
	case StagingPushBuffer:
		a.lockedBuffers.Add(-1)
		a.pool[ctx.Slot].setState(StateAvailable)
	case StagingHeap:
		a.heap.free(ctx.Slot)
	}
}
