package halgpu

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/matsys/pushbuf"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

var _ GPU = (*noop.Device)(nil)

// createNoopDevice opens the noop hal backend.
func createNoopDevice(t *testing.T) hal.Device {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device
}

// countingGPU counts hal calls and can fail buffer creation.
type countingGPU struct {
	GPU
	failCreate bool
	destroyed  int
	unmapped   int
	modules    int
}

func (g *countingGPU) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	if g.failCreate {
		return nil, errors.New("out of memory")
	}
	return g.GPU.CreateBuffer(desc)
}

func (g *countingGPU) DestroyBuffer(b hal.Buffer) {
	g.destroyed++
	g.GPU.DestroyBuffer(b)
}

func (g *countingGPU) UnmapBuffer(b hal.Buffer) error {
	g.unmapped++
	return g.GPU.UnmapBuffer(b)
}

func (g *countingGPU) DestroyShaderModule(m hal.ShaderModule) {
	g.modules++
	g.GPU.DestroyShaderModule(m)
}

func newTestDevice(t *testing.T) (*Device, *countingGPU) {
	t.Helper()
	gpu := &countingGPU{GPU: createNoopDevice(t)}
	return NewDevice(gpu), gpu
}

func mustBuffer(t *testing.T, d *Device, kind pushbuf.BufferKind, size uint64) pushbuf.Handle {
	t.Helper()
	h, err := d.CreateBuffer(kind, size, "test")
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	return h
}

// ===== Buffers =====

func TestDevice_CreateBuffer(t *testing.T) {
	d, gpu := newTestDevice(t)

	vb := mustBuffer(t, d, pushbuf.VertexBuffer, 64)
	ib := mustBuffer(t, d, pushbuf.IndexBuffer, 32)
	if vb == pushbuf.NoHandle || ib == pushbuf.NoHandle || vb == ib {
		t.Fatalf("handles = %d, %d, want distinct non-zero", vb, ib)
	}
	if size, err := d.BufferSize(ib); err != nil || size != 32 {
		t.Errorf("BufferSize() = %d, %v, want 32, nil", size, err)
	}
	if _, err := d.CreateBuffer(pushbuf.VertexBuffer, 0, "empty"); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("CreateBuffer(0) error = %v, want %v", err, ErrInvalidSize)
	}

	gpu.failCreate = true
	if _, err := d.CreateBuffer(pushbuf.VertexBuffer, 8, "oom"); err == nil {
		t.Error("CreateBuffer() with failing gpu succeeded")
	}

	if err := d.DestroyBuffer(vb); err != nil {
		t.Fatalf("DestroyBuffer() error = %v", err)
	}
	if err := d.DestroyBuffer(vb); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("second DestroyBuffer() error = %v, want %v", err, ErrUnknownHandle)
	}
	if gpu.destroyed != 1 {
		t.Errorf("hal buffers destroyed = %d, want 1", gpu.destroyed)
	}
	if s := d.Snapshot(); s.Buffers != 1 {
		t.Errorf("live buffers = %d, want 1", s.Buffers)
	}
}

func TestDevice_LockWritesBuffer(t *testing.T) {
	d, gpu := newTestDevice(t)
	h := mustBuffer(t, d, pushbuf.VertexBuffer, 64)

	mem, err := d.Lock(pushbuf.VertexBuffer, h, 8, 16, 0)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if len(mem) != 16 {
		t.Fatalf("Lock() returned %d bytes, want 16", len(mem))
	}
	for i := range mem {
		mem[i] = byte(i + 1)
	}
	if err := d.Unlock(pushbuf.VertexBuffer, h, 0); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if gpu.unmapped != 1 {
		t.Errorf("unmaps = %d, want 1", gpu.unmapped)
	}

	// Zero size maps the rest of the buffer.
	all, err := d.Lock(pushbuf.VertexBuffer, h, 0, 0, 0)
	if err != nil {
		t.Fatalf("Lock(whole) error = %v", err)
	}
	if len(all) != 64 {
		t.Fatalf("Lock(whole) returned %d bytes, want 64", len(all))
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	if !bytes.Equal(all[8:24], want) {
		t.Errorf("buffer[8:24] = %v, want %v", all[8:24], want)
	}
	if err := d.Unlock(pushbuf.VertexBuffer, h, 0); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	c := d.Snapshot().Counters
	if c.Locks != 2 || c.Unlocks != 2 {
		t.Errorf("locks/unlocks = %d/%d, want 2/2", c.Locks, c.Unlocks)
	}
}

func TestDevice_LockErrors(t *testing.T) {
	d, _ := newTestDevice(t)
	vb := mustBuffer(t, d, pushbuf.VertexBuffer, 32)
	sh, err := d.CreateShader(gputypes.ShaderStageVertex, testSPIRVWords(), "vs")
	if err != nil {
		t.Fatalf("CreateShader() error = %v", err)
	}

	tests := []struct {
		name   string
		kind   pushbuf.BufferKind
		handle pushbuf.Handle
		offset uint32
		size   uint32
		want   error
	}{
		{"unknown handle", pushbuf.VertexBuffer, 999, 0, 4, ErrUnknownHandle},
		{"shader handle", pushbuf.VertexBuffer, sh, 0, 4, ErrWrongResource},
		{"kind mismatch", pushbuf.IndexBuffer, vb, 0, 4, ErrWrongResource},
		{"offset past end", pushbuf.VertexBuffer, vb, 40, 0, ErrLockRange},
		{"range past end", pushbuf.VertexBuffer, vb, 16, 17, ErrLockRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.Lock(tt.kind, tt.handle, tt.offset, tt.size, 0); !errors.Is(err, tt.want) {
				t.Errorf("Lock() error = %v, want %v", err, tt.want)
			}
		})
	}

	if err := d.Unlock(pushbuf.VertexBuffer, vb, 0); !errors.Is(err, ErrNotLocked) {
		t.Errorf("Unlock() unlocked buffer error = %v, want %v", err, ErrNotLocked)
	}
	if _, err := d.Lock(pushbuf.VertexBuffer, vb, 0, 4, 0); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if _, err := d.Lock(pushbuf.VertexBuffer, vb, 0, 4, 0); !errors.Is(err, ErrAlreadyLocked) {
		t.Errorf("second Lock() error = %v, want %v", err, ErrAlreadyLocked)
	}
}

func TestDevice_DestroyLockedBuffer(t *testing.T) {
	d, gpu := newTestDevice(t)
	h := mustBuffer(t, d, pushbuf.IndexBuffer, 16)
	if _, err := d.Lock(pushbuf.IndexBuffer, h, 0, 16, 0); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if err := d.DestroyBuffer(h); err != nil {
		t.Fatalf("DestroyBuffer() error = %v", err)
	}
	if gpu.unmapped != 1 || gpu.destroyed != 1 {
		t.Errorf("unmapped/destroyed = %d/%d, want 1/1", gpu.unmapped, gpu.destroyed)
	}
}

// ===== State tracking =====

func TestDevice_TracksState(t *testing.T) {
	d, _ := newTestDevice(t)
	vs, _ := d.CreateShader(gputypes.ShaderStageVertex, testSPIRVWords(), "vs")
	ps, _ := d.CreateShader(gputypes.ShaderStageFragment, testSPIRVWords(), "ps")
	vb := mustBuffer(t, d, pushbuf.VertexBuffer, 64)
	ib := mustBuffer(t, d, pushbuf.IndexBuffer, 64)

	d.AcquireThreadOwnership()
	d.SetRenderState(7, 1)
	d.SetTexture(0, 42)
	d.SetSamplerState(0, 5, 2)
	d.SetVertexShader(vs)
	d.SetPixelShader(ps)
	d.SetStreamSource(0, vb, 16, 32)
	d.SetIndices(ib, gputypes.IndexFormatUint16)
	d.SetViewport(pushbuf.Viewport{Width: 640, Height: 480, MaxZ: 1})
	d.SetScissorRect(pushbuf.Rect{Right: 10, Bottom: 20})
	d.SetClipPlane(1, [4]float32{0, 1, 0, -2})
	d.SetMaxUsedVertexShaderConstantsHint(96)
	d.SetRenderTarget(0, 3)
	d.SetDepthStencilSurface(4)
	d.SetVertexDeclaration(5)
	d.BeginScene()
	d.Clear(nil, 1, 0xff000000, 1, 0)
	d.DrawPrimitive(gputypes.PrimitiveTopologyTriangleList, 0, 2)
	d.DrawIndexedPrimitive(gputypes.PrimitiveTopologyTriangleList, 0, 0, 4, 0, 2)
	d.EndScene()
	d.Present(nil, nil, pushbuf.NoHandle)

	s := d.Snapshot()
	if s.VertexShader != vs || s.PixelShader != ps {
		t.Errorf("shaders = %d/%d, want %d/%d", s.VertexShader, s.PixelShader, vs, ps)
	}
	if got := s.Streams[0]; got != (StreamBinding{Buffer: vb, Offset: 16, Stride: 32}) {
		t.Errorf("stream 0 = %+v", got)
	}
	if s.Indices != ib || s.IndexFormat != gputypes.IndexFormatUint16 {
		t.Errorf("indices = %d/%v, want %d/%v", s.Indices, s.IndexFormat, ib, gputypes.IndexFormatUint16)
	}
	if s.RenderStates[7] != 1 || s.Textures[0] != 42 || s.Samplers[[2]uint32{0, 5}] != 2 {
		t.Errorf("render/texture/sampler state = %v %v %v", s.RenderStates, s.Textures, s.Samplers)
	}
	if s.Viewport.Width != 640 || s.Scissor.Bottom != 20 || s.ClipPlanes[1][3] != -2 {
		t.Errorf("viewport/scissor/clip = %+v %+v %v", s.Viewport, s.Scissor, s.ClipPlanes)
	}
	if s.RenderTargets[0] != 3 || s.DepthStencil != 4 || s.VertexDecl != 5 || s.MaxVSConstants != 96 {
		t.Errorf("targets/decl/hint = %v %d %d %d", s.RenderTargets, s.DepthStencil, s.VertexDecl, s.MaxVSConstants)
	}
	if s.InScene || !s.Owned {
		t.Errorf("InScene/Owned = %v/%v, want false/true", s.InScene, s.Owned)
	}
	want := Counters{Draws: 1, IndexedDraws: 1, Primitives: 4, Clears: 1, Presents: 1, Scenes: 1}
	if s.Counters != want {
		t.Errorf("Counters = %+v, want %+v", s.Counters, want)
	}

	d.ReleaseThreadOwnership()
	if d.Snapshot().Owned {
		t.Error("Owned after ReleaseThreadOwnership")
	}
}

func TestDevice_InvalidShaderBinds(t *testing.T) {
	d, _ := newTestDevice(t)
	ps, _ := d.CreateShader(gputypes.ShaderStageFragment, testSPIRVWords(), "ps")
	vb := mustBuffer(t, d, pushbuf.VertexBuffer, 8)

	// Wrong stage, not a shader, unknown. Unbinding is always valid.
	d.SetVertexShader(ps)
	d.SetPixelShader(vb)
	d.SetPixelShader(777)
	d.SetVertexShader(pushbuf.NoHandle)

	s := d.Snapshot()
	if s.Counters.InvalidBinds != 3 {
		t.Errorf("InvalidBinds = %d, want 3", s.Counters.InvalidBinds)
	}
	if s.PixelShader != 777 {
		t.Errorf("PixelShader = %d, want 777", s.PixelShader)
	}
}

func TestDevice_ShaderConstants(t *testing.T) {
	d, _ := newTestDevice(t)
	d.SetShaderConstants(pushbuf.ShaderConstants{
		Stage:  gputypes.ShaderStageVertex,
		Kind:   pushbuf.FloatConstants,
		Start:  2,
		Values: []uint32{1, 2, 3, 4},
	})
	d.SetShaderConstants(pushbuf.ShaderConstants{
		Stage:  gputypes.ShaderStageFragment,
		Kind:   pushbuf.BoolConstants,
		Start:  3,
		Values: []uint32{1},
	})

	vs := d.Constants(gputypes.ShaderStageVertex, pushbuf.FloatConstants)
	if len(vs) != 12 || !slices.Equal(vs[8:], []uint32{1, 2, 3, 4}) {
		t.Errorf("vertex float constants = %v", vs)
	}
	ps := d.Constants(gputypes.ShaderStageFragment, pushbuf.BoolConstants)
	if !slices.Equal(ps, []uint32{0, 0, 0, 1}) {
		t.Errorf("pixel bool constants = %v, want [0 0 0 1]", ps)
	}
	if got := d.Snapshot().Counters.ConstantUploads; got != 2 {
		t.Errorf("ConstantUploads = %d, want 2", got)
	}
}

func TestDevice_Close(t *testing.T) {
	d, gpu := newTestDevice(t)
	mustBuffer(t, d, pushbuf.VertexBuffer, 8)
	h := mustBuffer(t, d, pushbuf.IndexBuffer, 8)
	if _, err := d.Lock(pushbuf.IndexBuffer, h, 0, 8, 0); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if _, err := d.CreateShader(gputypes.ShaderStageVertex, testSPIRVWords(), "vs"); err != nil {
		t.Fatalf("CreateShader() error = %v", err)
	}

	d.Close()
	if gpu.destroyed != 2 || gpu.unmapped != 1 || gpu.modules != 1 {
		t.Errorf("destroyed/unmapped/modules = %d/%d/%d, want 2/1/1", gpu.destroyed, gpu.unmapped, gpu.modules)
	}
	if s := d.Snapshot(); s.Buffers != 0 || s.Shaders != 0 {
		t.Errorf("live resources after Close = %d/%d", s.Buffers, s.Shaders)
	}
}

// ===== Replay through the push-buffer engine =====

func TestDevice_AsyncReplay(t *testing.T) {
	d, _ := newTestDevice(t)
	vb := mustBuffer(t, d, pushbuf.VertexBuffer, 256)
	a := pushbuf.NewAsyncDevice(d, pushbuf.WithBufferCount(4), pushbuf.WithBufferWords(64))
	if err := a.Enable(context.Background()); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	t.Cleanup(a.Disable)

	mem, lctx, err := a.AsyncLock(pushbuf.VertexBuffer, vb, 32, 100, 0)
	if err != nil {
		t.Fatalf("AsyncLock() error = %v", err)
	}
	for i := range mem {
		mem[i] = byte(i%251 + 1)
	}
	if err := a.AsyncUnlock(pushbuf.VertexBuffer, vb, lctx, 0); err != nil {
		t.Fatalf("AsyncUnlock() error = %v", err)
	}
	a.BeginScene()
	a.SetStreamSource(0, vb, 32, 20)
	a.DrawPrimitive(gputypes.PrimitiveTopologyTriangleList, 0, 5)
	a.EndScene()
	a.Synchronize()

	if err := a.WorkerErr(); err != nil {
		t.Fatalf("WorkerErr() = %v", err)
	}
	got, err := a.Lock(pushbuf.VertexBuffer, vb, 32, 100, 0)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if !bytes.Equal(got, mem) {
		t.Error("device buffer does not hold the staged bytes")
	}
	if err := d.Unlock(pushbuf.VertexBuffer, vb, 0); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	s := d.Snapshot()
	if s.Counters.Draws != 1 || s.Counters.Primitives != 5 || s.Counters.Scenes != 1 {
		t.Errorf("Counters = %+v", s.Counters)
	}
	if s.Streams[0].Buffer != vb {
		t.Errorf("stream 0 buffer = %d, want %d", s.Streams[0].Buffer, vb)
	}
}
