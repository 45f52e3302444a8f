package pushbuf

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
)

// traceDevice records every call as a short string and backs buffer locks
// with in-memory byte slices.
type traceDevice struct {
	mu       sync.Mutex
	calls    []string
	buffers  map[Handle][]byte
	failLock bool
}

func newTraceDevice() *traceDevice {
	return &traceDevice{buffers: make(map[Handle][]byte)}
}

func (d *traceDevice) record(format string, args ...any) {
	d.mu.Lock()
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
	d.mu.Unlock()
}

func (d *traceDevice) trace() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *traceDevice) addBuffer(h Handle, size int) {
	d.mu.Lock()
	d.buffers[h] = make([]byte, size)
	d.mu.Unlock()
}

func (d *traceDevice) buffer(h Handle) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buffers[h]
}

func (d *traceDevice) SetRenderState(state, value uint32) {
	d.record("SetRenderState(%d,%d)", state, value)
}

func (d *traceDevice) SetTexture(stage uint32, tex Handle) {
	d.record("SetTexture(%d,%d)", stage, tex)
}

func (d *traceDevice) DrawPrimitive(t gputypes.PrimitiveTopology, start, n uint32) {
	d.record("DrawPrimitive(%s,%d,%d)", t, start, n)
}

func (d *traceDevice) DrawPrimitiveUPResize() {
	d.record("DrawPrimitiveUPResize")
}

func (d *traceDevice) DrawIndexedPrimitive(t gputypes.PrimitiveTopology, base int32, minIdx, nv, start, n uint32) {
	d.record("DrawIndexedPrimitive(%s,%d,%d,%d,%d,%d)", t, base, minIdx, nv, start, n)
}

func (d *traceDevice) SetVertexShader(h Handle) {
	d.record("SetVertexShader(%d)", h)
}

func (d *traceDevice) SetPixelShader(h Handle) {
	d.record("SetPixelShader(%d)", h)
}

func (d *traceDevice) SetShaderConstants(c ShaderConstants) {
	d.record("SetShaderConstants(%d,%d,%d,%v)", c.Stage, c.Kind, c.Start, c.Values)
}

func (d *traceDevice) SetMaxUsedVertexShaderConstantsHint(n uint32) {
	d.record("Hint(%d)", n)
}

func (d *traceDevice) SetRenderTarget(i uint32, s Handle) {
	d.record("SetRenderTarget(%d,%d)", i, s)
}

func (d *traceDevice) SetDepthStencilSurface(s Handle) {
	d.record("SetDepthStencilSurface(%d)", s)
}

func (d *traceDevice) SetStreamSource(stream uint32, b Handle, off, stride uint32) {
	d.record("SetStreamSource(%d,%d,%d,%d)", stream, b, off, stride)
}

func (d *traceDevice) SetIndices(b Handle, f gputypes.IndexFormat) {
	d.record("SetIndices(%d,%d)", b, f)
}

func (d *traceDevice) SetSamplerState(stage, state, value uint32) {
	d.record("SetSamplerState(%d,%d,%d)", stage, state, value)
}

func (d *traceDevice) SetViewport(vp Viewport) {
	d.record("SetViewport(%v)", vp)
}

func (d *traceDevice) Clear(rects []Rect, flags, color uint32, z float32, stencil uint32) {
	d.record("Clear(%v,%d,%#x,%g,%d)", rects, flags, color, z, stencil)
}

func (d *traceDevice) SetVertexDeclaration(h Handle) {
	d.record("SetVertexDeclaration(%d)", h)
}

func (d *traceDevice) BeginScene() {
	d.record("BeginScene")
}

func (d *traceDevice) EndScene() {
	d.record("EndScene")
}

func (d *traceDevice) Present(src, dst *Rect, w Handle) {
	d.record("Present(%v,%v,%d)", src != nil, dst != nil, w)
}

func (d *traceDevice) SetClipPlane(i uint32, p [4]float32) {
	d.record("SetClipPlane(%d,%v)", i, p)
}

func (d *traceDevice) StretchRect(src Handle, sr *Rect, dst Handle, dr *Rect, filter uint32) {
	d.record("StretchRect(%d,%d,%d)", src, dst, filter)
}

func (d *traceDevice) SetScissorRect(r Rect) {
	d.record("SetScissorRect(%v)", r)
}

func (d *traceDevice) AcquireThreadOwnership() {
	d.record("Acquire")
}

func (d *traceDevice) ReleaseThreadOwnership() {
	d.record("Release")
}

func (d *traceDevice) Lock(kind BufferKind, b Handle, offset, size, flags uint32) ([]byte, error) {
	d.record("Lock(%s,%d,%d,%d)", kind, b, offset, size)
	if d.failLock {
		return nil, errors.New("lock refused")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, ok := d.buffers[b]
	if !ok || int(offset+size) > len(mem) {
		return nil, fmt.Errorf("bad lock of buffer %d", b)
	}
	return mem[offset : offset+size], nil
}

func (d *traceDevice) Unlock(kind BufferKind, b Handle, actual uint32) error {
	d.record("Unlock(%s,%d,%d)", kind, b, actual)
	return nil
}
