package halgpu

import (
	"fmt"
	"maps"
	"sync"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/matsys/pushbuf"
	"github.com/gogpu/wgpu/hal"
)

// GPU is the subset of hal.Device the adapter drives.
type GPU interface {
	CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error)
	DestroyBuffer(buffer hal.Buffer)
	MapBuffer(buffer hal.Buffer, offset, size uint64) (hal.BufferMapping, error)
	UnmapBuffer(buffer hal.Buffer) error
	CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error)
	DestroyShaderModule(module hal.ShaderModule)
}

var _ GPU = hal.Device(nil)

// StreamBinding is one vertex stream slot.
type StreamBinding struct {
	Buffer pushbuf.Handle
	Offset uint32
	Stride uint32
}

type samplerKey struct{ stage, state uint32 }

type constantKey struct {
	stage gputypes.ShaderStage
	kind  pushbuf.ConstantKind
}

// Counters tallies replayed work.
type Counters struct {
	Draws           uint64
	IndexedDraws    uint64
	Primitives      uint64
	Clears          uint64
	Presents        uint64
	Scenes          uint64
	StretchRects    uint64
	ConstantUploads uint64
	Locks           uint64
	Unlocks         uint64
	InvalidBinds    uint64
}

// State is a snapshot of the pipeline state set through the device.
type State struct {
	RenderStates   map[uint32]uint32
	Textures       map[uint32]pushbuf.Handle
	Samplers       map[[2]uint32]uint32
	Streams        map[uint32]StreamBinding
	RenderTargets  map[uint32]pushbuf.Handle
	ClipPlanes     map[uint32][4]float32
	VertexShader   pushbuf.Handle
	PixelShader    pushbuf.Handle
	DepthStencil   pushbuf.Handle
	Indices        pushbuf.Handle
	IndexFormat    gputypes.IndexFormat
	VertexDecl     pushbuf.Handle
	Viewport       pushbuf.Viewport
	Scissor        pushbuf.Rect
	MaxVSConstants uint32
	InScene        bool
	Owned          bool
	Buffers        int
	Shaders        int
	Counters       Counters
}

// Device implements pushbuf.Device on top of a hal device.
//
// Resource state lives in hal objects. Everything else is tracked on the
// CPU so that replayed command streams can be inspected.
type Device struct {
	gpu GPU
	res *resourceTable

	mu            sync.Mutex
	renderStates  map[uint32]uint32
	textures      map[uint32]pushbuf.Handle
	samplers      map[samplerKey]uint32
	streams       map[uint32]StreamBinding
	renderTargets map[uint32]pushbuf.Handle
	clipPlanes    map[uint32][4]float32
	constants     map[constantKey][]uint32
	vertexShader  pushbuf.Handle
	pixelShader   pushbuf.Handle
	depthStencil  pushbuf.Handle
	indices       pushbuf.Handle
	indexFormat   gputypes.IndexFormat
	vertexDecl    pushbuf.Handle
	viewport      pushbuf.Viewport
	scissor       pushbuf.Rect
	maxVSConsts   uint32
	inScene       bool
	owned         bool
	counters      Counters
}

var _ pushbuf.Device = (*Device)(nil)

// NewDevice wraps gpu. Pass a hal.Device or any implementation of GPU.
func NewDevice(gpu GPU) *Device {
	return &Device{
		gpu:           gpu,
		res:           newResourceTable(),
		renderStates:  make(map[uint32]uint32),
		textures:      make(map[uint32]pushbuf.Handle),
		samplers:      make(map[samplerKey]uint32),
		streams:       make(map[uint32]StreamBinding),
		renderTargets: make(map[uint32]pushbuf.Handle),
		clipPlanes:    make(map[uint32][4]float32),
		constants:     make(map[constantKey][]uint32),
	}
}

// CreateBuffer allocates a CPU-writable vertex or index buffer.
func (d *Device) CreateBuffer(kind pushbuf.BufferKind, size uint64, label string) (pushbuf.Handle, error) {
	if size == 0 {
		return pushbuf.NoHandle, ErrInvalidSize
	}
	usage := gputypes.BufferUsageVertex
	if kind == pushbuf.IndexBuffer {
		usage = gputypes.BufferUsageIndex
	}
	buf, err := d.gpu.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage | gputypes.BufferUsageMapWrite,
	})
	if err != nil {
		return pushbuf.NoHandle, fmt.Errorf("halgpu: create %s buffer %q: %w", kind, label, err)
	}
	h := d.res.add(&resource{
		kind:       kindBuffer,
		label:      label,
		buffer:     buf,
		bufferKind: kind,
		size:       size,
	})
	slogger().Debug("halgpu: buffer created", "handle", h, "kind", kind, "size", size, "label", label)
	return h, nil
}

// DestroyBuffer releases a buffer. A locked buffer is unmapped first.
func (d *Device) DestroyBuffer(h pushbuf.Handle) error {
	r, err := d.res.remove(h, kindBuffer)
	if err != nil {
		return err
	}
	d.res.mu.Lock()
	locked := r.locked
	r.locked = false
	d.res.mu.Unlock()
	if locked {
		if err := d.gpu.UnmapBuffer(r.buffer); err != nil {
			slogger().Warn("halgpu: unmap on destroy failed", "handle", h, "err", err)
		}
	}
	d.gpu.DestroyBuffer(r.buffer)
	return nil
}

// BufferSize returns the size of a buffer in bytes.
func (d *Device) BufferSize(h pushbuf.Handle) (uint64, error) {
	r, err := d.res.get(h, kindBuffer)
	if err != nil {
		return 0, err
	}
	return r.size, nil
}

// Lock maps size bytes of buffer at offset. A zero size maps the rest of
// the buffer.
func (d *Device) Lock(kind pushbuf.BufferKind, buffer pushbuf.Handle, offset, size, flags uint32) ([]byte, error) {
	r, err := d.res.get(buffer, kindBuffer)
	if err != nil {
		return nil, err
	}
	if r.bufferKind != kind {
		return nil, fmt.Errorf("%w: handle %d is a %s buffer, locked as %s", ErrWrongResource, buffer, r.bufferKind, kind)
	}
	off, n := uint64(offset), uint64(size)
	if off > r.size {
		return nil, fmt.Errorf("%w: offset %d, buffer %d bytes", ErrLockRange, off, r.size)
	}
	if n == 0 {
		n = r.size - off
	}
	if off+n > r.size {
		return nil, fmt.Errorf("%w: [%d,%d) of %d bytes", ErrLockRange, off, off+n, r.size)
	}

	d.res.mu.Lock()
	if r.locked {
		d.res.mu.Unlock()
		return nil, fmt.Errorf("%w: handle %d", ErrAlreadyLocked, buffer)
	}
	r.locked = true
	r.lockSize = n
	d.res.mu.Unlock()

	if n == 0 {
		d.count(func(c *Counters) { c.Locks++ })
		return []byte{}, nil
	}
	m, err := d.gpu.MapBuffer(r.buffer, off, n)
	if err != nil {
		d.res.mu.Lock()
		r.locked = false
		d.res.mu.Unlock()
		return nil, fmt.Errorf("halgpu: map buffer %d: %w", buffer, err)
	}
	d.count(func(c *Counters) { c.Locks++ })
	slogger().Debug("halgpu: buffer locked", "handle", buffer, "offset", off, "size", n, "flags", flags, "coherent", m.IsCoherent)
	return unsafe.Slice((*byte)(m.Ptr), n), nil
}

// Unlock releases the mapping taken by Lock. actualSize is informational.
func (d *Device) Unlock(kind pushbuf.BufferKind, buffer pushbuf.Handle, actualSize uint32) error {
	r, err := d.res.get(buffer, kindBuffer)
	if err != nil {
		return err
	}
	if r.bufferKind != kind {
		return fmt.Errorf("%w: handle %d is a %s buffer, unlocked as %s", ErrWrongResource, buffer, r.bufferKind, kind)
	}
	d.res.mu.Lock()
	if !r.locked {
		d.res.mu.Unlock()
		return fmt.Errorf("%w: handle %d", ErrNotLocked, buffer)
	}
	r.locked = false
	mapped := r.lockSize
	d.res.mu.Unlock()

	if mapped > 0 {
		if err := d.gpu.UnmapBuffer(r.buffer); err != nil {
			return fmt.Errorf("halgpu: unmap buffer %d: %w", buffer, err)
		}
	}
	d.count(func(c *Counters) { c.Unlocks++ })
	slogger().Debug("halgpu: buffer unlocked", "handle", buffer, "written", actualSize)
	return nil
}

// Constants returns a copy of a stage's constant register file.
func (d *Device) Constants(stage gputypes.ShaderStage, kind pushbuf.ConstantKind) []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint32(nil), d.constants[constantKey{stage, kind}]...)
}

// Snapshot returns the current pipeline state and counters.
func (d *Device) Snapshot() State {
	buffers, shaders := d.res.count()
	d.mu.Lock()
	defer d.mu.Unlock()
	samplers := make(map[[2]uint32]uint32, len(d.samplers))
	for k, v := range d.samplers {
		samplers[[2]uint32{k.stage, k.state}] = v
	}
	return State{
		RenderStates:   maps.Clone(d.renderStates),
		Textures:       maps.Clone(d.textures),
		Samplers:       samplers,
		Streams:        maps.Clone(d.streams),
		RenderTargets:  maps.Clone(d.renderTargets),
		ClipPlanes:     maps.Clone(d.clipPlanes),
		VertexShader:   d.vertexShader,
		PixelShader:    d.pixelShader,
		DepthStencil:   d.depthStencil,
		Indices:        d.indices,
		IndexFormat:    d.indexFormat,
		VertexDecl:     d.vertexDecl,
		Viewport:       d.viewport,
		Scissor:        d.scissor,
		MaxVSConstants: d.maxVSConsts,
		InScene:        d.inScene,
		Owned:          d.owned,
		Buffers:        buffers,
		Shaders:        shaders,
		Counters:       d.counters,
	}
}

// Close destroys every live resource.
func (d *Device) Close() {
	for _, r := range d.res.drain() {
		switch r.kind {
		case kindBuffer:
			if r.locked && r.lockSize > 0 {
				_ = d.gpu.UnmapBuffer(r.buffer)
			}
			d.gpu.DestroyBuffer(r.buffer)
		case kindShader:
			d.gpu.DestroyShaderModule(r.module)
		}
	}
}

func (d *Device) count(fn func(*Counters)) {
	d.mu.Lock()
	fn(&d.counters)
	d.mu.Unlock()
}

// bindShader records a shader binding, counting handles that are not
// shaders of the expected stage.
func (d *Device) bindShader(slot *pushbuf.Handle, h pushbuf.Handle, stage gputypes.ShaderStage) {
	if h != pushbuf.NoHandle {
		r, err := d.res.get(h, kindShader)
		switch {
		case err != nil:
			slogger().Warn("halgpu: binding unknown shader", "handle", h, "stage", stage, "err", err)
			d.counters.InvalidBinds++
		case r.stage != stage:
			slogger().Warn("halgpu: shader bound to wrong stage", "handle", h, "stage", stage, "shaderStage", r.stage)
			d.counters.InvalidBinds++
		}
	}
	*slot = h
}

// ===== pushbuf.Device state calls =====

func (d *Device) SetRenderState(state, value uint32) {
	d.mu.Lock()
	d.renderStates[state] = value
	d.mu.Unlock()
}

func (d *Device) SetTexture(stage uint32, texture pushbuf.Handle) {
	d.mu.Lock()
	d.textures[stage] = texture
	d.mu.Unlock()
}

func (d *Device) SetVertexShader(shader pushbuf.Handle) {
	d.mu.Lock()
	d.bindShader(&d.vertexShader, shader, gputypes.ShaderStageVertex)
	d.mu.Unlock()
}

func (d *Device) SetPixelShader(shader pushbuf.Handle) {
	d.mu.Lock()
	d.bindShader(&d.pixelShader, shader, gputypes.ShaderStageFragment)
	d.mu.Unlock()
}

func (d *Device) SetShaderConstants(c pushbuf.ShaderConstants) {
	width := 4
	if c.Kind == pushbuf.BoolConstants {
		width = 1
	}
	key := constantKey{c.Stage, c.Kind}
	start := int(c.Start) * width
	d.mu.Lock()
	defer d.mu.Unlock()
	file := d.constants[key]
	if need := start + len(c.Values); need > len(file) {
		file = append(file, make([]uint32, need-len(file))...)
	}
	copy(file[start:], c.Values)
	d.constants[key] = file
	d.counters.ConstantUploads++
}

func (d *Device) SetMaxUsedVertexShaderConstantsHint(count uint32) {
	d.mu.Lock()
	d.maxVSConsts = count
	d.mu.Unlock()
}

func (d *Device) SetRenderTarget(index uint32, surface pushbuf.Handle) {
	d.mu.Lock()
	d.renderTargets[index] = surface
	d.mu.Unlock()
}

func (d *Device) SetDepthStencilSurface(surface pushbuf.Handle) {
	d.mu.Lock()
	d.depthStencil = surface
	d.mu.Unlock()
}

func (d *Device) SetStreamSource(stream uint32, buffer pushbuf.Handle, offset, stride uint32) {
	d.mu.Lock()
	d.streams[stream] = StreamBinding{Buffer: buffer, Offset: offset, Stride: stride}
	d.mu.Unlock()
}

func (d *Device) SetIndices(buffer pushbuf.Handle, format gputypes.IndexFormat) {
	d.mu.Lock()
	d.indices = buffer
	d.indexFormat = format
	d.mu.Unlock()
}

func (d *Device) SetSamplerState(stage, state, value uint32) {
	d.mu.Lock()
	d.samplers[samplerKey{stage, state}] = value
	d.mu.Unlock()
}

func (d *Device) SetViewport(vp pushbuf.Viewport) {
	d.mu.Lock()
	d.viewport = vp
	d.mu.Unlock()
}

func (d *Device) SetVertexDeclaration(decl pushbuf.Handle) {
	d.mu.Lock()
	d.vertexDecl = decl
	d.mu.Unlock()
}

func (d *Device) SetClipPlane(index uint32, plane [4]float32) {
	d.mu.Lock()
	d.clipPlanes[index] = plane
	d.mu.Unlock()
}

func (d *Device) SetScissorRect(r pushbuf.Rect) {
	d.mu.Lock()
	d.scissor = r
	d.mu.Unlock()
}

func (d *Device) AcquireThreadOwnership() {
	d.mu.Lock()
	d.owned = true
	d.mu.Unlock()
}

func (d *Device) ReleaseThreadOwnership() {
	d.mu.Lock()
	d.owned = false
	d.mu.Unlock()
}

// ===== pushbuf.Device work calls =====

func (d *Device) DrawPrimitive(topology gputypes.PrimitiveTopology, startVertex, primCount uint32) {
	d.count(func(c *Counters) {
		c.Draws++
		c.Primitives += uint64(primCount)
	})
}

// DrawPrimitiveUPResize marks the user-pointer vertex cache dirty. The
// adapter keeps no such cache, so the call is only logged.
func (d *Device) DrawPrimitiveUPResize() {
	slogger().Debug("halgpu: user-pointer draw cache resized")
}

func (d *Device) DrawIndexedPrimitive(topology gputypes.PrimitiveTopology, baseVertex int32, minIndex, numVertices, startIndex, primCount uint32) {
	d.count(func(c *Counters) {
		c.IndexedDraws++
		c.Primitives += uint64(primCount)
	})
}

func (d *Device) Clear(rects []pushbuf.Rect, flags, color uint32, z float32, stencil uint32) {
	d.count(func(c *Counters) { c.Clears++ })
}

func (d *Device) BeginScene() {
	d.mu.Lock()
	if d.inScene {
		slogger().Warn("halgpu: BeginScene inside a scene")
	}
	d.inScene = true
	d.mu.Unlock()
}

func (d *Device) EndScene() {
	d.mu.Lock()
	if !d.inScene {
		slogger().Warn("halgpu: EndScene outside a scene")
	}
	d.inScene = false
	d.counters.Scenes++
	d.mu.Unlock()
}

func (d *Device) Present(src, dst *pushbuf.Rect, window pushbuf.Handle) {
	d.count(func(c *Counters) { c.Presents++ })
}

func (d *Device) StretchRect(src pushbuf.Handle, srcRect *pushbuf.Rect, dst pushbuf.Handle, dstRect *pushbuf.Rect, filter uint32) {
	d.count(func(c *Counters) { c.StretchRects++ })
}
