package pushbuf

import (
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
)

// Command is a typed push-buffer command.
//
// Commands encode to exactly the number of words the interpreter consumes
// for their opcode; [Encode] and [Decode] convert between the typed form
// and the word stream.
type Command interface {
	// Opcode returns the wire opcode for this command.
	Opcode() Opcode

	// appendWords appends the opcode word and the argument words.
	appendWords(dst []uint32) []uint32
}

// --------------------------------------------------------------------------
// State
// --------------------------------------------------------------------------

// SetRenderStateCommand sets a device render state.
// Inline selects the inline opcode variant; replay is identical.
type SetRenderStateCommand struct {
	State  uint32
	Value  uint32
	Inline bool
}

// Opcode implements Command.
func (c SetRenderStateCommand) Opcode() Opcode {
	if c.Inline {
		return OpSetRenderStateInline
	}
	return OpSetRenderState
}

func (c SetRenderStateCommand) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(c.Opcode()), c.State, c.Value)
}

// SetTextureCommand binds a texture to a sampler stage.
type SetTextureCommand struct {
	Stage   uint32
	Texture Handle
}

// Opcode implements Command.
func (SetTextureCommand) Opcode() Opcode { return OpSetTexture }

func (c SetTextureCommand) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(OpSetTexture), c.Stage, uint32(c.Texture))
}

// SetShaderCommand binds a vertex or pixel shader.
type SetShaderCommand struct {
	Stage  gputypes.ShaderStage
	Shader Handle
}

// Opcode implements Command.
func (c SetShaderCommand) Opcode() Opcode {
	if c.Stage == gputypes.ShaderStageVertex {
		return OpSetVertexShader
	}
	return OpSetPixelShader
}

func (c SetShaderCommand) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(c.Opcode()), uint32(c.Shader))
}

// Opcode implements Command.
func (c ShaderConstants) Opcode() Opcode {
	vertex := c.Stage == gputypes.ShaderStageVertex
	switch c.Kind {
	case BoolConstants:
		if vertex {
			return OpSetBooleanVertexShaderConstant
		}
		return OpSetBooleanPixelShaderConstant
	case IntConstants:
		if vertex {
			return OpSetIntegerVertexShaderConstant
		}
		return OpSetIntegerPixelShaderConstant
	default:
		if vertex {
			return OpSetVertexShaderConstant
		}
		return OpSetPixelShaderConstant
	}
}

// appendWords panics when Values does not hold whole four-word registers.
func (c ShaderConstants) appendWords(dst []uint32) []uint32 {
	if c.Kind != BoolConstants && len(c.Values)%4 != 0 {
		panic(fmt.Sprintf("pushbuf: %s with %d values, want a multiple of 4", c.Opcode(), len(c.Values)))
	}
	n := c.Count()
	words := n
	if c.Kind != BoolConstants {
		words = 4 * n
	}
	dst = append(dst, uint32(c.Opcode()), c.Start, uint32(n)) // #nosec G115 -- register counts are small
	return append(dst, c.Values[:words]...)
}

// SetMaxUsedVertexShaderConstantsHintCommand tells the device how many
// vertex constants the bound shader reads.
type SetMaxUsedVertexShaderConstantsHintCommand struct {
	Count uint32
}

// Opcode implements Command.
func (SetMaxUsedVertexShaderConstantsHintCommand) Opcode() Opcode {
	return OpSetMaxUsedVertexShaderConstantsHint
}

func (c SetMaxUsedVertexShaderConstantsHintCommand) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(OpSetMaxUsedVertexShaderConstantsHint), c.Count)
}

// SetRenderTargetCommand binds a color surface.
type SetRenderTargetCommand struct {
	Index   uint32
	Surface Handle
}

// Opcode implements Command.
func (SetRenderTargetCommand) Opcode() Opcode { return OpSetRenderTarget }

func (c SetRenderTargetCommand) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(OpSetRenderTarget), c.Index, uint32(c.Surface))
}

// SetDepthStencilSurfaceCommand binds the depth-stencil surface.
type SetDepthStencilSurfaceCommand struct {
	Surface Handle
}

// Opcode implements Command.
func (SetDepthStencilSurfaceCommand) Opcode() Opcode { return OpSetDepthStencilSurface }

func (c SetDepthStencilSurfaceCommand) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(OpSetDepthStencilSurface), uint32(c.Surface))
}

// SetStreamSourceCommand binds a vertex buffer to a stream.
type SetStreamSourceCommand struct {
	Stream uint32
	Buffer Handle
	Offset uint32
	Stride uint32
}

// Opcode implements Command.
func (SetStreamSourceCommand) Opcode() Opcode { return OpSetStreamSource }

func (c SetStreamSourceCommand) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(OpSetStreamSource), c.Stream, uint32(c.Buffer), c.Offset, c.Stride)
}

// SetIndicesCommand binds the index buffer.
type SetIndicesCommand struct {
	Buffer Handle
	Format gputypes.IndexFormat
}

// Opcode implements Command.
func (SetIndicesCommand) Opcode() Opcode { return OpSetIndices }

func (c SetIndicesCommand) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(OpSetIndices), uint32(c.Buffer), uint32(c.Format))
}

// SetSamplerStateCommand sets one sampler state.
type SetSamplerStateCommand struct {
	Stage uint32
	State uint32
	Value uint32
}

// Opcode implements Command.
func (SetSamplerStateCommand) Opcode() Opcode { return OpSetSamplerState }

func (c SetSamplerStateCommand) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(OpSetSamplerState), c.Stage, c.State, c.Value)
}

// Sampler state ids replayed by SetSamplerStatesCommand.
const (
	SamplerAddressU  uint32 = 1
	SamplerAddressV  uint32 = 2
	SamplerAddressW  uint32 = 3
	SamplerMagFilter uint32 = 5
	SamplerMinFilter uint32 = 6
	SamplerMipFilter uint32 = 7
)

// SetSamplerStatesCommand sets the address and filter states of a stage
// in one command.
type SetSamplerStatesCommand struct {
	Stage                           uint32
	AddressU, AddressV, AddressW    uint32
	MinFilter, MagFilter, MipFilter uint32
}

// Opcode implements Command.
func (SetSamplerStatesCommand) Opcode() Opcode { return OpSetSamplerStates }

func (c SetSamplerStatesCommand) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(OpSetSamplerStates), c.Stage,
		c.AddressU, c.AddressV, c.AddressW, c.MinFilter, c.MagFilter, c.MipFilter)
}

// SetViewportCommand sets the viewport.
type SetViewportCommand struct {
	Viewport Viewport
}

// Opcode implements Command.
func (SetViewportCommand) Opcode() Opcode { return OpSetViewport }

func (c SetViewportCommand) appendWords(dst []uint32) []uint32 {
	v := c.Viewport
	return append(dst, uint32(OpSetViewport), v.X, v.Y, v.Width, v.Height,
		math.Float32bits(v.MinZ), math.Float32bits(v.MaxZ))
}

// SetVertexDeclarationCommand binds a vertex declaration.
type SetVertexDeclarationCommand struct {
	Decl Handle
}

// Opcode implements Command.
func (SetVertexDeclarationCommand) Opcode() Opcode { return OpSetVertexDeclaration }

func (c SetVertexDeclarationCommand) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(OpSetVertexDeclaration), uint32(c.Decl))
}

// SetClipPlaneCommand sets a user clip plane.
type SetClipPlaneCommand struct {
	Index uint32
	Plane [4]float32
}

// Opcode implements Command.
func (SetClipPlaneCommand) Opcode() Opcode { return OpSetClipPlane }

func (c SetClipPlaneCommand) appendWords(dst []uint32) []uint32 {
	dst = append(dst, uint32(OpSetClipPlane), c.Index)
	for _, f := range c.Plane {
		dst = append(dst, math.Float32bits(f))
	}
	return dst
}

// SetScissorRectCommand sets the scissor rectangle.
type SetScissorRectCommand struct {
	Rect Rect
}

// Opcode implements Command.
func (SetScissorRectCommand) Opcode() Opcode { return OpSetScissorRect }

func (c SetScissorRectCommand) appendWords(dst []uint32) []uint32 {
	return c.Rect.appendWords(append(dst, uint32(OpSetScissorRect)))
}

// --------------------------------------------------------------------------
// Drawing
// --------------------------------------------------------------------------

// DrawPrimCommand draws non-indexed primitives.
type DrawPrimCommand struct {
	Topology    gputypes.PrimitiveTopology
	StartVertex uint32
	PrimCount   uint32
}

// Opcode implements Command.
func (DrawPrimCommand) Opcode() Opcode { return OpDrawPrim }

func (c DrawPrimCommand) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(OpDrawPrim), uint32(c.Topology), c.StartVertex, c.PrimCount)
}

// DrawPrimUPResizeCommand issues the depth-resolve point draw.
type DrawPrimUPResizeCommand struct{}

// Opcode implements Command.
func (DrawPrimUPResizeCommand) Opcode() Opcode { return OpDrawPrimUPResize }

func (DrawPrimUPResizeCommand) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(OpDrawPrimUPResize))
}

// DrawIndexedPrimCommand draws indexed primitives.
type DrawIndexedPrimCommand struct {
	Topology    gputypes.PrimitiveTopology
	BaseVertex  int32
	MinIndex    uint32
	NumVertices uint32
	StartIndex  uint32
	PrimCount   uint32
}

// Opcode implements Command.
func (DrawIndexedPrimCommand) Opcode() Opcode { return OpDrawIndexedPrim }

func (c DrawIndexedPrimCommand) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(OpDrawIndexedPrim), uint32(c.Topology),
		uint32(c.BaseVertex), // #nosec G115 -- bit-preserving
		c.MinIndex, c.NumVertices, c.StartIndex, c.PrimCount)
}

// ClearCommand clears the bound surfaces, optionally restricted to rects.
type ClearCommand struct {
	Rects   []Rect
	Flags   uint32
	Color   uint32
	Z       float32
	Stencil uint32
}

// Opcode implements Command.
func (ClearCommand) Opcode() Opcode { return OpClear }

func (c ClearCommand) appendWords(dst []uint32) []uint32 {
	dst = append(dst, uint32(OpClear), uint32(len(c.Rects))) // #nosec G115 -- rect counts are small
	for _, r := range c.Rects {
		dst = r.appendWords(dst)
	}
	return append(dst, c.Flags, c.Color, math.Float32bits(c.Z), c.Stencil)
}

// ClearColor packs a color into the 0xAARRGGBB clear word.
func ClearColor(c gputypes.Color) uint32 {
	ch := func(v float64) uint32 {
		switch {
		case v <= 0:
			return 0
		case v >= 1:
			return 255
		}
		return uint32(v*255 + 0.5)
	}
	return ch(c.A)<<24 | ch(c.R)<<16 | ch(c.G)<<8 | ch(c.B)
}

// SceneCommand begins or ends a scene.
type SceneCommand struct {
	Begin bool
}

// Opcode implements Command.
func (c SceneCommand) Opcode() Opcode {
	if c.Begin {
		return OpBeginScene
	}
	return OpEndScene
}

func (c SceneCommand) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(c.Opcode()))
}

// PresentCommand presents the back buffer. Nil rects mean full surface.
type PresentCommand struct {
	Src, Dst *Rect
	Window   Handle
}

// Opcode implements Command.
func (PresentCommand) Opcode() Opcode { return OpPresent }

func (c PresentCommand) appendWords(dst []uint32) []uint32 {
	var mask uint32
	var src, dstRect Rect
	if c.Src != nil {
		mask |= 1
		src = *c.Src
	}
	if c.Dst != nil {
		mask |= 2
		dstRect = *c.Dst
	}
	dst = append(dst, uint32(OpPresent), mask)
	dst = src.appendWords(dst)
	dst = dstRect.appendWords(dst)
	return append(dst, uint32(c.Window))
}

// StretchRectCommand copies between surfaces with filtering.
type StretchRectCommand struct {
	Src     Handle
	SrcRect *Rect
	Dst     Handle
	DstRect *Rect
	Filter  uint32
}

// Opcode implements Command.
func (StretchRectCommand) Opcode() Opcode { return OpStretchRect }

func (c StretchRectCommand) appendWords(dst []uint32) []uint32 {
	dst = append(dst, uint32(OpStretchRect))
	dst = appendOptionalRect(append(dst, uint32(c.Src)), c.SrcRect)
	dst = appendOptionalRect(append(dst, uint32(c.Dst)), c.DstRect)
	return append(dst, c.Filter)
}

func appendOptionalRect(dst []uint32, r *Rect) []uint32 {
	if r == nil {
		return append(dst, 0, 0, 0, 0, 0)
	}
	return r.appendWords(append(dst, 1))
}

func optionalRectFromWords(w []uint32) *Rect {
	if w[0] == 0 {
		return nil
	}
	r := rectFromWords(w[1:5])
	return &r
}

// ThreadOwnershipCommand acquires or releases device thread ownership.
type ThreadOwnershipCommand struct {
	Acquire bool
}

// Opcode implements Command.
func (c ThreadOwnershipCommand) Opcode() Opcode {
	if c.Acquire {
		return OpAcquireThreadOwnership
	}
	return OpReleaseThreadOwnership
}

func (c ThreadOwnershipCommand) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(c.Opcode()))
}

// --------------------------------------------------------------------------
// Buffer locks
// --------------------------------------------------------------------------

// UnlockCommand releases a synchronous lock taken by the producer.
// A zero ActualSize unlocks the whole locked range.
type UnlockCommand struct {
	Kind       BufferKind
	Buffer     Handle
	ActualSize uint32
}

// Opcode implements Command.
func (c UnlockCommand) Opcode() Opcode {
	switch {
	case c.Kind == IndexBuffer && c.ActualSize != 0:
		return OpUnlockActualSizeIB
	case c.Kind == IndexBuffer:
		return OpUnlockIB
	case c.ActualSize != 0:
		return OpUnlockActualSizeVB
	default:
		return OpUnlockVB
	}
}

func (c UnlockCommand) appendWords(dst []uint32) []uint32 {
	dst = append(dst, uint32(c.Opcode()), uint32(c.Buffer))
	if c.ActualSize != 0 {
		dst = append(dst, c.ActualSize)
	}
	return dst
}

// AsyncLockCommand asks the worker to lock a buffer range for real.
type AsyncLockCommand struct {
	Kind   BufferKind
	Buffer Handle
	Offset uint32
	Size   uint32
	Flags  uint32
}

// Opcode implements Command.
func (c AsyncLockCommand) Opcode() Opcode {
	if c.Kind == IndexBuffer {
		return OpAsyncLockIB
	}
	return OpAsyncLockVB
}

func (c AsyncLockCommand) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(c.Opcode()), uint32(c.Buffer), c.Offset, c.Size, c.Flags)
}

// AsyncUnlockCommand asks the worker to copy staged data into the locked
// range and unlock it.
type AsyncUnlockCommand struct {
	Kind       BufferKind
	Buffer     Handle
	Context    LockedBufferContext
	UnlockSize uint32
}

// Opcode implements Command.
func (c AsyncUnlockCommand) Opcode() Opcode {
	if c.Kind == IndexBuffer {
		return OpAsyncUnlockIB
	}
	return OpAsyncUnlockVB
}

func (c AsyncUnlockCommand) appendWords(dst []uint32) []uint32 {
	dst = append(dst, uint32(c.Opcode()), uint32(c.Buffer))
	dst = c.Context.appendWords(dst)
	return append(dst, c.UnlockSize)
}

// --------------------------------------------------------------------------
// Encode / Decode
// --------------------------------------------------------------------------

// WordCount returns the number of words cmd occupies on the wire.
func WordCount(cmd Command) int {
	return len(cmd.appendWords(nil))
}

// Encode appends cmds to a new word stream terminated by OpEnd.
func Encode(cmds ...Command) []uint32 {
	var words []uint32
	for _, c := range cmds {
		words = c.appendWords(words)
	}
	return append(words, uint32(OpEnd))
}

// Decode converts a word stream back to typed commands, stopping at OpEnd.
// It returns the commands and the number of words consumed, OpEnd included.
func Decode(words []uint32) ([]Command, int, error) {
	var cmds []Command
	pos := 0
	for {
		if pos >= len(words) {
			return cmds, pos, ErrMissingEnd
		}
		if Opcode(words[pos]) == OpEnd {
			return cmds, pos + 1, nil
		}
		n, err := commandLen(words[pos:])
		if err != nil {
			return cmds, pos, fmt.Errorf("pushbuf: decode at word %d: %w", pos, err)
		}
		cmds = append(cmds, decodeCommand(words[pos:pos+n]))
		pos += n
	}
}

// decodeCommand builds the typed command for one complete command slice.
// w[0] is the opcode; the length has already been validated.
func decodeCommand(w []uint32) Command {
	a := w[1:]
	switch op := Opcode(w[0]); op {
	case OpSetRenderState, OpSetRenderStateInline:
		return SetRenderStateCommand{State: a[0], Value: a[1], Inline: op == OpSetRenderStateInline}
	case OpSetTexture:
		return SetTextureCommand{Stage: a[0], Texture: Handle(a[1])}
	case OpDrawPrim:
		return DrawPrimCommand{Topology: gputypes.PrimitiveTopology(a[0]), StartVertex: a[1], PrimCount: a[2]}
	case OpDrawPrimUPResize:
		return DrawPrimUPResizeCommand{}
	case OpDrawIndexedPrim:
		return DrawIndexedPrimCommand{
			Topology:    gputypes.PrimitiveTopology(a[0]),
			BaseVertex:  int32(a[1]), // #nosec G115 -- bit-preserving
			MinIndex:    a[2],
			NumVertices: a[3],
			StartIndex:  a[4],
			PrimCount:   a[5],
		}
	case OpSetPixelShader:
		return SetShaderCommand{Stage: gputypes.ShaderStageFragment, Shader: Handle(a[0])}
	case OpSetVertexShader:
		return SetShaderCommand{Stage: gputypes.ShaderStageVertex, Shader: Handle(a[0])}
	case OpSetPixelShaderConstant, OpSetBooleanPixelShaderConstant, OpSetIntegerPixelShaderConstant,
		OpSetVertexShaderConstant, OpSetBooleanVertexShaderConstant, OpSetIntegerVertexShaderConstant:
		return constantsFromWords(op, a)
	case OpSetMaxUsedVertexShaderConstantsHint:
		return SetMaxUsedVertexShaderConstantsHintCommand{Count: a[0]}
	case OpSetRenderTarget:
		return SetRenderTargetCommand{Index: a[0], Surface: Handle(a[1])}
	case OpSetDepthStencilSurface:
		return SetDepthStencilSurfaceCommand{Surface: Handle(a[0])}
	case OpSetStreamSource:
		return SetStreamSourceCommand{Stream: a[0], Buffer: Handle(a[1]), Offset: a[2], Stride: a[3]}
	case OpSetIndices:
		return SetIndicesCommand{Buffer: Handle(a[0]), Format: gputypes.IndexFormat(a[1])}
	case OpSetSamplerState:
		return SetSamplerStateCommand{Stage: a[0], State: a[1], Value: a[2]}
	case OpSetSamplerStates:
		return SetSamplerStatesCommand{Stage: a[0], AddressU: a[1], AddressV: a[2], AddressW: a[3],
			MinFilter: a[4], MagFilter: a[5], MipFilter: a[6]}
	case OpUnlockVB:
		return UnlockCommand{Kind: VertexBuffer, Buffer: Handle(a[0])}
	case OpUnlockActualSizeVB:
		return UnlockCommand{Kind: VertexBuffer, Buffer: Handle(a[0]), ActualSize: a[1]}
	case OpUnlockIB:
		return UnlockCommand{Kind: IndexBuffer, Buffer: Handle(a[0])}
	case OpUnlockActualSizeIB:
		return UnlockCommand{Kind: IndexBuffer, Buffer: Handle(a[0]), ActualSize: a[1]}
	case OpSetViewport:
		return SetViewportCommand{Viewport: viewportFromWords(a)}
	case OpClear:
		return clearFromWords(a)
	case OpSetVertexDeclaration:
		return SetVertexDeclarationCommand{Decl: Handle(a[0])}
	case OpBeginScene:
		return SceneCommand{Begin: true}
	case OpEndScene:
		return SceneCommand{}
	case OpPresent:
		return presentFromWords(a)
	case OpSetClipPlane:
		return SetClipPlaneCommand{Index: a[0], Plane: vec4FromWords(a[1:5])}
	case OpStretchRect:
		return StretchRectCommand{
			Src:     Handle(a[0]),
			SrcRect: optionalRectFromWords(a[1:6]),
			Dst:     Handle(a[6]),
			DstRect: optionalRectFromWords(a[7:12]),
			Filter:  a[12],
		}
	case OpAsyncLockVB, OpAsyncLockIB:
		return AsyncLockCommand{Kind: lockKind(op == OpAsyncLockIB), Buffer: Handle(a[0]), Offset: a[1], Size: a[2], Flags: a[3]}
	case OpAsyncUnlockVB, OpAsyncUnlockIB:
		return AsyncUnlockCommand{
			Kind:       lockKind(op == OpAsyncUnlockIB),
			Buffer:     Handle(a[0]),
			Context:    lockedContextFromWords(a[1:4]),
			UnlockSize: a[4],
		}
	case OpSetScissorRect:
		return SetScissorRectCommand{Rect: rectFromWords(a)}
	case OpAcquireThreadOwnership:
		return ThreadOwnershipCommand{Acquire: true}
	case OpReleaseThreadOwnership:
		return ThreadOwnershipCommand{}
	}
	panic(fmt.Sprintf("pushbuf: no decoder for %s", Opcode(w[0])))
}

func lockKind(index bool) BufferKind {
	if index {
		return IndexBuffer
	}
	return VertexBuffer
}

func constantsFromWords(op Opcode, a []uint32) ShaderConstants {
	c := ShaderConstants{Stage: gputypes.ShaderStageFragment, Start: a[0]}
	switch op {
	case OpSetVertexShaderConstant, OpSetBooleanVertexShaderConstant, OpSetIntegerVertexShaderConstant:
		c.Stage = gputypes.ShaderStageVertex
	}
	n := int(a[1])
	switch op {
	case OpSetBooleanPixelShaderConstant, OpSetBooleanVertexShaderConstant:
		c.Kind = BoolConstants
	case OpSetIntegerPixelShaderConstant, OpSetIntegerVertexShaderConstant:
		c.Kind = IntConstants
		n *= 4
	default:
		n *= 4
	}
	c.Values = append([]uint32(nil), a[2:2+n]...)
	return c
}

func viewportFromWords(a []uint32) Viewport {
	return Viewport{
		X: a[0], Y: a[1], Width: a[2], Height: a[3],
		MinZ: math.Float32frombits(a[4]),
		MaxZ: math.Float32frombits(a[5]),
	}
}

func clearFromWords(a []uint32) ClearCommand {
	n := int(a[0])
	c := ClearCommand{}
	if n > 0 {
		c.Rects = make([]Rect, n)
		for i := range n {
			c.Rects[i] = rectFromWords(a[1+4*i:])
		}
	}
	tail := a[1+4*n:]
	c.Flags = tail[0]
	c.Color = tail[1]
	c.Z = math.Float32frombits(tail[2])
	c.Stencil = tail[3]
	return c
}

func presentFromWords(a []uint32) PresentCommand {
	c := PresentCommand{Window: Handle(a[9])}
	if a[0]&1 != 0 {
		r := rectFromWords(a[1:5])
		c.Src = &r
	}
	if a[0]&2 != 0 {
		r := rectFromWords(a[5:9])
		c.Dst = &r
	}
	return c
}

func vec4FromWords(a []uint32) [4]float32 {
	return [4]float32{
		math.Float32frombits(a[0]), math.Float32frombits(a[1]),
		math.Float32frombits(a[2]), math.Float32frombits(a[3]),
	}
}
