package pushbuf

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"
)

// Staging resolves the staging memory named by a LockedBufferContext.
type Staging interface {
	// StagedBytes returns the staged data. It may be nil for empty locks.
	StagedBytes(ctx LockedBufferContext) []byte

	// ReleaseStaging returns the staging memory to its owner.
	ReleaseStaging(ctx LockedBufferContext)
}

// Interpreter replays push-buffer word streams against a Device.
//
// Command sizes come from the opcode table, so the cursor always advances
// by exactly the words the encoder wrote. An Interpreter is driven by one
// goroutine at a time.
type Interpreter struct {
	dev        Device
	remembered *RememberedPointers
	staging    Staging

	executed atomic.Uint64
}

// NewInterpreter creates an interpreter. staging may be nil when the
// stream carries no async unlock commands.
func NewInterpreter(dev Device, remembered *RememberedPointers, staging Staging) *Interpreter {
	if remembered == nil {
		remembered = NewRememberedPointers(0)
	}
	return &Interpreter{dev: dev, remembered: remembered, staging: staging}
}

// Remembered returns the side table used for async locks.
func (in *Interpreter) Remembered() *RememberedPointers { return in.remembered }

// Executed returns the total number of commands replayed.
func (in *Interpreter) Executed() uint64 { return in.executed.Load() }

// Execute replays commands until OpEnd and returns the number of words
// consumed, OpEnd included.
func (in *Interpreter) Execute(words []uint32) (int, error) {
	pos := 0
	for pos < len(words) {
		op := Opcode(words[pos])
		if op == OpEnd {
			return pos + 1, nil
		}
		n, err := commandLen(words[pos:])
		if err != nil {
			return pos, fmt.Errorf("pushbuf: execute at word %d: %w", pos, err)
		}
		handlers[op](in, words[pos+1:pos+n])
		in.executed.Add(1)
		pos += n
	}
	return pos, ErrMissingEnd
}

// handlers maps each opcode to its replay function. Argument slices hold
// exactly the words sized by opcodeTable.
var handlers = [opcodeCount]func(in *Interpreter, a []uint32){
	OpEnd: func(*Interpreter, []uint32) {},
	OpSetRenderState: func(in *Interpreter, a []uint32) {
		in.dev.SetRenderState(a[0], a[1])
	},
	OpSetRenderStateInline: func(in *Interpreter, a []uint32) {
		in.dev.SetRenderState(a[0], a[1])
	},
	OpSetTexture: func(in *Interpreter, a []uint32) {
		in.dev.SetTexture(a[0], Handle(a[1]))
	},
	OpDrawPrim: func(in *Interpreter, a []uint32) {
		in.dev.DrawPrimitive(gputypes.PrimitiveTopology(a[0]), a[1], a[2])
	},
	OpDrawPrimUPResize: func(in *Interpreter, _ []uint32) {
		in.dev.DrawPrimitiveUPResize()
	},
	OpDrawIndexedPrim: func(in *Interpreter, a []uint32) {
		in.dev.DrawIndexedPrimitive(gputypes.PrimitiveTopology(a[0]),
			int32(a[1]), // #nosec G115 -- bit-preserving
			a[2], a[3], a[4], a[5])
	},
	OpSetPixelShader: func(in *Interpreter, a []uint32) {
		in.dev.SetPixelShader(Handle(a[0]))
	},
	OpSetVertexShader: func(in *Interpreter, a []uint32) {
		in.dev.SetVertexShader(Handle(a[0]))
	},
	OpSetPixelShaderConstant:         constantsHandler(gputypes.ShaderStageFragment, FloatConstants),
	OpSetBooleanPixelShaderConstant:  constantsHandler(gputypes.ShaderStageFragment, BoolConstants),
	OpSetIntegerPixelShaderConstant:  constantsHandler(gputypes.ShaderStageFragment, IntConstants),
	OpSetVertexShaderConstant:        constantsHandler(gputypes.ShaderStageVertex, FloatConstants),
	OpSetBooleanVertexShaderConstant: constantsHandler(gputypes.ShaderStageVertex, BoolConstants),
	OpSetIntegerVertexShaderConstant: constantsHandler(gputypes.ShaderStageVertex, IntConstants),
	OpSetMaxUsedVertexShaderConstantsHint: func(in *Interpreter, a []uint32) {
		in.dev.SetMaxUsedVertexShaderConstantsHint(a[0])
	},
	OpSetRenderTarget: func(in *Interpreter, a []uint32) {
		in.dev.SetRenderTarget(a[0], Handle(a[1]))
	},
	OpSetDepthStencilSurface: func(in *Interpreter, a []uint32) {
		in.dev.SetDepthStencilSurface(Handle(a[0]))
	},
	OpSetStreamSource: func(in *Interpreter, a []uint32) {
		in.dev.SetStreamSource(a[0], Handle(a[1]), a[2], a[3])
	},
	OpSetIndices: func(in *Interpreter, a []uint32) {
		in.dev.SetIndices(Handle(a[0]), gputypes.IndexFormat(a[1]))
	},
	OpSetSamplerState: func(in *Interpreter, a []uint32) {
		in.dev.SetSamplerState(a[0], a[1], a[2])
	},
	OpSetSamplerStates: func(in *Interpreter, a []uint32) {
		stage := a[0]
		in.dev.SetSamplerState(stage, SamplerAddressU, a[1])
		in.dev.SetSamplerState(stage, SamplerAddressV, a[2])
		in.dev.SetSamplerState(stage, SamplerAddressW, a[3])
		in.dev.SetSamplerState(stage, SamplerMinFilter, a[4])
		in.dev.SetSamplerState(stage, SamplerMagFilter, a[5])
		in.dev.SetSamplerState(stage, SamplerMipFilter, a[6])
	},
	OpUnlockVB: func(in *Interpreter, a []uint32) {
		in.unlock(VertexBuffer, Handle(a[0]), 0)
	},
	OpUnlockActualSizeVB: func(in *Interpreter, a []uint32) {
		in.unlock(VertexBuffer, Handle(a[0]), a[1])
	},
	OpUnlockIB: func(in *Interpreter, a []uint32) {
		in.unlock(IndexBuffer, Handle(a[0]), 0)
	},
	OpUnlockActualSizeIB: func(in *Interpreter, a []uint32) {
		in.unlock(IndexBuffer, Handle(a[0]), a[1])
	},
	OpSetViewport: func(in *Interpreter, a []uint32) {
		in.dev.SetViewport(viewportFromWords(a))
	},
	OpClear: func(in *Interpreter, a []uint32) {
		c := clearFromWords(a)
		in.dev.Clear(c.Rects, c.Flags, c.Color, c.Z, c.Stencil)
	},
	OpSetVertexDeclaration: func(in *Interpreter, a []uint32) {
		in.dev.SetVertexDeclaration(Handle(a[0]))
	},
	OpBeginScene: func(in *Interpreter, _ []uint32) { in.dev.BeginScene() },
	OpEndScene:   func(in *Interpreter, _ []uint32) { in.dev.EndScene() },
	OpPresent: func(in *Interpreter, a []uint32) {
		p := presentFromWords(a)
		in.dev.Present(p.Src, p.Dst, p.Window)
	},
	OpSetClipPlane: func(in *Interpreter, a []uint32) {
		in.dev.SetClipPlane(a[0], vec4FromWords(a[1:5]))
	},
	OpStretchRect: func(in *Interpreter, a []uint32) {
		in.dev.StretchRect(Handle(a[0]), optionalRectFromWords(a[1:6]),
			Handle(a[6]), optionalRectFromWords(a[7:12]), a[12])
	},
	OpAsyncLockVB: func(in *Interpreter, a []uint32) {
		in.asyncLock(VertexBuffer, a)
	},
	OpAsyncUnlockVB: func(in *Interpreter, a []uint32) {
		in.asyncUnlock(VertexBuffer, a)
	},
	OpAsyncLockIB: func(in *Interpreter, a []uint32) {
		in.asyncLock(IndexBuffer, a)
	},
	OpAsyncUnlockIB: func(in *Interpreter, a []uint32) {
		in.asyncUnlock(IndexBuffer, a)
	},
	OpSetScissorRect: func(in *Interpreter, a []uint32) {
		in.dev.SetScissorRect(rectFromWords(a))
	},
	OpAcquireThreadOwnership: func(in *Interpreter, _ []uint32) {
		in.dev.AcquireThreadOwnership()
	},
	OpReleaseThreadOwnership: func(in *Interpreter, _ []uint32) {
		in.dev.ReleaseThreadOwnership()
	},
}

// constantsHandler builds the replay function for one constant register
// file. The Values slice aliases the push buffer.
func constantsHandler(stage gputypes.ShaderStage, kind ConstantKind) func(*Interpreter, []uint32) {
	return func(in *Interpreter, a []uint32) {
		n := int(a[1])
		if kind != BoolConstants {
			n *= 4
		}
		in.dev.SetShaderConstants(ShaderConstants{
			Stage:  stage,
			Kind:   kind,
			Start:  a[0],
			Values: a[2 : 2+n],
		})
	}
}

func (in *Interpreter) unlock(kind BufferKind, buffer Handle, actualSize uint32) {
	if err := in.dev.Unlock(kind, buffer, actualSize); err != nil {
		slogger().Warn("pushbuf: unlock failed", "kind", kind, "buffer", buffer, "err", err)
	}
}

// asyncLock performs the real device lock and remembers the mapping for
// the paired unlock. Args: buffer, offset, size, flags.
func (in *Interpreter) asyncLock(kind BufferKind, a []uint32) {
	buffer := Handle(a[0])
	mem, err := in.dev.Lock(kind, buffer, a[1], a[2], a[3])
	if err != nil {
		slogger().Warn("pushbuf: deferred lock failed, staged data will be dropped",
			"kind", kind, "buffer", buffer, "size", a[2], "err", err)
		mem = nil
	}
	if err := in.remembered.Remember(kind, buffer, mem); err != nil {
		panic(fmt.Sprintf("pushbuf: %v (buffer %d)", err, buffer))
	}
}

// asyncUnlock copies staged data into the remembered mapping, releases the
// staging, forgets the mapping and unlocks. Args: buffer, context(3),
// unlock size.
func (in *Interpreter) asyncUnlock(kind BufferKind, a []uint32) {
	buffer := Handle(a[0])
	ctx := lockedContextFromWords(a[1:4])
	unlockSize := a[4]

	mem, ok := in.remembered.Lookup(kind, buffer)
	if !ok {
		panic(fmt.Sprintf("pushbuf: async unlock of %s buffer %d without a deferred lock", kind, buffer))
	}

	var staged []byte
	if in.staging != nil {
		staged = in.staging.StagedBytes(ctx)
	}
	n := int(ctx.Size)
	if unlockSize != 0 && int(unlockSize) < n {
		n = int(unlockSize)
	}
	n = min(n, len(staged), len(mem))
	if mem != nil {
		copy(mem[:n], staged[:n])
	}

	if in.staging != nil {
		in.staging.ReleaseStaging(ctx)
	}
	in.remembered.Forget(kind, buffer)

	if mem != nil {
		in.unlock(kind, buffer, unlockSize)
	}
}
