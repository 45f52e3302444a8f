package pushbuf

import (
	"math"

	"github.com/gogpu/gputypes"
)

// Handle identifies a device object (buffer, texture, shader, surface)
// by integer id. Handles fit in one command word.
type Handle uint32

// NoHandle is the null device object.
const NoHandle Handle = 0

// BufferKind selects vertex or index buffer variants of lock commands.
type BufferKind uint32

const (
	VertexBuffer BufferKind = iota
	IndexBuffer
)

// String returns "vertex" or "index".
func (k BufferKind) String() string {
	if k == IndexBuffer {
		return "index"
	}
	return "vertex"
}

// Rect is an integer rectangle in device pixels.
type Rect struct {
	Left, Top, Right, Bottom int32
}

func (r Rect) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(r.Left), uint32(r.Top), uint32(r.Right), uint32(r.Bottom)) // #nosec G115 -- bit-preserving
}

func rectFromWords(w []uint32) Rect {
	return Rect{int32(w[0]), int32(w[1]), int32(w[2]), int32(w[3])} // #nosec G115 -- bit-preserving
}

// Viewport mirrors a device viewport: pixel rectangle plus depth range.
type Viewport struct {
	X, Y, Width, Height uint32
	MinZ, MaxZ          float32
}

// ConstantKind selects the shader constant register file.
type ConstantKind uint32

const (
	FloatConstants ConstantKind = iota
	BoolConstants
	IntConstants
)

// ShaderConstants is a run of shader constant registers.
//
// Float and integer registers are four words each; Values holds 4*N words
// (float registers as IEEE bits). Boolean registers are one word each.
type ShaderConstants struct {
	Stage  gputypes.ShaderStage
	Kind   ConstantKind
	Start  uint32
	Values []uint32
}

// Count returns the number of registers carried by c.
func (c ShaderConstants) Count() int {
	if c.Kind == BoolConstants {
		return len(c.Values)
	}
	return len(c.Values) / 4
}

// Floats returns the values reinterpreted as float32.
func (c ShaderConstants) Floats() []float32 {
	out := make([]float32, len(c.Values))
	for i, v := range c.Values {
		out[i] = math.Float32frombits(v)
	}
	return out
}

// FloatConstantsFor builds float registers from vec4 values.
func FloatConstantsFor(stage gputypes.ShaderStage, start uint32, vecs ...[4]float32) ShaderConstants {
	vals := make([]uint32, 0, 4*len(vecs))
	for _, v := range vecs {
		for _, f := range v {
			vals = append(vals, math.Float32bits(f))
		}
	}
	return ShaderConstants{Stage: stage, Kind: FloatConstants, Start: start, Values: vals}
}

// StagingSource says where the producer staged data for an async lock.
type StagingSource uint32

const (
	StagingNone StagingSource = iota
	StagingPushBuffer
	StagingHeap
	StagingDirect // Locked on the device directly while async mode was off
)

// LockedBufferContext records the staging memory of an in-flight
// asynchronous lock. Slot is the push-buffer pool index for
// StagingPushBuffer or the heap block id for StagingHeap.
type LockedBufferContext struct {
	Source StagingSource
	Slot   uint32
	Size   uint32
}

const lockedContextWords = 3

func (c LockedBufferContext) appendWords(dst []uint32) []uint32 {
	return append(dst, uint32(c.Source), c.Slot, c.Size)
}

func lockedContextFromWords(w []uint32) LockedBufferContext {
	return LockedBufferContext{Source: StagingSource(w[0]), Slot: w[1], Size: w[2]}
}
