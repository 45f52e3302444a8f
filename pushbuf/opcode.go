package pushbuf

import (
	"errors"
	"fmt"
)

// Opcode identifies a push-buffer command.
// Every command starts with its opcode word.
type Opcode uint32

const (
	OpEnd Opcode = iota // Terminates a buffer
	OpSetRenderState
	OpSetRenderStateInline
	OpSetTexture
	OpDrawPrim
	OpDrawPrimUPResize
	OpDrawIndexedPrim
	OpSetPixelShader
	OpSetVertexShader
	OpSetPixelShaderConstant
	OpSetBooleanPixelShaderConstant
	OpSetIntegerPixelShaderConstant
	OpSetVertexShaderConstant
	OpSetBooleanVertexShaderConstant
	OpSetIntegerVertexShaderConstant
	OpSetMaxUsedVertexShaderConstantsHint
	OpSetRenderTarget
	OpSetDepthStencilSurface
	OpSetStreamSource
	OpSetIndices
	OpSetSamplerState
	OpSetSamplerStates
	OpUnlockVB
	OpUnlockActualSizeVB
	OpUnlockIB
	OpUnlockActualSizeIB
	OpSetViewport
	OpClear
	OpSetVertexDeclaration
	OpBeginScene
	OpEndScene
	OpPresent
	OpSetClipPlane
	OpStretchRect
	OpAsyncLockVB
	OpAsyncUnlockVB
	OpAsyncLockIB
	OpAsyncUnlockIB
	OpSetScissorRect
	OpAcquireThreadOwnership
	OpReleaseThreadOwnership

	opcodeCount
)

// Errors returned while walking a word stream.
var (
	// ErrUnknownOpcode is returned for an opcode word outside the table.
	ErrUnknownOpcode = errors.New("pushbuf: unknown opcode")

	// ErrTruncatedCommand is returned when a command claims more words
	// than remain in the stream.
	ErrTruncatedCommand = errors.New("pushbuf: truncated command")

	// ErrMissingEnd is returned when a stream runs out without OpEnd.
	ErrMissingEnd = errors.New("pushbuf: stream not terminated by OpEnd")
)

// opcodeInfo describes the wire size of one opcode.
// args is the number of fixed argument words. extra, when set, returns the
// number of payload words that follow the fixed arguments.
type opcodeInfo struct {
	name  string
	args  int
	extra func(args []uint32) int
}

// vec4Payload sizes float and integer shader constants: count at args[1].
func vec4Payload(args []uint32) int { return 4 * int(args[1]) }

// scalarPayload sizes boolean shader constants: one word per register.
func scalarPayload(args []uint32) int { return int(args[1]) }

// clearPayload sizes a Clear: rects, then flags, color, z and stencil.
func clearPayload(args []uint32) int { return 4*int(args[0]) + 4 }

var opcodeTable = [opcodeCount]opcodeInfo{
	OpEnd:                                 {name: "End"},
	OpSetRenderState:                      {name: "SetRenderState", args: 2},
	OpSetRenderStateInline:                {name: "SetRenderStateInline", args: 2},
	OpSetTexture:                          {name: "SetTexture", args: 2},
	OpDrawPrim:                            {name: "DrawPrim", args: 3},
	OpDrawPrimUPResize:                    {name: "DrawPrimUPResize"},
	OpDrawIndexedPrim:                     {name: "DrawIndexedPrim", args: 6},
	OpSetPixelShader:                      {name: "SetPixelShader", args: 1},
	OpSetVertexShader:                     {name: "SetVertexShader", args: 1},
	OpSetPixelShaderConstant:              {name: "SetPixelShaderConstant", args: 2, extra: vec4Payload},
	OpSetBooleanPixelShaderConstant:       {name: "SetBooleanPixelShaderConstant", args: 2, extra: scalarPayload},
	OpSetIntegerPixelShaderConstant:       {name: "SetIntegerPixelShaderConstant", args: 2, extra: vec4Payload},
	OpSetVertexShaderConstant:             {name: "SetVertexShaderConstant", args: 2, extra: vec4Payload},
	OpSetBooleanVertexShaderConstant:      {name: "SetBooleanVertexShaderConstant", args: 2, extra: scalarPayload},
	OpSetIntegerVertexShaderConstant:      {name: "SetIntegerVertexShaderConstant", args: 2, extra: vec4Payload},
	OpSetMaxUsedVertexShaderConstantsHint: {name: "SetMaxUsedVertexShaderConstantsHint", args: 1},
	OpSetRenderTarget:                     {name: "SetRenderTarget", args: 2},
	OpSetDepthStencilSurface:              {name: "SetDepthStencilSurface", args: 1},
	OpSetStreamSource:                     {name: "SetStreamSource", args: 4},
	OpSetIndices:                          {name: "SetIndices", args: 2},
	OpSetSamplerState:                     {name: "SetSamplerState", args: 3},
	OpSetSamplerStates:                    {name: "SetSamplerStates", args: 7},
	OpUnlockVB:                            {name: "UnlockVB", args: 1},
	OpUnlockActualSizeVB:                  {name: "UnlockActualSizeVB", args: 2},
	OpUnlockIB:                            {name: "UnlockIB", args: 1},
	OpUnlockActualSizeIB:                  {name: "UnlockActualSizeIB", args: 2},
	OpSetViewport:                         {name: "SetViewport", args: 6},
	OpClear:                               {name: "Clear", args: 1, extra: clearPayload},
	OpSetVertexDeclaration:                {name: "SetVertexDeclaration", args: 1},
	OpBeginScene:                          {name: "BeginScene"},
	OpEndScene:                            {name: "EndScene"},
	OpPresent:                             {name: "Present", args: 10},
	OpSetClipPlane:                        {name: "SetClipPlane", args: 5},
	OpStretchRect:                         {name: "StretchRect", args: 13},
	OpAsyncLockVB:                         {name: "AsyncLockVB", args: 4},
	OpAsyncUnlockVB:                       {name: "AsyncUnlockVB", args: 5},
	OpAsyncLockIB:                         {name: "AsyncLockIB", args: 4},
	OpAsyncUnlockIB:                       {name: "AsyncUnlockIB", args: 5},
	OpSetScissorRect:                      {name: "SetScissorRect", args: 4},
	OpAcquireThreadOwnership:              {name: "AcquireThreadOwnership"},
	OpReleaseThreadOwnership:              {name: "ReleaseThreadOwnership"},
}

// String returns the opcode name.
func (op Opcode) String() string {
	if op < opcodeCount {
		return opcodeTable[op].name
	}
	return "Unknown"
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool { return op < opcodeCount }

// commandLen returns the number of words, opcode included, occupied by the
// command that starts at words[0].
func commandLen(words []uint32) (int, error) {
	if len(words) == 0 {
		return 0, ErrMissingEnd
	}
	op := Opcode(words[0])
	if !op.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownOpcode, words[0])
	}
	info := &opcodeTable[op]
	n := 1 + info.args
	if n > len(words) {
		return 0, fmt.Errorf("%w: %s needs %d words, have %d", ErrTruncatedCommand, op, n, len(words))
	}
	if info.extra != nil {
		// Counts come from the stream; compare in 64 bits so a huge count
		// cannot wrap.
		extra := int64(info.extra(words[1:n]))
		if extra < 0 || int64(n)+extra > int64(len(words)) {
			return 0, fmt.Errorf("%w: %s payload of %d words, have %d", ErrTruncatedCommand, op, extra, len(words)-n)
		}
		n += int(extra)
	}
	return n, nil
}
