package pushbuf

import (
	"errors"
	"math/rand"
	"reflect"
	"slices"
	"testing"

	"github.com/gogpu/gputypes"
)

// sampleCommands returns one command per opcode (OpEnd excluded).
func sampleCommands() []Command {
	src := Rect{1, 2, 3, 4}
	dst := Rect{-5, -6, 70, 80}
	return []Command{
		SetRenderStateCommand{State: 7, Value: 1},
		SetRenderStateCommand{State: 8, Value: 2, Inline: true},
		SetTextureCommand{Stage: 3, Texture: 42},
		DrawPrimCommand{Topology: gputypes.PrimitiveTopologyTriangleStrip, StartVertex: 4, PrimCount: 10},
		DrawPrimUPResizeCommand{},
		DrawIndexedPrimCommand{Topology: gputypes.PrimitiveTopologyTriangleList, BaseVertex: -3, MinIndex: 1, NumVertices: 9, StartIndex: 6, PrimCount: 3},
		SetShaderCommand{Stage: gputypes.ShaderStageFragment, Shader: 11},
		SetShaderCommand{Stage: gputypes.ShaderStageVertex, Shader: 12},
		FloatConstantsFor(gputypes.ShaderStageFragment, 4, [4]float32{1, 2, 3, 4}, [4]float32{0.5, -1, 0, 9}),
		ShaderConstants{Stage: gputypes.ShaderStageFragment, Kind: BoolConstants, Start: 1, Values: []uint32{1, 0, 1}},
		ShaderConstants{Stage: gputypes.ShaderStageFragment, Kind: IntConstants, Start: 0, Values: []uint32{1, 2, 3, 4}},
		FloatConstantsFor(gputypes.ShaderStageVertex, 0, [4]float32{1, 1, 1, 1}),
		ShaderConstants{Stage: gputypes.ShaderStageVertex, Kind: BoolConstants, Start: 2, Values: []uint32{1}},
		ShaderConstants{Stage: gputypes.ShaderStageVertex, Kind: IntConstants, Start: 3, Values: []uint32{5, 6, 7, 8, 9, 10, 11, 12}},
		SetMaxUsedVertexShaderConstantsHintCommand{Count: 96},
		SetRenderTargetCommand{Index: 1, Surface: 5},
		SetDepthStencilSurfaceCommand{Surface: 6},
		SetStreamSourceCommand{Stream: 0, Buffer: 20, Offset: 64, Stride: 32},
		SetIndicesCommand{Buffer: 21, Format: gputypes.IndexFormatUint16},
		SetSamplerStateCommand{Stage: 0, State: SamplerMinFilter, Value: 2},
		SetSamplerStatesCommand{Stage: 1, AddressU: 1, AddressV: 2, AddressW: 3, MinFilter: 4, MagFilter: 5, MipFilter: 6},
		UnlockCommand{Kind: VertexBuffer, Buffer: 20},
		UnlockCommand{Kind: VertexBuffer, Buffer: 20, ActualSize: 128},
		UnlockCommand{Kind: IndexBuffer, Buffer: 21},
		UnlockCommand{Kind: IndexBuffer, Buffer: 21, ActualSize: 12},
		SetViewportCommand{Viewport: Viewport{X: 0, Y: 0, Width: 640, Height: 480, MinZ: 0, MaxZ: 1}},
		ClearCommand{Rects: []Rect{src, dst}, Flags: 3, Color: ClearColor(gputypes.Color{R: 1, A: 1}), Z: 1, Stencil: 0},
		SetVertexDeclarationCommand{Decl: 33},
		SceneCommand{Begin: true},
		SceneCommand{},
		PresentCommand{Src: &src, Window: 99},
		SetClipPlaneCommand{Index: 2, Plane: [4]float32{0, 1, 0, -5}},
		StretchRectCommand{Src: 1, SrcRect: &src, Dst: 2, Filter: 1},
		AsyncLockCommand{Kind: VertexBuffer, Buffer: 20, Offset: 0, Size: 256, Flags: 1},
		AsyncUnlockCommand{Kind: VertexBuffer, Buffer: 20, Context: LockedBufferContext{Source: StagingHeap, Slot: 3, Size: 256}, UnlockSize: 200},
		AsyncLockCommand{Kind: IndexBuffer, Buffer: 21, Offset: 8, Size: 16},
		AsyncUnlockCommand{Kind: IndexBuffer, Buffer: 21, Context: LockedBufferContext{Source: StagingPushBuffer, Slot: 1, Size: 16}},
		SetScissorRectCommand{Rect: dst},
		ThreadOwnershipCommand{Acquire: true},
		ThreadOwnershipCommand{},
	}
}

// ===== Opcode table =====

func TestOpcode_String(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpEnd, "End"},
		{OpSetRenderState, "SetRenderState"},
		{OpDrawIndexedPrim, "DrawIndexedPrim"},
		{OpAsyncUnlockIB, "AsyncUnlockIB"},
		{OpReleaseThreadOwnership, "ReleaseThreadOwnership"},
		{Opcode(9999), "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.op.String(); got != tt.want {
				t.Errorf("Opcode.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpcodeTable_Complete(t *testing.T) {
	for op := Opcode(0); op < opcodeCount; op++ {
		if opcodeTable[op].name == "" {
			t.Errorf("opcode %d has no table entry", op)
		}
		if handlers[op] == nil {
			t.Errorf("opcode %s has no handler", op)
		}
	}
}

func TestSampleCommands_CoverEveryOpcode(t *testing.T) {
	seen := make(map[Opcode]bool)
	for _, c := range sampleCommands() {
		seen[c.Opcode()] = true
	}
	for op := OpEnd + 1; op < opcodeCount; op++ {
		if !seen[op] {
			t.Errorf("no sample command for %s", op)
		}
	}
}

// ===== Round trip =====

func TestCommand_WordCountMatchesDecoder(t *testing.T) {
	for _, c := range sampleCommands() {
		t.Run(c.Opcode().String(), func(t *testing.T) {
			words := c.appendWords(nil)
			n, err := commandLen(words)
			if err != nil {
				t.Fatalf("commandLen() error = %v", err)
			}
			if n != len(words) {
				t.Errorf("commandLen() = %d, encoded %d words", n, len(words))
			}
			if WordCount(c) != len(words) {
				t.Errorf("WordCount() = %d, want %d", WordCount(c), len(words))
			}
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	cmds := sampleCommands()
	words := Encode(cmds...)

	got, n, err := Decode(words)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if n != len(words) {
		t.Errorf("Decode() consumed %d words, stream has %d", n, len(words))
	}
	if len(got) != len(cmds) {
		t.Fatalf("Decode() returned %d commands, want %d", len(got), len(cmds))
	}
	for i := range cmds {
		if !reflect.DeepEqual(got[i], cmds[i]) {
			t.Errorf("command %d = %#v, want %#v", i, got[i], cmds[i])
		}
	}
}

func TestEncodeDecode_RandomMixes(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	samples := sampleCommands()

	for iter := range 200 {
		count := rng.Intn(40)
		cmds := make([]Command, count)
		for i := range cmds {
			cmds[i] = samples[rng.Intn(len(samples))]
		}
		words := Encode(cmds...)

		got, n, err := Decode(words)
		if err != nil {
			t.Fatalf("iter %d: Decode() error = %v", iter, err)
		}
		if n != len(words) {
			t.Fatalf("iter %d: consumed %d of %d words", iter, n, len(words))
		}
		if len(got) != count {
			t.Fatalf("iter %d: decoded %d commands, want %d", iter, len(got), count)
		}

		in := NewInterpreter(newTraceDevice(), nil, nil)
		// Async unlocks need a matching lock; replay only the rest.
		replay := slices.DeleteFunc(slices.Clone(cmds), func(c Command) bool {
			_, lock := c.(AsyncLockCommand)
			_, unlock := c.(AsyncUnlockCommand)
			return lock || unlock
		})
		rw := Encode(replay...)
		consumed, err := in.Execute(rw)
		if err != nil {
			t.Fatalf("iter %d: Execute() error = %v", iter, err)
		}
		if consumed != len(rw) {
			t.Fatalf("iter %d: Execute() consumed %d of %d words", iter, consumed, len(rw))
		}
	}
}

func TestShaderConstants_PartialRegisterPanics(t *testing.T) {
	tests := []struct {
		name string
		kind ConstantKind
		n    int
	}{
		{"float", FloatConstants, 6},
		{"int", IntConstants, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ShaderConstants{Stage: gputypes.ShaderStageVertex, Kind: tt.kind, Values: make([]uint32, tt.n)}
			defer func() {
				if recover() == nil {
					t.Errorf("Encode() of %d %s values did not panic", tt.n, tt.name)
				}
			}()
			Encode(c)
		})
	}

	// Boolean registers are one word each.
	c := ShaderConstants{Stage: gputypes.ShaderStageFragment, Kind: BoolConstants, Values: []uint32{1, 0, 1, 1, 0, 1}}
	cmds, _, err := Decode(Encode(c))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := cmds[0].(ShaderConstants).Count(); got != 6 {
		t.Errorf("Count() = %d, want 6", got)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		words []uint32
		want  error
	}{
		{"empty", nil, ErrMissingEnd},
		{"no end", []uint32{uint32(OpBeginScene)}, ErrMissingEnd},
		{"unknown opcode", []uint32{uint32(opcodeCount) + 5, uint32(OpEnd)}, ErrUnknownOpcode},
		{"truncated fixed", []uint32{uint32(OpSetRenderState), 1}, ErrTruncatedCommand},
		{"truncated payload", []uint32{uint32(OpSetVertexShaderConstant), 0, 2, 1, 2, 3}, ErrTruncatedCommand},
		{"huge count", []uint32{uint32(OpClear), 0xffffffff, uint32(OpEnd)}, ErrTruncatedCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.words)
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClearColor(t *testing.T) {
	tests := []struct {
		c    gputypes.Color
		want uint32
	}{
		{gputypes.Color{R: 1, G: 0, B: 0, A: 1}, 0xffff0000},
		{gputypes.Color{R: 0, G: 0, B: 1, A: 0}, 0x000000ff},
		{gputypes.Color{R: 2, G: -1, B: 0.5, A: 1}, 0xffff0080},
	}
	for _, tt := range tests {
		if got := ClearColor(tt.c); got != tt.want {
			t.Errorf("ClearColor(%v) = %#x, want %#x", tt.c, got, tt.want)
		}
	}
}

// FuzzDecode checks that any stream the decoder accepts re-encodes to a
// stream that decodes to the same words.
func FuzzDecode(f *testing.F) {
	seed := Encode(sampleCommands()...)
	buf := make([]byte, 0, 4*len(seed))
	for _, w := range seed {
		buf = append(buf, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}
	f.Add(buf)
	f.Add([]byte{0, 0, 0, 0})

	f.Fuzz(func(t *testing.T, data []byte) {
		words := make([]uint32, len(data)/4)
		for i := range words {
			words[i] = uint32(data[4*i]) | uint32(data[4*i+1])<<8 | uint32(data[4*i+2])<<16 | uint32(data[4*i+3])<<24
		}
		cmds, _, err := Decode(words)
		if err != nil {
			return
		}
		first := Encode(cmds...)
		again, n, err := Decode(first)
		if err != nil {
			t.Fatalf("re-decode error = %v", err)
		}
		if n != len(first) {
			t.Fatalf("re-decode consumed %d of %d words", n, len(first))
		}
		if second := Encode(again...); !slices.Equal(first, second) {
			t.Fatalf("encoding not stable:\n%v\n%v", first, second)
		}
	})
}
