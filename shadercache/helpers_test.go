package shadercache

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/matsys/vcs"
)

const (
	vertex = gputypes.ShaderStageVertex
	pixel  = gputypes.ShaderStageFragment
)

// comboCode is the microcode stored for one combo. Combos of a shader
// share most bytes so version 4 patches stay small.
func comboCode(static uint32, dynamic int) []byte {
	return bytes.Repeat(fmt.Appendf(nil, "s%03d:d%03d;", static, dynamic), 8+dynamic%5)
}

type fileSpec struct {
	version     int32
	dynamic     int32
	statics     []uint32
	aliases     map[uint32]uint32
	skip        func(static uint32, dynamic int) bool
	compression vcs.Compression
	crc         uint32
	mask        uint32
	flags       uint32
}

// buildFile encodes a combo cache file whose combos hold comboCode.
func buildFile(t *testing.T, spec fileSpec) []byte {
	t.Helper()
	w, err := vcs.NewWriter(spec.version, spec.dynamic)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	w.Compression = spec.compression
	w.SourceCRC32 = spec.crc
	w.CentroidMask = spec.mask
	w.Flags = spec.flags
	for _, s := range spec.statics {
		combos := make([][]byte, spec.dynamic)
		for d := range combos {
			if spec.skip != nil && spec.skip(s, d) {
				continue
			}
			combos[d] = comboCode(s, d)
		}
		if err := w.Add(s, combos); err != nil {
			t.Fatalf("Add(%d) error = %v", s, err)
		}
	}
	for id, src := range spec.aliases {
		if err := w.Alias(id, src); err != nil {
			t.Fatalf("Alias(%d, %d) error = %v", id, src, err)
		}
	}
	b, err := w.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	return b
}

func v5File(t *testing.T, statics ...uint32) []byte {
	t.Helper()
	return buildFile(t, fileSpec{version: vcs.Version5, dynamic: 4, statics: statics})
}

func mapFS(files map[string][]byte) fstest.MapFS {
	m := fstest.MapFS{}
	for name, data := range files {
		m[name] = &fstest.MapFile{Data: data}
	}
	return m
}

// fakeFactory records created shaders.
type fakeFactory struct {
	mu        sync.Mutex
	next      ShaderID
	code      map[ShaderID][]byte
	masks     map[ShaderID]uint32
	destroyed []ShaderID
	creates   int
	fail      func(code []byte) bool
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		next:  100,
		code:  make(map[ShaderID][]byte),
		masks: make(map[ShaderID]uint32),
	}
}

func (f *fakeFactory) CreateShader(_ gputypes.ShaderStage, code []byte, mask uint32) (ShaderID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.creates++
	if f.fail != nil && f.fail(code) {
		return InvalidShader, errors.New("driver rejected shader")
	}
	f.next++
	f.code[f.next] = bytes.Clone(code)
	f.masks[f.next] = mask
	return f.next, nil
}

func (f *fakeFactory) DestroyShader(id ShaderID) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.code, id)
	f.destroyed = append(f.destroyed, id)
}

func (f *fakeFactory) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.code)
}

func (f *fakeFactory) codeOf(id ShaderID) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.code[id]
}

func (f *fakeFactory) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.creates
}

// mustBind binds a combo and checks the shader holds its microcode.
func mustBind(t *testing.T, c *Cache, f *fakeFactory, h Handle, static uint32, dynamic int) ShaderID {
	t.Helper()
	id, err := c.Bind(h, dynamic)
	if err != nil {
		t.Fatalf("Bind(%d, %d) error = %v", h, dynamic, err)
	}
	if got, want := f.codeOf(id), comboCode(static, dynamic); !bytes.Equal(got, want) {
		t.Fatalf("Bind(%d, %d) shader code = %q, want %q", h, dynamic, got, want)
	}
	return id
}

// captureWarnings routes the package logger into a buffer for the test.
func captureWarnings(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	SetLogger(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	t.Cleanup(func() { SetLogger(nil) })
	return buf
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

// sectorFS reports sector aligned I/O constraints.
type sectorFS struct {
	fstest.MapFS
}

func (sectorFS) IOConstraints(string) vcs.IOConstraints {
	return vcs.IOConstraints{OffsetAlign: 512, SizeAlign: 512}
}

// streamFS hides ReadAt from opened files.
type streamFS struct {
	fsys fs.FS
}

type streamFile struct {
	fs.File
}

func (s streamFS) Open(name string) (fs.File, error) {
	f, err := s.fsys.Open(name)
	if err != nil {
		return nil, err
	}
	return streamFile{f}, nil
}
