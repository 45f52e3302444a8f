package shadercache

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/matsys/vcs"
)

// =============================================================================
// Preload
// =============================================================================

func TestPreload(t *testing.T) {
	fsys := mapFS(map[string][]byte{
		"shaders/fxc/a.vcs": buildFile(t, fileSpec{version: vcs.Version6, dynamic: 4, statics: []uint32{0, 1, 2, 3}, compression: vcs.CompressLZMA}),
		"shaders/psh/b.vcs": buildFile(t, fileSpec{version: vcs.Version4, dynamic: 4, statics: []uint32{0, 1}}),
	})
	f := newFakeFactory()
	c := New(fsys, f, WithPreloadWorkers(3))
	defer c.Close()

	existing, _ := c.FindOrCreate("a", pixel, 0)
	reqs := []Request{
		{"a", pixel, 0},
		{"a", pixel, 1},
		{"a", pixel, 2},
		{"a", pixel, 3},
		{"b", pixel, 1},
		{"missing", pixel, 0},
		{"a", gputypes.ShaderStageCompute, 0},
	}
	handles, err := c.Preload(context.Background(), reqs)
	if !errors.Is(err, ErrShaderNotFound) || !errors.Is(err, ErrInvalidStage) {
		t.Errorf("Preload() error = %v, want ErrShaderNotFound and ErrInvalidStage", err)
	}
	if len(handles) != len(reqs) {
		t.Fatalf("Preload() returned %d handles, want %d", len(handles), len(reqs))
	}
	if handles[0] != existing {
		t.Errorf("handles[0] = %d, want existing %d", handles[0], existing)
	}
	for i, r := range reqs[:5] {
		if got := c.Flags(handles[i]); got&FailedLoad != 0 {
			t.Fatalf("Flags(%s/%d) = %v", r.Name, r.StaticCombo, got)
		}
		mustBind(t, c, f, handles[i], r.StaticCombo, 3)
	}
	if got := c.Flags(handles[4]); got != IsAsm {
		t.Errorf("Flags(b) = %v, want IsAsm", got)
	}
	if got := c.Flags(handles[5]); got&FailedLoad == 0 {
		t.Errorf("Flags(missing) = %v, want FailedLoad", got)
	}
	if handles[6] != InvalidHandle {
		t.Errorf("handles[6] = %d, want InvalidHandle", handles[6])
	}
}

func TestPreload_Cancelled(t *testing.T) {
	fsys := mapFS(map[string][]byte{"shaders/fxc/a.vcs": v5File(t, 0, 1)})
	c := New(fsys, newFakeFactory())
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	handles, err := c.Preload(ctx, []Request{{"a", pixel, 0}, {"a", pixel, 1}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Preload() error = %v, want context.Canceled", err)
	}
	for i, h := range handles {
		if h != InvalidHandle {
			t.Errorf("handles[%d] = %d, want InvalidHandle", i, h)
		}
	}
	if got := c.Stats().Lookups; got != 0 {
		t.Errorf("Stats().Lookups = %d, want 0", got)
	}
}
