package shadercache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_FlushIfChanged(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	c := New(mapFS(nil), newFakeFactory())
	defer c.Close()
	c.FindOrCreate("s", pixel, 0)

	if n := c.FlushIfChanged(w); n != 0 {
		t.Fatalf("FlushIfChanged() without events = %d, want 0", n)
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "s.vcs"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for w.Events() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no watcher event for s.vcs")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := c.FlushIfChanged(w); n != 1 {
		t.Errorf("FlushIfChanged() = %d, want 1", n)
	}
}

func TestNewWatcher_MissingDir(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("NewWatcher(absent) error = nil")
	}
}
