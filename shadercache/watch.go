package shadercache

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Watcher notices changes to shader files on disk.
//
// Run consumes file system events on its own goroutine and only records
// that something changed; the owner of the Cache polls with
// FlushIfChanged.
type Watcher struct {
	w       *fsnotify.Watcher
	exts    []string
	changed atomic.Bool
	events  atomic.Uint64
}

// NewWatcher watches dirs for changes to .vcs and .wgsl files.
func NewWatcher(dirs ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("shadercache: watcher: %w", err)
	}
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			w.Close()
			return nil, fmt.Errorf("shadercache: watch %s: %w", d, err)
		}
	}
	return &Watcher{w: w, exts: []string{".vcs", ".wgsl"}}, nil
}

// Run records events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			if !slices.Contains(w.exts, filepath.Ext(ev.Name)) {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.events.Add(1)
				w.changed.Store(true)
				slogger().Debug("shadercache: shader file changed", "path", ev.Name, "op", ev.Op)
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			slogger().Warn("shadercache: watcher error", "err", err)
		}
	}
}

// Changed reports whether a watched file changed since the last call.
func (w *Watcher) Changed() bool {
	return w.changed.Swap(false)
}

// Events returns the number of relevant events seen.
func (w *Watcher) Events() uint64 {
	return w.events.Load()
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.w.Close()
}

// FlushIfChanged calls FlushShaders when w saw a change and returns the
// number of reloaded lookups.
func (c *Cache) FlushIfChanged(w *Watcher) int {
	if !w.Changed() {
		return 0
	}
	return c.FlushShaders()
}
