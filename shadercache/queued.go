package shadercache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/gogpu/matsys/internal/parallel"
)

// LoadRequest is one aligned file read.
type LoadRequest struct {
	Path   string
	Offset int64
	Length int64
}

// QueuedLoader reads files asynchronously. done may run on any
// goroutine; data may be shorter than Length at end of file.
type QueuedLoader interface {
	Load(req LoadRequest, done func(data []byte, err error))
}

// completion is a decoded queued load waiting for the owning goroutine.
type completion struct {
	handle Handle
	gen    uint32
	result *decoded
	err    error
}

// queue issues the read of l's block to the queued loader. The plan is
// made on the calling goroutine; the callback only decodes.
func (c *Cache) queue(h Handle, l *lookup) error {
	p, err := c.plan(l.key)
	if err != nil {
		return c.planFailed(l, err)
	}
	l.flags = l.flags&^IsAsm | asmFlag(p.file)
	l.pending = true
	c.pendingLoads.Add(1)

	gen := l.gen
	if p.empty {
		d, err := p.decode(nil)
		c.complete(completion{handle: h, gen: gen, result: d, err: err})
		return nil
	}
	c.opts.loader.Load(p.request(), func(data []byte, err error) {
		var d *decoded
		if err == nil {
			d, err = p.decode(data)
		} else {
			err = fmt.Errorf("shadercache: queued read of %s: %w", p.file.path, err)
		}
		c.complete(completion{handle: h, gen: gen, result: d, err: err})
	})
	return nil
}

func (c *Cache) complete(cm completion) {
	c.doneMu.Lock()
	c.completed = append(c.completed, cm)
	c.doneMu.Unlock()
}

// ProcessCompletedLoads creates the device shaders of finished queued
// loads and returns how many loads it consumed. Call it from the
// goroutine that owns the Cache, typically once per frame.
func (c *Cache) ProcessCompletedLoads() int {
	c.doneMu.Lock()
	done := c.completed
	c.completed = nil
	c.doneMu.Unlock()

	n, failed := 0, 0
	for _, cm := range done {
		l, err := c.get(cm.handle)
		if err != nil || l.gen != cm.gen || !l.pending {
			continue
		}
		l.pending = false
		c.pendingLoads.Add(-1)
		n++
		if cm.err != nil {
			c.fail(l, cm.err)
			failed++
			continue
		}
		if err := c.apply(l, cm.result); err != nil {
			failed++
		}
	}
	if n > 0 {
		slogger().Debug("shadercache: queued loads applied", "loads", n, "failed", failed)
	}
	return n
}

// PoolLoader is a QueuedLoader reading on a fixed goroutine pool.
type PoolLoader struct {
	fsys fs.FS
	pool *parallel.Pool
}

// NewPoolLoader starts a loader with the given number of goroutines;
// 0 means GOMAXPROCS.
func NewPoolLoader(fsys fs.FS, workers int) *PoolLoader {
	return &PoolLoader{
		fsys: fsys,
		pool: parallel.NewPool(workers),
	}
}

// Load queues req. done runs on a pool goroutine, or on the caller when
// the loader is closed.
func (pl *PoolLoader) Load(req LoadRequest, done func(data []byte, err error)) {
	err := pl.pool.Submit(func() {
		done(readRange(pl.fsys, req))
	})
	if err != nil {
		done(nil, err)
	}
}

// Wait blocks until every queued read has called back.
func (pl *PoolLoader) Wait() {
	pl.pool.Wait()
}

// Close finishes the queued reads and stops the pool.
func (pl *PoolLoader) Close() {
	pl.pool.Close()
}

// readRange reads req, accepting a short read at end of file.
func readRange(fsys fs.FS, req LoadRequest) ([]byte, error) {
	r, closer, err := openReaderAt(fsys, req.Path)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	buf := make([]byte, req.Length)
	n, err := r.ReadAt(buf, req.Offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}
