package shadercache

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/matsys/internal/cache"
	"golang.org/x/sync/singleflight"
)

// Cache maps shader combos to device shaders.
type Cache struct {
	fsys    fs.FS
	factory ShaderFactory
	opts    options

	// ctx bounds dynamic compile retries; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	files *cache.Cache[fileKey, *shaderFile]
	group singleflight.Group

	lookups []*lookup
	index   map[lookupKey]Handle
	free    []Handle
	layouts map[string]ComboLayout

	doneMu    sync.Mutex
	completed []completion

	lookupCount     atomic.Int64
	pendingLoads    atomic.Int64
	vertexCreated   atomic.Uint64
	pixelCreated    atomic.Uint64
	failedLoads     atomic.Uint64
	dynamicCompiles atomic.Uint64
	compileRetries  atomic.Uint64
}

// New creates a cache reading combo cache files from fsys and creating
// shaders with factory.
func New(fsys fs.FS, factory ShaderFactory, opts ...Option) *Cache {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		fsys:    fsys,
		factory: factory,
		opts:    o,
		ctx:     ctx,
		cancel:  cancel,
		files:   cache.New[fileKey, *shaderFile](o.fileCacheSize),
		index:   make(map[lookupKey]Handle),
		layouts: make(map[string]ComboLayout),
	}
	c.files.OnEvict(func(k fileKey, _ *shaderFile) {
		slogger().Debug("shadercache: file directory evicted", "file", k)
	})
	return c
}

// RegisterLayout describes the combo variables of a shader for
// DescribeCombo and for sizing dynamically compiled lookups.
func (c *Cache) RegisterLayout(name string, layout ComboLayout) {
	c.layouts[name] = layout
}

// FindOrCreate returns the lookup of one static combo, registering and
// loading it on first use, and takes a reference on it. Load failures do
// not fail FindOrCreate: they are sticky on the lookup and reported by
// Bind. The error is non-nil only for an invalid stage.
func (c *Cache) FindOrCreate(name string, stage gputypes.ShaderStage, staticCombo uint32) (Handle, error) {
	if err := validStage(stage); err != nil {
		return InvalidHandle, err
	}
	key := lookupKey{name: name, stage: stage, static: staticCombo}
	if h, ok := c.index[key]; ok {
		c.lookups[h].refs++
		return h, nil
	}

	l := &lookup{key: key, refs: 1}
	h := c.insert(l)
	c.load(h, l)
	return h, nil
}

// insert stores l in a free slot.
func (c *Cache) insert(l *lookup) Handle {
	var h Handle
	if n := len(c.free); n > 0 {
		h = c.free[n-1]
		c.free = c.free[:n-1]
		c.lookups[h] = l
	} else {
		h = Handle(len(c.lookups)) // #nosec G115 -- lookup count fits int32
		c.lookups = append(c.lookups, l)
	}
	c.index[l.key] = h
	c.lookupCount.Add(1)
	return h
}

// load starts loading l, through the queued loader when one is set.
func (c *Cache) load(h Handle, l *lookup) {
	var err error
	if c.opts.loader != nil {
		err = c.queue(h, l)
	} else {
		err = c.LoadAndCreateShaders(h)
	}
	if err != nil {
		slogger().Debug("shadercache: lookup registered as failed",
			"shader", l.key.name,
			"static", l.key.static,
			"err", err,
		)
	}
}

func (c *Cache) get(h Handle) (*lookup, error) {
	if h < 0 || int(h) >= len(c.lookups) || c.lookups[h] == nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	return c.lookups[h], nil
}

// Release drops a reference taken by FindOrCreate. Unreferenced lookups
// are destroyed by PurgeUnusedShaders.
func (c *Cache) Release(h Handle) {
	if l, err := c.get(h); err == nil && l.refs > 0 {
		l.refs--
	}
}

// Flags returns the flags of h, or FailedLoad for an invalid handle.
func (c *Cache) Flags(h Handle) LookupFlags {
	l, err := c.get(h)
	if err != nil {
		return FailedLoad
	}
	return l.flags
}

// FileFlags returns the header flags of the file h was loaded from, or 0
// before the load completes and for compiled lookups.
func (c *Cache) FileFlags(h Handle) uint32 {
	l, err := c.get(h)
	if err != nil {
		return 0
	}
	return l.fileFlags
}

// Stage returns the shader stage of h.
func (c *Cache) Stage(h Handle) (gputypes.ShaderStage, error) {
	l, err := c.get(h)
	if err != nil {
		return 0, err
	}
	return l.key.stage, nil
}

// DynamicCombos returns the number of dynamic combos of h.
func (c *Cache) DynamicCombos(h Handle) int {
	l, err := c.get(h)
	if err != nil {
		return 0
	}
	return len(l.shaders)
}

// Bind returns the device shader of one dynamic combo of h, creating it
// on demand. When the combo cannot be bound it returns the fallback
// shader of the stage together with the reason. Failed lookups warn once
// and then fail fast.
func (c *Cache) Bind(h Handle, dynamicCombo int) (ShaderID, error) {
	l, err := c.get(h)
	if err != nil {
		return InvalidShader, err
	}
	fallback := c.fallback(l.key.stage)

	if l.flags&FailedLoad != 0 {
		return fallback, c.failedBind(l, dynamicCombo)
	}
	if l.pending {
		return fallback, ErrLoadPending
	}
	if dynamicCombo < 0 || dynamicCombo >= len(l.shaders) {
		return fallback, fmt.Errorf("%w: %d of %d", ErrDynamicIndex, dynamicCombo, len(l.shaders))
	}
	if id := l.shaders[dynamicCombo]; id != InvalidShader {
		return id, nil
	}

	var code []byte
	if l.flags&DynamicCompile != 0 {
		if code, err = c.compile(l, dynamicCombo); err != nil {
			c.fail(l, err)
			return fallback, c.failedBind(l, dynamicCombo)
		}
	} else if l.code != nil {
		code = l.code[dynamicCombo]
	}
	if code == nil {
		return fallback, fmt.Errorf("%w: %s static %d dynamic %d", ErrComboSkipped, l.key.name, l.key.static, dynamicCombo)
	}

	id, err := c.create(l, dynamicCombo, code)
	if err != nil {
		c.fail(l, err)
		return fallback, c.failedBind(l, dynamicCombo)
	}
	return id, nil
}

// failedBind warns about a failed lookup the first time it is bound and
// returns the bind error.
func (c *Cache) failedBind(l *lookup, dynamicCombo int) error {
	if !l.warned {
		l.warned = true
		slogger().Warn("shadercache: shader combo failed to load, using fallback",
			"shader", l.key.name,
			"stage", l.key.stage,
			"combo", c.DescribeCombo(l.key.name, l.key.static, dynamicCombo),
			"err", l.err,
		)
	}
	return fmt.Errorf("%w: %s static %d: %w", ErrFailedLoad, l.key.name, l.key.static, l.err)
}

func (c *Cache) fallback(stage gputypes.ShaderStage) ShaderID {
	if stage == gputypes.ShaderStageVertex {
		return c.opts.fallbackVertex
	}
	return c.opts.fallbackPixel
}

// PurgeUnusedShaders destroys every lookup without references, drops the
// cached directories of files no remaining lookup reads and returns how
// many lookups were removed.
func (c *Cache) PurgeUnusedShaders() int {
	n := 0
	for h, l := range c.lookups {
		if l == nil || l.refs > 0 {
			continue
		}
		c.remove(Handle(h), l) // #nosec G115 -- lookup count fits int32
		n++
	}
	if n == 0 {
		return 0
	}

	used := make(map[fileKey]bool)
	for _, l := range c.lookups {
		if l != nil {
			used[l.key.file()] = true
		}
	}
	files := 0
	for _, k := range c.files.Keys() {
		if !used[k] && c.files.Delete(k) {
			files++
		}
	}
	slogger().Debug("shadercache: purged unused lookups", "count", n, "files", files)
	return n
}

func (c *Cache) remove(h Handle, l *lookup) {
	c.release(l)
	if l.pending {
		c.pendingLoads.Add(-1)
	}
	c.lookups[h] = nil
	delete(c.index, l.key)
	c.free = append(c.free, h)
	c.lookupCount.Add(-1)
}

// FlushShaders drops the cached file directories and reloads every
// lookup that did not come from the vsh or psh directories and whose
// source changed or that failed. Without a CRCProvider every such lookup
// is reloaded. It returns the number of reloaded lookups.
func (c *Cache) FlushShaders() int {
	c.files.Clear()

	n := 0
	for h, l := range c.lookups {
		if l == nil || l.flags&IsAsm != 0 || !c.stale(l) {
			continue
		}
		c.release(l)
		if l.pending {
			c.pendingLoads.Add(-1)
		}
		l.flags &^= FailedLoad | DynamicCompile
		l.gen++
		l.pending = false
		l.warned = false
		l.err = nil
		c.load(Handle(h), l) // #nosec G115 -- lookup count fits int32
		n++
	}
	slogger().Info("shadercache: shaders flushed", "reloaded", n)
	return n
}

// stale reports whether l has to be reloaded by FlushShaders.
func (c *Cache) stale(l *lookup) bool {
	if c.opts.crc == nil || l.flags&(FailedLoad|DynamicCompile) != 0 {
		return true
	}
	crc, ok := c.opts.crc.SourceCRC(l.key.name)
	return !ok || crc != l.sourceCRC
}

// Stats returns a snapshot of the counters. Safe for concurrent use.
func (c *Cache) Stats() Stats {
	fc := c.files.Stats()
	return Stats{
		Lookups:              int(c.lookupCount.Load()),
		PendingLoads:         int(c.pendingLoads.Load()),
		VertexShadersCreated: c.vertexCreated.Load(),
		PixelShadersCreated:  c.pixelCreated.Load(),
		FailedLoads:          c.failedLoads.Load(),
		DynamicCompiles:      c.dynamicCompiles.Load(),
		CompileRetries:       c.compileRetries.Load(),
		FileCacheEntries:     fc.Len,
		FileCacheHits:        fc.Hits,
		FileCacheMisses:      fc.Misses,
	}
}

// Close destroys every device shader, cancels running compile retries
// and forgets all lookups. Handles become invalid.
func (c *Cache) Close() {
	c.cancel()
	for h, l := range c.lookups {
		if l != nil {
			c.remove(Handle(h), l) // #nosec G115 -- lookup count fits int32
		}
	}
	c.lookups = nil
	c.free = nil
	c.files.Clear()
}
