package shadercache

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/matsys/vcs"
)

// lookupKey identifies a lookup: one static combo of one shader.
type lookupKey struct {
	name   string
	stage  gputypes.ShaderStage
	static uint32
}

func (k lookupKey) file() fileKey {
	return fileKey{name: k.name, stage: k.stage}
}

// lookup is the per static combo state. Only the owning goroutine of
// the Cache touches it.
type lookup struct {
	key   lookupKey
	flags LookupFlags
	refs  int

	// gen invalidates queued loads issued before a reload or purge.
	gen     uint32
	pending bool
	warned  bool
	err     error

	centroidMask uint32
	sourceCRC    uint32
	fileFlags    uint32

	// shaders holds the device shader per dynamic index. code holds the
	// creation data of combos not yet created, nil once all are created.
	shaders []ShaderID
	code    [][]byte
}

// loadPlan is the file side of a load: which bytes to read and how to
// decode them. A plan is immutable and safe to decode on any goroutine.
type loadPlan struct {
	key       lookupKey
	file      *shaderFile
	start     int64
	end       int64
	window    vcs.Window
	entries   []vcs.DictionaryEntry
	canonical uint32

	// empty is set for version 4 combos whose dynamic combos are all
	// skipped; nothing is read.
	empty bool
}

// decoded is the microcode of every dynamic combo of one static combo.
type decoded struct {
	code         [][]byte
	centroidMask uint32
	sourceCRC    uint32
	fileFlags    uint32
}

// plan resolves the file and the byte range holding key's block.
func (c *Cache) plan(key lookupKey) (*loadPlan, error) {
	f, err := c.file(key.file())
	if err != nil {
		return nil, err
	}
	h := f.dir.Header
	if c.opts.crc != nil && !f.isAsm {
		if crc, ok := c.opts.crc.SourceCRC(key.name); ok && crc != h.SourceCRC32 {
			return nil, fmt.Errorf("%w: %s has %#08x, source is %#08x", ErrCRCMismatch, f.path, h.SourceCRC32, crc)
		}
	}

	p := &loadPlan{key: key, file: f}
	if h.Legacy() {
		r, closer, err := openReaderAt(c.fsys, f.path)
		if err != nil {
			return nil, fmt.Errorf("shadercache: open %s: %w", f.path, err)
		}
		p.entries, err = f.dir.ReadDictionary(r, key.static)
		closer.Close()
		if err != nil {
			return nil, fmt.Errorf("shadercache: %s: %w", f.path, err)
		}
		p.start, p.end, err = vcs.DictionaryRange(p.entries)
		if errors.Is(err, vcs.ErrAllSkipped) {
			p.empty = true
			return p, nil
		}
		if err != nil {
			return nil, fmt.Errorf("shadercache: %s: %w", f.path, err)
		}
	} else {
		idx := f.dir.FindCombo(key.static)
		if idx < 0 {
			return nil, fmt.Errorf("shadercache: %s: %w: %d", f.path, vcs.ErrComboNotFound, key.static)
		}
		p.canonical = f.dir.Records[idx].ID
		if p.start, p.end, err = f.dir.ComboRange(key.static); err != nil {
			return nil, fmt.Errorf("shadercache: %s: %w", f.path, err)
		}
	}
	p.window = vcs.ReadWindow(p.start, p.end, f.io)
	return p, nil
}

// request returns the read a QueuedLoader has to perform.
func (p *loadPlan) request() LoadRequest {
	return LoadRequest{
		Path:   p.file.path,
		Offset: p.window.Offset,
		Length: p.window.Length,
	}
}

// read performs the plan's aligned read on the calling goroutine.
func (c *Cache) read(p *loadPlan) ([]byte, error) {
	if p.empty {
		return nil, nil
	}
	r, closer, err := openReaderAt(c.fsys, p.file.path)
	if err != nil {
		return nil, fmt.Errorf("shadercache: open %s: %w", p.file.path, err)
	}
	defer closer.Close()

	buf, _, err := vcs.ReadAligned(r, p.start, p.end, p.file.io)
	if err != nil {
		return nil, fmt.Errorf("shadercache: %s: %w", p.file.path, err)
	}
	return buf, nil
}

// decode unpacks the combos from data, the result of the plan's read.
// It touches no device state.
func (p *loadPlan) decode(data []byte) (*decoded, error) {
	dir := p.file.dir
	h := dir.Header
	d := &decoded{
		code:         make([][]byte, h.DynamicCombos),
		centroidMask: h.CentroidMask,
		sourceCRC:    h.SourceCRC32,
		fileFlags:    h.Flags,
	}
	if p.empty {
		return d, nil
	}

	need := int64(p.window.DataOffset) + p.end - p.start
	if int64(len(data)) < need {
		return nil, fmt.Errorf("shadercache: %s: %w: read %d bytes, need %d", p.file.path, vcs.ErrTruncated, len(data), need)
	}

	var err error
	if h.Legacy() {
		err = vcs.DecodeLegacy(data, p.window.DataOffset, p.entries, dir.Reference, func(i int, code []byte) error {
			d.code[i] = bytes.Clone(code)
			return nil
		})
	} else {
		_, err = vcs.DecodeChunks(data[p.window.DataOffset:need], func(id uint32, code []byte) error {
			i, ok := dir.DynamicIndex(id, p.canonical)
			if !ok {
				return fmt.Errorf("%w: combo %d outside static combo %d", vcs.ErrCorruptChunk, id, p.canonical)
			}
			d.code[i] = bytes.Clone(code)
			return nil
		})
	}
	if err != nil {
		return nil, fmt.Errorf("shadercache: %s static %d: %w", p.file.path, p.key.static, err)
	}
	return d, nil
}

// LoadAndCreateShaders loads the combo block of h and, unless
// create-on-demand is enabled, creates every dynamic combo. Failures set
// FailedLoad and are returned. A lookup that already failed returns its
// original error without touching the file again.
func (c *Cache) LoadAndCreateShaders(h Handle) error {
	l, err := c.get(h)
	if err != nil {
		return err
	}
	if l.flags&FailedLoad != 0 {
		return l.err
	}

	p, err := c.plan(l.key)
	if err != nil {
		return c.planFailed(l, err)
	}
	l.flags = l.flags&^IsAsm | asmFlag(p.file)

	data, err := c.read(p)
	if err != nil {
		return c.fail(l, err)
	}
	d, err := p.decode(data)
	if err != nil {
		return c.fail(l, err)
	}
	return c.apply(l, d)
}

// planFailed switches l to dynamic compilation when the error allows it
// and fails l otherwise.
func (c *Cache) planFailed(l *lookup, err error) error {
	if c.opts.compiler != nil && (errors.Is(err, ErrShaderNotFound) || errors.Is(err, ErrCRCMismatch)) {
		if err := c.useCompiler(l, err); err != nil {
			return err
		}
		slogger().Info("shadercache: compiling from source",
			"shader", l.key.name,
			"static", l.key.static,
			"reason", err,
		)
		return nil
	}
	return c.fail(l, err)
}

func asmFlag(f *shaderFile) LookupFlags {
	if f.isAsm {
		return IsAsm
	}
	return 0
}

// apply installs decoded combos into l and creates the device shaders
// unless create-on-demand is enabled.
func (c *Cache) apply(l *lookup, d *decoded) error {
	c.release(l)
	l.centroidMask = d.centroidMask
	l.sourceCRC = d.sourceCRC
	l.fileFlags = d.fileFlags
	l.shaders = make([]ShaderID, len(d.code))
	l.code = d.code
	if c.opts.createOnDemand {
		return nil
	}
	for i, code := range d.code {
		if code == nil {
			continue
		}
		if _, err := c.create(l, i, code); err != nil {
			return c.fail(l, err)
		}
	}
	l.code = nil
	return nil
}

// create makes the device shader of dynamic index i.
func (c *Cache) create(l *lookup, i int, code []byte) (ShaderID, error) {
	id, err := c.factory.CreateShader(l.key.stage, code, l.centroidMask)
	if err == nil && id == InvalidShader {
		err = errors.New("factory returned the invalid shader")
	}
	if err != nil {
		return InvalidShader, fmt.Errorf("shadercache: create %s static %d dynamic %d: %w", l.key.name, l.key.static, i, err)
	}
	l.shaders[i] = id
	if l.key.stage == gputypes.ShaderStageVertex {
		c.vertexCreated.Add(1)
	} else {
		c.pixelCreated.Add(1)
	}
	return id, nil
}

// fail marks l FailedLoad, drops what it created and returns err.
func (c *Cache) fail(l *lookup, err error) error {
	c.release(l)
	l.flags |= FailedLoad
	l.err = err
	c.failedLoads.Add(1)
	slogger().Debug("shadercache: load failed",
		"shader", l.key.name,
		"stage", l.key.stage,
		"static", l.key.static,
		"err", err,
	)
	return err
}

// release destroys the device shaders of l and forgets its microcode.
func (c *Cache) release(l *lookup) {
	for _, id := range l.shaders {
		if id != InvalidShader {
			c.factory.DestroyShader(id)
		}
	}
	l.shaders = nil
	l.code = nil
}

// useCompiler switches l to dynamic compilation. The dynamic combo count
// comes from a registered layout, then from the file if it exists; with
// neither l fails.
func (c *Cache) useCompiler(l *lookup, cause error) error {
	var n int
	if layout, ok := c.layouts[l.key.name]; ok {
		n = layout.DynamicCount()
	} else if f, ok := c.files.Get(l.key.file()); ok {
		n = int(f.dir.Header.DynamicCombos)
	} else {
		return c.fail(l, fmt.Errorf("%w: %s: %w", ErrUnknownCombos, l.key.name, cause))
	}
	c.release(l)
	l.flags |= DynamicCompile
	l.fileFlags = 0
	l.shaders = make([]ShaderID, n)
	return nil
}
