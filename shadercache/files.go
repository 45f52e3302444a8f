package shadercache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/matsys/vcs"
)

// fileKey identifies one combo cache file.
type fileKey struct {
	name  string
	stage gputypes.ShaderStage
}

func (k fileKey) String() string {
	return k.stage.String() + "/" + k.name
}

// shaderFile is a loaded file directory.
type shaderFile struct {
	path  string
	isAsm bool
	dir   *vcs.Directory
	io    vcs.IOConstraints
}

type searchPath struct {
	path  string
	isAsm bool
}

// searchPaths lists the candidate files of a shader in search order.
func searchPaths(name string, stage gputypes.ShaderStage) []searchPath {
	asmDir := "vsh"
	if stage == gputypes.ShaderStageFragment {
		asmDir = "psh"
	}
	return []searchPath{
		{path.Join("shaders", asmDir, name+".vcs"), true},
		{path.Join("shaders", "fxc", name+".vcs"), false},
	}
}

func validStage(stage gputypes.ShaderStage) error {
	if stage != gputypes.ShaderStageVertex && stage != gputypes.ShaderStageFragment {
		return fmt.Errorf("%w: %v", ErrInvalidStage, stage)
	}
	return nil
}

// file returns the directory of a shader file, reading it on first use.
// Concurrent first uses of the same file share one read.
func (c *Cache) file(key fileKey) (*shaderFile, error) {
	if f, ok := c.files.Get(key); ok {
		return f, nil
	}
	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		f, err := c.readFile(key)
		if err != nil {
			return nil, err
		}
		c.files.Set(key, f)
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*shaderFile), nil
}

func (c *Cache) readFile(key fileKey) (*shaderFile, error) {
	for _, sp := range searchPaths(key.name, key.stage) {
		r, closer, err := openReaderAt(c.fsys, sp.path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("shadercache: open %s: %w", sp.path, err)
		}
		dir, err := vcs.ReadDirectory(r)
		closer.Close()
		if err != nil {
			return nil, fmt.Errorf("shadercache: %s: %w", sp.path, err)
		}

		f := &shaderFile{path: sp.path, isAsm: sp.isAsm, dir: dir}
		if o, ok := c.fsys.(OptimalIO); ok {
			f.io = o.IOConstraints(sp.path)
		}
		slogger().Debug("shadercache: file loaded",
			"path", sp.path,
			"version", dir.Header.Version,
			"dynamic_combos", dir.Header.DynamicCombos,
		)
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrShaderNotFound, key)
}

// openReaderAt opens name for random access. Files that do not support
// ReadAt are read into memory.
func openReaderAt(fsys fs.FS, name string) (io.ReaderAt, io.Closer, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, nil, err
	}
	if ra, ok := f.(io.ReaderAt); ok {
		return ra, f, nil
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, nil, err
	}
	return bytes.NewReader(data), io.NopCloser(nil), nil
}
