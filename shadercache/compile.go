package shadercache

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gogpu/naga"
)

// compile builds one combo of a dynamically compiled lookup. Failures
// are retried after a pause so shader source can be fixed while the
// program runs; the loop ends after the configured retries or on Close.
func (c *Cache) compile(l *lookup, dynamicCombo int) ([]byte, error) {
	req := CompileRequest{
		Name:         l.key.name,
		Stage:        l.key.stage,
		StaticCombo:  l.key.static,
		DynamicCombo: dynamicCombo,
	}

	var code []byte
	op := func() error {
		var err error
		code, err = c.opts.compiler.Compile(c.ctx, req)
		return err
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.retryPause), uint64(c.opts.compileRetries)), // #nosec G115 -- retries is non-negative
		c.ctx,
	)
	notify := func(err error, pause time.Duration) {
		c.compileRetries.Add(1)
		slogger().Warn("shadercache: shader compile failed, pausing and attempting rebuild",
			"shader", req.Name,
			"stage", req.Stage,
			"combo", c.DescribeCombo(req.Name, req.StaticCombo, dynamicCombo),
			"pause", pause,
			"err", err,
		)
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, fmt.Errorf("shadercache: compile %s static %d dynamic %d: %w", req.Name, req.StaticCombo, dynamicCombo, err)
	}
	c.dynamicCompiles.Add(1)
	return code, nil
}

// NagaCompiler compiles WGSL shader source to SPIR-V.
//
// The source of shader name is read from Dir/<name>.wgsl. The combo being
// built is visible to the source as the module constants STATIC_COMBO
// and DYNAMIC_COMBO.
type NagaCompiler struct {
	FS      fs.FS
	Dir     string
	Options naga.CompileOptions
}

// NewNagaCompiler returns a compiler reading shaders/wgsl in fsys with
// naga's default options.
func NewNagaCompiler(fsys fs.FS) *NagaCompiler {
	return &NagaCompiler{
		FS:      fsys,
		Dir:     "shaders/wgsl",
		Options: naga.DefaultOptions(),
	}
}

// SourcePath returns the path of the WGSL source of name.
func (n *NagaCompiler) SourcePath(name string) string {
	return path.Join(n.Dir, name+".wgsl")
}

// Compile implements Compiler.
func (n *NagaCompiler) Compile(ctx context.Context, req CompileRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := fs.ReadFile(n.FS, n.SourcePath(req.Name))
	if err != nil {
		return nil, fmt.Errorf("shadercache: read source: %w", err)
	}
	prelude := fmt.Sprintf("const STATIC_COMBO: u32 = %du;\nconst DYNAMIC_COMBO: u32 = %du;\n", req.StaticCombo, req.DynamicCombo)
	spirv, err := naga.CompileWithOptions(prelude+string(src), n.Options)
	if err != nil {
		return nil, fmt.Errorf("shadercache: naga: %w", err)
	}
	return spirv, nil
}
