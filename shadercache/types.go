package shadercache

import (
	"context"
	"errors"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/matsys/vcs"
)

// ShaderID is a device shader object.
type ShaderID uint32

// InvalidShader is the null shader.
const InvalidShader ShaderID = 0

// Handle identifies a lookup in a Cache.
type Handle int32

// InvalidHandle is never returned for a registered lookup.
const InvalidHandle Handle = -1

// LookupFlags describe the state of a lookup.
type LookupFlags uint32

const (
	// FailedLoad is sticky: binds short-circuit to the fallback shader
	// until FlushShaders resets the lookup.
	FailedLoad LookupFlags = 1 << iota

	// IsAsm marks lookups loaded from the vsh or psh directories.
	IsAsm

	// DynamicCompile marks lookups whose combos come from the Compiler.
	DynamicCompile
)

var flagNames = [...]string{"FailedLoad", "IsAsm", "DynamicCompile"}

// String returns the set flags joined by "|", or "0".
func (f LookupFlags) String() string {
	if f == 0 {
		return "0"
	}
	var names []string
	for i, name := range flagNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

// Errors returned by the cache.
var (
	// ErrInvalidStage is returned for stages other than vertex and fragment.
	ErrInvalidStage = errors.New("shadercache: stage must be vertex or fragment")

	// ErrInvalidHandle is returned for handles that name no lookup.
	ErrInvalidHandle = errors.New("shadercache: invalid handle")

	// ErrShaderNotFound is returned when no combo cache file exists.
	ErrShaderNotFound = errors.New("shadercache: shader file not found")

	// ErrFailedLoad is returned by Bind for lookups flagged FailedLoad.
	ErrFailedLoad = errors.New("shadercache: shader failed to load")

	// ErrLoadPending is returned by Bind while a queued load is in flight.
	ErrLoadPending = errors.New("shadercache: load pending")

	// ErrComboSkipped is returned by Bind for dynamic combos the file
	// does not contain.
	ErrComboSkipped = errors.New("shadercache: dynamic combo skipped")

	// ErrDynamicIndex is returned by Bind for out of range dynamic indices.
	ErrDynamicIndex = errors.New("shadercache: dynamic index out of range")

	// ErrCRCMismatch is returned when a file was built from different
	// source than the CRCProvider reports.
	ErrCRCMismatch = errors.New("shadercache: source CRC mismatch")

	// ErrUnknownCombos is returned when a shader has to be compiled but
	// neither a file header nor a registered layout gives its dynamic
	// combo count.
	ErrUnknownCombos = errors.New("shadercache: dynamic combo count unknown")
)

// ShaderFactory creates device shader objects from microcode.
type ShaderFactory interface {
	CreateShader(stage gputypes.ShaderStage, code []byte, centroidMask uint32) (ShaderID, error)
	DestroyShader(id ShaderID)
}

// CRCProvider reports the CRC-32 of a shader's current source. ok is
// false when the source is unknown, which skips the check.
type CRCProvider interface {
	SourceCRC(name string) (crc uint32, ok bool)
}

// CRCFunc adapts a function to CRCProvider.
type CRCFunc func(name string) (uint32, bool)

// SourceCRC calls f.
func (f CRCFunc) SourceCRC(name string) (uint32, bool) { return f(name) }

// CompileRequest names one combo to compile.
type CompileRequest struct {
	Name         string
	Stage        gputypes.ShaderStage
	StaticCombo  uint32
	DynamicCombo int
}

// Compiler builds the microcode of one combo from source.
type Compiler interface {
	Compile(ctx context.Context, req CompileRequest) ([]byte, error)
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc func(ctx context.Context, req CompileRequest) ([]byte, error)

// Compile calls f.
func (f CompilerFunc) Compile(ctx context.Context, req CompileRequest) ([]byte, error) {
	return f(ctx, req)
}

// OptimalIO is implemented by file systems that prefer aligned reads.
type OptimalIO interface {
	IOConstraints(path string) vcs.IOConstraints
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Lookups              int
	PendingLoads         int
	VertexShadersCreated uint64
	PixelShadersCreated  uint64
	FailedLoads          uint64
	DynamicCompiles      uint64
	CompileRetries       uint64
	FileCacheEntries     int
	FileCacheHits        uint64
	FileCacheMisses      uint64
}
