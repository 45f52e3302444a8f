package shadercache

import (
	"runtime"
	"time"
)

// Option configures a Cache.
type Option func(*options)

type options struct {
	createOnDemand bool
	compiler       Compiler
	compileRetries int
	retryPause     time.Duration
	crc            CRCProvider
	loader         QueuedLoader
	fileCacheSize  int
	fallbackVertex ShaderID
	fallbackPixel  ShaderID
	preloadWorkers int
}

func defaultOptions() options {
	return options{
		compileRetries: 3,
		retryPause:     500 * time.Millisecond,
		fileCacheSize:  256,
		preloadWorkers: runtime.GOMAXPROCS(0),
	}
}

// WithCreateOnDemand defers shader creation to the first Bind of each
// dynamic combo and keeps the microcode until FlushShaders.
func WithCreateOnDemand() Option {
	return func(o *options) {
		o.createOnDemand = true
	}
}

// WithDynamicCompile enables compiling combos from source when the cache
// file is missing or stale.
func WithDynamicCompile(c Compiler) Option {
	return func(o *options) {
		o.compiler = c
	}
}

// WithCompileRetry bounds the dynamic compile loop to retries extra
// attempts with pause between them.
func WithCompileRetry(retries int, pause time.Duration) Option {
	return func(o *options) {
		o.compileRetries = max(retries, 0)
		o.retryPause = pause
	}
}

// WithSourceCRC checks every file's SourceCRC32 against p.
func WithSourceCRC(p CRCProvider) Option {
	return func(o *options) {
		o.crc = p
	}
}

// WithQueuedLoader moves combo block reads to l.
func WithQueuedLoader(l QueuedLoader) Option {
	return func(o *options) {
		o.loader = l
	}
}

// WithFileCacheSize sets the soft limit on cached file directories.
// 0 means unlimited.
func WithFileCacheSize(n int) Option {
	return func(o *options) {
		o.fileCacheSize = n
	}
}

// WithFallbackShaders sets the shaders returned for combos that cannot
// be bound, typically an "illegal material" pair.
func WithFallbackShaders(vertex, pixel ShaderID) Option {
	return func(o *options) {
		o.fallbackVertex = vertex
		o.fallbackPixel = pixel
	}
}

// WithPreloadWorkers bounds the goroutines Preload decodes on.
func WithPreloadWorkers(n int) Option {
	return func(o *options) {
		o.preloadWorkers = max(n, 1)
	}
}
