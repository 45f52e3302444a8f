package matsys

import (
	"github.com/gogpu/matsys/pushbuf"
	"github.com/gogpu/matsys/shadercache"
)

// Option configures a System during creation.
//
// Example:
//
//	sys, err := matsys.New(halDevice, os.DirFS("game"),
//	    matsys.WithAsync(true),
//	    matsys.WithQueuedLoads(4),
//	)
type Option func(*options)

// options holds optional configuration for System creation.
type options struct {
	async       bool
	loadWorkers int
	watchDirs   []string
	pushbuf     []pushbuf.Option
	shaders     []shadercache.Option
}

// defaultOptions returns the default system options: synchronous
// replay, synchronous shader loads, no hot reload.
func defaultOptions() options {
	return options{}
}

// WithAsync selects whether Start launches the push-buffer worker. When
// false every device call is replayed immediately on the caller.
func WithAsync(enabled bool) Option {
	return func(o *options) {
		o.async = enabled
	}
}

// WithQueuedLoads reads shader combos through a pool of n loader
// goroutines. Completed loads are applied by EndFrame. n <= 0 keeps
// loads synchronous.
func WithQueuedLoads(n int) Option {
	return func(o *options) {
		o.loadWorkers = n
	}
}

// WithShaderWatch watches the given OS directories and hot-reloads
// changed shaders at the end of the next frame.
func WithShaderWatch(dirs ...string) Option {
	return func(o *options) {
		o.watchDirs = append(o.watchDirs, dirs...)
	}
}

// WithPushBufferOptions passes options through to the push-buffer engine.
func WithPushBufferOptions(opts ...pushbuf.Option) Option {
	return func(o *options) {
		o.pushbuf = append(o.pushbuf, opts...)
	}
}

// WithShaderCacheOptions passes options through to the shader cache.
func WithShaderCacheOptions(opts ...shadercache.Option) Option {
	return func(o *options) {
		o.shaders = append(o.shaders, opts...)
	}
}
