package pushbuf

import "time"

// Option configures an AsyncDevice.
type Option func(*options)

type options struct {
	bufferCount        int
	bufferWords        int
	queueCapacity      int
	rememberedCapacity int
	buffered           bool
	spinLimit          int
	idleSleep          time.Duration
}

func defaultOptions() options {
	return options{
		bufferCount:        64,
		bufferWords:        BufferWords,
		rememberedCapacity: DefaultRememberedCapacity,
		spinLimit:          2000,
		idleSleep:          50 * time.Microsecond,
	}
}

// WithBufferCount sets the number of push buffers in the pool (minimum 2).
func WithBufferCount(n int) Option {
	return func(o *options) {
		o.bufferCount = max(n, 2)
	}
}

// WithBufferWords sets the capacity of each push buffer in words.
func WithBufferWords(n int) Option {
	return func(o *options) {
		o.bufferWords = max(n, 64)
	}
}

// WithQueueCapacity sets the work queue capacity. The default equals the
// buffer count, which means Enqueue never waits.
func WithQueueCapacity(n int) Option {
	return func(o *options) {
		o.queueCapacity = n
	}
}

// WithRememberedCapacity bounds the number of in-flight async locks.
func WithRememberedCapacity(n int) Option {
	return func(o *options) {
		o.rememberedCapacity = n
	}
}

// WithBufferedCalls disables the worker goroutine. Submitted buffers are
// replayed on the producer by ExecuteAllWork, typically once per frame.
func WithBufferedCalls() Option {
	return func(o *options) {
		o.buffered = true
	}
}

// WithIdlePolicy sets how the worker waits on an empty queue: it yields
// spin times, then sleeps for sleep between polls until work arrives.
func WithIdlePolicy(spin int, sleep time.Duration) Option {
	return func(o *options) {
		o.spinLimit = spin
		o.idleSleep = sleep
	}
}
