package pushbuf

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// run is the worker loop: peek, replay, mark done. It polls instead of
// blocking; after spinLimit empty polls it sleeps between polls. On
// cancellation the worker drains the queue and exits.
func (a *AsyncDevice) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	slogger().Debug("pushbuf: worker started")
	idle := 0
	for {
		idx := a.queue.Peek()
		if idx == NoBuffer {
			if ctx.Err() != nil {
				slogger().Debug("pushbuf: worker stopped", "reason", context.Cause(ctx))
				return
			}
			idle++
			if idle < a.opts.spinLimit {
				runtime.Gosched()
			} else {
				time.Sleep(a.opts.idleSleep)
			}
			continue
		}
		idle = 0
		a.executeBuffer(idx)
	}
}

// executeBuffer replays one submitted buffer and returns it to the pool.
// A malformed buffer is a programming error.
func (a *AsyncDevice) executeBuffer(idx int) {
	b := a.pool[idx]
	if _, err := a.interp.Execute(b.words); err != nil {
		panic(fmt.Errorf("pushbuf: corrupt push buffer %d: %w", idx, err))
	}
	b.setState(StateAvailable)
	a.queue.MarkDone()
}
