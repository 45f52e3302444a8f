package shadercache

import (
	"context"
	"errors"

	"github.com/gogpu/gputypes"
	"golang.org/x/sync/errgroup"
)

// Request names one static combo to preload.
type Request struct {
	Name        string
	Stage       gputypes.ShaderStage
	StaticCombo uint32
}

type preloadJob struct {
	handle Handle
	plan   *loadPlan
	result *decoded
	err    error
}

// Preload registers every request like FindOrCreate, reading and
// decoding the new lookups in parallel. Device shaders are created on
// the calling goroutine afterwards. The returned handles match reqs and
// carry a reference each. The error joins the load failures; those
// lookups are flagged FailedLoad like any other. Requests that had not
// started when ctx was cancelled get InvalidHandle.
func (c *Cache) Preload(ctx context.Context, reqs []Request) ([]Handle, error) {
	handles := make([]Handle, len(reqs))
	var jobs []*preloadJob
	var errs []error

	for i, r := range reqs {
		if err := validStage(r.Stage); err != nil {
			handles[i] = InvalidHandle
			errs = append(errs, err)
			continue
		}
		key := lookupKey{name: r.Name, stage: r.Stage, static: r.StaticCombo}
		if h, ok := c.index[key]; ok {
			c.lookups[h].refs++
			handles[i] = h
			continue
		}
		h := c.insert(&lookup{key: key, refs: 1})
		handles[i] = h
		jobs = append(jobs, &preloadJob{handle: h})
	}

	var g errgroup.Group
	g.SetLimit(c.opts.preloadWorkers)
	for _, j := range jobs {
		key := c.lookups[j.handle].key
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			j.plan, j.err = c.plan(key)
			if j.err != nil {
				return nil
			}
			var data []byte
			if data, j.err = c.read(j.plan); j.err == nil {
				j.result, j.err = j.plan.decode(data)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	for _, j := range jobs {
		l := c.lookups[j.handle]
		switch {
		case j.plan == nil && j.err == nil:
			// Cancelled before it ran.
			c.remove(j.handle, l)
			for k, h := range handles {
				if h == j.handle {
					handles[k] = InvalidHandle
				}
			}
		case j.plan == nil:
			if err := c.planFailed(l, j.err); err != nil {
				errs = append(errs, err)
			}
		case j.err != nil:
			errs = append(errs, c.fail(l, j.err))
		default:
			l.flags |= asmFlag(j.plan.file)
			if err := c.apply(l, j.result); err != nil {
				errs = append(errs, err)
			}
		}
	}
	slogger().Debug("shadercache: preloaded", "requests", len(reqs), "loaded", len(jobs), "failed", len(errs))
	return handles, errors.Join(errs...)
}
