package parallel

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("parallel: pool closed")

// Pool runs jobs on a fixed set of goroutines.
//
// Pool is safe for concurrent use.
type Pool struct {
	queues []chan func()
	done   chan struct{}

	// workers waits for the worker goroutines, jobs for submitted jobs.
	workers sync.WaitGroup
	jobs    sync.WaitGroup

	running atomic.Bool
}

// NewPool starts a pool of n workers. If n is 0 or negative, GOMAXPROCS
// is used. Each worker queues up to 4*n jobs, at least 8.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	queueSize := max(n*4, 8)

	p := &Pool{
		queues: make([]chan func(), n),
		done:   make(chan struct{}),
	}
	for i := range n {
		p.queues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.workers.Add(n)
	for i := range n {
		go p.work(i)
	}
	return p
}

func (p *Pool) work(id int) {
	defer p.workers.Done()

	own := p.queues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case job := <-own:
			job()
			continue
		default:
		}

		if job := p.steal(id); job != nil {
			job()
			continue
		}

		select {
		case <-p.done:
			p.drain(own)
			return
		case job := <-own:
			job()
		}
	}
}

// drain runs the jobs left in queue.
func (p *Pool) drain(queue chan func()) {
	for {
		select {
		case job := <-queue:
			job()
		default:
			return
		}
	}
}

// steal takes one job from another worker's queue, or returns nil.
func (p *Pool) steal(id int) func() {
	for i, q := range p.queues {
		if i == id {
			continue
		}
		select {
		case job := <-q:
			return job
		default:
		}
	}
	return nil
}

// Submit queues job on the worker with the shortest queue. It blocks
// while every queue is full and returns ErrClosed once the pool is
// closing.
func (p *Pool) Submit(job func()) error {
	if job == nil {
		return nil
	}
	if !p.running.Load() {
		return ErrClosed
	}

	target := 0
	for i := 1; i < len(p.queues); i++ {
		if len(p.queues[i]) < len(p.queues[target]) {
			target = i
		}
	}

	p.jobs.Add(1)
	wrapped := func() {
		defer p.jobs.Done()
		job()
	}
	select {
	case p.queues[target] <- wrapped:
		return nil
	case <-p.done:
		p.jobs.Done()
		return ErrClosed
	}
}

// Wait blocks until every submitted job has run.
func (p *Pool) Wait() {
	p.jobs.Wait()
}

// Close stops accepting jobs, runs the queued ones and stops the
// workers. Close is safe to call multiple times.
func (p *Pool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.workers.Wait()

	// Jobs that raced with close(p.done) may sit in a queue whose worker
	// has already exited.
	for _, q := range p.queues {
		p.drain(q)
	}
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return len(p.queues)
}

// Queued returns the approximate number of jobs waiting in the queues.
func (p *Pool) Queued() int {
	total := 0
	for _, q := range p.queues {
		total += len(q)
	}
	return total
}
