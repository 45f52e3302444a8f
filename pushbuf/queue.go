package pushbuf

import (
	"errors"
	"runtime"
	"sync/atomic"
)

// NoBuffer is returned by Peek when the queue is empty.
const NoBuffer = -1

// ErrQueueFull is returned by TryEnqueue when the ring has no free slot.
var ErrQueueFull = errors.New("pushbuf: work queue full")

// WorkQueue is a single-producer/single-consumer ring of push-buffer
// indices.
//
// The producer owns the write cursor and the added counter, the consumer
// owns the read cursor and the removed counter. The counters are the only
// values shared between the two sides.
type WorkQueue struct {
	slots []int

	added   atomic.Uint64
	removed atomic.Uint64

	writeIdx int // producer only
	readIdx  int // consumer only
}

// NewWorkQueue creates a queue holding at most capacity buffers.
func NewWorkQueue(capacity int) *WorkQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &WorkQueue{slots: make([]int, capacity)}
}

// Cap returns the ring capacity.
func (q *WorkQueue) Cap() int { return len(q.slots) }

// Len returns the number of queued buffers. Read from a goroutine other
// than the producer and consumer it is approximate but within [0, Cap].
func (q *WorkQueue) Len() int {
	// removed first: added never trails a removed value read earlier.
	removed := q.removed.Load()
	n := q.added.Load() - removed
	return int(min(n, uint64(len(q.slots)))) // #nosec G115 -- clamped to Cap
}

// IsEmpty reports whether every enqueued buffer has been marked done.
func (q *WorkQueue) IsEmpty() bool { return q.added.Load() == q.removed.Load() }

// IsFull reports whether the ring has no free slot.
func (q *WorkQueue) IsFull() bool {
	return q.added.Load()-q.removed.Load() == uint64(len(q.slots))
}

// TryEnqueue stores a buffer index at the write cursor. Producer only.
func (q *WorkQueue) TryEnqueue(index int) error {
	if q.IsFull() {
		return ErrQueueFull
	}
	q.slots[q.writeIdx] = index
	q.writeIdx = (q.writeIdx + 1) % len(q.slots)
	// Publishes the slot write to the consumer.
	q.added.Add(1)
	return nil
}

// Enqueue stores a buffer index, yielding until a slot frees up when the
// ring is full. Producer only.
func (q *WorkQueue) Enqueue(index int) {
	for q.TryEnqueue(index) != nil {
		runtime.Gosched()
	}
}

// Peek returns the buffer index at the read cursor without removing it,
// or NoBuffer when empty. Consumer only.
func (q *WorkQueue) Peek() int {
	if q.IsEmpty() {
		return NoBuffer
	}
	return q.slots[q.readIdx]
}

// MarkDone removes the buffer returned by the last Peek. Consumer only.
// Calling MarkDone on an empty queue panics.
func (q *WorkQueue) MarkDone() {
	if q.IsEmpty() {
		panic("pushbuf: MarkDone on empty work queue")
	}
	q.readIdx = (q.readIdx + 1) % len(q.slots)
	q.removed.Add(1)
}
