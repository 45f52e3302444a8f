package pushbuf

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

// ===== Single goroutine =====

func checkQueue(t *testing.T, q *WorkQueue, wantLen int) {
	t.Helper()
	if got := q.Len(); got != wantLen {
		t.Errorf("Len() = %d, want %d", got, wantLen)
	}
	if got := q.IsEmpty(); got != (wantLen == 0) {
		t.Errorf("IsEmpty() = %v, want %v", got, wantLen == 0)
	}
	if got := q.IsFull(); got != (wantLen == q.Cap()) {
		t.Errorf("IsFull() = %v, want %v", got, wantLen == q.Cap())
	}
}

func TestWorkQueue_EmptyAndFull(t *testing.T) {
	q := NewWorkQueue(3)
	checkQueue(t, q, 0)
	if got := q.Peek(); got != NoBuffer {
		t.Errorf("Peek() on empty = %d, want %d", got, NoBuffer)
	}

	for i := range 3 {
		if err := q.TryEnqueue(i + 10); err != nil {
			t.Fatalf("TryEnqueue(%d) error = %v", i+10, err)
		}
		checkQueue(t, q, i+1)
	}
	if err := q.TryEnqueue(99); !errors.Is(err, ErrQueueFull) {
		t.Errorf("TryEnqueue() on full = %v, want %v", err, ErrQueueFull)
	}

	for i := range 3 {
		if got := q.Peek(); got != i+10 {
			t.Errorf("Peek() = %d, want %d", got, i+10)
		}
		q.MarkDone()
		checkQueue(t, q, 2-i)
	}
}

func TestWorkQueue_PeekIsStable(t *testing.T) {
	q := NewWorkQueue(4)
	q.Enqueue(5)
	q.Enqueue(6)
	if a, b := q.Peek(), q.Peek(); a != 5 || b != 5 {
		t.Errorf("Peek() twice = %d,%d, want 5,5", a, b)
	}
	q.MarkDone()
	if got := q.Peek(); got != 6 {
		t.Errorf("Peek() after MarkDone = %d, want 6", got)
	}
}

func TestWorkQueue_WrapAround(t *testing.T) {
	q := NewWorkQueue(2)
	for i := range 11 {
		q.Enqueue(i)
		if got := q.Peek(); got != i {
			t.Fatalf("Peek() = %d, want %d", got, i)
		}
		q.MarkDone()
		checkQueue(t, q, 0)
	}
}

func TestWorkQueue_MarkDoneEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MarkDone() on empty queue did not panic")
		}
	}()
	NewWorkQueue(1).MarkDone()
}

func TestNewWorkQueue_MinCapacity(t *testing.T) {
	if got := NewWorkQueue(0).Cap(); got != 1 {
		t.Errorf("NewWorkQueue(0).Cap() = %d, want 1", got)
	}
}

// ===== Concurrent =====

func TestWorkQueue_ProducerConsumerOrder(t *testing.T) {
	const n = 20000
	q := NewWorkQueue(8)

	var wg sync.WaitGroup
	wg.Add(1)
	got := make([]int, 0, n)
	go func() {
		defer wg.Done()
		for len(got) < n {
			idx := q.Peek()
			if idx == NoBuffer {
				runtime.Gosched()
				continue
			}
			got = append(got, idx)
			q.MarkDone()
		}
	}()

	// Stats reads Len from a third goroutine.
	stop := make(chan struct{})
	var observer sync.WaitGroup
	var badLen atomic.Int64
	observer.Add(1)
	go func() {
		defer observer.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if l := q.Len(); l < 0 || l > q.Cap() {
				badLen.Store(int64(l))
			}
			runtime.Gosched()
		}
	}()

	for i := range n {
		q.Enqueue(i)
	}
	wg.Wait()
	close(stop)
	observer.Wait()

	if l := badLen.Load(); l != 0 {
		t.Errorf("Len() = %d observed, want within [0, %d]", l, q.Cap())
	}

	for i, v := range got {
		if v != i {
			t.Fatalf("item %d = %d, want %d", i, v, i)
		}
	}
	if !q.IsEmpty() {
		t.Error("IsEmpty() = false after draining")
	}
}
