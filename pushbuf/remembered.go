package pushbuf

import "errors"

// ErrRememberedTableFull is returned when more async locks are in flight
// than the side table can hold.
var ErrRememberedTableFull = errors.New("pushbuf: remembered pointer table full")

// DefaultRememberedCapacity bounds the number of in-flight async locks.
const DefaultRememberedCapacity = 32

// RememberedPointers maps a locked buffer to the device mapping returned
// by its deferred lock, so the matching deferred unlock can find it.
//
// The table is owned by the goroutine that replays commands and is not
// safe for concurrent use.
type RememberedPointers struct {
	entries  map[rememberedKey][]byte
	capacity int
}

type rememberedKey struct {
	kind   BufferKind
	buffer Handle
}

// NewRememberedPointers creates a table holding at most capacity entries.
// A capacity of 0 or less uses DefaultRememberedCapacity.
func NewRememberedPointers(capacity int) *RememberedPointers {
	if capacity <= 0 {
		capacity = DefaultRememberedCapacity
	}
	return &RememberedPointers{
		entries:  make(map[rememberedKey][]byte, capacity),
		capacity: capacity,
	}
}

// Remember records mem as the live mapping of buffer. An existing entry
// for the same buffer is replaced.
func (t *RememberedPointers) Remember(kind BufferKind, buffer Handle, mem []byte) error {
	key := rememberedKey{kind, buffer}
	if _, ok := t.entries[key]; !ok && len(t.entries) >= t.capacity {
		return ErrRememberedTableFull
	}
	t.entries[key] = mem
	return nil
}

// Lookup returns the mapping remembered for buffer.
// The mapping may be nil when the device lock failed.
func (t *RememberedPointers) Lookup(kind BufferKind, buffer Handle) ([]byte, bool) {
	mem, ok := t.entries[rememberedKey{kind, buffer}]
	return mem, ok
}

// Forget removes the entry for buffer, freeing its slot.
func (t *RememberedPointers) Forget(kind BufferKind, buffer Handle) {
	delete(t.entries, rememberedKey{kind, buffer})
}

// Len returns the number of remembered mappings.
func (t *RememberedPointers) Len() int { return len(t.entries) }

// Capacity returns the maximum number of entries.
func (t *RememberedPointers) Capacity() int { return t.capacity }
