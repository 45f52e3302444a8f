package pushbuf

import (
	"sync/atomic"
	"unsafe"
)

// BufferWords is the default capacity of a push buffer in 32-bit words.
const BufferWords = 4096

// BufferState tags which stage currently owns a push buffer.
type BufferState int32

const (
	StateAvailable   BufferState = iota // In the free pool
	StateBeingFilled                    // Owned by the producer, recording
	StateSubmitted                      // Owned by the queue / worker
	StateLockedData                     // Holding staged data for an async lock
)

var bufferStateNames = [...]string{
	StateAvailable:   "Available",
	StateBeingFilled: "BeingFilled",
	StateSubmitted:   "Submitted",
	StateLockedData:  "LockedData",
}

// String returns the state name.
func (s BufferState) String() string {
	if s >= 0 && int(s) < len(bufferStateNames) {
		return bufferStateNames[s]
	}
	return "Unknown"
}

// PushBuffer is one fixed-size command buffer of the pool.
//
// Ownership moves only through the state tag: whoever moved the buffer into
// its current state is the only one allowed to touch its words.
type PushBuffer struct {
	index int
	state atomic.Int32
	words []uint32
}

func newPushBuffer(index, words int) *PushBuffer {
	return &PushBuffer{index: index, words: make([]uint32, words)}
}

// Index returns the buffer's position in the pool.
func (b *PushBuffer) Index() int { return b.index }

// State returns the current ownership state.
func (b *PushBuffer) State() BufferState { return BufferState(b.state.Load()) }

// Words returns the backing words. Only the current owner may use them.
func (b *PushBuffer) Words() []uint32 { return b.words }

// transition moves the buffer from one state to another if it is still in
// the expected state.
func (b *PushBuffer) transition(from, to BufferState) bool {
	return b.state.CompareAndSwap(int32(from), int32(to))
}

func (b *PushBuffer) setState(s BufferState) { b.state.Store(int32(s)) }

// bytes views the buffer words as bytes, used when the buffer stages data
// for an async lock.
func (b *PushBuffer) bytes() []byte {
	if len(b.words) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&b.words[0])), len(b.words)*4) //nolint:gosec // same backing array, length in bytes
}
