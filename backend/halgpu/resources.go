package halgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/matsys/pushbuf"
	"github.com/gogpu/wgpu/hal"
)

type resourceKind uint8

const (
	kindBuffer resourceKind = iota + 1
	kindShader
)

func (k resourceKind) String() string {
	switch k {
	case kindBuffer:
		return "buffer"
	case kindShader:
		return "shader"
	default:
		return fmt.Sprintf("resourceKind(%d)", k)
	}
}

// resource is one live device object.
type resource struct {
	kind  resourceKind
	label string

	// Buffers.
	buffer     hal.Buffer
	bufferKind pushbuf.BufferKind
	size       uint64
	locked     bool
	lockSize   uint64

	// Shaders.
	module       hal.ShaderModule
	stage        gputypes.ShaderStage
	centroidMask uint32
}

// resourceTable maps handles to resources. Handle 0 is never issued.
type resourceTable struct {
	mu    sync.RWMutex
	next  pushbuf.Handle
	items map[pushbuf.Handle]*resource
}

func newResourceTable() *resourceTable {
	return &resourceTable{items: make(map[pushbuf.Handle]*resource)}
}

func (t *resourceTable) add(r *resource) pushbuf.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	h := t.next
	t.items[h] = r
	return h
}

func (t *resourceTable) get(h pushbuf.Handle, kind resourceKind) (*resource, error) {
	t.mu.RLock()
	r, ok := t.items[h]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	if r.kind != kind {
		return nil, fmt.Errorf("%w: handle %d is a %s, want %s", ErrWrongResource, h, r.kind, kind)
	}
	return r, nil
}

func (t *resourceTable) remove(h pushbuf.Handle, kind resourceKind) (*resource, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.items[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	if r.kind != kind {
		return nil, fmt.Errorf("%w: handle %d is a %s, want %s", ErrWrongResource, h, r.kind, kind)
	}
	delete(t.items, h)
	return r, nil
}

// count returns the number of live buffers and shaders.
func (t *resourceTable) count() (buffers, shaders int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range t.items {
		switch r.kind {
		case kindBuffer:
			buffers++
		case kindShader:
			shaders++
		}
	}
	return buffers, shaders
}

// drain removes and returns every resource.
func (t *resourceTable) drain() []*resource {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*resource, 0, len(t.items))
	for h, r := range t.items {
		out = append(out, r)
		delete(t.items, h)
	}
	return out
}
