package pushbuf

import "sync"

// heapArena holds staging blocks too large for a push buffer.
// Blocks are allocated by the producer and freed by the worker.
type heapArena struct {
	mu     sync.Mutex
	blocks map[uint32][]byte
	next   uint32
}

func (h *heapArena) alloc(size uint32) (uint32, []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.blocks == nil {
		h.blocks = make(map[uint32][]byte)
	}
	h.next++
	mem := make([]byte, size)
	h.blocks[h.next] = mem
	return h.next, mem
}

func (h *heapArena) get(id uint32) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.blocks[id]
}

func (h *heapArena) free(id uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.blocks, id)
}

func (h *heapArena) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.blocks)
}
