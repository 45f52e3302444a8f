package cache

// lruNode is a node in a doubly-linked LRU list. It carries the entry so
// eviction needs no second map lookup.
type lruNode[K comparable, V any] struct {
	key   K
	value V
	prev  *lruNode[K, V]
	next  *lruNode[K, V]
}

// lruList orders entries by recency. The head is the most recently used,
// the tail the least. Not safe for concurrent use.
type lruList[K comparable, V any] struct {
	head *lruNode[K, V]
	tail *lruNode[K, V]
	len  int
}

// pushFront inserts n as the most recently used node.
func (l *lruList[K, V]) pushFront(n *lruNode[K, V]) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
	l.len++
}

// moveToFront marks n as the most recently used node.
func (l *lruList[K, V]) moveToFront(n *lruNode[K, V]) {
	if n == l.head {
		return
	}
	l.remove(n)
	l.pushFront(n)
}

// back returns the least recently used node, or nil.
func (l *lruList[K, V]) back() *lruNode[K, V] {
	return l.tail
}

// remove unlinks n from the list.
func (l *lruList[K, V]) remove(n *lruNode[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev = nil
	n.next = nil
	l.len--
}

func (l *lruList[K, V]) clear() {
	l.head = nil
	l.tail = nil
	l.len = 0
}
