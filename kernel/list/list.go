// Package list implements a doubly linked list whose node identities are
// stable handles: a *Node[V] remains valid for find/remove until that
// specific node is removed from the list, surviving insertions and removals
// of any other node. The container accepts a pluggable Allocator so it can
// be embedded inside code (the resource allocator) that cannot assume the
// global heap is available.
package list

// Node is a single element of a List. Its identity (the pointer itself) is
// the stable handle described in the package doc.
type Node[V any] struct {
	prev, next *Node[V]
	list       *List[V]
	slot       int // backing index for arena-allocated nodes; unused otherwise
	Value      V
}

// Allocator supplies and reclaims the memory backing list nodes. Get must
// return a zero-valued, unlinked node. Put is called with a node that has
// already been unlinked from its list and may recycle its storage.
type Allocator[V any] interface {
	Get() *Node[V]
	Put(*Node[V])
}

// heapAllocator is the default Allocator: it defers to the Go allocator and
// lets the garbage collector reclaim discarded nodes.
type heapAllocator[V any] struct{}

func (heapAllocator[V]) Get() *Node[V] { return new(Node[V]) }
func (heapAllocator[V]) Put(*Node[V])  {}

// List is a doubly linked sequence of values of type V.
//
// Invariants: head.prev == nil, tail.next == nil, the sequence traced by
// next is the reverse of the sequence traced by prev, and the list is empty
// iff both head and tail are nil.
type List[V any] struct {
	head, tail *Node[V]
	length     int
	alloc      Allocator[V]
}

// New returns an empty list that allocates nodes from the Go heap.
func New[V any]() *List[V] {
	return NewWithAllocator[V](heapAllocator[V]{})
}

// NewWithAllocator returns an empty list that sources node storage from the
// supplied allocator instead of the Go heap.
func NewWithAllocator[V any](alloc Allocator[V]) *List[V] {
	return &List[V]{alloc: alloc}
}

// Len returns the number of elements currently in the list.
func (l *List[V]) Len() int { return l.length }

// Empty returns true if the list contains no elements.
func (l *List[V]) Empty() bool { return l.head == nil && l.tail == nil }

// Front returns the handle of the first node, or nil if the list is empty.
func (l *List[V]) Front() *Node[V] { return l.head }

// Back returns the handle of the last node, or nil if the list is empty.
func (l *List[V]) Back() *Node[V] { return l.tail }

// Append inserts v at the end of the list and returns its handle.
func (l *List[V]) Append(v V) *Node[V] {
	n := l.newNode(v)
	if l.tail == nil {
		l.head, l.tail = n, n
		l.length++
		return n
	}
	n.prev = l.tail
	l.tail.next = n
	l.tail = n
	l.length++
	return n
}

// InsertFront inserts v at the beginning of the list and returns its handle.
func (l *List[V]) InsertFront(v V) *Node[V] {
	n := l.newNode(v)
	if l.head == nil {
		l.head, l.tail = n, n
		l.length++
		return n
	}
	n.next = l.head
	l.head.prev = n
	l.head = n
	l.length++
	return n
}

// InsertAfter inserts v immediately after the node identified by after and
// returns the new node's handle. after must currently belong to this list.
func (l *List[V]) InsertAfter(after *Node[V], v V) *Node[V] {
	n := l.newNode(v)
	n.prev = after
	n.next = after.next
	if after.next != nil {
		after.next.prev = n
	} else {
		l.tail = n
	}
	after.next = n
	l.length++
	return n
}

// PopFront removes and returns the first value in the list. ok is false if
// the list was empty.
func (l *List[V]) PopFront() (v V, ok bool) {
	if l.head == nil {
		return v, false
	}
	n := l.head
	v = n.Value
	l.unlink(n)
	l.releaseNode(n)
	return v, true
}

// Remove removes the node identified by n from the list and returns its
// value. n must currently belong to this list.
func (l *List[V]) Remove(n *Node[V]) V {
	v := n.Value
	l.unlink(n)
	l.releaseNode(n)
	return v
}

// Find returns the handle of the first node whose value satisfies pred, or
// nil if no such node exists.
func (l *List[V]) Find(pred func(V) bool) *Node[V] {
	for n := l.head; n != nil; n = n.next {
		if pred(n.Value) {
			return n
		}
	}
	return nil
}

// Iter invokes fn for every value in the list, in order, passing a pointer
// to the value stored in the node so callers may mutate it in place. Iter
// stops early if fn returns false.
func (l *List[V]) Iter(fn func(*V) bool) {
	for n := l.head; n != nil; n = n.next {
		if !fn(&n.Value) {
			return
		}
	}
}

// Prev returns the handle preceding n, or nil if n is the first node.
func (n *Node[V]) Prev() *Node[V] { return n.prev }

// Next returns the handle following n, or nil if n is the last node.
func (n *Node[V]) Next() *Node[V] { return n.next }

func (l *List[V]) newNode(v V) *Node[V] {
	n := l.alloc.Get()
	n.Value = v
	n.prev, n.next, n.list = nil, nil, l
	return n
}

func (l *List[V]) releaseNode(n *Node[V]) {
	n.list = nil
	l.alloc.Put(n)
}

func (l *List[V]) unlink(n *Node[V]) {
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
	n.prev, n.next = nil, nil
	l.length--
}
