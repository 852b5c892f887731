// Package OrderedList holds the sorted singly linked lists that a split-ordered set threads its buckets through.
package OrderedList

import (
	"sync/atomic"
	"unsafe"
)

const deletedMask = 1

func addr(tagged unsafe.Pointer) unsafe.Pointer {
	return unsafe.Pointer(uintptr(tagged) &^ deletedMask)
}
func isDeleted(tagged unsafe.Pointer) bool {
	return uintptr(tagged)&deletedMask != 0
}

// Node is one element of a list: the engine owned linkage, the sort key and the value in a single allocation.
// Key and Value must be set before the node is handed to Engine.Insert and must not change afterwards, except for Value fields that don't take part in ordering.
type Node[T any] struct {
	next  unsafe.Pointer //*Node[T]; 0 bit indicates whether this node is logically deleted.
	Key   uint
	Value T
}

// Deleted reports whether the node has been logically removed.
func (n *Node[T]) Deleted() bool {
	return isDeleted(atomic.LoadPointer(&n.next))
}

// Reset clears the node so it can be reused. Only call it on a node that no list and no reader can reach.
func (n *Node[T]) Reset() {
	var zero T
	n.next, n.Key, n.Value = nil, 0, zero
}

func (n *Node[T]) mark() bool {
	for {
		next := atomic.LoadPointer(&n.next)
		if isDeleted(next) {
			return false
		}
		if atomic.CompareAndSwapPointer(&n.next, next, unsafe.Pointer(uintptr(next)|deletedMask)) {
			return true
		}
	}
}

// Probe positions a search: it returns a negative number if n sorts before the searched position, 0 if n is the searched element, positive otherwise.
type Probe[T any] func(n *Node[T]) int

// Engine is a concurrent sorted list. Every call takes a start node that must sort before the searched position and must never be deleted; the list between start and the target is all that gets traversed.
// Callers must keep nodes returned by an Engine from being reused while they hold them.
type Engine[T any] interface {
	// Init turns head into an empty list.
	Init(head *Node[T])
	// Insert links n unless a node with probe 0 is present, in which case that node is returned with false. The caller keeps ownership of n on failure.
	Insert(start, n *Node[T], probe Probe[T]) (*Node[T], bool)
	// Find returns the node with probe 0 or nil.
	Find(start *Node[T], probe Probe[T]) *Node[T]
	// Unlink removes n, which probe must locate. Only one of any number of concurrent callers gets true, and once it returns n is unreachable from the list.
	Unlink(start, n *Node[T], probe Probe[T]) bool
	// Next returns the first node after n that isn't deleted, or nil at the end of the list.
	Next(n *Node[T]) *Node[T]
}
