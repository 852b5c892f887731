package OrderedList

import (
	"sync/atomic"
	"unsafe"

	"github.com/g-m-twostay/go-cds/Sets/internal"
)

// Michael is a lock-free list: deletion first marks the next pointer of a node and any traversal that meets a marked node helps to unlink it.
// A Michael must be created with NewMichael and not be copied.
type Michael[T any] struct {
	tail Node[T] //lists end here instead of nil, so a marked pointer always points into a real node.
}

func NewMichael[T any]() *Michael[T] {
	return new(Michael[T])
}

func (l *Michael[T]) Init(head *Node[T]) {
	atomic.StorePointer(&head.next, unsafe.Pointer(&l.tail))
}

// skip follows a chain of deleted nodes starting at right and returns the first node in it that isn't deleted.
func (l *Michael[T]) skip(right unsafe.Pointer) unsafe.Pointer {
	for {
		next := atomic.LoadPointer(&(*Node[T])(right).next)
		if !isDeleted(next) {
			return right
		}
		right = addr(next)
	}
}

// crawl gives 2 consecutive valid nodes around the probed position. Deleted nodes met on the way are unlinked; if that fails because left itself got deleted, crawl backtracks through path, then falls back to start.
func (l *Michael[T]) crawl(start *Node[T], probe Probe[T]) (left, right *Node[T], found bool) {
	var path internal.EvictStack[Node[T]]
	left = start
	for {
		next := atomic.LoadPointer(&left.next)
		if isDeleted(next) { //left was removed under us.
			if left = path.Pop(); left == nil {
				left = start
			}
			continue
		}
		if next == unsafe.Pointer(&l.tail) {
			return left, &l.tail, false
		}
		if next2 := atomic.LoadPointer(&(*Node[T])(next).next); isDeleted(next2) {
			// unlink the whole run of deleted nodes at once, then reload.
			atomic.CompareAndSwapPointer(&left.next, next, l.skip(addr(next2)))
			continue
		}
		right = (*Node[T])(next)
		if c := probe(right); c >= 0 {
			return left, right, c == 0
		}
		path.Push(left)
		left = right
	}
}

func (l *Michael[T]) Insert(start, n *Node[T], probe Probe[T]) (*Node[T], bool) {
	for {
		left, right, found := l.crawl(start, probe)
		if found {
			return right, false
		}
		atomic.StorePointer(&n.next, unsafe.Pointer(right))
		if atomic.CompareAndSwapPointer(&left.next, unsafe.Pointer(right), unsafe.Pointer(n)) {
			return n, true
		}
	}
}

func (l *Michael[T]) Find(start *Node[T], probe Probe[T]) *Node[T] {
	if _, right, found := l.crawl(start, probe); found {
		return right
	}
	return nil
}

func (l *Michael[T]) Unlink(start, n *Node[T], probe Probe[T]) bool {
	if !n.mark() {
		return false
	}
	l.crawl(start, probe) //a deleted node is never returned by crawl, so crawling past its position unlinks it.
	return true
}

func (l *Michael[T]) Next(n *Node[T]) *Node[T] {
	right := l.skip(addr(atomic.LoadPointer(&n.next)))
	if right == unsafe.Pointer(&l.tail) {
		return nil
	}
	return (*Node[T])(right)
}
