package SplitList

import (
	"math/bits"
	"sync/atomic"

	"github.com/g-m-twostay/go-cds/Sets/OrderedList"
)

// bucketTable maps bucket indices to sentinel nodes. Slots are set at most once.
type bucketTable[T any] interface {
	load(i uint) *OrderedList.Node[T]
	// publish sets slot i to n unless it's set already; either way the final content is returned.
	publish(i uint, n *OrderedList.Node[T]) *OrderedList.Node[T]
	maxBuckets() uint
}

type slot[T any] struct {
	atomic.Pointer[OrderedList.Node[T]]
}

func (s *slot[T]) publish(n *OrderedList.Node[T]) *OrderedList.Node[T] {
	if s.CompareAndSwap(nil, n) {
		return n
	}
	return s.Load()
}

// expandableTable stores segment s with 2^(s-1) slots, segment 0 holds bucket 0 alone. Segments are allocated on first publish.
type expandableTable[T any] struct {
	segments [bits.UintSize]atomic.Pointer[[]slot[T]]
}

func segmentOf(i uint) (seg, off uint) {
	if i == 0 {
		return 0, 0
	}
	seg = uint(bits.Len(i))
	return seg, i - 1<<(seg-1)
}

func (t *expandableTable[T]) load(i uint) *OrderedList.Node[T] {
	seg, off := segmentOf(i)
	if s := t.segments[seg].Load(); s != nil {
		return (*s)[off].Load()
	}
	return nil
}

func (t *expandableTable[T]) publish(i uint, n *OrderedList.Node[T]) *OrderedList.Node[T] {
	seg, off := segmentOf(i)
	s := t.segments[seg].Load()
	if s == nil {
		size := uint(1)
		if seg > 0 {
			size = 1 << (seg - 1)
		}
		fresh := make([]slot[T], size)
		if t.segments[seg].CompareAndSwap(nil, &fresh) {
			s = &fresh
		} else {
			s = t.segments[seg].Load()
		}
	}
	return (*s)[off].publish(n)
}

func (t *expandableTable[T]) maxBuckets() uint {
	return 1 << (bits.UintSize - 1) //the top bit would turn into the sentinel marker bit.
}

type staticTable[T any] struct {
	slots []slot[T]
}

func newStaticTable[T any](n uint) *staticTable[T] {
	return &staticTable[T]{slots: make([]slot[T], n)}
}

func (t *staticTable[T]) load(i uint) *OrderedList.Node[T] {
	return t.slots[i].Load()
}

func (t *staticTable[T]) publish(i uint, n *OrderedList.Node[T]) *OrderedList.Node[T] {
	return t.slots[i].publish(n)
}

func (t *staticTable[T]) maxBuckets() uint {
	return uint(len(t.slots))
}
