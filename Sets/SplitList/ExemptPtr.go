package SplitList

import (
	"sync/atomic"

	"github.com/g-m-twostay/go-cds/Sets/OrderedList"
)

type exempt[T any] struct {
	n       atomic.Pointer[OrderedList.Node[T]]
	release func(*OrderedList.Node[T])
}

// ExemptPtr owns an element extracted from a Set. The element stays valid until Release, which passes it to the reclamation domain of the set; it's reused only after every read section that could still see it has closed.
// Copies of an ExemptPtr share ownership: the first Release wins and the others become no-ops. The zero ExemptPtr is empty.
type ExemptPtr[T any] struct {
	e *exempt[T]
}

func newExemptPtr[T any](n *OrderedList.Node[T], release func(*OrderedList.Node[T])) ExemptPtr[T] {
	e := &exempt[T]{release: release}
	e.n.Store(n)
	return ExemptPtr[T]{e: e}
}

// Empty reports whether there's no element, either because nothing was extracted or because it was released.
func (p ExemptPtr[T]) Empty() bool {
	return p.e == nil || p.e.n.Load() == nil
}

// Value returns the element or nil when Empty.
func (p ExemptPtr[T]) Value() *T {
	if p.e == nil {
		return nil
	}
	if n := p.e.n.Load(); n != nil {
		return &n.Value
	}
	return nil
}

// Release gives up the element. The result of Value must not be used afterwards. Release may wait for a grace period, so it must not be called inside a read section.
func (p ExemptPtr[T]) Release() {
	if p.e == nil {
		return
	}
	if n := p.e.n.Swap(nil); n != nil {
		p.e.release(n)
	}
}
