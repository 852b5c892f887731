package SplitList

import (
	"errors"
	"sync"

	"github.com/g-m-twostay/go-cds/Sets/OrderedList"
)

// ErrResourceExhausted is returned, wrapped, when a node couldn't be allocated. Nothing is left half inserted when it's returned.
var ErrResourceExhausted = errors.New("split-list: resource exhausted")

// Allocator provides the nodes of a Set. Free is only called on nodes that no reader can reach anymore.
type Allocator[T any] interface {
	Alloc() (*OrderedList.Node[T], error)
	Free(*OrderedList.Node[T])
}

// PoolAllocator recycles freed nodes through a sync.Pool. It never fails.
type PoolAllocator[T any] struct {
	pool sync.Pool
}

func NewPoolAllocator[T any]() *PoolAllocator[T] {
	return &PoolAllocator[T]{pool: sync.Pool{New: func() any { return new(OrderedList.Node[T]) }}}
}

func (a *PoolAllocator[T]) Alloc() (*OrderedList.Node[T], error) {
	return a.pool.Get().(*OrderedList.Node[T]), nil
}

func (a *PoolAllocator[T]) Free(n *OrderedList.Node[T]) {
	n.Reset()
	a.pool.Put(n)
}
