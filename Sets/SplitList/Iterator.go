package SplitList

import "github.com/g-m-twostay/go-cds/Sets/OrderedList"

// Iterator walks the elements of a Set in internal order. It neither skips nor repeats elements that stay in the set, elements added or removed meanwhile may or may not show up.
type Iterator[T any] struct {
	list OrderedList.Engine[T]
	cur  *OrderedList.Node[T]
}

// Next moves to the next element and reports whether there is one.
func (it *Iterator[T]) Next() bool {
	if it.cur == nil {
		return false
	}
	for it.cur = it.list.Next(it.cur); it.cur != nil && isSentinel(it.cur.Key); it.cur = it.list.Next(it.cur) {
	}
	return it.cur != nil
}

// Value returns the current element; valid after Next returned true.
func (it *Iterator[T]) Value() *T {
	return &it.cur.Value
}
