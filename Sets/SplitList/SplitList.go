// Package SplitList is a lock-free hash set built on a split-ordered list: all elements sit in one list sorted by their bit reversed hash, and a growing table of sentinel nodes gives constant time entry points into it. The table doubles without moving any element.
//
// Nodes removed from the set are reused only after every read section that could still see them is closed, see package RCU. Erase, Clear, ExemptPtr.Release and Synchronize wait for such sections and must therefore not be called while the calling goroutine holds one.
package SplitList

import (
	"cmp"
	"fmt"
	"iter"
	"math/bits"
	"sync/atomic"

	"github.com/g-m-twostay/go-cds/RCU"
	"github.com/g-m-twostay/go-cds/Sets"
	"github.com/g-m-twostay/go-cds/Sets/OrderedList"
	"go.uber.org/zap"
)

// Set holds elements of type T identified by keys of type K. compare is one total order over K that must agree with hash: equal keys have equal hashes.
type Set[T, K any] struct {
	head    OrderedList.Node[T] //sentinel of bucket 0.
	keyOf   func(T) K
	hash    func(K) uint
	compare func(a, b K) int

	list       OrderedList.Engine[T]
	table      bucketTable[T]
	alloc      Allocator[T]
	rcu        *RCU.Domain
	capLog     atomic.Uint32 //logical number of buckets is 1<<capLog.
	count      atomic.Int64
	loadFactor uint
	stat       *stat
	log        *zap.SugaredLogger
}

var _ Sets.Set[int, int] = (*Set[int, int])(nil)

func New[T, K any](keyOf func(T) K, hash func(K) uint, compare func(a, b K) int, opts ...Option) *Set[T, K] {
	c := config{loadFactor: 1}
	for _, opt := range opts {
		opt(&c)
	}
	if c.log == nil {
		c.log = zap.NewNop().Sugar()
	}
	s := &Set[T, K]{keyOf: keyOf, hash: hash, compare: compare, loadFactor: c.loadFactor, rcu: c.domain, log: c.log}
	if s.rcu == nil {
		s.rcu = RCU.New(RCU.WithLogger(c.log))
	}
	if c.stats {
		s.stat = newStat()
	}
	switch a := c.allocator.(type) {
	case nil:
		s.alloc = NewPoolAllocator[T]()
	case Allocator[T]:
		s.alloc = a
	default:
		panic(fmt.Sprintf("split-list: allocator %T doesn't allocate the element type of the set", a))
	}
	switch e := c.list.(type) {
	case nil:
		s.list = OrderedList.NewMichael[T]()
	case OrderedList.Engine[T]:
		s.list = e
	default:
		panic(fmt.Sprintf("split-list: ordered list %T doesn't hold the element type of the set", e))
	}

	buckets := nextPowerOfTwo((c.itemCount + c.loadFactor - 1) / c.loadFactor)
	if c.static {
		s.table = newStaticTable[T](buckets)
	} else {
		s.table = new(expandableTable[T])
	}
	s.capLog.Store(uint32(bits.Len(buckets) - 1))
	s.list.Init(&s.head)
	s.table.publish(0, &s.head)
	return s
}

// NewOrdered creates a set of plain ordered values that are their own keys.
func NewOrdered[T cmp.Ordered](hash func(T) uint, opts ...Option) *Set[T, T] {
	return New(func(v T) T { return v }, hash, cmp.Compare[T], opts...)
}

func (s *Set[T, K]) bucketFor(hash uint) uint {
	return hash & (1<<s.capLog.Load() - 1)
}

// BucketCount returns the current logical number of buckets.
func (s *Set[T, K]) BucketCount() uint {
	return 1 << s.capLog.Load()
}

func (s *Set[T, K]) maybeGrow(n int64) {
	log := s.capLog.Load()
	c := uint(1) << log
	if n <= 0 || uint(n) <= c*s.loadFactor || c >= s.table.maxBuckets() {
		return
	}
	if s.capLog.CompareAndSwap(log, log+1) {
		s.stat.onGrowth()
		s.log.Debugw("split-list bucket table grown", "buckets", c<<1, "items", n)
	}
}

// sentinel returns the head of bucket i, linking it and its missing ancestors first. Must be called in a read section.
func (s *Set[T, K]) sentinel(i uint) (*OrderedList.Node[T], error) {
	if h := s.table.load(i); h != nil {
		return h, nil
	}
	parent, err := s.sentinel(parentBucket(i))
	if err != nil {
		return nil, err
	}
	cand, err := s.alloc.Alloc()
	if err != nil {
		s.stat.onAllocFailed()
		s.log.Warnw("split-list sentinel allocation failed", "bucket", i, "error", err)
		return nil, fmt.Errorf("%w: sentinel of bucket %d: %w", ErrResourceExhausted, i, err)
	}
	key := sentinelKey(i)
	cand.Key = key
	h, ok := s.list.Insert(parent, cand, func(n *OrderedList.Node[T]) int { return cmp.Compare(n.Key, key) })
	if ok {
		s.stat.onSentinel(true)
		s.log.Debugw("split-list bucket materialized", "bucket", i)
	} else { //lost the race, cand was never visible to anyone.
		s.alloc.Free(cand)
		s.stat.onSentinel(false)
	}
	return s.table.publish(i, h), nil
}

// lookupHead is sentinel for paths that can't report errors: they settle for the nearest materialized ancestor.
func (s *Set[T, K]) lookupHead(hash uint) *OrderedList.Node[T] {
	i := s.bucketFor(hash)
	if h, err := s.sentinel(i); err == nil {
		return h
	}
	for {
		if h := s.table.load(i); h != nil {
			return h
		}
		i = parentBucket(i)
	}
}

func (s *Set[T, K]) probe(key uint, k K, compare func(a, b K) int) OrderedList.Probe[T] {
	return func(n *OrderedList.Node[T]) int {
		if n.Key != key {
			return cmp.Compare(n.Key, key)
		}
		return compare(s.keyOf(n.Value), k)
	}
}

// Insert adds v unless an element with the same key is present.
func (s *Set[T, K]) Insert(v T) (bool, error) {
	return s.insert(v, nil)
}

// InsertFunc is Insert, and init is applied to the element before other goroutines can see it. init may run even if v ends up not inserted because a racing insert of the same key won; it must not change the key.
func (s *Set[T, K]) InsertFunc(v T, init func(*T)) (bool, error) {
	return s.insert(v, init)
}

func (s *Set[T, K]) insert(v T, init func(*T)) (bool, error) {
	k := s.keyOf(v)
	h := s.hash(k)
	sec := s.rcu.Lock()
	defer sec.Unlock()
	head, err := s.sentinel(s.bucketFor(h))
	if err != nil {
		return false, err
	}
	probe := s.probe(regularKey(h), k, s.compare)
	if init != nil && s.list.Find(head, probe) != nil {
		s.stat.onInsert(false)
		return false, nil
	}
	n, err := s.newNode(h, v)
	if err != nil {
		return false, err
	}
	if init != nil {
		init(&n.Value)
	}
	if _, ok := s.list.Insert(head, n, probe); !ok {
		s.alloc.Free(n)
		s.stat.onInsert(false)
		return false, nil
	}
	s.stat.onInsert(true)
	s.maybeGrow(s.count.Add(1))
	return true, nil
}

func (s *Set[T, K]) newNode(h uint, v T) (*OrderedList.Node[T], error) {
	n, err := s.alloc.Alloc()
	if err != nil {
		s.stat.onAllocFailed()
		s.log.Warnw("split-list node allocation failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrResourceExhausted, err)
	}
	n.Key, n.Value = regularKey(h), v
	return n, nil
}

// Ensure inserts v if its key is absent and calls fn(true, inserted, v) afterwards; otherwise it calls fn(false, existing, v), where fn may update fields of existing that don't take part in the key. An error means nothing happened and fn wasn't called.
func (s *Set[T, K]) Ensure(v T, fn func(isNew bool, item *T, v T)) (bool, error) {
	k := s.keyOf(v)
	h := s.hash(k)
	sec := s.rcu.Lock()
	defer sec.Unlock()
	head, err := s.sentinel(s.bucketFor(h))
	if err != nil {
		return false, err
	}
	probe := s.probe(regularKey(h), k, s.compare)
	if old := s.list.Find(head, probe); old != nil {
		s.stat.onEnsure(false)
		fn(false, &old.Value, v)
		return false, nil
	}
	n, err := s.newNode(h, v)
	if err != nil {
		return false, err
	}
	got, ok := s.list.Insert(head, n, probe)
	if !ok {
		s.alloc.Free(n)
		s.stat.onEnsure(false)
		fn(false, &got.Value, v)
		return false, nil
	}
	s.stat.onEnsure(true)
	s.maybeGrow(s.count.Add(1))
	fn(true, &n.Value, v)
	return true, nil
}

// unlink removes the element with key k and returns its node, which now belongs to the caller.
func (s *Set[T, K]) unlink(k K, compare func(a, b K) int) *OrderedList.Node[T] {
	h := s.hash(k)
	sec := s.rcu.Lock()
	defer sec.Unlock()
	head := s.lookupHead(h)
	probe := s.probe(regularKey(h), k, compare)
	for {
		n := s.list.Find(head, probe)
		if n == nil {
			return nil
		}
		if s.list.Unlink(head, n, probe) {
			s.count.Add(-1)
			return n
		}
	}
}

func (s *Set[T, K]) retire(n *OrderedList.Node[T]) {
	s.rcu.Retire(func() { s.alloc.Free(n) })
}

// Erase removes the element with key k.
func (s *Set[T, K]) Erase(k K) bool {
	return s.erase(k, s.compare, nil)
}

// EraseFunc removes the element with key k and shows it to f before it's reclaimed.
func (s *Set[T, K]) EraseFunc(k K, f func(*T)) bool {
	return s.erase(k, s.compare, f)
}

// EraseWith is Erase using compare instead of the comparator of the set; compare must order keys the same way.
func (s *Set[T, K]) EraseWith(k K, compare func(a, b K) int) bool {
	return s.erase(k, compare, nil)
}

// EraseWithFunc combines EraseWith and EraseFunc.
func (s *Set[T, K]) EraseWithFunc(k K, compare func(a, b K) int, f func(*T)) bool {
	return s.erase(k, compare, f)
}

func (s *Set[T, K]) erase(k K, compare func(a, b K) int, f func(*T)) bool {
	n := s.unlink(k, compare)
	s.stat.onErase(n != nil)
	if n == nil {
		return false
	}
	if f != nil {
		f(&n.Value)
	}
	s.retire(n)
	return true
}

// Extract removes the element with key k and hands it over to the caller, who must Release it.
func (s *Set[T, K]) Extract(k K) ExemptPtr[T] {
	return s.ExtractWith(k, s.compare)
}

// ExtractWith is Extract using compare instead of the comparator of the set.
func (s *Set[T, K]) ExtractWith(k K, compare func(a, b K) int) ExemptPtr[T] {
	n := s.unlink(k, compare)
	s.stat.onExtract(n != nil)
	if n == nil {
		return ExemptPtr[T]{}
	}
	return newExemptPtr(n, s.retire)
}

// Find reports whether an element with key k is present.
func (s *Set[T, K]) Find(k K) bool {
	return s.FindFunc(k, nil)
}

// FindWith is Find using compare instead of the comparator of the set.
func (s *Set[T, K]) FindWith(k K, compare func(a, b K) int) bool {
	return s.FindWithFunc(k, compare, nil)
}

// FindWithFunc combines FindWith and FindFunc.
func (s *Set[T, K]) FindWithFunc(k K, compare func(a, b K) int, f func(item *T, k K)) bool {
	sec := s.rcu.Lock()
	defer sec.Unlock()
	p := s.GetWith(k, compare)
	if p != nil && f != nil {
		f(p, k)
	}
	return p != nil
}

// FindFunc calls f with the element with key k if it's present. f may update fields that don't take part in the key, synchronizing with other such updates itself.
func (s *Set[T, K]) FindFunc(k K, f func(item *T, k K)) bool {
	return s.FindWithFunc(k, s.compare, f)
}

// Get returns the element with key k or nil. The caller must hold a read section of the set, see Lock, and may only use the result until it closes it.
func (s *Set[T, K]) Get(k K) *T {
	return s.GetWith(k, s.compare)
}

// GetWith is Get using compare instead of the comparator of the set.
func (s *Set[T, K]) GetWith(k K, compare func(a, b K) int) *T {
	h := s.hash(k)
	n := s.list.Find(s.lookupHead(h), s.probe(regularKey(h), k, compare))
	s.stat.onFind(n != nil)
	if n == nil {
		return nil
	}
	return &n.Value
}

// Clear removes every element it meets in one pass over the set. Elements inserted concurrently may survive.
func (s *Set[T, K]) Clear() {
	var removed []*OrderedList.Node[T]
	sec := s.rcu.Lock()
	for n := s.list.Next(&s.head); n != nil; n = s.list.Next(n) {
		if isSentinel(n.Key) {
			continue
		}
		k := s.keyOf(n.Value)
		h := s.hash(k)
		if s.list.Unlink(s.lookupHead(h), n, s.probe(n.Key, k, s.compare)) {
			s.count.Add(-1)
			removed = append(removed, n)
		}
	}
	sec.Unlock()
	for _, n := range removed {
		s.retire(n)
	}
	s.log.Debugw("split-list cleared", "removed", len(removed))
}

// Size returns the number of elements; it's only exact when no modification is in flight.
func (s *Set[T, K]) Size() int {
	return int(max(s.count.Load(), 0))
}

func (s *Set[T, K]) Empty() bool {
	return s.Size() == 0
}

// Iterator returns an iterator over the elements. The caller must hold a read section for as long as it uses the iterator and the elements it yields.
func (s *Set[T, K]) Iterator() *Iterator[T] {
	return &Iterator[T]{list: s.list, cur: &s.head}
}

// Range calls f on the elements until it returns false, inside its own read section. The pointers are only valid during f.
func (s *Set[T, K]) Range(f func(*T) bool) {
	sec := s.rcu.Lock()
	defer sec.Unlock()
	for it := s.Iterator(); it.Next(); {
		if !f(it.Value()) {
			return
		}
	}
}

// All is Range as an iterator.
func (s *Set[T, K]) All() iter.Seq[*T] {
	return s.Range
}

// RCU returns the reclamation domain of the set.
func (s *Set[T, K]) RCU() *RCU.Domain {
	return s.rcu
}

// Lock opens a read section, needed around Get and Iterator.
func (s *Set[T, K]) Lock() RCU.Section {
	return s.rcu.Lock()
}

// Synchronize waits for every read section open at call time and reclaims what was removed before it.
func (s *Set[T, K]) Synchronize() {
	s.rcu.Synchronize()
}

// Statistics returns the operation counters; they stay zero unless the set was created WithStatistics.
func (s *Set[T, K]) Statistics() Stat {
	return s.stat.snapshot()
}
