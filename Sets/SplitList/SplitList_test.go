package SplitList

import (
	"cmp"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	Go_CDS "github.com/g-m-twostay/go-cds"
	"github.com/g-m-twostay/go-cds/Sets/OrderedList"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAddN   = 1 << 12
	testThrdsN = 12
)

func testHashF(k int) uint {
	return uint(k)
}

func newIntSet(opts ...Option) *Set[int, int] {
	return NewOrdered(testHashF, opts...)
}

// sentinels returns the split keys of all sentinels linked into the list.
func (s *Set[T, K]) sentinels() (keys []uint) {
	sec := s.Lock()
	defer sec.Unlock()
	for n := &s.head; n != nil; n = s.list.Next(n) {
		if isSentinel(n.Key) {
			keys = append(keys, n.Key)
		}
	}
	return
}

func TestSet_GrowsWithLoad(t *testing.T) {
	s := newIntSet(WithLoadFactor(1))
	require.Equal(t, uint(1), s.BucketCount())
	for k := 1; k <= 4; k++ {
		ok, err := s.Insert(k)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.GreaterOrEqual(t, s.BucketCount(), uint(4))
	for k := 1; k <= 4; k++ {
		assert.True(t, s.Find(k), "key %d", k)
	}
	assert.False(t, s.Find(5))
	assert.Equal(t, 4, s.Size())

	p := s.Extract(3)
	require.False(t, p.Empty())
	assert.Equal(t, 3, *p.Value())
	p.Release()
	assert.False(t, s.Find(3))
	assert.Equal(t, 3, s.Size())
}

func TestSet_InsertFindErase(t *testing.T) {
	s := newIntSet()
	assert.True(t, s.Empty())
	for k := range testAddN {
		ok, err := s.Insert(k)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, s.Find(k))
	}
	for k := range testAddN {
		ok, err := s.Insert(k)
		require.NoError(t, err)
		require.False(t, ok)
	}
	assert.Equal(t, testAddN, s.Size())
	for k := 0; k < testAddN; k += 2 {
		require.True(t, s.Erase(k))
		require.False(t, s.Erase(k))
	}
	assert.Equal(t, testAddN/2, s.Size())
	for k := range testAddN {
		assert.Equal(t, k%2 == 1, s.Find(k))
	}
}

func TestSet_GrowthKeepsMembership(t *testing.T) {
	s := newIntSet(WithLoadFactor(2))
	hasher := Go_CDS.Hasher(7)
	keys := make([]int, testAddN)
	for i := range keys {
		keys[i] = int(hasher.HashInt(i))
	}
	before := s.BucketCount()
	for i, k := range keys {
		_, err := s.Insert(k)
		require.NoError(t, err)
		for _, old := range keys[max(0, i-8) : i+1] {
			require.True(t, s.Find(old))
		}
	}
	assert.Greater(t, s.BucketCount(), before)
	assert.LessOrEqual(t, uint(testAddN), s.BucketCount()*2)
	for _, k := range keys {
		assert.True(t, s.Find(k))
	}
	sentinels := s.sentinels()
	for i := 1; i < len(sentinels); i++ {
		require.Less(t, sentinels[i-1], sentinels[i])
	}
}

func TestSet_StaticTableNeverGrows(t *testing.T) {
	s := newIntSet(WithStaticTable(), WithItemCount(16), WithLoadFactor(4))
	assert.Equal(t, uint(4), s.BucketCount())
	for k := range testAddN {
		_, err := s.Insert(k)
		require.NoError(t, err)
	}
	assert.Equal(t, uint(4), s.BucketCount())
	assert.Equal(t, testAddN, s.Size())
	assert.Len(t, s.sentinels(), 4)
}

type entry struct {
	key  string
	hits int
}

func newEntrySet(opts ...Option) *Set[entry, string] {
	return New(func(e entry) string { return e.key }, Go_CDS.Hasher(0).HashString, cmp.Compare[string], opts...)
}

func TestSet_HeterogeneousLookup(t *testing.T) {
	s := newEntrySet()
	keys := make([]string, 256)
	for i := range keys {
		keys[i] = uuid.NewString()
		ok, err := s.Insert(entry{key: keys[i]})
		require.NoError(t, err)
		require.True(t, ok)
	}
	for _, k := range keys {
		assert.True(t, s.Find(k))
	}
	assert.False(t, s.Find(uuid.NewString()))
	var calls atomic.Int32
	counting := func(a, b string) int {
		calls.Add(1)
		return cmp.Compare(a, b)
	}
	assert.True(t, s.FindWith(keys[3], counting))
	assert.True(t, s.EraseWith(keys[3], counting))
	assert.False(t, s.FindWith(keys[3], counting))
	assert.NotZero(t, calls.Load())
	assert.True(t, s.FindWithFunc(keys[5], counting, func(e *entry, k string) {
		assert.Equal(t, keys[5], k)
		e.hits = 5
	}))
	assert.False(t, s.FindWithFunc(keys[3], counting, func(*entry, string) { t.Fatal("called for a missing key") }))
	var removed entry
	assert.True(t, s.EraseWithFunc(keys[5], counting, func(e *entry) { removed = *e }))
	assert.Equal(t, entry{key: keys[5], hits: 5}, removed)
	assert.False(t, s.EraseWithFunc(keys[5], counting, func(*entry) { t.Fatal("called for a missing key") }))
	p := s.ExtractWith(keys[4], counting)
	require.False(t, p.Empty())
	assert.Equal(t, keys[4], p.Value().key)
	p.Release()
	assert.Equal(t, len(keys)-3, s.Size())
}

func TestSet_Ensure(t *testing.T) {
	s := newEntrySet()
	bump := func(isNew bool, item *entry, _ entry) {
		if !isNew {
			item.hits++
		}
	}
	isNew, err := s.Ensure(entry{key: "a"}, bump)
	require.NoError(t, err)
	assert.True(t, isNew)
	for range 3 {
		isNew, err = s.Ensure(entry{key: "a"}, bump)
		require.NoError(t, err)
		assert.False(t, isNew)
	}
	assert.True(t, s.FindFunc("a", func(item *entry, k string) {
		assert.Equal(t, "a", k)
		assert.Equal(t, 3, item.hits)
	}))
	assert.Equal(t, 1, s.Size())
}

func TestSet_EnsureConcurrentlyOnce(t *testing.T) {
	s := newEntrySet()
	var created atomic.Int32
	var mu sync.Mutex
	wg := sync.WaitGroup{}
	wg.Add(testThrdsN)
	for range testThrdsN {
		go func() {
			defer wg.Done()
			for i := range 64 {
				_, err := s.Ensure(entry{key: fmt.Sprint(i)}, func(isNew bool, item *entry, _ entry) {
					if isNew {
						created.Add(1)
						return
					}
					mu.Lock()
					item.hits++
					mu.Unlock()
				})
				if err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(64), created.Load())
	assert.Equal(t, 64, s.Size())
	total := 0
	s.Range(func(e *entry) bool {
		total += e.hits
		return true
	})
	assert.Equal(t, 64*(testThrdsN-1), total)
}

func TestSet_InsertFunc(t *testing.T) {
	s := newEntrySet()
	ok, err := s.InsertFunc(entry{key: "x"}, func(e *entry) { e.hits = 42 })
	require.NoError(t, err)
	require.True(t, ok)
	called := false
	ok, err = s.InsertFunc(entry{key: "x"}, func(*entry) { called = true })
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, called)

	sec := s.Lock()
	e := s.Get("x")
	require.NotNil(t, e)
	assert.Equal(t, 42, e.hits)
	assert.Nil(t, s.Get("y"))
	sec.Unlock()
}

func TestSet_EraseFunc(t *testing.T) {
	s := newEntrySet()
	_, _ = s.Insert(entry{key: "x", hits: 9})
	var seen entry
	assert.True(t, s.EraseFunc("x", func(e *entry) { seen = *e }))
	assert.Equal(t, entry{key: "x", hits: 9}, seen)
	assert.False(t, s.EraseFunc("x", func(*entry) { t.Fatal("called for a missing key") }))
	assert.True(t, s.Empty())
}

func TestSet_Clear(t *testing.T) {
	s := newIntSet()
	for k := range testAddN {
		_, _ = s.Insert(k)
	}
	s.Clear()
	assert.True(t, s.Empty())
	s.Range(func(*int) bool {
		t.Fatal("element left after Clear")
		return false
	})
	for k := range testAddN {
		assert.False(t, s.Find(k))
	}
	ok, err := s.Insert(5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, s.Size())
}

var errTestOOM = errors.New("out of test memory")

type limitAlloc struct {
	left, freed atomic.Int64
}

func (a *limitAlloc) Alloc() (*OrderedList.Node[int], error) {
	if a.left.Add(-1) < 0 {
		a.left.Add(1)
		return nil, errTestOOM
	}
	return new(OrderedList.Node[int]), nil
}

func (a *limitAlloc) Free(*OrderedList.Node[int]) {
	a.freed.Add(1)
}

func TestSet_ResourceExhausted(t *testing.T) {
	a := new(limitAlloc)
	s := newIntSet(WithAllocator[int](a), WithItemCount(2), WithStatistics())
	require.Equal(t, uint(2), s.BucketCount())

	// bucket 1 has no sentinel yet and none can be allocated.
	ok, err := s.Insert(1)
	assert.False(t, ok)
	require.ErrorIs(t, err, ErrResourceExhausted)
	require.ErrorIs(t, err, errTestOOM)
	assert.Nil(t, s.table.load(1))
	assert.False(t, s.Find(1)) //falls back to bucket 0.
	isNew, err := s.Ensure(3, func(bool, *int, int) { t.Fatal("called on failure") })
	assert.False(t, isNew)
	require.ErrorIs(t, err, ErrResourceExhausted)

	// the sentinel fits, the element doesn't.
	a.left.Store(1)
	_, err = s.Insert(1)
	require.ErrorIs(t, err, ErrResourceExhausted)
	assert.NotNil(t, s.table.load(1))
	assert.True(t, s.Empty())
	assert.Len(t, s.sentinels(), 2)

	a.left.Store(1)
	ok, err = s.Insert(1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, s.Find(1))
	assert.Equal(t, int64(4), s.Statistics().AllocFailed)
	assert.Zero(t, a.freed.Load())
}

func TestSet_AllocatorTypeMismatch(t *testing.T) {
	assert.Panics(t, func() {
		newIntSet(WithAllocator[string](NewPoolAllocator[string]()))
	})
	assert.Panics(t, func() {
		newIntSet(WithOrderedList[string](OrderedList.NewMichael[string]()))
	})
}

func TestSet_Statistics(t *testing.T) {
	s := newIntSet(WithStatistics())
	for k := range 8 {
		_, _ = s.Insert(k)
	}
	_, _ = s.Insert(1)
	s.Find(2)
	s.Find(100)
	s.Erase(3)
	s.Erase(3)
	s.Extract(4).Release()
	s.Extract(4)
	_, _ = s.Ensure(5, func(bool, *int, int) {})
	_, _ = s.Ensure(50, func(bool, *int, int) {})
	st := s.Statistics()
	assert.Equal(t, int64(8), st.InsertSuccess)
	assert.Equal(t, int64(1), st.InsertFailed)
	assert.Equal(t, int64(1), st.FindSuccess)
	assert.Equal(t, int64(1), st.FindFailed)
	assert.Equal(t, int64(1), st.EraseSuccess)
	assert.Equal(t, int64(1), st.EraseFailed)
	assert.Equal(t, int64(1), st.ExtractSuccess)
	assert.Equal(t, int64(1), st.ExtractFailed)
	assert.Equal(t, int64(1), st.EnsureNew)
	assert.Equal(t, int64(1), st.EnsureExisting)
	assert.Equal(t, int64(3), st.TableGrowth)
	assert.Equal(t, int64(len(s.sentinels())-1), st.SentinelCreated)

	assert.Zero(t, newIntSet().Statistics())
}

func TestSet_ConcurrentSentinelsOnce(t *testing.T) {
	s := newIntSet(WithItemCount(1<<10), WithStatistics())
	wg := sync.WaitGroup{}
	wg.Add(testThrdsN)
	for range testThrdsN {
		go func() {
			defer wg.Done()
			for k := range testAddN {
				if _, err := s.Insert(k); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()
	sentinels := s.sentinels()
	for i := 1; i < len(sentinels); i++ {
		require.Less(t, sentinels[i-1], sentinels[i])
	}
	st := s.Statistics()
	assert.Equal(t, int64(len(sentinels)-1), st.SentinelCreated)
	assert.Equal(t, int64(testAddN), st.InsertSuccess)
	assert.Equal(t, testAddN, s.Size())
}
