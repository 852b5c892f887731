package SplitList

import (
	"math/rand/v2"
	"runtime"
	"sync/atomic"
)

// Stat is a snapshot of the operation counters of a Set.
type Stat struct {
	InsertSuccess, InsertFailed   int64
	EnsureNew, EnsureExisting     int64
	EraseSuccess, EraseFailed     int64
	ExtractSuccess, ExtractFailed int64
	FindSuccess, FindFailed       int64
	SentinelCreated, SentinelRace int64
	TableGrowth, AllocFailed      int64
}

type statShard struct {
	insertSuccess, insertFailed   atomic.Int64
	ensureNew, ensureExisting     atomic.Int64
	eraseSuccess, eraseFailed     atomic.Int64
	extractSuccess, extractFailed atomic.Int64
	findSuccess, findFailed       atomic.Int64
	sentinelCreated, sentinelRace atomic.Int64
	tableGrowth, allocFailed      atomic.Int64
	_                             [16]byte
}

// stat spreads counters over shards to keep hot paths off a single cache line. A nil *stat counts nothing.
type stat struct {
	shards []statShard
	mask   uint32
}

func newStat() *stat {
	n := nextPowerOfTwo(uint(runtime.GOMAXPROCS(0)))
	return &stat{shards: make([]statShard, n), mask: uint32(n - 1)}
}

func (s *stat) shard() *statShard {
	return &s.shards[rand.Uint32()&s.mask]
}

func pick(ok bool, yes, no *atomic.Int64) *atomic.Int64 {
	if ok {
		return yes
	}
	return no
}

func (s *stat) onInsert(ok bool) {
	if s != nil {
		sh := s.shard()
		pick(ok, &sh.insertSuccess, &sh.insertFailed).Add(1)
	}
}

func (s *stat) onEnsure(isNew bool) {
	if s != nil {
		sh := s.shard()
		pick(isNew, &sh.ensureNew, &sh.ensureExisting).Add(1)
	}
}

func (s *stat) onErase(ok bool) {
	if s != nil {
		sh := s.shard()
		pick(ok, &sh.eraseSuccess, &sh.eraseFailed).Add(1)
	}
}

func (s *stat) onExtract(ok bool) {
	if s != nil {
		sh := s.shard()
		pick(ok, &sh.extractSuccess, &sh.extractFailed).Add(1)
	}
}

func (s *stat) onFind(ok bool) {
	if s != nil {
		sh := s.shard()
		pick(ok, &sh.findSuccess, &sh.findFailed).Add(1)
	}
}

func (s *stat) onSentinel(created bool) {
	if s != nil {
		sh := s.shard()
		pick(created, &sh.sentinelCreated, &sh.sentinelRace).Add(1)
	}
}

func (s *stat) onGrowth() {
	if s != nil {
		s.shard().tableGrowth.Add(1)
	}
}

func (s *stat) onAllocFailed() {
	if s != nil {
		s.shard().allocFailed.Add(1)
	}
}

func (s *stat) snapshot() (st Stat) {
	if s == nil {
		return
	}
	for i := range s.shards {
		sh := &s.shards[i]
		st.InsertSuccess += sh.insertSuccess.Load()
		st.InsertFailed += sh.insertFailed.Load()
		st.EnsureNew += sh.ensureNew.Load()
		st.EnsureExisting += sh.ensureExisting.Load()
		st.EraseSuccess += sh.eraseSuccess.Load()
		st.EraseFailed += sh.eraseFailed.Load()
		st.ExtractSuccess += sh.extractSuccess.Load()
		st.ExtractFailed += sh.extractFailed.Load()
		st.FindSuccess += sh.findSuccess.Load()
		st.FindFailed += sh.findFailed.Load()
		st.SentinelCreated += sh.sentinelCreated.Load()
		st.SentinelRace += sh.sentinelRace.Load()
		st.TableGrowth += sh.tableGrowth.Load()
		st.AllocFailed += sh.allocFailed.Load()
	}
	return
}
