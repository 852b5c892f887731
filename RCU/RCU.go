// Package RCU implements read-copy-update style reclamation: readers enter cheap read sections, writers wait for a grace period before reusing anything the readers may still hold.
package RCU

import (
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRetireCapacity = 256
	spinsBeforeSleep      = 64
	maxBackoff            = time.Millisecond
)

type shard struct {
	readers [2]atomic.Int64 //active readers per epoch parity.
	_       [48]byte
}

// Domain is one reclamation domain. Read sections of a Domain only delay grace periods of the same Domain.
type Domain struct {
	epoch  atomic.Uint32
	shards []shard
	mask   uint32

	syncMu sync.Mutex //serializes epoch flips.

	mu       sync.Mutex
	retired  []func()
	capacity int

	syncs atomic.Uint64
	log   *zap.SugaredLogger
}

type Option func(*Domain)

// WithShards sets the number of reader counters, rounded up to a power of 2. More shards make read sections cheaper and Synchronize slower.
func WithShards(n int) Option {
	return func(d *Domain) {
		d.shards = make([]shard, nextPowerOfTwo(max(n, 1)))
	}
}

// WithRetireCapacity sets how many retired callbacks are buffered before Retire forces a Synchronize.
func WithRetireCapacity(n int) Option {
	return func(d *Domain) {
		d.capacity = max(n, 1)
	}
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(d *Domain) {
		d.log = l
	}
}

func New(opts ...Option) *Domain {
	d := &Domain{capacity: defaultRetireCapacity, log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(d)
	}
	if d.shards == nil {
		d.shards = make([]shard, nextPowerOfTwo(runtime.GOMAXPROCS(0)))
	}
	d.mask = uint32(len(d.shards) - 1)
	return d
}

// Section is an open read section. Every Section must be closed exactly once with Unlock, by any goroutine.
type Section struct {
	d         *Domain
	slot, idx uint32
}

// Lock opens a read section. Sections nest freely and never block.
func (d *Domain) Lock() Section {
	slot := rand.Uint32() & d.mask
	idx := d.epoch.Load() & 1
	d.shards[slot].readers[idx].Add(1)
	return Section{d: d, slot: slot, idx: idx}
}

func (s Section) Unlock() {
	s.d.shards[s.slot].readers[s.idx].Add(-1)
}

// Synchronize waits until every read section opened before the call has closed, then runs the callbacks retired before the call.
// Calling it from inside a read section of the same Domain deadlocks.
func (d *Domain) Synchronize() {
	d.mu.Lock()
	batch := d.retired
	d.retired = nil
	d.mu.Unlock()

	d.syncMu.Lock()
	// a reader may have sampled the parity just before a previous flip, so both parities are drained.
	for range 2 {
		old := d.epoch.Add(1) - 1
		d.drain(old & 1)
	}
	d.syncMu.Unlock()
	d.syncs.Add(1)

	for _, free := range batch {
		free()
	}
	if len(batch) > 0 {
		d.log.Debugw("rcu grace period reclaimed", "callbacks", len(batch))
	}
}

func (d *Domain) drain(idx uint32) {
	backoff := time.Microsecond
	for spins := 0; d.active(idx) != 0; spins++ {
		if spins < spinsBeforeSleep {
			runtime.Gosched()
			continue
		}
		time.Sleep(backoff)
		backoff = min(backoff<<1, maxBackoff)
	}
}

func (d *Domain) active(idx uint32) (n int64) {
	for i := range d.shards {
		n += d.shards[i].readers[idx].Load()
	}
	return
}

// Retire defers free until a grace period has passed. When the buffer is full the caller runs Synchronize itself, so Retire must not be called from inside a read section of the same Domain.
func (d *Domain) Retire(free func()) {
	d.mu.Lock()
	d.retired = append(d.retired, free)
	full := len(d.retired) >= d.capacity
	d.mu.Unlock()
	if full {
		d.Synchronize()
	}
}

// Pending returns the number of retired callbacks that haven't run yet.
func (d *Domain) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.retired)
}

// Syncs returns the number of completed grace periods.
func (d *Domain) Syncs() uint64 {
	return d.syncs.Load()
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
