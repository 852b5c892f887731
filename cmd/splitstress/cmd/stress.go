package cmd

import (
	"cmp"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emirpasic/gods/sets/hashset"
	Go_CDS "github.com/g-m-twostay/go-cds"
	"github.com/g-m-twostay/go-cds/Sets/SplitList"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type workload struct {
	writers, readers, extractors int
	keys, ops                    int
	loadFactor, itemCount        uint
	static, uuids                bool
	seed                         uint64
}

type report struct {
	elapsed        time.Duration
	reads, hits    int64
	torn, mismatch int64
	size, expected int
	buckets        uint
	syncs          uint64
	stat           SplitList.Stat
}

var (
	errTorn     = errors.New("read an element after it was reclaimed")
	errMismatch = errors.New("set contents differ from the sequential replay")
)

// record carries a checksum of its key; a reclaimed record is zeroed and fails the check.
type record struct {
	key string
	sum uint
}

var hasher = Go_CDS.Hasher(0)

func newRecord(key string) record {
	return record{key: key, sum: hasher.HashString(key) ^ 0x5bd1e995}
}

func (r *record) valid() bool {
	return r.key != "" && r.sum == hasher.HashString(r.key)^0x5bd1e995
}

func runStress(cmd *cobra.Command, _ []string) error {
	log, err := newLogger(flagVerbose.Bool(cmd))
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	w := workload{
		writers:    flagWriters.Int(cmd),
		readers:    flagReaders.Int(cmd),
		extractors: flagExtractors.Int(cmd),
		keys:       flagKeys.Int(cmd),
		ops:        flagOps.Int(cmd),
		loadFactor: flagLoadFactor.Uint(cmd),
		itemCount:  flagItemCount.Uint(cmd),
		static:     flagStatic.Bool(cmd),
		uuids:      flagUUID.Bool(cmd),
		seed:       flagSeed.Uint64(cmd),
	}
	if w.seed == 0 {
		w.seed = rand.Uint64()
	}
	if err := w.validate(); err != nil {
		return err
	}
	log.Infow("starting stress run", "writers", w.writers, "readers", w.readers, "extractors", w.extractors, "keys", w.keys, "ops", w.ops, "seed", w.seed)
	r, err := w.run(log)
	fmt.Fprintf(cmd.OutOrStdout(), "elapsed %v, size %d (expected %d), buckets %d, grace periods %d\n", r.elapsed, r.size, r.expected, r.buckets, r.syncs)
	fmt.Fprintf(cmd.OutOrStdout(), "reads %d, hits %d, torn %d, mismatches %d\n", r.reads, r.hits, r.torn, r.mismatch)
	fmt.Fprintf(cmd.OutOrStdout(), "stats %+v\n", r.stat)
	if err != nil {
		log.Errorw("stress run failed", "seed", w.seed, "error", err)
	}
	return err
}

func (w workload) validate() error {
	if w.keys <= 0 {
		return fmt.Errorf("--%s must be positive, got %d", flagKeys, w.keys)
	}
	for _, f := range []struct {
		name flagName
		v    int
	}{{flagWriters, w.writers}, {flagReaders, w.readers}, {flagExtractors, w.extractors}, {flagOps, w.ops}} {
		if f.v < 0 {
			return fmt.Errorf("--%s must not be negative, got %d", f.name, f.v)
		}
	}
	return nil
}

func (w workload) keySpace(rng *rand.Rand, n int) []string {
	ks := make([]string, n)
	for i := range ks {
		if w.uuids {
			ks[i] = uuid.Must(uuid.NewRandomFromReader(rngReader{rng})).String()
		} else {
			ks[i] = strconv.Itoa(rng.Int())
		}
	}
	return ks
}

type rngReader struct {
	rng *rand.Rand
}

func (r rngReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.rng.Uint32())
	}
	return len(p), nil
}

func (w workload) run(log *zap.SugaredLogger) (r report, err error) {
	opts := []SplitList.Option{
		SplitList.WithLoadFactor(w.loadFactor),
		SplitList.WithItemCount(w.itemCount),
		SplitList.WithStatistics(),
		SplitList.WithLogger(log),
	}
	if w.static {
		opts = append(opts, SplitList.WithStaticTable())
	}
	s := SplitList.New(func(r record) string { return r.key }, hasher.HashString, cmp.Compare[string], opts...)

	owners := w.writers + w.extractors
	keys := make([][]string, owners)
	all := make([]string, 0, owners*w.keys)
	seen := make(map[string]struct{}, owners*w.keys)
	for o := range keys {
		rng := rand.New(rand.NewPCG(w.seed, uint64(o)))
		for _, k := range w.keySpace(rng, w.keys) {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				keys[o] = append(keys[o], k)
			}
		}
		all = append(all, keys[o]...)
	}
	for _, ks := range keys[w.writers:] {
		for _, k := range ks {
			if _, err = s.Insert(newRecord(k)); err != nil {
				return r, err
			}
		}
	}

	start := time.Now()
	var stop atomic.Bool
	oracles := make([]*hashset.Set, w.writers)
	var workers, readers sync.WaitGroup
	workers.Add(owners)
	for o := range w.writers {
		go func() {
			defer workers.Done()
			oracles[o] = w.write(s, keys[o], rand.New(rand.NewPCG(w.seed, uint64(owners+o))), &r)
		}()
	}
	for o := w.writers; o < owners; o++ {
		go func() {
			defer workers.Done()
			w.extract(s, keys[o], rand.New(rand.NewPCG(w.seed, uint64(owners+o))), &r)
		}()
	}
	readers.Add(w.readers)
	for i := range w.readers {
		go func() {
			defer readers.Done()
			rng := rand.New(rand.NewPCG(w.seed, uint64(2*owners+i)))
			var reads, hits int64
			for !stop.Load() && len(all) > 0 {
				sec := s.Lock()
				if p := s.Get(all[rng.IntN(len(all))]); p != nil {
					hits++
					if !p.valid() {
						atomic.AddInt64(&r.torn, 1)
					}
				}
				sec.Unlock()
				reads++
			}
			atomic.AddInt64(&r.reads, reads)
			atomic.AddInt64(&r.hits, hits)
		}()
	}
	workers.Wait()
	stop.Store(true)
	readers.Wait()
	r.elapsed = time.Since(start)

	for o, oracle := range oracles {
		r.expected += oracle.Size()
		for _, k := range keys[o] {
			if s.Find(k) != oracle.Contains(k) {
				r.mismatch++
			}
		}
	}
	for _, ks := range keys[w.writers:] {
		r.expected += len(ks)
		for _, k := range ks {
			if !s.Find(k) {
				r.mismatch++
			}
		}
	}
	s.Range(func(p *record) bool {
		if !p.valid() {
			r.torn++
		}
		return true
	})
	r.size, r.buckets, r.syncs, r.stat = s.Size(), s.BucketCount(), s.RCU().Syncs(), s.Statistics()
	if r.size != r.expected {
		r.mismatch++
	}
	return r, errors.Join(check(r.torn != 0, errTorn), check(r.mismatch != 0, errMismatch))
}

func check(failed bool, err error) error {
	if failed {
		return err
	}
	return nil
}

// write inserts and erases keys at random and returns the sequential replay of what it did.
func (w workload) write(s *SplitList.Set[record, string], keys []string, rng *rand.Rand, r *report) *hashset.Set {
	oracle := hashset.New()
	for range w.ops {
		k := keys[rng.IntN(len(keys))]
		if rng.IntN(2) == 0 {
			ok, err := s.Insert(newRecord(k))
			if err != nil || ok == oracle.Contains(k) {
				atomic.AddInt64(&r.mismatch, 1)
			}
			oracle.Add(k)
		} else {
			if s.Erase(k) != oracle.Contains(k) {
				atomic.AddInt64(&r.mismatch, 1)
			}
			oracle.Remove(k)
		}
	}
	return oracle
}

func (w workload) extract(s *SplitList.Set[record, string], keys []string, rng *rand.Rand, r *report) {
	for range w.ops {
		k := keys[rng.IntN(len(keys))]
		p := s.Extract(k)
		if p.Empty() {
			atomic.AddInt64(&r.mismatch, 1)
			continue
		}
		if !p.Value().valid() {
			atomic.AddInt64(&r.torn, 1)
		}
		p.Release()
		if ok, err := s.Insert(newRecord(k)); !ok || err != nil {
			atomic.AddInt64(&r.mismatch, 1)
		}
	}
}
