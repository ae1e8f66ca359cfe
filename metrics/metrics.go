// Package metrics implements the Metrics Repository: a rolling window of
// per-candidate (provider, model) observations consumed by virtual-model
// resolution in package router (spec §4.4 "Model resolution").
//
// The repository keeps its own write path (Record) separate from the read
// path (Snapshot) by publishing a copy-on-write *Snapshot through an
// atomic.Pointer, generalized from the teacher's cluster-map
// subscribe-and-replace idiom in features/model/middleware/ratelimit.go
// (newClusterAdaptiveRateLimiter's watch goroutine, which reconciles a
// single shared float on every cluster change) to a whole metrics snapshot,
// recomputed locally on a timer instead of on a cluster notification since
// the rolling stats here are process-local, not cluster-shared.
package metrics

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Candidate identifies one resolvable target a virtual model can pick among.
type Candidate struct {
	Provider string
	Model    string
}

func (c Candidate) key() string { return c.Provider + "/" + c.Model }

// Stats is the tie-break material for one Candidate, aggregated over the
// repository's rolling window (spec §4.4: "error rate in the last N
// minutes, then p95 latency, then cost").
type Stats struct {
	ErrorRate  float64
	P95Latency time.Duration
	CostPer1K  float64
	Samples    int
}

// Snapshot is an immutable point-in-time view of Stats for every candidate
// with at least one observation in the window. Safe for concurrent reads
// without locking: callers always get one obtained via Repository.Snapshot.
type Snapshot struct {
	stats map[string]Stats
}

// Stats returns the candidate's aggregated stats, or ok=false if it has no
// observation in the current window.
func (s *Snapshot) Stats(c Candidate) (Stats, bool) {
	if s == nil {
		return Stats{}, false
	}
	st, ok := s.stats[c.key()]
	return st, ok
}

// Best applies the spec's tie-break order — lowest error rate, then lowest
// p95 latency, then lowest cost — over candidates, returning the winner and
// false if none of them have any observations yet (the caller then falls
// back to its own default ordering, e.g. config declaration order).
func (s *Snapshot) Best(candidates []Candidate) (Candidate, bool) {
	type scored struct {
		c Candidate
		st Stats
	}
	var pool []scored
	for _, c := range candidates {
		if st, ok := s.Stats(c); ok {
			pool = append(pool, scored{c, st})
		}
	}
	if len(pool) == 0 {
		return Candidate{}, false
	}
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i].st, pool[j].st
		if a.ErrorRate != b.ErrorRate {
			return a.ErrorRate < b.ErrorRate
		}
		if a.P95Latency != b.P95Latency {
			return a.P95Latency < b.P95Latency
		}
		return a.CostPer1K < b.CostPer1K
	})
	return pool[0].c, true
}

// Observation is one recorded outcome for a Candidate. It is exported so an
// alternate Store (e.g. metrics/redisrepo) can serialize it onto a shared
// backend instead of the in-process default.
type Observation struct {
	At        time.Time
	Latency   time.Duration
	Failed    bool
	CostPer1K float64
}

// Store is the Repository's observation backend. memStore (this package's
// default, returned by NewMemStore) guards a single process-local map with a
// mutex; metrics/redisrepo.Store delegates to a shared Redis sorted set per
// candidate instead, so every gateway replica tie-breaks virtual models
// against the same rolling window — generalized from cost.Store's
// memStore/redisstore.Store split (cost/engine.go, cost/redisstore), except
// here the accumulator is a trimmed observation log rather than a running
// total.
type Store interface {
	// Append records one observation for c.
	Append(ctx context.Context, c Candidate, o Observation) error

	// Window returns c's observations strictly after since, having first
	// dropped any observation at or before since from the backend so the
	// log does not grow without bound.
	Window(ctx context.Context, c Candidate, since time.Time) ([]Observation, error)

	// Keys returns every candidate with at least one stored observation,
	// regardless of whether it currently falls within any caller's window.
	Keys(ctx context.Context) ([]Candidate, error)
}

type memStore struct {
	mu   sync.Mutex
	logs map[string]candidateLog
}

type candidateLog struct {
	candidate Candidate
	obs       []Observation
}

// NewMemStore returns the process-local default Store.
func NewMemStore() Store {
	return &memStore{logs: make(map[string]candidateLog)}
}

func (s *memStore) Append(_ context.Context, c Candidate, o Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := c.key()
	entry := s.logs[key]
	entry.candidate = c
	entry.obs = append(entry.obs, o)
	s.logs[key] = entry
	return nil
}

func (s *memStore) Window(_ context.Context, c Candidate, since time.Time) ([]Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := c.key()
	entry := s.logs[key]
	kept := entry.obs[:0:0]
	for _, o := range entry.obs {
		if o.At.After(since) {
			kept = append(kept, o)
		}
	}
	entry.obs = kept
	s.logs[key] = entry
	return kept, nil
}

func (s *memStore) Keys(_ context.Context) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Candidate, 0, len(s.logs))
	for _, entry := range s.logs {
		out = append(out, entry.candidate)
	}
	return out, nil
}

// Repository is the write side of the Metrics Repository: Record appends an
// observation for a candidate; a background goroutine periodically
// recomputes and publishes a new Snapshot over the rolling window.
type Repository struct {
	window time.Duration
	now    func() time.Time
	store  Store

	snapshot atomicSnapshot

	stop chan struct{}
	done chan struct{}
}

// NewRepository builds a Repository storing observations in store and
// retaining them for window, recomputing its published Snapshot every
// recomputeEvery. Call Close when done to stop the background goroutine.
func NewRepository(store Store, window, recomputeEvery time.Duration) *Repository {
	r := &Repository{
		window: window,
		now:    time.Now,
		store:  store,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	r.snapshot.store(&Snapshot{stats: map[string]Stats{}})
	go r.loop(recomputeEvery)
	return r
}

// Record appends one observation for candidate: latency is the call's wall
// time, failed marks a retryable-or-fatal ProviderError, cost1K is the
// request's cost per 1,000 tokens at current prices. Recording never blocks
// the caller on the request's own context, since a Store write failure (a
// Redis hiccup) must not turn into a failed LLM call — it is best-effort
// bookkeeping, not part of the request's critical path.
func (r *Repository) Record(c Candidate, latency time.Duration, failed bool, cost1K float64) {
	_ = r.store.Append(context.Background(), c, Observation{At: r.now(), Latency: latency, Failed: failed, CostPer1K: cost1K})
}

// Snapshot returns the most recently published Snapshot.
func (r *Repository) Snapshot() *Snapshot {
	return r.snapshot.load()
}

// Recompute forces an immediate recompute-and-publish cycle instead of
// waiting for the next background tick. Callers that need a Record to be
// reflected in the very next Snapshot (tests, a just-started gateway with a
// long recompute interval) can call this directly.
func (r *Repository) Recompute() {
	r.recompute()
}

// Close stops the background recompute goroutine.
func (r *Repository) Close() {
	close(r.stop)
	<-r.done
}

func (r *Repository) loop(every time.Duration) {
	defer close(r.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.recompute()
		case <-r.stop:
			return
		}
	}
}

func (r *Repository) recompute() {
	cutoff := r.now().Add(-r.window)
	ctx := context.Background()

	keys, err := r.store.Keys(ctx)
	if err != nil {
		return
	}
	stats := make(map[string]Stats, len(keys))
	for _, c := range keys {
		obs, err := r.store.Window(ctx, c, cutoff)
		if err != nil || len(obs) == 0 {
			continue
		}
		stats[c.key()] = summarize(obs)
	}

	r.snapshot.store(&Snapshot{stats: stats})
}

func summarize(obs []Observation) Stats {
	failures := 0
	var totalCost float64
	latencies := make([]time.Duration, 0, len(obs))
	for _, o := range obs {
		if o.Failed {
			failures++
		}
		totalCost += o.CostPer1K
		latencies = append(latencies, o.Latency)
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	idx := int(float64(len(latencies))*0.95) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(latencies) {
		idx = len(latencies) - 1
	}

	return Stats{
		ErrorRate:  float64(failures) / float64(len(obs)),
		P95Latency: latencies[idx],
		CostPer1K:  totalCost / float64(len(obs)),
		Samples:    len(obs),
	}
}
