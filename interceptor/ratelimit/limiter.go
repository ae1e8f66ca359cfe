// Package ratelimit implements the (window, target, limit) leaky-bucket
// rate limiter of spec §4.3, directly adapted from the teacher's
// features/model/middleware.AdaptiveRateLimiter: same golang.org/x/time/rate
// token-bucket core and the same optional goa.design/pulse/rmap
// cluster-coordination mode, generalized from a single process-wide
// tokens-per-minute budget to an arbitrary number of named buckets keyed by
// target ∈ {global, model, project}.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"goa.design/pulse/rmap"
)

// TargetKind is one of the three scopes a bucket can be keyed by.
type TargetKind string

const (
	TargetGlobal  TargetKind = "global"
	TargetModel   TargetKind = "model"
	TargetProject TargetKind = "project"
)

// Target identifies the bucket a request attempt draws a token from.
type Target struct {
	Kind TargetKind
	// ID is the model name or project id this attempt is scoped to; empty
	// for TargetGlobal.
	ID string
}

func (t Target) key() string {
	if t.ID == "" {
		return string(t.Kind)
	}
	return string(t.Kind) + ":" + t.ID
}

// BucketConfig configures the leaky-bucket refill for one TargetKind:
// Limit tokens become available, refilling continuously, over Window.
type BucketConfig struct {
	Window time.Duration
	Limit  int
}

func (c BucketConfig) ratePerSecond() rate.Limit {
	if c.Window <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(c.Limit) / c.Window.Seconds())
}

// clusterMap is the subset of rmap.Map the optional cluster coordinator
// needs, narrowed for testability exactly as the teacher does in
// features/model/middleware/ratelimit.go.
type clusterMap interface {
	Get(key string) (string, bool)
	SetIfNotExists(ctx context.Context, key, value string) (bool, error)
	TestAndSet(ctx context.Context, key, test, value string) (string, error)
}

// Limiter enforces per-target token buckets. Each distinct Target.key()
// gets its own *rate.Limiter, created lazily and configured from the
// BucketConfig registered for its Kind.
type Limiter struct {
	mu       sync.Mutex
	configs  map[TargetKind]BucketConfig
	buckets  map[string]*rate.Limiter
	cluster  clusterMap
	cluster0 string // key prefix for cluster-shared global bucket state
}

// NewLimiter builds a Limiter with one BucketConfig per TargetKind that should be
// enforced; a TargetKind with no entry is unlimited.
func NewLimiter(configs map[TargetKind]BucketConfig) *Limiter {
	return &Limiter{configs: configs, buckets: make(map[string]*rate.Limiter)}
}

// WithCluster enables cross-instance coordination of the TargetGlobal
// bucket's remaining capacity via a Pulse replicated map, mirroring the
// teacher's NewAdaptiveRateLimiter(ctx, m, key, ...) cluster mode. Only the
// global bucket is coordinated: per-model/per-project buckets stay
// process-local, since spec §4.3 only requires a shared *ceiling*, not a
// shared moving window, and the teacher's own cluster coordinator likewise
// only ever synchronized a single shared budget value.
func (l *Limiter) WithCluster(m *rmap.Map, keyPrefix string) *Limiter {
	l.cluster = &rmapClusterMap{m: m}
	l.cluster0 = keyPrefix
	return l
}

// Allow attempts to draw one token from target's bucket. ok is false when
// the bucket has no token available right now; retryAfter then reports how
// long the caller should wait before retrying (spec §4.3: "On exhaustion
// blocks with RateLimited{retry_after}").
func (l *Limiter) Allow(target Target) (ok bool, retryAfter time.Duration) {
	lim := l.bucketFor(target)
	if lim == nil {
		return true, 0
	}
	reservation := lim.Reserve()
	if !reservation.OK() {
		return false, 0
	}
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		return false, delay
	}
	return true, 0
}

func (l *Limiter) bucketFor(target Target) *rate.Limiter {
	cfg, configured := l.configs[target.Kind]
	if !configured {
		return nil
	}
	key := target.key()

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.buckets[key]; ok {
		return lim
	}
	burst := cfg.Limit
	if burst <= 0 {
		burst = 1
	}
	lim := rate.NewLimiter(cfg.ratePerSecond(), burst)
	l.buckets[key] = lim

	if target.Kind == TargetGlobal && l.cluster != nil {
		l.syncGlobalFromCluster(lim, cfg)
	}
	return lim
}

// syncGlobalFromCluster seeds the freshly created global limiter's burst
// from the cluster-shared value if one already exists, or publishes this
// instance's configured limit as the shared starting point otherwise —
// the same best-effort seed-then-reconcile shape as the teacher's
// newClusterAdaptiveRateLimiter.
func (l *Limiter) syncGlobalFromCluster(lim *rate.Limiter, cfg BucketConfig) {
	key := l.cluster0 + ":global_limit"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, ok := l.cluster.Get(key); !ok {
		_, _ = l.cluster.SetIfNotExists(ctx, key, strconv.Itoa(cfg.Limit))
		return
	}
	cur, ok := l.cluster.Get(key)
	if !ok {
		return
	}
	if v, err := strconv.Atoi(cur); err == nil && v > 0 {
		lim.SetBurst(v)
	}
}

type rmapClusterMap struct {
	m *rmap.Map
}

func (c *rmapClusterMap) Get(key string) (string, bool) { return c.m.Get(key) }

func (c *rmapClusterMap) SetIfNotExists(ctx context.Context, key, value string) (bool, error) {
	return c.m.SetIfNotExists(ctx, key, value)
}

func (c *rmapClusterMap) TestAndSet(ctx context.Context, key, test, value string) (string, error) {
	return c.m.TestAndSet(ctx, key, test, value)
}
