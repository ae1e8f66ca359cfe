// Package redisrepo implements metrics.Store on top of Redis, so the
// rolling observation window behind virtual-model resolution is shared
// across every gateway replica instead of living in one process's memory
// (metrics.NewMemStore).
package redisrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vllora/gateway/metrics"
)

// Store adapts a *redis.Client to metrics.Store. Each candidate's
// observations live in one Redis sorted set scored by their Unix nanosecond
// timestamp, alongside a set recording which candidates have ever been
// observed. Window trims and then reads with two separate commands:
// ZREMRANGEBYSCORE drops everything at or before the cutoff, then ZRANGE
// returns whatever survives; the two are not sent as one atomic step.
type Store struct {
	client *redis.Client
	prefix string
}

// Options configures a Store. Prefix namespaces keys when one Redis
// instance is shared with unrelated consumers.
type Options struct {
	Client *redis.Client
	Prefix string
}

// New constructs a Store. It does not itself verify connectivity; callers
// that want a fail-fast startup should Ping the client beforehand.
func New(opts Options) *Store {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "gateway:metrics:"
	}
	return &Store{client: opts.Client, prefix: prefix}
}

// record is the wire shape of a metrics.Observation stored as a sorted set
// member. The score alone (the timestamp) already sorts and bounds the set,
// so the member only needs to carry the fields Window can't recompute from
// the score.
type record struct {
	LatencyNS int64   `json:"latency_ns"`
	Failed    bool    `json:"failed"`
	CostPer1K float64 `json:"cost_per_1k"`
}

func (s *Store) Append(ctx context.Context, c metrics.Candidate, o metrics.Observation) error {
	payload, err := json.Marshal(record{LatencyNS: int64(o.Latency), Failed: o.Failed, CostPer1K: o.CostPer1K})
	if err != nil {
		return fmt.Errorf("redisrepo: marshal observation: %w", err)
	}

	key := s.obsKey(c)
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: float64(o.At.UnixNano()), Member: string(payload)}).Err(); err != nil {
		return fmt.Errorf("redisrepo: zadd %s: %w", key, err)
	}
	if err := s.client.SAdd(ctx, s.candidatesKey(), candidateMember(c)).Err(); err != nil {
		return fmt.Errorf("redisrepo: sadd candidates: %w", err)
	}
	return nil
}

func (s *Store) Window(ctx context.Context, c metrics.Candidate, since time.Time) ([]metrics.Observation, error) {
	key := s.obsKey(c)

	if err := s.client.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", since.UnixNano())).Err(); err != nil {
		return nil, fmt.Errorf("redisrepo: trim %s: %w", key, err)
	}

	entries, err := s.client.ZRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisrepo: zrange %s: %w", key, err)
	}

	out := make([]metrics.Observation, 0, len(entries))
	for _, z := range entries {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		var r record
		if err := json.Unmarshal([]byte(member), &r); err != nil {
			return nil, fmt.Errorf("redisrepo: unmarshal observation: %w", err)
		}
		out = append(out, metrics.Observation{
			At:        time.Unix(0, int64(z.Score)),
			Latency:   time.Duration(r.LatencyNS),
			Failed:    r.Failed,
			CostPer1K: r.CostPer1K,
		})
	}
	return out, nil
}

func (s *Store) Keys(ctx context.Context) ([]metrics.Candidate, error) {
	members, err := s.client.SMembers(ctx, s.candidatesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redisrepo: smembers candidates: %w", err)
	}
	out := make([]metrics.Candidate, 0, len(members))
	for _, m := range members {
		provider, model, ok := strings.Cut(m, "/")
		if !ok {
			continue
		}
		out = append(out, metrics.Candidate{Provider: provider, Model: model})
	}
	return out, nil
}

func (s *Store) obsKey(c metrics.Candidate) string { return s.prefix + "obs:" + candidateMember(c) }

func (s *Store) candidatesKey() string { return s.prefix + "candidates" }

func candidateMember(c metrics.Candidate) string { return c.Provider + "/" + c.Model }
