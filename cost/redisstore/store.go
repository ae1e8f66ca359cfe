// Package redisstore implements cost.Store on top of Redis, so the
// Day/Month/Total accumulators are shared across every gateway replica
// instead of living in one process's memory (cost.NewMemStore).
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vllora/gateway/cost"
)

// windowTTL bounds how long an idle accumulator key survives, so closed
// Day/Month buckets don't accumulate forever once nothing queries them.
var windowTTL = map[cost.Window]time.Duration{
	cost.WindowDay:   48 * time.Hour,
	cost.WindowMonth: 32 * 24 * time.Hour,
	cost.WindowTotal: 0, // never expires
}

// Store adapts a *redis.Client to cost.Store. Atomicity of AddAndGet comes
// from INCRBYFLOAT, which Redis guarantees is applied as a single operation
// even under concurrent callers from different replicas.
type Store struct {
	client *redis.Client
	prefix string
}

// Options configures a Store. Prefix namespaces keys when one Redis instance
// is shared with unrelated consumers.
type Options struct {
	Client *redis.Client
	Prefix string
}

// New constructs a Store. It does not itself verify connectivity; callers
// that want a fail-fast startup should Ping the client beforehand.
func New(opts Options) *Store {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "gateway:cost:"
	}
	return &Store{client: opts.Client, prefix: prefix}
}

func (s *Store) AddAndGet(ctx context.Context, scope cost.Scope, window cost.Window, periodKey string, delta float64) (float64, error) {
	key := s.key(scope, window, periodKey)
	total, err := s.client.IncrByFloat(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("redisstore: incrbyfloat %s: %w", key, err)
	}
	if ttl := windowTTL[window]; ttl > 0 {
		s.client.Expire(ctx, key, ttl)
	}
	return total, nil
}

func (s *Store) Get(ctx context.Context, scope cost.Scope, window cost.Window, periodKey string) (float64, error) {
	key := s.key(scope, window, periodKey)
	val, err := s.client.Get(ctx, key).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redisstore: get %s: %w", key, err)
	}
	return val, nil
}

func (s *Store) key(scope cost.Scope, window cost.Window, periodKey string) string {
	scopeKey := string(scope.Kind)
	if scope.ProjectID != "" {
		scopeKey += ":" + scope.ProjectID
	}
	return fmt.Sprintf("%s%s:%s:%s:%s", s.prefix, scopeKey, scope.Key, window, periodKey)
}
