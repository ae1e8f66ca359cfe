package cost

import (
	"context"
	"sync"
)

// memStore is the default process-local Store: a mutex-protected map. It is
// sufficient for a single gateway instance; deployments running multiple
// replicas against shared ceilings should use cost/redisstore.Store instead,
// which implements the same interface over Redis INCRBYFLOAT.
type memStore struct {
	mu   sync.Mutex
	vals map[string]float64
}

// NewMemStore returns an in-process Store.
func NewMemStore() Store {
	return &memStore{vals: make(map[string]float64)}
}

func (s *memStore) AddAndGet(_ context.Context, scope Scope, window Window, periodKey string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := accumulatorKey(scope, window, periodKey)
	s.vals[k] += delta
	return s.vals[k], nil
}

func (s *memStore) Get(_ context.Context, scope Scope, window Window, periodKey string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vals[accumulatorKey(scope, window, periodKey)], nil
}

func accumulatorKey(scope Scope, window Window, periodKey string) string {
	return scopeKey(scope) + "|" + string(window) + "|" + periodKey
}
