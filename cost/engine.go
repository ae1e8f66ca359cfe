package cost

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vllora/gateway/types"
)

type (
	// Window is one of the three accounting periods the engine tracks.
	Window string

	// ScopeKind distinguishes a gateway-wide ceiling from a per-project one.
	ScopeKind string

	// Scope identifies the accumulator a usage record is charged against.
	// Key is always "llm_usage" per spec §4.5; it is carried explicitly
	// (rather than hardcoded) so a Store implementation can namespace keys
	// without the Engine needing to know its storage layout.
	Scope struct {
		Kind      ScopeKind
		ProjectID string
		Key       string
	}

	// Ceilings configures the optional dollar limits for a scope. A nil
	// pointer means the corresponding window is unbounded (spec: "any null
	// ceiling is treated as infinity").
	Ceilings struct {
		Day   *float64
		Month *float64
		Total *float64
	}

	// Store is the accumulator backend. Implementations must make AddAndGet
	// atomic: concurrent callers charging the same (scope, window, period)
	// must never lose an update. memStore and cost/redisstore.Store both
	// satisfy this.
	Store interface {
		// AddAndGet adds delta to the accumulator identified by
		// (scope, window, periodKey) and returns the accumulator's new total.
		AddAndGet(ctx context.Context, scope Scope, window Window, periodKey string, delta float64) (float64, error)

		// Get returns the current accumulator value without mutating it.
		Get(ctx context.Context, scope Scope, window Window, periodKey string) (float64, error)
	}

	// Engine is the Cost/Limit Engine. One Engine instance is shared across
	// all requests; its Store may be process-local (memStore, the default)
	// or shared across replicas (cost/redisstore.Store).
	Engine struct {
		store Store
		now   func() time.Time

		mu       sync.RWMutex
		ceilings map[string]Ceilings // keyed by scopeKey(scope)
	}
)

const (
	WindowDay   Window = "day"
	WindowMonth Window = "month"
	WindowTotal Window = "total"

	ScopeGlobal  ScopeKind = "global"
	ScopeProject ScopeKind = "project"
)

// NewEngine constructs an Engine backed by store. now defaults to time.Now
// when nil; tests inject a fixed clock to pin calendar-window boundaries.
func NewEngine(store Store, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: store, now: now, ceilings: make(map[string]Ceilings)}
}

// SetCeilings configures the optional Day/Month/Total ceilings for a scope.
func (e *Engine) SetCeilings(scope Scope, c Ceilings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ceilings[scopeKey(scope)] = c
}

// CanExecute is the cost preflight check (§4.4 "Cost preflight"): it fails
// the request with LimitExceeded before any upstream call when the scope has
// already reached a configured ceiling. It does not itself add any cost.
func (e *Engine) CanExecute(ctx context.Context, scope Scope) error {
	e.mu.RLock()
	ceilings, ok := e.ceilings[scopeKey(scope)]
	e.mu.RUnlock()
	if !ok {
		return nil
	}

	checks := []struct {
		window  Window
		ceiling *float64
	}{
		{WindowDay, ceilings.Day},
		{WindowMonth, ceilings.Month},
		{WindowTotal, ceilings.Total},
	}
	for _, c := range checks {
		if c.ceiling == nil {
			continue
		}
		cur, err := e.store.Get(ctx, scope, c.window, e.periodKey(c.window))
		if err != nil {
			return &types.Internal{Err: fmt.Errorf("cost: read %s accumulator: %w", c.window, err)}
		}
		if cur >= *c.ceiling {
			return &types.LimitExceeded{Scope: string(c.window)}
		}
	}
	return nil
}

// Record applies a usage record's cost to every window for scope. Recording
// uses add-then-check semantics (spec §4.5): the cost is added first; the
// ceiling is only consulted by the *next* CanExecute call. A single request
// can therefore overshoot an already-close ceiling by at most its own cost —
// this is deliberate, avoiding mid-stream aborts.
func (e *Engine) Record(ctx context.Context, scope Scope, usage types.UsageRecord, price types.ModelPrice) (float64, error) {
	amount := Calculate(usage, price)
	if amount == 0 {
		return 0, nil
	}
	for _, w := range []Window{WindowDay, WindowMonth, WindowTotal} {
		if _, err := e.store.AddAndGet(ctx, scope, w, e.periodKey(w), amount); err != nil {
			return amount, &types.Internal{Err: fmt.Errorf("cost: record %s accumulator: %w", w, err)}
		}
	}
	return amount, nil
}

// periodKey derives the calendar-UTC bucket identifier for window at the
// engine's current time. Day and Month buckets naturally roll over at UTC
// midnight/month boundaries because the key itself changes; Total uses a
// single constant bucket for the lifetime of the scope.
func (e *Engine) periodKey(w Window) string {
	now := e.now().UTC()
	switch w {
	case WindowDay:
		return now.Format("2006-01-02")
	case WindowMonth:
		return now.Format("2006-01")
	default:
		return "total"
	}
}

func scopeKey(s Scope) string {
	if s.Kind == ScopeProject {
		return string(s.Kind) + ":" + s.ProjectID + ":" + s.Key
	}
	return string(s.Kind) + ":" + s.Key
}
