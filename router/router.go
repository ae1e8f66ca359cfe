// Package router implements the Router/Executor: model resolution, the
// interceptor-wrapped dispatch state machine, and the retry/fallback policy
// of spec §4.4.
//
// The wiring shape — build a handler by composing a base "call the
// provider" step with layered cross-cutting behavior — is grounded on the
// teacher's features/model/gateway.Server (onion middleware construction).
// The state-machine control flow itself — resolve, dispatch, retry with
// backoff, fall through an ordered list of alternates, all under a shared
// wall-clock budget — is grounded on other_examples'
// 08e1df4b_LizzyG-llmrouter/router.go (executeInternal's selectModel +
// bounded retry-turn loop), generalized from LizzyG's single-shot
// tool-turn loop to the spec's three-level state machine (retry within a
// target, fallback across targets, cost preflight before each dispatch).
package router

import (
	"context"
	"time"

	"github.com/vllora/gateway/cost"
	"github.com/vllora/gateway/interceptor"
	"github.com/vllora/gateway/metrics"
	"github.com/vllora/gateway/provider"
	"github.com/vllora/gateway/types"
)

// ResolvedTarget is everything the Executor needs to dispatch a single
// attempt to a concrete, qualified model.
type ResolvedTarget struct {
	Name        string // the qualified "provider/model" name this resolved from
	Descriptor  types.ModelDescriptor
	Credentials types.Credentials
	Adapter     provider.Adapter
}

// Policy configures the retry/fallback/cost behavior applied to one
// resolution (spec §4.4). Zero values are replaced by the spec's defaults
// in Execute/ExecuteStream.
type Policy struct {
	// MaxRetries is the number of retries permitted per target after the
	// initial attempt (default 2, meaning up to 3 attempts per target).
	MaxRetries int

	// RequestBudget is the overall wall-clock budget shared across the
	// primary target and every fallback (default 120s).
	RequestBudget time.Duration

	// Fallbacks is the ordered list of qualified model names tried, in
	// order, once retries on the primary target are exhausted.
	Fallbacks []string

	// CostScope is the Cost/Limit Engine scope the preflight check and
	// post-completion recording are charged against.
	CostScope cost.Scope
}

func (p Policy) maxRetries() int {
	if p.MaxRetries > 0 {
		return p.MaxRetries
	}
	return 2
}

func (p Policy) requestBudget() time.Duration {
	if p.RequestBudget > 0 {
		return p.RequestBudget
	}
	return 120 * time.Second
}

// Resolver is the (out-of-scope) model catalog's contract with the Router:
// turn a name into a dispatchable target, supply its routing Policy, and
// list the candidates a virtual name may resolve to.
type Resolver interface {
	// Resolve turns a qualified "provider/model" name into a ResolvedTarget.
	Resolve(ctx context.Context, qualifiedModel string) (ResolvedTarget, error)

	// Policy returns the routing policy for modelName, which may be a
	// virtual name ("virtual:<name>") or a qualified one.
	Policy(ctx context.Context, modelName string) (Policy, error)

	// Candidates lists the qualified model names virtualName may resolve
	// to. Called only when modelName has the "virtual:" prefix.
	Candidates(ctx context.Context, virtualName string) ([]metrics.Candidate, error)
}

// Executor runs the Router/Executor state machine: INIT (resolve) → READY
// (pre-intercept) → DISPATCH (call) → STREAMING/DONE, with RETRY and
// fallback branches on retryable ProviderError, and FAILED on a fatal one
// or on an exhausted budget.
type Executor struct {
	resolver Resolver
	chain    *interceptor.Chain
	cost     *cost.Engine
	metrics  *metrics.Repository
	tracer   Tracer

	sleep func(context.Context, time.Duration) error
	rand  func() float64
}

// Option configures an Executor.
type Option func(*Executor)

// WithTracer attaches the request_routing/virtual_model span recorder
// (spec §4.7). Defaults to NoopTracer.
func WithTracer(t Tracer) Option { return func(e *Executor) { e.tracer = t } }

// New builds an Executor. metrics may be nil if no virtual-model target
// will ever be resolved.
func New(resolver Resolver, chain *interceptor.Chain, costEngine *cost.Engine, metricsRepo *metrics.Repository, opts ...Option) *Executor {
	e := &Executor{
		resolver: resolver,
		chain:    chain,
		cost:     costEngine,
		metrics:  metricsRepo,
		tracer:   NoopTracer{},
		sleep:    sleepCtx,
		rand:     defaultRand,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
