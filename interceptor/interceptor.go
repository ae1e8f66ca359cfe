// Package interceptor implements the ordered pre-/post-request hook chain
// the Router/Executor runs around every provider dispatch: guards,
// breakpoints, and rate limits.
//
// The execution model is grounded on the teacher's
// features/model/gateway.Server onion-middleware composition
// (WithUnary/WithStream wrapping a base handler in registration order), but
// generalized from anonymous function-middleware to named, introspectable
// Interceptor values. Naming each interceptor lets the chain runner record
// its verdict under interceptors[name] on the request trace and lets
// "pre entered ⇒ post observes" be enforced structurally here rather than by
// every middleware author remembering to defer the right cleanup.
package interceptor

import (
	"context"

	"github.com/vllora/gateway/types"
)

// Verdict is an interceptor's disposition after observing a request or
// response.
type Verdict string

const (
	// Pass lets the chain continue unmodified.
	Pass Verdict = "pass"
	// Block short-circuits the chain: PreRequest wins reject the request
	// before dispatch; PostRequest blocks fail it after the provider call.
	Block Verdict = "block"
	// Observe records the interceptor's findings without affecting control
	// flow (used by guardrails configured in "observe" rather than
	// "validate" mode).
	Observe Verdict = "observe"
)

// Result is what an interceptor returns from PreRequest/PostRequest.
type Result struct {
	Verdict Verdict
	// Reason is a short human-readable explanation, surfaced on
	// InterceptorBlocked and recorded in the trace regardless of verdict.
	Reason string
	// Payload carries interceptor-specific detail (e.g. a guard's evaluator
	// response, a breakpoint's resume action) recorded under
	// interceptors[name] on the trace.
	Payload any
}

// RequestContext is threaded through every interceptor invocation for one
// request attempt. Request is the live, potentially-mutated request: a
// breakpoint's Modify resume action and similar in-place edits operate on
// this pointer, so every interceptor from that point on (including the
// eventual adapter dispatch) observes the modification.
type RequestContext struct {
	Request *types.UnifiedRequest
	Creds   types.Credentials

	ThreadID string
	RunID    string

	// Scratch is a per-attempt mutable map interceptors may use to pass
	// data to themselves across PreRequest/PostRequest (spec §3:
	// "their context carries the mutable request, a scratch map").
	Scratch map[string]any

	// Trace collects each interceptor's Result, keyed by Name(), in the
	// order PreRequest completed. PostRequest overwrites the entry for its
	// own name with the post-stage Result.
	Trace map[string]Result
}

// NewRequestContext builds a RequestContext for one request attempt.
func NewRequestContext(req *types.UnifiedRequest, creds types.Credentials) *RequestContext {
	return &RequestContext{
		Request:  req,
		Creds:    creds,
		ThreadID: req.ThreadID,
		RunID:    req.RunID,
		Scratch:  make(map[string]any),
		Trace:    make(map[string]Result),
	}
}

// record stores res under name in the trace, overwriting any prior entry
// for the same name (PostRequest results supersede PreRequest ones).
func (rc *RequestContext) record(name string, res Result) {
	rc.Trace[name] = res
}

// Interceptor is a named, ordered hook in the chain a request is associated
// with. Interceptors are stateless across requests: all per-request state
// lives on the RequestContext, not on the Interceptor value, so the same
// Interceptor instance can run concurrently for multiple in-flight requests.
type Interceptor interface {
	// Name identifies this interceptor for trace recording and for
	// InterceptorBlocked{Name}.
	Name() string

	// PreRequest runs before the provider dispatch, in declared chain
	// order. Returning a Block verdict short-circuits the chain.
	PreRequest(ctx context.Context, rc *RequestContext) (Result, error)

	// PostRequest runs after the provider response is available (or after
	// a Block during PreRequest, for interceptors that already entered),
	// in reverse declared order. resp is nil when PostRequest runs because
	// a downstream interceptor blocked rather than because the provider
	// call itself completed.
	PostRequest(ctx context.Context, rc *RequestContext, resp *types.UnifiedResponse) (Result, error)
}

// Chain runs an ordered list of Interceptors around one request attempt,
// per spec §4.3's execution model.
type Chain struct {
	interceptors []Interceptor
}

// New builds a Chain that runs interceptors in the given order for
// PreRequest and the reverse order for PostRequest.
func New(interceptors ...Interceptor) *Chain {
	return &Chain{interceptors: interceptors}
}

// RunPre runs every interceptor's PreRequest in chain order. It stops at the
// first Block verdict or error, returning how many interceptors entered
// (the blocking interceptor is counted; one whose PreRequest returned an
// error is not) so RunPost knows which interceptors to give a chance to
// observe the block (spec §4.3: "post_request
// is not invoked on downstream interceptors but is invoked on already-entered
// interceptors").
func (c *Chain) RunPre(ctx context.Context, rc *RequestContext) (entered int, blocked *types.InterceptorBlocked, err error) {
	for i, ic := range c.interceptors {
		res, perr := ic.PreRequest(ctx, rc)
		if perr != nil {
			return i, nil, perr
		}
		rc.record(ic.Name(), res)
		entered = i + 1
		if res.Verdict == Block {
			return entered, &types.InterceptorBlocked{Name: ic.Name(), Payload: res.Payload}, nil
		}
	}
	return entered, nil, nil
}

// RunPost runs PostRequest on the first `entered` interceptors, in reverse
// order, per spec §4.3 ("post_request runs in reverse order on success and
// on controlled failures"). resp is nil when called after a PreRequest
// block. The first error aborts the remaining PostRequest calls but every
// interceptor that already ran PostRequest keeps its recorded trace entry.
func (c *Chain) RunPost(ctx context.Context, rc *RequestContext, entered int, resp *types.UnifiedResponse) error {
	for i := entered - 1; i >= 0; i-- {
		ic := c.interceptors[i]
		res, err := ic.PostRequest(ctx, rc, resp)
		if err != nil {
			return err
		}
		rc.record(ic.Name(), res)
	}
	return nil
}
