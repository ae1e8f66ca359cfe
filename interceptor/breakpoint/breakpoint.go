// Package breakpoint adapts the breakpoint.Manager into an
// interceptor.Interceptor: PreRequest registers a breakpoint and suspends
// the calling goroutine until an external actor resumes it via the
// Manager.
package breakpoint

import (
	"context"

	"github.com/vllora/gateway/breakpoint"
	"github.com/vllora/gateway/interceptor"
	"github.com/vllora/gateway/types"
)

// TagMatcher decides whether a given request should be intercepted, absent
// the Manager's global intercept-all override. A nil TagMatcher intercepts
// every request (equivalent to always returning true).
type TagMatcher func(req *types.UnifiedRequest) bool

// Interceptor is the Breakpoint interceptor of spec §4.3.
type Interceptor struct {
	manager *breakpoint.Manager
	match   TagMatcher
}

// New builds an Interceptor backed by manager. match, if non-nil, restricts
// which requests are parked; manager.InterceptAll() always overrides it.
func New(manager *breakpoint.Manager, match TagMatcher) *Interceptor {
	return &Interceptor{manager: manager, match: match}
}

func (i *Interceptor) Name() string { return "breakpoint" }

// PreRequest registers rc.Request with the Manager and blocks until it is
// resumed or ctx is canceled. Continue proceeds unmodified; Modify replaces
// rc.Request's Params/Messages/Tools in place (spec §4.3: "only parameters,
// messages, tools mutable") so every interceptor and the eventual adapter
// dispatch downstream of this one observes the edit; Abort returns a Block
// verdict carrying BreakpointAborted.
func (i *Interceptor) PreRequest(ctx context.Context, rc *interceptor.RequestContext) (interceptor.Result, error) {
	if !i.shouldIntercept(rc.Request) {
		return interceptor.Result{Verdict: interceptor.Pass}, nil
	}

	id, waiter := i.manager.Register(rc.Request, rc.ThreadID)
	select {
	case action := <-waiter:
		return i.applyAction(rc, id, action)
	case <-ctx.Done():
		_ = i.manager.Resolve(id, breakpoint.Action{Kind: breakpoint.ActionAbort})
		return interceptor.Result{}, ctx.Err()
	}
}

func (i *Interceptor) applyAction(rc *interceptor.RequestContext, id string, action breakpoint.Action) (interceptor.Result, error) {
	switch action.Kind {
	case breakpoint.ActionContinue:
		return interceptor.Result{Verdict: interceptor.Pass}, nil
	case breakpoint.ActionModify:
		if action.Modified != nil {
			rc.Request.Params = action.Modified.Params
			rc.Request.Messages = action.Modified.Messages
			rc.Request.Tools = action.Modified.Tools
		}
		return interceptor.Result{Verdict: interceptor.Pass, Reason: "modified by breakpoint resume"}, nil
	case breakpoint.ActionAbort:
		return interceptor.Result{
			Verdict: interceptor.Block,
			Reason:  "aborted by breakpoint resume",
			Payload: &types.BreakpointAborted{BreakpointID: id},
		}, nil
	default:
		return interceptor.Result{Verdict: interceptor.Pass}, nil
	}
}

// PostRequest is a no-op: the Breakpoint interceptor only acts in pre.
func (i *Interceptor) PostRequest(_ context.Context, _ *interceptor.RequestContext, _ *types.UnifiedResponse) (interceptor.Result, error) {
	return interceptor.Result{Verdict: interceptor.Pass}, nil
}

func (i *Interceptor) shouldIntercept(req *types.UnifiedRequest) bool {
	if i.manager.InterceptAll() {
		return true
	}
	if i.match == nil {
		return true
	}
	return i.match(req)
}
