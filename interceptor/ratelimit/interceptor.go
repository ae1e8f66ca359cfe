package ratelimit

import (
	"context"

	"github.com/vllora/gateway/interceptor"
	"github.com/vllora/gateway/types"
)

// TargetResolver extracts the Target an attempt should be charged against
// from the live request. Model and project limiters are typically
// configured together, e.g. resolving TargetModel from rc.Request.Model and
// TargetProject from a tag/credentials field.
type TargetResolver func(rc *interceptor.RequestContext) []Target

// Interceptor is the Rate limiter interceptor of spec §4.3: it consumes a
// token from every Target the resolver returns, blocking the request with
// RateLimited if any of them is exhausted.
type Interceptor struct {
	limiter *Limiter
	resolve TargetResolver
}

// New builds a rate-limit Interceptor. resolve determines which buckets
// (global/model/project) each request draws from; a nil resolve always
// charges just TargetGlobal.
func New(limiter *Limiter, resolve TargetResolver) *Interceptor {
	if resolve == nil {
		resolve = func(*interceptor.RequestContext) []Target {
			return []Target{{Kind: TargetGlobal}}
		}
	}
	return &Interceptor{limiter: limiter, resolve: resolve}
}

func (i *Interceptor) Name() string { return "ratelimit" }

func (i *Interceptor) PreRequest(_ context.Context, rc *interceptor.RequestContext) (interceptor.Result, error) {
	for _, target := range i.resolve(rc) {
		ok, retryAfter := i.limiter.Allow(target)
		if !ok {
			return interceptor.Result{
				Verdict: interceptor.Block,
				Reason:  "rate limit exceeded for " + string(target.Kind),
				Payload: &types.RateLimited{RetryAfter: retryAfter},
			}, nil
		}
	}
	return interceptor.Result{Verdict: interceptor.Pass}, nil
}

// PostRequest is a no-op: the limiter only gates dispatch, it does not
// inspect the response.
func (i *Interceptor) PostRequest(_ context.Context, _ *interceptor.RequestContext, _ *types.UnifiedResponse) (interceptor.Result, error) {
	return interceptor.Result{Verdict: interceptor.Pass}, nil
}
