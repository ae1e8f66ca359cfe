package router

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vllora/gateway/interceptor"
	"github.com/vllora/gateway/telemetry"
	"github.com/vllora/gateway/types"
)

// Execute runs the non-streaming path of the Router/Executor state machine:
// INIT (resolve) → READY (pre-intercept) → DISPATCH (call) → DONE, with the
// RETRY and fallback branches of spec §4.4.
func (e *Executor) Execute(ctx context.Context, req *types.UnifiedRequest, creds types.Credentials) (*types.UnifiedResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	policy, err := e.resolver.Policy(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	routingCtx, routingSpan := e.tracer.StartSpan(ctx, telemetry.SpanRequestRouting)
	defer routingSpan.End()
	routingSpan.SetAttr("requested_model", req.Model)
	annotateContextFields(routingSpan, req, creds)

	primary, routingCtx, virtualSpan, err := e.resolvePrimary(routingCtx, req.Model)
	defer virtualSpan.End()
	if err != nil {
		routingSpan.RecordError(err)
		return nil, err
	}
	if strings.HasPrefix(req.Model, virtualPrefix) {
		routingSpan.SetAttr(telemetry.FieldRouterName, req.Model)
	}

	targets := append([]string{primary}, policy.Fallbacks...)
	rc := interceptor.NewRequestContext(req, creds)
	deadline := time.Now().Add(policy.requestBudget())

	var lastErr error
	for _, name := range targets {
		target, err := e.resolver.Resolve(routingCtx, name)
		if err != nil {
			lastErr = err
			continue
		}
		routingSpan.SetAttr("dispatch_target", name)

		resp, retryableExhausted, err := e.attemptComplete(routingCtx, rc, target, policy, deadline)
		if err == nil {
			routingSpan.SetAttr("output_model", target.Name)
			return resp, nil
		}
		lastErr = err
		if !retryableExhausted {
			routingSpan.RecordError(err)
			return nil, err
		}
	}
	if lastErr == nil {
		lastErr = &types.BadRequest{Reason: "no dispatch target resolved for model " + req.Model}
	}
	routingSpan.RecordError(lastErr)
	return nil, lastErr
}

// attemptComplete runs the retry loop (spec §4.4 "Retry policy") for one
// target's non-streaming dispatch. The returned bool reports whether the
// failure was a retryable-exhaustion (the caller should try the next
// fallback target) as opposed to a fatal error or exhausted time budget
// (the caller should stop immediately).
func (e *Executor) attemptComplete(ctx context.Context, rc *interceptor.RequestContext, target ResolvedTarget, policy Policy, deadline time.Time) (resp *types.UnifiedResponse, retryableExhausted bool, err error) {
	maxAttempts := policy.maxRetries() + 1

	modelCtx, modelSpan := e.tracer.StartSpan(ctx, telemetry.SpanModelCall)
	modelSpan.SetAttr("output_model", target.Name)
	modelSpan.SetAttr(telemetry.FieldRequest, requestSummary(rc.Request))
	defer modelSpan.End()

	for k := 0; k < maxAttempts; k++ {
		modelSpan.SetAttr(telemetry.FieldRetriesLeft, maxAttempts-1-k)

		if time.Now().After(deadline) {
			err := &types.DeadlineExceeded{Budget: policy.requestBudget()}
			modelSpan.SetAttr(telemetry.FieldError, err.Error())
			return nil, false, err
		}
		if e.cost != nil {
			if err := e.cost.CanExecute(modelCtx, policy.CostScope); err != nil {
				modelSpan.SetAttr(telemetry.FieldError, err.Error())
				return nil, false, err
			}
		}

		entered, blocked, err := e.chain.RunPre(modelCtx, rc)
		if err != nil {
			_ = e.chain.RunPost(modelCtx, rc, entered, nil)
			modelSpan.SetAttr(telemetry.FieldError, err.Error())
			return nil, false, err
		}
		if blocked != nil {
			_ = e.chain.RunPost(modelCtx, rc, entered, nil)
			modelSpan.SetAttr(telemetry.FieldError, blocked.Error())
			return nil, false, blocked
		}

		start := time.Now()
		resp, callErr := target.Adapter.Complete(modelCtx, rc.Request, target.Credentials)
		latency := time.Since(start)

		if callErr == nil {
			if err := e.chain.RunPost(modelCtx, rc, entered, resp); err != nil {
				modelSpan.SetAttr(telemetry.FieldError, err.Error())
				return nil, false, err
			}
			modelSpan.SetAttr(telemetry.FieldTTFT, latency.Microseconds())
			modelSpan.SetAttr(telemetry.FieldUsage, resp.Usage)
			modelSpan.SetAttr(telemetry.FieldOutput, outputSummary(resp))
			var cost float64
			if e.cost != nil {
				cost, _ = e.cost.Record(modelCtx, policy.CostScope, resp.Usage, target.Descriptor.Price)
				modelSpan.SetAttr(telemetry.FieldCost, cost)
			}
			if e.metrics != nil {
				e.metrics.Record(candidateFor(target), latency, false, 0)
			}
			return resp, false, nil
		}

		_ = e.chain.RunPost(modelCtx, rc, entered, nil)
		if e.metrics != nil {
			e.metrics.Record(candidateFor(target), latency, true, 0)
		}

		var perr *types.ProviderError
		if !errors.As(callErr, &perr) || !perr.Retryable {
			modelSpan.SetAttr(telemetry.FieldError, callErr.Error())
			return nil, false, callErr
		}
		if k == maxAttempts-1 {
			modelSpan.SetAttr(telemetry.FieldError, callErr.Error())
			return nil, true, callErr
		}
		if err := e.sleep(modelCtx, backoffFor(k, e.rand)); err != nil {
			modelSpan.SetAttr(telemetry.FieldError, err.Error())
			return nil, false, err
		}
	}
	return nil, false, errors.New("router: unreachable retry loop exit")
}

// annotateContextFields sets the spec §4.7 context fields a span can know
// about as soon as the request and its credentials are in hand, ahead of
// any dispatch attempt: thread_id/run_id identify the run, tags carries the
// caller's labels, and credentials_identifier records whether the attempt
// will bill against a caller-owned or gateway-owned key.
func annotateContextFields(span Span, req *types.UnifiedRequest, creds types.Credentials) {
	if req.ThreadID != "" {
		span.SetAttr(telemetry.FieldThreadID, req.ThreadID)
	}
	if req.RunID != "" {
		span.SetAttr(telemetry.FieldRunID, req.RunID)
	}
	if len(req.Tags) > 0 {
		span.SetAttr(telemetry.FieldTags, req.Tags)
	}
	if creds.Ident != "" {
		span.SetAttr(telemetry.FieldCredentialsIdentifier, string(creds.Ident))
	}
}

// requestSummary builds the spec §4.7 "request" field: a trace-level
// summary, never the full message bodies (spec.md's Non-goals explicitly
// rule out persisting full request/response bodies).
func requestSummary(req *types.UnifiedRequest) map[string]any {
	return map[string]any{
		"model":         req.Model,
		"message_count": len(req.Messages),
		"stream":        req.Stream,
	}
}

// outputSummary builds the spec §4.7 "output" field, e.g. end-to-end
// scenario 2's "output.model the fallback": the upstream model that actually
// served the request, which can differ from the requested name after a
// fallback, plus the finish reason.
func outputSummary(resp *types.UnifiedResponse) map[string]any {
	return map[string]any{
		"model":         resp.Model,
		"finish_reason": string(resp.FinishReason),
	}
}
