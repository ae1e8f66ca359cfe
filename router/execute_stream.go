package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/vllora/gateway/interceptor"
	"github.com/vllora/gateway/stream"
	"github.com/vllora/gateway/telemetry"
	"github.com/vllora/gateway/types"
)

// ExecuteStream runs the streaming path of the Router/Executor state
// machine. Per spec §4.4, retry and fallback only apply to establishing the
// upstream connection — once Stream succeeds and an executorStream is
// handed back to the caller, any later upstream failure is delivered
// in-band as a terminal Chunk::Error by the wrapped stream.Normalizer
// (package stream), never as a retry: no byte has reached the client
// before that point, and none can be un-delivered after it.
func (e *Executor) ExecuteStream(ctx context.Context, req *types.UnifiedRequest, creds types.Credentials) (types.ChunkStreamer, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	policy, err := e.resolver.Policy(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	routingCtx, routingSpan := e.tracer.StartSpan(ctx, telemetry.SpanRequestRouting)
	routingSpan.SetAttr("requested_model", req.Model)
	annotateContextFields(routingSpan, req, creds)
	handedOff := false
	defer func() {
		if !handedOff {
			routingSpan.End()
		}
	}()

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

		upstreamCtx, cancel := context.WithCancel(routingCtx)
		upstream, entered, retriesLeft, retryableExhausted, err := e.attemptStreamConnect(upstreamCtx, rc, target, policy, deadline)
		if err != nil {
			cancel()
			lastErr = err
			if !retryableExhausted {
				routingSpan.RecordError(err)
				return nil, err
			}
			continue
		}

		routingSpan.SetAttr("output_model", target.Name)
		_, modelSpan := e.tracer.StartSpan(routingCtx, telemetry.SpanModelCall)
		modelSpan.SetAttr("output_model", target.Name)
		modelSpan.SetAttr(telemetry.FieldRetriesLeft, retriesLeft)
		modelSpan.SetAttr(telemetry.FieldRequest, requestSummary(rc.Request))

		handedOff = true
		norm := stream.New(upstream, cancel)
		return &executorStream{
			Normalizer:  norm,
			ctx:         routingCtx,
			ex:          e,
			rc:          rc,
			target:      target,
			policy:      policy,
			entered:     entered,
			modelSpan:   modelSpan,
			routingSpan: routingSpan,
			started:     time.Now(),
		}, nil
	}
	if lastErr == nil {
		lastErr = &types.BadRequest{Reason: "no dispatch target resolved for model " + req.Model}
	}
	routingSpan.RecordError(lastErr)
	return nil, lastErr
}

// attemptStreamConnect runs the retry loop for establishing one target's
// upstream connection. It never attempts a retry after the connection is
// open: from that point the caller owns pacing Recv calls, and the spec
// forbids retrying once the client may have already observed a chunk.
func (e *Executor) attemptStreamConnect(ctx context.Context, rc *interceptor.RequestContext, target ResolvedTarget, policy Policy, deadline time.Time) (upstream types.ChunkStreamer, entered int, retriesLeft int, retryableExhausted bool, err error) {
	maxAttempts := policy.maxRetries() + 1

	for k := 0; k < maxAttempts; k++ {
		if time.Now().After(deadline) {
			return nil, 0, 0, false, &types.DeadlineExceeded{Budget: policy.requestBudget()}
		}
		if e.cost != nil {
			if err := e.cost.CanExecute(ctx, policy.CostScope); err != nil {
				return nil, 0, 0, false, err
			}
		}

		entered, blocked, err := e.chain.RunPre(ctx, rc)
		if err != nil {
			_ = e.chain.RunPost(ctx, rc, entered, nil)
			return nil, 0, 0, false, err
		}
		if blocked != nil {
			_ = e.chain.RunPost(ctx, rc, entered, nil)
			return nil, 0, 0, false, blocked
		}

		start := time.Now()
		upstream, callErr := target.Adapter.Stream(ctx, rc.Request, target.Credentials)
		latency := time.Since(start)
		if callErr == nil {
			return upstream, entered, maxAttempts - 1 - k, false, nil
		}

		_ = e.chain.RunPost(ctx, rc, entered, nil)
		if e.metrics != nil {
			e.metrics.Record(candidateFor(target), latency, true, 0)
		}

		var perr *types.ProviderError
		if !errors.As(callErr, &perr) || !perr.Retryable {
			return nil, 0, 0, false, callErr
		}
		if k == maxAttempts-1 {
			return nil, 0, 0, true, callErr
		}
		if err := e.sleep(ctx, backoffFor(k, e.rand)); err != nil {
			return nil, 0, 0, false, err
		}
	}
	return nil, 0, 0, false, errors.New("router: unreachable retry loop exit")
}

// executorStream wraps a connected stream.Normalizer with the bookkeeping
// that would otherwise happen in attemptComplete's post-dispatch step: the
// deferred interceptor PostRequest, cost recording, metrics recording, and
// closing the request_routing/model_call spans — all deferred until Close
// since, for a stream, that bookkeeping can only happen once the stream
// actually reaches the spec's DONE state.
type executorStream struct {
	*stream.Normalizer

	ctx    context.Context
	ex     *Executor
	rc     *interceptor.RequestContext
	target ResolvedTarget
	policy Policy

	entered     int
	modelSpan   Span
	routingSpan Span
	started     time.Time

	closeOnce sync.Once
	closeErr  error
}

func (s *executorStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.Normalizer.Close()

		stats := s.Normalizer.Stats()
		resp := &types.UnifiedResponse{
			Usage:        stats.Usage,
			FinishReason: types.FinishStop,
			Model:        s.target.Descriptor.UpstreamModel,
		}
		_ = s.ex.chain.RunPost(s.ctx, s.rc, s.entered, resp)

		s.modelSpan.SetAttr(telemetry.FieldTTFT, stats.TTFT.Microseconds())
		s.modelSpan.SetAttr(telemetry.FieldUsage, stats.Usage)
		s.modelSpan.SetAttr(telemetry.FieldOutput, outputSummary(resp))
		if s.ex.cost != nil {
			cost, _ := s.ex.cost.Record(s.ctx, s.policy.CostScope, stats.Usage, s.target.Descriptor.Price)
			s.modelSpan.SetAttr(telemetry.FieldCost, cost)
		}
		if s.ex.metrics != nil {
			s.ex.metrics.Record(candidateFor(s.target), time.Since(s.started), false, 0)
		}
		s.modelSpan.End()
		s.routingSpan.End()
	})
	return s.closeErr
}
