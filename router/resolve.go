package router

import (
	"context"
	"strings"

	"github.com/vllora/gateway/metrics"
	"github.com/vllora/gateway/telemetry"
	"github.com/vllora/gateway/types"
)

const virtualPrefix = "virtual:"

// resolvePrimary implements spec §4.4 "Model resolution": a qualified
// "provider/model" name resolves directly; a "virtual:<name>" consults the
// Metrics Repository snapshot, tie-breaking by lowest error rate, then
// lowest p95 latency, then lowest cost. With no observations yet for any
// candidate, it falls back to the catalog's declared candidate order so a
// freshly started gateway can still serve virtual models.
func (e *Executor) resolvePrimary(ctx context.Context, modelName string) (string, context.Context, Span, error) {
	if !strings.HasPrefix(modelName, virtualPrefix) {
		return modelName, ctx, noopSpan{}, nil
	}

	ctx, span := e.tracer.StartSpan(ctx, telemetry.SpanVirtualModel)
	span.SetAttr("virtual_model", modelName)

	candidates, err := e.resolver.Candidates(ctx, modelName)
	if err != nil {
		span.RecordError(err)
		return "", ctx, span, err
	}
	if len(candidates) == 0 {
		err := &types.BadRequest{Reason: "virtual model " + modelName + " has no resolvable candidates"}
		span.RecordError(err)
		return "", ctx, span, err
	}

	chosen := candidates[0]
	if e.metrics != nil {
		if best, ok := e.metrics.Snapshot().Best(candidates); ok {
			chosen = best
		}
	}
	resolved := qualify(chosen)
	span.SetAttr("resolved_model", resolved)
	return resolved, ctx, span, nil
}

func qualify(c metrics.Candidate) string { return c.Provider + "/" + c.Model }

func candidateFor(t ResolvedTarget) metrics.Candidate {
	return metrics.Candidate{Provider: string(t.Descriptor.Provider), Model: t.Descriptor.UpstreamModel}
}
