package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// WithBaggagePropagation wraps a Tracer so every span it starts is
// automatically decorated with the request's baggage fields, satisfying
// spec.md §4.7's "automatically copied onto every started span" invariant
// regardless of which concrete Tracer (Clue or Noop) sits underneath — the
// same wrap-to-decorate shape used by the interceptor chain.
func WithBaggagePropagation(t Tracer) Tracer {
	return baggageTracer{inner: t}
}

type baggageTracer struct{ inner Tracer }

func (bt baggageTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	newCtx, span := bt.inner.Start(ctx, name, opts...)
	if b, ok := BaggageFromContext(ctx); ok {
		b.applyToSpan(span)
	}
	return newCtx, span
}

func (bt baggageTracer) Span(ctx context.Context) Span {
	return bt.inner.Span(ctx)
}

// WithBaggageMetrics wraps a Metrics so every counter/timer/gauge it records
// is decorated with the request's baggage tags.
func WithBaggageMetrics(m Metrics) Metrics {
	return baggageMetrics{inner: m}
}

type baggageMetrics struct{ inner Metrics }

func (bm baggageMetrics) IncCounter(ctx context.Context, name string, value float64, tags ...string) {
	bm.inner.IncCounter(ctx, name, value, bm.decorate(ctx, tags)...)
}

func (bm baggageMetrics) RecordTimer(ctx context.Context, name string, duration time.Duration, tags ...string) {
	bm.inner.RecordTimer(ctx, name, duration, bm.decorate(ctx, tags)...)
}

func (bm baggageMetrics) RecordGauge(ctx context.Context, name string, value float64, tags ...string) {
	bm.inner.RecordGauge(ctx, name, value, bm.decorate(ctx, tags)...)
}

func (bm baggageMetrics) decorate(ctx context.Context, tags []string) []string {
	b, ok := BaggageFromContext(ctx)
	if !ok {
		return tags
	}
	return append(append([]string(nil), tags...), b.tags()...)
}
