package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type recordingSpan struct {
	attrs map[string]any
}

func newRecordingSpan() *recordingSpan { return &recordingSpan{attrs: map[string]any{}} }

func (s *recordingSpan) End(...trace.SpanEndOption)              {}
func (s *recordingSpan) AddEvent(string, ...any)                 {}
func (s *recordingSpan) SetStatus(codes.Code, string)            {}
func (s *recordingSpan) RecordError(error, ...trace.EventOption) {}
func (s *recordingSpan) SetAttr(key string, value any)           { s.attrs[key] = value }

type recordingTracer struct {
	lastSpan *recordingSpan
}

func (rt *recordingTracer) Start(ctx context.Context, name string, _ ...trace.SpanStartOption) (context.Context, Span) {
	rt.lastSpan = newRecordingSpan()
	return ctx, rt.lastSpan
}

func (rt *recordingTracer) Span(ctx context.Context) Span { return rt.lastSpan }

func TestWithBaggagePropagation_CopiesFieldsOntoEveryStartedSpan(t *testing.T) {
	inner := &recordingTracer{}
	tracer := WithBaggagePropagation(inner)

	ctx := ContextWithBaggage(context.Background(), Baggage{
		ProjectID: "proj-1",
		ThreadID:  "thread-1",
		RunID:     "run-1",
	})

	_, span := tracer.Start(ctx, SpanModelCall)
	rs := span.(*recordingSpan)

	require.Equal(t, "proj-1", rs.attrs[BaggageKeyProjectID])
	require.Equal(t, "thread-1", rs.attrs[BaggageKeyThreadID])
	require.Equal(t, "run-1", rs.attrs[BaggageKeyRunID])
	require.NotContains(t, rs.attrs, BaggageKeyTenant)
}

func TestWithBaggagePropagation_NoBaggageLeavesSpanUndecorated(t *testing.T) {
	inner := &recordingTracer{}
	tracer := WithBaggagePropagation(inner)

	_, span := tracer.Start(context.Background(), SpanModelCall)
	rs := span.(*recordingSpan)

	require.Empty(t, rs.attrs)
}

type recordingMetrics struct {
	lastTags []string
}

func (m *recordingMetrics) IncCounter(_ context.Context, _ string, _ float64, tags ...string) {
	m.lastTags = tags
}
func (m *recordingMetrics) RecordTimer(_ context.Context, _ string, _ time.Duration, tags ...string) {
	m.lastTags = tags
}
func (m *recordingMetrics) RecordGauge(_ context.Context, _ string, _ float64, tags ...string) {
	m.lastTags = tags
}

func TestWithBaggageMetrics_AppendsBaggageTags(t *testing.T) {
	inner := &recordingMetrics{}
	metrics := WithBaggageMetrics(inner)

	ctx := ContextWithBaggage(context.Background(), Baggage{Tenant: "acme"})
	metrics.IncCounter(ctx, "requests_total", 1, "provider", "openai")

	require.Equal(t, []string{"provider", "openai", BaggageKeyTenant, "acme"}, inner.lastTags)
}
