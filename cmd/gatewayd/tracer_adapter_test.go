package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vllora/gateway/telemetry"
)

type fakeSpan struct {
	attrs map[string]any
	errs  []error
}

func (s *fakeSpan) End(...trace.SpanEndOption)                    {}
func (s *fakeSpan) AddEvent(string, ...any)                       {}
func (s *fakeSpan) SetStatus(codes.Code, string)                  {}
func (s *fakeSpan) RecordError(err error, _ ...trace.EventOption) { s.errs = append(s.errs, err) }
func (s *fakeSpan) SetAttr(key string, value any)                 { s.attrs[key] = value }

type fakeTracer struct{ lastSpan *fakeSpan }

func (t *fakeTracer) Start(ctx context.Context, _ string, _ ...trace.SpanStartOption) (context.Context, telemetry.Span) {
	span := &fakeSpan{attrs: map[string]any{}}
	t.lastSpan = span
	return ctx, span
}

func (t *fakeTracer) Span(ctx context.Context) telemetry.Span { return t.lastSpan }

func TestNewRouterTracer_DelegatesToUnderlyingSpan(t *testing.T) {
	inner := &fakeTracer{}
	rt := newRouterTracer(inner)

	_, span := rt.StartSpan(context.Background(), telemetry.SpanModelCall)
	span.SetAttr(telemetry.FieldTTFT, int64(42))
	span.RecordError(errors.New("boom"))
	span.End()

	require.Equal(t, int64(42), inner.lastSpan.attrs[telemetry.FieldTTFT])
	require.Len(t, inner.lastSpan.errs, 1)
}
