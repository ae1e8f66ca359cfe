package router

import "context"

// Span is the subset of a telemetry span the Executor needs: set attributes
// as they become known, record a terminal error, and close it. Package
// telemetry's Span satisfies this (see telemetry.Span); router keeps its
// own narrow interface rather than depending on telemetry's concrete
// Tracer/Span types directly, so it stays usable (and testable) without
// wiring a real span backend. Adapting a telemetry.Tracer into a
// router.Tracer is cmd/gatewayd's job (see its tracer_adapter.go), since
// that is the one place both packages are already wired together; router
// imports telemetry only for the span/field name constants of spec §4.7
// (SpanModelCall, FieldTTFT, ...) so both sides agree on their spelling.
type Span interface {
	SetAttr(key string, value any)
	RecordError(err error)
	End()
}

// Tracer opens the request_routing, virtual_model, and model_call spans of
// spec §4.7 around model resolution and each dispatch attempt.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// NoopTracer discards every span; it is the Executor's default so router
// can be used (and tested) without wiring telemetry.
type NoopTracer struct{}

func (NoopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) SetAttr(string, any)     {}
func (noopSpan) RecordError(error)       {}
func (noopSpan) End()                    {}
