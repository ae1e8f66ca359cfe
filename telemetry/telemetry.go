// Package telemetry builds the span tree described for every request:
// api_invoke → run → model_call → provider, plus the side spans
// (guard_evaluation, request_routing, virtual_model, cache) opened by the
// packages that need them. It is directly adapted from
// runtime/agent/telemetry/clue.go's ClueLogger/ClueMetrics/ClueTracer
// wrapping goa.design/clue/log and OpenTelemetry, generalized from that
// package's single fixed span-name set to the gateway's.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names opened across the pipeline.
const (
	SpanAPIInvoke        = "api_invoke"
	SpanRun              = "run"
	SpanAgent            = "agent"
	SpanTask             = "task"
	SpanTool             = "tool"
	SpanModelCall        = "model_call"
	SpanGuardEvaluation  = "guard_evaluation"
	SpanRequestRouting   = "request_routing"
	SpanVirtualModel     = "virtual_model"
	SpanCache            = "cache"
)

// Field names for the attributes every span may carry. Some are only ever
// set on specific span kinds (ttft and retries_left only make sense on
// model_call, for instance); callers set only the fields that apply.
const (
	FieldRequest               = "request"
	FieldOutput                = "output"
	FieldError                 = "error"
	FieldUsage                 = "usage"
	FieldRawUsage               = "raw_usage"
	FieldTTFT                  = "ttft"
	FieldCost                  = "cost"
	FieldTags                  = "tags"
	FieldRetriesLeft           = "retries_left"
	FieldThreadID              = "thread_id"
	FieldRunID                 = "run_id"
	FieldMessageID             = "message_id"
	FieldCredentialsIdentifier = "credentials_identifier"
	FieldRouterName            = "router_name"
	FieldUser                  = "user"
	FieldCacheField            = "cache"
)

// Logger captures structured logging used throughout the gateway.
// Implementations typically delegate to Clue but the interface stays small
// so tests can provide lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter and histogram helpers for runtime instrumentation.
// Every call takes a context so that baggage-derived tags (project, thread,
// run, tenant, label) can be appended automatically — the per-request
// decoration spec.md §4.7 requires of "metrics emitted via the meter".
type Metrics interface {
	IncCounter(ctx context.Context, name string, value float64, tags ...string)
	RecordTimer(ctx context.Context, name string, duration time.Duration, tags ...string)
	RecordGauge(ctx context.Context, name string, value float64, tags ...string)
}

// Tracer abstracts span creation so callers stay agnostic of the underlying
// OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tree node. SetAttr is the generalization of
// the teacher's fixed AddEvent/SetStatus pair — the span fields table
// (request, output, usage, ttft, cost, ...) needs an open attribute setter
// rather than a handful of named ones.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
	SetAttr(key string, value any)
}
