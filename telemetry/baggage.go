package telemetry

import "context"

// Baggage propagation keys. These are extracted from incoming request
// carriers (out of scope here — that is the HTTP layer's job), carried in
// the request context, and automatically copied onto every span opened for
// that request and onto every metric recorded through it.
const (
	BaggageKeyProjectID = "langdb.project_id"
	BaggageKeyThreadID  = "langdb.thread_id"
	BaggageKeyRunID     = "langdb.run_id"
	BaggageKeyTenant    = "langdb.tenant"
	BaggageKeyLabel     = "langdb.label"
)

// Baggage is the set of context fields that must appear as attributes on
// every span and metric emitted while servicing one request.
type Baggage struct {
	ProjectID string
	ThreadID  string
	RunID     string
	Tenant    string
	Label     string
}

type baggageContextKey struct{}

// ContextWithBaggage attaches b to ctx. Tracer.Start and Metrics calls read
// it back to decorate every span/metric they emit.
func ContextWithBaggage(ctx context.Context, b Baggage) context.Context {
	return context.WithValue(ctx, baggageContextKey{}, b)
}

// BaggageFromContext retrieves the Baggage previously attached with
// ContextWithBaggage, if any.
func BaggageFromContext(ctx context.Context) (Baggage, bool) {
	b, ok := ctx.Value(baggageContextKey{}).(Baggage)
	return b, ok
}

// fields returns the baggage as key/value pairs, skipping empty ones, in a
// stable order so span attributes and metric tags are deterministic.
func (b Baggage) fields() []struct{ key, value string } {
	var out []struct{ key, value string }
	add := func(k, v string) {
		if v != "" {
			out = append(out, struct{ key, value string }{k, v})
		}
	}
	add(BaggageKeyProjectID, b.ProjectID)
	add(BaggageKeyThreadID, b.ThreadID)
	add(BaggageKeyRunID, b.RunID)
	add(BaggageKeyTenant, b.Tenant)
	add(BaggageKeyLabel, b.Label)
	return out
}

// applyToSpan copies every non-empty baggage field onto span as an
// attribute. This is the mechanism behind the "baggage processor" invariant:
// it runs once per Tracer.Start call, regardless of tracer backend.
func (b Baggage) applyToSpan(span Span) {
	for _, f := range b.fields() {
		span.SetAttr(f.key, f.value)
	}
}

// tags returns the baggage as a flat tag slice (k1, v1, k2, v2, ...) for the
// Metrics interface's variadic tags parameter.
func (b Baggage) tags() []string {
	fields := b.fields()
	out := make([]string, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.key, f.value)
	}
	return out
}
