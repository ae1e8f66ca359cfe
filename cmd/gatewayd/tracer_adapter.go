package main

import (
	"context"

	"github.com/vllora/gateway/router"
	"github.com/vllora/gateway/telemetry"
)

// newRouterTracer adapts a telemetry.Tracer to the small router.Tracer
// contract router.New accepts, so this binary can wire a real span backend
// into the Executor via router.WithTracer. The adapter lives here, not in
// package telemetry, so that telemetry never has to import router: router
// already imports telemetry directly for its span/field name constants
// (see router/tracer.go), and a telemetry->router edge would make that an
// import cycle. cmd/gatewayd is the one place both packages are wired
// together, so this is where the two Tracer/Span shapes meet.
func newRouterTracer(t telemetry.Tracer) router.Tracer {
	return routerTracerAdapter{t: t}
}

type routerTracerAdapter struct{ t telemetry.Tracer }

func (a routerTracerAdapter) StartSpan(ctx context.Context, name string) (context.Context, router.Span) {
	newCtx, span := a.t.Start(ctx, name)
	return newCtx, routerSpanAdapter{s: span}
}

type routerSpanAdapter struct{ s telemetry.Span }

func (a routerSpanAdapter) SetAttr(key string, value any) { a.s.SetAttr(key, value) }
func (a routerSpanAdapter) RecordError(err error)         { a.s.RecordError(err) }
func (a routerSpanAdapter) End()                          { a.s.End() }
