// Command gatewayd wires the request-execution pipeline — Router/Executor,
// interceptor chain, Cost/Limit Engine, metrics repository, and the
// telemetry span tree — into a runnable process. It deliberately stops
// short of an HTTP listener: the HTTP surface, the CLI/TUI, the config
// loader's catalog bootstrapper, and the guard evaluator's rule engine are
// all out of scope for this core (spec.md's Non-goals); gatewayd exists to
// prove the pipeline wires together the way an HTTP handler layer would
// call it, exposing router.Executor.Execute/ExecuteStream to whatever
// (separately maintained) front end is layered on top. Configuration
// loading here mirrors registry/cmd/registry/main.go's envOr-driven
// bootstrap.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vllora/gateway/config"
	"github.com/vllora/gateway/cost"
	"github.com/vllora/gateway/interceptor"
	"github.com/vllora/gateway/interceptor/breakpoint"
	"github.com/vllora/gateway/interceptor/ratelimit"
	breakpointmgr "github.com/vllora/gateway/breakpoint"
	"github.com/vllora/gateway/metrics"
	"github.com/vllora/gateway/router"
	"github.com/vllora/gateway/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := envOr("GATEWAYD_CONFIG", "gatewayd.yaml")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv(config.LoadEnvOverrides())

	tracer, metricsRecorder := newTelemetry(cfg)

	resolver, err := newStaticResolver(cfg)
	if err != nil {
		return err
	}

	costEngine := cost.NewEngine(cost.NewMemStore(), nil)
	for scopeKey, ceiling := range cfg.Cost.Ceilings {
		scope := cost.Scope{Kind: cost.ScopeGlobal, Key: "llm_usage"}
		if scopeKey != "global" {
			scope.Kind = cost.ScopeProject
			scope.ProjectID = scopeKey
		}
		costEngine.SetCeilings(scope, cost.Ceilings{
			Day:   ceiling.Day,
			Month: ceiling.Month,
			Total: ceiling.Total,
		})
	}

	metricsWindow := envDurationOr("GATEWAYD_METRICS_WINDOW", 5*time.Minute)
	metricsRecompute := envDurationOr("GATEWAYD_METRICS_RECOMPUTE_EVERY", 10*time.Second)
	metricsRepo := metrics.NewRepository(metrics.NewMemStore(), metricsWindow, metricsRecompute)
	defer metricsRepo.Close()

	chain := newInterceptorChain()

	executor := router.New(resolver, chain, costEngine, metricsRepo, router.WithTracer(newRouterTracer(tracer)))
	_ = executor  // exposed to the (out-of-scope) HTTP layer via package-level wiring in a real deployment
	_ = metricsRecorder

	log.Printf("gatewayd ready: config=%s providers=%d models=%d", configPath, len(cfg.Providers), len(cfg.Models))
	return waitForShutdown()
}

// newInterceptorChain wires the interceptors that have concrete,
// in-repo implementations. The guard interceptor (interceptor/guard) needs
// a guardeval.Evaluator, whose rule-evaluation internals are out of scope
// here (spec.md's Non-goals), so it is left for a deployment that supplies
// its own Evaluator to add.
func newInterceptorChain() *interceptor.Chain {
	limiter := ratelimit.NewLimiter(map[ratelimit.TargetKind]ratelimit.BucketConfig{
		ratelimit.TargetGlobal: {Window: time.Minute, Limit: 6000},
	})
	rateInterceptor := ratelimit.New(limiter, nil)

	bpManager := breakpointmgr.New()
	bpInterceptor := breakpoint.New(bpManager, nil)

	return interceptor.New(rateInterceptor, bpInterceptor)
}

func newTelemetry(cfg *config.Config) (telemetry.Tracer, telemetry.Metrics) {
	if cfg.Telemetry.OTLPHTTPEndpoint == "" {
		return telemetry.WithBaggagePropagation(telemetry.NewNoopTracer()), telemetry.WithBaggageMetrics(telemetry.NewNoopMetrics())
	}
	// otel.SetTracerProvider/otel.SetMeterProvider are expected to have been
	// configured by the process's OTLP bootstrap (e.g. via
	// goa.design/clue's ConfigureOpenTelemetry, reading OTLP_HTTP_ENDPOINT/
	// OTLP_API_KEY) before gatewayd starts; ClueTracer/ClueMetrics just read
	// the resulting global providers.
	return telemetry.WithBaggagePropagation(telemetry.NewClueTracer()), telemetry.WithBaggageMetrics(telemetry.NewClueMetrics())
}

func waitForShutdown() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envDurationOr(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
