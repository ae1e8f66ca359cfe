package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/vllora/gateway/config"
	"github.com/vllora/gateway/cost"
	"github.com/vllora/gateway/metrics"
	"github.com/vllora/gateway/provider"
	"github.com/vllora/gateway/provider/anthropic"
	"github.com/vllora/gateway/provider/bedrock"
	"github.com/vllora/gateway/provider/gemini"
	"github.com/vllora/gateway/provider/openai"
	"github.com/vllora/gateway/provider/proxy"
	"github.com/vllora/gateway/provider/vertexai"
	"github.com/vllora/gateway/router"
	"github.com/vllora/gateway/types"
)

// staticResolver implements router.Resolver by resolving every provider and
// model adapter once at process start from config.Config, rather than
// consulting the (out-of-scope) live model catalog. It exists only so
// cmd/gatewayd can exercise a real router.Executor end to end without that
// catalog; a production deployment would supply its own router.Resolver
// backed by the catalog instead.
type staticResolver struct {
	targets map[string]router.ResolvedTarget // qualified name -> target
	models  map[string]config.ModelConfig    // model config key -> config
}

func newStaticResolver(cfg *config.Config) (*staticResolver, error) {
	r := &staticResolver{
		targets: map[string]router.ResolvedTarget{},
		models:  map[string]config.ModelConfig{},
	}
	for name, mc := range cfg.Models {
		r.models[name] = mc
		if len(mc.Candidates) > 0 {
			continue // virtual model: candidates are resolved lazily below
		}
		qualified := mc.Provider + "/" + mc.Model
		if _, ok := r.targets[qualified]; ok {
			continue
		}
		target, err := buildTarget(cfg, qualified, mc)
		if err != nil {
			return nil, fmt.Errorf("gatewayd: resolve %s: %w", qualified, err)
		}
		r.targets[qualified] = target
	}
	return r, nil
}

func buildTarget(cfg *config.Config, qualified string, mc config.ModelConfig) (router.ResolvedTarget, error) {
	pc, ok := cfg.Providers[mc.Provider]
	if !ok {
		return router.ResolvedTarget{}, fmt.Errorf("no provider config named %q", mc.Provider)
	}
	creds, err := pc.Credentials()
	if err != nil {
		return router.ResolvedTarget{}, err
	}
	if mc.Endpoint != "" {
		creds.Endpoint = mc.Endpoint
	}

	descriptor := types.ModelDescriptor{
		UpstreamModel: mc.Model,
		Endpoint:      mc.Endpoint,
		ProxyName:     mc.ProxyName,
		Price: cost.Completion{
			PerInputToken:       mc.Price.PerInputToken,
			PerCachedInputToken: mc.Price.PerCachedInputToken,
			PerCachedWriteToken: mc.Price.PerCachedWriteToken,
			PerOutputToken:      mc.Price.PerOutputToken,
		},
		Capabilities: types.Capabilities{
			Streaming: mc.Capabilities.Streaming,
			Tools:     mc.Capabilities.Tools,
			Vision:    mc.Capabilities.Vision,
			JSONMode:  mc.Capabilities.JSONMode,
		},
	}

	adapter, err := buildAdapter(pc.Kind, creds)
	if err != nil {
		return router.ResolvedTarget{}, err
	}
	switch pc.Kind {
	case "openai_compatible":
		descriptor.Provider = types.ProviderOpenAICompatible
	case "anthropic":
		descriptor.Provider = types.ProviderAnthropic
	case "bedrock":
		descriptor.Provider = types.ProviderBedrock
	case "gemini":
		descriptor.Provider = types.ProviderGemini
	case "vertexai":
		descriptor.Provider = types.ProviderVertexAI
	case "proxy":
		descriptor.Provider = types.ProviderProxy
	}

	return router.ResolvedTarget{
		Name:        qualified,
		Descriptor:  descriptor,
		Credentials: creds,
		Adapter:     adapter,
	}, nil
}

func buildAdapter(kind string, creds types.Credentials) (provider.Adapter, error) {
	ctx := context.Background()
	switch kind {
	case "openai_compatible":
		return openai.NewFromCredentials(creds)
	case "anthropic":
		return anthropic.NewFromCredentials(creds)
	case "bedrock":
		return bedrock.NewFromCredentials(ctx, creds)
	case "gemini":
		return gemini.NewFromCredentials(ctx, creds)
	case "vertexai":
		return vertexai.NewFromCredentials(ctx, creds)
	case "proxy":
		return proxy.NewFromCredentials(creds)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", kind)
	}
}

func (r *staticResolver) Resolve(_ context.Context, qualifiedModel string) (router.ResolvedTarget, error) {
	target, ok := r.targets[qualifiedModel]
	if !ok {
		return router.ResolvedTarget{}, &types.BadRequest{Reason: "unknown model " + qualifiedModel}
	}
	return target, nil
}

func (r *staticResolver) Policy(_ context.Context, modelName string) (router.Policy, error) {
	mc, ok := r.models[modelKey(modelName)]
	if !ok {
		return router.Policy{}, &types.BadRequest{Reason: "unknown model " + modelName}
	}
	return router.Policy{
		MaxRetries:    mc.MaxRetries,
		RequestBudget: mc.RequestBudgetDuration(),
		Fallbacks:     mc.Fallbacks,
		CostScope:     cost.Scope{Kind: cost.ScopeGlobal, Key: "llm_usage"},
	}, nil
}

func (r *staticResolver) Candidates(_ context.Context, virtualName string) ([]metrics.Candidate, error) {
	mc, ok := r.models[modelKey(virtualName)]
	if !ok || len(mc.Candidates) == 0 {
		return nil, &types.BadRequest{Reason: "unknown virtual model " + virtualName}
	}
	candidates := make([]metrics.Candidate, 0, len(mc.Candidates))
	for _, qualified := range mc.Candidates {
		provider, model, ok := strings.Cut(qualified, "/")
		if !ok {
			return nil, fmt.Errorf("gatewayd: malformed candidate %q for %s", qualified, virtualName)
		}
		candidates = append(candidates, metrics.Candidate{Provider: provider, Model: model})
	}
	return candidates, nil
}

// modelKey strips the "virtual:" prefix so both qualified and virtual model
// names index into r.models the same way config.Config's Models map does
// (it is keyed by the bare name given in YAML, not the wire form).
func modelKey(modelName string) string {
	return strings.TrimPrefix(modelName, "virtual:")
}
