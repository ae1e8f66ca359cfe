// Package config loads gateway configuration: provider credential sources,
// per-model routing policy (retries, fallbacks, cost ceilings), and the
// telemetry exporter endpoint. It generalizes the Rust original's
// gateway/src/config.rs — the same "YAML file with env-var overrides"
// shape, with HttpConfig/UiConfig dropped (the HTTP surface and any UI are
// out of scope here) and ProviderConfig/guard references kept and adapted
// to this module's types.
package config

import (
	"time"
)

// Config is the root configuration document, loaded from YAML via Load and
// then overlaid with environment variables via ApplyEnv.
type Config struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Models    map[string]ModelConfig    `yaml:"models"`
	Cost      CostConfig                `yaml:"cost"`
	Telemetry TelemetryConfig           `yaml:"telemetry"`
}

// ProviderConfig describes one upstream provider credential source. Kind
// selects the provider/{openai,anthropic,bedrock,gemini,vertexai,proxy}
// adapter family; the remaining fields are interpreted per kind.
type ProviderConfig struct {
	Kind      string `yaml:"kind"`
	BaseURL   string `yaml:"base_url,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	Region    string `yaml:"region,omitempty"`
}

// ModelConfig describes one routable model name. A qualified model is keyed
// in Config.Models by the "<provider>/<model>" string a caller passes as
// UnifiedRequest.Model (Provider/Model below should then reproduce that same
// pair). A virtual model is keyed by its bare name, without the "virtual:"
// prefix a caller puts in UnifiedRequest.Model; Candidates then lists the
// qualified names it may resolve to, picked among at dispatch time by the
// metrics snapshot (see package router).
// Fields otherwise mirror router.Policy/router.ResolvedTarget.
type ModelConfig struct {
	Provider      string             `yaml:"provider,omitempty"`
	Model         string             `yaml:"model,omitempty"`
	Endpoint      string             `yaml:"endpoint,omitempty"`
	ProxyName     string             `yaml:"proxy_name,omitempty"`
	Candidates    []string           `yaml:"candidates,omitempty"`
	MaxRetries    int                `yaml:"max_retries,omitempty"`
	RequestBudget string             `yaml:"request_budget,omitempty"`
	Fallbacks     []string           `yaml:"fallbacks,omitempty"`
	Price         PriceConfig        `yaml:"price,omitempty"`
	Capabilities  CapabilitiesConfig `yaml:"capabilities,omitempty"`
}

// PriceConfig mirrors cost.Completion's per-token USD rates.
type PriceConfig struct {
	PerInputToken       float64 `yaml:"per_input_token,omitempty"`
	PerCachedInputToken float64 `yaml:"per_cached_input_token,omitempty"`
	PerCachedWriteToken float64 `yaml:"per_cached_write_token,omitempty"`
	PerOutputToken      float64 `yaml:"per_output_token,omitempty"`
}

// CapabilitiesConfig mirrors types.Capabilities.
type CapabilitiesConfig struct {
	Streaming bool `yaml:"streaming,omitempty"`
	Tools     bool `yaml:"tools,omitempty"`
	Vision    bool `yaml:"vision,omitempty"`
	JSONMode  bool `yaml:"json_mode,omitempty"`
}

// RequestBudgetDuration parses RequestBudget, returning 0 (router's
// "use the default" sentinel) when unset or unparsable.
func (m ModelConfig) RequestBudgetDuration() time.Duration {
	if m.RequestBudget == "" {
		return 0
	}
	d, err := time.ParseDuration(m.RequestBudget)
	if err != nil {
		return 0
	}
	return d
}

// CostConfig configures the cost/limit engine's ceilings. Keys are
// cost.Scope keys: "global" for the gateway-wide scope, or a project ID for
// a per-project scope.
type CostConfig struct {
	Ceilings map[string]CeilingConfig `yaml:"ceilings,omitempty"`
}

// CeilingConfig mirrors cost.Ceilings with YAML-friendly nil-able floats.
type CeilingConfig struct {
	Day   *float64 `yaml:"day,omitempty"`
	Month *float64 `yaml:"month,omitempty"`
	Total *float64 `yaml:"total,omitempty"`
}

// TelemetryConfig configures the OTLP exporter endpoint consulted by
// cmd/gatewayd when wiring package telemetry's ClueTracer/ClueMetrics.
type TelemetryConfig struct {
	OTLPHTTPEndpoint string `yaml:"otlp_http_endpoint,omitempty"`
	OTLPAPIKey       string `yaml:"-"` // never serialized; env-only (see env.go)
}

// Default returns the zero-value Config used when no YAML file is present,
// matching the Rust original's Config::load falling back to Self::default()
// when the file can't be read.
func Default() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{},
		Models:    map[string]ModelConfig{},
	}
}
