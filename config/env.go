package config

import "os"

// Environment variables recognized by the core, per spec.md §6.
const (
	EnvOpenAIAPIKey     = "VLLORA_OPENAI_API_KEY"
	EnvAnthropicAPIKey  = "VLLORA_ANTHROPIC_API_KEY"
	EnvBedrockAPIKey    = "VLLORA_BEDROCK_API_KEY"
	EnvAWSDefaultRegion = "AWS_DEFAULT_REGION"
	EnvLangDBAPIURL     = "LANGDB_API_URL"
	EnvOTLPHTTPEndpoint = "OTLP_HTTP_ENDPOINT"
	EnvOTLPAPIKey       = "OTLP_API_KEY"
)

// EnvOverrides is every value Load can't get from YAML because it is a
// secret or a deployment-specific endpoint, read straight from the process
// environment the way registry/cmd/registry/main.go's envOr helpers read
// REDIS_URL/REDIS_PASSWORD.
type EnvOverrides struct {
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	BedrockAPIKey    string
	AWSDefaultRegion string
	LangDBAPIURL     string
	OTLPHTTPEndpoint string
	OTLPAPIKey       string
}

// LoadEnvOverrides reads every recognized environment variable once.
func LoadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		OpenAIAPIKey:     os.Getenv(EnvOpenAIAPIKey),
		AnthropicAPIKey:  os.Getenv(EnvAnthropicAPIKey),
		BedrockAPIKey:    os.Getenv(EnvBedrockAPIKey),
		AWSDefaultRegion: os.Getenv(EnvAWSDefaultRegion),
		LangDBAPIURL:     os.Getenv(EnvLangDBAPIURL),
		OTLPHTTPEndpoint: os.Getenv(EnvOTLPHTTPEndpoint),
		OTLPAPIKey:       os.Getenv(EnvOTLPAPIKey),
	}
}

// ApplyEnv overlays env onto c: an env var wins whenever it is set and the
// corresponding YAML field is empty, so a deployment can supply secrets and
// endpoints without ever writing them to the config file.
func (c *Config) ApplyEnv(env EnvOverrides) {
	if env.OTLPHTTPEndpoint != "" && c.Telemetry.OTLPHTTPEndpoint == "" {
		c.Telemetry.OTLPHTTPEndpoint = env.OTLPHTTPEndpoint
	}
	c.Telemetry.OTLPAPIKey = env.OTLPAPIKey

	for name, p := range c.Providers {
		switch p.Kind {
		case "openai_compatible":
			if env.OpenAIAPIKey != "" && p.APIKeyEnv == "" {
				p.APIKeyEnv = EnvOpenAIAPIKey
			}
		case "anthropic":
			if env.AnthropicAPIKey != "" && p.APIKeyEnv == "" {
				p.APIKeyEnv = EnvAnthropicAPIKey
			}
		case "bedrock":
			if env.BedrockAPIKey != "" && p.APIKeyEnv == "" {
				p.APIKeyEnv = EnvBedrockAPIKey
			}
			if p.Region == "" {
				p.Region = env.AWSDefaultRegion
			}
		}
		c.Providers[name] = p
	}
}
