package config

import (
	"fmt"
	"os"

	"github.com/vllora/gateway/types"
)

// Credentials builds the types.Credentials a gateway-owned call against
// this provider should use, resolving APIKeyEnv against the process
// environment. It returns an error if the configured env var is unset,
// since a provider entry with no usable credential can never successfully
// dispatch.
func (p ProviderConfig) Credentials() (types.Credentials, error) {
	switch p.Kind {
	case "bedrock":
		return p.bedrockCredentials()
	case "openai_compatible", "anthropic", "gemini", "vertexai", "proxy":
		return p.apiKeyCredentials()
	default:
		return types.Credentials{}, fmt.Errorf("config: unknown provider kind %q", p.Kind)
	}
}

func (p ProviderConfig) apiKeyCredentials() (types.Credentials, error) {
	key, err := p.lookupAPIKey()
	if err != nil {
		return types.Credentials{}, err
	}
	creds := types.Credentials{
		Kind:   types.CredentialsKindAPIKey,
		Ident:  types.CredentialsGateway,
		APIKey: key,
	}
	if p.BaseURL != "" {
		creds.Kind = types.CredentialsKindAPIKeyWithEndpoint
		creds.Endpoint = p.BaseURL
	}
	return creds, nil
}

func (p ProviderConfig) bedrockCredentials() (types.Credentials, error) {
	key, err := p.lookupAPIKey()
	if err != nil {
		return types.Credentials{}, err
	}
	return types.Credentials{
		Kind:  types.CredentialsKindAWSAPIKey,
		Ident: types.CredentialsGateway,
		AWS: types.AWSCredentials{
			Region:      p.Region,
			BearerToken: key,
		},
	}, nil
}

func (p ProviderConfig) lookupAPIKey() (string, error) {
	if p.APIKeyEnv == "" {
		return "", fmt.Errorf("config: provider kind %q has no api_key_env set", p.Kind)
	}
	key := os.Getenv(p.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("config: environment variable %s is unset", p.APIKeyEnv)
	}
	return key, nil
}
