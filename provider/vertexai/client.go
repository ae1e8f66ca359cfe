// Package vertexai adapts Vertex AI's Gemini models to provider.Adapter. It
// reuses provider/gemini's request/response translation in full — Vertex AI
// and the public Generative Language API share the same genai wire format —
// and differs only in how the underlying client authenticates and where it
// points: a regional Vertex endpoint plus Application Default Credentials
// instead of a bare API key.
package vertexai

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/vllora/gateway/provider/gemini"
	"github.com/vllora/gateway/types"
)

// NewFromCredentials builds a gemini.Adapter whose client talks to the
// caller's Vertex AI project/region instead of the public API. Region is
// carried on Credentials.AWS.Region for lack of a Vertex-specific field —
// gateway credential resolution maps it from the project's configured
// Vertex location.
func NewFromCredentials(ctx context.Context, creds types.Credentials) (*gemini.Adapter, error) {
	region := creds.AWS.Region
	if region == "" {
		region = "us-central1"
	}
	endpoint := fmt.Sprintf("https://%s-aiplatform.googleapis.com", region)

	client, err := genai.NewClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, &types.Internal{Err: fmt.Errorf("vertexai: client init: %w", err)}
	}
	return gemini.New(client), nil
}
