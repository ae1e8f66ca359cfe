// Package provider defines the capability-based adapter contract every
// upstream (OpenAI-compatible, Anthropic, Bedrock, Gemini, Vertex AI, proxy)
// implements once, and the shared helpers adapters use to classify transport
// failures as retryable.
package provider

import (
	"context"
	"errors"

	"github.com/vllora/gateway/types"
)

type (
	// Adapter is the mandatory capability every provider implements: turn a
	// canonical request into a canonical response or chunk stream.
	Adapter interface {
		// Complete issues a non-streaming completion call.
		Complete(ctx context.Context, req *types.UnifiedRequest, creds types.Credentials) (*types.UnifiedResponse, error)

		// Stream issues a streaming completion call. The returned streamer
		// ends with io.EOF, or with the upstream's error returned from Recv,
		// and does not itself guarantee a terminal chunk; wrapping it in
		// stream.Normalizer gives exactly one terminal chunk
		// (ChunkFinishReason or ChunkError) per spec invariant 3.
		Stream(ctx context.Context, req *types.UnifiedRequest, creds types.Credentials) (types.ChunkStreamer, error)

		// Capabilities reports what this adapter supports. The router does
		// not consult it before dispatch.
		Capabilities() types.Capabilities
	}

	// Embedder is an optional capability: adapters that can serve embedding
	// requests implement it in addition to Adapter.
	Embedder interface {
		Embed(ctx context.Context, req *types.EmbeddingRequest, creds types.Credentials) (*types.EmbeddingResponse, error)
	}

	// ImageGenerator is an optional capability for adapters that can serve
	// image-generation requests.
	ImageGenerator interface {
		GenerateImage(ctx context.Context, req *types.ImageRequest, creds types.Credentials) (*types.ImageResponse, error)
	}
)

// ErrRateLimited is wrapped into an adapter's returned error to signal the
// upstream itself rate-limited the call, independent of HTTP status — some
// SDKs (the Anthropic SSE client in particular) surface this out-of-band.
var ErrRateLimited = errors.New("provider: rate limited by upstream")

// IsRetryableStatus reports whether an upstream HTTP status code belongs to
// the retryable set from spec §4.1: 408, 425, 429, 500, 502, 503, 504.
func IsRetryableStatus(status int) bool {
	switch status {
	case 408, 425, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ClassifyError wraps a transport/SDK error into a *types.ProviderError,
// setting Retryable from the status code (or true for rate limiting and
// connection-level failures, which carry no status).
func ClassifyError(status int, body string, err error) *types.ProviderError {
	retryable := IsRetryableStatus(status)
	if status == 0 && err != nil {
		retryable = true
	}
	return &types.ProviderError{Status: status, Body: body, Retryable: retryable, Err: err}
}
