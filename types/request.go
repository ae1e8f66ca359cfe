package types

import "fmt"

// ResponseFormat selects the shape the model must answer in.
type ResponseFormat string

const (
	// ResponseFormatText is the default free-form text response.
	ResponseFormatText ResponseFormat = "text"
	// ResponseFormatJSON requests strict JSON output (provider JSON-mode, or
	// an injected system instruction plus post-hoc validation when the
	// provider has no native JSON-mode — see provider.Adapter).
	ResponseFormatJSON ResponseFormat = "json"
)

// GenerationParams carries sampling/shape parameters common across providers.
// Fields are translated 1:1 by adapters where the provider exposes an
// equivalent knob; unsupported fields are either dropped with a logged
// warning or rejected, per §4.1 of the translation rules.
type GenerationParams struct {
	Temperature    float32
	TopP           float32
	MaxTokens      int
	StopSequences  []string
	ResponseFormat ResponseFormat
}

// UnifiedRequest is the canonical chat/completion request the gateway routes.
// Model is a qualified name "provider/model" or a virtual router name of the
// form "virtual:<name>".
type UnifiedRequest struct {
	Model string

	Messages []Message
	Tools    []ToolDefinition
	ToolChoice *ToolChoice

	Params GenerationParams

	Stream bool

	ThreadID string
	RunID    string

	// Tags carries user-supplied labels copied onto the api_invoke span.
	Tags map[string]string
}

// Validate enforces the UnifiedRequest invariants from spec §3:
//   - the last message is not a system message
//   - every tool message references a tool_call_id emitted by a prior
//     assistant message
//   - tool-definition names are unique within the request
func (r *UnifiedRequest) Validate() error {
	if len(r.Messages) == 0 {
		return &BadRequest{Reason: "at least one message is required"}
	}
	if last := r.Messages[len(r.Messages)-1]; last.Role == RoleSystem {
		return &BadRequest{Reason: "last message must not be a system message"}
	}

	seenCalls := make(map[string]struct{})
	for _, m := range r.Messages {
		if m.Role == RoleAssistant {
			for _, tu := range m.ToolUses() {
				if tu.ID != "" {
					seenCalls[tu.ID] = struct{}{}
				}
			}
		}
		if m.Role == RoleTool {
			if m.ToolCallID == "" {
				return &BadRequest{Reason: "tool message missing tool_call_id"}
			}
			if _, ok := seenCalls[m.ToolCallID]; !ok {
				return &BadRequest{Reason: fmt.Sprintf("tool message references unknown tool_call_id %q", m.ToolCallID)}
			}
		}
	}

	names := make(map[string]struct{}, len(r.Tools))
	for _, t := range r.Tools {
		if _, ok := names[t.Name]; ok {
			return &BadRequest{Reason: fmt.Sprintf("duplicate tool definition name %q", t.Name)}
		}
		names[t.Name] = struct{}{}
	}
	return nil
}

// UnifiedResponse is the result of a non-streaming invocation.
type UnifiedResponse struct {
	Messages   []Message
	Usage      UsageRecord
	FinishReason FinishReason
	// Model is the upstream model identifier that actually served the
	// request (may differ from the requested virtual name after fallback).
	Model string
}

// FinishReason is the normalized, closed set of completion causes (spec §4.1).
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishGuardrail     FinishReason = "guardrail"
	FinishError         FinishReason = "error"
)

// EmbeddingRequest is the canonical embedding invocation.
type EmbeddingRequest struct {
	Model string
	Input []string
}

// EmbeddingResponse carries one vector per EmbeddingRequest.Input entry.
type EmbeddingResponse struct {
	Vectors [][]float32
	Usage   UsageRecord
	Model   string
}

// ImageSize is a provider-native image dimension descriptor, e.g. "1024x1024".
type ImageSize string

// ImageQuality selects a quality tier where the provider prices by tier.
type ImageQuality string

// ImageRequest is the canonical image-generation invocation.
type ImageRequest struct {
	Model   string
	Prompt  string
	Size    ImageSize
	Quality ImageQuality
	Count   int
}

// ImageResponse carries the generated images as either bytes or URLs,
// depending on what the provider returned.
type ImageResponse struct {
	Images []GeneratedImage
	Usage  UsageRecord
	Model  string
}

// GeneratedImage is a single image-generation result.
type GeneratedImage struct {
	Bytes []byte
	URL   string
}
