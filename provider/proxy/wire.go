package proxy

import (
	"encoding/json"
	"fmt"

	"github.com/vllora/gateway/types"
)

// The canonical types package carries no JSON tags and models message
// content as a marker-interface slice (types.Part) — by design, since it is
// the in-process contract between the router, interceptors, and adapters,
// not a wire format. The proxy adapter is the one place that contract needs
// to cross a wire, so it defines its own tagged envelope here and converts
// to/from the canonical types rather than marshaling them directly.

type wireRequest struct {
	Model      string            `json:"model"`
	Messages   []wireMessage     `json:"messages"`
	Tools      []wireToolDef     `json:"tools,omitempty"`
	ToolChoice *wireToolChoice   `json:"tool_choice,omitempty"`
	Params     wireParams        `json:"params"`
	Stream     bool              `json:"stream"`
	ThreadID   string            `json:"thread_id,omitempty"`
	RunID      string            `json:"run_id,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
}

type wireToolDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema,omitempty"`
}

type wireToolChoice struct {
	Mode string `json:"mode"`
	Name string `json:"name,omitempty"`
}

type wireParams struct {
	Temperature    float32  `json:"temperature,omitempty"`
	TopP           float32  `json:"top_p,omitempty"`
	MaxTokens      int      `json:"max_tokens,omitempty"`
	StopSequences  []string `json:"stop_sequences,omitempty"`
	ResponseFormat string   `json:"response_format,omitempty"`
}

type wireUsage struct {
	InputTokens       int    `json:"input_tokens,omitempty"`
	OutputTokens      int    `json:"output_tokens,omitempty"`
	CachedInputTokens int    `json:"cached_input_tokens,omitempty"`
	CachedWriteTokens int    `json:"cached_write_tokens,omitempty"`
	ImageCount        int    `json:"image_count,omitempty"`
	Model             string `json:"model,omitempty"`
	Provider          string `json:"provider,omitempty"`
}

type wireToolCallDelta struct {
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	ArgsDelta string `json:"args_delta,omitempty"`
}

type wireMessage struct {
	Role       types.ConversationRole `json:"role"`
	Parts      []wirePart             `json:"parts"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
}

type wirePart struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	ImageFormat types.ImageFormat `json:"image_format,omitempty"`
	ImageBytes  []byte            `json:"image_bytes,omitempty"`
	ImageURL    string            `json:"image_url,omitempty"`

	ToolUseID    string        `json:"tool_use_id,omitempty"`
	ToolUseName  types.ToolIdent `json:"tool_use_name,omitempty"`
	ToolUseInput json.RawMessage `json:"tool_use_input,omitempty"`

	ToolResultCallID string `json:"tool_result_call_id,omitempty"`
	ToolResultValue  any    `json:"tool_result_value,omitempty"`
	ToolResultError  bool   `json:"tool_result_error,omitempty"`
}

type wireResponse struct {
	Messages     []wireMessage `json:"messages"`
	Usage        wireUsage     `json:"usage"`
	FinishReason string        `json:"finish_reason"`
	Model        string        `json:"model"`
}

type wireChunk struct {
	Type         string            `json:"type"`
	Delta        string            `json:"delta,omitempty"`
	ToolCall     wireToolCallDelta `json:"tool_call,omitempty"`
	Reasoning    string            `json:"reasoning,omitempty"`
	Usage        wireUsage         `json:"usage,omitempty"`
	FinishReason string            `json:"finish_reason,omitempty"`
	Err          string            `json:"error,omitempty"`
}

func toWireRequest(req *types.UnifiedRequest) wireRequest {
	messages := make([]wireMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = toWireMessage(m)
	}
	tools := make([]wireToolDef, len(req.Tools))
	for i, t := range req.Tools {
		tools[i] = wireToolDef{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
	}
	var toolChoice *wireToolChoice
	if req.ToolChoice != nil {
		toolChoice = &wireToolChoice{Mode: string(req.ToolChoice.Mode), Name: req.ToolChoice.Name}
	}
	return wireRequest{
		Model:      req.Model,
		Messages:   messages,
		Tools:      tools,
		ToolChoice: toolChoice,
		Params: wireParams{
			Temperature:    req.Params.Temperature,
			TopP:           req.Params.TopP,
			MaxTokens:      req.Params.MaxTokens,
			StopSequences:  req.Params.StopSequences,
			ResponseFormat: string(req.Params.ResponseFormat),
		},
		Stream:   req.Stream,
		ThreadID: req.ThreadID,
		RunID:    req.RunID,
		Tags:     req.Tags,
	}
}

func toWireMessage(m types.Message) wireMessage {
	parts := make([]wirePart, 0, len(m.Parts))
	for _, p := range m.Parts {
		parts = append(parts, toWirePart(p))
	}
	return wireMessage{Role: m.Role, Parts: parts, ToolCallID: m.ToolCallID}
}

func toWirePart(p types.Part) wirePart {
	switch v := p.(type) {
	case types.TextPart:
		return wirePart{Type: "text", Text: v.Text}
	case types.ImagePart:
		return wirePart{Type: "image", ImageFormat: v.Format, ImageBytes: v.Bytes, ImageURL: v.URL}
	case types.ToolUsePart:
		return wirePart{Type: "tool_use", ToolUseID: v.ID, ToolUseName: v.Name, ToolUseInput: json.RawMessage(v.Input)}
	case types.ToolResultPart:
		return wirePart{Type: "tool_result", ToolResultCallID: v.ToolCallID, ToolResultValue: v.Content, ToolResultError: v.IsError}
	default:
		return wirePart{Type: "text"}
	}
}

func fromWireResponse(w wireResponse) *types.UnifiedResponse {
	messages := make([]types.Message, len(w.Messages))
	for i, m := range w.Messages {
		messages[i] = fromWireMessage(m)
	}
	return &types.UnifiedResponse{
		Messages:     messages,
		Usage:        fromWireUsage(w.Usage),
		FinishReason: types.FinishReason(w.FinishReason),
		Model:        w.Model,
	}
}

func fromWireUsage(w wireUsage) types.UsageRecord {
	return types.UsageRecord{
		InputTokens:       w.InputTokens,
		OutputTokens:      w.OutputTokens,
		CachedInputTokens: w.CachedInputTokens,
		CachedWriteTokens: w.CachedWriteTokens,
		ImageCount:        w.ImageCount,
		Model:             w.Model,
		Provider:          types.ProviderKind(w.Provider),
	}
}

func fromWireMessage(w wireMessage) types.Message {
	parts := make([]types.Part, 0, len(w.Parts))
	for _, p := range w.Parts {
		parts = append(parts, fromWirePart(p))
	}
	return types.Message{Role: w.Role, Parts: parts, ToolCallID: w.ToolCallID}
}

func fromWirePart(w wirePart) types.Part {
	switch w.Type {
	case "text":
		return types.TextPart{Text: w.Text}
	case "image":
		return types.ImagePart{Format: w.ImageFormat, Bytes: w.ImageBytes, URL: w.ImageURL}
	case "tool_use":
		return types.ToolUsePart{ID: w.ToolUseID, Name: w.ToolUseName, Input: []byte(w.ToolUseInput)}
	case "tool_result":
		return types.ToolResultPart{ToolCallID: w.ToolResultCallID, Content: w.ToolResultValue, IsError: w.ToolResultError}
	default:
		return types.TextPart{}
	}
}

func fromWireChunk(w wireChunk) types.Chunk {
	var err error
	if w.Err != "" {
		err = fmt.Errorf("%s", w.Err)
	}
	return types.Chunk{
		Type:  types.ChunkType(w.Type),
		Delta: w.Delta,
		ToolCall: types.ToolCallDelta{
			CallID:    w.ToolCall.CallID,
			Name:      w.ToolCall.Name,
			ArgsDelta: w.ToolCall.ArgsDelta,
		},
		Reasoning:    w.Reasoning,
		Usage:        fromWireUsage(w.Usage),
		FinishReason: types.FinishReason(w.FinishReason),
		Err:          err,
	}
}
