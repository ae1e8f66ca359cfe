// Package anthropic adapts the Anthropic Claude Messages API to
// provider.Adapter using github.com/anthropics/anthropic-sdk-go.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/vllora/gateway/provider"
	"github.com/vllora/gateway/types"
)

type (
	// MessagesClient captures the subset of the Anthropic SDK used by the
	// adapter, so tests can substitute a mock for *sdk.MessageService.
	MessagesClient interface {
		New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
		NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
	}

	// Adapter implements provider.Adapter on top of Anthropic Messages.
	Adapter struct {
		msg MessagesClient
	}
)

// New wraps an already-constructed Anthropic Messages client.
func New(msg MessagesClient) *Adapter {
	return &Adapter{msg: msg}
}

// NewFromCredentials builds an Adapter from gateway-resolved credentials.
func NewFromCredentials(creds types.Credentials) (*Adapter, error) {
	if creds.APIKey == "" {
		return nil, &types.CredentialsMissing{Provider: types.Anthropic}
	}
	opts := []option.RequestOption{option.WithAPIKey(creds.APIKey)}
	if creds.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(creds.Endpoint))
	}
	client := sdk.NewClient(opts...)
	return New(&client.Messages), nil
}

func (a *Adapter) Capabilities() types.Capabilities {
	return types.Capabilities{Streaming: true, Tools: true, Vision: true, JSONMode: false}
}

func (a *Adapter) Complete(ctx context.Context, req *types.UnifiedRequest, _ types.Credentials) (*types.UnifiedResponse, error) {
	params, err := translateRequest(req)
	if err != nil {
		return nil, err
	}
	msg, err := a.msg.New(ctx, *params)
	if err != nil {
		return nil, translateError(err)
	}
	return translateResponse(msg)
}

func (a *Adapter) Stream(ctx context.Context, req *types.UnifiedRequest, _ types.Credentials) (types.ChunkStreamer, error) {
	params, err := translateRequest(req)
	if err != nil {
		return nil, err
	}
	stream := a.msg.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, translateError(err)
	}
	return newStreamer(ctx, stream), nil
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, provider.ErrRateLimited) {
		return provider.ClassifyError(429, "", err)
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return provider.ClassifyError(apiErr.StatusCode, apiErr.RawJSON(), err)
	}
	return provider.ClassifyError(0, "", err)
}

func translateRequest(req *types.UnifiedRequest) (*sdk.MessageNewParams, error) {
	if req.Model == "" {
		return nil, &types.BadRequest{Reason: "anthropic: model identifier is required"}
	}
	maxTokens := req.Params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	convo, system, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  convo,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Params.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Params.Temperature))
	}
	if len(req.Params.StopSequences) > 0 {
		params.StopSequences = req.Params.StopSequences
	}
	if len(req.Tools) > 0 {
		tools, err := encodeTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	if req.ToolChoice != nil {
		tc, err := encodeToolChoice(*req.ToolChoice)
		if err != nil {
			return nil, err
		}
		params.ToolChoice = tc
	}
	return &params, nil
}

func encodeMessages(msgs []types.Message) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	convo := make([]sdk.MessageParam, 0, len(msgs))
	system := make([]sdk.TextBlockParam, 0)

	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			if text := m.Text(); text != "" {
				system = append(system, sdk.TextBlockParam{Text: text})
			}
			continue
		}
		blocks, err := encodeParts(m)
		if err != nil {
			return nil, nil, err
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case types.RoleUser, types.RoleTool:
			convo = append(convo, sdk.NewUserMessage(blocks...))
		case types.RoleAssistant:
			convo = append(convo, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(convo) == 0 {
		return nil, nil, &types.BadRequest{Reason: "anthropic: at least one user/assistant message is required"}
	}
	return convo, system, nil
}

func encodeParts(m types.Message) ([]sdk.ContentBlockParamUnion, error) {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Parts))
	for _, part := range m.Parts {
		switch v := part.(type) {
		case types.TextPart:
			if v.Text != "" {
				blocks = append(blocks, sdk.NewTextBlock(v.Text))
			}
		case types.ToolUsePart:
			blocks = append(blocks, sdk.NewToolUseBlock(v.ID, json.RawMessage(v.Input), string(v.Name)))
		case types.ToolResultPart:
			blocks = append(blocks, encodeToolResult(v))
		case types.ImagePart:
			blk, err := encodeImage(v)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, blk)
		}
	}
	return blocks, nil
}

func encodeImage(v types.ImagePart) (sdk.ContentBlockParamUnion, error) {
	if v.URL != "" {
		return sdk.NewImageBlock(sdk.URLImageSourceParam{URL: v.URL}), nil
	}
	if len(v.Bytes) == 0 {
		return sdk.ContentBlockParamUnion{}, &types.BadRequest{Reason: "anthropic: image part has neither bytes nor url"}
	}
	media := string(v.Format)
	if media == "" {
		media = "image/png"
	}
	b64 := base64.StdEncoding.EncodeToString(v.Bytes)
	return sdk.NewImageBlockBase64(media, b64), nil
}

func encodeToolResult(v types.ToolResultPart) sdk.ContentBlockParamUnion {
	var content string
	switch c := v.Content.(type) {
	case nil:
		content = ""
	case string:
		content = c
	case []byte:
		content = string(c)
	default:
		if data, err := json.Marshal(c); err == nil {
			content = string(data)
		}
	}
	return sdk.NewToolResultBlock(v.ToolCallID, content, v.IsError)
}

func encodeTools(defs []types.ToolDefinition) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		schema, err := decodeSchema(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", def.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func decodeSchema(schema any) (sdk.ToolInputSchemaParam, error) {
	if schema == nil {
		return sdk.ToolInputSchemaParam{}, nil
	}
	if m, ok := schema.(map[string]any); ok {
		return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

func encodeToolChoice(choice types.ToolChoice) (sdk.ToolChoiceUnionParam, error) {
	switch choice.Mode {
	case "", types.ToolChoiceModeAuto:
		return sdk.ToolChoiceUnionParam{}, nil
	case types.ToolChoiceModeNone:
		none := sdk.NewToolChoiceNoneParam()
		return sdk.ToolChoiceUnionParam{OfNone: &none}, nil
	case types.ToolChoiceModeAny:
		return sdk.ToolChoiceUnionParam{OfAny: &sdk.ToolChoiceAnyParam{}}, nil
	case types.ToolChoiceModeTool:
		if choice.Name == "" {
			return sdk.ToolChoiceUnionParam{}, &types.BadRequest{Reason: "anthropic: tool choice mode tool requires a name"}
		}
		return sdk.ToolChoiceParamOfTool(choice.Name), nil
	default:
		return sdk.ToolChoiceUnionParam{}, fmt.Errorf("anthropic: unsupported tool choice mode %q", choice.Mode)
	}
}

func translateResponse(msg *sdk.Message) (*types.UnifiedResponse, error) {
	if msg == nil {
		return nil, errors.New("anthropic: response message is nil")
	}
	out := types.Message{Role: types.RoleAssistant}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				out.Parts = append(out.Parts, types.TextPart{Text: block.Text})
			}
		case "tool_use":
			out.Parts = append(out.Parts, types.ToolUsePart{
				ID:    block.ID,
				Name:  types.ToolIdent(block.Name),
				Input: []byte(block.Input),
			})
		}
	}
	u := msg.Usage
	resp := &types.UnifiedResponse{
		Messages: []types.Message{out},
		Model:    string(msg.Model),
		Usage: types.UsageRecord{
			InputTokens:       int(u.InputTokens),
			OutputTokens:      int(u.OutputTokens),
			CachedInputTokens: int(u.CacheReadInputTokens),
			CachedWriteTokens: int(u.CacheCreationInputTokens),
			Model:             string(msg.Model),
			Provider:          types.Anthropic,
		},
		FinishReason: translateStopReason(string(msg.StopReason)),
	}
	return resp, nil
}

func translateStopReason(r string) types.FinishReason {
	switch r {
	case "end_turn", "stop_sequence":
		return types.FinishStop
	case "max_tokens":
		return types.FinishLength
	case "tool_use":
		return types.FinishToolCalls
	default:
		return types.FinishStop
	}
}
