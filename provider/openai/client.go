// Package openai adapts any OpenAI Chat Completions-compatible endpoint to
// provider.Adapter using github.com/openai/openai-go. A custom BaseURL lets
// the same adapter serve self-hosted OpenAI-compatible deployments (spec
// provider kind "openai_compatible").
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/vllora/gateway/provider"
	"github.com/vllora/gateway/types"
)

// CompletionsClient captures the subset of the SDK used by the adapter.
type CompletionsClient interface {
	New(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) (*oai.ChatCompletion, error)
	NewStreaming(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) *oai.ChatCompletionStream
}

// Adapter implements provider.Adapter on top of Chat Completions.
type Adapter struct {
	completions CompletionsClient
	jsonMode    bool
}

// New wraps an already-constructed Chat Completions client.
func New(completions CompletionsClient) *Adapter {
	return &Adapter{completions: completions, jsonMode: true}
}

// NewFromCredentials builds an Adapter from gateway-resolved credentials. A
// non-empty Endpoint routes to a self-hosted OpenAI-compatible deployment.
func NewFromCredentials(creds types.Credentials) (*Adapter, error) {
	if creds.APIKey == "" {
		return nil, &types.CredentialsMissing{Provider: types.ProviderOpenAICompatible}
	}
	opts := []option.RequestOption{option.WithAPIKey(creds.APIKey)}
	if creds.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(creds.Endpoint))
	}
	client := oai.NewClient(opts...)
	return New(client.Chat.Completions), nil
}

func (a *Adapter) Capabilities() types.Capabilities {
	return types.Capabilities{Streaming: true, Tools: true, Vision: true, JSONMode: a.jsonMode}
}

func (a *Adapter) Complete(ctx context.Context, req *types.UnifiedRequest, _ types.Credentials) (*types.UnifiedResponse, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := a.completions.New(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	return translateResponse(resp)
}

func (a *Adapter) Stream(ctx context.Context, req *types.UnifiedRequest, _ types.Credentials) (types.ChunkStreamer, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}
	stream := a.completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, translateError(err)
	}
	return newStreamer(ctx, stream), nil
}

func translateError(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return provider.ClassifyError(apiErr.StatusCode, apiErr.RawJSON(), err)
	}
	return provider.ClassifyError(0, "", err)
}

func buildParams(req *types.UnifiedRequest) (oai.ChatCompletionNewParams, error) {
	if req.Model == "" {
		return oai.ChatCompletionNewParams{}, &types.BadRequest{Reason: "openai: model identifier is required"}
	}
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}
	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if req.Params.Temperature != 0 {
		params.Temperature = param.NewOpt(float64(req.Params.Temperature))
	}
	if req.Params.TopP != 0 {
		params.TopP = param.NewOpt(float64(req.Params.TopP))
	}
	if req.Params.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.Params.MaxTokens))
	}
	if len(req.Params.StopSequences) > 0 {
		params.Stop = oai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Params.StopSequences}
	}
	if req.Params.ResponseFormat == types.ResponseFormatJSON {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	for _, td := range req.Tools {
		schema, err := decodeSchema(td.InputSchema)
		if err != nil {
			return oai.ChatCompletionNewParams{}, fmt.Errorf("openai: tool %q schema: %w", td.Name, err)
		}
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        td.Name,
				Description: param.NewOpt(td.Description),
				Parameters:  schema,
			},
		})
	}
	if req.ToolChoice != nil {
		tc, err := convertToolChoice(*req.ToolChoice)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		params.ToolChoice = tc
	}
	return params, nil
}

func decodeSchema(schema any) (shared.FunctionParameters, error) {
	if schema == nil {
		return shared.FunctionParameters{"type": "object"}, nil
	}
	if m, ok := schema.(map[string]any); ok {
		return shared.FunctionParameters(m), nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return shared.FunctionParameters(m), nil
}

func convertToolChoice(choice types.ToolChoice) (oai.ChatCompletionToolChoiceOptionUnionParam, error) {
	switch choice.Mode {
	case "", types.ToolChoiceModeAuto:
		return oai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("auto")}, nil
	case types.ToolChoiceModeNone:
		return oai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("none")}, nil
	case types.ToolChoiceModeAny:
		return oai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("required")}, nil
	case types.ToolChoiceModeTool:
		if choice.Name == "" {
			return oai.ChatCompletionToolChoiceOptionUnionParam{}, &types.BadRequest{Reason: "openai: tool choice mode tool requires a name"}
		}
		return oai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &oai.ChatCompletionNamedToolChoiceParam{
				Function: oai.ChatCompletionNamedToolChoiceFunctionParam{Name: choice.Name},
			},
		}, nil
	default:
		return oai.ChatCompletionToolChoiceOptionUnionParam{}, fmt.Errorf("openai: unsupported tool choice mode %q", choice.Mode)
	}
}

func convertMessage(m types.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case types.RoleSystem:
		return oai.SystemMessage(m.Text()), nil
	case types.RoleUser:
		return oai.UserMessage(m.Text()), nil
	case types.RoleAssistant:
		asst := oai.ChatCompletionAssistantMessageParam{}
		if text := m.Text(); text != "" {
			asst.Content.OfString = oai.String(text)
		}
		for _, tu := range m.ToolUses() {
			asst.ToolCalls = append(asst.ToolCalls, oai.ChatCompletionMessageToolCallParam{
				ID: tu.ID,
				Function: oai.ChatCompletionMessageToolCallFunctionParam{
					Name:      string(tu.Name),
					Arguments: string(tu.Input),
				},
			})
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil
	case types.RoleTool:
		content := toolResultText(m)
		return oai.ToolMessage(content, m.ToolCallID), nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unsupported message role %q", m.Role)
	}
}

func toolResultText(m types.Message) string {
	for _, p := range m.Parts {
		if tr, ok := p.(types.ToolResultPart); ok {
			switch c := tr.Content.(type) {
			case string:
				return c
			case []byte:
				return string(c)
			default:
				if data, err := json.Marshal(c); err == nil {
					return string(data)
				}
			}
		}
	}
	return m.Text()
}

func translateResponse(resp *oai.ChatCompletion) (*types.UnifiedResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: empty choices in response")
	}
	choice := resp.Choices[0]
	out := types.Message{Role: types.RoleAssistant}
	if choice.Message.Content != "" {
		out.Parts = append(out.Parts, types.TextPart{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		out.Parts = append(out.Parts, types.ToolUsePart{
			ID:    tc.ID,
			Name:  types.ToolIdent(tc.Function.Name),
			Input: []byte(tc.Function.Arguments),
		})
	}
	return &types.UnifiedResponse{
		Messages: []types.Message{out},
		Model:    resp.Model,
		Usage: types.UsageRecord{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			Model:        resp.Model,
			Provider:     types.ProviderOpenAICompatible,
		},
		FinishReason: translateFinishReason(string(choice.FinishReason)),
	}, nil
}

func translateFinishReason(r string) types.FinishReason {
	switch r {
	case "stop":
		return types.FinishStop
	case "length":
		return types.FinishLength
	case "tool_calls":
		return types.FinishToolCalls
	case "content_filter":
		return types.FinishContentFilter
	default:
		return types.FinishStop
	}
}
