package openai

import (
	"context"
	"testing"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/types"
)

type stubCompletionsClient struct {
	lastParams oai.ChatCompletionNewParams
	resp       *oai.ChatCompletion
	err        error
}

func (s *stubCompletionsClient) New(_ context.Context, body oai.ChatCompletionNewParams, _ ...option.RequestOption) (*oai.ChatCompletion, error) {
	s.lastParams = body
	return s.resp, s.err
}

func (s *stubCompletionsClient) NewStreaming(_ context.Context, body oai.ChatCompletionNewParams, _ ...option.RequestOption) *oai.ChatCompletionStream {
	s.lastParams = body
	return nil
}

func TestComplete_TranslatesTextResponse(t *testing.T) {
	stub := &stubCompletionsClient{
		resp: &oai.ChatCompletion{
			Model: "gpt-4o-mini",
			Choices: []oai.ChatCompletionChoice{
				{
					FinishReason: "stop",
					Message:      oai.ChatCompletionMessage{Content: "hi there"},
				},
			},
			Usage: oai.CompletionUsage{PromptTokens: 12, CompletionTokens: 5},
		},
	}
	adapter := New(stub)

	req := &types.UnifiedRequest{
		Model:    "gpt-4o-mini",
		Messages: []types.Message{{Role: types.RoleUser, Parts: []types.Part{types.TextPart{Text: "hello"}}}},
	}

	resp, err := adapter.Complete(context.Background(), req, types.Credentials{})
	require.NoError(t, err)
	require.Equal(t, "hi there", resp.Messages[0].Text())
	require.Equal(t, types.FinishStop, resp.FinishReason)
	require.Equal(t, 12, resp.Usage.InputTokens)
	require.Equal(t, 5, resp.Usage.OutputTokens)
}

func TestComplete_RejectsEmptyModel(t *testing.T) {
	adapter := New(&stubCompletionsClient{})
	req := &types.UnifiedRequest{Messages: []types.Message{{Role: types.RoleUser, Parts: []types.Part{types.TextPart{Text: "hi"}}}}}

	_, err := adapter.Complete(context.Background(), req, types.Credentials{})

	require.Error(t, err)
	var badReq *types.BadRequest
	require.ErrorAs(t, err, &badReq)
}

func TestComplete_RejectsToolChoiceModeToolWithoutName(t *testing.T) {
	adapter := New(&stubCompletionsClient{})
	req := &types.UnifiedRequest{
		Model:      "gpt-4o-mini",
		Messages:   []types.Message{{Role: types.RoleUser, Parts: []types.Part{types.TextPart{Text: "hi"}}}},
		ToolChoice: &types.ToolChoice{Mode: types.ToolChoiceModeTool},
	}

	_, err := adapter.Complete(context.Background(), req, types.Credentials{})

	require.Error(t, err)
	var badReq *types.BadRequest
	require.ErrorAs(t, err, &badReq)
}

func TestCapabilities(t *testing.T) {
	caps := New(&stubCompletionsClient{}).Capabilities()
	require.True(t, caps.Streaming)
	require.True(t, caps.Tools)
	require.True(t, caps.Vision)
	require.True(t, caps.JSONMode)
}

func TestNewFromCredentials_RequiresAPIKey(t *testing.T) {
	_, err := NewFromCredentials(types.Credentials{})
	require.Error(t, err)
	var missing *types.CredentialsMissing
	require.ErrorAs(t, err, &missing)
}
