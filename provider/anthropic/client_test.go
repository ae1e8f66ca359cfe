package anthropic

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/types"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
	stream     *ssestream.Stream[sdk.MessageStreamEventUnion]
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func (s *stubMessagesClient) NewStreaming(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	s.lastParams = body
	return s.stream
}

func TestComplete_TranslatesTextResponse(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Model:      "claude-sonnet-4-5",
			StopReason: "end_turn",
			Content: []sdk.ContentBlockUnion{
				{Type: "text", Text: "hi there"},
			},
			Usage: sdk.Usage{InputTokens: 10, OutputTokens: 4},
		},
	}
	adapter := New(stub)

	req := &types.UnifiedRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []types.Message{{Role: types.RoleUser, Parts: []types.Part{types.TextPart{Text: "hello"}}}},
	}

	resp, err := adapter.Complete(context.Background(), req, types.Credentials{})
	require.NoError(t, err)
	require.Equal(t, "hi there", resp.Messages[0].Text())
	require.Equal(t, types.FinishStop, resp.FinishReason)
	require.Equal(t, 10, resp.Usage.InputTokens)
	require.Equal(t, 4, resp.Usage.OutputTokens)
	require.Equal(t, int64(4096), stub.lastParams.MaxTokens)
}

func TestComplete_RejectsEmptyModel(t *testing.T) {
	adapter := New(&stubMessagesClient{})
	req := &types.UnifiedRequest{Messages: []types.Message{{Role: types.RoleUser, Parts: []types.Part{types.TextPart{Text: "hi"}}}}}

	_, err := adapter.Complete(context.Background(), req, types.Credentials{})

	require.Error(t, err)
	var badReq *types.BadRequest
	require.ErrorAs(t, err, &badReq)
}

func TestCapabilities(t *testing.T) {
	caps := New(&stubMessagesClient{}).Capabilities()
	require.True(t, caps.Streaming)
	require.True(t, caps.Tools)
	require.True(t, caps.Vision)
	require.False(t, caps.JSONMode)
}
