package proxy

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/types"
)

type stubHTTPClient struct {
	resp      *http.Response
	err       error
	lastReq   *http.Request
	lastBody  string
}

func (s *stubHTTPClient) Do(req *http.Request) (*http.Response, error) {
	s.lastReq = req
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		s.lastBody = string(data)
	}
	return s.resp, s.err
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestComplete_RoundTripsTextResponse(t *testing.T) {
	stub := &stubHTTPClient{resp: jsonResponse(200, `{
		"messages": [{"role": "assistant", "parts": [{"type": "text", "text": "hi there"}]}],
		"finish_reason": "stop",
		"usage": {"input_tokens": 3, "output_tokens": 2},
		"model": "downstream-model"
	}`)}
	adapter := New(stub, "https://gateway.internal")

	req := &types.UnifiedRequest{
		Model:    "virtual:default",
		Messages: []types.Message{{Role: types.RoleUser, Parts: []types.Part{types.TextPart{Text: "hello"}}}},
	}

	resp, err := adapter.Complete(context.Background(), req, types.Credentials{APIKey: "tok"})
	require.NoError(t, err)
	require.Equal(t, "hi there", resp.Messages[0].Text())
	require.Equal(t, types.FinishStop, resp.FinishReason)
	require.Equal(t, "downstream-model", resp.Model)
	require.Contains(t, stub.lastBody, `"text":"hello"`)
	require.Equal(t, "Bearer tok", stub.lastReq.Header.Get("Authorization"))
}

func TestComplete_ClassifiesUpstreamErrorStatus(t *testing.T) {
	stub := &stubHTTPClient{resp: jsonResponse(429, `{"error":"rate limited"}`)}
	adapter := New(stub, "https://gateway.internal")

	req := &types.UnifiedRequest{
		Model:    "virtual:default",
		Messages: []types.Message{{Role: types.RoleUser, Parts: []types.Part{types.TextPart{Text: "hi"}}}},
	}

	_, err := adapter.Complete(context.Background(), req, types.Credentials{})
	require.Error(t, err)
	var provErr *types.ProviderError
	require.ErrorAs(t, err, &provErr)
	require.True(t, provErr.Retryable)
}

func TestStreamer_ParsesSSEFramesUntilDone(t *testing.T) {
	body := "data: {\"type\":\"delta\",\"delta\":\"hel\"}\n\n" +
		"data: {\"type\":\"delta\",\"delta\":\"lo\"}\n\n" +
		"data: {\"type\":\"finish_reason\",\"finish_reason\":\"stop\"}\n\n" +
		"data: [DONE]\n\n"
	s := newStreamer(io.NopCloser(strings.NewReader(body)))

	c1, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, "hel", c1.Delta)

	c2, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, "lo", c2.Delta)

	c3, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, types.FinishStop, c3.FinishReason)

	_, err = s.Recv()
	require.ErrorIs(t, err, io.EOF)
}

func TestNewFromCredentials_RequiresEndpoint(t *testing.T) {
	_, err := NewFromCredentials(types.Credentials{})
	require.Error(t, err)
	var badReq *types.BadRequest
	require.ErrorAs(t, err, &badReq)
}
