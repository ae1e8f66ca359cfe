// Package proxy adapts another gateway instance (or any OpenAI-compatible
// reverse proxy) as a provider.Adapter over plain HTTP/JSON. It is
// deliberately not gRPC: SPEC_FULL.md drops the teacher's protobuf/gRPC
// transport in favor of the simpler HTTP surface the rest of the provider
// stack already speaks, generalizing the functional shape of
// features/model/gateway/remote_client.go's RemoteClient (normalized
// request/response functions, transport left to the caller) to an actual
// wire client instead of caller-supplied closures.
package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vllora/gateway/provider"
	"github.com/vllora/gateway/types"
)

// HTTPClient is the transport seam the adapter needs, narrowed from
// *http.Client so tests can substitute a fake round tripper.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Adapter forwards UnifiedRequest/UnifiedResponse JSON verbatim to another
// gateway's HTTP surface, for deployments that chain gateway instances or
// front a third-party OpenAI-compatible endpoint that isn't worth a
// dedicated adapter.
type Adapter struct {
	client  HTTPClient
	baseURL string
	apiKey  string
}

// New constructs an Adapter targeting baseURL (e.g. "https://gateway.internal").
func New(client HTTPClient, baseURL string) *Adapter {
	return &Adapter{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// NewFromCredentials builds an Adapter using Credentials.Endpoint as the
// upstream gateway's base URL and Credentials.APIKey as a bearer token.
func NewFromCredentials(creds types.Credentials) (*Adapter, error) {
	if creds.Endpoint == "" {
		return nil, &types.BadRequest{Reason: "proxy: endpoint is required"}
	}
	a := New(http.DefaultClient, creds.Endpoint)
	a.apiKey = creds.APIKey
	return a, nil
}

func (a *Adapter) Capabilities() types.Capabilities {
	return types.Capabilities{Streaming: true, Tools: true, Vision: true, JSONMode: true}
}

func (a *Adapter) Complete(ctx context.Context, req *types.UnifiedRequest, creds types.Credentials) (*types.UnifiedResponse, error) {
	body, err := json.Marshal(toWireRequest(req))
	if err != nil {
		return nil, &types.Internal{Err: fmt.Errorf("proxy: encode request: %w", err)}
	}

	httpReq, err := a.newRequest(ctx, "/v1/chat/completions", body, creds)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, provider.ClassifyError(0, "", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.Internal{Err: fmt.Errorf("proxy: read response: %w", err)}
	}
	if resp.StatusCode >= 400 {
		return nil, provider.ClassifyError(resp.StatusCode, string(data), nil)
	}

	var wireResp wireResponse
	if err := json.Unmarshal(data, &wireResp); err != nil {
		return nil, &types.Internal{Err: fmt.Errorf("proxy: decode response: %w", err)}
	}
	return fromWireResponse(wireResp), nil
}

func (a *Adapter) Stream(ctx context.Context, req *types.UnifiedRequest, creds types.Credentials) (types.ChunkStreamer, error) {
	wireReq := toWireRequest(req)
	wireReq.Stream = true
	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, &types.Internal{Err: fmt.Errorf("proxy: encode request: %w", err)}
	}

	httpReq, err := a.newRequest(ctx, "/v1/chat/completions", body, creds)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, provider.ClassifyError(0, "", err)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, provider.ClassifyError(resp.StatusCode, string(data), nil)
	}
	return newStreamer(resp.Body), nil
}

func (a *Adapter) newRequest(ctx context.Context, path string, body []byte, creds types.Credentials) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &types.Internal{Err: fmt.Errorf("proxy: build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := a.resolveAPIKey(creds); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}
	return httpReq, nil
}

func (a *Adapter) resolveAPIKey(creds types.Credentials) string {
	if creds.APIKey != "" {
		return creds.APIKey
	}
	return a.apiKey
}

// streamer consumes the upstream's text/event-stream body, parsing each
// "data: {...}" frame as a canonical types.Chunk.
type streamer struct {
	scanner *bufio.Scanner
	body    io.ReadCloser
}

func newStreamer(body io.ReadCloser) *streamer {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &streamer{scanner: scanner, body: body}
}

func (s *streamer) Recv() (types.Chunk, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return types.Chunk{}, io.EOF
		}
		var wc wireChunk
		if err := json.Unmarshal([]byte(payload), &wc); err != nil {
			return types.Chunk{}, &types.Internal{Err: fmt.Errorf("proxy: decode chunk: %w", err)}
		}
		return fromWireChunk(wc), nil
	}
	if err := s.scanner.Err(); err != nil {
		return types.Chunk{}, err
	}
	return types.Chunk{}, io.EOF
}

func (s *streamer) Close() error { return s.body.Close() }

func (s *streamer) Metadata() map[string]any { return nil }
