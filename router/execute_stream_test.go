package router

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/interceptor"
	"github.com/vllora/gateway/types"
)

type fakeStreamer struct {
	chunks []types.Chunk
	i      int
}

func (f *fakeStreamer) Recv() (types.Chunk, error) {
	if f.i >= len(f.chunks) {
		return types.Chunk{}, io.EOF
	}
	c := f.chunks[f.i]
	f.i++
	return c, nil
}

func (f *fakeStreamer) Close() error             { return nil }
func (f *fakeStreamer) Metadata() map[string]any { return nil }

func successStream() *fakeStreamer {
	return &fakeStreamer{chunks: []types.Chunk{
		{Type: types.ChunkDelta, Delta: "hello"},
		{Type: types.ChunkUsageFinal, Usage: types.UsageRecord{InputTokens: 5, OutputTokens: 2}},
		{Type: types.ChunkFinishReason, FinishReason: types.FinishStop},
	}}
}

func TestExecuteStream_RetriesConnectionEstablishmentOnRetryableError(t *testing.T) {
	attempts := 0
	target := ResolvedTarget{Name: "m", Adapter: &fakeAdapter{
		streamFn: func(context.Context, *types.UnifiedRequest, types.Credentials) (types.ChunkStreamer, error) {
			attempts++
			if attempts < 2 {
				return nil, &types.ProviderError{Status: 503, Retryable: true}
			}
			return successStream(), nil
		},
	}}
	resolver := &fakeResolver{targets: map[string]ResolvedTarget{"m": target}, policy: Policy{MaxRetries: 2}}
	e := New(resolver, interceptor.New(), nil, nil)
	noSleep(e)

	strm, err := e.ExecuteStream(context.Background(), testRequest("m"), types.Credentials{})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)

	var got []types.Chunk
	for {
		c, err := strm.Recv()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		got = append(got, c)
	}
	require.NoError(t, strm.Close())
	require.Len(t, got, 3)
}

func TestExecuteStream_FatalConnectErrorSkipsFallback(t *testing.T) {
	fallbackCalled := false
	primary := ResolvedTarget{Name: "m", Adapter: &fakeAdapter{
		streamFn: func(context.Context, *types.UnifiedRequest, types.Credentials) (types.ChunkStreamer, error) {
			return nil, &types.ProviderError{Status: 401, Retryable: false}
		},
	}}
	fallback := ResolvedTarget{Name: "fb", Adapter: &fakeAdapter{
		streamFn: func(context.Context, *types.UnifiedRequest, types.Credentials) (types.ChunkStreamer, error) {
			fallbackCalled = true
			return successStream(), nil
		},
	}}
	resolver := &fakeResolver{
		targets: map[string]ResolvedTarget{"m": primary, "fb": fallback},
		policy:  Policy{MaxRetries: 1, Fallbacks: []string{"fb"}},
	}
	e := New(resolver, interceptor.New(), nil, nil)
	noSleep(e)

	_, err := e.ExecuteStream(context.Background(), testRequest("m"), types.Credentials{})
	require.Error(t, err)
	require.False(t, fallbackCalled)
}

func TestExecuteStream_CloseRunsPostInterceptorsAndRecordsCost(t *testing.T) {
	target := ResolvedTarget{Name: "m", Adapter: &fakeAdapter{
		streamFn: func(context.Context, *types.UnifiedRequest, types.Credentials) (types.ChunkStreamer, error) {
			return successStream(), nil
		},
	}}
	resolver := &fakeResolver{targets: map[string]ResolvedTarget{"m": target}, policy: Policy{}}

	var postResp *types.UnifiedResponse
	rec := &recordingPostInterceptor{onPost: func(resp *types.UnifiedResponse) { postResp = resp }}
	e := New(resolver, interceptor.New(rec), nil, nil)
	noSleep(e)

	strm, err := e.ExecuteStream(context.Background(), testRequest("m"), types.Credentials{})
	require.NoError(t, err)
	for {
		if _, err := strm.Recv(); err != nil {
			break
		}
	}
	require.NoError(t, strm.Close())
	require.NotNil(t, postResp)
	require.Equal(t, 5, postResp.Usage.InputTokens)
}

type recordingPostInterceptor struct {
	onPost func(resp *types.UnifiedResponse)
}

func (r *recordingPostInterceptor) Name() string { return "recorder" }
func (r *recordingPostInterceptor) PreRequest(context.Context, *interceptor.RequestContext) (interceptor.Result, error) {
	return interceptor.Result{Verdict: interceptor.Pass}, nil
}
func (r *recordingPostInterceptor) PostRequest(_ context.Context, _ *interceptor.RequestContext, resp *types.UnifiedResponse) (interceptor.Result, error) {
	r.onPost(resp)
	return interceptor.Result{Verdict: interceptor.Pass}, nil
}
