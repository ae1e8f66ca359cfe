package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/interceptor"
	"github.com/vllora/gateway/types"
)

func testCtx(model string) *interceptor.RequestContext {
	req := &types.UnifiedRequest{Model: model, Messages: []types.Message{
		{Role: types.RoleUser, Parts: []types.Part{types.TextPart{Text: "hi"}}},
	}}
	return interceptor.NewRequestContext(req, types.Credentials{})
}

func byModel(rc *interceptor.RequestContext) []Target {
	return []Target{{Kind: TargetModel, ID: rc.Request.Model}}
}

func TestInterceptor_PassesWhileBucketHasCapacity(t *testing.T) {
	limiter := NewLimiter(map[TargetKind]BucketConfig{TargetModel: {Window: time.Minute, Limit: 5}})
	ic := New(limiter, byModel)

	res, err := ic.PreRequest(context.Background(), testCtx("gpt-4"))
	require.NoError(t, err)
	require.Equal(t, interceptor.Pass, res.Verdict)
}

func TestInterceptor_BlocksWithRateLimitedWhenExhausted(t *testing.T) {
	limiter := NewLimiter(map[TargetKind]BucketConfig{TargetModel: {Window: time.Minute, Limit: 1}})
	ic := New(limiter, byModel)
	ctx := context.Background()

	_, err := ic.PreRequest(ctx, testCtx("gpt-4"))
	require.NoError(t, err)

	res, err := ic.PreRequest(ctx, testCtx("gpt-4"))
	require.NoError(t, err)
	require.Equal(t, interceptor.Block, res.Verdict)
	_, ok := res.Payload.(*types.RateLimited)
	require.True(t, ok)
}

func TestInterceptor_DefaultResolverChargesGlobal(t *testing.T) {
	limiter := NewLimiter(map[TargetKind]BucketConfig{TargetGlobal: {Window: time.Minute, Limit: 1}})
	ic := New(limiter, nil)
	ctx := context.Background()

	_, err := ic.PreRequest(ctx, testCtx("gpt-4"))
	require.NoError(t, err)
	res, err := ic.PreRequest(ctx, testCtx("claude-3"))
	require.NoError(t, err)
	require.Equal(t, interceptor.Block, res.Verdict, "both requests share the global bucket")
}
