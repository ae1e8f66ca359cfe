package breakpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coreBreakpoint "github.com/vllora/gateway/breakpoint"
	"github.com/vllora/gateway/interceptor"
	"github.com/vllora/gateway/types"
)

func testCtx() *interceptor.RequestContext {
	req := &types.UnifiedRequest{Model: "virtual:default", Messages: []types.Message{
		{Role: types.RoleUser, Parts: []types.Part{types.TextPart{Text: "hi"}}},
	}}
	return interceptor.NewRequestContext(req, types.Credentials{})
}

func resolveSoon(t *testing.T, m *coreBreakpoint.Manager, action coreBreakpoint.Action) {
	t.Helper()
	go func() {
		for {
			list := m.List()
			if len(list) > 0 {
				_ = m.Resolve(list[0].ID, action)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
}

func TestInterceptor_ContinuePassesThrough(t *testing.T) {
	m := coreBreakpoint.New()
	ic := New(m, nil)
	rc := testCtx()

	resolveSoon(t, m, coreBreakpoint.Action{Kind: coreBreakpoint.ActionContinue})

	res, err := ic.PreRequest(context.Background(), rc)
	require.NoError(t, err)
	require.Equal(t, interceptor.Pass, res.Verdict)
}

func TestInterceptor_ModifyReplacesMutableFields(t *testing.T) {
	m := coreBreakpoint.New()
	ic := New(m, nil)
	rc := testCtx()

	modified := &types.UnifiedRequest{
		Params:   types.GenerationParams{Temperature: 0.9},
		Messages: []types.Message{{Role: types.RoleUser, Parts: []types.Part{types.TextPart{Text: "edited"}}}},
	}
	resolveSoon(t, m, coreBreakpoint.Action{Kind: coreBreakpoint.ActionModify, Modified: modified})

	res, err := ic.PreRequest(context.Background(), rc)
	require.NoError(t, err)
	require.Equal(t, interceptor.Pass, res.Verdict)
	require.Equal(t, float32(0.9), rc.Request.Params.Temperature)
	require.Equal(t, "edited", rc.Request.Messages[0].Text())
}

func TestInterceptor_AbortBlocksWithBreakpointAborted(t *testing.T) {
	m := coreBreakpoint.New()
	ic := New(m, nil)
	rc := testCtx()

	resolveSoon(t, m, coreBreakpoint.Action{Kind: coreBreakpoint.ActionAbort})

	res, err := ic.PreRequest(context.Background(), rc)
	require.NoError(t, err)
	require.Equal(t, interceptor.Block, res.Verdict)
	aborted, ok := res.Payload.(*types.BreakpointAborted)
	require.True(t, ok)
	require.NotEmpty(t, aborted.BreakpointID)
}

func TestInterceptor_TagMatcherSkipsNonMatchingRequests(t *testing.T) {
	m := coreBreakpoint.New()
	ic := New(m, func(*types.UnifiedRequest) bool { return false })
	rc := testCtx()

	res, err := ic.PreRequest(context.Background(), rc)
	require.NoError(t, err)
	require.Equal(t, interceptor.Pass, res.Verdict)
	require.Empty(t, m.List())
}

func TestInterceptor_InterceptAllOverridesTagMatcher(t *testing.T) {
	m := coreBreakpoint.New()
	m.SetInterceptAll(true)
	ic := New(m, func(*types.UnifiedRequest) bool { return false })
	rc := testCtx()

	resolveSoon(t, m, coreBreakpoint.Action{Kind: coreBreakpoint.ActionContinue})

	res, err := ic.PreRequest(context.Background(), rc)
	require.NoError(t, err)
	require.Equal(t, interceptor.Pass, res.Verdict)
}
