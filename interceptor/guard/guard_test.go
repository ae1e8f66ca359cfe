package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/guardeval"
	"github.com/vllora/gateway/interceptor"
	"github.com/vllora/gateway/types"
)

type stubEvaluator struct {
	decision guardeval.Decision
	err      error
	lastIn   guardeval.Input
}

func (s *stubEvaluator) Evaluate(_ context.Context, in guardeval.Input) (guardeval.Decision, error) {
	s.lastIn = in
	return s.decision, s.err
}

func testCtx() *interceptor.RequestContext {
	req := &types.UnifiedRequest{Model: "virtual:default", Messages: []types.Message{
		{Role: types.RoleUser, Parts: []types.Part{types.TextPart{Text: "hi"}}},
	}}
	return interceptor.NewRequestContext(req, types.Credentials{})
}

func TestPreRequest_PassingDecisionPasses(t *testing.T) {
	ev := &stubEvaluator{decision: guardeval.Decision{Passed: true}}
	ic := New("guard:pii", ev)

	res, err := ic.PreRequest(context.Background(), testCtx())
	require.NoError(t, err)
	require.Equal(t, interceptor.Pass, res.Verdict)
	require.Equal(t, guardeval.StageInput, ev.lastIn.Stage)
}

func TestPreRequest_FailingValidateBlocks(t *testing.T) {
	ev := &stubEvaluator{decision: guardeval.Decision{Passed: false, Action: guardeval.ActionValidate, Reason: "pii detected"}}
	ic := New("guard:pii", ev)

	res, err := ic.PreRequest(context.Background(), testCtx())
	require.NoError(t, err)
	require.Equal(t, interceptor.Block, res.Verdict)
	require.Equal(t, "pii detected", res.Reason)
}

func TestPreRequest_FailingObserveOnlyRecords(t *testing.T) {
	ev := &stubEvaluator{decision: guardeval.Decision{Passed: false, Action: guardeval.ActionObserve}}
	ic := New("guard:pii", ev)

	res, err := ic.PreRequest(context.Background(), testCtx())
	require.NoError(t, err)
	require.Equal(t, interceptor.Observe, res.Verdict)
}

func TestPostRequest_EvaluatesOutputStage(t *testing.T) {
	ev := &stubEvaluator{decision: guardeval.Decision{Passed: true}}
	ic := New("guard:pii", ev)
	resp := &types.UnifiedResponse{Model: "gpt-4"}

	res, err := ic.PostRequest(context.Background(), testCtx(), resp)
	require.NoError(t, err)
	require.Equal(t, interceptor.Pass, res.Verdict)
	require.Equal(t, guardeval.StageOutput, ev.lastIn.Stage)
	require.Same(t, resp, ev.lastIn.Response)
}

func TestPostRequest_NilResponseSkipsEvaluation(t *testing.T) {
	ev := &stubEvaluator{decision: guardeval.Decision{Passed: false, Action: guardeval.ActionValidate}}
	ic := New("guard:pii", ev)

	res, err := ic.PostRequest(context.Background(), testCtx(), nil)
	require.NoError(t, err)
	require.Equal(t, interceptor.Pass, res.Verdict)
}
