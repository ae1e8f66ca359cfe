package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/interceptor"
	"github.com/vllora/gateway/metrics"
)

func TestResolvePrimary_QualifiedNamePassesThrough(t *testing.T) {
	resolver := &fakeResolver{}
	e := New(resolver, interceptor.New(), nil, nil)

	name, _, span, err := e.resolvePrimary(context.Background(), "openai/gpt-4o-mini")
	span.End()
	require.NoError(t, err)
	require.Equal(t, "openai/gpt-4o-mini", name)
}

func TestResolvePrimary_VirtualWithNoMetricsFallsBackToFirstCandidate(t *testing.T) {
	resolver := &fakeResolver{candidates: []metrics.Candidate{
		{Provider: "openai_compatible", Model: "gpt-4o-mini"},
		{Provider: "anthropic", Model: "claude-haiku"},
	}}
	e := New(resolver, interceptor.New(), nil, nil)

	name, _, span, err := e.resolvePrimary(context.Background(), "virtual:fast")
	span.End()
	require.NoError(t, err)
	require.Equal(t, "openai_compatible/gpt-4o-mini", name)
}

func TestResolvePrimary_VirtualUsesMetricsBestCandidate(t *testing.T) {
	resolver := &fakeResolver{candidates: []metrics.Candidate{
		{Provider: "openai_compatible", Model: "gpt-4o-mini"},
		{Provider: "anthropic", Model: "claude-haiku"},
	}}
	repo := metrics.NewRepository(metrics.NewMemStore(), time.Minute, time.Hour)
	defer repo.Close()
	repo.Record(metrics.Candidate{Provider: "openai_compatible", Model: "gpt-4o-mini"}, 10*time.Millisecond, true, 1)
	repo.Record(metrics.Candidate{Provider: "anthropic", Model: "claude-haiku"}, 50*time.Millisecond, false, 5)
	repo.Recompute()

	e := New(resolver, interceptor.New(), nil, repo)

	name, _, span, err := e.resolvePrimary(context.Background(), "virtual:fast")
	span.End()
	require.NoError(t, err)
	require.Equal(t, "anthropic/claude-haiku", name, "the candidate with the lower error rate must win despite higher cost")
}

func TestResolvePrimary_VirtualWithNoCandidatesIsBadRequest(t *testing.T) {
	resolver := &fakeResolver{}
	e := New(resolver, interceptor.New(), nil, nil)

	_, _, span, err := e.resolvePrimary(context.Background(), "virtual:unknown")
	span.End()
	require.Error(t, err)
}
