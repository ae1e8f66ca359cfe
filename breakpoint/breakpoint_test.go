package breakpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/types"
)

func testRequest() *types.UnifiedRequest {
	return &types.UnifiedRequest{Model: "virtual:default", Messages: []types.Message{
		{Role: types.RoleUser, Parts: []types.Part{types.TextPart{Text: "hi"}}},
	}}
}

func TestManager_RegisterAndResolve(t *testing.T) {
	m := New()
	id, waiter := m.Register(testRequest(), "thread-1")
	require.NotEmpty(t, id)

	require.Len(t, m.List(), 1)

	done := make(chan Action, 1)
	go func() { done <- <-waiter }()

	require.NoError(t, m.Resolve(id, Action{Kind: ActionContinue}))

	select {
	case a := <-done:
		require.Equal(t, ActionContinue, a.Kind)
	case <-time.After(time.Second):
		t.Fatal("waiter never received resume action")
	}
	require.Empty(t, m.List())
}

func TestManager_ResolveUnknownID(t *testing.T) {
	m := New()
	err := m.Resolve("no-such-id", Action{Kind: ActionContinue})
	require.Error(t, err)
}

func TestManager_ResolveAllReleasesEveryWaiter(t *testing.T) {
	m := New()
	_, w1 := m.Register(testRequest(), "t1")
	_, w2 := m.Register(testRequest(), "t2")

	m.ResolveAll(Action{Kind: ActionAbort})

	a1 := <-w1
	a2 := <-w2
	require.Equal(t, ActionAbort, a1.Kind)
	require.Equal(t, ActionAbort, a2.Kind)
	require.Empty(t, m.List())
}

func TestManager_SetInterceptAllInvokesCallback(t *testing.T) {
	m := New()
	var got []bool
	m.OnInterceptAllChange(func(enabled bool) { got = append(got, enabled) })

	m.SetInterceptAll(true)
	m.SetInterceptAll(true) // no change, should not invoke again
	m.SetInterceptAll(false)

	require.Equal(t, []bool{true, false}, got)
	require.False(t, m.InterceptAll())
}

func TestManager_DoubleResolveIsHarmless(t *testing.T) {
	m := New()
	id, waiter := m.Register(testRequest(), "t1")
	require.NoError(t, m.Resolve(id, Action{Kind: ActionContinue}))
	require.Error(t, m.Resolve(id, Action{Kind: ActionAbort}), "second resolve of the same id must report not found")

	a := <-waiter
	require.Equal(t, ActionContinue, a.Kind)

	_, stillOpen := <-waiter
	require.False(t, stillOpen, "resolved channel should be closed after delivery")
}
