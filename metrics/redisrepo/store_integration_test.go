package redisrepo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/vllora/gateway/metrics"
)

var (
	testClient      *redis.Client
	skipIntegration bool
)

// TestMain mirrors telemetry/writer/mongowriter's container-once-for-all-
// tests shape, generalized from a mongo:7 container to a redis:7 one.
func TestMain(m *testing.M) {
	ctx := context.Background()

	code := func() int {
		container, err := tcredis.Run(ctx, "redis:7")
		if err != nil {
			fmt.Printf("Docker not available, integration tests will be skipped: %v\n", err)
			skipIntegration = true
			return m.Run()
		}
		defer func() { _ = container.Terminate(ctx) }()

		connStr, err := container.ConnectionString(ctx)
		if err != nil {
			fmt.Printf("failed to get connection string: %v\n", err)
			skipIntegration = true
			return m.Run()
		}

		opts, err := redis.ParseURL(connStr)
		if err != nil {
			fmt.Printf("failed to parse connection string: %v\n", err)
			skipIntegration = true
			return m.Run()
		}
		client := redis.NewClient(opts)
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx).Err(); err != nil {
			fmt.Printf("failed to ping redis: %v\n", err)
			skipIntegration = true
			return m.Run()
		}
		testClient = client

		return m.Run()
	}()

	os.Exit(code)
}

func requireRedis(t *testing.T) *redis.Client {
	t.Helper()
	if skipIntegration {
		t.Skip("Docker not available, skipping integration test")
	}
	return testClient
}

func TestStore_WindowTrimsAndReturnsSurvivors(t *testing.T) {
	client := requireRedis(t)
	ctx := context.Background()

	s := New(Options{Client: client, Prefix: fmt.Sprintf("gateway_test_%d:", time.Now().UnixNano())})
	c := metrics.Candidate{Provider: "openai_compatible", Model: "gpt-4o-mini"}

	old := time.Now().Add(-time.Hour)
	require.NoError(t, s.Append(ctx, c, metrics.Observation{At: old, Latency: 10 * time.Millisecond, CostPer1K: 1}))

	recent := time.Now()
	require.NoError(t, s.Append(ctx, c, metrics.Observation{At: recent, Latency: 20 * time.Millisecond, Failed: true, CostPer1K: 2}))

	obs, err := s.Window(ctx, c, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, obs, 1)
	require.True(t, obs[0].Failed)
	require.InDelta(t, 2, obs[0].CostPer1K, 0.001)

	// a second Window call with the same cutoff must not see the trimmed entry reappear.
	obs, err = s.Window(ctx, c, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, obs, 1)
}

func TestStore_KeysListsEveryObservedCandidate(t *testing.T) {
	client := requireRedis(t)
	ctx := context.Background()

	s := New(Options{Client: client, Prefix: fmt.Sprintf("gateway_test_%d:", time.Now().UnixNano())})
	a := metrics.Candidate{Provider: "openai_compatible", Model: "gpt-4o-mini"}
	b := metrics.Candidate{Provider: "anthropic", Model: "claude-haiku"}

	require.NoError(t, s.Append(ctx, a, metrics.Observation{At: time.Now(), Latency: time.Millisecond}))
	require.NoError(t, s.Append(ctx, b, metrics.Observation{At: time.Now(), Latency: time.Millisecond}))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []metrics.Candidate{a, b}, keys)
}

func TestStore_WindowOnUnknownCandidateIsEmpty(t *testing.T) {
	client := requireRedis(t)
	ctx := context.Background()

	s := New(Options{Client: client, Prefix: fmt.Sprintf("gateway_test_%d:", time.Now().UnixNano())})
	obs, err := s.Window(ctx, metrics.Candidate{Provider: "nobody", Model: "nothing"}, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Empty(t, obs)
}
