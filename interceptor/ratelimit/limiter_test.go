package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_AllowsUpToBurstThenBlocks(t *testing.T) {
	l := NewLimiter(map[TargetKind]BucketConfig{
		TargetModel: {Window: time.Minute, Limit: 2},
	})
	target := Target{Kind: TargetModel, ID: "gpt-4"}

	ok1, _ := l.Allow(target)
	ok2, _ := l.Allow(target)
	ok3, retryAfter := l.Allow(target)

	require.True(t, ok1)
	require.True(t, ok2)
	require.False(t, ok3)
	require.Greater(t, retryAfter, time.Duration(0))
}

func TestLimiter_UnconfiguredTargetKindIsUnlimited(t *testing.T) {
	l := NewLimiter(map[TargetKind]BucketConfig{
		TargetModel: {Window: time.Minute, Limit: 1},
	})
	for i := 0; i < 10; i++ {
		ok, _ := l.Allow(Target{Kind: TargetProject, ID: "proj-1"})
		require.True(t, ok)
	}
}

func TestLimiter_DistinctTargetIDsHaveIndependentBuckets(t *testing.T) {
	l := NewLimiter(map[TargetKind]BucketConfig{
		TargetModel: {Window: time.Minute, Limit: 1},
	})
	okA, _ := l.Allow(Target{Kind: TargetModel, ID: "model-a"})
	okB, _ := l.Allow(Target{Kind: TargetModel, ID: "model-b"})
	require.True(t, okA)
	require.True(t, okB, "model-b's bucket must not be exhausted by model-a's draw")
}
