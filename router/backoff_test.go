package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffFor_GrowsExponentiallyWithinJitterBounds(t *testing.T) {
	noJitter := func() float64 { return 0.5 } // midpoint: zero jitter contribution

	require.Equal(t, 250*time.Millisecond, backoffFor(0, noJitter))
	require.Equal(t, 500*time.Millisecond, backoffFor(1, noJitter))
	require.Equal(t, time.Second, backoffFor(2, noJitter))
}

func TestBackoffFor_CapsAtEightSeconds(t *testing.T) {
	noJitter := func() float64 { return 0.5 }
	d := backoffFor(10, noJitter)
	require.Equal(t, 8*time.Second, d)
}

func TestBackoffFor_JitterStaysWithinTwentyPercent(t *testing.T) {
	for _, r := range []float64{0, 1} {
		d := backoffFor(1, func() float64 { return r })
		require.InDelta(t, 500*time.Millisecond, d, float64(100*time.Millisecond))
	}
}
