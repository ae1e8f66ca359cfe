package router

import (
	"math"
	"math/rand"
	"time"
)

const (
	backoffBase = 250 * time.Millisecond
	backoffCap  = 8 * time.Second
	jitterFrac  = 0.20
)

func defaultRand() float64 { return rand.Float64() } //nolint:gosec // jitter, not crypto

// backoffFor computes the spec §4.4 retry delay for the k-th retry (k=0 for
// the first retry after the initial attempt): 250ms * 2^k, capped at 8s,
// plus up to ±20% jitter — the same exponential-backoff-plus-jitter shape
// as the teacher's runtime/a2a/retry.calculateBackoff, with the teacher's
// configurable base/multiplier/cap pinned to the spec's fixed constants.
func backoffFor(k int, randFn func() float64) time.Duration {
	d := float64(backoffBase) * math.Pow(2, float64(k))
	if d > float64(backoffCap) {
		d = float64(backoffCap)
	}
	jitter := d * jitterFrac * (randFn()*2 - 1)
	d += jitter
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
