package transport

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextBackoffNeverExceedsCap(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for attempt := 0; attempt <= maxBackoffAttempt+2; attempt++ {
		d := nextBackoff(clampAttempt(attempt), rnd)
		require.LessOrEqual(t, d, backoffCap)
		require.GreaterOrEqual(t, d, time.Duration(0))
	}
}

func TestNextBackoffGrowsWithAttempt(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	// Ceiling grows monotonically until it saturates at the cap; sample
	// many draws per attempt so the max observed delay tracks the ceiling.
	var prevMax time.Duration
	for attempt := 0; attempt < maxBackoffAttempt; attempt++ {
		var max time.Duration
		for i := 0; i < 200; i++ {
			d := nextBackoff(attempt, rnd)
			if d > max {
				max = d
			}
		}
		require.GreaterOrEqual(t, max, prevMax)
		prevMax = max
	}
}

func TestClampAttemptBoundsAtMax(t *testing.T) {
	require.Equal(t, maxBackoffAttempt, clampAttempt(maxBackoffAttempt+50))
	require.Equal(t, 0, clampAttempt(0))
}
