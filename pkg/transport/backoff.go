package transport

import (
	"math/rand"
	"time"
)

// Backoff bounds per spec.md §4.4.
const (
	backoffBase = time.Second
	backoffCap  = 60 * time.Second
)

// nextBackoff computes a full-jitter exponential backoff delay for the
// given (zero-based) attempt count: uniform(0, min(cap, base*2^attempt)).
func nextBackoff(attempt int, rnd *rand.Rand) time.Duration {
	ceiling := backoffBase << attempt // overflow-safe: attempt is clamped by caller
	if ceiling <= 0 || ceiling > backoffCap {
		ceiling = backoffCap
	}
	return time.Duration(rnd.Int63n(int64(ceiling) + 1))
}

// maxBackoffAttempt is the attempt count at which base*2^attempt has
// already reached backoffCap; clamping attempt here keeps the `<<` shift
// from overflowing on long outages.
const maxBackoffAttempt = 6 // base=1s, 1<<6 = 64s > cap(60s)

func clampAttempt(attempt int) int {
	if attempt > maxBackoffAttempt {
		return maxBackoffAttempt
	}
	return attempt
}
