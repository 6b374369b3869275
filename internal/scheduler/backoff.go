package scheduler

import (
	"math/rand"
	"time"
)

// retryDelay is the wait before in-job retry number `retry` (1-based):
// base doubled per retry, capped at maxD, with ±jitter applied.
func retryDelay(base, maxD time.Duration, jitter float64, retry int, rng *rand.Rand) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if maxD <= 0 {
		maxD = 5 * time.Second
	}
	d := base
	for i := 1; i < retry; i++ {
		d *= 2
		if d > maxD {
			d = maxD
			break
		}
	}
	if jitter > 0 && rng != nil {
		r := (rng.Float64()*2 - 1) * jitter
		d = time.Duration(float64(d) * (1 + r))
		if d < 0 {
			d = 0
		}
	}
	if d > maxD {
		d = maxD
	}
	return d
}

// failureBackoff is how far a rule is pushed back after its n-th consecutive
// failed dispatch: base * 2^(n-1).
func failureBackoff(base time.Duration, n int) time.Duration {
	if base <= 0 {
		base = time.Minute
	}
	if n < 1 {
		n = 1
	}
	d := base
	for i := 1; i < n; i++ {
		d *= 2
	}
	return d
}
