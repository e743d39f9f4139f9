package dispatch

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffPolicy computes retry delays.
type BackoffPolicy struct {
	Base   time.Duration // Delay before the first retry
	Max    time.Duration // Cap on the exponential term
	Jitter time.Duration // Random extra delay in [0, Jitter)
}

// DefaultBackoff returns the policy used when none is configured.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Base:   time.Second,
		Max:    30 * time.Second,
		Jitter: time.Second,
	}
}

// Delay returns min(Base * 2^attempt, Max) plus a random jitter in [0, Jitter).
// attempt is the number of retries already made for the operation.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	d := p.Base
	// Double step by step so large attempts clamp instead of overflowing.
	for i := 0; i < attempt; i++ {
		if d <= 0 || (p.Max > 0 && d >= p.Max) || d > math.MaxInt64/2 {
			break
		}
		d *= 2
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}

	if p.Jitter > 0 {
		d += time.Duration(rand.Int64N(int64(p.Jitter)))
	}
	return d
}
