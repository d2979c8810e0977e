package retry

import "time"

// Backoff computes exponential waits for a policy
type Backoff struct {
	base time.Duration
	max  time.Duration
}

// NewBackoff creates a backoff calculator from the policy delays
func NewBackoff(policy Policy) *Backoff {
	return &Backoff{base: policy.BaseDelay, max: policy.MaxDelay}
}

// Calculate returns base * 2^attempt, where attempt is the zero-based index
// of the attempt that just failed.
func (b *Backoff) Calculate(attempt int) time.Duration {
	d := b.base
	for i := 0; i < attempt; i++ {
		if b.max > 0 && d >= b.max {
			return b.max
		}
		if d > time.Duration(1<<62)/2 {
			return time.Duration(1 << 62)
		}
		d *= 2
	}
	if b.max > 0 && d > b.max {
		return b.max
	}
	return d
}
