package queue

import "time"

// BackoffPolicy computes the delay before a failed task becomes eligible for
// requeue. attempts is the number of dispatch attempts already consumed
// (at least 1 when a failure is recorded). Policies must be deterministic.
type BackoffPolicy interface {
	NextDelay(attempts int) time.Duration
}

// ExponentialBackoff doubles the base delay per consumed attempt:
// base * 2^(attempts-1), capped at Max.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponentialBackoff returns the default policy: 30s base, 30m cap.
func NewExponentialBackoff() ExponentialBackoff {
	return ExponentialBackoff{Base: 30 * time.Second, Max: 30 * time.Minute}
}

// NextDelay implements BackoffPolicy.
func (b ExponentialBackoff) NextDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := b.Base
	for i := 1; i < attempts; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// FixedBackoff applies the same delay regardless of attempts.
type FixedBackoff struct {
	Delay time.Duration
}

// NextDelay implements BackoffPolicy.
func (b FixedBackoff) NextDelay(int) time.Duration { return b.Delay }
