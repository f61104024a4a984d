package triage

import "time"

// RetryPolicy bounds job attempts and spaces them out. It is a plain value
// decoupled from the queue transport so the schedule can be tested on its
// own.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy mirrors the production queue settings: three attempts,
// exponential backoff starting at two seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second}
}

// ShouldRetry reports whether another attempt remains after the given
// zero-based attempt has failed.
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt+1 < p.MaxAttempts
}

// Delay returns the backoff before re-running the given zero-based attempt's
// successor: base, 2x base, 4x base, and so on.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}
