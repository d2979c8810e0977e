package retry

import (
	"errors"
	"time"
)

// Policy describes how many times and how far apart an operation is retried
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	// An operation is called at most MaxRetries+1 times.
	MaxRetries int
	// BaseDelay is the wait after the first failed attempt; it doubles for each further failure.
	BaseDelay time.Duration
	// MaxDelay caps a single wait. Zero means uncapped.
	MaxDelay time.Duration
	// RetryableFunc decides whether an error is worth another attempt.
	// When nil every error except context cancellation is retried.
	RetryableFunc func(error) bool
}

// DefaultPolicy returns three retries starting at one second
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
	}
}

// Validate checks the policy for impossible values
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("max retries must not be negative")
	}
	if p.BaseDelay < 0 {
		return errors.New("base delay must not be negative")
	}
	if p.MaxDelay < 0 {
		return errors.New("max delay must not be negative")
	}
	return nil
}
