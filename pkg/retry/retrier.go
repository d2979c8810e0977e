package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Retrier runs operations under a retry policy. After the last attempt the
// operation's own error is returned unchanged.
type Retrier struct {
	policy  Policy
	backoff *Backoff
	logger  *zap.Logger
	name    string
}

// NewRetrier creates a new retrier
func NewRetrier(policy Policy, logger *zap.Logger) *Retrier {
	if err := policy.Validate(); err != nil {
		panic(fmt.Sprintf("invalid retry policy: %v", err))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Retrier{
		policy:  policy,
		backoff: NewBackoff(policy),
		logger:  logger,
	}
}

// Named returns a copy of the retrier that tags its log lines with the operation name
func (r *Retrier) Named(name string) *Retrier {
	cp := *r
	cp.name = name
	return &cp
}

// Policy returns the retrier's policy
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do executes operation with retry logic
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return lastErr
			}
			return ctx.Err()
		default:
		}

		lastErr = operation(ctx)
		if lastErr == nil {
			if attempt > 0 {
				r.logger.Info("Operation succeeded after retries",
					zap.String("operation", r.name),
					zap.Int("attempt", attempt),
					zap.Int("max_retries", r.policy.MaxRetries))
			}
			return nil
		}

		if !r.isRetryable(lastErr) {
			r.logger.Debug("Error is not retryable",
				zap.String("operation", r.name),
				zap.Error(lastErr),
				zap.Int("attempt", attempt))
			return lastErr
		}

		if attempt >= r.policy.MaxRetries {
			break
		}

		delay := r.backoff.Calculate(attempt)
		r.logger.Warn("Retrying operation",
			zap.String("operation", r.name),
			zap.Error(lastErr),
			zap.Int("retry", attempt+1),
			zap.Int("max_retries", r.policy.MaxRetries),
			zap.Duration("backoff", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	r.logger.Error("All retries exhausted",
		zap.String("operation", r.name),
		zap.Error(lastErr),
		zap.Int("max_retries", r.policy.MaxRetries))
	return lastErr
}

func (r *Retrier) isRetryable(err error) bool {
	if r.policy.RetryableFunc != nil {
		return r.policy.RetryableFunc(err)
	}
	return !errors.Is(err, context.Canceled)
}

// DoWithResult executes operation with retry logic and returns its value
func DoWithResult[T any](ctx context.Context, r *Retrier, operation func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = operation(ctx)
		return opErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Do is a package-level helper for one-off retries
func Do(ctx context.Context, policy Policy, logger *zap.Logger, operation func(ctx context.Context) error) error {
	return NewRetrier(policy, logger).Do(ctx, operation)
}
