package errors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Rebalancing errors
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDataIntegrity       = errors.New("data integrity violation")
	ErrNonceConflict       = errors.New("profile nonce changed during execution")
	ErrOwnerBusy           = errors.New("another execution holds the owner lock")
	ErrInvalidSignalType   = errors.New("invalid signal type")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidAddress      = errors.New("invalid wallet address")
	ErrAmountOutOfRange    = errors.New("amount out of range")
)

// CooldownActiveError means the owner executed too recently
type CooldownActiveError struct {
	Owner     string
	Remaining time.Duration
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("cooldown active for %s: %s remaining", e.Owner, e.Remaining.Round(time.Second))
}

// DailyLimitExceededError means the owner reached the per-day execution cap
type DailyLimitExceededError struct {
	Owner string
	Count int
	Limit int
}

func (e *DailyLimitExceededError) Error() string {
	return fmt.Sprintf("daily limit reached for %s: %d/%d", e.Owner, e.Count, e.Limit)
}

// SlippageExceededError means a quote's implied slippage is above the allowed bound
type SlippageExceededError struct {
	ActualBps int64
	MaxBps    int
}

func (e *SlippageExceededError) Error() string {
	return fmt.Sprintf("route slippage %d bps exceeds max %d bps", e.ActualBps, e.MaxBps)
}

// UpstreamError is a failed or malformed call to the swap aggregator
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("aggregator %s failed: status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("aggregator %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("aggregator %s failed", e.Op)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsEligibilitySkip reports whether err is an expected eligibility rejection
func IsEligibilitySkip(err error) bool {
	var cooldown *CooldownActiveError
	var limit *DailyLimitExceededError
	return errors.As(err, &cooldown) || errors.As(err, &limit)
}

// IsSlippageExceeded reports whether err carries a slippage rejection
func IsSlippageExceeded(err error) bool {
	var slippage *SlippageExceededError
	return errors.As(err, &slippage)
}

// ShouldRetry classifies errors for retry policies. Slippage rejections,
// validation failures and cancelled contexts are terminal; everything else
// is treated as transient.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if IsSlippageExceeded(err) || IsInvalidInput(err) || errors.Is(err, ErrDataIntegrity) {
		return false
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Retryable
	}
	return true
}
