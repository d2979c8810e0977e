package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"upstream", &UpstreamError{Op: "quote", StatusCode: 502}, true},
		{"wrapped upstream", fmt.Errorf("get quote: %w", &UpstreamError{Op: "quote", Err: context.DeadlineExceeded}), true},
		{"slippage", &SlippageExceededError{ActualBps: 1000, MaxBps: 50}, false},
		{"validation", ValidationError("amount", "amount must be positive"), false},
		{"bad address", fmt.Errorf("%w: too short", ErrInvalidAddress), false},
		{"data integrity", fmt.Errorf("vault missing: %w", ErrDataIntegrity), false},
		{"cancelled", context.Canceled, false},
		{"not found", NotFoundError("VAULT"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRetry(tt.err))
		})
	}
}

func TestEligibilitySkip(t *testing.T) {
	assert.True(t, IsEligibilitySkip(&CooldownActiveError{Owner: "a", Remaining: time.Minute}))
	assert.True(t, IsEligibilitySkip(fmt.Errorf("validate: %w", &DailyLimitExceededError{Owner: "a", Count: 10, Limit: 10})))
	assert.False(t, IsEligibilitySkip(ErrInsufficientBalance))
}

func TestDomainError(t *testing.T) {
	err := fmt.Errorf("load: %w", NotFoundError("PROFILE"))

	assert.True(t, IsNotFound(err))
	assert.False(t, IsAlreadyExists(err))
	assert.Equal(t, "load: PROFILE not found", err.Error())

	details := GetErrorDetails(ValidationError("max_slippage_bps", "out of range"))
	assert.Equal(t, "max_slippage_bps", details["field"])
	assert.Nil(t, GetErrorDetails(ErrNotFound))
}
