package eligibility

import (
	"time"

	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
)

// Validator decides whether an owner may receive an execution for a signal
type Validator struct {
	cooldown time.Duration
	logger   *zap.Logger
}

// NewValidator creates a validator with the given minimum gap between executions
func NewValidator(cooldown time.Duration, logger *zap.Logger) *Validator {
	return &Validator{cooldown: cooldown, logger: logger}
}

// CooldownEnd returns when the owner's cooldown ends, and false for an owner
// that has never executed
func (v *Validator) CooldownEnd(profile *entities.UserProfile) (time.Time, bool) {
	if profile.LastExecution == nil {
		return time.Time{}, false
	}
	return profile.LastExecution.Add(v.cooldown), true
}

// Validate checks, in order, enablement, cooldown and the daily cap.
// A disabled profile yields (false, nil). Cooldown and daily cap rejections are
// returned as *CooldownActiveError and *DailyLimitExceededError. An owner whose
// cooldown ends exactly at now is eligible.
func (v *Validator) Validate(profile *entities.UserProfile, dailyExecutions int, now time.Time) (bool, error) {
	if !profile.Enabled {
		v.logger.Info("User is disabled, skipping", zap.String("owner", profile.Owner))
		return false, nil
	}

	if cooldownEnd, ok := v.CooldownEnd(profile); ok && cooldownEnd.After(now) {
		return false, &errors.CooldownActiveError{
			Owner:     profile.Owner,
			Remaining: cooldownEnd.Sub(now),
		}
	}

	if profile.DailyLimit != nil && dailyExecutions >= *profile.DailyLimit {
		return false, &errors.DailyLimitExceededError{
			Owner: profile.Owner,
			Count: dailyExecutions,
			Limit: *profile.DailyLimit,
		}
	}

	return true, nil
}

// StartOfDayUTC returns midnight UTC of the day containing t
func StartOfDayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
