package strategy

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
	"github.com/rebalance-service/rebalance_service/internal/domain/repositories"
	"github.com/rebalance-service/rebalance_service/internal/domain/services/eligibility"
	"github.com/rebalance-service/rebalance_service/internal/domain/services/vault"
)

// Position names the asset the owner's vault currently holds
type Position string

const (
	PositionNone  Position = "none"
	PositionSOL   Position = "SOL"
	PositionUSDC  Position = "USDC"
	PositionMixed Position = "mixed"
)

// Reasons an owner would be skipped by the next signal
const (
	BlockedDisabled   = "disabled"
	BlockedCooldown   = "cooldown"
	BlockedDailyLimit = "daily_limit"
)

// Status is the owner's standing against the next signal
type Status struct {
	Owner                    string          `json:"owner"`
	Enabled                  bool            `json:"enabled"`
	Position                 Position        `json:"current_position"`
	Balances                 *vault.Balances `json:"balances"`
	Eligible                 bool            `json:"eligible"`
	BlockedBy                string          `json:"blocked_by,omitempty"`
	LastExecution            *time.Time      `json:"last_execution,omitempty"`
	NextEligibleAt           *time.Time      `json:"next_eligible_at,omitempty"`
	CooldownRemainingSeconds int64           `json:"cooldown_remaining_seconds"`
	DailyExecutions          int             `json:"daily_executions"`
	DailyLimit               *int            `json:"daily_limit,omitempty"`
	TotalExecutions          int             `json:"total_executions"`
}

// Service reports strategy status per owner
type Service struct {
	vault        *vault.Service
	profiles     repositories.ProfileRepository
	transactions repositories.TransactionRepository
	validator    *eligibility.Validator
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates a new strategy status service
func NewService(
	vaultService *vault.Service,
	profiles repositories.ProfileRepository,
	transactions repositories.TransactionRepository,
	validator *eligibility.Validator,
	logger *zap.Logger,
) *Service {
	return &Service{
		vault:        vaultService,
		profiles:     profiles,
		transactions: transactions,
		validator:    validator,
		logger:       logger,
		now:          time.Now,
	}
}

// Status evaluates the owner the way the dispatcher would for a signal
// arriving now. Daily executions count every transaction since midnight UTC.
func (s *Service) Status(ctx context.Context, owner string) (*Status, error) {
	balances, err := s.vault.GetBalances(ctx, owner)
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		return nil, errors.NotFoundError("PROFILE")
	}

	now := s.now().UTC()
	daily, err := s.transactions.CountSince(ctx, owner, eligibility.StartOfDayUTC(now))
	if err != nil {
		return nil, fmt.Errorf("count daily executions: %w", err)
	}
	total, err := s.transactions.CountSince(ctx, owner, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("count executions: %w", err)
	}

	status := &Status{
		Owner:           owner,
		Enabled:         profile.Enabled,
		Position:        positionOf(balances),
		Balances:        balances,
		LastExecution:   profile.LastExecution,
		DailyExecutions: daily,
		DailyLimit:      profile.DailyLimit,
		TotalExecutions: total,
	}

	if end, ok := s.validator.CooldownEnd(profile); ok {
		status.NextEligibleAt = &end
		if end.After(now) {
			status.CooldownRemainingSeconds = int64(end.Sub(now).Round(time.Second) / time.Second)
		}
	}

	if !profile.Enabled {
		status.BlockedBy = BlockedDisabled
		return status, nil
	}

	eligible, err := s.validator.Validate(profile, daily, now)
	var cooldown *errors.CooldownActiveError
	var limit *errors.DailyLimitExceededError
	switch {
	case stderrors.As(err, &cooldown):
		status.BlockedBy = BlockedCooldown
	case stderrors.As(err, &limit):
		status.BlockedBy = BlockedDailyLimit
	case err != nil:
		return nil, err
	default:
		status.Eligible = eligible
	}

	s.logger.Debug("Strategy status evaluated",
		zap.String("owner", owner),
		zap.Bool("eligible", status.Eligible),
		zap.String("blocked_by", status.BlockedBy))
	return status, nil
}

func positionOf(b *vault.Balances) Position {
	switch {
	case b.SOLLamports > 0 && b.USDCBaseUnits > 0:
		return PositionMixed
	case b.SOLLamports > 0:
		return PositionSOL
	case b.USDCBaseUnits > 0:
		return PositionUSDC
	default:
		return PositionNone
	}
}
