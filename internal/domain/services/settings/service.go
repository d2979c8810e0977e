package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
	"github.com/rebalance-service/rebalance_service/internal/domain/repositories"
)

// Slippage bounds accepted from owners
const (
	MinSlippageBps = 1
	MaxSlippageBps = 1000
)

// Update is a partial settings change. Nil fields are left as they are.
// Trade sizes and fee pool thresholds are human amounts.
type Update struct {
	Enabled         *bool            `json:"enabled,omitempty"`
	TradeSizeSOL    *decimal.Decimal `json:"trade_size_sol,omitempty"`
	TradeSizeUSDC   *decimal.Decimal `json:"trade_size_usdc,omitempty"`
	MinFeePool      *decimal.Decimal `json:"min_fee_pool,omitempty"`
	TargetFeePool   *decimal.Decimal `json:"target_fee_pool,omitempty"`
	MaxSlippageBps  *int             `json:"max_slippage_bps,omitempty"`
	DailyLimit      *int             `json:"daily_limit,omitempty"`
	KeeperAllowlist *[]string        `json:"keeper_allowlist,omitempty"`
}

// Service manages per-owner execution settings
type Service struct {
	profiles repositories.ProfileRepository
	logger   *zap.Logger
}

// NewService creates a new settings service
func NewService(profiles repositories.ProfileRepository, logger *zap.Logger) *Service {
	return &Service{profiles: profiles, logger: logger}
}

// Get returns the owner's profile, creating it with defaults on first access
func (s *Service) Get(ctx context.Context, owner string) (*entities.UserProfile, error) {
	profile, err := s.profiles.GetByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile != nil {
		return profile, nil
	}

	profile = entities.NewUserProfile(owner, time.Now().UTC())
	if err := s.profiles.Create(ctx, profile); err != nil {
		if !errors.IsAlreadyExists(err) {
			return nil, fmt.Errorf("create profile: %w", err)
		}
		// created concurrently
		return s.profiles.GetByOwner(ctx, owner)
	}

	s.logger.Info("Profile created with defaults", zap.String("owner", owner))
	return profile, nil
}

// Update applies a partial change after validating the resulting settings
func (s *Service) Update(ctx context.Context, owner string, update Update) (*entities.UserProfile, error) {
	profile, err := s.Get(ctx, owner)
	if err != nil {
		return nil, err
	}

	if err := apply(profile, update); err != nil {
		return nil, err
	}
	if err := validate(profile); err != nil {
		return nil, err
	}

	profile.UpdatedAt = time.Now().UTC()
	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	s.logger.Info("Profile settings updated", zap.String("owner", owner))
	return profile, nil
}

// Reset restores default settings. Execution history is kept.
func (s *Service) Reset(ctx context.Context, owner string) (*entities.UserProfile, error) {
	current, err := s.Get(ctx, owner)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	profile := entities.NewUserProfile(owner, current.CreatedAt)
	profile.LastExecution = current.LastExecution
	profile.Nonce = current.Nonce
	profile.UpdatedAt = now

	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("reset profile: %w", err)
	}

	s.logger.Info("Profile settings reset", zap.String("owner", owner))
	return profile, nil
}

func apply(profile *entities.UserProfile, u Update) error {
	if u.Enabled != nil {
		profile.Enabled = *u.Enabled
	}
	if u.TradeSizeSOL != nil {
		units, err := entities.SOLToLamports(*u.TradeSizeSOL)
		if err != nil {
			return outOfRange("trade_size_sol")
		}
		profile.TradeSizeSOL = units
	}
	if u.TradeSizeUSDC != nil {
		units, err := entities.HumanToUSDC(*u.TradeSizeUSDC)
		if err != nil {
			return outOfRange("trade_size_usdc")
		}
		profile.TradeSizeUSDC = units
	}
	if u.MinFeePool != nil {
		units, err := entities.SOLToLamports(*u.MinFeePool)
		if err != nil {
			return outOfRange("min_fee_pool")
		}
		profile.MinFeePool = units
	}
	if u.TargetFeePool != nil {
		units, err := entities.SOLToLamports(*u.TargetFeePool)
		if err != nil {
			return outOfRange("target_fee_pool")
		}
		profile.TargetFeePool = units
	}
	if u.MaxSlippageBps != nil {
		profile.MaxSlippageBps = *u.MaxSlippageBps
	}
	if u.DailyLimit != nil {
		limit := *u.DailyLimit
		profile.DailyLimit = &limit
	}
	if u.KeeperAllowlist != nil {
		for _, keeper := range *u.KeeperAllowlist {
			if err := entities.ValidateAddress(keeper); err != nil {
				return errors.ValidationError("keeper_allowlist", fmt.Sprintf("invalid keeper address %q: %v", keeper, err))
			}
		}
		profile.KeeperAllowlist = append([]string(nil), (*u.KeeperAllowlist)...)
	}
	return nil
}

func outOfRange(field string) error {
	return errors.ValidationError(field, "amount exceeds the largest representable value")
}

func validate(p *entities.UserProfile) error {
	switch {
	case p.TradeSizeSOL <= 0:
		return errors.ValidationError("trade_size_sol", "trade size must be positive")
	case p.TradeSizeUSDC <= 0:
		return errors.ValidationError("trade_size_usdc", "trade size must be positive")
	case p.MinFeePool < 0:
		return errors.ValidationError("min_fee_pool", "fee pool threshold cannot be negative")
	case p.TargetFeePool < p.MinFeePool:
		return errors.ValidationError("target_fee_pool", "target fee pool must be at least the minimum")
	case p.MaxSlippageBps < MinSlippageBps || p.MaxSlippageBps > MaxSlippageBps:
		return errors.ValidationError("max_slippage_bps", fmt.Sprintf("slippage must be between %d and %d bps", MinSlippageBps, MaxSlippageBps))
	case p.DailyLimit != nil && *p.DailyLimit < 1:
		return errors.ValidationError("daily_limit", "daily limit must be at least 1")
	}
	return nil
}
