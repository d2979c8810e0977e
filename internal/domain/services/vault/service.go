package vault

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

// Balances is the human-readable view of an owner's vault
type Balances struct {
	Owner           string                 `json:"owner"`
	SOL             decimal.Decimal        `json:"sol"`
	USDC            decimal.Decimal        `json:"usdc"`
	FeePool         decimal.Decimal        `json:"fee_pool"`
	SOLLamports     int64                  `json:"sol_lamports"`
	USDCBaseUnits   int64                  `json:"usdc_base_units"`
	FeePoolLamports int64                  `json:"fee_pool_lamports"`
	FeePoolStatus   entities.FeePoolStatus `json:"fee_pool_status"`
	MinFeePool      decimal.Decimal        `json:"min_fee_pool"`
	TargetFeePool   decimal.Decimal        `json:"target_fee_pool"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// Service manages custodial balances
type Service struct {
	profiles repositories.ProfileRepository
	vaults   repositories.VaultRepository
	logger   *zap.Logger
}

// NewService creates a new vault service
func NewService(profiles repositories.ProfileRepository, vaults repositories.VaultRepository, logger *zap.Logger) *Service {
	return &Service{profiles: profiles, vaults: vaults, logger: logger}
}

// GetBalances returns the owner's balances, opening an empty vault on first use
func (s *Service) GetBalances(ctx context.Context, owner string) (*Balances, error) {
	profile, vault, err := s.ensure(ctx, owner)
	if err != nil {
		return nil, err
	}
	return toBalances(profile, vault), nil
}

// Deposit credits amount, given in human units, to the asset's balance
func (s *Service) Deposit(ctx context.Context, owner string, asset entities.VaultAsset, amount decimal.Decimal) (*Balances, error) {
	units, err := toUnits(asset, amount)
	if err != nil {
		return nil, err
	}
	profile, _, err := s.ensure(ctx, owner)
	if err != nil {
		return nil, err
	}

	vault, err := s.vaults.Adjust(ctx, owner, asset, units)
	if err != nil {
		return nil, fmt.Errorf("deposit %s: %w", asset, err)
	}

	s.logger.Info("Vault deposit",
		zap.String("owner", owner),
		zap.String("asset", string(asset)),
		zap.Int64("units", units))
	return toBalances(profile, vault), nil
}

// Withdraw debits amount, given in human units, from the asset's balance
func (s *Service) Withdraw(ctx context.Context, owner string, asset entities.VaultAsset, amount decimal.Decimal) (*Balances, error) {
	units, err := toUnits(asset, amount)
	if err != nil {
		return nil, err
	}
	profile, _, err := s.ensure(ctx, owner)
	if err != nil {
		return nil, err
	}

	vault, err := s.vaults.Adjust(ctx, owner, asset, -units)
	if err != nil {
		return nil, fmt.Errorf("withdraw %s: %w", asset, err)
	}

	s.logger.Info("Vault withdrawal",
		zap.String("owner", owner),
		zap.String("asset", string(asset)),
		zap.Int64("units", units))
	return toBalances(profile, vault), nil
}

// ensure loads the owner's profile and vault, creating defaults when absent
func (s *Service) ensure(ctx context.Context, owner string) (*entities.UserProfile, *entities.VaultBalance, error) {
	profile, err := s.profiles.GetByOwner(ctx, owner)
	if err != nil {
		return nil, nil, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		profile = entities.NewUserProfile(owner, time.Now().UTC())
		if err := s.profiles.Create(ctx, profile); err != nil && !errors.IsAlreadyExists(err) {
			return nil, nil, fmt.Errorf("create profile: %w", err)
		}
	}

	vault, err := s.vaults.GetByOwner(ctx, owner)
	if err != nil {
		return nil, nil, fmt.Errorf("load vault: %w", err)
	}
	if vault == nil {
		if vault, err = s.vaults.Create(ctx, owner); err != nil {
			return nil, nil, fmt.Errorf("create vault: %w", err)
		}
	}
	return profile, vault, nil
}

func toUnits(asset entities.VaultAsset, amount decimal.Decimal) (int64, error) {
	if !asset.Valid() {
		return 0, errors.ValidationError("asset", fmt.Sprintf("unknown asset %q", asset))
	}
	if !amount.IsPositive() {
		return 0, errors.ValidationError("amount", "amount must be positive")
	}

	convert := entities.SOLToLamports
	if asset == entities.VaultAssetUSDC {
		convert = entities.HumanToUSDC
	}
	units, err := convert(amount)
	if err != nil {
		return 0, errors.ValidationError("amount", "amount exceeds the largest representable balance")
	}
	if units <= 0 {
		return 0, errors.ValidationError("amount", "amount is below the smallest unit")
	}
	return units, nil
}

func toBalances(profile *entities.UserProfile, vault *entities.VaultBalance) *Balances {
	return &Balances{
		Owner:           vault.Owner,
		SOL:             entities.LamportsToSOL(vault.SOLBalance),
		USDC:            entities.USDCToHuman(vault.USDCBalance),
		FeePool:         entities.LamportsToSOL(vault.FeePoolBalance),
		SOLLamports:     vault.SOLBalance,
		USDCBaseUnits:   vault.USDCBalance,
		FeePoolLamports: vault.FeePoolBalance,
		FeePoolStatus:   entities.ClassifyFeePool(vault.FeePoolBalance, profile.MinFeePool, profile.TargetFeePool),
		MinFeePool:      entities.LamportsToSOL(profile.MinFeePool),
		TargetFeePool:   entities.LamportsToSOL(profile.TargetFeePool),
		UpdatedAt:       vault.UpdatedAt,
	}
}
