package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
)

const profileColumns = `
	owner, enabled, trade_size_sol, trade_size_usdc, min_fee_pool, target_fee_pool,
	max_slippage_bps, protocol_fee_bps, relayer_refund_lamports, keeper_allowlist,
	daily_limit, last_execution, nonce, created_at, updated_at`

// ProfileRepository handles user profile persistence
type ProfileRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *sqlx.DB, logger *zap.Logger) *ProfileRepository {
	return &ProfileRepository{db: db, logger: logger}
}

// GetByOwner returns the profile for owner, or nil if none exists
func (r *ProfileRepository) GetByOwner(ctx context.Context, owner string) (*entities.UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE owner = $1`

	var profile entities.UserProfile
	if err := r.db.GetContext(ctx, &profile, query, owner); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

// Create inserts a new profile. An existing profile for the owner is an ErrAlreadyExists.
func (r *ProfileRepository) Create(ctx context.Context, profile *entities.UserProfile) error {
	query := `
		INSERT INTO user_profiles (` + profileColumns + `)
		VALUES (
			:owner, :enabled, :trade_size_sol, :trade_size_usdc, :min_fee_pool, :target_fee_pool,
			:max_slippage_bps, :protocol_fee_bps, :relayer_refund_lamports, :keeper_allowlist,
			:daily_limit, :last_execution, :nonce, :created_at, :updated_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		if isPgError(err, pgUniqueViolation) {
			return fmt.Errorf("profile %s: %w", profile.Owner, errors.ErrAlreadyExists)
		}
		r.logger.Error("failed to create profile", zap.Error(err), zap.String("owner", profile.Owner))
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// Update writes the user-editable settings. Bookkeeping columns (last_execution,
// nonce) are only changed by settlement.
func (r *ProfileRepository) Update(ctx context.Context, profile *entities.UserProfile) error {
	query := `
		UPDATE user_profiles SET
			enabled = :enabled,
			trade_size_sol = :trade_size_sol,
			trade_size_usdc = :trade_size_usdc,
			min_fee_pool = :min_fee_pool,
			target_fee_pool = :target_fee_pool,
			max_slippage_bps = :max_slippage_bps,
			protocol_fee_bps = :protocol_fee_bps,
			relayer_refund_lamports = :relayer_refund_lamports,
			keeper_allowlist = :keeper_allowlist,
			daily_limit = :daily_limit,
			updated_at = :updated_at
		WHERE owner = :owner`

	result, err := r.db.NamedExecContext(ctx, query, profile)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return errors.NotFoundError("PROFILE")
	}
	return nil
}

// ListEnabled returns every profile with enabled = true
func (r *ProfileRepository) ListEnabled(ctx context.Context) ([]*entities.UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE enabled = TRUE ORDER BY owner`

	var profiles []*entities.UserProfile
	if err := r.db.SelectContext(ctx, &profiles, query); err != nil {
		return nil, fmt.Errorf("failed to list enabled profiles: %w", err)
	}
	return profiles, nil
}
