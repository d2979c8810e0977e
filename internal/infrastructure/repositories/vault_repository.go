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

// VaultRepository handles vault balance persistence
type VaultRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewVaultRepository creates a new vault repository
func NewVaultRepository(db *sqlx.DB, logger *zap.Logger) *VaultRepository {
	return &VaultRepository{db: db, logger: logger}
}

// GetByOwner returns the vault for owner, or nil if none exists
func (r *VaultRepository) GetByOwner(ctx context.Context, owner string) (*entities.VaultBalance, error) {
	query := `
		SELECT owner, sol_balance, usdc_balance, fee_pool_balance, updated_at
		FROM vault_balances
		WHERE owner = $1`

	var vault entities.VaultBalance
	if err := r.db.GetContext(ctx, &vault, query, owner); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get vault: %w", err)
	}
	return &vault, nil
}

// Create inserts an empty vault for owner, returning the existing one if present
func (r *VaultRepository) Create(ctx context.Context, owner string) (*entities.VaultBalance, error) {
	query := `
		INSERT INTO vault_balances (owner, sol_balance, usdc_balance, fee_pool_balance, updated_at)
		VALUES ($1, 0, 0, 0, NOW())
		ON CONFLICT (owner) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, owner); err != nil {
		r.logger.Error("failed to create vault", zap.Error(err), zap.String("owner", owner))
		return nil, fmt.Errorf("failed to create vault: %w", err)
	}
	return r.GetByOwner(ctx, owner)
}

// Adjust adds delta to one balance and returns the updated vault
func (r *VaultRepository) Adjust(ctx context.Context, owner string, asset entities.VaultAsset, delta int64) (*entities.VaultBalance, error) {
	if err := adjustBalance(ctx, r.db, owner, asset, delta); err != nil {
		if !errors.IsNotFound(err) && err != errors.ErrInsufficientBalance {
			r.logger.Error("failed to adjust vault balance",
				zap.Error(err),
				zap.String("owner", owner),
				zap.String("asset", string(asset)),
				zap.Int64("delta", delta))
		}
		return nil, err
	}
	return r.GetByOwner(ctx, owner)
}

func balanceColumn(asset entities.VaultAsset) (string, error) {
	switch asset {
	case entities.VaultAssetSOL:
		return "sol_balance", nil
	case entities.VaultAssetUSDC:
		return "usdc_balance", nil
	case entities.VaultAssetFeePool:
		return "fee_pool_balance", nil
	}
	return "", errors.ValidationError("asset", fmt.Sprintf("unknown vault asset %q", asset))
}

// adjustBalance applies a relative update. Debits carry a >= guard so a concurrent
// writer can never drive the balance negative.
func adjustBalance(ctx context.Context, db sqlx.ExecerContext, owner string, asset entities.VaultAsset, delta int64) error {
	column, err := balanceColumn(asset)
	if err != nil {
		return err
	}

	var query string
	var args []interface{}
	if delta < 0 {
		query = fmt.Sprintf(`
			UPDATE vault_balances
			SET %[1]s = %[1]s - $2, updated_at = NOW()
			WHERE owner = $1 AND %[1]s >= $2`, column)
		args = []interface{}{owner, -delta}
	} else {
		query = fmt.Sprintf(`
			UPDATE vault_balances
			SET %[1]s = %[1]s + $2, updated_at = NOW()
			WHERE owner = $1`, column)
		args = []interface{}{owner, delta}
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		if isPgError(err, pgCheckViolation) {
			return errors.ErrInsufficientBalance
		}
		return fmt.Errorf("failed to adjust %s: %w", column, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if delta < 0 {
			return errors.ErrInsufficientBalance
		}
		return errors.NotFoundError("VAULT")
	}
	return nil
}
