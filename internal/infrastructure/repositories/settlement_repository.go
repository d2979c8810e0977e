package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/database"
)

// SettlementRepository commits successful swaps in a single database transaction
type SettlementRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(db *sqlx.DB, logger *zap.Logger) *SettlementRepository {
	return &SettlementRepository{db: db, logger: logger}
}

// SettleExecution confirms the pending transaction, moves both balances and
// advances the profile. It fails without side effects when the transaction is
// no longer pending, the input balance is short, or the profile nonce moved.
func (r *SettlementRepository) SettleExecution(ctx context.Context, s entities.Settlement) error {
	err := database.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE transactions
			SET status = 'confirmed', amount_out = $2, fee = $3
			WHERE id = $1 AND status = 'pending'`,
			s.TransactionID, s.AmountOut, s.Fee)
		if err != nil {
			return fmt.Errorf("failed to confirm transaction: %w", err)
		}
		if rows, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		} else if rows == 0 {
			return fmt.Errorf("transaction %s is not pending: %w", s.TransactionID, errors.ErrInvalidTransition)
		}

		if err := adjustBalance(ctx, tx, s.Owner, s.InputAsset, -s.AmountIn); err != nil {
			return err
		}
		if err := adjustBalance(ctx, tx, s.Owner, s.OutputAsset, s.AmountOut); err != nil {
			return err
		}

		result, err = tx.ExecContext(ctx, `
			UPDATE user_profiles
			SET last_execution = $2, nonce = nonce + 1, updated_at = NOW()
			WHERE owner = $1 AND nonce = $3`,
			s.Owner, s.ExecutedAt, s.ExpectedNonce)
		if err != nil {
			return fmt.Errorf("failed to advance profile: %w", err)
		}
		if rows, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		} else if rows == 0 {
			return errors.ErrNonceConflict
		}

		return nil
	})
	if err != nil {
		r.logger.Warn("settlement rolled back",
			zap.Error(err),
			zap.String("owner", s.Owner),
			zap.String("transaction_id", s.TransactionID.String()))
		return err
	}
	return nil
}
