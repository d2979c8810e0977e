package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
	"github.com/rebalance-service/rebalance_service/internal/domain/repositories"
)

const transactionColumns = `
	id, owner, signal_id, date, type, amount_in, amount_out, token_in, token_out,
	slippage_bps, fee, status, signature, error_message, created_at`

// TransactionRepository handles swap audit record persistence
type TransactionRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sqlx.DB, logger *zap.Logger) *TransactionRepository {
	return &TransactionRepository{db: db, logger: logger}
}

// Create inserts a transaction record. A second record for the same
// (signal_id, owner) is rejected with ErrAlreadyExists.
func (r *TransactionRepository) Create(ctx context.Context, tx *entities.Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (
			:id, :owner, :signal_id, :date, :type, :amount_in, :amount_out, :token_in, :token_out,
			:slippage_bps, :fee, :status, :signature, :error_message, :created_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, tx); err != nil {
		if isPgError(err, pgUniqueViolation) {
			return fmt.Errorf("transaction for %s: %w", tx.Owner, errors.ErrAlreadyExists)
		}
		r.logger.Error("failed to create transaction", zap.Error(err), zap.String("owner", tx.Owner))
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetByID returns a transaction, or nil if none exists
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	var tx entities.Transaction
	if err := r.db.GetContext(ctx, &tx, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

// GetBySignalAndOwner returns the record created for one signal and owner, or nil
func (r *TransactionRepository) GetBySignalAndOwner(ctx context.Context, signalID uuid.UUID, owner string) (*entities.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE signal_id = $1 AND owner = $2`

	var tx entities.Transaction
	if err := r.db.GetContext(ctx, &tx, query, signalID, owner); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction by signal: %w", err)
	}
	return &tx, nil
}

// MarkFailed moves a pending transaction to failed with a reason
func (r *TransactionRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE transactions
		SET status = 'failed', error_message = $2
		WHERE id = $1 AND status = 'pending'`

	result, err := r.db.ExecContext(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("failed to mark transaction failed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transaction %s is not pending: %w", id, errors.ErrInvalidTransition)
	}
	return nil
}

// CountSince counts the owner's transactions dated at or after since
func (r *TransactionRepository) CountSince(ctx context.Context, owner string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE owner = $1 AND date >= $2`

	var count int
	if err := r.db.GetContext(ctx, &count, query, owner, since); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// List returns an owner's transactions, newest first
func (r *TransactionRepository) List(ctx context.Context, filter repositories.TransactionFilter) ([]*entities.Transaction, error) {
	conditions := []string{"owner = $1"}
	args := []interface{}{filter.Owner}

	if filter.Type != nil {
		args = append(args, *filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	query := fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE %s
		ORDER BY date DESC
		LIMIT $%d OFFSET $%d`,
		transactionColumns, strings.Join(conditions, " AND "), len(args)-1, len(args))

	var txs []*entities.Transaction
	if err := r.db.SelectContext(ctx, &txs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// FailStalePending fails every pending transaction dated before olderThan
func (r *TransactionRepository) FailStalePending(ctx context.Context, olderThan time.Time, reason string) (int64, error) {
	query := `
		UPDATE transactions
		SET status = 'failed', error_message = $2
		WHERE status = 'pending' AND date < $1`

	result, err := r.db.ExecContext(ctx, query, olderThan, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale transactions: %w", err)
	}
	return result.RowsAffected()
}
