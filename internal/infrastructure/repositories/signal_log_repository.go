package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
)

const signalLogColumns = `
	id, signal_type, status, received_at, processed_at, affected_users, error_message, metadata`

// SignalLogRepository handles signal log persistence
type SignalLogRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSignalLogRepository creates a new signal log repository
func NewSignalLogRepository(db *sqlx.DB, logger *zap.Logger) *SignalLogRepository {
	return &SignalLogRepository{db: db, logger: logger}
}

// Create inserts a signal log
func (r *SignalLogRepository) Create(ctx context.Context, log *entities.SignalLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.ReceivedAt.IsZero() {
		log.ReceivedAt = time.Now().UTC()
	}
	if len(log.Metadata) == 0 {
		log.Metadata = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO signal_logs (` + signalLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)`

	// jsonb is bound as text; lib/pq would encode raw bytes as bytea
	_, err := r.db.ExecContext(ctx, query,
		log.ID, log.SignalType, log.Status, log.ReceivedAt, log.ProcessedAt,
		log.AffectedUsers, log.ErrorMessage, string(log.Metadata))
	if err != nil {
		r.logger.Error("failed to create signal log", zap.Error(err))
		return fmt.Errorf("failed to create signal log: %w", err)
	}
	return nil
}

// GetByID returns a signal log, or nil if none exists
func (r *SignalLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.SignalLog, error) {
	query := `SELECT ` + signalLogColumns + ` FROM signal_logs WHERE id = $1`

	var log entities.SignalLog
	if err := r.db.GetContext(ctx, &log, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get signal log: %w", err)
	}
	return &log, nil
}

// UpdateStatus moves a signal log forward. Terminal statuses are absorbing and
// stamp processed_at.
func (r *SignalLogRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.SignalStatus, affectedUsers *int, errorMessage *string) error {
	query := `
		UPDATE signal_logs SET
			status = $2,
			affected_users = COALESCE($3, affected_users),
			error_message = COALESCE($4, error_message),
			processed_at = CASE WHEN $2 IN ('completed', 'failed') THEN NOW() ELSE processed_at END
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`

	result, err := r.db.ExecContext(ctx, query, id, status, affectedUsers, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to update signal status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		existing, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		if existing == nil {
			return errors.NotFoundError("SIGNAL")
		}
		return fmt.Errorf("signal %s is %s: %w", id, existing.Status, errors.ErrInvalidTransition)
	}
	return nil
}

// ListRecent returns the most recently received signals
func (r *SignalLogRepository) ListRecent(ctx context.Context, limit int) ([]*entities.SignalLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `SELECT ` + signalLogColumns + ` FROM signal_logs ORDER BY received_at DESC LIMIT $1`

	var logs []*entities.SignalLog
	if err := r.db.SelectContext(ctx, &logs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list signal logs: %w", err)
	}
	return logs, nil
}
