package pending_reaper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/repositories/memory"
)

func TestSweep(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	create := func(age time.Duration, status entities.TransactionStatus) uuid.UUID {
		signalID := uuid.New()
		tx := &entities.Transaction{
			Owner: "owner-a", SignalID: &signalID, Date: now.Add(-age),
			Type: entities.SignalTypeSOLToUSDC, Status: status,
		}
		require.NoError(t, store.Transactions().Create(ctx, tx))
		return tx.ID
	}
	stale := create(15*time.Minute, entities.TransactionStatusPending)
	fresh := create(time.Minute, entities.TransactionStatusPending)
	confirmed := create(time.Hour, entities.TransactionStatusConfirmed)

	w := NewWorker(store.Transactions(), "@every 1m", 10*time.Minute, zap.NewNop())
	w.now = func() time.Time { return now }

	assert.Equal(t, int64(1), w.Sweep(ctx))

	tx, err := store.Transactions().GetByID(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusFailed, tx.Status)
	require.NotNil(t, tx.ErrorMessage)
	assert.Equal(t, AbandonedReason, *tx.ErrorMessage)

	tx, err = store.Transactions().GetByID(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusPending, tx.Status)

	tx, err = store.Transactions().GetByID(ctx, confirmed)
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusConfirmed, tx.Status)
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	w := NewWorker(memory.NewStore().Transactions(), "not a schedule", time.Minute, zap.NewNop())
	assert.Error(t, w.Start())
}
