package signal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	domainerrors "github.com/rebalance-service/rebalance_service/internal/domain/errors"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/repositories/memory"
)

func TestReceive(t *testing.T) {
	t.Run("records and queues the signal", func(t *testing.T) {
		store := memory.NewStore()
		scheduler := new(MockScheduler)
		scheduler.On("ScheduleSignal", mock.Anything, mock.MatchedBy(func(job entities.SignalJob) bool {
			return job.SignalType == entities.SignalTypeSOLToUSDC
		})).Return(nil).Once()

		receiver := NewReceiver(store.SignalLogs(), scheduler, zap.NewNop())
		receipt, err := receiver.Receive(context.Background(), entities.SignalTypeSOLToUSDC, json.RawMessage(`{"source":"oracle"}`))

		require.NoError(t, err)
		assert.Equal(t, entities.SignalStatusReceived, receipt.Status)
		assert.Contains(t, receipt.Message, "queued")
		scheduler.AssertExpectations(t)

		log, err := store.SignalLogs().GetByID(context.Background(), receipt.ID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"source":"oracle"}`, string(log.Metadata))
	})

	t.Run("queue failure is reported in the message", func(t *testing.T) {
		store := memory.NewStore()
		scheduler := new(MockScheduler)
		scheduler.On("ScheduleSignal", mock.Anything, mock.Anything).Return(errors.New("redis down"))

		receiver := NewReceiver(store.SignalLogs(), scheduler, zap.NewNop())
		receipt, err := receiver.Receive(context.Background(), entities.SignalTypeUSDCToSOL, nil)

		require.NoError(t, err)
		assert.Contains(t, receipt.Message, "redis down")

		log, err := store.SignalLogs().GetByID(context.Background(), receipt.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.SignalStatusReceived, log.Status)
		assert.JSONEq(t, `{}`, string(log.Metadata))
	})

	t.Run("unknown signal type is rejected", func(t *testing.T) {
		receiver := NewReceiver(memory.NewStore().SignalLogs(), new(MockScheduler), zap.NewNop())
		_, err := receiver.Receive(context.Background(), "SOL_TO_ETH", nil)
		assert.ErrorIs(t, err, domainerrors.ErrInvalidSignalType)
	})
}
