package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
	"github.com/rebalance-service/rebalance_service/internal/domain/repositories"
	"github.com/rebalance-service/rebalance_service/pkg/metrics"
)

// SignalScheduler hands a received signal to the dispatcher workers
type SignalScheduler interface {
	ScheduleSignal(ctx context.Context, job entities.SignalJob) error
}

// Receipt is returned to the signal sender
type Receipt struct {
	ID         uuid.UUID             `json:"id"`
	SignalType entities.SignalType   `json:"signal_type"`
	Status     entities.SignalStatus `json:"status"`
	Message    string                `json:"message"`
}

// Receiver records incoming signals and queues them for dispatch
type Receiver struct {
	signals   repositories.SignalLogRepository
	scheduler SignalScheduler
	logger    *zap.Logger
}

// NewReceiver creates a new signal receiver
func NewReceiver(signals repositories.SignalLogRepository, scheduler SignalScheduler, logger *zap.Logger) *Receiver {
	return &Receiver{signals: signals, scheduler: scheduler, logger: logger}
}

// Receive logs the signal as received and queues it. A queueing failure does
// not fail the call; the receipt message reports it and the log row stays
// in received for operators to replay.
func (r *Receiver) Receive(ctx context.Context, signalType entities.SignalType, metadata json.RawMessage) (*Receipt, error) {
	if !signalType.Valid() {
		return nil, fmt.Errorf("%w: %q", errors.ErrInvalidSignalType, signalType)
	}
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}

	log := &entities.SignalLog{
		ID:         uuid.New(),
		SignalType: signalType,
		Status:     entities.SignalStatusReceived,
		Metadata:   metadata,
	}
	if err := r.signals.Create(ctx, log); err != nil {
		return nil, fmt.Errorf("record signal: %w", err)
	}
	metrics.SignalsReceivedTotal.WithLabelValues(string(signalType)).Inc()

	receipt := &Receipt{
		ID:         log.ID,
		SignalType: signalType,
		Status:     log.Status,
		Message:    "Signal received and queued for processing",
	}

	if err := r.scheduler.ScheduleSignal(ctx, entities.SignalJob{SignalID: log.ID, SignalType: signalType}); err != nil {
		r.logger.Error("Failed to queue signal",
			zap.String("signal_id", log.ID.String()),
			zap.String("signal_type", string(signalType)),
			zap.Error(err))
		receipt.Message = fmt.Sprintf("Signal received but queueing failed: %v", err)
		return receipt, nil
	}

	r.logger.Info("Signal received",
		zap.String("signal_id", log.ID.String()),
		zap.String("signal_type", string(signalType)))
	return receipt, nil
}
