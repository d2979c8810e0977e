package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
	"github.com/rebalance-service/rebalance_service/internal/domain/repositories"
	"github.com/rebalance-service/rebalance_service/internal/domain/services/eligibility"
	"github.com/rebalance-service/rebalance_service/pkg/metrics"
	"github.com/rebalance-service/rebalance_service/pkg/tracing"
)

// ExecutionScheduler hands a per-owner job to the execution workers
type ExecutionScheduler interface {
	ScheduleExecution(ctx context.Context, job entities.ExecutionJob) error
}

// Dispatcher fans a signal out to every eligible owner
type Dispatcher struct {
	signals      repositories.SignalLogRepository
	profiles     repositories.ProfileRepository
	transactions repositories.TransactionRepository
	validator    *eligibility.Validator
	scheduler    ExecutionScheduler
	now          func() time.Time
	logger       *zap.Logger
}

// NewDispatcher creates a new signal dispatcher
func NewDispatcher(
	signals repositories.SignalLogRepository,
	profiles repositories.ProfileRepository,
	transactions repositories.TransactionRepository,
	validator *eligibility.Validator,
	scheduler ExecutionScheduler,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		signals:      signals,
		profiles:     profiles,
		transactions: transactions,
		validator:    validator,
		scheduler:    scheduler,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

// WithClock replaces the dispatcher clock. Used by tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Dispatch evaluates every enabled owner and schedules an execution for each
// eligible one. It returns the number of owners scheduled. Per-owner faults are
// logged and skipped; only a failure of the signal's own bookkeeping is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, signalID uuid.UUID, signalType entities.SignalType) (scheduled int, err error) {
	ctx, span := tracing.StartSpan(ctx, "signal.Dispatch",
		attribute.String("signal_id", signalID.String()),
		attribute.String("signal_type", string(signalType)))
	defer func() { tracing.EndSpan(span, err) }()

	log := d.logger.With(
		zap.String("signal_id", signalID.String()),
		zap.String("signal_type", string(signalType)))

	if err := d.signals.UpdateStatus(ctx, signalID, entities.SignalStatusProcessing, nil, nil); err != nil {
		return 0, d.abort(ctx, log, signalID, signalType, fmt.Errorf("mark processing: %w", err))
	}

	profiles, err := d.profiles.ListEnabled(ctx)
	if err != nil {
		return 0, d.abort(ctx, log, signalID, signalType, fmt.Errorf("load enabled profiles: %w", err))
	}

	now := d.now()
	dayStart := eligibility.StartOfDayUTC(now)

	for _, profile := range profiles {
		if ctx.Err() != nil {
			return scheduled, d.abort(ctx, log, signalID, signalType, ctx.Err())
		}

		count, err := d.transactions.CountSince(ctx, profile.Owner, dayStart)
		if err != nil {
			log.Error("Failed to count daily executions",
				zap.String("owner", profile.Owner),
				zap.Error(err))
			metrics.UsersEvaluatedTotal.WithLabelValues("error").Inc()
			continue
		}

		eligible, err := d.validator.Validate(profile, count, now)
		if err != nil {
			if errors.IsEligibilitySkip(err) {
				log.Info("Owner not eligible", zap.String("owner", profile.Owner), zap.String("reason", err.Error()))
				metrics.UsersEvaluatedTotal.WithLabelValues("skipped").Inc()
			} else {
				log.Error("Eligibility check failed", zap.String("owner", profile.Owner), zap.Error(err))
				metrics.UsersEvaluatedTotal.WithLabelValues("error").Inc()
			}
			continue
		}
		if !eligible {
			metrics.UsersEvaluatedTotal.WithLabelValues("disabled").Inc()
			continue
		}

		job := entities.ExecutionJob{SignalID: signalID, SignalType: signalType, Owner: profile.Owner}
		if err := d.scheduler.ScheduleExecution(ctx, job); err != nil {
			log.Error("Failed to schedule execution", zap.String("owner", profile.Owner), zap.Error(err))
			metrics.UsersEvaluatedTotal.WithLabelValues("error").Inc()
			continue
		}
		metrics.UsersEvaluatedTotal.WithLabelValues("scheduled").Inc()
		scheduled++
	}

	affected := scheduled
	if err := d.signals.UpdateStatus(ctx, signalID, entities.SignalStatusCompleted, &affected, nil); err != nil {
		return scheduled, d.abort(ctx, log, signalID, signalType, fmt.Errorf("mark completed: %w", err))
	}

	metrics.SignalsDispatchedTotal.WithLabelValues(string(signalType), string(entities.SignalStatusCompleted)).Inc()
	log.Info("Signal dispatched",
		zap.Int("enabled_users", len(profiles)),
		zap.Int("scheduled", scheduled))
	return scheduled, nil
}

// abort marks the signal failed and returns cause
func (d *Dispatcher) abort(ctx context.Context, log *zap.Logger, signalID uuid.UUID, signalType entities.SignalType, cause error) error {
	log.Error("Signal dispatch failed", zap.Error(cause))
	metrics.SignalsDispatchedTotal.WithLabelValues(string(signalType), string(entities.SignalStatusFailed)).Inc()

	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	msg := cause.Error()
	if err := d.signals.UpdateStatus(markCtx, signalID, entities.SignalStatusFailed, nil, &msg); err != nil {
		log.Error("Failed to mark signal failed", zap.Error(err))
	}
	return cause
}
