package pending_reaper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/pkg/metrics"
)

// AbandonedReason is recorded on transactions the reaper closes
const AbandonedReason = "execution abandoned"

// StaleFailer fails pending transactions created before a cutoff
type StaleFailer interface {
	FailStalePending(ctx context.Context, olderThan time.Time, reason string) (int64, error)
}

// Worker periodically closes pending transactions left behind by a crashed
// execution. Balances are never touched; a pending record has not settled.
type Worker struct {
	transactions StaleFailer
	schedule     string
	staleAfter   time.Duration
	cron         *cron.Cron
	now          func() time.Time
	logger       *zap.Logger
}

func NewWorker(transactions StaleFailer, schedule string, staleAfter time.Duration, logger *zap.Logger) *Worker {
	return &Worker{
		transactions: transactions,
		schedule:     schedule,
		staleAfter:   staleAfter,
		cron:         cron.New(),
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		w.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	w.logger.Info("Pending reaper started",
		zap.String("schedule", w.schedule),
		zap.Duration("stale_after", w.staleAfter))
	return nil
}

// Sweep fails every pending transaction older than staleAfter
func (w *Worker) Sweep(ctx context.Context) int64 {
	cutoff := w.now().Add(-w.staleAfter)
	n, err := w.transactions.FailStalePending(ctx, cutoff, AbandonedReason)
	if err != nil {
		w.logger.Error("Failed to reap stale pending transactions", zap.Error(err))
		return 0
	}
	if n > 0 {
		metrics.StalePendingReaped.Add(float64(n))
		w.logger.Warn("Reaped stale pending transactions", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n
}

// Shutdown stops the schedule and waits for a running sweep
func (w *Worker) Shutdown(timeout time.Duration) error {
	stopped := w.cron.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(timeout):
	}
	w.logger.Info("Pending reaper stopped")
	return nil
}
