package signal_worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/queue"
	"github.com/rebalance-service/rebalance_service/pkg/logger"
)

// JobSource is the queue the worker consumes
type JobSource interface {
	Name() string
	Dequeue(ctx context.Context, wait time.Duration) (*queue.Delivery, error)
	Ack(ctx context.Context, d *queue.Delivery) error
}

// Dispatcher fans one signal out to eligible owners
type Dispatcher interface {
	Dispatch(ctx context.Context, signalID uuid.UUID, signalType entities.SignalType) (int, error)
}

// Config holds configuration for the signal worker
type Config struct {
	WorkerCount     int
	DispatchTimeout time.Duration
	PollTimeout     time.Duration
}

// Worker consumes received signals and runs a dispatch for each
type Worker struct {
	config     Config
	source     JobSource
	dispatcher Dispatcher
	logger     *logger.Logger

	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewWorker creates a new signal worker
func NewWorker(config Config, source JobSource, dispatcher Dispatcher, logger *logger.Logger) *Worker {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.DispatchTimeout <= 0 {
		config.DispatchTimeout = time.Minute
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		config:         config,
		source:         source,
		dispatcher:     dispatcher,
		logger:         logger,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
}

// Start launches the consumers
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting signal worker", "queue", w.source.Name(), "worker_count", w.config.WorkerCount)

	for i := 0; i < w.config.WorkerCount; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
}

// Shutdown stops taking new signals and waits for running dispatches
func (w *Worker) Shutdown(timeout time.Duration) error {
	w.logger.Info("Shutting down signal worker", "timeout", timeout)
	w.shutdownCancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("signal worker shutdown timeout exceeded")
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdownCtx.Done():
			return
		default:
		}

		d, err := w.source.Dequeue(w.shutdownCtx, w.config.PollTimeout)
		if err != nil {
			if w.shutdownCtx.Err() != nil {
				return
			}
			w.logger.Error("Failed to dequeue signal", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if d == nil {
			continue
		}

		w.handle(d)
	}
}

// handle dispatches one signal. The delivery is always acknowledged: a failed
// dispatch leaves the signal log in failed, which cannot be dispatched again.
func (w *Worker) handle(d *queue.Delivery) {
	ctx := context.Background()
	defer func() {
		if err := w.source.Ack(ctx, d); err != nil {
			w.logger.Error("Failed to ack signal job", "job_id", d.ID, "error", err)
		}
	}()

	var job entities.SignalJob
	if err := d.Decode(&job); err != nil {
		w.logger.Error("Discarding undecodable signal job", "job_id", d.ID, "error", err)
		return
	}

	timeout := d.Timeout()
	if timeout <= 0 {
		timeout = w.config.DispatchTimeout
	}
	dispatchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	scheduled, err := w.dispatcher.Dispatch(dispatchCtx, job.SignalID, job.SignalType)
	if err != nil {
		w.logger.Error("Signal dispatch failed", "signal_id", job.SignalID, "error", err)
		return
	}
	w.logger.Info("Signal dispatch finished", "signal_id", job.SignalID, "scheduled", scheduled)
}
