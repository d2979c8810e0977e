package execution_worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	domainerrors "github.com/rebalance-service/rebalance_service/internal/domain/errors"
	"github.com/rebalance-service/rebalance_service/internal/domain/services/execution"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/queue"
	"github.com/rebalance-service/rebalance_service/pkg/logger"
)

// JobSource is the queue the worker consumes
type JobSource interface {
	Name() string
	Dequeue(ctx context.Context, wait time.Duration) (*queue.Delivery, error)
	Ack(ctx context.Context, d *queue.Delivery) error
	Nack(ctx context.Context, d *queue.Delivery) error
}

// Executor runs one owner's execution task
type Executor interface {
	Execute(ctx context.Context, job entities.ExecutionJob) (*execution.Result, error)
}

// Config holds configuration for the execution worker pool
type Config struct {
	WorkerCount int
	JobTimeout  time.Duration
	PollTimeout time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		WorkerCount: 8,
		JobTimeout:  5 * time.Minute,
		PollTimeout: 2 * time.Second,
	}
}

// Worker is a bounded pool running execution jobs. Jobs for different owners
// run in parallel and in no particular order.
type Worker struct {
	config   Config
	source   JobSource
	executor Executor
	logger   *logger.Logger

	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewWorker creates a new execution worker pool
func NewWorker(config Config, source JobSource, executor Executor, logger *logger.Logger) *Worker {
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultConfig().JobTimeout
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = DefaultConfig().PollTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		config:         config,
		source:         source,
		executor:       executor,
		logger:         logger,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
}

// Start launches the pool
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting execution worker",
		"queue", w.source.Name(),
		"worker_count", w.config.WorkerCount,
		"job_timeout", w.config.JobTimeout)

	for i := 0; i < w.config.WorkerCount; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}
}

// Shutdown stops taking new jobs and waits for in-flight ones
func (w *Worker) Shutdown(timeout time.Duration) error {
	w.logger.Info("Shutting down execution worker", "timeout", timeout)
	w.shutdownCancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Execution worker stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("execution worker shutdown timeout exceeded")
	}
}

func (w *Worker) run(ctx context.Context, workerID int) {
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
			w.logger.Error("Failed to dequeue execution job", "worker_id", workerID, "error", err)
			w.pause(ctx)
			continue
		}
		if d == nil {
			continue
		}

		w.handle(d, workerID)
	}
}

// handle runs one delivery. It is detached from shutdown so an in-flight swap
// finishes and closes its record.
func (w *Worker) handle(d *queue.Delivery, workerID int) {
	ctx := context.Background()

	var job entities.ExecutionJob
	if err := d.Decode(&job); err != nil {
		w.logger.Error("Discarding undecodable execution job", "job_id", d.ID, "error", err)
		w.ack(ctx, d)
		return
	}

	timeout := d.Timeout()
	if timeout <= 0 {
		timeout = w.config.JobTimeout
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	result, err := w.executor.Execute(jobCtx, job)
	cancel()

	if redeliver(result, err) {
		w.logger.Warn("Execution job will be redelivered",
			"worker_id", workerID,
			"job_id", d.ID,
			"owner", job.Owner,
			"attempts", d.Attempts,
			"error", err)
		if nackErr := w.source.Nack(ctx, d); nackErr != nil {
			w.logger.Error("Failed to nack execution job", "job_id", d.ID, "error", nackErr)
		}
		return
	}

	if err != nil {
		w.logger.Error("Execution job finished with error",
			"worker_id", workerID,
			"job_id", d.ID,
			"owner", job.Owner,
			"signal_id", job.SignalID,
			"error", err)
	}
	w.ack(ctx, d)
}

// redeliver decides whether a job should run again. Once a record exists the
// outcome is final; redelivery is only for faults that happened before that.
func redeliver(result *execution.Result, err error) bool {
	if err == nil || result != nil {
		return false
	}
	if errors.Is(err, domainerrors.ErrDataIntegrity) || errors.Is(err, domainerrors.ErrInvalidSignalType) {
		return false
	}
	return true
}

func (w *Worker) ack(ctx context.Context, d *queue.Delivery) {
	if err := w.source.Ack(ctx, d); err != nil {
		w.logger.Error("Failed to ack execution job", "job_id", d.ID, "error", err)
	}
}

func (w *Worker) pause(ctx context.Context) {
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
	case <-w.shutdownCtx.Done():
	}
}
