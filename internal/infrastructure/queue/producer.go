package queue

import (
	"context"
	"time"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
)

// Producer schedules signal and execution jobs
type Producer struct {
	signals         *Queue
	executions      *Queue
	dispatchTimeout time.Duration
	jobTimeout      time.Duration
}

// NewProducer creates a producer over the two work queues
func NewProducer(signals, executions *Queue, dispatchTimeout, jobTimeout time.Duration) *Producer {
	return &Producer{
		signals:         signals,
		executions:      executions,
		dispatchTimeout: dispatchTimeout,
		jobTimeout:      jobTimeout,
	}
}

// ScheduleSignal queues a signal for dispatch
func (p *Producer) ScheduleSignal(ctx context.Context, job entities.SignalJob) error {
	return p.signals.Enqueue(ctx, job, p.dispatchTimeout)
}

// ScheduleExecution queues one owner's execution
func (p *Producer) ScheduleExecution(ctx context.Context, job entities.ExecutionJob) error {
	return p.executions.Enqueue(ctx, job, p.jobTimeout)
}
