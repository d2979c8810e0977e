// Package queue implements an at-least-once job queue on Redis lists. A job
// moves atomically from the pending list to a processing list when it is
// taken and is removed from there only when acknowledged.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/pkg/metrics"
)

const keyPrefix = "queue:"

// Envelope wraps a job payload on the wire
type Envelope struct {
	ID             string          `json:"id"`
	Attempts       int             `json:"attempts"`
	TimeoutSeconds int             `json:"timeout_seconds"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	Payload        json.RawMessage `json:"payload"`
}

// Timeout returns the job's processing budget
func (e Envelope) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// Delivery is a job taken from the queue and not yet acknowledged
type Delivery struct {
	Envelope
	raw string
}

// Decode unmarshals the job payload into v
func (d *Delivery) Decode(v interface{}) error {
	return json.Unmarshal(d.Payload, v)
}

// Queue is one named Redis reliable queue
type Queue struct {
	client      *redis.Client
	name        string
	maxAttempts int
	logger      *zap.Logger
}

// NewQueue creates a queue handle. Jobs nacked more than maxAttempts times are
// moved to the dead-letter list.
func NewQueue(client *redis.Client, name string, maxAttempts int, logger *zap.Logger) *Queue {
	return &Queue{
		client:      client,
		name:        name,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Name returns the queue name
func (q *Queue) Name() string { return q.name }

func (q *Queue) pendingKey() string    { return keyPrefix + q.name }
func (q *Queue) processingKey() string { return keyPrefix + q.name + ":processing" }
func (q *Queue) deadKey() string       { return keyPrefix + q.name + ":dead" }

// Enqueue pushes a job with the given processing timeout
func (q *Queue) Enqueue(ctx context.Context, payload interface{}, timeout time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}

	env := Envelope{
		ID:             uuid.NewString(),
		TimeoutSeconds: int(timeout / time.Second),
		EnqueuedAt:     time.Now().UTC(),
		Payload:        body,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal job envelope: %w", err)
	}

	if err := q.client.LPush(ctx, q.pendingKey(), data).Err(); err != nil {
		return fmt.Errorf("enqueue %s job: %w", q.name, err)
	}
	return nil
}

// Dequeue waits up to wait for a job. It returns (nil, nil) when none arrived.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*Delivery, error) {
	raw, err := q.client.BRPopLPush(ctx, q.pendingKey(), q.processingKey(), wait).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue %s job: %w", q.name, err)
	}

	d := &Delivery{raw: raw}
	if err := json.Unmarshal([]byte(raw), &d.Envelope); err != nil {
		// unreadable entries would be redelivered forever
		q.logger.Error("Dropping malformed job", zap.String("queue", q.name), zap.Error(err))
		if err := q.deadLetterRaw(ctx, raw); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return d, nil
}

// deadLetterRaw copies raw to the dead-letter list before taking it off the
// processing list, so a failure in between leaves a duplicate rather than a
// lost entry. Anything left in processing is picked up by RequeueOrphans.
func (q *Queue) deadLetterRaw(ctx context.Context, raw string) error {
	if err := q.client.LPush(ctx, q.deadKey(), raw).Err(); err != nil {
		q.logger.Error("Failed to dead-letter malformed job",
			zap.String("queue", q.name),
			zap.Error(err))
		return fmt.Errorf("dead-letter %s job: %w", q.name, err)
	}
	if err := q.client.LRem(ctx, q.processingKey(), 1, raw).Err(); err != nil {
		q.logger.Error("Failed to remove malformed job from processing",
			zap.String("queue", q.name),
			zap.Error(err))
		return fmt.Errorf("remove malformed %s job: %w", q.name, err)
	}
	return nil
}

// Ack removes a finished job
func (q *Queue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.client.LRem(ctx, q.processingKey(), 1, d.raw).Err(); err != nil {
		return fmt.Errorf("ack %s job %s: %w", q.name, d.ID, err)
	}
	return nil
}

// Nack returns a job to the pending list for redelivery, or to the
// dead-letter list once it has used up its attempts.
func (q *Queue) Nack(ctx context.Context, d *Delivery) error {
	env := d.Envelope
	env.Attempts++

	target := q.pendingKey()
	if q.maxAttempts > 0 && env.Attempts >= q.maxAttempts {
		target = q.deadKey()
		q.logger.Warn("Job exhausted its attempts, moving to dead letter",
			zap.String("queue", q.name),
			zap.String("job_id", env.ID),
			zap.Int("attempts", env.Attempts))
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal job envelope: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey(), 1, d.raw)
		pipe.LPush(ctx, target, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("nack %s job %s: %w", q.name, d.ID, err)
	}
	return nil
}

// RequeueOrphans moves everything left in the processing list back to pending.
// Call it once at start-up, before any consumer of this queue runs.
func (q *Queue) RequeueOrphans(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.RPopLPush(ctx, q.processingKey(), q.pendingKey()).Err()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return moved, fmt.Errorf("requeue %s orphans: %w", q.name, err)
		}
		moved++
	}
	if moved > 0 {
		q.logger.Warn("Requeued orphaned jobs", zap.String("queue", q.name), zap.Int("count", moved))
	}
	return moved, nil
}

// Depth returns the number of pending jobs and updates the queue depth gauge
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.pendingKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("queue %s depth: %w", q.name, err)
	}
	metrics.QueueDepth.WithLabelValues(q.name).Set(float64(n))
	return n, nil
}
