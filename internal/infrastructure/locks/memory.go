package locks

import (
	"context"
	"sync"
	"time"

	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
)

// MemoryLocker is an in-process keyed mutex. It only serializes work inside
// one process and is meant for single-node deployments and tests.
type MemoryLocker struct {
	mu          sync.Mutex
	held        map[string]chan struct{}
	waitTimeout time.Duration
}

// NewMemoryLocker creates a keyed mutex that waits at most waitTimeout for an owner
func NewMemoryLocker(waitTimeout time.Duration) *MemoryLocker {
	return &MemoryLocker{
		held:        make(map[string]chan struct{}),
		waitTimeout: waitTimeout,
	}
}

// Lock blocks until owner is free, the wait timeout passes or ctx ends
func (l *MemoryLocker) Lock(ctx context.Context, owner string) (func(), error) {
	timer := time.NewTimer(l.waitTimeout)
	defer timer.Stop()

	for {
		l.mu.Lock()
		released, busy := l.held[owner]
		if !busy {
			done := make(chan struct{})
			l.held[owner] = done
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, owner)
					l.mu.Unlock()
					close(done)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-released:
		case <-timer.C:
			return nil, errors.ErrOwnerBusy
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
