package locks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
)

func TestMemoryLocker(t *testing.T) {
	t.Run("serializes the same owner", func(t *testing.T) {
		locker := NewMemoryLocker(time.Second)

		var inside, maxInside int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(context.Background(), "owner-a")
				if !assert.NoError(t, err) {
					return
				}
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				unlock()
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), maxInside)
	})

	t.Run("different owners do not block each other", func(t *testing.T) {
		locker := NewMemoryLocker(10 * time.Millisecond)

		unlockA, err := locker.Lock(context.Background(), "owner-a")
		require.NoError(t, err)
		defer unlockA()

		unlockB, err := locker.Lock(context.Background(), "owner-b")
		require.NoError(t, err)
		unlockB()
	})

	t.Run("busy owner times out", func(t *testing.T) {
		locker := NewMemoryLocker(10 * time.Millisecond)

		unlock, err := locker.Lock(context.Background(), "owner-a")
		require.NoError(t, err)
		defer unlock()

		_, err = locker.Lock(context.Background(), "owner-a")
		assert.ErrorIs(t, err, errors.ErrOwnerBusy)
	})

	t.Run("unlock is idempotent", func(t *testing.T) {
		locker := NewMemoryLocker(10 * time.Millisecond)

		unlock, err := locker.Lock(context.Background(), "owner-a")
		require.NoError(t, err)
		unlock()
		unlock()

		unlock, err = locker.Lock(context.Background(), "owner-a")
		require.NoError(t, err)
		unlock()
	})

	t.Run("cancelled context stops waiting", func(t *testing.T) {
		locker := NewMemoryLocker(time.Second)

		unlock, err := locker.Lock(context.Background(), "owner-a")
		require.NoError(t, err)
		defer unlock()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = locker.Lock(ctx, "owner-a")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
