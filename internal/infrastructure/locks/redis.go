package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
)

const (
	keyPrefix    = "lock:owner:"
	pollInterval = 50 * time.Millisecond
)

// releaseScript deletes the key only while it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is a lease lock shared by every worker process. The lease expires
// after ttl so a crashed holder cannot block an owner forever.
type RedisLocker struct {
	client      *redis.Client
	ttl         time.Duration
	waitTimeout time.Duration
	logger      *zap.Logger
}

// NewRedisLocker creates a lease locker
func NewRedisLocker(client *redis.Client, ttl, waitTimeout time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client:      client,
		ttl:         ttl,
		waitTimeout: waitTimeout,
		logger:      logger,
	}
}

// Lock takes the lease for owner, polling until waitTimeout
func (l *RedisLocker) Lock(ctx context.Context, owner string) (func(), error) {
	key := keyPrefix + owner
	token := uuid.NewString()
	deadline := time.Now().Add(l.waitTimeout)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire owner lease: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, errors.ErrOwnerBusy
		}

		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			released, err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Int()
			if err != nil {
				l.logger.Warn("Failed to release owner lease", zap.String("owner", owner), zap.Error(err))
				return
			}
			if released == 0 {
				l.logger.Warn("Owner lease expired before release", zap.String("owner", owner))
			}
		})
	}, nil
}
