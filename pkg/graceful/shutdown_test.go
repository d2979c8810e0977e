package graceful

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/pkg/logger"
)

type recorder struct {
	calls *[]string
	name  string
	err   error
}

func (r recorder) Shutdown(timeout time.Duration) error {
	*r.calls = append(*r.calls, r.name)
	return r.err
}

func TestShutdownOrderAndErrors(t *testing.T) {
	var calls []string
	sm := NewShutdownManager(nil, time.Second, logger.NewLogger(zap.NewNop()))

	sm.Register("signal_worker", recorder{calls: &calls, name: "signal_worker"})
	sm.Register("execution_worker", recorder{calls: &calls, name: "execution_worker", err: errors.New("deadline exceeded")})
	sm.RegisterCloser("redis", func() error {
		calls = append(calls, "redis")
		return nil
	})

	err := sm.Shutdown()

	assert.Equal(t, []string{"signal_worker", "execution_worker", "redis"}, calls)
	assert.ErrorContains(t, err, "execution_worker: deadline exceeded")
}

func TestShutdownClean(t *testing.T) {
	sm := NewShutdownManager(nil, 0, logger.NewLogger(zap.NewNop()))
	assert.NoError(t, sm.Shutdown())
	assert.Equal(t, 30*time.Second, sm.timeout)
}
