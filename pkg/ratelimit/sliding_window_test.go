package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestLimiter_GlobalTier(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	limiter := NewLimiter(client, Config{Global: Limit{Limit: 2, Window: time.Minute}}, zap.NewNop())

	for i := 0; i < 2; i++ {
		res, err := limiter.Check(ctx, "10.0.0.1", "", "/api/v1/signals")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := limiter.Check(ctx, "10.0.0.2", "", "/api/v1/signals")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "global", res.LimitedBy)
	assert.Equal(t, time.Minute, res.RetryAfter)
}

func TestLimiter_WalletTierIsPerWallet(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	limiter := NewLimiter(client, Config{Wallet: Limit{Limit: 1, Window: time.Minute}}, zap.NewNop())

	res, err := limiter.Check(ctx, "10.0.0.1", "alice", "/api/v1/vault")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Check(ctx, "10.0.0.1", "bob", "/api/v1/vault")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Check(ctx, "10.0.0.1", "alice", "/api/v1/vault")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "wallet", res.LimitedBy)
}

func TestLimiter_NothingConfigured(t *testing.T) {
	limiter := NewLimiter(nil, Config{}, zap.NewNop())

	res, err := limiter.Check(context.Background(), "10.0.0.1", "alice", "/api/v1/vault")

	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(-1), res.Remaining)
}
