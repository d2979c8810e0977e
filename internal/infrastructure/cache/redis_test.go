package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rebalance-service/rebalance_service/internal/infrastructure/config"
)

func TestOptions(t *testing.T) {
	t.Run("url wins over host and port", func(t *testing.T) {
		opts, err := options(&config.RedisConfig{
			URL:      "redis://:secret@cache.internal:6380/2",
			Host:     "localhost",
			Port:     6379,
			PoolSize: 20,
		})

		require.NoError(t, err)
		assert.Equal(t, "cache.internal:6380", opts.Addr)
		assert.Equal(t, "secret", opts.Password)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, 20, opts.PoolSize)
	})

	t.Run("host and port", func(t *testing.T) {
		opts, err := options(&config.RedisConfig{Host: "localhost", Port: 6379, DB: 1, MaxRetries: 5})

		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", opts.Addr)
		assert.Equal(t, 1, opts.DB)
		assert.Equal(t, 5, opts.MaxRetries)
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := options(&config.RedisConfig{URL: "http://nope"})
		assert.Error(t, err)
	})
}
