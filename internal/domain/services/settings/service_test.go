package settings

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/repositories/memory"
)

const owner = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

func newService() *Service {
	return NewService(memory.NewStore().Profiles(), zap.NewNop())
}

func TestGet_CreatesDefaults(t *testing.T) {
	s := newService()

	profile, err := s.Get(context.Background(), owner)

	require.NoError(t, err)
	assert.True(t, profile.Enabled)
	assert.Equal(t, entities.DefaultTradeSizeSOL, profile.TradeSizeSOL)
	assert.Equal(t, entities.DefaultMaxSlippageBps, profile.MaxSlippageBps)
	require.NotNil(t, profile.DailyLimit)
	assert.Equal(t, entities.DefaultDailyLimit, *profile.DailyLimit)

	again, err := s.Get(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, profile.CreatedAt, again.CreatedAt)
}

func TestUpdate(t *testing.T) {
	t.Run("applies partial changes", func(t *testing.T) {
		s := newService()
		size := decimal.RequireFromString("1.25")
		slippage := 100
		disabled := false

		profile, err := s.Update(context.Background(), owner, Update{
			Enabled:        &disabled,
			TradeSizeSOL:   &size,
			MaxSlippageBps: &slippage,
		})

		require.NoError(t, err)
		assert.False(t, profile.Enabled)
		assert.Equal(t, int64(1_250_000_000), profile.TradeSizeSOL)
		assert.Equal(t, 100, profile.MaxSlippageBps)
		assert.Equal(t, entities.DefaultTradeSizeUSDC, profile.TradeSizeUSDC)

		stored, err := s.Get(context.Background(), owner)
		require.NoError(t, err)
		assert.Equal(t, int64(1_250_000_000), stored.TradeSizeSOL)
	})

	t.Run("accepts valid keepers", func(t *testing.T) {
		s := newService()
		keepers := []string{entities.WSOLMint}

		profile, err := s.Update(context.Background(), owner, Update{KeeperAllowlist: &keepers})

		require.NoError(t, err)
		assert.Equal(t, []string{entities.WSOLMint}, []string(profile.KeeperAllowlist))
	})

	invalid := []struct {
		name   string
		update func() Update
		field  string
	}{
		{"zero trade size", func() Update { z := decimal.Zero; return Update{TradeSizeSOL: &z} }, "trade_size_sol"},
		{"slippage too high", func() Update { v := 1001; return Update{MaxSlippageBps: &v} }, "max_slippage_bps"},
		{"slippage zero", func() Update { v := 0; return Update{MaxSlippageBps: &v} }, "max_slippage_bps"},
		{"daily limit zero", func() Update { v := 0; return Update{DailyLimit: &v} }, "daily_limit"},
		{"target below min", func() Update {
			v := decimal.RequireFromString("0.01")
			return Update{TargetFeePool: &v}
		}, "target_fee_pool"},
		{"trade size overflows", func() Update {
			v := decimal.RequireFromString("18446744073.709551617")
			return Update{TradeSizeSOL: &v}
		}, "trade_size_sol"},
		{"bad keeper", func() Update { k := []string{"not-a-key"}; return Update{KeeperAllowlist: &k} }, "keeper_allowlist"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			s := newService()

			_, err := s.Update(context.Background(), owner, tt.update())

			require.Error(t, err)
			assert.True(t, errors.IsInvalidInput(err))
			assert.Equal(t, tt.field, errors.GetErrorDetails(err)["field"])

			stored, err := s.Get(context.Background(), owner)
			require.NoError(t, err)
			assert.Equal(t, entities.DefaultMaxSlippageBps, stored.MaxSlippageBps)
		})
	}
}

func TestReset(t *testing.T) {
	s := newService()
	slippage := 500
	_, err := s.Update(context.Background(), owner, Update{MaxSlippageBps: &slippage})
	require.NoError(t, err)

	profile, err := s.Reset(context.Background(), owner)

	require.NoError(t, err)
	assert.Equal(t, entities.DefaultMaxSlippageBps, profile.MaxSlippageBps)
	stored, err := s.Get(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, entities.DefaultMaxSlippageBps, stored.MaxSlippageBps)
}
