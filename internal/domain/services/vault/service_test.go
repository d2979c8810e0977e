package vault

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

func newService() (*Service, *memory.Store) {
	store := memory.NewStore()
	return NewService(store.Profiles(), store.Vaults(), zap.NewNop()), store
}

func TestGetBalances_OpensEmptyVault(t *testing.T) {
	s, store := newService()

	balances, err := s.GetBalances(context.Background(), owner)

	require.NoError(t, err)
	assert.True(t, balances.SOL.IsZero())
	assert.Equal(t, entities.FeePoolCritical, balances.FeePoolStatus)

	profile, err := store.Profiles().GetByOwner(context.Background(), owner)
	require.NoError(t, err)
	assert.NotNil(t, profile)
}

func TestDeposit(t *testing.T) {
	s, _ := newService()
	ctx := context.Background()

	balances, err := s.Deposit(ctx, owner, entities.VaultAssetSOL, decimal.RequireFromString("10"))
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000_000), balances.SOLLamports)
	assert.True(t, balances.SOL.Equal(decimal.NewFromInt(10)))

	balances, err = s.Deposit(ctx, owner, entities.VaultAssetUSDC, decimal.RequireFromString("370.5"))
	require.NoError(t, err)
	assert.Equal(t, int64(370_500_000), balances.USDCBaseUnits)

	balances, err = s.Deposit(ctx, owner, entities.VaultAssetFeePool, decimal.RequireFromString("0.1"))
	require.NoError(t, err)
	assert.Equal(t, int64(100_000_000), balances.FeePoolLamports)
	assert.Equal(t, entities.FeePoolLow, balances.FeePoolStatus)
}

func TestDeposit_RejectsBadAmounts(t *testing.T) {
	s, _ := newService()
	ctx := context.Background()

	_, err := s.Deposit(ctx, owner, entities.VaultAssetSOL, decimal.Zero)
	assert.True(t, errors.IsInvalidInput(err))

	_, err = s.Deposit(ctx, owner, entities.VaultAssetUSDC, decimal.RequireFromString("0.0000001"))
	assert.True(t, errors.IsInvalidInput(err))

	_, err = s.Deposit(ctx, owner, "btc", decimal.NewFromInt(1))
	assert.True(t, errors.IsInvalidInput(err))

	// 2^64 + 1 lamports would wrap to 1 lamport
	_, err = s.Deposit(ctx, owner, entities.VaultAssetSOL, decimal.RequireFromString("18446744073.709551617"))
	assert.True(t, errors.IsInvalidInput(err))
	assert.Equal(t, "amount", errors.GetErrorDetails(err)["field"])

	_, err = s.Withdraw(ctx, owner, entities.VaultAssetUSDC, decimal.RequireFromString("9223372036854.775808"))
	assert.True(t, errors.IsInvalidInput(err))

	balances, err := s.GetBalances(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balances.SOLLamports)
}

func TestWithdraw(t *testing.T) {
	s, _ := newService()
	ctx := context.Background()
	_, err := s.Deposit(ctx, owner, entities.VaultAssetSOL, decimal.NewFromInt(3))
	require.NoError(t, err)

	balances, err := s.Withdraw(ctx, owner, entities.VaultAssetSOL, decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.Equal(t, int64(2_500_000_000), balances.SOLLamports)

	_, err = s.Withdraw(ctx, owner, entities.VaultAssetSOL, decimal.NewFromInt(3))
	assert.ErrorIs(t, err, errors.ErrInsufficientBalance)

	after, err := s.GetBalances(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2_500_000_000), after.SOLLamports)
}
