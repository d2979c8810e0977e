package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/domain/services/eligibility"
	"github.com/rebalance-service/rebalance_service/internal/domain/services/vault"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/repositories/memory"
)

const owner = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newService(store *memory.Store) *Service {
	s := NewService(
		vault.NewService(store.Profiles(), store.Vaults(), zap.NewNop()),
		store.Profiles(),
		store.Transactions(),
		eligibility.NewValidator(5*time.Minute, zap.NewNop()),
		zap.NewNop(),
	)
	s.now = func() time.Time { return now }
	return s
}

func seedProfile(t *testing.T, store *memory.Store, mutate func(p *entities.UserProfile)) {
	t.Helper()
	p := entities.NewUserProfile(owner, now.Add(-24*time.Hour))
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, store.Profiles().Create(context.Background(), p))
}

func seedTransaction(t *testing.T, store *memory.Store, date time.Time) {
	t.Helper()
	signalID := uuid.New()
	require.NoError(t, store.Transactions().Create(context.Background(), &entities.Transaction{
		Owner: owner, SignalID: &signalID, Date: date,
		Type: entities.SignalTypeSOLToUSDC, Status: entities.TransactionStatusConfirmed,
	}))
}

func TestStatus_NewOwner(t *testing.T) {
	store := memory.NewStore()

	status, err := newService(store).Status(context.Background(), owner)

	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.True(t, status.Eligible)
	assert.Empty(t, status.BlockedBy)
	assert.Equal(t, PositionNone, status.Position)
	assert.Nil(t, status.NextEligibleAt)
	assert.Zero(t, status.TotalExecutions)
	require.NotNil(t, status.DailyLimit)
	assert.Equal(t, entities.DefaultDailyLimit, *status.DailyLimit)
}

func TestStatus_Cooldown(t *testing.T) {
	store := memory.NewStore()
	last := now.Add(-2 * time.Minute)
	seedProfile(t, store, func(p *entities.UserProfile) { p.LastExecution = &last })
	seedTransaction(t, store, last)
	seedTransaction(t, store, eligibility.StartOfDayUTC(now).Add(-time.Hour))

	status, err := newService(store).Status(context.Background(), owner)

	require.NoError(t, err)
	assert.False(t, status.Eligible)
	assert.Equal(t, BlockedCooldown, status.BlockedBy)
	require.NotNil(t, status.NextEligibleAt)
	assert.Equal(t, last.Add(5*time.Minute), *status.NextEligibleAt)
	assert.Equal(t, int64(180), status.CooldownRemainingSeconds)
	assert.Equal(t, 1, status.DailyExecutions)
	assert.Equal(t, 2, status.TotalExecutions)
}

func TestStatus_DailyLimit(t *testing.T) {
	store := memory.NewStore()
	last := now.Add(-time.Hour)
	seedProfile(t, store, func(p *entities.UserProfile) {
		limit := 1
		p.DailyLimit = &limit
		p.LastExecution = &last
	})
	seedTransaction(t, store, last)

	status, err := newService(store).Status(context.Background(), owner)

	require.NoError(t, err)
	assert.False(t, status.Eligible)
	assert.Equal(t, BlockedDailyLimit, status.BlockedBy)
	assert.Zero(t, status.CooldownRemainingSeconds)
}

func TestStatus_DisabledAndPosition(t *testing.T) {
	store := memory.NewStore()
	seedProfile(t, store, func(p *entities.UserProfile) { p.Enabled = false })
	store.Vaults().Put(&entities.VaultBalance{Owner: owner, USDCBalance: 150_000_000})

	status, err := newService(store).Status(context.Background(), owner)

	require.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.False(t, status.Eligible)
	assert.Equal(t, BlockedDisabled, status.BlockedBy)
	assert.Equal(t, PositionUSDC, status.Position)
}

func TestPositionOf(t *testing.T) {
	assert.Equal(t, PositionSOL, positionOf(&vault.Balances{SOLLamports: 1}))
	assert.Equal(t, PositionMixed, positionOf(&vault.Balances{SOLLamports: 1, USDCBaseUnits: 1}))
	assert.Equal(t, PositionNone, positionOf(&vault.Balances{FeePoolLamports: 1}))
}
