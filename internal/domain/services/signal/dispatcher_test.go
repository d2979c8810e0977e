package signal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	domainerrors "github.com/rebalance-service/rebalance_service/internal/domain/errors"
	"github.com/rebalance-service/rebalance_service/internal/domain/services/eligibility"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/repositories/memory"
)

type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) ScheduleExecution(ctx context.Context, job entities.ExecutionJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockScheduler) ScheduleSignal(ctx context.Context, job entities.SignalJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// failingProfiles makes ListEnabled fail
type failingProfiles struct {
	*memory.ProfileStore
}

func (failingProfiles) ListEnabled(context.Context) ([]*entities.UserProfile, error) {
	return nil, errors.New("connection reset")
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedSignal(t *testing.T, store *memory.Store, signalType entities.SignalType) uuid.UUID {
	t.Helper()
	log := &entities.SignalLog{
		ID:         uuid.New(),
		SignalType: signalType,
		Status:     entities.SignalStatusReceived,
		Metadata:   json.RawMessage(`{}`),
	}
	require.NoError(t, store.SignalLogs().Create(context.Background(), log))
	return log.ID
}

func seedProfile(t *testing.T, store *memory.Store, owner string, mutate func(*entities.UserProfile)) {
	t.Helper()
	profile := entities.NewUserProfile(owner, now.Add(-48*time.Hour))
	if mutate != nil {
		mutate(profile)
	}
	require.NoError(t, store.Profiles().Create(context.Background(), profile))
}

func newDispatcher(store *memory.Store, scheduler ExecutionScheduler) *Dispatcher {
	logger := zap.NewNop()
	return NewDispatcher(
		store.SignalLogs(),
		store.Profiles(),
		store.Transactions(),
		eligibility.NewValidator(300*time.Second, logger),
		scheduler,
		logger,
	).WithClock(func() time.Time { return now })
}

func TestDispatch_SchedulesEligibleOwners(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	seedProfile(t, store, "owner-a", nil)
	seedProfile(t, store, "owner-b", func(p *entities.UserProfile) {
		last := now.Add(-60 * time.Second)
		p.LastExecution = &last
	})
	signalID := seedSignal(t, store, entities.SignalTypeSOLToUSDC)

	scheduler := new(MockScheduler)
	scheduler.On("ScheduleExecution", mock.Anything, entities.ExecutionJob{
		SignalID:   signalID,
		SignalType: entities.SignalTypeSOLToUSDC,
		Owner:      "owner-a",
	}).Return(nil).Once()

	scheduled, err := newDispatcher(store, scheduler).Dispatch(ctx, signalID, entities.SignalTypeSOLToUSDC)

	require.NoError(t, err)
	assert.Equal(t, 1, scheduled)
	scheduler.AssertExpectations(t)

	log, err := store.SignalLogs().GetByID(ctx, signalID)
	require.NoError(t, err)
	assert.Equal(t, entities.SignalStatusCompleted, log.Status)
	require.NotNil(t, log.AffectedUsers)
	assert.Equal(t, 1, *log.AffectedUsers)
	assert.NotNil(t, log.ProcessedAt)
}

func TestDispatch_SkipsDisabledAndLimitedOwners(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	seedProfile(t, store, "owner-disabled", func(p *entities.UserProfile) { p.Enabled = false })
	seedProfile(t, store, "owner-limited", func(p *entities.UserProfile) {
		limit := 1
		p.DailyLimit = &limit
	})
	seedProfile(t, store, "owner-ok", nil)

	// yesterday's execution does not count toward today's limit
	signalID := uuid.New()
	require.NoError(t, store.Transactions().Create(ctx, &entities.Transaction{
		Owner: "owner-limited", SignalID: &signalID, Date: now.Add(-time.Hour),
		Type: entities.SignalTypeSOLToUSDC, Status: entities.TransactionStatusConfirmed,
	}))
	yesterday := uuid.New()
	require.NoError(t, store.Transactions().Create(ctx, &entities.Transaction{
		Owner: "owner-ok", SignalID: &yesterday, Date: eligibility.StartOfDayUTC(now).Add(-time.Minute),
		Type: entities.SignalTypeSOLToUSDC, Status: entities.TransactionStatusConfirmed,
	}))

	id := seedSignal(t, store, entities.SignalTypeUSDCToSOL)
	scheduler := new(MockScheduler)
	scheduler.On("ScheduleExecution", mock.Anything, mock.MatchedBy(func(job entities.ExecutionJob) bool {
		return job.Owner == "owner-ok"
	})).Return(nil).Once()

	scheduled, err := newDispatcher(store, scheduler).Dispatch(ctx, id, entities.SignalTypeUSDCToSOL)

	require.NoError(t, err)
	assert.Equal(t, 1, scheduled)
	scheduler.AssertExpectations(t)
}

func TestDispatch_SchedulingFailureDoesNotStopBatch(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	seedProfile(t, store, "owner-a", nil)
	seedProfile(t, store, "owner-b", nil)
	seedProfile(t, store, "owner-c", nil)
	id := seedSignal(t, store, entities.SignalTypeSOLToUSDC)

	scheduler := new(MockScheduler)
	scheduler.On("ScheduleExecution", mock.Anything, mock.MatchedBy(func(job entities.ExecutionJob) bool {
		return job.Owner == "owner-b"
	})).Return(errors.New("redis unavailable"))
	scheduler.On("ScheduleExecution", mock.Anything, mock.Anything).Return(nil)

	scheduled, err := newDispatcher(store, scheduler).Dispatch(ctx, id, entities.SignalTypeSOLToUSDC)

	require.NoError(t, err)
	assert.Equal(t, 2, scheduled)
	scheduler.AssertNumberOfCalls(t, "ScheduleExecution", 3)

	log, err := store.SignalLogs().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, *log.AffectedUsers)
}

func TestDispatch_NoEnabledOwners(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	id := seedSignal(t, store, entities.SignalTypeSOLToUSDC)

	scheduled, err := newDispatcher(store, new(MockScheduler)).Dispatch(ctx, id, entities.SignalTypeSOLToUSDC)

	require.NoError(t, err)
	assert.Zero(t, scheduled)
	log, err := store.SignalLogs().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entities.SignalStatusCompleted, log.Status)
	assert.Equal(t, 0, *log.AffectedUsers)
}

func TestDispatch_BookkeepingFailure(t *testing.T) {
	t.Run("profile load failure marks the signal failed", func(t *testing.T) {
		store := memory.NewStore()
		ctx := context.Background()
		id := seedSignal(t, store, entities.SignalTypeSOLToUSDC)

		d := newDispatcher(store, new(MockScheduler))
		d.profiles = failingProfiles{store.Profiles()}

		_, err := d.Dispatch(ctx, id, entities.SignalTypeSOLToUSDC)

		require.Error(t, err)
		log, getErr := store.SignalLogs().GetByID(ctx, id)
		require.NoError(t, getErr)
		assert.Equal(t, entities.SignalStatusFailed, log.Status)
		require.NotNil(t, log.ErrorMessage)
		assert.Contains(t, *log.ErrorMessage, "connection reset")
	})

	t.Run("terminal signal is not redispatched", func(t *testing.T) {
		store := memory.NewStore()
		ctx := context.Background()
		seedProfile(t, store, "owner-a", nil)
		id := seedSignal(t, store, entities.SignalTypeSOLToUSDC)
		zero := 0
		require.NoError(t, store.SignalLogs().UpdateStatus(ctx, id, entities.SignalStatusCompleted, &zero, nil))

		scheduler := new(MockScheduler)
		_, err := newDispatcher(store, scheduler).Dispatch(ctx, id, entities.SignalTypeSOLToUSDC)

		assert.ErrorIs(t, err, domainerrors.ErrInvalidTransition)
		scheduler.AssertNotCalled(t, "ScheduleExecution", mock.Anything, mock.Anything)
	})
}
