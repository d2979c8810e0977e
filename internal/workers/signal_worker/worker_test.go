package signal_worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/queue"
	"github.com/rebalance-service/rebalance_service/pkg/logger"
)

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, signalID uuid.UUID, signalType entities.SignalType) (int, error) {
	args := m.Called(ctx, signalID, signalType)
	return args.Int(0), args.Error(1)
}

type fakeSource struct {
	pending chan *queue.Delivery
	mu      sync.Mutex
	acked   []string
	acks    chan struct{}
}

func (s *fakeSource) Name() string { return "signals" }

func (s *fakeSource) Dequeue(ctx context.Context, wait time.Duration) (*queue.Delivery, error) {
	select {
	case d := <-s.pending:
		return d, nil
	case <-time.After(wait):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSource) Ack(_ context.Context, d *queue.Delivery) error {
	s.mu.Lock()
	s.acked = append(s.acked, d.ID)
	s.mu.Unlock()
	s.acks <- struct{}{}
	return nil
}

func TestWorker_DispatchesAndAcks(t *testing.T) {
	ok := entities.SignalJob{SignalID: uuid.New(), SignalType: entities.SignalTypeSOLToUSDC}
	failing := entities.SignalJob{SignalID: uuid.New(), SignalType: entities.SignalTypeUSDCToSOL}

	source := &fakeSource{pending: make(chan *queue.Delivery, 2), acks: make(chan struct{}, 2)}
	for id, job := range map[string]entities.SignalJob{"ok": ok, "failing": failing} {
		payload, err := json.Marshal(job)
		require.NoError(t, err)
		source.pending <- &queue.Delivery{Envelope: queue.Envelope{ID: id, TimeoutSeconds: 60, Payload: payload}}
	}

	dispatcher := new(MockDispatcher)
	dispatcher.On("Dispatch", mock.Anything, ok.SignalID, ok.SignalType).Return(2, nil).Once()
	dispatcher.On("Dispatch", mock.Anything, failing.SignalID, failing.SignalType).Return(0, errors.New("db down")).Once()

	w := NewWorker(Config{PollTimeout: 10 * time.Millisecond}, source, dispatcher, logger.NewLogger(zap.NewNop()))
	w.Start(context.Background())

	for i := 0; i < 2; i++ {
		select {
		case <-source.acks:
		case <-time.After(5 * time.Second):
			t.Fatal("signals were not acknowledged")
		}
	}
	require.NoError(t, w.Shutdown(time.Second))

	dispatcher.AssertExpectations(t)
	assert.ElementsMatch(t, []string{"ok", "failing"}, source.acked)
}
