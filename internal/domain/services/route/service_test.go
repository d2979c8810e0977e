package route

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	domainerrors "github.com/rebalance-service/rebalance_service/internal/domain/errors"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/adapters/jupiter"
)

type MockSwapAPI struct {
	mock.Mock
}

func (m *MockSwapAPI) Quote(ctx context.Context, req jupiter.QuoteRequest) (*jupiter.QuoteResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jupiter.QuoteResponse), args.Error(1)
}

func (m *MockSwapAPI) Swap(ctx context.Context, req jupiter.SwapRequest) (*jupiter.SwapResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jupiter.SwapResponse), args.Error(1)
}

func (m *MockSwapAPI) Close() {
	m.Called()
}

func quote(out, threshold string) *jupiter.QuoteResponse {
	return &jupiter.QuoteResponse{
		InputMint:            entities.WSOLMint,
		InAmount:             "2500000000",
		OutputMint:           entities.USDCMint,
		OutAmount:            out,
		OtherAmountThreshold: threshold,
		SwapMode:             "ExactIn",
		SlippageBps:          50,
		PriceImpactPct:       "0",
	}
}

func TestValidateRoute(t *testing.T) {
	svc := NewService(&MockSwapAPI{}, zap.NewNop())

	t.Run("zero output is rejected without error", func(t *testing.T) {
		ok, err := svc.ValidateRoute(quote("0", "0"), 50)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("slippage above max", func(t *testing.T) {
		ok, err := svc.ValidateRoute(quote("1000000", "900000"), 50)

		assert.False(t, ok)
		var slippage *domainerrors.SlippageExceededError
		require.ErrorAs(t, err, &slippage)
		assert.Equal(t, int64(1000), slippage.ActualBps)
		assert.Equal(t, 50, slippage.MaxBps)
	})

	t.Run("slippage within max", func(t *testing.T) {
		ok, err := svc.ValidateRoute(quote("370000000", "368150000"), 50)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("slippage exactly at max", func(t *testing.T) {
		ok, err := svc.ValidateRoute(quote("1000000", "995000"), 50)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("threshold above output", func(t *testing.T) {
		ok, err := svc.ValidateRoute(quote("1000", "1001"), 0)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unparseable amount", func(t *testing.T) {
		_, err := svc.ValidateRoute(quote("abc", "1"), 50)
		var upstream *domainerrors.UpstreamError
		assert.ErrorAs(t, err, &upstream)
	})

	t.Run("is pure", func(t *testing.T) {
		q := quote("370000000", "368150000")
		for i := 0; i < 3; i++ {
			ok, err := ValidateRoute(q, 50, nil)
			require.NoError(t, err)
			assert.True(t, ok)
		}
		assert.Equal(t, "370000000", q.OutAmount)
	})
}

func TestSlippageBps(t *testing.T) {
	assert.Equal(t, int64(50), SlippageBps(370_000_000, 368_150_000))
	assert.Equal(t, int64(1000), SlippageBps(1_000_000, 900_000))
	assert.Equal(t, int64(33), SlippageBps(3000, 2990)) // 33.33 floors
	assert.Equal(t, int64(-10), SlippageBps(1000, 1001))
	assert.Equal(t, int64(100), SlippageBps(9_000_000_000_000_000_000, 8_910_000_000_000_000_000))
}

func TestGetQuoteAndBuildSwap(t *testing.T) {
	api := &MockSwapAPI{}
	svc := NewService(api, zap.NewNop())
	q := quote("370000000", "368150000")

	api.On("Quote", mock.Anything, jupiter.QuoteRequest{
		InputMint: entities.WSOLMint, OutputMint: entities.USDCMint, Amount: 2_500_000_000, SlippageBps: 50,
	}).Return(q, nil)
	api.On("Swap", mock.Anything, jupiter.SwapRequest{
		QuoteResponse: q, UserPublicKey: "owner", WrapAndUnwrapSol: true,
	}).Return(&jupiter.SwapResponse{SwapTransaction: "tx"}, nil)

	got, err := svc.GetQuote(context.Background(), entities.WSOLMint, entities.USDCMint, 2_500_000_000, 50)
	require.NoError(t, err)
	assert.Same(t, q, got)

	swap, err := svc.BuildSwap(context.Background(), got, "owner")
	require.NoError(t, err)
	assert.Equal(t, "tx", swap.SwapTransaction)

	api.AssertExpectations(t)
}

func TestGetQuotePropagatesUpstreamError(t *testing.T) {
	api := &MockSwapAPI{}
	svc := NewService(api, zap.NewNop())
	upstream := &domainerrors.UpstreamError{Op: "quote", StatusCode: 500}
	api.On("Quote", mock.Anything, mock.Anything).Return(nil, upstream)

	_, err := svc.GetQuote(context.Background(), entities.USDCMint, entities.WSOLMint, 1, 50)
	assert.True(t, errors.Is(err, upstream))
}
