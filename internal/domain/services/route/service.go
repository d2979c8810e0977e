package route

import (
	"context"
	"math/big"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/adapters/jupiter"
	"github.com/rebalance-service/rebalance_service/pkg/tracing"
)

// Service obtains and checks swap routes from the aggregator. Each call is a
// new upstream request; retries belong to the caller.
type Service struct {
	api    jupiter.SwapAPI
	logger *zap.Logger
}

// NewService creates a new route service
func NewService(api jupiter.SwapAPI, logger *zap.Logger) *Service {
	return &Service{api: api, logger: logger}
}

// GetQuote requests a route for swapping amount of inputMint into outputMint
func (s *Service) GetQuote(ctx context.Context, inputMint, outputMint string, amount int64, slippageBps int) (quote *jupiter.QuoteResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, "route.GetQuote",
		attribute.String("input_mint", inputMint),
		attribute.String("output_mint", outputMint),
		attribute.Int64("amount", amount))
	defer func() { tracing.EndSpan(span, err) }()

	return s.api.Quote(ctx, jupiter.QuoteRequest{
		InputMint:   inputMint,
		OutputMint:  outputMint,
		Amount:      amount,
		SlippageBps: slippageBps,
	})
}

// ValidateRoute checks the quote's implied slippage, floor((out-threshold)*10000/out),
// against maxSlippageBps. A zero output is rejected with (false, nil); slippage above
// the bound returns *SlippageExceededError.
func (s *Service) ValidateRoute(quote *jupiter.QuoteResponse, maxSlippageBps int) (bool, error) {
	return ValidateRoute(quote, maxSlippageBps, s.logger)
}

// ValidateRoute is the pure form of Service.ValidateRoute
func ValidateRoute(quote *jupiter.QuoteResponse, maxSlippageBps int, logger *zap.Logger) (bool, error) {
	out, err := quote.OutAmountInt()
	if err != nil {
		return false, &errors.UpstreamError{Op: "quote", Err: err}
	}
	threshold, err := quote.ThresholdInt()
	if err != nil {
		return false, &errors.UpstreamError{Op: "quote", Err: err}
	}

	if out == 0 {
		return false, nil
	}

	actual := SlippageBps(out, threshold)
	if actual > int64(maxSlippageBps) {
		if logger != nil {
			logger.Warn("Route slippage exceeds max",
				zap.Int64("actual_bps", actual),
				zap.Int("max_bps", maxSlippageBps))
		}
		return false, &errors.SlippageExceededError{ActualBps: actual, MaxBps: maxSlippageBps}
	}

	return true, nil
}

// SlippageBps returns floor((out-threshold)*10000/out) for out > 0
func SlippageBps(out, threshold int64) int64 {
	diff := new(big.Int).Sub(big.NewInt(out), big.NewInt(threshold))
	diff.Mul(diff, big.NewInt(entities.BpsDenominator))
	q := new(big.Int)
	q.Div(diff, big.NewInt(out)) // Euclidean division floors for a positive divisor
	return q.Int64()
}

// BuildSwap asks the aggregator for the swap transaction of a validated quote
func (s *Service) BuildSwap(ctx context.Context, quote *jupiter.QuoteResponse, userPublicKey string) (swap *jupiter.SwapResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, "route.BuildSwap", attribute.String("owner", userPublicKey))
	defer func() { tracing.EndSpan(span, err) }()

	return s.api.Swap(ctx, jupiter.SwapRequest{
		QuoteResponse:    quote,
		UserPublicKey:    userPublicKey,
		WrapAndUnwrapSol: true,
	})
}

// Close releases the aggregator client's connections
func (s *Service) Close() {
	s.api.Close()
}
