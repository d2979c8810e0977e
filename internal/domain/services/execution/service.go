package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	domainerrors "github.com/rebalance-service/rebalance_service/internal/domain/errors"
	"github.com/rebalance-service/rebalance_service/internal/domain/repositories"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/adapters/jupiter"
	"github.com/rebalance-service/rebalance_service/pkg/metrics"
	"github.com/rebalance-service/rebalance_service/pkg/retry"
	"github.com/rebalance-service/rebalance_service/pkg/tracing"
)

// Router obtains, checks and builds aggregator routes
type Router interface {
	GetQuote(ctx context.Context, inputMint, outputMint string, amount int64, slippageBps int) (*jupiter.QuoteResponse, error)
	ValidateRoute(quote *jupiter.QuoteResponse, maxSlippageBps int) (bool, error)
	BuildSwap(ctx context.Context, quote *jupiter.QuoteResponse, userPublicKey string) (*jupiter.SwapResponse, error)
}

// OwnerLocker serializes work per owner. Lock fails with ErrOwnerBusy when the
// owner is held elsewhere for longer than the locker is willing to wait.
type OwnerLocker interface {
	Lock(ctx context.Context, owner string) (unlock func(), err error)
}

// Outcome is the terminal result of one execution task
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// SkipReason explains a task that ended without touching any balance
type SkipReason string

const (
	SkipDuplicate           SkipReason = "duplicate"
	SkipInsufficientBalance SkipReason = "insufficient_balance"
)

// Result describes what an execution task did
type Result struct {
	Outcome     Outcome
	SkipReason  SkipReason
	Transaction *entities.Transaction
}

// Event reports a settled or failed swap to outside listeners
type Event struct {
	TransactionID uuid.UUID           `json:"transaction_id"`
	SignalID      uuid.UUID           `json:"signal_id"`
	Owner         string              `json:"owner"`
	SignalType    entities.SignalType `json:"signal_type"`
	Outcome       Outcome             `json:"outcome"`
	AmountIn      int64               `json:"amount_in"`
	AmountOut     int64               `json:"amount_out"`
	Fee           int64               `json:"fee"`
	Error         string              `json:"error,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// EventPublisher receives execution events. Publishing is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

// Config holds execution task tuning
type Config struct {
	CallTimeout time.Duration
}

// Service runs a single owner's swap for a signal
type Service struct {
	profiles     repositories.ProfileRepository
	vaults       repositories.VaultRepository
	transactions repositories.TransactionRepository
	settlements  repositories.SettlementRepository
	router       Router
	retrier      *retry.Retrier
	locker       OwnerLocker
	publisher    EventPublisher
	config       Config
	now          func() time.Time
	logger       *zap.Logger
}

// NewService creates a new execution service
func NewService(
	profiles repositories.ProfileRepository,
	vaults repositories.VaultRepository,
	transactions repositories.TransactionRepository,
	settlements repositories.SettlementRepository,
	router Router,
	retrier *retry.Retrier,
	locker OwnerLocker,
	config Config,
	logger *zap.Logger,
) *Service {
	if config.CallTimeout <= 0 {
		config.CallTimeout = 30 * time.Second
	}
	return &Service{
		profiles:     profiles,
		vaults:       vaults,
		transactions: transactions,
		settlements:  settlements,
		router:       router,
		retrier:      retrier,
		locker:       locker,
		publisher:    nopPublisher{},
		config:       config,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

// WithClock replaces the service clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithPublisher sets where confirmed and failed outcomes are announced
func (s *Service) WithPublisher(p EventPublisher) *Service {
	s.publisher = p
	return s
}

// Execute runs the swap for job.Owner. A skip returns a result and a nil
// error; a swap failure returns the failed record together with the cause.
func (s *Service) Execute(ctx context.Context, job entities.ExecutionJob) (result *Result, err error) {
	started := time.Now()
	ctx, span := tracing.StartSpan(ctx, "execution.Execute",
		attribute.String("owner", job.Owner),
		attribute.String("signal_id", job.SignalID.String()),
		attribute.String("signal_type", string(job.SignalType)))
	defer func() {
		tracing.EndSpan(span, err)
		outcome := string(OutcomeFailed)
		if result != nil {
			outcome = string(result.Outcome)
			if result.Outcome == OutcomeSkipped {
				outcome = "skipped_" + string(result.SkipReason)
			}
		}
		metrics.RecordExecution(string(job.SignalType), outcome, started)
	}()

	log := s.logger.With(
		zap.String("owner", job.Owner),
		zap.String("signal_id", job.SignalID.String()),
		zap.String("signal_type", string(job.SignalType)))

	unlock, err := s.locker.Lock(ctx, job.Owner)
	if err != nil {
		return nil, err
	}
	defer unlock()

	profile, err := s.profiles.GetByOwner(ctx, job.Owner)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	vault, err := s.vaults.GetByOwner(ctx, job.Owner)
	if err != nil {
		return nil, fmt.Errorf("load vault: %w", err)
	}
	if profile == nil || vault == nil {
		log.Error("Profile or vault missing for scheduled owner",
			zap.Bool("profile_found", profile != nil),
			zap.Bool("vault_found", vault != nil))
		return nil, domainerrors.ErrDataIntegrity
	}

	direction, ok := entities.ResolveDirection(job.SignalType, profile)
	if !ok {
		log.Error("Unknown signal type")
		return nil, domainerrors.ErrInvalidSignalType
	}
	inputAsset, _ := entities.AssetForMint(direction.InputMint)
	outputAsset, _ := entities.AssetForMint(direction.OutputMint)

	existing, err := s.transactions.GetBySignalAndOwner(ctx, job.SignalID, job.Owner)
	if err != nil {
		return nil, fmt.Errorf("check existing transaction: %w", err)
	}
	if existing != nil {
		log.Info("Transaction already recorded for signal, skipping",
			zap.String("transaction_id", existing.ID.String()),
			zap.String("status", string(existing.Status)))
		return &Result{Outcome: OutcomeSkipped, SkipReason: SkipDuplicate, Transaction: existing}, nil
	}

	if balance := vault.BalanceOf(direction.InputMint); balance < direction.Amount {
		log.Warn("Insufficient balance, skipping",
			zap.Int64("balance", balance),
			zap.Int64("required", direction.Amount))
		return &Result{Outcome: OutcomeSkipped, SkipReason: SkipInsufficientBalance}, nil
	}

	signalID := job.SignalID
	tx := &entities.Transaction{
		Owner:       job.Owner,
		SignalID:    &signalID,
		Date:        s.now(),
		Type:        job.SignalType,
		AmountIn:    direction.Amount,
		AmountOut:   0,
		TokenIn:     direction.InputMint,
		TokenOut:    direction.OutputMint,
		SlippageBps: profile.MaxSlippageBps,
		Status:      entities.TransactionStatusPending,
	}
	if err := s.transactions.Create(ctx, tx); err != nil {
		if domainerrors.IsAlreadyExists(err) {
			log.Info("Concurrent delivery recorded the transaction first, skipping")
			return &Result{Outcome: OutcomeSkipped, SkipReason: SkipDuplicate}, nil
		}
		return nil, fmt.Errorf("create pending transaction: %w", err)
	}

	amountOut, err := s.swap(ctx, profile, direction)
	if err == nil {
		err = s.settle(ctx, tx, profile, inputAsset, outputAsset, amountOut)
	}
	if err != nil {
		s.fail(ctx, log, tx, err)
		s.publish(ctx, log, tx, OutcomeFailed, err)
		return &Result{Outcome: OutcomeFailed, Transaction: tx}, err
	}

	log.Info("Execution confirmed",
		zap.String("transaction_id", tx.ID.String()),
		zap.Int64("amount_in", tx.AmountIn),
		zap.Int64("amount_out", tx.AmountOut),
		zap.Int64("fee", tx.Fee))
	s.publish(ctx, log, tx, OutcomeConfirmed, nil)
	return &Result{Outcome: OutcomeConfirmed, Transaction: tx}, nil
}

func (s *Service) publish(ctx context.Context, log *zap.Logger, tx *entities.Transaction, outcome Outcome, cause error) {
	event := Event{
		TransactionID: tx.ID,
		Owner:         tx.Owner,
		SignalType:    tx.Type,
		Outcome:       outcome,
		AmountIn:      tx.AmountIn,
		AmountOut:     tx.AmountOut,
		Fee:           tx.Fee,
		OccurredAt:    s.now(),
	}
	if tx.SignalID != nil {
		event.SignalID = *tx.SignalID
	}
	if cause != nil {
		event.Error = cause.Error()
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.CallTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, event); err != nil {
		log.Warn("Failed to publish execution event",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err))
	}
}

// swap quotes, validates and builds the route, returning the quoted output amount
func (s *Service) swap(ctx context.Context, profile *entities.UserProfile, direction entities.SwapDirection) (int64, error) {
	quote, err := retry.DoWithResult(ctx, s.retrier.Named("get_quote"), func(ctx context.Context) (*jupiter.QuoteResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
		defer cancel()
		return s.router.GetQuote(callCtx, direction.InputMint, direction.OutputMint, direction.Amount, profile.MaxSlippageBps)
	})
	if err != nil {
		return 0, err
	}

	valid, err := s.router.ValidateRoute(quote, profile.MaxSlippageBps)
	if err != nil {
		return 0, err
	}
	if !valid {
		return 0, &domainerrors.UpstreamError{Op: "quote", Err: errors.New("route has zero output")}
	}

	_, err = retry.DoWithResult(ctx, s.retrier.Named("build_swap"), func(ctx context.Context) (*jupiter.SwapResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
		defer cancel()
		return s.router.BuildSwap(callCtx, quote, profile.Owner)
	})
	if err != nil {
		return 0, err
	}

	return quote.OutAmountInt()
}

func (s *Service) settle(ctx context.Context, tx *entities.Transaction, profile *entities.UserProfile, in, out entities.VaultAsset, amountOut int64) error {
	fee := entities.ProtocolFee(amountOut, profile.ProtocolFeeBps)
	executedAt := s.now()

	err := s.settlements.SettleExecution(ctx, entities.Settlement{
		TransactionID: tx.ID,
		Owner:         tx.Owner,
		InputAsset:    in,
		OutputAsset:   out,
		AmountIn:      tx.AmountIn,
		AmountOut:     amountOut,
		Fee:           fee,
		ExpectedNonce: profile.Nonce,
		ExecutedAt:    executedAt,
	})
	if err != nil {
		return fmt.Errorf("settle execution: %w", err)
	}

	tx.Status = entities.TransactionStatusConfirmed
	tx.AmountOut = amountOut
	tx.Fee = fee
	return nil
}

// fail records the cause on the pending transaction. It runs detached from the
// job context so an expired deadline still closes the record.
func (s *Service) fail(ctx context.Context, log *zap.Logger, tx *entities.Transaction, cause error) {
	log.Error("Execution failed",
		zap.String("transaction_id", tx.ID.String()),
		zap.Error(cause))

	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.CallTimeout)
	defer cancel()

	if err := s.transactions.MarkFailed(markCtx, tx.ID, cause.Error()); err != nil {
		log.Error("Failed to mark transaction failed",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err))
		return
	}
	msg := cause.Error()
	tx.Status = entities.TransactionStatusFailed
	tx.ErrorMessage = &msg
}
