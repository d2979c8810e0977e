package entities

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
)

// Token mints traded by the rebalancer
const (
	WSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// Smallest-unit conversion factors
const (
	LamportsPerSOL = 1_000_000_000
	USDCBaseUnits  = 1_000_000
)

// Profile defaults applied when a profile is created lazily
const (
	DefaultTradeSizeSOL   int64 = 2_500_000_000 // 2.5 SOL
	DefaultTradeSizeUSDC  int64 = 500_000_000   // 500 USDC
	DefaultMinFeePool     int64 = 50_000_000    // 0.05 SOL
	DefaultTargetFeePool  int64 = 150_000_000   // 0.15 SOL
	DefaultMaxSlippageBps       = 50
	DefaultProtocolFeeBps       = 10
	DefaultRelayerRefund  int64 = 5_000
	DefaultDailyLimit           = 10
)

// BpsDenominator is the number of basis points in one whole
const BpsDenominator = 10_000

// SignalType is the direction of a rebalancing signal
type SignalType string

const (
	SignalTypeSOLToUSDC SignalType = "SOL_TO_USDC"
	SignalTypeUSDCToSOL SignalType = "USDC_TO_SOL"
)

// Valid reports whether the signal type is one of the two supported directions
func (t SignalType) Valid() bool {
	return t == SignalTypeSOLToUSDC || t == SignalTypeUSDCToSOL
}

// SignalStatus is the lifecycle state of a SignalLog
type SignalStatus string

const (
	SignalStatusReceived   SignalStatus = "received"
	SignalStatusProcessing SignalStatus = "processing"
	SignalStatusCompleted  SignalStatus = "completed"
	SignalStatusFailed     SignalStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed
func (s SignalStatus) IsTerminal() bool {
	return s == SignalStatusCompleted || s == SignalStatusFailed
}

// TransactionStatus is the lifecycle state of a Transaction
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusConfirmed TransactionStatus = "confirmed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// UserProfile holds per-owner execution settings and bookkeeping
type UserProfile struct {
	Owner                 string         `json:"owner" db:"owner"`
	Enabled               bool           `json:"enabled" db:"enabled"`
	TradeSizeSOL          int64          `json:"trade_size_sol" db:"trade_size_sol"`
	TradeSizeUSDC         int64          `json:"trade_size_usdc" db:"trade_size_usdc"`
	MinFeePool            int64          `json:"min_fee_pool" db:"min_fee_pool"`
	TargetFeePool         int64          `json:"target_fee_pool" db:"target_fee_pool"`
	MaxSlippageBps        int            `json:"max_slippage_bps" db:"max_slippage_bps"`
	ProtocolFeeBps        int            `json:"protocol_fee_bps" db:"protocol_fee_bps"`
	RelayerRefundLamports int64          `json:"relayer_refund_lamports" db:"relayer_refund_lamports"`
	KeeperAllowlist       pq.StringArray `json:"keeper_allowlist,omitempty" db:"keeper_allowlist"`
	DailyLimit            *int           `json:"daily_limit,omitempty" db:"daily_limit"`
	LastExecution         *time.Time     `json:"last_execution,omitempty" db:"last_execution"`
	Nonce                 int64          `json:"nonce" db:"nonce"`
	CreatedAt             time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at" db:"updated_at"`
}

// NewUserProfile returns a profile populated with the default settings
func NewUserProfile(owner string, now time.Time) *UserProfile {
	limit := DefaultDailyLimit
	return &UserProfile{
		Owner:                 owner,
		Enabled:               true,
		TradeSizeSOL:          DefaultTradeSizeSOL,
		TradeSizeUSDC:         DefaultTradeSizeUSDC,
		MinFeePool:            DefaultMinFeePool,
		TargetFeePool:         DefaultTargetFeePool,
		MaxSlippageBps:        DefaultMaxSlippageBps,
		ProtocolFeeBps:        DefaultProtocolFeeBps,
		RelayerRefundLamports: DefaultRelayerRefund,
		DailyLimit:            &limit,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// VaultBalance holds an owner's custodial balances in smallest units
type VaultBalance struct {
	Owner          string    `json:"owner" db:"owner"`
	SOLBalance     int64     `json:"sol_balance" db:"sol_balance"`
	USDCBalance    int64     `json:"usdc_balance" db:"usdc_balance"`
	FeePoolBalance int64     `json:"fee_pool_balance" db:"fee_pool_balance"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// BalanceOf returns the balance held for the given mint
func (v *VaultBalance) BalanceOf(mint string) int64 {
	switch mint {
	case WSOLMint:
		return v.SOLBalance
	case USDCMint:
		return v.USDCBalance
	}
	return 0
}

// Transaction is the audit record of one swap attempt
type Transaction struct {
	ID           uuid.UUID         `json:"id" db:"id"`
	Owner        string            `json:"owner" db:"owner"`
	SignalID     *uuid.UUID        `json:"signal_id,omitempty" db:"signal_id"`
	Date         time.Time         `json:"date" db:"date"`
	Type         SignalType        `json:"type" db:"type"`
	AmountIn     int64             `json:"amount_in" db:"amount_in"`
	AmountOut    int64             `json:"amount_out" db:"amount_out"`
	TokenIn      string            `json:"token_in" db:"token_in"`
	TokenOut     string            `json:"token_out" db:"token_out"`
	SlippageBps  int               `json:"slippage_bps" db:"slippage_bps"`
	Fee          int64             `json:"fee" db:"fee"`
	Status       TransactionStatus `json:"status" db:"status"`
	Signature    *string           `json:"signature,omitempty" db:"signature"`
	ErrorMessage *string           `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}

// SignalLog records the receipt and dispatch of one external signal
type SignalLog struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	SignalType    SignalType      `json:"signal_type" db:"signal_type"`
	Status        SignalStatus    `json:"status" db:"status"`
	ReceivedAt    time.Time       `json:"received_at" db:"received_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
	AffectedUsers *int            `json:"affected_users,omitempty" db:"affected_users"`
	ErrorMessage  *string         `json:"error_message,omitempty" db:"error_message"`
	Metadata      json.RawMessage `json:"metadata,omitempty" db:"metadata"`
}

// SignalJob is the queued unit of work for the dispatcher
type SignalJob struct {
	SignalID   uuid.UUID  `json:"signal_id"`
	SignalType SignalType `json:"signal_type"`
}

// ExecutionJob is the queued unit of work for one owner's swap
type ExecutionJob struct {
	SignalID   uuid.UUID  `json:"signal_id"`
	SignalType SignalType `json:"signal_type"`
	Owner      string     `json:"owner"`
}

// SwapDirection resolves the mints and trade size for a signal
type SwapDirection struct {
	InputMint  string
	OutputMint string
	Amount     int64
}

// ResolveDirection maps a signal type onto the profile's trade parameters.
// ok is false for an unknown signal type.
func ResolveDirection(signalType SignalType, profile *UserProfile) (SwapDirection, bool) {
	switch signalType {
	case SignalTypeSOLToUSDC:
		return SwapDirection{InputMint: WSOLMint, OutputMint: USDCMint, Amount: profile.TradeSizeSOL}, true
	case SignalTypeUSDCToSOL:
		return SwapDirection{InputMint: USDCMint, OutputMint: WSOLMint, Amount: profile.TradeSizeUSDC}, true
	}
	return SwapDirection{}, false
}

// ProtocolFee returns amountOut * feeBps / 10000, floored
func ProtocolFee(amountOut int64, feeBps int) int64 {
	return decimal.NewFromInt(amountOut).
		Mul(decimal.NewFromInt(int64(feeBps))).
		Div(decimal.NewFromInt(BpsDenominator)).
		Floor().
		IntPart()
}

// LamportsToSOL converts lamports to a human SOL amount
func LamportsToSOL(lamports int64) decimal.Decimal {
	return decimal.New(lamports, -9)
}

var (
	maxUnits = decimal.NewFromInt(math.MaxInt64)
	minUnits = decimal.NewFromInt(math.MinInt64)
)

// toBaseUnits shifts amount by decimals places and truncates extra precision.
// Results outside int64 fail with errors.ErrAmountOutOfRange.
func toBaseUnits(amount decimal.Decimal, decimals int32) (int64, error) {
	units := amount.Shift(decimals).Truncate(0)
	if units.GreaterThan(maxUnits) || units.LessThan(minUnits) {
		return 0, fmt.Errorf("%w: %s", errors.ErrAmountOutOfRange, amount.String())
	}
	return units.IntPart(), nil
}

// SOLToLamports converts a human SOL amount to lamports, truncating extra precision
func SOLToLamports(sol decimal.Decimal) (int64, error) {
	return toBaseUnits(sol, 9)
}

// USDCToHuman converts USDC base units to a human amount
func USDCToHuman(base int64) decimal.Decimal {
	return decimal.New(base, -6)
}

// HumanToUSDC converts a human USDC amount to base units, truncating extra precision
func HumanToUSDC(usdc decimal.Decimal) (int64, error) {
	return toBaseUnits(usdc, 6)
}

// VaultAsset names one of the three balances held in a vault
type VaultAsset string

const (
	VaultAssetSOL     VaultAsset = "sol"
	VaultAssetUSDC    VaultAsset = "usdc"
	VaultAssetFeePool VaultAsset = "fee"
)

// Valid reports whether the asset is a known vault column
func (a VaultAsset) Valid() bool {
	return a == VaultAssetSOL || a == VaultAssetUSDC || a == VaultAssetFeePool
}

// AssetForMint maps a traded mint onto its vault balance
func AssetForMint(mint string) (VaultAsset, bool) {
	switch mint {
	case WSOLMint:
		return VaultAssetSOL, true
	case USDCMint:
		return VaultAssetUSDC, true
	}
	return "", false
}

// Settlement is everything committed atomically when a swap succeeds
type Settlement struct {
	TransactionID uuid.UUID
	Owner         string
	InputAsset    VaultAsset
	OutputAsset   VaultAsset
	AmountIn      int64
	AmountOut     int64
	Fee           int64
	ExpectedNonce int64
	ExecutedAt    time.Time
}

// FeePoolStatus classifies the fee pool against the profile thresholds
type FeePoolStatus string

const (
	FeePoolHealthy  FeePoolStatus = "healthy"
	FeePoolLow      FeePoolStatus = "low"
	FeePoolCritical FeePoolStatus = "critical"
)

// ClassifyFeePool returns healthy at or above target, low at or above min, critical below
func ClassifyFeePool(balance, minPool, targetPool int64) FeePoolStatus {
	switch {
	case balance >= targetPool:
		return FeePoolHealthy
	case balance >= minPool:
		return FeePoolLow
	}
	return FeePoolCritical
}
