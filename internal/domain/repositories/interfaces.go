package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
)

// ProfileRepository persists user profiles. Lookups return (nil, nil) when no row exists.
type ProfileRepository interface {
	GetByOwner(ctx context.Context, owner string) (*entities.UserProfile, error)
	Create(ctx context.Context, profile *entities.UserProfile) error
	Update(ctx context.Context, profile *entities.UserProfile) error
	ListEnabled(ctx context.Context) ([]*entities.UserProfile, error)
}

// VaultRepository persists custodial balances. Adjust applies a relative delta;
// a debit that would go negative fails with ErrInsufficientBalance.
type VaultRepository interface {
	GetByOwner(ctx context.Context, owner string) (*entities.VaultBalance, error)
	Create(ctx context.Context, owner string) (*entities.VaultBalance, error)
	Adjust(ctx context.Context, owner string, asset entities.VaultAsset, delta int64) (*entities.VaultBalance, error)
}

// TransactionFilter narrows transaction history queries
type TransactionFilter struct {
	Owner  string
	Type   *entities.SignalType
	Status *entities.TransactionStatus
	Since  *time.Time
	Limit  int
	Offset int
}

// TransactionRepository persists swap audit records. Status moves only out of pending.
type TransactionRepository interface {
	Create(ctx context.Context, tx *entities.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Transaction, error)
	GetBySignalAndOwner(ctx context.Context, signalID uuid.UUID, owner string) (*entities.Transaction, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	CountSince(ctx context.Context, owner string, since time.Time) (int, error)
	List(ctx context.Context, filter TransactionFilter) ([]*entities.Transaction, error)
	FailStalePending(ctx context.Context, olderThan time.Time, reason string) (int64, error)
}

// SignalLogRepository persists received signals and their dispatch outcome
type SignalLogRepository interface {
	Create(ctx context.Context, log *entities.SignalLog) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.SignalLog, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status entities.SignalStatus, affectedUsers *int, errorMessage *string) error
	ListRecent(ctx context.Context, limit int) ([]*entities.SignalLog, error)
}

// SettlementRepository commits a successful swap: the transaction is confirmed,
// both balances move and the profile nonce advances, or nothing changes.
type SettlementRepository interface {
	SettleExecution(ctx context.Context, s entities.Settlement) error
}
