// Package memory holds in-process implementations of the domain repositories.
// All views of one Store share a single lock, so a settlement is atomic with
// respect to every other read and write.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
	"github.com/rebalance-service/rebalance_service/internal/domain/repositories"
)

// Store is the shared in-memory state
type Store struct {
	mu           sync.RWMutex
	profiles     map[string]*entities.UserProfile
	vaults       map[string]*entities.VaultBalance
	transactions map[uuid.UUID]*entities.Transaction
	signals      map[uuid.UUID]*entities.SignalLog
	now          func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		profiles:     make(map[string]*entities.UserProfile),
		vaults:       make(map[string]*entities.VaultBalance),
		transactions: make(map[uuid.UUID]*entities.Transaction),
		signals:      make(map[uuid.UUID]*entities.SignalLog),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Profiles returns the profile repository view
func (s *Store) Profiles() *ProfileStore { return &ProfileStore{s} }

// Vaults returns the vault repository view
func (s *Store) Vaults() *VaultStore { return &VaultStore{s} }

// Transactions returns the transaction repository view
func (s *Store) Transactions() *TransactionStore { return &TransactionStore{s} }

// SignalLogs returns the signal log repository view
func (s *Store) SignalLogs() *SignalLogStore { return &SignalLogStore{s} }

// Settlements returns the settlement repository view
func (s *Store) Settlements() *SettlementStore { return &SettlementStore{s} }

var (
	_ repositories.ProfileRepository     = (*ProfileStore)(nil)
	_ repositories.VaultRepository       = (*VaultStore)(nil)
	_ repositories.TransactionRepository = (*TransactionStore)(nil)
	_ repositories.SignalLogRepository   = (*SignalLogStore)(nil)
	_ repositories.SettlementRepository  = (*SettlementStore)(nil)
)

func copyProfile(p *entities.UserProfile) *entities.UserProfile {
	cp := *p
	if p.KeeperAllowlist != nil {
		cp.KeeperAllowlist = append([]string(nil), p.KeeperAllowlist...)
	}
	if p.DailyLimit != nil {
		limit := *p.DailyLimit
		cp.DailyLimit = &limit
	}
	if p.LastExecution != nil {
		last := *p.LastExecution
		cp.LastExecution = &last
	}
	return &cp
}

// ProfileStore implements repositories.ProfileRepository
type ProfileStore struct{ s *Store }

func (p *ProfileStore) GetByOwner(_ context.Context, owner string) (*entities.UserProfile, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	profile, ok := p.s.profiles[owner]
	if !ok {
		return nil, nil
	}
	return copyProfile(profile), nil
}

func (p *ProfileStore) Create(_ context.Context, profile *entities.UserProfile) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	if _, exists := p.s.profiles[profile.Owner]; exists {
		return fmt.Errorf("profile %s: %w", profile.Owner, errors.ErrAlreadyExists)
	}
	p.s.profiles[profile.Owner] = copyProfile(profile)
	return nil
}

func (p *ProfileStore) Update(_ context.Context, profile *entities.UserProfile) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	existing, ok := p.s.profiles[profile.Owner]
	if !ok {
		return errors.NotFoundError("PROFILE")
	}
	updated := copyProfile(profile)
	updated.LastExecution = existing.LastExecution
	updated.Nonce = existing.Nonce
	updated.CreatedAt = existing.CreatedAt
	p.s.profiles[profile.Owner] = updated
	return nil
}

func (p *ProfileStore) ListEnabled(_ context.Context) ([]*entities.UserProfile, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	var out []*entities.UserProfile
	for _, profile := range p.s.profiles {
		if profile.Enabled {
			out = append(out, copyProfile(profile))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out, nil
}

// VaultStore implements repositories.VaultRepository
type VaultStore struct{ s *Store }

func (v *VaultStore) GetByOwner(_ context.Context, owner string) (*entities.VaultBalance, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	vault, ok := v.s.vaults[owner]
	if !ok {
		return nil, nil
	}
	cp := *vault
	return &cp, nil
}

func (v *VaultStore) Create(_ context.Context, owner string) (*entities.VaultBalance, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	vault, ok := v.s.vaults[owner]
	if !ok {
		vault = &entities.VaultBalance{Owner: owner, UpdatedAt: v.s.now()}
		v.s.vaults[owner] = vault
	}
	cp := *vault
	return &cp, nil
}

func (v *VaultStore) Adjust(_ context.Context, owner string, asset entities.VaultAsset, delta int64) (*entities.VaultBalance, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if err := v.s.adjustLocked(owner, asset, delta); err != nil {
		return nil, err
	}
	cp := *v.s.vaults[owner]
	return &cp, nil
}

// Put replaces an owner's vault wholesale. Used to seed balances.
func (v *VaultStore) Put(vault *entities.VaultBalance) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	cp := *vault
	v.s.vaults[vault.Owner] = &cp
}

func (s *Store) adjustLocked(owner string, asset entities.VaultAsset, delta int64) error {
	vault, ok := s.vaults[owner]
	if !ok {
		if delta < 0 {
			return errors.ErrInsufficientBalance
		}
		return errors.NotFoundError("VAULT")
	}

	var field *int64
	switch asset {
	case entities.VaultAssetSOL:
		field = &vault.SOLBalance
	case entities.VaultAssetUSDC:
		field = &vault.USDCBalance
	case entities.VaultAssetFeePool:
		field = &vault.FeePoolBalance
	default:
		return errors.ValidationError("asset", fmt.Sprintf("unknown vault asset %q", asset))
	}

	if *field+delta < 0 {
		return errors.ErrInsufficientBalance
	}
	*field += delta
	vault.UpdatedAt = s.now()
	return nil
}

// TransactionStore implements repositories.TransactionRepository
type TransactionStore struct{ s *Store }

func (t *TransactionStore) Create(_ context.Context, tx *entities.Transaction) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = t.s.now()
	}
	if _, exists := t.s.transactions[tx.ID]; exists {
		return fmt.Errorf("transaction %s: %w", tx.ID, errors.ErrAlreadyExists)
	}
	if tx.SignalID != nil {
		for _, existing := range t.s.transactions {
			if existing.SignalID != nil && *existing.SignalID == *tx.SignalID && existing.Owner == tx.Owner {
				return fmt.Errorf("transaction for %s: %w", tx.Owner, errors.ErrAlreadyExists)
			}
		}
	}

	cp := *tx
	t.s.transactions[tx.ID] = &cp
	return nil
}

func (t *TransactionStore) GetByID(_ context.Context, id uuid.UUID) (*entities.Transaction, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	tx, ok := t.s.transactions[id]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

func (t *TransactionStore) GetBySignalAndOwner(_ context.Context, signalID uuid.UUID, owner string) (*entities.Transaction, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	for _, tx := range t.s.transactions {
		if tx.SignalID != nil && *tx.SignalID == signalID && tx.Owner == owner {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *TransactionStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	tx, ok := t.s.transactions[id]
	if !ok || tx.Status != entities.TransactionStatusPending {
		return fmt.Errorf("transaction %s is not pending: %w", id, errors.ErrInvalidTransition)
	}
	tx.Status = entities.TransactionStatusFailed
	tx.ErrorMessage = &reason
	return nil
}

func (t *TransactionStore) CountSince(_ context.Context, owner string, since time.Time) (int, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	count := 0
	for _, tx := range t.s.transactions {
		if tx.Owner == owner && !tx.Date.Before(since) {
			count++
		}
	}
	return count, nil
}

func (t *TransactionStore) List(_ context.Context, filter repositories.TransactionFilter) ([]*entities.Transaction, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var out []*entities.Transaction
	for _, tx := range t.s.transactions {
		if tx.Owner != filter.Owner {
			continue
		}
		if filter.Type != nil && tx.Type != *filter.Type {
			continue
		}
		if filter.Status != nil && tx.Status != *filter.Status {
			continue
		}
		if filter.Since != nil && tx.Date.Before(*filter.Since) {
			continue
		}
		cp := *tx
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })

	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (t *TransactionStore) FailStalePending(_ context.Context, olderThan time.Time, reason string) (int64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	var n int64
	for _, tx := range t.s.transactions {
		if tx.Status == entities.TransactionStatusPending && tx.Date.Before(olderThan) {
			tx.Status = entities.TransactionStatusFailed
			msg := reason
			tx.ErrorMessage = &msg
			n++
		}
	}
	return n, nil
}

// SignalLogStore implements repositories.SignalLogRepository
type SignalLogStore struct{ s *Store }

func (l *SignalLogStore) Create(_ context.Context, log *entities.SignalLog) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.ReceivedAt.IsZero() {
		log.ReceivedAt = l.s.now()
	}
	if _, exists := l.s.signals[log.ID]; exists {
		return fmt.Errorf("signal %s: %w", log.ID, errors.ErrAlreadyExists)
	}
	cp := *log
	l.s.signals[log.ID] = &cp
	return nil
}

func (l *SignalLogStore) GetByID(_ context.Context, id uuid.UUID) (*entities.SignalLog, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()

	log, ok := l.s.signals[id]
	if !ok {
		return nil, nil
	}
	cp := *log
	return &cp, nil
}

func (l *SignalLogStore) UpdateStatus(_ context.Context, id uuid.UUID, status entities.SignalStatus, affectedUsers *int, errorMessage *string) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	log, ok := l.s.signals[id]
	if !ok {
		return errors.NotFoundError("SIGNAL")
	}
	if log.Status.IsTerminal() {
		return fmt.Errorf("signal %s is %s: %w", id, log.Status, errors.ErrInvalidTransition)
	}

	log.Status = status
	if affectedUsers != nil {
		n := *affectedUsers
		log.AffectedUsers = &n
	}
	if errorMessage != nil {
		msg := *errorMessage
		log.ErrorMessage = &msg
	}
	if status.IsTerminal() {
		now := l.s.now()
		log.ProcessedAt = &now
	}
	return nil
}

func (l *SignalLogStore) ListRecent(_ context.Context, limit int) ([]*entities.SignalLog, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()

	out := make([]*entities.SignalLog, 0, len(l.s.signals))
	for _, log := range l.s.signals {
		cp := *log
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SettlementStore implements repositories.SettlementRepository
type SettlementStore struct{ s *Store }

func (st *SettlementStore) SettleExecution(_ context.Context, s entities.Settlement) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	tx, ok := st.s.transactions[s.TransactionID]
	if !ok || tx.Status != entities.TransactionStatusPending {
		return fmt.Errorf("transaction %s is not pending: %w", s.TransactionID, errors.ErrInvalidTransition)
	}
	profile, ok := st.s.profiles[s.Owner]
	if !ok {
		return errors.NotFoundError("PROFILE")
	}
	if profile.Nonce != s.ExpectedNonce {
		return errors.ErrNonceConflict
	}
	vault, ok := st.s.vaults[s.Owner]
	if !ok {
		return errors.NotFoundError("VAULT")
	}

	// stage on a copy so a failed step leaves nothing behind
	staged := *vault
	snapshot := st.s.vaults[s.Owner]
	st.s.vaults[s.Owner] = &staged
	if err := st.s.adjustLocked(s.Owner, s.InputAsset, -s.AmountIn); err != nil {
		st.s.vaults[s.Owner] = snapshot
		return err
	}
	if err := st.s.adjustLocked(s.Owner, s.OutputAsset, s.AmountOut); err != nil {
		st.s.vaults[s.Owner] = snapshot
		return err
	}

	tx.Status = entities.TransactionStatusConfirmed
	tx.AmountOut = s.AmountOut
	tx.Fee = s.Fee

	executedAt := s.ExecutedAt
	profile.LastExecution = &executedAt
	profile.Nonce++
	profile.UpdatedAt = st.s.now()
	return nil
}
