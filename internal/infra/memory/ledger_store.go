package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vaibhav071104/vaultguard/internal/domain"
	"github.com/vaibhav071104/vaultguard/internal/port"

	"github.com/shopspring/decimal"
)

// LedgerStore is a thread-safe in-memory port.LedgerStore. Wallet mutations
// go through InTx, which stages changes and applies them only on commit, and
// holds one mutex per wallet so operations on the same wallet never
// interleave. Callers acquire wallet locks in ascending id order, which keeps
// opposite-direction transfers deadlock-free.
type LedgerStore struct {
	mu      sync.RWMutex
	wallets map[string]*domain.Wallet
	byUser  map[string]string
	txns    []*domain.Transaction
	txnByID map[string]*domain.Transaction

	lockMu      sync.Mutex
	walletLocks map[string]*sync.Mutex

	users *UserStore // owner filter for reporting queries; may be nil
}

// NewLedgerStore creates an empty in-memory ledger store. The user store is
// consulted by the reporting queries to exclude deleted or inactive owners.
func NewLedgerStore(users *UserStore) *LedgerStore {
	return &LedgerStore{
		wallets:     make(map[string]*domain.Wallet),
		byUser:      make(map[string]string),
		txnByID:     make(map[string]*domain.Transaction),
		walletLocks: make(map[string]*sync.Mutex),
		users:       users,
	}
}

func (s *LedgerStore) walletLock(walletID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	if _, ok := s.walletLocks[walletID]; !ok {
		s.walletLocks[walletID] = &sync.Mutex{}
	}
	return s.walletLocks[walletID]
}

func (s *LedgerStore) CreateWallet(_ context.Context, wallet *domain.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUser[wallet.UserID]; exists {
		return &domain.ErrConflict{Message: "wallet already exists for user " + wallet.UserID}
	}
	w := *wallet
	s.wallets[w.ID] = &w
	s.byUser[w.UserID] = w.ID
	return nil
}

func (s *LedgerStore) GetWalletByUser(_ context.Context, userID string) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUser[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "wallet", ID: userID}
	}
	copied := *s.wallets[id]
	return &copied, nil
}

func (s *LedgerStore) ListActiveHistory(_ context.Context, walletID string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeHistoryLocked(walletID), nil
}

func (s *LedgerStore) activeHistoryLocked(walletID string) []domain.Transaction {
	var history []domain.Transaction
	for _, txn := range s.txns {
		if txn.WalletID == walletID && !txn.Deleted {
			history = append(history, *txn)
		}
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})
	return history
}

// SoftDeleteTransaction flips the deleted flag. The balance effect of the
// record is not reversed.
func (s *LedgerStore) SoftDeleteTransaction(_ context.Context, txnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.txnByID[txnID]
	if !ok {
		return &domain.ErrNotFound{Resource: "transaction", ID: txnID}
	}
	txn.Deleted = true
	return nil
}

// ============================================================
// Transaction boundary
// ============================================================

// ledgerTx stages balance updates and appended records until commit.
type ledgerTx struct {
	store    *LedgerStore
	locked   []string
	balances map[string]decimal.Decimal
	appends  []domain.Transaction
}

// InTx runs fn with staged writes; on success the staged state is applied
// atomically, otherwise it is discarded. Wallet locks taken by
// GetWalletForUpdate are held until the transaction ends.
func (s *LedgerStore) InTx(_ context.Context, fn func(tx port.LedgerTx) error) error {
	tx := &ledgerTx{
		store:    s,
		balances: make(map[string]decimal.Decimal),
	}
	defer func() {
		for _, walletID := range tx.locked {
			s.walletLock(walletID).Unlock()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for walletID, balance := range tx.balances {
		s.wallets[walletID].Balance = balance
	}
	for i := range tx.appends {
		txn := tx.appends[i]
		s.txns = append(s.txns, &txn)
		s.txnByID[txn.ID] = &txn
	}
	return nil
}

func (t *ledgerTx) GetWalletForUpdate(_ context.Context, walletID string) (*domain.Wallet, error) {
	t.store.walletLock(walletID).Lock()
	t.locked = append(t.locked, walletID)

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	w, ok := t.store.wallets[walletID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "wallet", ID: walletID}
	}
	copied := *w
	if staged, ok := t.balances[walletID]; ok {
		copied.Balance = staged
	}
	return &copied, nil
}

func (t *ledgerTx) UpdateBalance(_ context.Context, walletID string, balance decimal.Decimal) error {
	t.balances[walletID] = balance
	return nil
}

func (t *ledgerTx) AppendTransaction(_ context.Context, txn *domain.Transaction) error {
	t.appends = append(t.appends, *txn)
	return nil
}

// ListActiveHistory returns committed records only; staged appends from the
// current transaction are invisible.
func (t *ledgerTx) ListActiveHistory(_ context.Context, walletID string) ([]domain.Transaction, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.activeHistoryLocked(walletID), nil
}

// ============================================================
// Reporting reads
// ============================================================

func (s *LedgerStore) ListFlaggedActive(_ context.Context) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var flagged []domain.Transaction
	for _, txn := range s.txns {
		if txn.Flagged && !txn.Deleted {
			flagged = append(flagged, *txn)
		}
	}
	return flagged, nil
}

func (s *LedgerStore) TotalActiveBalance(ctx context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, w := range s.wallets {
		if !s.ownerActive(ctx, w.UserID) {
			continue
		}
		total = total.Add(w.Balance)
	}
	return total, nil
}

func (s *LedgerStore) TopWallets(ctx context.Context, limit int) ([]domain.WalletBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []domain.WalletBalance
	for _, w := range s.wallets {
		if !s.ownerActive(ctx, w.UserID) {
			continue
		}
		username := ""
		if s.users != nil {
			if u, err := s.users.GetUserByID(ctx, w.UserID); err == nil {
				username = u.Username
			}
		}
		rows = append(rows, domain.WalletBalance{
			WalletID: w.ID,
			UserID:   w.UserID,
			Username: username,
			Balance:  w.Balance,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Balance.GreaterThan(rows[j].Balance)
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *LedgerStore) ownerActive(ctx context.Context, userID string) bool {
	if s.users == nil {
		return true
	}
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return false
	}
	return u.IsActive && !u.Deleted
}

var _ port.LedgerStore = (*LedgerStore)(nil)
var _ port.UserStore = (*UserStore)(nil)
