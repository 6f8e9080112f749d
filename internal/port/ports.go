// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/vaibhav071104/vaultguard/internal/domain"

	"github.com/shopspring/decimal"
)

// LedgerTx is the transactional view of the ledger store. Everything invoked
// through it commits together or not at all; GetWalletForUpdate holds an
// exclusive lock on the wallet row until the transaction ends.
type LedgerTx interface {
	GetWalletForUpdate(ctx context.Context, walletID string) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, walletID string, balance decimal.Decimal) error
	AppendTransaction(ctx context.Context, txn *domain.Transaction) error

	// ListActiveHistory returns committed, non-deleted records for the wallet,
	// ordered by timestamp ascending. It never includes records staged in the
	// current transaction.
	ListActiveHistory(ctx context.Context, walletID string) ([]domain.Transaction, error)
}

// LedgerStore is the durable storage contract for wallets and transactions.
// Implemented by the Postgres adapter and an in-memory adapter for tests.
type LedgerStore interface {
	// InTx runs fn inside one durable transaction boundary and commits iff fn
	// returns nil. Lock contention beyond policy surfaces as
	// domain.ErrConcurrencyConflict.
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error

	CreateWallet(ctx context.Context, wallet *domain.Wallet) error
	GetWalletByUser(ctx context.Context, userID string) (*domain.Wallet, error)
	ListActiveHistory(ctx context.Context, walletID string) ([]domain.Transaction, error)
	SoftDeleteTransaction(ctx context.Context, txnID string) error

	// Reporting reads (no write side effects).
	ListFlaggedActive(ctx context.Context) ([]domain.Transaction, error)
	TotalActiveBalance(ctx context.Context) (decimal.Decimal, error)
	TopWallets(ctx context.Context, limit int) ([]domain.WalletBalance, error)
}

// UserStore holds account owners.
type UserStore interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	SoftDeleteUser(ctx context.Context, id string) error
}

// AlertSink receives flagged-transaction notifications. Fire-and-forget: a
// failed Notify never rolls back the operation that triggered it.
type AlertSink interface {
	Notify(ctx context.Context, recipient, subject, body string) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
