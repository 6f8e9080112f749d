package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Wallets
// ============================================================

// Wallet is the balance-holding account owned by a user (1:1).
// Balances use decimal arithmetic; the invariant balance >= 0 holds after
// every committed operation.
type Wallet struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// ============================================================
// Transactions
// ============================================================

// TransactionKind enumerates the balance-affecting operations.
type TransactionKind string

const (
	KindDeposit  TransactionKind = "deposit"
	KindWithdraw TransactionKind = "withdraw"
	KindTransfer TransactionKind = "transfer"
)

// Transaction is an append-only record of one balance-affecting event.
// Records are never mutated after commit except for the Deleted flag, and
// soft-deleting a record never reverses its balance effect.
type Transaction struct {
	ID             string          `json:"id"`
	WalletID       string          `json:"wallet_id"`
	Kind           TransactionKind `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	Timestamp      time.Time       `json:"timestamp"`
	TargetWalletID string          `json:"target_wallet_id,omitempty"` // transfers only
	Flagged        bool            `json:"flagged"`
	FlagReason     string          `json:"flag_reason,omitempty"`
	Deleted        bool            `json:"-"`
}
