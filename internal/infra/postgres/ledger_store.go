package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/vaibhav071104/vaultguard/internal/domain"
	"github.com/vaibhav071104/vaultguard/internal/port"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerStore implements port.LedgerStore on PostgreSQL.
type LedgerStore struct {
	pool        *pgxpool.Pool
	lockTimeout string // e.g. "3000ms", applied per transaction
	logger      *zap.Logger
}

// NewLedgerStore creates a Postgres-backed ledger store.
func NewLedgerStore(pool *pgxpool.Pool, lockTimeoutMillis int64, logger *zap.Logger) *LedgerStore {
	return &LedgerStore{
		pool:        pool,
		lockTimeout: fmt.Sprintf("%dms", lockTimeoutMillis),
		logger:      logger,
	}
}

func (s *LedgerStore) CreateWallet(ctx context.Context, wallet *domain.Wallet) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO wallets (id, user_id, balance, created_at) VALUES ($1, $2, $3, $4)`,
		wallet.ID, wallet.UserID, wallet.Balance, wallet.CreatedAt,
	)
	if err != nil {
		return mapPgError("create wallet", err)
	}
	return nil
}

func (s *LedgerStore) GetWalletByUser(ctx context.Context, userID string) (*domain.Wallet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, balance, created_at FROM wallets WHERE user_id = $1`, userID)
	return scanWallet(row, userID)
}

func (s *LedgerStore) ListActiveHistory(ctx context.Context, walletID string) ([]domain.Transaction, error) {
	rows, err := s.pool.Query(ctx, activeHistorySQL, walletID)
	if err != nil {
		return nil, mapPgError("list history", err)
	}
	return scanTransactions(rows)
}

func (s *LedgerStore) SoftDeleteTransaction(ctx context.Context, txnID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE transactions SET deleted = TRUE WHERE id = $1`, txnID)
	if err != nil {
		return mapPgError("soft delete transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "transaction", ID: txnID}
	}
	return nil
}

// ============================================================
// Transaction boundary
// ============================================================

// InTx wraps fn in a database transaction with a bounded lock wait.
// Balance update and record insertion commit together or not at all.
func (s *LedgerStore) InTx(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapPgError("begin", err)
	}
	defer dbTx.Rollback(ctx)

	if _, err := dbTx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%s'", s.lockTimeout)); err != nil {
		return mapPgError("lock timeout", err)
	}

	if err := fn(&ledgerTx{tx: dbTx}); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return mapPgError("commit", err)
	}
	return nil
}

type ledgerTx struct {
	tx pgx.Tx
}

func (t *ledgerTx) GetWalletForUpdate(ctx context.Context, walletID string) (*domain.Wallet, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, user_id, balance, created_at FROM wallets WHERE id = $1 FOR UPDATE`, walletID)
	return scanWallet(row, walletID)
}

func (t *ledgerTx) UpdateBalance(ctx context.Context, walletID string, balance decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE wallets SET balance = $1 WHERE id = $2`, balance, walletID)
	if err != nil {
		return mapPgError("update balance", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "wallet", ID: walletID}
	}
	return nil
}

func (t *ledgerTx) AppendTransaction(ctx context.Context, txn *domain.Transaction) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO transactions (id, wallet_id, kind, amount, ts, target_wallet_id, flagged, flag_reason, deleted)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9)`,
		txn.ID, txn.WalletID, string(txn.Kind), txn.Amount, txn.Timestamp,
		txn.TargetWalletID, txn.Flagged, txn.FlagReason, txn.Deleted,
	)
	if err != nil {
		return mapPgError("append transaction", err)
	}
	return nil
}

func (t *ledgerTx) ListActiveHistory(ctx context.Context, walletID string) ([]domain.Transaction, error) {
	rows, err := t.tx.Query(ctx, activeHistorySQL, walletID)
	if err != nil {
		return nil, mapPgError("list history", err)
	}
	return scanTransactions(rows)
}

// ============================================================
// Reporting reads
// ============================================================

func (s *LedgerStore) ListFlaggedActive(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, wallet_id, kind, amount, ts, COALESCE(target_wallet_id, ''), flagged, COALESCE(flag_reason, ''), deleted
		 FROM transactions
		 WHERE flagged AND NOT deleted
		 ORDER BY ts`)
	if err != nil {
		return nil, mapPgError("list flagged", err)
	}
	return scanTransactions(rows)
}

func (s *LedgerStore) TotalActiveBalance(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(w.balance), 0)
		 FROM wallets w
		 JOIN users u ON u.id = w.user_id
		 WHERE u.is_active AND NOT u.deleted`).Scan(&total)
	if err != nil {
		return decimal.Zero, mapPgError("total balance", err)
	}
	return total, nil
}

func (s *LedgerStore) TopWallets(ctx context.Context, limit int) ([]domain.WalletBalance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT w.id, w.user_id, u.username, w.balance
		 FROM wallets w
		 JOIN users u ON u.id = w.user_id
		 WHERE u.is_active AND NOT u.deleted
		 ORDER BY w.balance DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, mapPgError("top wallets", err)
	}
	defer rows.Close()

	var out []domain.WalletBalance
	for rows.Next() {
		var wb domain.WalletBalance
		if err := rows.Scan(&wb.WalletID, &wb.UserID, &wb.Username, &wb.Balance); err != nil {
			return nil, mapPgError("top wallets", err)
		}
		out = append(out, wb)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError("top wallets", err)
	}
	return out, nil
}

// ============================================================
// Row scanning
// ============================================================

const activeHistorySQL = `
	SELECT id, wallet_id, kind, amount, ts, COALESCE(target_wallet_id, ''), flagged, COALESCE(flag_reason, ''), deleted
	FROM transactions
	WHERE wallet_id = $1 AND NOT deleted
	ORDER BY ts`

func scanWallet(row pgx.Row, id string) (*domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "wallet", ID: id}
	}
	if err != nil {
		return nil, mapPgError("get wallet", err)
	}
	return &w, nil
}

func scanTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var txn domain.Transaction
		var kind string
		if err := rows.Scan(&txn.ID, &txn.WalletID, &kind, &txn.Amount, &txn.Timestamp,
			&txn.TargetWalletID, &txn.Flagged, &txn.FlagReason, &txn.Deleted); err != nil {
			return nil, mapPgError("scan transaction", err)
		}
		txn.Kind = domain.TransactionKind(kind)
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError("scan transactions", err)
	}
	return out, nil
}

var _ port.LedgerStore = (*LedgerStore)(nil)
