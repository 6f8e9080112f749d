// Package postgres implements the ledger and user stores on PostgreSQL
// via pgx. Balance mutations rely on row locks (SELECT ... FOR UPDATE)
// inside a single transaction, with a bounded lock wait so contention
// surfaces as a retryable conflict instead of an indefinite block.
package postgres

import (
	"context"
	"errors"

	"github.com/vaibhav071104/vaultguard/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Migrate creates the schema if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			is_active     BOOLEAN NOT NULL DEFAULT TRUE,
			is_admin      BOOLEAN NOT NULL DEFAULT FALSE,
			deleted       BOOLEAN NOT NULL DEFAULT FALSE,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			id         TEXT PRIMARY KEY,
			user_id    TEXT UNIQUE NOT NULL REFERENCES users(id),
			balance    NUMERIC(20,4) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id               TEXT PRIMARY KEY,
			wallet_id        TEXT NOT NULL REFERENCES wallets(id),
			kind             TEXT NOT NULL,
			amount           NUMERIC(20,4) NOT NULL CHECK (amount > 0),
			ts               TIMESTAMPTZ NOT NULL,
			target_wallet_id TEXT,
			flagged          BOOLEAN NOT NULL DEFAULT FALSE,
			flag_reason      TEXT,
			deleted          BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_wallet_ts
			ON transactions (wallet_id, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_flagged
			ON transactions (flagged) WHERE flagged AND NOT deleted`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return &domain.ErrPersistence{Op: "migrate", Err: err}
		}
	}
	return nil
}

// mapPgError translates pgx errors into domain errors. Lock timeouts,
// deadlock aborts and serialization failures are retryable conflicts.
func mapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40P01", "40001":
			return &domain.ErrConcurrencyConflict{Resource: op}
		case "23505":
			return &domain.ErrConflict{Message: pgErr.Detail}
		}
	}
	return &domain.ErrPersistence{Op: op, Err: err}
}
