package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vaibhav071104/vaultguard/internal/domain"
	"github.com/vaibhav071104/vaultguard/internal/fraud"
	"github.com/vaibhav071104/vaultguard/internal/infra/observability"
	"github.com/vaibhav071104/vaultguard/internal/infra/resilience"
	"github.com/vaibhav071104/vaultguard/internal/port"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ledgerTracer = otel.Tracer("service/ledger")

const alertSubject = "Suspicious Transaction Detected"

// LedgerEngine executes balance-affecting operations. Every operation runs
// inside one store transaction: the wallet lock, the fraud scoring against
// committed history, the balance mutation, and the record insertion commit
// together or not at all. Alert delivery happens after commit and is
// best-effort.
type LedgerEngine struct {
	store     port.LedgerStore
	users     port.UserStore
	sink      port.AlertSink
	recipient string

	retryCfg resilience.Config
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger

	// now is swappable for deterministic tests. Fraud heuristics read
	// wall-clock hours in UTC.
	now func() time.Time
}

// NewLedgerEngine wires a ledger engine.
func NewLedgerEngine(
	store port.LedgerStore,
	users port.UserStore,
	sink port.AlertSink,
	recipient string,
	retryCfg resilience.Config,
	bulkhead *resilience.Bulkhead,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *LedgerEngine {
	return &LedgerEngine{
		store:     store,
		users:     users,
		sink:      sink,
		recipient: recipient,
		retryCfg:  retryCfg,
		bulkhead:  bulkhead,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ============================================================
// Deposit
// ============================================================

func (e *LedgerEngine) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerEngine.Deposit")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("amount", amount.String()))

	start := time.Now()
	var txn *domain.Transaction
	err := e.observed(ctx, "deposit", start, func(ctx context.Context) error {
		if amount.LessThanOrEqual(decimal.Zero) {
			return &domain.ErrInvalidAmount{Amount: amount}
		}

		wallet, err := e.store.GetWalletByUser(ctx, userID)
		if err != nil {
			return err
		}

		return e.store.InTx(ctx, func(tx port.LedgerTx) error {
			locked, err := tx.GetWalletForUpdate(ctx, wallet.ID)
			if err != nil {
				return err
			}

			record, err := e.score(ctx, tx, locked.ID, amount, domain.KindDeposit, "")
			if err != nil {
				return err
			}

			if err := tx.UpdateBalance(ctx, locked.ID, locked.Balance.Add(amount)); err != nil {
				return err
			}
			if err := tx.AppendTransaction(ctx, record); err != nil {
				return err
			}
			txn = record
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, userID, txn, "")
	return txn, nil
}

// ============================================================
// Withdraw
// ============================================================

func (e *LedgerEngine) Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerEngine.Withdraw")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("amount", amount.String()))

	start := time.Now()
	var txn *domain.Transaction
	err := e.observed(ctx, "withdraw", start, func(ctx context.Context) error {
		wallet, err := e.store.GetWalletByUser(ctx, userID)
		if err != nil {
			return err
		}

		return e.store.InTx(ctx, func(tx port.LedgerTx) error {
			locked, err := tx.GetWalletForUpdate(ctx, wallet.ID)
			if err != nil {
				return err
			}

			// A non-positive amount and a short balance report the same
			// error; callers cannot tell them apart.
			if amount.LessThanOrEqual(decimal.Zero) || locked.Balance.LessThan(amount) {
				return &domain.ErrInsufficientFunds{Available: locked.Balance, Required: amount}
			}

			record, err := e.score(ctx, tx, locked.ID, amount, domain.KindWithdraw, "")
			if err != nil {
				return err
			}

			if err := tx.UpdateBalance(ctx, locked.ID, locked.Balance.Sub(amount)); err != nil {
				return err
			}
			if err := tx.AppendTransaction(ctx, record); err != nil {
				return err
			}
			txn = record
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, userID, txn, "")
	return txn, nil
}

// ============================================================
// Transfer
// ============================================================

// Transfer moves funds from the caller's wallet to another user's wallet,
// addressed by username. Both wallets are locked for the duration; locks are
// taken in ascending wallet-id order so opposite-direction transfers cannot
// deadlock.
func (e *LedgerEngine) Transfer(ctx context.Context, userID, toUsername string, amount decimal.Decimal) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerEngine.Transfer")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("transfer.to", toUsername),
		attribute.String("amount", amount.String()),
	)

	start := time.Now()
	var txn *domain.Transaction
	err := e.observed(ctx, "transfer", start, func(ctx context.Context) error {
		recipient, err := e.users.GetUserByUsername(ctx, toUsername)
		if err != nil {
			return err
		}
		if recipient.Deleted || !recipient.IsActive {
			return &domain.ErrNotFound{Resource: "user", ID: toUsername}
		}
		if recipient.ID == userID {
			return &domain.ErrValidation{Field: "to", Message: "cannot transfer to yourself"}
		}

		source, err := e.store.GetWalletByUser(ctx, userID)
		if err != nil {
			return err
		}
		target, err := e.store.GetWalletByUser(ctx, recipient.ID)
		if err != nil {
			return err
		}

		return e.store.InTx(ctx, func(tx port.LedgerTx) error {
			src, dst, err := lockPair(ctx, tx, source.ID, target.ID)
			if err != nil {
				return err
			}

			if amount.LessThanOrEqual(decimal.Zero) || src.Balance.LessThan(amount) {
				return &domain.ErrInsufficientFunds{Available: src.Balance, Required: amount}
			}

			record, err := e.score(ctx, tx, src.ID, amount, domain.KindTransfer, dst.ID)
			if err != nil {
				return err
			}

			if err := tx.UpdateBalance(ctx, src.ID, src.Balance.Sub(amount)); err != nil {
				return err
			}
			if err := tx.UpdateBalance(ctx, dst.ID, dst.Balance.Add(amount)); err != nil {
				return err
			}
			if err := tx.AppendTransaction(ctx, record); err != nil {
				return err
			}
			txn = record
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, userID, txn, toUsername)
	return txn, nil
}

// lockPair locks two wallets in ascending id order and returns them keyed
// back to the caller's (source, target) orientation.
func lockPair(ctx context.Context, tx port.LedgerTx, sourceID, targetID string) (src, dst *domain.Wallet, err error) {
	first, second := sourceID, targetID
	if second < first {
		first, second = second, first
	}

	w1, err := tx.GetWalletForUpdate(ctx, first)
	if err != nil {
		return nil, nil, err
	}
	w2, err := tx.GetWalletForUpdate(ctx, second)
	if err != nil {
		return nil, nil, err
	}

	if w1.ID == sourceID {
		return w1, w2, nil
	}
	return w2, w1, nil
}

// ============================================================
// Reads and soft deletes
// ============================================================

// GetBalance returns the caller's wallet.
func (e *LedgerEngine) GetBalance(ctx context.Context, userID string) (*domain.Wallet, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerEngine.GetBalance")
	defer span.End()

	return e.store.GetWalletByUser(ctx, userID)
}

// GetHistory returns the caller's non-deleted records, newest first.
func (e *LedgerEngine) GetHistory(ctx context.Context, userID string) ([]domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerEngine.GetHistory")
	defer span.End()

	wallet, err := e.store.GetWalletByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	history, err := e.store.ListActiveHistory(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

// SoftDeleteAccountOwner deactivates a user. The wallet and its records stay
// in place; reporting queries stop counting the balance.
func (e *LedgerEngine) SoftDeleteAccountOwner(ctx context.Context, userID string) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerEngine.SoftDeleteAccountOwner")
	defer span.End()

	return e.users.SoftDeleteUser(ctx, userID)
}

// SoftDeleteTransaction hides a record from history and reports. The balance
// effect of the record is never reversed.
func (e *LedgerEngine) SoftDeleteTransaction(ctx context.Context, txnID string) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerEngine.SoftDeleteTransaction")
	defer span.End()

	return e.store.SoftDeleteTransaction(ctx, txnID)
}

// ============================================================
// Internals
// ============================================================

// score builds the transaction record, flagging it when the fraud heuristics
// fire. The history used for scoring is the wallet's committed history; the
// record being created is not part of its own baseline.
func (e *LedgerEngine) score(ctx context.Context, tx port.LedgerTx, walletID string, amount decimal.Decimal, kind domain.TransactionKind, targetWalletID string) (*domain.Transaction, error) {
	history, err := tx.ListActiveHistory(ctx, walletID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	signals := fraud.Evaluate(history, amount, now, kind)

	record := &domain.Transaction{
		ID:             uuid.New().String(),
		WalletID:       walletID,
		Kind:           kind,
		Amount:         amount,
		Timestamp:      now,
		TargetWalletID: targetWalletID,
		Flagged:        len(signals) > 0,
		FlagReason:     strings.Join(signals, ", "),
	}
	return record, nil
}

// observed wraps fn with duration and outcome metrics.
func (e *LedgerEngine) observed(ctx context.Context, operation string, start time.Time, fn func(ctx context.Context) error) error {
	err := fn(ctx)

	e.metrics.RecordOperationDuration(operation, time.Since(start))
	if err != nil {
		e.metrics.IncrOperation(operation, "error")
		return err
	}
	e.metrics.IncrOperation(operation, "success")
	return nil
}

// afterCommit emits the flagged-transaction alert. The operation has already
// committed; delivery runs detached with retry, bounded by the bulkhead, and
// a final failure only bumps a counter and logs.
func (e *LedgerEngine) afterCommit(ctx context.Context, userID string, txn *domain.Transaction, toUsername string) {
	if txn == nil || !txn.Flagged {
		return
	}
	e.metrics.IncrFlagged(string(txn.Kind))

	username := userID
	if u, err := e.users.GetUserByID(ctx, userID); err == nil {
		username = u.Username
	}

	var body string
	if txn.Kind == domain.KindTransfer {
		body = fmt.Sprintf("User %s made a flagged transfer of %s to %s. Reason: %s",
			username, txn.Amount, toUsername, txn.FlagReason)
	} else {
		body = fmt.Sprintf("User %s made a flagged %s of %s. Reason: %s",
			username, txn.Kind, txn.Amount, txn.FlagReason)
	}

	span := trace.SpanFromContext(ctx)
	go func() {
		notifyCtx, cancel := context.WithTimeout(
			trace.ContextWithSpan(context.Background(), span), 30*time.Second)
		defer cancel()

		if err := e.bulkhead.Acquire(notifyCtx); err != nil {
			e.metrics.IncrAlertFailure()
			e.logger.Error("alert delivery skipped: bulkhead full",
				zap.String("transaction_id", txn.ID), zap.Error(err))
			return
		}
		defer e.bulkhead.Release()

		err := resilience.RetryWithBackoff(notifyCtx, e.retryCfg, func() error {
			return e.sink.Notify(notifyCtx, e.recipient, alertSubject, body)
		})
		if err != nil {
			e.metrics.IncrAlertFailure()
			e.logger.Error("alert delivery failed after retries",
				zap.String("transaction_id", txn.ID),
				zap.String("reason", txn.FlagReason),
				zap.Error(err))
			return
		}
		e.logger.Info("fraud alert delivered",
			zap.String("transaction_id", txn.ID),
			zap.String("reason", txn.FlagReason))
	}()
}
