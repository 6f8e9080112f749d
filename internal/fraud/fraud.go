// Package fraud scores candidate transactions against an account's history.
// Evaluate is a pure function: no I/O, no clock reads, deterministic for a
// given (history, amount, time, kind) input.
package fraud

import (
	"fmt"
	"time"

	"github.com/vaibhav071104/vaultguard/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	// SignalHighFrequency fires on velocity abuse: strictly more than
	// maxRecentTxns history entries younger than velocityWindow.
	SignalHighFrequency = "High transaction frequency"

	// SignalUnusualAmount fires when the amount exceeds three times the mean
	// of the account's own history. Never fires on an empty history.
	SignalUnusualAmount = "Unusual transaction amount"

	// SignalOddHour fires for transactions between 00:00 and 04:59 UTC.
	SignalOddHour = "Transaction at odd hour"
)

const (
	velocityWindow = time.Minute
	maxRecentTxns  = 3
	oddHourCutoff  = 5
)

var (
	anomalyFactor  = decimal.NewFromInt(3)
	largeThreshold = decimal.NewFromInt(10000)
)

// LargeAmountSignal is the label for the absolute-threshold check; it embeds
// the transaction kind ("Large deposit amount" etc).
func LargeAmountSignal(kind domain.TransactionKind) string {
	return fmt.Sprintf("Large %s amount", kind)
}

// Evaluate runs every heuristic and returns the triggered signals in a fixed
// order. Checks are independent: all four run even if earlier ones fired, and
// the result is their union.
func Evaluate(history []domain.Transaction, amount decimal.Decimal, at time.Time, kind domain.TransactionKind) []string {
	var signals []string

	if velocityCheck(history, at) {
		signals = append(signals, SignalHighFrequency)
	}
	if anomalyAmountCheck(history, amount) {
		signals = append(signals, SignalUnusualAmount)
	}
	if oddHourCheck(at) {
		signals = append(signals, SignalOddHour)
	}
	if largeAmountCheck(amount, kind) {
		signals = append(signals, LargeAmountSignal(kind))
	}
	return signals
}

// velocityCheck counts history entries strictly younger than the window.
// An entry aged exactly one minute does not count.
func velocityCheck(history []domain.Transaction, at time.Time) bool {
	recent := 0
	for _, txn := range history {
		if at.Sub(txn.Timestamp) < velocityWindow {
			recent++
		}
	}
	return recent > maxRecentTxns
}

// anomalyAmountCheck compares the amount against 3x the account's own mean.
// No baseline exists for an empty history, so it never fires there.
func anomalyAmountCheck(history []domain.Transaction, amount decimal.Decimal) bool {
	if len(history) == 0 {
		return false
	}
	sum := decimal.Zero
	for _, txn := range history {
		sum = sum.Add(txn.Amount)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(history))))
	return amount.GreaterThan(mean.Mul(anomalyFactor))
}

func oddHourCheck(at time.Time) bool {
	return at.Hour() < oddHourCutoff
}

func largeAmountCheck(amount decimal.Decimal, kind domain.TransactionKind) bool {
	switch kind {
	case domain.KindDeposit, domain.KindWithdraw, domain.KindTransfer:
		return amount.GreaterThan(largeThreshold)
	default:
		return false
	}
}
