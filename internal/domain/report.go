package domain

import "github.com/shopspring/decimal"

// ============================================================
// Reporting view shapes (read-only, no engine involvement)
// ============================================================

// WalletBalance is one row of the top-balances report.
type WalletBalance struct {
	WalletID string          `json:"wallet_id"`
	UserID   string          `json:"user_id"`
	Username string          `json:"username"`
	Balance  decimal.Decimal `json:"balance"`
}

// LedgerStats is a snapshot of operational counters for the admin
// stats endpoint. Values are cumulative since process start.
type LedgerStats struct {
	TotalOperations     int64   `json:"total_operations"`
	FailedOperations    int64   `json:"failed_operations"`
	ErrorRate           float64 `json:"error_rate"`
	FlaggedTransactions int64   `json:"flagged_transactions"`
	AlertFailures       int64   `json:"alert_failures"`
}
