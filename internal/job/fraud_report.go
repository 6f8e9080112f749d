// Package job runs background maintenance tasks.
package job

import (
	"context"
	"time"

	"github.com/vaibhav071104/vaultguard/internal/domain"
	"github.com/vaibhav071104/vaultguard/internal/service"

	"go.uber.org/zap"
)

// FraudReport periodically summarizes flagged transactions into the log so
// operators see fraud pressure without polling the admin API.
type FraudReport struct {
	reporting *service.ReportingService
	interval  time.Duration
	logger    *zap.Logger
}

func NewFraudReport(reporting *service.ReportingService, interval time.Duration, logger *zap.Logger) *FraudReport {
	return &FraudReport{
		reporting: reporting,
		interval:  interval,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, emitting one report per interval.
func (j *FraudReport) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("fraud report job started", zap.Duration("interval", j.interval))
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("fraud report job stopped")
			return ctx.Err()
		case <-ticker.C:
			j.report(ctx)
		}
	}
}

func (j *FraudReport) report(ctx context.Context) {
	flagged, err := j.reporting.ListFlagged(ctx)
	if err != nil {
		j.logger.Error("fraud report: listing flagged transactions failed", zap.Error(err))
		return
	}

	byKind := make(map[domain.TransactionKind]int)
	for _, txn := range flagged {
		byKind[txn.Kind]++
	}

	stats := j.reporting.Stats(ctx)
	j.logger.Info("fraud report",
		zap.Int("flagged_total", len(flagged)),
		zap.Int("flagged_deposits", byKind[domain.KindDeposit]),
		zap.Int("flagged_withdrawals", byKind[domain.KindWithdraw]),
		zap.Int("flagged_transfers", byKind[domain.KindTransfer]),
		zap.Int64("operations_total", stats.TotalOperations),
		zap.Float64("error_rate", stats.ErrorRate),
		zap.Int64("alert_failures", stats.AlertFailures),
	)
}
