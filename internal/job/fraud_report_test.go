package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vaibhav071104/vaultguard/internal/infra/memory"
	"github.com/vaibhav071104/vaultguard/internal/infra/observability"
	"github.com/vaibhav071104/vaultguard/internal/service"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFraudReport_EmitsAndStopsOnCancel(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	users := memory.NewUserStore()
	ledger := memory.NewLedgerStore(users)
	reporting := service.NewReportingService(ledger, observability.NewMetrics(), time.Minute, 10)

	job := NewFraudReport(reporting, 20*time.Millisecond, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for logs.FilterMessage("fraud report").Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if logs.FilterMessage("fraud report").Len() == 0 {
		t.Fatal("no report emitted")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("job did not stop on cancel")
	}
}
