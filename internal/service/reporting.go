package service

import (
	"context"
	"time"

	"github.com/vaibhav071104/vaultguard/internal/domain"
	"github.com/vaibhav071104/vaultguard/internal/infra/cache"
	"github.com/vaibhav071104/vaultguard/internal/infra/observability"
	"github.com/vaibhav071104/vaultguard/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
)

var reportTracer = otel.Tracer("service/reporting")

const (
	cacheKeyTotalBalance = "reporting:total_balance"
	cacheKeyTopWallets   = "reporting:top_wallets"
)

// ReportingService serves the admin aggregates: flagged transactions, total
// active balance, top wallets, and operation stats. Aggregates are cached
// with a short TTL; reads may lag writes by up to the TTL.
type ReportingService struct {
	store   port.LedgerStore
	metrics *observability.Metrics

	totalCache *cache.InMemory[decimal.Decimal]
	topCache   *cache.InMemory[[]domain.WalletBalance]
	topLimit   int
}

// NewReportingService creates a reporting service with the given cache TTL.
func NewReportingService(store port.LedgerStore, metrics *observability.Metrics, ttl time.Duration, topLimit int) *ReportingService {
	return &ReportingService{
		store:      store,
		metrics:    metrics,
		totalCache: cache.New[decimal.Decimal](ttl),
		topCache:   cache.New[[]domain.WalletBalance](ttl),
		topLimit:   topLimit,
	}
}

// ListFlagged returns all non-deleted flagged transactions. Not cached: the
// fraud team reads this right after an alert fires.
func (s *ReportingService) ListFlagged(ctx context.Context) ([]domain.Transaction, error) {
	ctx, span := reportTracer.Start(ctx, "ReportingService.ListFlagged")
	defer span.End()

	return s.store.ListFlaggedActive(ctx)
}

// TotalBalance returns the sum of balances across wallets whose owners are
// active and not deleted.
func (s *ReportingService) TotalBalance(ctx context.Context) (decimal.Decimal, error) {
	ctx, span := reportTracer.Start(ctx, "ReportingService.TotalBalance")
	defer span.End()

	if cached, ok := s.totalCache.Get(cacheKeyTotalBalance); ok {
		return cached, nil
	}

	total, err := s.store.TotalActiveBalance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	s.totalCache.Set(cacheKeyTotalBalance, total)
	return total, nil
}

// TopWallets returns the highest-balance wallets of active owners.
func (s *ReportingService) TopWallets(ctx context.Context) ([]domain.WalletBalance, error) {
	ctx, span := reportTracer.Start(ctx, "ReportingService.TopWallets")
	defer span.End()

	if cached, ok := s.topCache.Get(cacheKeyTopWallets); ok {
		return cached, nil
	}

	rows, err := s.store.TopWallets(ctx, s.topLimit)
	if err != nil {
		return nil, err
	}
	s.topCache.Set(cacheKeyTopWallets, rows)
	return rows, nil
}

// Stats returns cumulative operation counters since process start.
func (s *ReportingService) Stats(_ context.Context) *domain.LedgerStats {
	return s.metrics.Snapshot()
}
