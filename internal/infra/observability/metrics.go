package observability

import (
	"time"

	"github.com/vaibhav071104/vaultguard/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the ledger service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	operationsTotal   *prometheus.CounterVec
	flaggedTotal      *prometheus.CounterVec
	alertFailures     prometheus.Counter
}

var (
	operationLabels = []string{"deposit", "withdraw", "transfer"}
	statusLabels    = []string{"success", "error"}
)

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vaultguard_operation_duration_seconds",
				Help:    "Duration of ledger operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultguard_operations_total",
				Help: "Total ledger operations by kind and outcome.",
			},
			[]string{"operation", "status"},
		),
		flaggedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultguard_flagged_transactions_total",
				Help: "Total transactions flagged by the fraud evaluator.",
			},
			[]string{"operation"},
		),
		alertFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vaultguard_alert_failures_total",
				Help: "Total alert deliveries that failed after retries.",
			},
		),
	}
}

// RecordOperationDuration records the duration of a ledger operation.
func (m *Metrics) RecordOperationDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrOperation increments the operation counter with an outcome label.
func (m *Metrics) IncrOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// IncrFlagged increments the flagged-transaction counter.
func (m *Metrics) IncrFlagged(operation string) {
	m.flaggedTotal.WithLabelValues(operation).Inc()
}

// IncrAlertFailure increments the failed alert delivery counter.
func (m *Metrics) IncrAlertFailure() {
	m.alertFailures.Inc()
}

// Snapshot returns cumulative counter values for the admin stats endpoint.
// Prometheus counters expose cumulative values since process start.
func (m *Metrics) Snapshot() *domain.LedgerStats {
	var total, failed, flagged float64
	for _, op := range operationLabels {
		for _, status := range statusLabels {
			v := getCounterValue(m.operationsTotal, op, status)
			total += v
			if status == "error" {
				failed += v
			}
		}
		flagged += getCounterValue(m.flaggedTotal, op)
	}

	errorRate := float64(0)
	if total > 0 {
		errorRate = failed / total
	}

	return &domain.LedgerStats{
		TotalOperations:     int64(total),
		FailedOperations:    int64(failed),
		ErrorRate:           errorRate,
		FlaggedTransactions: int64(flagged),
		AlertFailures:       int64(counterValue(m.alertFailures)),
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	return counterValue(cv.WithLabelValues(labels...))
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
