package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics are the core pipeline metrics every registry carries.
type LedgerMetrics struct {
	CommitsMerged       *prometheus.CounterVec
	FlakesIndexed       *prometheus.CounterVec
	MergeDuration       *prometheus.HistogramVec
	ValidationFailures  *prometheus.CounterVec
	PermissionsCompiled *prometheus.CounterVec
}

func newLedgerMetrics() *LedgerMetrics {
	return &LedgerMetrics{
		CommitsMerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "semledger_commits_merged_total",
			Help: "Total commits merged into database versions",
		}, []string{"ledger", "status"}),
		FlakesIndexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "semledger_flakes_indexed_total",
			Help: "Total flakes folded into sort-order indexes",
		}, []string{"ledger"}),
		MergeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "semledger_merge_duration_seconds",
			Help:    "Duration of single-commit merges",
			Buckets: prometheus.DefBuckets,
		}, []string{"ledger"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "semledger_validation_failures_total",
			Help: "Shape validation failures by constraint",
		}, []string{"constraint"}),
		PermissionsCompiled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "semledger_permissions_compiled_total",
			Help: "Permission map compilations by outcome",
		}, []string{"outcome"}),
	}
}

// RecordMerge records one merge outcome with its duration.
func (m *LedgerMetrics) RecordMerge(ledger, status string, flakes int, duration time.Duration) {
	m.CommitsMerged.WithLabelValues(ledger, status).Inc()
	if flakes > 0 {
		m.FlakesIndexed.WithLabelValues(ledger).Add(float64(flakes))
	}
	m.MergeDuration.WithLabelValues(ledger).Observe(duration.Seconds())
}

// RecordValidationFailure records one shape violation.
func (m *LedgerMetrics) RecordValidationFailure(constraint string) {
	m.ValidationFailures.WithLabelValues(constraint).Inc()
}

// RecordPermissionCompile records one permission-map compilation.
func (m *LedgerMetrics) RecordPermissionCompile(outcome string) {
	m.PermissionsCompiled.WithLabelValues(outcome).Inc()
}
