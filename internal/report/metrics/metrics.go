package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the report module. Tracks lifecycle
// throughput, gate outcomes, and the issuance critical path duration.
type Metrics struct {
	ReportsCreated     prometheus.Counter
	ReportsIssued      prometheus.Counter
	IssuanceBlocked    prometheus.Counter
	IssuanceConflicts  prometheus.Counter
	VersionsForked     prometheus.Counter
	IssueDuration      prometheus.Histogram
	ReadinessCacheHits *prometheus.CounterVec
}

// New creates a new Metrics instance with all report module metrics registered.
func New() *Metrics {
	return &Metrics{
		ReportsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_reports_created_total",
			Help: "Total number of report drafts created",
		}),
		ReportsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_reports_issued_total",
			Help: "Total number of successful issuances",
		}),
		IssuanceBlocked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_issuance_blocked_total",
			Help: "Total number of issuances refused by the readiness gate",
		}),
		IssuanceConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_issuance_conflicts_total",
			Help: "Total number of issuances lost to a concurrent winner or stale fork",
		}),
		VersionsForked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_versions_forked_total",
			Help: "Total number of new version drafts forked from issued reports",
		}),
		IssueDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attest_issue_duration_seconds",
			Help:    "Duration of Issue operations (validation gate plus transaction)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ReadinessCacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_readiness_cache_total",
			Help: "Speculative readiness cache lookups by outcome",
		}, []string{"outcome"}),
	}
}

// IncrementReportsCreated records a successful draft creation.
func (m *Metrics) IncrementReportsCreated() {
	m.ReportsCreated.Inc()
}

// IncrementReportsIssued records a successful issuance.
func (m *Metrics) IncrementReportsIssued() {
	m.ReportsIssued.Inc()
}

// IncrementIssuanceBlocked records a gate refusal.
func (m *Metrics) IncrementIssuanceBlocked() {
	m.IssuanceBlocked.Inc()
}

// IncrementIssuanceConflicts records a lost issuance race or stale fork.
func (m *Metrics) IncrementIssuanceConflicts() {
	m.IssuanceConflicts.Inc()
}

// IncrementVersionsForked records a successful fork.
func (m *Metrics) IncrementVersionsForked() {
	m.VersionsForked.Inc()
}

// ObserveIssue records the duration of an Issue operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveIssue(start time.Time) {
	m.IssueDuration.Observe(time.Since(start).Seconds())
}

// RecordCacheLookup records a readiness cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.ReadinessCacheHits.WithLabelValues(outcome).Inc()
}
