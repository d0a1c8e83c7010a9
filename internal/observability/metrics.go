// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Upstream metrics
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	UpstreamRetries  *prometheus.CounterVec

	// Ledger metrics
	HolderPagesFetched *prometheus.CounterVec
	SupplyEnrichment   *prometheus.CounterVec

	// Matching metrics
	SearchesTotal      *prometheus.CounterVec
	SearchDuration     prometheus.Histogram
	HoldersScanned     prometheus.Histogram
	CandidatesReturned prometheus.Histogram
	VerificationsTotal *prometheus.CounterVec

	// API metrics
	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec
	WSSessions  prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "wallet_tracker"
	}

	return &Metrics{
		// Upstream metrics
		UpstreamRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total number of upstream HTTP attempts by provider and outcome",
		}, []string{"provider", "outcome"}),
		UpstreamLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_latency_seconds",
			Help:      "Upstream HTTP attempt latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		UpstreamRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "retries_total",
			Help:      "Total number of upstream retries by provider and error kind",
		}, []string{"provider", "kind"}),

		// Ledger metrics
		HolderPagesFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "holder_pages_fetched_total",
			Help:      "Total number of holder pages fetched by backend",
		}, []string{"backend"}),
		SupplyEnrichment: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "supply_enrichment_total",
			Help:      "Supply enrichment attempts by status",
		}, []string{"status"}),

		// Matching metrics
		SearchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "searches_total",
			Help:      "Total number of holder searches by outcome",
		}, []string{"outcome"}),
		SearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "search_duration_seconds",
			Help:      "Holder search duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		HoldersScanned: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "holders_scanned",
			Help:      "Distinct owners scanned per search",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		}),
		CandidatesReturned: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "candidates_returned",
			Help:      "Candidate wallets returned per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 50, 100},
		}),
		VerificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "verifications_total",
			Help:      "Total number of two-holding verifications by outcome",
		}, []string{"outcome"}),

		// API metrics
		APIRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of API requests by route and status class",
		}, []string{"route", "status"}),
		APILatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_latency_seconds",
			Help:      "API request latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"route"}),
		WSSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "websocket_sessions",
			Help:      "Number of open progress websocket sessions",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordUpstreamAttempt records one upstream HTTP attempt.
func RecordUpstreamAttempt(provider, outcome string, seconds float64) {
	DefaultMetrics.UpstreamRequests.WithLabelValues(provider, outcome).Inc()
	DefaultMetrics.UpstreamLatency.WithLabelValues(provider).Observe(seconds)
}

// RecordUpstreamRetry records a retry scheduled after a retryable error.
func RecordUpstreamRetry(provider, kind string) {
	DefaultMetrics.UpstreamRetries.WithLabelValues(provider, kind).Inc()
}

// RecordHolderPage records a fetched holder page.
func RecordHolderPage(backend string) {
	DefaultMetrics.HolderPagesFetched.WithLabelValues(backend).Inc()
}

// RecordSupplyEnrichment records the status of a best-effort supply lookup.
func RecordSupplyEnrichment(status string) {
	DefaultMetrics.SupplyEnrichment.WithLabelValues(status).Inc()
}

// RecordSearch records a completed holder search.
func RecordSearch(outcome string, seconds float64, holders, candidates int) {
	DefaultMetrics.SearchesTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.SearchDuration.Observe(seconds)
	if outcome == "error" || outcome == "not_found" {
		return
	}
	DefaultMetrics.HoldersScanned.Observe(float64(holders))
	DefaultMetrics.CandidatesReturned.Observe(float64(candidates))
}

// RecordVerification records a completed verification.
func RecordVerification(outcome string) {
	DefaultMetrics.VerificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(route, status string, seconds float64) {
	DefaultMetrics.APIRequests.WithLabelValues(route, status).Inc()
	DefaultMetrics.APILatency.WithLabelValues(route).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
