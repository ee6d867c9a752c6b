// Package metrics exposes Prometheus collectors for the scan service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Per-keyword outcome labels.
const (
	OutcomeAppended     = "appended"
	OutcomeSkipped      = "skipped"
	OutcomeLookupFailed = "lookup_failed"
	OutcomeAppendFailed = "append_failed"
	OutcomeDataError    = "data_error"
)

var (
	keywordsTotal         *prometheus.CounterVec
	runsTotal             *prometheus.CounterVec
	historyPointsTotal    prometheus.Counter
	lookupRetriesTotal    prometheus.Counter
	lookupDurationSeconds prometheus.Histogram
	activeScans           prometheus.Gauge

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times.
func Init() {
	once.Do(func() {
		keywordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankscan_keywords_total",
				Help: "Keywords processed per scan run, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankscan_runs_total",
				Help: "Scan runs executed, labeled by final status.",
			},
			[]string{"status"},
		)

		historyPointsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rankscan_history_points_total",
				Help: "Rank history points durably appended.",
			},
		)

		lookupRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rankscan_lookup_retries_total",
				Help: "Transient lookup failures that were retried.",
			},
		)

		lookupDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rankscan_lookup_duration_seconds",
				Help:    "Latency of rank lookup provider calls.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		activeScans = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rankscan_active_scans",
				Help: "Scan runs currently executing.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveKeyword increments the per-keyword outcome counter.
func ObserveKeyword(outcome string) {
	Init()
	keywordsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun increments the run counter for the given final status.
func ObserveRun(status string) {
	Init()
	runsTotal.WithLabelValues(status).Inc()
}

// ObserveHistoryPoint counts one durable history append.
func ObserveHistoryPoint() {
	Init()
	historyPointsTotal.Inc()
}

// ObserveRetry counts one retried lookup attempt.
func ObserveRetry() {
	Init()
	lookupRetriesTotal.Inc()
}

// ObserveLookupDuration records the latency of one provider call.
func ObserveLookupDuration(d time.Duration) {
	Init()
	lookupDurationSeconds.Observe(d.Seconds())
}

// IncActiveScans increments the running-scan gauge.
func IncActiveScans() {
	Init()
	activeScans.Inc()
}

// DecActiveScans decrements the running-scan gauge.
func DecActiveScans() {
	Init()
	activeScans.Dec()
}
