// Package telemetry exposes the process-wide Prometheus counters and
// histograms the orchestrator and its sub-steps update. Ambient observability
// is carried regardless of scope — no dashboard or alerting config lives
// here, just the instrumentation points (grounded on
// semaj90-mau5law's cmd/metrics-server/main.go: a CounterVec/Gauge pair
// registered at init and served over promhttp).
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ragcore_requests_total", Help: "Total orchestrate() calls by outcome"},
		[]string{"outcome"}, // "ok" | "degraded" | "error" | "canceled"
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragcore_request_duration_seconds",
			Help:    "orchestrate() wall-clock latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	StrategySelected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ragcore_strategy_selected_total", Help: "Retrieval search mode chosen per request"},
		[]string{"mode"},
	)

	DegradedSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ragcore_degraded_steps_total", Help: "Pipeline steps that degraded rather than failed"},
		[]string{"step"},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal, RequestDuration, StrategySelected, DegradedSteps)
}

// ObserveRequest records one orchestrate() call's outcome and latency.
func ObserveRequest(outcome string, elapsed time.Duration) {
	RequestsTotal.WithLabelValues(outcome).Inc()
	RequestDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// Handler exposes the registered metrics over /metrics for a process-local
// scrape endpoint; serving it is the caller's choice, not a requirement.
func Handler() http.Handler {
	return promhttp.Handler()
}
