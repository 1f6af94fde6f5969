// Package metrics exposes the application's Prometheus collectors on a
// dedicated registry so the /metrics endpoint only reports what we own.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chainsight",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainsight",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chainsight",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	shipmentsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainsight",
			Subsystem: "shipments",
			Name:      "created_total",
			Help:      "Total number of shipments created.",
		},
	)

	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainsight",
			Subsystem: "shipments",
			Name:      "status_transitions_total",
			Help:      "Total number of shipment status transitions.",
		},
		[]string{"to"},
	)

	ledgerWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainsight",
			Subsystem: "ledger",
			Name:      "writes_total",
			Help:      "Total number of ledger write attempts.",
		},
		[]string{"op", "outcome"},
	)

	ledgerWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chainsight",
			Subsystem: "ledger",
			Name:      "write_duration_seconds",
			Help:      "Duration of ledger writes including confirmation wait.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~3.5min
		},
		[]string{"op"},
	)

	ledgerVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainsight",
			Subsystem: "ledger",
			Name:      "verifications_total",
			Help:      "Total number of ledger integrity verifications.",
		},
		[]string{"result"},
	)

	insightsRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainsight",
			Subsystem: "insights",
			Name:      "requests_total",
			Help:      "Total number of insight computations by source.",
		},
		[]string{"source"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		shipmentsCreated,
		statusTransitions,
		ledgerWrites,
		ledgerWriteDuration,
		ledgerVerifications,
		insightsRequests,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one handled HTTP request. The path should be the
// route template, not the raw URL, to keep cardinality bounded.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	method = strings.ToUpper(method)
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RequestStarted marks a request in flight. The returned func marks it done.
func RequestStarted() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// RecordShipmentCreated counts a successful shipment creation.
func RecordShipmentCreated() {
	shipmentsCreated.Inc()
}

// RecordStatusTransition counts a successful status transition.
func RecordStatusTransition(to string) {
	statusTransitions.WithLabelValues(to).Inc()
}

// RecordLedgerWrite counts a ledger write attempt and its latency.
func RecordLedgerWrite(op string, duration time.Duration, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	ledgerWrites.WithLabelValues(op, outcome).Inc()
	ledgerWriteDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordLedgerVerification counts an integrity check result. Result is one
// of "valid", "invalid" or "error".
func RecordLedgerVerification(result string) {
	ledgerVerifications.WithLabelValues(result).Inc()
}

// RecordInsightsRequest counts an insight computation by source: "cache",
// "provider" or "fallback".
func RecordInsightsRequest(source string) {
	insightsRequests.WithLabelValues(source).Inc()
}
