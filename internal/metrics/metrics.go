// Package metrics exposes Prometheus collectors for the wallet layer.
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
			Namespace: "wallet_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wallet_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wallet_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	walletRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wallet_layer",
			Subsystem: "balance",
			Name:      "refreshes_total",
			Help:      "Total number of wallet state refreshes.",
		},
		[]string{"outcome"},
	)

	refreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "wallet_layer",
			Subsystem: "balance",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of wallet state refreshes.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
	)

	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wallet_layer",
			Subsystem: "transfer",
			Name:      "transfers_total",
			Help:      "Total number of transfer attempts.",
		},
		[]string{"kind", "outcome"},
	)

	depositConfirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wallet_layer",
			Subsystem: "deposit",
			Name:      "confirmations_total",
			Help:      "Total number of deposit confirmation attempts.",
		},
		[]string{"outcome"},
	)

	feedSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wallet_layer",
			Subsystem: "feed",
			Name:      "active_subscriptions",
			Help:      "Number of active change feed subscriptions.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		walletRefreshes,
		refreshDuration,
		transfers,
		depositConfirmations,
		feedSubscriptions,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordRefresh records one wallet state refresh.
func RecordRefresh(outcome string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	walletRefreshes.WithLabelValues(outcome).Inc()
	refreshDuration.Observe(duration.Seconds())
}

// RecordTransfer records a transfer attempt. kind is "internal" or
// "external".
func RecordTransfer(kind string, success bool) {
	transfers.WithLabelValues(kind, outcomeLabel(success)).Inc()
}

// RecordDepositConfirmation records a deposit confirmation attempt.
func RecordDepositConfirmation(outcome string) {
	depositConfirmations.WithLabelValues(outcome).Inc()
}

// FeedSubscribed tracks an opened change feed subscription.
func FeedSubscribed() { feedSubscriptions.Inc() }

// FeedUnsubscribed tracks a closed change feed subscription.
func FeedUnsubscribed() { feedSubscriptions.Dec() }

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses per-user path segments to route shapes so label
// cardinality stays bounded no matter how many users call in.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "wallet" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/wallet"
	}
	parts[1] = ":id"
	if len(parts) >= 4 && parts[2] == "deposits" && parts[3] != "fiat" && parts[3] != "ledger" {
		parts[3] = ":tx"
	}
	return "/" + strings.Join(parts, "/")
}
