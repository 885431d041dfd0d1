// Package metrics provides Prometheus instrumentation for the ledger engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DepositsTotal counts deposit submissions, partitioned by outcome.
	DepositsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_deposits_total",
		Help: "Total deposit requests by outcome",
	}, []string{"outcome"})

	// WithdrawalsTotal counts withdrawal requests, partitioned by outcome.
	WithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_withdrawals_total",
		Help: "Total withdrawal requests by outcome",
	}, []string{"outcome"})

	// InvestmentsOpened counts investments opened, partitioned by plan tier.
	InvestmentsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_investments_opened_total",
		Help: "Total investments opened by tier",
	}, []string{"tier"})

	// InvestmentsMatured counts investments paid out at maturity.
	InvestmentsMatured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_investments_matured_total",
		Help: "Total investments matured and paid out",
	})

	// RoiClaims counts ROI claims that moved money.
	RoiClaims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_roi_claims_total",
		Help: "Total ROI claims credited",
	})

	// InsufficientFundsRejections counts writes refused by the balance guard.
	InsufficientFundsRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_insufficient_funds_rejections_total",
		Help: "Balance writes rejected for insufficient funds",
	})

	// RateLookupFailures counts pricing upstream failures (before cache fallback).
	RateLookupFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_rate_lookup_failures_total",
		Help: "Crypto rate lookups that failed upstream",
	}, []string{"crypto_type"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the chi route pattern for the path label to avoid high
		// cardinality from IDs in URLs.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
