// Package metrics provides Prometheus instrumentation for the wager engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MatchesCreated counts queue slots opened.
	MatchesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esquilo_matches_created_total",
		Help: "Total number of matches created",
	})

	// QueueJoins counts successful queue admissions.
	QueueJoins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esquilo_queue_joins_total",
		Help: "Total number of successful queue joins",
	})

	// QueueLeaves counts successful queue departures.
	QueueLeaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esquilo_queue_leaves_total",
		Help: "Total number of successful queue leaves",
	})

	// MatchesConfirmed counts matches reaching confirmation quorum.
	MatchesConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esquilo_matches_confirmed_total",
		Help: "Total number of matches confirmed by all participants",
	})

	// MatchesSettled counts matches with a recorded result.
	MatchesSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esquilo_matches_settled_total",
		Help: "Total number of matches settled",
	})

	// MatchesCancelled counts cancellations, mediator- and system-driven.
	MatchesCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esquilo_matches_cancelled_total",
		Help: "Total number of matches cancelled",
	})

	// PixPayloadsBuilt counts payment request payloads generated.
	PixPayloadsBuilt = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esquilo_pix_payloads_built_total",
		Help: "Total number of Pix payment payloads built",
	})

	// ActiveMatches tracks matches currently in waiting or full status.
	ActiveMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "esquilo_active_matches",
		Help: "Number of matches currently waiting or full",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "esquilo_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esquilo_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "esquilo_http_request_duration_seconds",
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

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
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
