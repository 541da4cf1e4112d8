// Package metrics provides Prometheus instrumentation for the position engine.
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
	// RebalancesTotal counts executed rebalances, partitioned by variant.
	RebalancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apm_rebalances_total",
		Help: "Total number of rebalances executed",
	}, []string{"variant"})

	// RebalanceFailures counts rebalance attempts that returned an error.
	RebalanceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apm_rebalance_failures_total",
		Help: "Rebalance attempts that failed",
	}, []string{"variant"})

	// KeeperCycles counts completed keeper cycles.
	KeeperCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apm_keeper_cycles_total",
		Help: "Completed keeper cycles",
	})

	// KeeperCycleDuration tracks keeper cycle wall time.
	KeeperCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "apm_keeper_cycle_duration_seconds",
		Help:    "Keeper cycle duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// PositionsTracked reports the number of registered positions.
	PositionsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "apm_positions_tracked",
		Help: "Number of positions in the registry",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apm_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "apm_http_request_duration_seconds",
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
