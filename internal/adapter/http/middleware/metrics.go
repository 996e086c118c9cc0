package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletledger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "walletledger_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

const apiPrefix = "/api/v1/"

// Path segments that are followed by an identifier.
var idCollections = map[string]bool{
	"accounts":  true,
	"transfers": true,
	"entries":   true,
}

// Metrics middleware records HTTP metrics.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// normalizePath replaces ids with ":id" to keep label cardinality bounded.
// /api/v1/accounts/01ABC/entries -> /api/v1/accounts/:id/entries
func normalizePath(path string) string {
	if !strings.HasPrefix(path, apiPrefix) {
		return path
	}

	segments := strings.Split(strings.TrimPrefix(path, apiPrefix), "/")
	for i := 0; i+1 < len(segments); i += 2 {
		if !idCollections[segments[i]] {
			break
		}
		if segments[i+1] != "" {
			segments[i+1] = ":id"
		}
	}

	return apiPrefix + strings.Join(segments, "/")
}
