package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Request surfaces, used to split webhook traffic from the dashboard API
// without a per-route query.
const (
	surfaceWebhook = "webhook"
	surfaceAPI     = "api"
	surfaceInfra   = "infra"
)

// HTTP collectors. "route" is the registered Gin route, or "unmatched" for
// 404s, which keeps cardinality bounded.
var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by surface, method, route and status.",
		},
		[]string{"surface", "method", "route", "status"},
	)

	requestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request latency in seconds.",
			// Webhooks must answer well inside Twilio's 15s and Intercom's 5s windows.
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"surface", "route"},
	)

	requestsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		},
		[]string{"surface"},
	)

	responseBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8), // 64B..1MiB
		},
		[]string{"surface", "route"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, requestSeconds, requestsInFlight, responseBytes)
}

// surfaceOf classifies a request path.
func surfaceOf(path string) string {
	switch {
	case strings.HasPrefix(path, "/webhooks/"):
		return surfaceWebhook
	case path == "/health" || path == "/metrics" || strings.HasPrefix(path, "/swagger/"):
		return surfaceInfra
	default:
		return surfaceAPI
	}
}

// Metrics instruments requests with Prometheus. Mount promhttp.Handler()
// separately to expose the registry.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		surface := surfaceOf(c.Request.URL.Path)
		inflight := requestsInFlight.WithLabelValues(surface)
		inflight.Inc()
		defer inflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestsTotal.WithLabelValues(surface, c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		requestSeconds.WithLabelValues(surface, route).Observe(time.Since(start).Seconds())
		if n := c.Writer.Size(); n >= 0 {
			responseBytes.WithLabelValues(surface, route).Observe(float64(n))
		}
	}
}
