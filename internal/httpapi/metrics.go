package httpapi

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	uniRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uniconnect_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	uniRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "uniconnect_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	uniVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uniconnect_verifications_total",
		Help: "Verification engine outcomes: issued, confirmed, rejected, locked, failed.",
	}, []string{"outcome"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		uniRequestsTotal.WithLabelValues(method, path, status).Inc()
		uniRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordVerification records a verification engine outcome.
func RecordVerification(outcome string) {
	uniVerificationsTotal.WithLabelValues(outcome).Inc()
}
