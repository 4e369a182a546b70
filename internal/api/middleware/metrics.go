package middleware

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/bayesd/internal/telemetry"
)

// MetricsCollector collects request metrics.
type MetricsCollector struct {
	requestCount *atomic.Int64
	errorCount   *atomic.Int64
	metrics      *telemetry.Metrics
}

// NewMetricsCollector creates a new metrics collector. metrics may be nil.
func NewMetricsCollector(requestCount, errorCount *atomic.Int64, metrics *telemetry.Metrics) *MetricsCollector {
	return &MetricsCollector{
		requestCount: requestCount,
		errorCount:   errorCount,
		metrics:      metrics,
	}
}

// Middleware returns middleware that counts requests and errors.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		mc.requestCount.Add(1)

		// Wrap response writer to capture status
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		// Count errors (4xx and 5xx)
		if rw.status >= 400 {
			mc.errorCount.Add(1)
		}

		// The route pattern is only known once chi has routed the request.
		mc.metrics.ObserveHTTP(routePattern(r), r.Method, rw.status, time.Since(start))
	})
}
