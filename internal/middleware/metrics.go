package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bitsandtea/agent-mrkt/internal/metrics"
)

// Metrics records HTTP metrics to Prometheus, labeling by route template
// rather than literal path — otherwise every distinct agent id hitting
// /v1/router/{agentId} would open its own label series.
func Metrics(m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := routeTemplate(r.URL.Path)

			// Increment active requests
			m.HTTPActiveRequests.Inc()
			defer m.HTTPActiveRequests.Dec()

			// Wrap response writer
			rw := NewResponseWriter(w)

			next.ServeHTTP(rw, r)

			// Record metrics
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.StatusCode())

			m.HTTPRequestsTotal.WithLabelValues(
				r.Method, route, status,
			).Inc()

			m.HTTPRequestDuration.WithLabelValues(
				r.Method, route, status,
			).Observe(duration)
		})
	}
}
