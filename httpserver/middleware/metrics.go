/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsLabelMethod       = "method"
	metricsLabelRoutePattern = "route_pattern"
	metricsLabelStatus       = "status"
)

// DefaultHTTPRequestDurationBuckets is default buckets into which observations of serving HTTP requests are counted.
var DefaultHTTPRequestDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// RoutePatternGetterFunc is a function for getting route pattern from the request.
type RoutePatternGetterFunc func(r *http.Request) string

// HTTPRequestPrometheusMetrics collects HTTP request metrics.
type HTTPRequestPrometheusMetrics struct {
	Durations *prometheus.HistogramVec
	InFlight  prometheus.Gauge
}

// NewHTTPRequestPrometheusMetrics creates metrics under the given namespace.
func NewHTTPRequestPrometheusMetrics(namespace string) *HTTPRequestPrometheusMetrics {
	return &HTTPRequestPrometheusMetrics{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "A histogram of the HTTP request durations.",
			Buckets:   DefaultHTTPRequestDurationBuckets,
		}, []string{metricsLabelMethod, metricsLabelRoutePattern, metricsLabelStatus}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being served.",
		}),
	}
}

// MustRegister registers metrics in Prometheus client and panics if any error occurs.
func (pm *HTTPRequestPrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.Durations, pm.InFlight)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *HTTPRequestPrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.Durations)
	prometheus.Unregister(pm.InFlight)
}

// HTTPRequestMetrics measures serving of requests. Requests to excluded endpoints are not measured.
func HTTPRequestMetrics(
	pm *HTTPRequestPrometheusMetrics, getRoutePattern RoutePatternGetterFunc, excludedEndpoints []string,
) func(next http.Handler) http.Handler {
	excluded := newEndpointMatcher(excludedEndpoints)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if excluded.match(r.URL.Path) {
				next.ServeHTTP(rw, r)
				return
			}

			startTime := GetRequestStartTimeFromContext(r.Context())
			if startTime.IsZero() {
				startTime = time.Now()
			}
			pm.InFlight.Inc()
			defer pm.InFlight.Dec()

			wrw := chimw.NewWrapResponseWriter(rw, r.ProtoMajor)
			next.ServeHTTP(wrw, r)

			status := wrw.Status()
			if status == 0 {
				status = http.StatusOK
			}
			pm.Durations.With(prometheus.Labels{
				metricsLabelMethod:       r.Method,
				metricsLabelRoutePattern: getRoutePattern(r),
				metricsLabelStatus:       strconv.Itoa(status),
			}).Observe(time.Since(startTime).Seconds())
		})
	}
}
