/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsLabelZone   = "zone"
	metricsLabelDryRun = "dry_run"
)

// MetricsCollector counts rejected requests.
type MetricsCollector interface {
	IncRateLimitRejects(zone string, dryRun bool)
}

// PrometheusMetrics exports throttling rejects to Prometheus.
type PrometheusMetrics struct {
	RateLimitRejects *prometheus.CounterVec
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a <namespace>_rate_limit_rejects_total counter.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	return &PrometheusMetrics{
		RateLimitRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejects_total",
			Help:      "Number of calls rejected because a rate limit was exceeded.",
		}, []string{metricsLabelZone, metricsLabelDryRun}),
	}
}

// MustRegisterMetrics implements service.MetricsRegisterer.
func (pm *PrometheusMetrics) MustRegisterMetrics() {
	prometheus.MustRegister(pm.RateLimitRejects)
}

// UnregisterMetrics implements service.MetricsRegisterer.
func (pm *PrometheusMetrics) UnregisterMetrics() {
	prometheus.Unregister(pm.RateLimitRejects)
}

// IncRateLimitRejects implements MetricsCollector.
func (pm *PrometheusMetrics) IncRateLimitRejects(zone string, dryRun bool) {
	dryRunVal := "no"
	if dryRun {
		dryRunVal = "yes"
	}
	pm.RateLimitRejects.With(prometheus.Labels{metricsLabelZone: zone, metricsLabelDryRun: dryRunVal}).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) IncRateLimitRejects(string, bool) {}
