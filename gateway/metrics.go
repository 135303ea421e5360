/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector receives the results of handled calls.
type MetricsCollector interface {
	ObserveCall(outcome Outcome, duration time.Duration)
}

const metricsLabelOutcome = "outcome"

// PrometheusMetrics exports call results to Prometheus.
type PrometheusMetrics struct {
	CallsTotal   *prometheus.CounterVec
	CallDuration prometheus.Histogram
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates <namespace>_calls_total and <namespace>_call_duration_seconds.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	return &PrometheusMetrics{
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Number of handled calls by outcome.",
		}, []string{metricsLabelOutcome}),
		CallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Time spent in the worker pool on a call, including commit or rollback.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// MustRegisterMetrics implements service.MetricsRegisterer.
func (pm *PrometheusMetrics) MustRegisterMetrics() {
	prometheus.MustRegister(pm.CallsTotal, pm.CallDuration)
}

// UnregisterMetrics implements service.MetricsRegisterer.
func (pm *PrometheusMetrics) UnregisterMetrics() {
	prometheus.Unregister(pm.CallsTotal)
	prometheus.Unregister(pm.CallDuration)
}

// ObserveCall implements MetricsCollector.
func (pm *PrometheusMetrics) ObserveCall(outcome Outcome, duration time.Duration) {
	pm.CallsTotal.With(prometheus.Labels{metricsLabelOutcome: outcome.String()}).Inc()
	pm.CallDuration.Observe(duration.Seconds())
}

type disabledMetrics struct{}

func (disabledMetrics) ObserveCall(Outcome, time.Duration) {}
