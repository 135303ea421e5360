/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector receives the state of the admission path.
type MetricsCollector interface {
	SetQueueDepth(depth int)
	SetPeakDepth(depth int)
	SetActiveTasks(n int)
	IncDispatcherRestarts()
}

// PrometheusMetrics exports the admission path state to Prometheus.
type PrometheusMetrics struct {
	QueueDepth         prometheus.Gauge
	QueuePeakDepth     prometheus.Gauge
	PoolActiveTasks    prometheus.Gauge
	DispatcherRestarts prometheus.Counter
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates metrics named <namespace>_queue_depth and so on.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	return &PrometheusMetrics{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of admitted calls waiting for the dispatcher.",
		}),
		QueuePeakDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_peak_depth",
			Help:      "Largest number of admitted calls that have been waiting at once since start.",
		}),
		PoolActiveTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_active_tasks",
			Help:      "Number of calls being executed by the worker pool.",
		}),
		DispatcherRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatcher_restarts_total",
			Help:      "Number of times the dispatcher loop has been restarted after a failure.",
		}),
	}
}

// MustRegisterMetrics implements service.MetricsRegisterer.
func (pm *PrometheusMetrics) MustRegisterMetrics() {
	prometheus.MustRegister(pm.QueueDepth, pm.QueuePeakDepth, pm.PoolActiveTasks, pm.DispatcherRestarts)
}

// UnregisterMetrics implements service.MetricsRegisterer.
func (pm *PrometheusMetrics) UnregisterMetrics() {
	prometheus.Unregister(pm.QueueDepth)
	prometheus.Unregister(pm.QueuePeakDepth)
	prometheus.Unregister(pm.PoolActiveTasks)
	prometheus.Unregister(pm.DispatcherRestarts)
}

func (pm *PrometheusMetrics) SetQueueDepth(depth int) { pm.QueueDepth.Set(float64(depth)) }

func (pm *PrometheusMetrics) SetPeakDepth(depth int) { pm.QueuePeakDepth.Set(float64(depth)) }

func (pm *PrometheusMetrics) SetActiveTasks(n int) { pm.PoolActiveTasks.Set(float64(n)) }

func (pm *PrometheusMetrics) IncDispatcherRestarts() { pm.DispatcherRestarts.Inc() }

type disabledMetrics struct{}

func (disabledMetrics) SetQueueDepth(int)      {}
func (disabledMetrics) SetPeakDepth(int)       {}
func (disabledMetrics) SetActiveTasks(int)     {}
func (disabledMetrics) IncDispatcherRestarts() {}
