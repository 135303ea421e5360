/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector collects statistics about cache usage.
type MetricsCollector interface {
	SetAmount(int)
	IncHits()
	IncMisses()
	AddEvictions(int)
}

// PrometheusMetrics is a MetricsCollector that exports cache statistics to Prometheus.
type PrometheusMetrics struct {
	EntriesAmount  prometheus.Gauge
	HitsTotal      prometheus.Counter
	MissesTotal    prometheus.Counter
	EvictionsTotal prometheus.Counter
}

// NewPrometheusMetrics creates metrics named <namespace>_cache_*.
// constLabels distinguish several caches living in one process (e.g. {"cache": "sessions"}).
func NewPrometheusMetrics(namespace string, constLabels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		EntriesAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cache_entries_amount", ConstLabels: constLabels,
			Help: "Total number of entries in the cache.",
		}),
		HitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_hits_total", ConstLabels: constLabels,
			Help: "Number of successfully found keys in the cache.",
		}),
		MissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_misses_total", ConstLabels: constLabels,
			Help: "Number of not found or expired keys in the cache.",
		}),
		EvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_evictions_total", ConstLabels: constLabels,
			Help: "Number of entries evicted because the cache was full.",
		}),
	}
}

// MustRegister registers the collectors in the default Prometheus registry.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.EntriesAmount, pm.HitsTotal, pm.MissesTotal, pm.EvictionsTotal)
}

// Unregister removes the collectors from the default Prometheus registry.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.EntriesAmount)
	prometheus.Unregister(pm.HitsTotal)
	prometheus.Unregister(pm.MissesTotal)
	prometheus.Unregister(pm.EvictionsTotal)
}

func (pm *PrometheusMetrics) SetAmount(amount int) { pm.EntriesAmount.Set(float64(amount)) }

func (pm *PrometheusMetrics) IncHits() { pm.HitsTotal.Inc() }

func (pm *PrometheusMetrics) IncMisses() { pm.MissesTotal.Inc() }

func (pm *PrometheusMetrics) AddEvictions(n int) { pm.EvictionsTotal.Add(float64(n)) }

type disabledMetrics struct{}

func (disabledMetrics) SetAmount(int)    {}
func (disabledMetrics) IncHits()         {}
func (disabledMetrics) IncMisses()       {}
func (disabledMetrics) AddEvictions(int) {}
