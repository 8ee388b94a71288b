/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package ratelimit

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector is a collector of metrics about keys tracked by a limiter.
type MetricsCollector interface {
	// SetKeysAmount sets the total number of keys the limiter keeps state for.
	SetKeysAmount(int)

	// IncEvictions increments the total number of keys whose state was evicted.
	IncEvictions()
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents Prometheus metrics for a keyed rate limiter.
type PrometheusMetrics struct {
	KeysAmount     prometheus.Gauge
	EvictionsTotal prometheus.Counter
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	keysAmount := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_keys_amount",
			Help:        "Total number of keys tracked by the rate limiter.",
			ConstLabels: opts.ConstLabels,
		},
	)

	evictionsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_key_evictions_total",
			Help:        "Number of keys evicted from the rate limiter state.",
			ConstLabels: opts.ConstLabels,
		},
	)

	return &PrometheusMetrics{
		KeysAmount:     keysAmount,
		EvictionsTotal: evictionsTotal,
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.KeysAmount,
		pm.EvictionsTotal,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.KeysAmount)
	prometheus.Unregister(pm.EvictionsTotal)
}

// SetKeysAmount sets the total number of keys the limiter keeps state for.
func (pm *PrometheusMetrics) SetKeysAmount(amount int) {
	pm.KeysAmount.Set(float64(amount))
}

// IncEvictions increments the total number of keys whose state was evicted.
func (pm *PrometheusMetrics) IncEvictions() {
	pm.EvictionsTotal.Inc()
}
