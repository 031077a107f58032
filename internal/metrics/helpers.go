// Package metrics exposes sync activity as Prometheus metrics.
//
// All constructors take a prometheus.Registerer; nothing registers with
// the global default registry, so a registry and its metrics live exactly
// as long as the daemon run that created them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NewCounterVec creates and registers a counter vector with labels.
func NewCounterVec(registry prometheus.Registerer, name, help string, labels []string) *prometheus.CounterVec {
	return promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: name,
			Help: help,
		},
		labels,
	)
}

// NewGaugeVec creates and registers a gauge vector with labels.
func NewGaugeVec(registry prometheus.Registerer, name, help string, labels []string) *prometheus.GaugeVec {
	return promauto.With(registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name,
			Help: help,
		},
		labels,
	)
}

// NewHistogramVec creates and registers a histogram vector with custom
// buckets.
func NewHistogramVec(registry prometheus.Registerer, name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name,
			Help:    help,
			Buckets: buckets,
		},
		labels,
	)
}

// DurationBuckets returns histogram buckets for cycle durations in
// seconds, from 10ms to a minute.
func DurationBuckets() []float64 {
	return []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0}
}
