// Package metrics exposes cache activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"ttl-cache-store/internal/cache"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the cache counters. It implements cache.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// Operation metrics
	OperationsTotal *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec

	// Lookup metrics
	Hits   prometheus.Counter
	Misses prometheus.Counter

	// Removal metrics
	RemovedTotal *prometheus.CounterVec
}

// NewMetrics registers the cache metrics on a fresh registry under namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of cache operations by op",
		}, []string{"op"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Total number of failed cache operations by op",
		}, []string{"op"}),
		Hits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_hits_total",
			Help:      "Reads that found a live entry",
		}),
		Misses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_misses_total",
			Help:      "Reads that found no entry or an expired one",
		}),
		RemovedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_removed_total",
			Help:      "Rows removed by delete, delete_matched, cleanup and clear",
		}, []string{"op"}),
	}
}

// Operation implements cache.Observer.
func (m *Metrics) Operation(op cache.Op, err error) {
	m.OperationsTotal.WithLabelValues(string(op)).Inc()
	if err != nil {
		m.ErrorsTotal.WithLabelValues(string(op)).Inc()
	}
}

// Lookup implements cache.Observer.
func (m *Metrics) Lookup(hit bool) {
	if hit {
		m.Hits.Inc()
		return
	}
	m.Misses.Inc()
}

// Removed implements cache.Observer.
func (m *Metrics) Removed(op cache.Op, n int64) {
	m.RemovedTotal.WithLabelValues(string(op)).Add(float64(n))
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ cache.Observer = (*Metrics)(nil)
