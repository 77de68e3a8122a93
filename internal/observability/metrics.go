package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "minerctl"

// Metrics holds the collectors fed by page events.
type Metrics struct {
	registry *prometheus.Registry

	hashesPerSecond prometheus.Gauge
	totalHashes     prometheus.Gauge
	acceptedHashes  prometheus.Gauge
	threads         prometheus.Gauge
	events          *prometheus.CounterVec
}

// NewMetrics registers the miner collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		hashesPerSecond: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "hashes_per_second",
			Help:      "Hash rate last reported by the page.",
		}),
		totalHashes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "total_hashes",
			Help:      "Total hashes computed since the miner started.",
		}),
		acceptedHashes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "accepted_hashes",
			Help:      "Hashes accepted by the pool.",
		}),
		threads: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "threads",
			Help:      "Worker threads reported by the page.",
		}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Events relayed from the page, by name.",
		}, []string{"event"}),
	}
}

// RecordUpdate stores the values of one update event.
func (m *Metrics) RecordUpdate(hashesPerSecond float64, totalHashes, acceptedHashes int64, threads int) {
	m.hashesPerSecond.Set(hashesPerSecond)
	m.totalHashes.Set(float64(totalHashes))
	m.acceptedHashes.Set(float64(acceptedHashes))
	m.threads.Set(float64(threads))
}

// RecordEvent counts one relayed page event.
func (m *Metrics) RecordEvent(name string) {
	m.events.WithLabelValues(name).Inc()
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
