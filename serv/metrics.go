package serv

import (
	"net/http"
	"time"

	"github.com/bizfeed/docq/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records executor round trips as Prometheus series. It satisfies
// core.Observer.
type Metrics struct {
	reg      *prometheus.Registry
	trips    *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	skipped  *prometheus.CounterVec
}

var _ core.Observer = (*Metrics)(nil)

// NewMetrics registers the docq series on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		trips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docq_store_round_trips_total",
				Help: "Total number of store round trips",
			},
			[]string{"collection", "phase"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docq_store_failures_total",
				Help: "Total number of failed store round trips",
			},
			[]string{"collection", "phase"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docq_store_round_trip_seconds",
				Help:    "Store round trip latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"collection", "phase"},
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docq_skipped_documents_total",
				Help: "Total number of documents skipped because they did not decode",
			},
			[]string{"collection"},
		),
	}
	m.reg.MustRegister(m.trips, m.failures, m.latency, m.skipped)
	return m
}

func (m *Metrics) RoundTrip(collection, phase string, d time.Duration, err error) {
	m.trips.WithLabelValues(collection, phase).Inc()
	m.latency.WithLabelValues(collection, phase).Observe(d.Seconds())
	if err != nil {
		m.failures.WithLabelValues(collection, phase).Inc()
	}
}

func (m *Metrics) Skipped(collection string) {
	m.skipped.WithLabelValues(collection).Inc()
}

// Handler returns the Prometheus HTTP handler for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
