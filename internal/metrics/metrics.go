// Package metrics exposes Prometheus collectors for the booking engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rentals"

type Metrics struct {
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	catalogFetch *prometheus.CounterVec
	suggestions  prometheus.Histogram
	published    *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Booking engine operations by name and result.",
		}, []string{"operation", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of booking engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		catalogFetch: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_fetches_total",
			Help:      "External catalog reads by source and result.",
		}, []string{"source", "result"}),
		suggestions: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "availability_suggestions",
			Help:      "Alternative ranges offered per availability conflict.",
			Buckets:   prometheus.LinearBuckets(0, 1, 7),
		}),
		published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_total",
			Help:      "Booking events handed to the broker by type and result.",
		}, []string{"type", "result"}),
	}
}

func (m *Metrics) ObserveOperation(op, result string, d time.Duration) {
	m.operations.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) ObserveCatalogFetch(source, result string) {
	m.catalogFetch.WithLabelValues(source, result).Inc()
}

func (m *Metrics) ObserveSuggestions(n int) {
	m.suggestions.Observe(float64(n))
}

func (m *Metrics) ObservePublish(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}

	m.published.WithLabelValues(eventType, result).Inc()
}
