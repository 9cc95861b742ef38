// Package metrics exposes Prometheus instruments for collector lifecycles.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dokzlo13/tgcollect/internal/collector"
)

const namespace = "tgcollect"

// Item outcomes
const (
	OutcomeCollected = "collected"
	OutcomeIgnored   = "ignored"
	OutcomeDisposed  = "disposed"
)

// Metrics holds the collector instruments
type Metrics struct {
	Active   *prometheus.GaugeVec
	Items    *prometheus.CounterVec
	Ended    *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// New registers the instruments on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Active: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "collectors_active",
				Help:      "Number of collectors that have not ended yet",
			},
			[]string{"kind"},
		),
		Items: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collector_items_total",
				Help:      "Items handled by collectors",
			},
			[]string{"kind", "outcome"}, // "collected", "ignored", "disposed"
		),
		Ended: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collector_ended_total",
				Help:      "Collectors ended, by end reason",
			},
			[]string{"kind", "reason"},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "collector_duration_seconds",
				Help:      "Collector lifetime from start to end in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4m
			},
			[]string{"kind"},
		),
	}
}

// Observe attaches the instruments to c. Collectors that already ended
// are not counted.
func Observe[K comparable, V any](m *Metrics, c *collector.Collector[K, V]) {
	if c.Ended() {
		return
	}
	kind := c.Kind()

	m.Active.WithLabelValues(kind).Inc()

	collected := m.Items.WithLabelValues(kind, OutcomeCollected)
	ignored := m.Items.WithLabelValues(kind, OutcomeIgnored)
	disposed := m.Items.WithLabelValues(kind, OutcomeDisposed)

	c.OnCollect(func(V, *collector.Collection[K, V]) { collected.Inc() })
	c.OnIgnore(func(V) { ignored.Inc() })
	c.OnDispose(func(V, *collector.Collection[K, V]) { disposed.Inc() })
	c.OnEnd(func(_ *collector.Collection[K, V], reason collector.Reason) {
		m.Active.WithLabelValues(kind).Dec()
		m.Ended.WithLabelValues(kind, string(reason)).Inc()
		m.Duration.WithLabelValues(kind).Observe(time.Since(c.StartedAt()).Seconds())
	})
}
