// Package metrics exposes relay traffic and round-trip measurements to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records relay activity. A nil *Collector is valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	framesForwarded *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	bytesForwarded  *prometheus.CounterVec
	roundTrip       *prometheus.HistogramVec
	connections     *prometheus.GaugeVec
	evictions       *prometheus.CounterVec
}

// NewCollector creates the relay metrics and registers them with reg.
func NewCollector(reg *prometheus.Registry) *Collector {
	m := &Collector{
		gatherer: reg,
		framesForwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_frames_forwarded_total",
				Help: "Messages forwarded to the paired endpoint",
			},
			[]string{"label"},
		),
		framesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_frames_dropped_total",
				Help: "Messages dropped because the paired endpoint was absent or closed",
			},
			[]string{"label"},
		),
		bytesForwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_bytes_forwarded_total",
				Help: "Payload bytes forwarded to the paired endpoint",
			},
			[]string{"label"},
		),
		roundTrip: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_round_trip_seconds",
				Help:    "Elapsed time between an observed ping and the returning pong",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"label"},
		),
		connections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_connections",
				Help: "Connections currently bound per role",
			},
			[]string{"role"},
		),
		evictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_evictions_total",
				Help: "Connections closed because a newer one bound the same role",
			},
			[]string{"role"},
		),
	}

	reg.MustRegister(
		m.framesForwarded,
		m.framesDropped,
		m.bytesForwarded,
		m.roundTrip,
		m.connections,
		m.evictions,
	)

	return m
}

func (m *Collector) FrameForwarded(label string, bytes int64) {
	if m == nil {
		return
	}
	m.framesForwarded.WithLabelValues(label).Inc()
	if bytes > 0 {
		m.bytesForwarded.WithLabelValues(label).Add(float64(bytes))
	}
}

func (m *Collector) FrameDropped(label string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(label).Inc()
}

func (m *Collector) RoundTrip(label string, d time.Duration) {
	if m == nil {
		return
	}
	m.roundTrip.WithLabelValues(label).Observe(d.Seconds())
}

func (m *Collector) ConnectionOpened(role string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(role).Inc()
}

func (m *Collector) ConnectionClosed(role string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(role).Dec()
}

func (m *Collector) Evicted(role string) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(role).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Collector) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
