// Package metrics exposes the hub's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the hub's collectors.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	FramesReceived    prometheus.Counter
	FramesRateLimited prometheus.Counter
	BusDrops          *prometheus.CounterVec
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hermes_connections_active",
			Help: "Number of registered websocket connections.",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_frames_received_total",
			Help: "Inbound frames read off all connections.",
		}),
		FramesRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_frames_rate_limited_total",
			Help: "Inbound frames discarded by per-connection rate limiting.",
		}),
		BusDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_bus_drops_total",
			Help: "Events a subscriber could not accept, by room key.",
		}, []string{"room"}),
	}
	reg.MustRegister(m.ConnectionsActive, m.FramesReceived, m.FramesRateLimited, m.BusDrops)
	return m
}
