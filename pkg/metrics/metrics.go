// Package metrics exposes the off-chain protocol's runtime counters and
// gauges as Prometheus collectors, grounded on the health-metrics
// registries the rest of the example corpus builds by hand around
// client_golang rather than relying on the default global registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry collects every metric this VASP node exposes: channel and
// executor activity, retransmits, and peer delivery outcomes.
type Registry struct {
	registry *prometheus.Registry

	commandsProcessed *prometheus.CounterVec
	commandsFailed    *prometheus.CounterVec
	retransmits       prometheus.Counter
	channelsOpen      prometheus.Gauge
	peerDeliveries    *prometheus.CounterVec
	peerLatency       *prometheus.HistogramVec
}

// New builds a Registry with every collector registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		registry: reg,
		commandsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vasp_commands_processed_total",
			Help: "Number of payment commands successfully sequenced, by role",
		}, []string{"role"}),
		commandsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vasp_commands_failed_total",
			Help: "Number of payment commands rejected during sequencing, by role",
		}, []string{"role"}),
		retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vasp_channel_retransmits_total",
			Help: "Number of requests a channel has had to retransmit",
		}),
		channelsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vasp_channels_open",
			Help: "Number of counterparty channels currently open",
		}),
		peerDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vasp_peer_deliveries_total",
			Help: "Outbound deliveries to counterparty VASPs, by outcome",
		}, []string{"outcome"}),
		peerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vasp_peer_delivery_seconds",
			Help:    "Latency of outbound deliveries to counterparty VASPs",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.commandsProcessed,
		m.commandsFailed,
		m.retransmits,
		m.channelsOpen,
		m.peerDeliveries,
		m.peerLatency,
	)
	return m
}

// Registerer exposes the underlying collector registry, for wiring a
// promhttp.HandlerFor in the transport layer.
func (m *Registry) Registerer() *prometheus.Registry { return m.registry }

func (m *Registry) CommandProcessed(role string) { m.commandsProcessed.WithLabelValues(role).Inc() }
func (m *Registry) CommandFailed(role string)    { m.commandsFailed.WithLabelValues(role).Inc() }
func (m *Registry) Retransmit()                  { m.retransmits.Inc() }
func (m *Registry) SetChannelsOpen(n int)        { m.channelsOpen.Set(float64(n)) }

func (m *Registry) PeerDeliverySucceeded() { m.peerDeliveries.WithLabelValues("success").Inc() }
func (m *Registry) PeerDeliveryFailed()    { m.peerDeliveries.WithLabelValues("failure").Inc() }

func (m *Registry) ObservePeerLatency(kind string, seconds float64) {
	m.peerLatency.WithLabelValues(kind).Observe(seconds)
}
