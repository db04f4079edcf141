package chat

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry        *prometheus.Registry
	connections     prometheus.Gauge
	online          prometheus.Gauge
	messages        *prometheus.CounterVec
	statusEvents    *prometheus.CounterVec
	typingRelays    *prometheus.CounterVec
	outboundDropped prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ppchat_connections",
			Help: "Attached websocket connections, identified or not.",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ppchat_participants_online",
			Help: "Participants currently in the roster.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ppchat_messages_total",
			Help: "Private messages by routing outcome.",
		}, []string{"outcome"}),
		statusEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ppchat_status_events_total",
			Help: "Status events emitted to senders.",
		}, []string{"status"}),
		typingRelays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ppchat_typing_relays_total",
			Help: "Typing signals forwarded to a peer.",
		}, []string{"kind"}),
		outboundDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ppchat_outbound_dropped_total",
			Help: "Frames dropped because a connection queue was full or closed.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections, m.online, m.messages, m.statusEvents, m.typingRelays, m.outboundDropped,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) setCounts(online, connections int) {
	if m == nil {
		return
	}
	m.online.Set(float64(online))
	m.connections.Set(float64(connections))
}

func (m *Metrics) message(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) status(s Status) {
	if m == nil {
		return
	}
	m.statusEvents.WithLabelValues(string(s)).Inc()
}

func (m *Metrics) typing(kind string) {
	if m == nil {
		return
	}
	m.typingRelays.WithLabelValues(kind).Inc()
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.outboundDropped.Inc()
}
