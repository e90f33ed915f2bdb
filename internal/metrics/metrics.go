// Package metrics holds the Prometheus collectors of the chat server.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ActiveWebSockets  prometheus.Gauge
	Subscriptions     prometheus.Gauge
	EventsPublished   *prometheus.CounterVec
	DeliveriesDropped prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatsync",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		ActiveWebSockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatsync",
			Name:      "websocket_connections",
			Help:      "Open realtime connections.",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatsync",
			Name:      "room_subscriptions",
			Help:      "Connections currently joined to a chat room.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "chat_updates_published_total",
			Help:      "Chat update events published, by event type.",
		}, []string{"type"}),
		DeliveriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "chat_update_deliveries_dropped_total",
			Help:      "Deliveries dropped because a subscriber's queue was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.ActiveWebSockets,
			m.Subscriptions, m.EventsPublished, m.DeliveriesDropped)
	}
	return m
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.ActiveWebSockets.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.ActiveWebSockets.Dec()
	}
}

func (m *Metrics) Subscribed() {
	if m != nil {
		m.Subscriptions.Inc()
	}
}

func (m *Metrics) Unsubscribed() {
	if m != nil {
		m.Subscriptions.Dec()
	}
}

func (m *Metrics) Published(eventType string, dropped int) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
	if dropped > 0 {
		m.DeliveriesDropped.Add(float64(dropped))
	}
}
