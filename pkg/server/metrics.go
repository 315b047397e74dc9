package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all prometheus instruments for the server. It also
// implements presence.Metrics so the hub and router report through it.
type Metrics struct {
	registry *prometheus.Registry

	OnlineUsers        prometheus.Gauge
	ConnectionsTotal   prometheus.Counter
	DisconnectsTotal   prometheus.Counter
	PresenceBroadcasts prometheus.Counter
	PresenceFanout     prometheus.Histogram
	EventsRouted       *prometheus.CounterVec
	EventsDropped      *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// NewMetrics creates and registers all server metrics on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "glimpse_online_users",
			Help: "Number of users with a live connection",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glimpse_connections_total",
			Help: "Total websocket connections accepted",
		}),
		DisconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glimpse_disconnects_total",
			Help: "Total websocket disconnects observed",
		}),
		PresenceBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glimpse_presence_broadcasts_total",
			Help: "Total presence broadcasts published",
		}),
		PresenceFanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "glimpse_presence_broadcast_fanout",
			Help:    "Connections reached per presence broadcast",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		EventsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glimpse_events_routed_total",
			Help: "Point-to-point events delivered, by event type",
		}, []string{"event"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glimpse_events_dropped_total",
			Help: "Point-to-point events dropped (recipient offline or write failed), by event type",
		}, []string{"event"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glimpse_http_requests_total",
			Help: "HTTP requests, by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "glimpse_http_request_duration_seconds",
			Help:    "HTTP request latency, by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	registry.MustRegister(
		m.OnlineUsers,
		m.ConnectionsTotal,
		m.DisconnectsTotal,
		m.PresenceBroadcasts,
		m.PresenceFanout,
		m.EventsRouted,
		m.EventsDropped,
		m.HTTPRequests,
		m.HTTPDuration,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ConnectionOpened records a new live connection
func (m *Metrics) ConnectionOpened(online int) {
	m.ConnectionsTotal.Inc()
	m.OnlineUsers.Set(float64(online))
}

// ConnectionClosed records a closed connection
func (m *Metrics) ConnectionClosed(online int) {
	m.DisconnectsTotal.Inc()
	m.OnlineUsers.Set(float64(online))
}

// PresenceBroadcast records one presence broadcast and its fanout
func (m *Metrics) PresenceBroadcast(fanout int) {
	m.PresenceBroadcasts.Inc()
	m.PresenceFanout.Observe(float64(fanout))
}

// EventRouted records a delivered point-to-point event
func (m *Metrics) EventRouted(event string) {
	m.EventsRouted.WithLabelValues(event).Inc()
}

// EventDropped records a dropped point-to-point event
func (m *Metrics) EventDropped(event string) {
	m.EventsDropped.WithLabelValues(event).Inc()
}
