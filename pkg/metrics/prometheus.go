package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the signaling service.
// Everything is registered on a private registry so tests can create
// multiple instances without collisions.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec
	websocketErrorsTotal   *prometheus.CounterVec

	// Signaling Metrics
	signalingMessagesTotal *prometheus.CounterVec
	signalingErrorsTotal   *prometheus.CounterVec

	// Call Metrics
	callsTotal  *prometheus.CounterVec
	callsActive prometheus.Gauge

	// Capture Metrics
	capturesTotal        *prometheus.CounterVec
	captureErrorsTotal   *prometheus.CounterVec
	locationUpdatesTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		registry: registry,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being served",
				ConstLabels: labels,
			},
		),

		websocketConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of open signaling WebSocket connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket messages by type and direction",
				ConstLabels: labels,
			},
			[]string{"type", "direction"},
		),
		websocketErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_errors_total",
				Help:        "Total number of WebSocket errors",
				ConstLabels: labels,
			},
			[]string{"error"},
		),

		signalingMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signaling_messages_total",
				Help:        "Total number of routed signaling messages by type",
				ConstLabels: labels,
			},
			[]string{"type"},
		),
		signalingErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signaling_errors_total",
				Help:        "Total number of rejected signaling messages by error code",
				ConstLabels: labels,
			},
			[]string{"code"},
		),

		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_total",
				Help:        "Total number of call status transitions",
				ConstLabels: labels,
			},
			[]string{"status"},
		),
		callsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Number of calls currently in active status",
				ConstLabels: labels,
			},
		),

		capturesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "captures_total",
				Help:        "Total number of recorded captures by kind",
				ConstLabels: labels,
			},
			[]string{"kind"},
		),
		captureErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "capture_errors_total",
				Help:        "Total number of rejected capture records",
				ConstLabels: labels,
			},
			[]string{"reason"},
		),
		locationUpdatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "location_updates_total",
				Help:        "Total number of inspector location updates",
				ConstLabels: labels,
			},
		),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestsInFlight,
		m.websocketConnections,
		m.websocketMessagesTotal,
		m.websocketErrorsTotal,
		m.signalingMessagesTotal,
		m.signalingErrorsTotal,
		m.callsTotal,
		m.callsActive,
		m.capturesTotal,
		m.captureErrorsTotal,
		m.locationUpdatesTotal,
	)

	return m
}

// GetRegistry returns the private registry backing this instance
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// HTTP Metrics Methods

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the in-flight gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// WebSocket Metrics Methods

// WebSocketConnectionOpened increments the connection gauge
func (m *Metrics) WebSocketConnectionOpened() {
	m.websocketConnections.Inc()
}

// WebSocketConnectionClosed decrements the connection gauge
func (m *Metrics) WebSocketConnectionClosed() {
	m.websocketConnections.Dec()
}

// RecordWebSocketMessage records a WebSocket message ("inbound"/"outbound")
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	m.websocketMessagesTotal.WithLabelValues(msgType, direction).Inc()
}

// RecordWebSocketError records a WebSocket error
func (m *Metrics) RecordWebSocketError(err string) {
	m.websocketErrorsTotal.WithLabelValues(err).Inc()
}

// Signaling Metrics Methods

// RecordSignalingMessage records a successfully routed signaling message
func (m *Metrics) RecordSignalingMessage(msgType string) {
	m.signalingMessagesTotal.WithLabelValues(msgType).Inc()
}

// RecordSignalingError records a rejected signaling message by error code
func (m *Metrics) RecordSignalingError(code string) {
	m.signalingErrorsTotal.WithLabelValues(code).Inc()
}

// Call Metrics Methods

// RecordCallTransition records a call entering the given status
func (m *Metrics) RecordCallTransition(status string) {
	m.callsTotal.WithLabelValues(status).Inc()
}

// CallActivated increments the active-calls gauge
func (m *Metrics) CallActivated() {
	m.callsActive.Inc()
}

// CallEnded decrements the active-calls gauge
func (m *Metrics) CallEnded() {
	m.callsActive.Dec()
}

// Capture Metrics Methods

// RecordCapture records a persisted capture ("image"/"video")
func (m *Metrics) RecordCapture(kind string) {
	m.capturesTotal.WithLabelValues(kind).Inc()
}

// RecordCaptureError records a rejected capture
func (m *Metrics) RecordCaptureError(reason string) {
	m.captureErrorsTotal.WithLabelValues(reason).Inc()
}

// RecordLocationUpdate records an inspector location update
func (m *Metrics) RecordLocationUpdate() {
	m.locationUpdatesTotal.Inc()
}
