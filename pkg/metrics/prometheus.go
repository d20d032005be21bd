package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the signaling service
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Database Metrics
	dbQueryDuration    *prometheus.HistogramVec
	dbQueryErrorsTotal *prometheus.CounterVec

	// Redis Metrics
	redisErrorsTotal *prometheus.CounterVec

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec
	websocketErrorsTotal   *prometheus.CounterVec

	// Presence Metrics
	usersOnline prometheus.Gauge

	// Call Request Metrics
	callRequestsTotal  *prometheus.CounterVec
	callRequestsSwept  prometheus.Counter
	callResponsesTotal *prometheus.CounterVec

	// Call Session Metrics
	callSessionsActive   prometheus.Gauge
	callSessionsTotal    *prometheus.CounterVec
	callSessionDurations prometheus.Histogram

	// Push Notification Metrics
	pushNotificationsTotal  *prometheus.CounterVec
	pushNotificationsFailed *prometheus.CounterVec

	// Event Log Metrics
	eventLogWritesTotal  prometheus.Counter
	eventLogWritesFailed prometheus.Counter
}

// NewMetrics creates all Prometheus metrics on a dedicated registry
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		registry: registry,

		// HTTP Request Metrics
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "db_query_duration_seconds",
				Help:        "Database query latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),
		dbQueryErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "db_query_errors_total",
				Help:        "Total number of database query errors",
				ConstLabels: labels,
			},
			[]string{"operation", "table"},
		),

		// Redis Metrics
		redisErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "redis_errors_total",
				Help:        "Total number of Redis errors",
				ConstLabels: labels,
			},
			[]string{"command"},
		),

		// WebSocket Metrics
		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket messages",
				ConstLabels: labels,
			},
			[]string{"type", "direction"},
		),
		websocketErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_errors_total",
				Help:        "Total number of WebSocket errors",
				ConstLabels: labels,
			},
			[]string{"error"},
		),

		// Presence Metrics
		usersOnline: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "users_online",
				Help:        "Number of users currently marked online",
				ConstLabels: labels,
			},
		),

		// Call Request Metrics
		callRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_requests_total",
				Help:        "Total number of call requests created",
				ConstLabels: labels,
			},
			[]string{"receiver_state"},
		),
		callRequestsSwept: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "call_requests_swept_total",
				Help:        "Total number of pending call requests expired by the sweeper",
				ConstLabels: labels,
			},
		),
		callResponsesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_responses_total",
				Help:        "Total number of call request resolutions",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),

		// Call Session Metrics
		callSessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "call_sessions_active",
				Help:        "Number of active call sessions",
				ConstLabels: labels,
			},
		),
		callSessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_sessions_total",
				Help:        "Total number of call sessions by terminal status",
				ConstLabels: labels,
			},
			[]string{"status"},
		),
		callSessionDurations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "call_session_duration_seconds",
				Help:        "Actual call session duration in seconds",
				ConstLabels: labels,
				Buckets:     []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
			},
		),

		// Push Notification Metrics
		pushNotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_notifications_total",
				Help:        "Total number of push notifications sent",
				ConstLabels: labels,
			},
			[]string{"type", "platform"},
		),
		pushNotificationsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_notifications_failed_total",
				Help:        "Total number of failed push notifications",
				ConstLabels: labels,
			},
			[]string{"type", "platform"},
		),

		// Event Log Metrics
		eventLogWritesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "event_log_writes_total",
				Help:        "Total number of signaling events written to the event log",
				ConstLabels: labels,
			},
		),
		eventLogWritesFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "event_log_writes_failed_total",
				Help:        "Total number of failed signaling event writes",
				ConstLabels: labels,
			},
		),
	}

	return m
}

// GetRegistry returns the dedicated registry backing all collectors
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// HTTP Metrics Methods

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the number of in-flight HTTP requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the number of in-flight HTTP requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// Database Metrics Methods

// RecordDBQuery records a database query
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration, err error) {
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		m.dbQueryErrorsTotal.WithLabelValues(operation, table).Inc()
	}
}

// Redis Metrics Methods

// RecordRedisError records a failed Redis command
func (m *Metrics) RecordRedisError(command string) {
	m.redisErrorsTotal.WithLabelValues(command).Inc()
}

// WebSocket Metrics Methods

// SetWebSocketConnections sets the number of active WebSocket connections
func (m *Metrics) SetWebSocketConnections(count int) {
	m.websocketConnections.Set(float64(count))
}

// RecordWebSocketMessage records a WebSocket message
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	m.websocketMessagesTotal.WithLabelValues(msgType, direction).Inc()
}

// RecordWebSocketError records a WebSocket error
func (m *Metrics) RecordWebSocketError(err string) {
	m.websocketErrorsTotal.WithLabelValues(err).Inc()
}

// Presence Metrics Methods

// SetUsersOnline sets the number of users currently online
func (m *Metrics) SetUsersOnline(count int) {
	m.usersOnline.Set(float64(count))
}

// Call Metrics Methods

// RecordCallRequest records a created call request; receiverState is
// "online" or "offline" at creation time
func (m *Metrics) RecordCallRequest(receiverState string) {
	m.callRequestsTotal.WithLabelValues(receiverState).Inc()
}

// RecordCallRequestsSwept records pending requests expired by the sweeper
func (m *Metrics) RecordCallRequestsSwept(count int) {
	m.callRequestsSwept.Add(float64(count))
}

// RecordCallResponse records a call request resolution (accepted, rejected,
// cancelled, expired)
func (m *Metrics) RecordCallResponse(outcome string) {
	m.callResponsesTotal.WithLabelValues(outcome).Inc()
}

// IncrementActiveSessions increments the active call session gauge
func (m *Metrics) IncrementActiveSessions() {
	m.callSessionsActive.Inc()
}

// DecrementActiveSessions decrements the active call session gauge
func (m *Metrics) DecrementActiveSessions() {
	m.callSessionsActive.Dec()
}

// RecordSessionEnded records a session reaching a terminal status
func (m *Metrics) RecordSessionEnded(status string, duration time.Duration) {
	m.callSessionsTotal.WithLabelValues(status).Inc()
	m.callSessionDurations.Observe(duration.Seconds())
}

// Push Notification Metrics Methods

// RecordPushNotification records a push notification
func (m *Metrics) RecordPushNotification(notifType, platform string) {
	m.pushNotificationsTotal.WithLabelValues(notifType, platform).Inc()
}

// RecordPushNotificationFailure records a failed push notification
func (m *Metrics) RecordPushNotificationFailure(notifType, platform string) {
	m.pushNotificationsFailed.WithLabelValues(notifType, platform).Inc()
}

// Event Log Metrics Methods

// RecordEventLogWrite records a signaling event write attempt
func (m *Metrics) RecordEventLogWrite(err error) {
	m.eventLogWritesTotal.Inc()
	if err != nil {
		m.eventLogWritesFailed.Inc()
	}
}
