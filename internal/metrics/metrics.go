package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
// These ensure metrics don't have unbounded label values which can cause memory issues.
const (
	// Terminal session statuses (bounded set)
	StatusDecided = "decided"
	StatusFailed  = "failed"

	// Reasoning request outcomes (bounded set)
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Negotiation Session Metrics
var (
	// Sessions started
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealdesk_sessions_started_total",
		Help: "Total number of negotiation sessions started",
	})

	// Sessions completed by terminal status
	SessionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealdesk_sessions_completed_total",
		Help: "Total number of negotiation sessions completed by terminal status",
	}, []string{"status"})

	// Session duration
	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dealdesk_session_duration_seconds",
		Help:    "Negotiation session duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	// Active sessions
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealdesk_active_sessions",
		Help: "Number of currently running negotiation sessions",
	})

	// Rounds completed
	RoundsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealdesk_rounds_completed_total",
		Help: "Total number of negotiation rounds completed",
	})
)

// Reasoning Service Metrics
var (
	// Reasoning requests by outcome
	ReasoningRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealdesk_reasoning_requests_total",
		Help: "Total number of reasoning service requests by outcome",
	}, []string{"outcome"})

	// Reasoning request duration
	ReasoningRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dealdesk_reasoning_request_duration_seconds",
		Help:    "Reasoning service request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// Circuit breaker state for the reasoning endpoint
	ReasoningBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealdesk_reasoning_breaker_state",
		Help: "Reasoning circuit breaker state (0=closed, 1=open, 2=half_open)",
	})

	// Response cache hits and misses
	ReasoningCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealdesk_reasoning_cache_hits_total",
		Help: "Total number of reasoning response cache hits",
	})

	ReasoningCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealdesk_reasoning_cache_misses_total",
		Help: "Total number of reasoning response cache misses",
	})
)

// Event Stream Metrics
var (
	// Events published by type
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealdesk_events_published_total",
		Help: "Total number of session events published by type",
	}, []string{"type"})

	// Events dropped due to a full publisher buffer
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealdesk_events_dropped_total",
		Help: "Total number of session events dropped due to a full publisher buffer",
	})

	// Connected websocket observers
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealdesk_ws_connections",
		Help: "Number of currently connected websocket observers",
	})
)

// System Health Metrics
var (
	// HTTP requests
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealdesk_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status_code"})

	// HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dealdesk_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path", "status_code"})

	// Database connections
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealdesk_database_connections_active",
		Help: "Number of active database connections",
	})

	DatabaseConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealdesk_database_connections_idle",
		Help: "Number of idle database connections",
	})
)

// Helper functions to update metrics

// RecordSessionStarted records the start of a negotiation session
func RecordSessionStarted() {
	SessionsStarted.Inc()
	ActiveSessions.Inc()
}

// RecordSessionCompleted records a session reaching a terminal status
func RecordSessionCompleted(status string, duration time.Duration) {
	SessionsCompleted.WithLabelValues(status).Inc()
	SessionDuration.Observe(duration.Seconds())
	ActiveSessions.Dec()
}

// RecordRoundCompleted records a fully resolved negotiation round
func RecordRoundCompleted() {
	RoundsCompleted.Inc()
}

// RecordReasoningRequest records a reasoning service request with its outcome
func RecordReasoningRequest(outcome string, duration time.Duration) {
	ReasoningRequests.WithLabelValues(outcome).Inc()
	ReasoningRequestDuration.Observe(duration.Seconds())
}

// SetReasoningBreakerState sets the reasoning circuit breaker state gauge
// (0=closed, 1=open, 2=half_open)
func SetReasoningBreakerState(state float64) {
	ReasoningBreakerState.Set(state)
}

// RecordCacheHit records a reasoning response cache hit
func RecordCacheHit() {
	ReasoningCacheHits.Inc()
}

// RecordCacheMiss records a reasoning response cache miss
func RecordCacheMiss() {
	ReasoningCacheMisses.Inc()
}

// RecordEventPublished records a published session event
func RecordEventPublished(eventType string) {
	EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventDropped records a session event dropped by the publisher
func RecordEventDropped() {
	EventsDropped.Inc()
}

// RecordHTTPRequest records an HTTP request with duration
func RecordHTTPRequest(method, path, statusCode string, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(duration.Seconds())
}

// UpdateDatabaseConnections updates database connection metrics
func UpdateDatabaseConnections(active, idle int32) {
	DatabaseConnectionsActive.Set(float64(active))
	DatabaseConnectionsIdle.Set(float64(idle))
}
