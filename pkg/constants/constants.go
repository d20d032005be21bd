// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// LongTimeout is for complex operations or batch processing
	LongTimeout = 60 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// WebSocket constants
const (
	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// WebSocketWriteTimeout is the deadline for a single outbound frame
	WebSocketWriteTimeout = 10 * time.Second

	// WebSocketSendBuffer is the per-client outbound channel capacity
	WebSocketSendBuffer = 256

	// MaxSignalingConnections caps concurrent signaling connections per instance
	MaxSignalingConnections = 10000
)

// Call request constants
const (
	// CallRequestExpiry is how long a pending call request stays answerable
	CallRequestExpiry = 2 * time.Minute

	// CallRequestSweepInterval is how often overdue pending requests are expired
	CallRequestSweepInterval = 30 * time.Second

	// MaxCallDuration is the maximum requested practice-call duration in minutes
	MaxCallDuration = 120

	// MinCallDuration is the minimum requested practice-call duration in minutes
	MinCallDuration = 1
)

// Call request statuses
const (
	RequestStatusPending   = "pending"
	RequestStatusAccepted  = "accepted"
	RequestStatusRejected  = "rejected"
	RequestStatusExpired   = "expired"
	RequestStatusCompleted = "completed"
)

// Call session statuses
const (
	SessionStatusActive       = "active"
	SessionStatusCompleted    = "completed"
	SessionStatusDisconnected = "disconnected"
)

// Presence constants
const (
	// PresenceCacheTTL is the Redis presence entry lifetime; heartbeats refresh it
	PresenceCacheTTL = 5 * time.Minute
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Push notification constants
const (
	// PushTokenExpiry is the validity period for push notification tokens
	PushTokenExpiry = 30 * 24 * time.Hour // 30 days
)

// Event log constants
const (
	// EventLogTTL is the Cassandra TTL for signaling events (90 days)
	EventLogTTL = 90 * 24 * time.Hour
)

// Pagination constants
const (
	// DefaultPageSize is the default number of items per page
	DefaultPageSize = 20

	// MaxPageSize is the maximum number of items per page
	MaxPageSize = 100
)
