// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// WebSocketWriteTimeout is the deadline for a single outbound WebSocket write
	WebSocketWriteTimeout = 10 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
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

// Signaling constants
const (
	// MaxSignalingConnections caps concurrent WebSocket signaling connections
	MaxSignalingConnections = 1000

	// SignalingSendBuffer is the per-client outbound message buffer size
	SignalingSendBuffer = 256
)

// Media constants
const (
	// PresignedURLExpiry is how long capture upload/download URLs stay valid
	PresignedURLExpiry = 15 * time.Minute

	// DefaultCapturePageSize is the page size used when a listing request
	// does not name one
	DefaultCapturePageSize = 50

	// MaxCapturePageSize caps capture listing page sizes
	MaxCapturePageSize = 100
)
