// Package timeout defines centralized timeout constants for outbound calls.
package timeout

import "time"

const (
	// PlatformAPITimeout bounds one call to the messaging platform API (reply, profile lookup).
	PlatformAPITimeout = 10 * time.Second

	// ShutdownTimeout bounds graceful HTTP server shutdown.
	ShutdownTimeout = 15 * time.Second

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	MaxTruncateLength = 200
)
