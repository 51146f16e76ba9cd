package logger

import (
	"log/slog"
	"time"
)

// Attribute helpers return an empty Attr for nil or empty input, so calls like
// log.Info("msg", logger.Error(err)) need no explicit nil checks.

// Group creates a group of attributes under a single key.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// ============================================================================
// Error Handling
// ============================================================================

// Error creates an attribute for a single error under the key "error".
// Returns empty Attr for nil errors.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// ============================================================================
// Performance and Timing
// ============================================================================

// Duration creates an attribute for a duration.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Elapsed calculates and logs the duration since the start time.
func Elapsed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}

// TTL creates an attribute for a record time-to-live.
func TTL(d time.Duration) slog.Attr {
	return slog.Duration("ttl", d)
}

// ============================================================================
// Sessions
// ============================================================================

// SessionID creates an attribute for session ids. Only a short prefix is
// logged so full ids never end up in log storage.
func SessionID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	const visible = 8
	if len(id) > visible {
		id = id[:visible] + "..."
	}
	return slog.String("session_id", id)
}

// SessionStatus creates an attribute for the lifecycle status of a session.
func SessionStatus(status string) slog.Attr {
	return slog.String("session_status", status)
}

// Backend creates an attribute for the storage backend name.
func Backend(name string) slog.Attr {
	return slog.String("backend", name)
}

// ============================================================================
// Generic Metadata
// ============================================================================

// Component creates an attribute for component names.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Action creates an attribute for action names.
func Action(action string) slog.Attr {
	return slog.String("action", action)
}

// Count creates a generic counter attribute.
func Count(key string, n int) slog.Attr {
	return slog.Int(key, n)
}
