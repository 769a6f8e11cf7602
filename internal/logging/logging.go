// Package logging builds the structured slog.Logger used across the
// voice core and its ambient services, configured from plain strings so
// the same knobs can be read straight out of environment config.
package logging

import (
	"log/slog"
	"os"
)

// New returns a slog.Logger writing to stderr at level, in either
// "json" or "text" format. Any other format falls back to text.
func New(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// ParseLevel maps a config string to a slog.Level, defaulting to
// slog.LevelInfo for anything unrecognized.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
