// Package logging builds the structured loggers used across the service.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a JSON slog logger writing to stdout at the provided level and
// tagging every record with the application name. If the level string is
// invalid it defaults to info.
func New(appName, level string) *slog.Logger {
	return NewWithWriter(os.Stdout, appName, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, appName, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	logger := slog.New(handler)
	if appName != "" {
		logger = logger.With("app", appName)
	}
	return logger
}

// ParseLevel converts a level name such as "debug" or "warn" to a slog
// level, falling back to info.
func ParseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}
