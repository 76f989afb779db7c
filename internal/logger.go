package internal

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the process logger. Development gets human-readable text
// output; every other environment gets JSON lines tagged with the service name.
func NewLogger(w io.Writer, env string, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: env == "development" && strings.EqualFold(level, "debug"),
	}

	if env == "development" {
		return slog.New(slog.NewTextHandler(w, opts))
	}

	return slog.New(slog.NewJSONHandler(w, opts)).With("service", "tradeflow", "env", env)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
