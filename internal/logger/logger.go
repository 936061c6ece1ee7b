// Package logger builds the slog logger shared by the server components.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// New creates a logger writing to stdout at the given level.
// Unknown levels fall back to info.
func New(levelStr string, jsonOutput bool) *slog.Logger {
	return NewWithWriter(os.Stdout, levelStr, jsonOutput)
}

func NewWithWriter(w io.Writer, levelStr string, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(levelStr)}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard is a logger that drops every record, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
