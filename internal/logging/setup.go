// Package logging builds the structured loggers used throughout agentcore.
//
// Because this module is a library rather than a service, it never reads
// LOG_LEVEL/LOG_FORMAT from the environment and never calls slog.SetDefault:
// a host decides verbosity and format and passes the result in via
// Options.Logger (see the top-level Options type). This package only
// supplies the construction helpers the teacher service used internally.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Level is shared across every logger this package builds, so a host can
// adjust verbosity at runtime for the whole library with a single call.
var Level slog.LevelVar

// New builds a *slog.Logger writing to w, using formatStr ("json" or "text",
// default "json") and levelStr (debug/info/warn/error, default "info").
func New(levelStr, formatStr string, w io.Writer) *slog.Logger {
	Level.Set(ParseLevel(levelStr))

	opts := &slog.HandlerOptions{Level: &Level}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(formatStr)) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// ParseLevel converts a string to slog.Level. Defaults to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Default returns a logger suitable for components that were not handed an
// explicit *slog.Logger via Options — writes JSON to w. Like any call to
// New with an empty level, it sets the shared Level back to info.
func Default(w io.Writer) *slog.Logger {
	return New("", "", w)
}
