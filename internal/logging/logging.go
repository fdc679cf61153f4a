// Package logging configures the process-wide slog logger for the ingestion
// tooling.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init installs the default logger. Diagnostics always go to stderr so they
// never interleave with the NDJSON report stream; ndjsonOutput selects the
// JSON handler so log lines stay machine-readable alongside that stream,
// otherwise a text handler is used for reading by hand.
func Init(ndjsonOutput bool, level string) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if ndjsonOutput {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// ParseLevel maps a configured level name onto slog.Level. Anything it does
// not recognize, including the empty string, means info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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
