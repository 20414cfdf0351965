package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel converts a configuration string ("debug", "info", "warn",
// "error") into a slog.Level. Unknown values return an error so that a typo
// in the configuration is caught at startup rather than silently logging at
// the wrong level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New constructs a logger writing text output to w at the given level.
// Loggers are constructed once and threaded through component constructors;
// they are never replaced or mutated after creation.
func New(level slog.Level, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// maxVisibleSessionChars is how many leading characters of a session ID are
// kept when logging. Enough to correlate log lines, not enough to replay.
const maxVisibleSessionChars = 8

// TruncateSessionID redacts a session ID for log output. Session IDs double
// as bearer-adjacent secrets in callback URLs, so full values never reach
// the logs.
func TruncateSessionID(sessionID string) string {
	if len(sessionID) <= maxVisibleSessionChars {
		return sessionID
	}
	return sessionID[:maxVisibleSessionChars] + "..."
}
