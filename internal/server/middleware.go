package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"tradegate/internal/session"
	"tradegate/pkg/logging"
)

// sessionIDHeader is the streamable HTTP transport's session header. The
// first request of a fresh session has no value here; the transport
// assigns one in its initialize response.
const sessionIDHeader = "Mcp-Session-Id"

// readyTimeout bounds how long a stream entry waits for its actor to
// finish initializing before failing the request explicitly.
const readyTimeout = 15 * time.Second

// streamEntry wraps the MCP transport handler with session recovery.
// Every request carrying a session ID resolves its actor and runs the
// recovery chain before the transport sees the request; a session that
// cannot be revived is refused here rather than failing tool by tool.
type streamEntry struct {
	registry *session.Registry
	next     http.Handler
	logger   *slog.Logger
}

func newStreamEntry(registry *session.Registry, next http.Handler, logger *slog.Logger) *streamEntry {
	return &streamEntry{registry: registry, next: next, logger: logger}
}

func (s *streamEntry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		// Session not yet assigned; the transport handles initialization.
		s.next.ServeHTTP(w, r)
		return
	}

	props := session.Props{
		CanonicalID: r.URL.Query().Get("user_id"),
		FallbackID:  r.URL.Query().Get("client_id"),
	}

	actor, err := s.registry.GetOrCreate(sessionID, props)
	if err != nil {
		status := http.StatusBadRequest
		if _, isLimit := err.(*session.SessionLimitExceededError); isLimit {
			status = http.StatusServiceUnavailable
		}
		writeJSONError(w, status, "invalid_session", err.Error())
		return
	}

	if ok := actor.Reconnect(r.Context()); !ok {
		s.logger.Warn("session recovery exhausted, refusing stream",
			"session", logging.TruncateSessionID(sessionID))
		writeJSONError(w, http.StatusServiceUnavailable, "session_unavailable",
			"session could not be recovered; re-authorize and reconnect")
		return
	}

	if err := actor.AwaitReady(r.Context(), readyTimeout); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "session_not_ready", err.Error())
		return
	}

	s.next.ServeHTTP(w, r)
}

func writeJSONError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := struct {
		Error       string `json:"error"`
		Description string `json:"error_description,omitempty"`
	}{Error: code, Description: description}
	_ = json.NewEncoder(w).Encode(resp)
}
