package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tradegate/pkg/logging"
)

const (
	// MaxSessionIDLength caps session IDs to prevent memory exhaustion
	// from hostile clients.
	MaxSessionIDLength = 256

	// DefaultMaxSessions bounds concurrent sessions.
	DefaultMaxSessions = 10000

	// DefaultSessionTimeout is how long an idle session survives before
	// the cleanup loop removes it.
	DefaultSessionTimeout = 30 * time.Minute
)

// InvalidSessionIDError is returned when a session ID fails validation.
type InvalidSessionIDError struct {
	Reason string
}

func (e *InvalidSessionIDError) Error() string {
	return "invalid session ID: " + e.Reason
}

// SessionLimitExceededError is returned when the maximum session limit is
// reached.
type SessionLimitExceededError struct {
	Limit   int
	Current int
}

func (e *SessionLimitExceededError) Error() string {
	return fmt.Sprintf("session limit exceeded: %d/%d sessions", e.Current, e.Limit)
}

// ValidateSessionID checks that a session ID is non-empty and within the
// length cap.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return &InvalidSessionIDError{Reason: "session ID cannot be empty"}
	}
	if len(sessionID) > MaxSessionIDLength {
		return &InvalidSessionIDError{Reason: fmt.Sprintf("session ID exceeds maximum length of %d", MaxSessionIDLength)}
	}
	return nil
}

// ActorFactory builds the actor for a newly seen session.
type ActorFactory func(sessionID string, props Props) *Actor

// Registry maps session IDs to their actors. It owns session lifecycle:
// creation on first sight, activity tracking, and idle cleanup.
//
// Callers MUST call Stop when done to release the cleanup goroutine.
type Registry struct {
	mu     sync.RWMutex
	actors map[string]*Actor

	newActor       ActorFactory
	sessionTimeout time.Duration
	maxSessions    int
	logger         *slog.Logger
	stopCleanup    chan struct{}
	stopOnce       sync.Once
}

// NewRegistry creates a registry with default limits and starts its
// cleanup loop.
func NewRegistry(newActor ActorFactory, sessionTimeout time.Duration, logger *slog.Logger) *Registry {
	return NewRegistryWithLimits(newActor, sessionTimeout, DefaultMaxSessions, logger)
}

// NewRegistryWithLimits creates a registry with an explicit session cap.
// maxSessions of 0 means unlimited.
func NewRegistryWithLimits(newActor ActorFactory, sessionTimeout time.Duration, maxSessions int, logger *slog.Logger) *Registry {
	if sessionTimeout <= 0 {
		sessionTimeout = DefaultSessionTimeout
	}
	if maxSessions < 0 {
		maxSessions = DefaultMaxSessions
	}

	r := &Registry{
		actors:         make(map[string]*Actor),
		newActor:       newActor,
		sessionTimeout: sessionTimeout,
		maxSessions:    maxSessions,
		logger:         logger,
		stopCleanup:    make(chan struct{}),
	}

	go r.cleanupLoop()

	return r
}

// GetOrCreate returns the actor for a session, creating one on first
// sight. It validates the session ID and enforces the session cap.
func (r *Registry) GetOrCreate(sessionID string, props Props) (*Actor, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		r.logger.Warn("rejected session ID", "error", err)
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	actor, exists := r.actors[sessionID]
	if !exists {
		if r.maxSessions > 0 && len(r.actors) >= r.maxSessions {
			r.logger.Warn("session limit reached",
				"limit", r.maxSessions,
				"session", logging.TruncateSessionID(sessionID))
			return nil, &SessionLimitExceededError{Limit: r.maxSessions, Current: len(r.actors)}
		}

		actor = r.newActor(sessionID, props)
		r.actors[sessionID] = actor
		r.logger.Debug("created session",
			"session", logging.TruncateSessionID(sessionID),
			"total", len(r.actors))
	} else {
		actor.Touch()
	}

	return actor, nil
}

// Get returns the actor for a session if one exists.
func (r *Registry) Get(sessionID string) (*Actor, bool) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	actor, exists := r.actors[sessionID]
	if exists {
		actor.Touch()
	}
	return actor, exists
}

// Delete removes a session's actor.
func (r *Registry) Delete(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actors[sessionID]; !exists {
		return
	}
	delete(r.actors, sessionID)
	r.logger.Debug("deleted session", "session", logging.TruncateSessionID(sessionID))
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actors)
}

// Stop halts the cleanup loop and drops all sessions. Idempotent.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCleanup) })

	r.mu.Lock()
	defer r.mu.Unlock()
	r.actors = make(map[string]*Actor)

	r.logger.Debug("session registry stopped")
}

// minCleanupInterval keeps the loop from spinning when the timeout is
// very short.
const minCleanupInterval = time.Second

func (r *Registry) cleanupLoop() {
	interval := r.sessionTimeout / 2
	if interval < minCleanupInterval {
		interval = minCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.stopCleanup:
			return
		}
	}
}

func (r *Registry) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	count := 0

	for sessionID, actor := range r.actors {
		if now.Sub(actor.LastActivity()) > r.sessionTimeout {
			delete(r.actors, sessionID)
			count++
		}
	}

	if count > 0 {
		r.logger.Debug("cleaned up idle sessions", "count", count)
	}
}
