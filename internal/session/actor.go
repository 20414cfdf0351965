package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tradegate/internal/broker"
	"tradegate/internal/credstore"
	"tradegate/pkg/logging"
)

// State is the actor's lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateRecovering    State = "recovering"
)

// ErrNotReady is returned when a caller's readiness wait expires before the
// actor finishes initializing.
var ErrNotReady = errors.New("session actor is not ready")

// Props is the durable identity a session carries across reconnects. Set
// once at authorization completion; read-only afterwards except for a
// one-time backfill of FallbackID when absent at first initialization.
type Props struct {
	CanonicalID string
	FallbackID  string
}

// Settings is the resolved per-session configuration.
type Settings struct {
	LogLevel        slog.Level
	DefaultClientID string
}

// ConfigResolver resolves session configuration. External collaborator.
type ConfigResolver interface {
	Resolve(ctx context.Context) (Settings, error)
}

// BrokerAPI is the slice of the brokerage client the actor's tools use.
type BrokerAPI interface {
	ListAccounts(ctx context.Context) ([]broker.Account, error)
	GetQuotes(ctx context.Context, symbols []string) ([]broker.Quote, error)
	ListOrders(ctx context.Context, accountID string) ([]broker.Order, error)
	ListTransactions(ctx context.Context, accountID string) ([]broker.Transaction, error)
}

// TokenManagerFactory builds a token manager bound to credential accessors.
type TokenManagerFactory func(load broker.LoadFunc, save broker.SaveFunc, logger *slog.Logger) broker.TokenManager

// ClientFactory builds a brokerage client bound to a token provider.
type ClientFactory func(tokens broker.TokenProvider, logger *slog.Logger) BrokerAPI

// Deps are the actor's collaborators, injected at construction.
type Deps struct {
	Config          ConfigResolver
	Store           *credstore.Store
	Tools           ToolRegistry
	NewTokenManager TokenManagerFactory
	NewClient       ClientFactory

	// NewLogger constructs the level-bound logger used from step 2 onward.
	NewLogger func(level slog.Level) *slog.Logger

	// Logger covers the steps before configuration is resolved.
	Logger *slog.Logger
}

// Actor is one session's long-lived unit. All state transitions of a
// single actor run strictly sequentially: Initialize and Reconnect share
// one mutex, so no two sequences ever interleave for the same instance.
// Distinct actors run concurrently and share only the credential store.
type Actor struct {
	sessionID string

	mu    sync.Mutex // serializes initialization and recovery
	props Props
	deps  Deps

	logger  *slog.Logger
	manager broker.TokenManager

	stateMu sync.RWMutex // guards state and client, both read by tool handlers
	state   State
	client  BrokerAPI

	ready     chan struct{}
	readyOnce sync.Once

	minimalRegistered bool

	activityMu   sync.Mutex
	lastActivity time.Time
}

// NewActor creates an actor for the given session and identity.
func NewActor(sessionID string, props Props, deps Deps) *Actor {
	return &Actor{
		sessionID:    sessionID,
		props:        props,
		deps:         deps,
		logger:       deps.Logger,
		state:        StateUninitialized,
		ready:        make(chan struct{}),
		lastActivity: time.Now(),
	}
}

// SessionID returns the actor's session identifier.
func (a *Actor) SessionID() string {
	return a.sessionID
}

// State returns the actor's current lifecycle state.
func (a *Actor) State() State {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.state
}

func (a *Actor) setState(s State) {
	a.stateMu.Lock()
	a.state = s
	a.stateMu.Unlock()
}

// setClient publishes the client under the same lock tool handlers read it
// with. Handlers run on server goroutines and may race with recovery.
func (a *Actor) setClient(c BrokerAPI) {
	a.stateMu.Lock()
	a.client = c
	a.stateMu.Unlock()
}

func (a *Actor) markReady() {
	a.setState(StateReady)
	a.readyOnce.Do(func() { close(a.ready) })
}

// Ready returns a channel closed once the actor first reaches READY.
func (a *Actor) Ready() <-chan struct{} {
	return a.ready
}

// AwaitReady blocks until the actor is READY or the timeout elapses. The
// stream entry point uses this instead of polling: one bounded wait, one
// explicit failure.
func (a *Actor) AwaitReady(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-a.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrNotReady, timeout)
	}
}

// Touch records session activity for idle cleanup.
func (a *Actor) Touch() {
	a.activityMu.Lock()
	a.lastActivity = time.Now()
	a.activityMu.Unlock()
}

// LastActivity returns the time of the most recent activity.
func (a *Actor) LastActivity() time.Time {
	a.activityMu.Lock()
	defer a.activityMu.Unlock()
	return a.lastActivity
}

// Initialize runs the full initialization sequence. Re-entrant safe: an
// already-built token manager is reused rather than rebuilt. Any failure
// after the minimal registration is logged with full detail and returned —
// initialization failure is fatal for that attempt, and the hosting
// boundary decides whether to retry.
func (a *Actor) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initializeLocked(ctx)
}

func (a *Actor) initializeLocked(ctx context.Context) error {
	a.setState(StateInitializing)

	// Step 1: the minimal capability goes up synchronously, before any
	// work that can block or fail. The connection layer may list tools at
	// any moment; this guarantees it always finds at least the status
	// tool.
	if err := a.registerMinimalTools(); err != nil {
		a.setState(StateUninitialized)
		return fmt.Errorf("register minimal tools: %w", err)
	}

	if err := a.initializeAfterMinimal(ctx); err != nil {
		a.setState(StateUninitialized)
		a.logger.Error("session initialization failed",
			"session", logging.TruncateSessionID(a.sessionID),
			"state", string(StateInitializing),
			"error", err)
		return err
	}

	a.markReady()
	a.logger.Info("session ready",
		"session", logging.TruncateSessionID(a.sessionID),
		"has_canonical", a.props.CanonicalID != "")
	return nil
}

func (a *Actor) initializeAfterMinimal(ctx context.Context) error {
	// Step 2: resolve configuration and bind a logger to the resolved
	// level. Everything after this logs through the bound logger.
	settings, err := a.deps.Config.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolve configuration: %w", err)
	}
	a.logger = a.deps.NewLogger(settings.LogLevel)

	// Step 3: one-time fallback backfill.
	if a.props.FallbackID == "" && settings.DefaultClientID != "" {
		a.props.FallbackID = settings.DefaultClientID
		a.logger.Debug("backfilled fallback ID from configuration",
			"session", logging.TruncateSessionID(a.sessionID))
	}

	// Step 4: identity-bound credential accessors.
	identity := credstore.Identity{
		CanonicalID: a.props.CanonicalID,
		FallbackID:  a.props.FallbackID,
	}
	load := func(ctx context.Context) (*credstore.Record, error) {
		return a.deps.Store.Load(ctx, identity)
	}
	save := func(ctx context.Context, record *credstore.Record) error {
		return a.deps.Store.Save(ctx, identity, record)
	}

	// Step 5: construct the token manager, reusing an existing instance.
	if a.manager == nil {
		a.manager = a.deps.NewTokenManager(load, save, a.logger)
	}

	// Step 6: the manager loads its credential before the client is
	// constructed. A client built against an unloaded manager would bind
	// to a stale or absent credential.
	if err := a.manager.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize token manager: %w", err)
	}

	// Step 7: opportunistic key migration so canonical lookups succeed
	// even when an earlier write only reached the fallback key.
	if a.props.CanonicalID != "" && a.props.FallbackID != "" {
		a.deps.Store.MigrateIfNeeded(ctx,
			credstore.Identity{FallbackID: a.props.FallbackID},
			credstore.Identity{CanonicalID: a.props.CanonicalID})
	}

	// Step 8: the client binds to the now-initialized manager.
	a.setClient(a.deps.NewClient(a.manager, a.logger))

	// Step 9: the full capability set.
	if err := a.registerFullTools(); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	return nil
}

// Reconnect runs the tiered recovery state machine. It returns whether the
// session is usable again; it never returns an error, because the
// connection layer owns the decision of what to do with a dead session.
func (a *Actor) Reconnect(ctx context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.setState(StateRecovering)
	session := logging.TruncateSessionID(a.sessionID)

	// Tier 0: nothing to recover, build from scratch. A manager without a
	// client means a previous initialization died between steps 6 and 8;
	// only a full build heals that, so it takes this path too.
	if a.manager == nil || a.brokerClient() == nil {
		if err := a.initializeLocked(ctx); err != nil {
			a.logger.Warn("recovery: initial build failed", "session", session, "error", err)
			return a.hardReset(ctx)
		}
		return true
	}

	// Tier 1: liveness probe. A live token means nothing else needs
	// touching.
	if _, err := a.manager.GetAccessToken(ctx); err == nil {
		a.logger.Debug("recovery: token probe succeeded", "session", session)
		a.markReady()
		return true
	} else {
		a.logger.Debug("recovery: token probe failed", "session", session, "error", err)
	}

	// Tier 2: soft reload of the persisted credential.
	if err := a.manager.Initialize(ctx); err == nil {
		if _, err := a.manager.GetAccessToken(ctx); err == nil {
			a.logger.Debug("recovery: credential reload succeeded", "session", session)
			a.markReady()
			return true
		}
	} else {
		a.logger.Debug("recovery: credential reload failed", "session", session, "error", err)
	}

	// Tier 3: hard reset.
	return a.hardReset(ctx)
}

// hardReset rebuilds the token manager and client wholesale. A failure
// here exhausts recovery: the result is false, never a propagated error.
func (a *Actor) hardReset(ctx context.Context) bool {
	a.manager = nil
	a.setClient(nil)

	if err := a.initializeLocked(ctx); err != nil {
		a.logger.Warn("recovery exhausted",
			"session", logging.TruncateSessionID(a.sessionID), "error", err)
		a.setState(StateUninitialized)
		return false
	}
	return true
}

func (a *Actor) registerMinimalTools() error {
	if a.minimalRegistered {
		return nil
	}
	if err := a.deps.Tools.RegisterTools(a.sessionID, a.minimalTools()); err != nil {
		return err
	}
	a.minimalRegistered = true
	return nil
}

func (a *Actor) registerFullTools() error {
	return a.deps.Tools.RegisterTools(a.sessionID, a.fullTools())
}
