package server

import (
	"context"
	"sync"
	"time"
)

// DefaultApprovalTTL is how long a recorded client approval lets repeat
// connections skip the approval page.
const DefaultApprovalTTL = 30 * 24 * time.Hour

// Approvals remembers which clients completed an authorization, so a
// returning client is sent straight to the provider instead of the
// approval page. In-memory; losing it only means one extra approval
// click.
type Approvals struct {
	mu      sync.RWMutex
	entries map[string]time.Time // clientID -> expiry

	ttl         time.Duration
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewApprovals creates an approval registry and starts its cleanup loop.
// Callers MUST call Stop when done.
func NewApprovals(ttl time.Duration) *Approvals {
	if ttl <= 0 {
		ttl = DefaultApprovalTTL
	}
	a := &Approvals{
		entries:     make(map[string]time.Time),
		ttl:         ttl,
		stopCleanup: make(chan struct{}),
	}
	go a.cleanupLoop()
	return a
}

// HasValidApproval implements authflow.ClientRegistry.
func (a *Approvals) HasValidApproval(_ context.Context, clientID string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	expiry, ok := a.entries[clientID]
	return ok && time.Now().Before(expiry), nil
}

// Record marks a client as approved, refreshing its expiry.
func (a *Approvals) Record(clientID string) {
	if clientID == "" {
		return
	}
	a.mu.Lock()
	a.entries[clientID] = time.Now().Add(a.ttl)
	a.mu.Unlock()
}

// Stop halts the cleanup loop. Idempotent.
func (a *Approvals) Stop() {
	a.stopOnce.Do(func() { close(a.stopCleanup) })
}

func (a *Approvals) cleanupLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.cleanup()
		case <-a.stopCleanup:
			return
		}
	}
}

func (a *Approvals) cleanup() {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	for clientID, expiry := range a.entries {
		if now.After(expiry) {
			delete(a.entries, clientID)
		}
	}
}
