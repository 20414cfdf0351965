package credstore

import (
	"context"
	"sync"
	"time"
)

// memoryEntry is a stored value with its expiry. A zero deadline means the
// entry never expires.
type memoryEntry struct {
	value    []byte
	deadline time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && now.After(e.deadline)
}

// MemoryBackend is a thread-safe in-memory Backend. Expired entries are
// filtered on read and reaped by a background cleanup goroutine.
//
// Callers MUST call Close when done to stop the cleanup goroutine.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewMemoryBackend creates a new in-memory backend and starts its cleanup
// goroutine.
func NewMemoryBackend() *MemoryBackend {
	b := &MemoryBackend{
		entries:         make(map[string]memoryEntry),
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go b.cleanupLoop()

	return b
}

// Get implements Backend.
func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.entries[key]
	if !ok || entry.expired(time.Now()) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set implements Backend.
func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var deadline time.Time
	if ttl > 0 {
		deadline = time.Now().Add(ttl)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[key] = memoryEntry{value: value, deadline: deadline}
	return nil
}

// Delete implements Backend.
func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.entries, key)
	return nil
}

// Close stops the background cleanup goroutine. Safe to call more than once.
func (b *MemoryBackend) Close() error {
	b.stopOnce.Do(func() {
		close(b.stopCleanup)
	})
	return nil
}

// cleanupLoop periodically removes expired entries.
func (b *MemoryBackend) cleanupLoop() {
	ticker := time.NewTicker(b.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.cleanup()
		case <-b.stopCleanup:
			return
		}
	}
}

// cleanup removes all expired entries.
func (b *MemoryBackend) cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for key, entry := range b.entries {
		if entry.expired(now) {
			delete(b.entries, key)
		}
	}
}
