package credstore

import (
	"context"
	"time"
)

// Backend is the key→blob abstraction the store is built on. Entries expire
// after the TTL given at write time; an expired entry behaves exactly like
// an absent one. Absence is reported via the found flag, not an error.
type Backend interface {
	// Get returns the value stored under key, or found=false if the key is
	// absent or expired.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key, replacing any existing entry and renewing
	// the TTL. A non-positive TTL stores the entry without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the entry under key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources (background reapers, connections).
	Close() error
}
