package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"tradegate/pkg/logging"
)

// DefaultKeyPrefix namespaces credential keys in the backend so the same
// backend can host other entry kinds without collisions.
const DefaultKeyPrefix = "cred:"

// Store maps identities to credential records on top of a Backend.
// It owns key derivation, serialization, TTL renewal, and copy-based key
// migration. Store instances are safe for concurrent use; the backend
// provides last-write-wins semantics for racing writes to the same key.
type Store struct {
	backend Backend
	prefix  string
	ttl     time.Duration
	logger  *slog.Logger
}

// NewStore creates a credential store. Every Save renews the entry's TTL.
func NewStore(backend Backend, ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{
		backend: backend,
		prefix:  DefaultKeyPrefix,
		ttl:     ttl,
		logger:  logger,
	}
}

// DeriveKey returns the backend key for an identity: the canonical ID when
// present, the fallback ID otherwise. Identical identities always derive
// identical keys. Returns ErrIdentityMissing when neither ID is set.
func (s *Store) DeriveKey(identity Identity) (string, error) {
	switch {
	case identity.CanonicalID != "":
		return s.prefix + identity.CanonicalID, nil
	case identity.FallbackID != "":
		return s.prefix + identity.FallbackID, nil
	default:
		return "", ErrIdentityMissing
	}
}

// Load returns the record stored for the identity, or nil if none exists.
// Absence is not an error; backend transport errors are not masked.
func (s *Store) Load(ctx context.Context, identity Identity) (*Record, error) {
	key, err := s.DeriveKey(identity)
	if err != nil {
		return nil, err
	}

	value, found, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if !found {
		return nil, nil
	}

	var record Record
	if err := json.Unmarshal(value, &record); err != nil {
		return nil, fmt.Errorf("decode credential record: %w", err)
	}
	return &record, nil
}

// Save stores the record for the identity, unconditionally overwriting any
// existing record and renewing the TTL.
func (s *Store) Save(ctx context.Context, identity Identity, record *Record) error {
	key, err := s.DeriveKey(identity)
	if err != nil {
		return err
	}

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode credential record: %w", err)
	}

	if err := s.backend.Set(ctx, key, value, s.ttl); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Migrate copies the record stored under from's key to to's key. The source
// record is left intact so either identifier continues to resolve the same
// credential. Returns whether a copy occurred; copying nothing (no source
// record) is a false result, not an error.
func (s *Store) Migrate(ctx context.Context, from, to Identity) (bool, error) {
	fromKey, err := s.DeriveKey(from)
	if err != nil {
		return false, err
	}
	toKey, err := s.DeriveKey(to)
	if err != nil {
		return false, err
	}
	if fromKey == toKey {
		return false, nil
	}

	value, found, err := s.backend.Get(ctx, fromKey)
	if err != nil {
		return false, fmt.Errorf("read migration source: %w", err)
	}
	if !found {
		return false, nil
	}

	if err := s.backend.Set(ctx, toKey, value, s.ttl); err != nil {
		return false, fmt.Errorf("write migration target: %w", err)
	}
	return true, nil
}

// MigrateIfNeeded is a best-effort Migrate that never fails. It sits on
// session-setup paths where blocking on a migration is unacceptable, so a
// no-op or an error only produces a warning.
func (s *Store) MigrateIfNeeded(ctx context.Context, from, to Identity) {
	copied, err := s.Migrate(ctx, from, to)
	if err != nil {
		s.logger.Warn("credential migration failed",
			"from", logging.TruncateSessionID(from.FallbackID),
			"to", logging.TruncateSessionID(to.CanonicalID),
			"error", err)
		return
	}
	if copied {
		s.logger.Debug("migrated credential to canonical key",
			"to", logging.TruncateSessionID(to.CanonicalID))
	}
}
