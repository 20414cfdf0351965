// Package credstore persists brokerage credentials keyed by user identity.
//
// A credential may be stored before the brokerage's canonical user ID is
// known: during the authorization handshake only the requesting client's ID
// is available, so records are initially keyed by that fallback identifier.
// Once the canonical ID is discovered, the same record is written under both
// keys so that a later session carrying either identifier alone resolves the
// same credential. Migrate/MigrateIfNeeded provide copy-based key migration
// for sessions that predate the dual-key write.
//
// The package owns all Record instances. Records are never mutated in place;
// Save replaces the stored payload wholesale and renews its TTL.
//
// Two backends are provided: an in-memory map for tests and ephemeral
// deployments, and a SQLite-backed store for durable single-node
// deployments. Both enforce per-entry expiry independent of any retention
// the backing medium might have.
package credstore
