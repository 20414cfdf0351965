package credstore

import (
	"errors"
	"time"
)

// ErrIdentityMissing is returned when a key derivation is attempted against
// an identity with neither a canonical nor a fallback ID.
var ErrIdentityMissing = errors.New("identity has no canonical or fallback ID")

// Identity addresses a stored credential. At least one field must be set.
// CanonicalID is the brokerage's resolved user identifier and takes
// precedence over FallbackID (the requesting client's identifier) when
// deriving a storage key.
type Identity struct {
	CanonicalID string
	FallbackID  string
}

// IsZero reports whether the identity carries no identifier at all.
func (id Identity) IsZero() bool {
	return id.CanonicalID == "" && id.FallbackID == ""
}

// Record is the opaque credential payload stored per identity.
// Records are replaced wholesale on save, never mutated in place.
type Record struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	Scope        string    `json:"scope,omitempty"`
}

// IsExpired checks if the access token has expired. Returns true if the
// token is expired or will expire within the given margin. Records without
// an expiry never expire.
func (r *Record) IsExpired(margin time.Duration) bool {
	if r.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(r.ExpiresAt)
}
