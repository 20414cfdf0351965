// Package authstate carries authorization-request context across the
// external provider redirect as a signed, expiring opaque token.
//
// The token is stateless: payload and signature travel together, so no
// server-side state survives between the initiate and callback legs of the
// handshake. A decoded token proves that this server encoded it (HMAC over
// an operator-provided secret) and that it has not expired; it does not
// prove single use. Replay of a still-unexpired token is bounded by the TTL.
package authstate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidOrExpiredState is returned for every decode failure: bad
// encoding, wrong signature, malformed payload, or expiry. Decoding fails
// closed; a token is either fully trusted or not at all, and the caller
// learns nothing about which check failed.
var ErrInvalidOrExpiredState = errors.New("invalid or expired state token")

// DefaultTTL is how long an encoded state token stays valid. Long enough
// for a human to click through the provider's consent screen, short enough
// to bound replay.
const DefaultTTL = 10 * time.Minute

// PendingAuthorization is the in-flight request context created at initiate
// time, carried opaque through the provider redirect, and reconstructed at
// callback time.
type PendingAuthorization struct {
	// ClientID is the requesting client's identifier, the provisional
	// credential key until the canonical user ID is discovered.
	ClientID string `json:"client_id"`

	// Scope is the authorization scope being requested.
	Scope string `json:"scope"`

	// RedirectURI is where the provider sends the user after consent.
	RedirectURI string `json:"redirect_uri"`

	// Nonce is a random value binding this token to one initiate request.
	Nonce string `json:"nonce"`

	// IssuedAt is when the pending authorization was created.
	IssuedAt time.Time `json:"issued_at"`
}

// statePayload is the wire form of a pending authorization with its
// embedded expiry.
type statePayload struct {
	PendingAuthorization
	ExpiresAt time.Time `json:"expires_at"`
}

// Codec encodes and decodes pending authorizations. The signing secret is
// operator-provided; an attacker without it cannot construct a token that
// decodes successfully.
type Codec struct {
	secret []byte
	ttl    time.Duration
}

// NewCodec creates a codec signing with secret. A non-positive ttl falls
// back to DefaultTTL.
func NewCodec(secret []byte, ttl time.Duration) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("state signing secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{secret: secret, ttl: ttl}, nil
}

// NewNonce returns a fresh random nonce for a pending authorization.
func NewNonce() string {
	return uuid.NewString()
}

// Encode serializes and signs p with an embedded expiry. The result is
// URL-safe: base64url(payload) "." base64url(signature).
func (c *Codec) Encode(p PendingAuthorization) (string, error) {
	payload := statePayload{
		PendingAuthorization: p,
		ExpiresAt:            time.Now().Add(c.ttl),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode state payload: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(raw)
	return encoded + "." + base64.RawURLEncoding.EncodeToString(c.sign(encoded)), nil
}

// Decode verifies the signature and expiry of a token and reconstructs the
// pending authorization. Every failure mode returns ErrInvalidOrExpiredState.
func (c *Codec) Decode(token string) (*PendingAuthorization, error) {
	encodedPayload, encodedSig, ok := strings.Cut(token, ".")
	if !ok {
		return nil, ErrInvalidOrExpiredState
	}

	sig, err := base64.RawURLEncoding.DecodeString(encodedSig)
	if err != nil {
		return nil, ErrInvalidOrExpiredState
	}

	// Verify before parsing: unsigned input never reaches the JSON decoder.
	if !hmac.Equal(sig, c.sign(encodedPayload)) {
		return nil, ErrInvalidOrExpiredState
	}

	raw, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return nil, ErrInvalidOrExpiredState
	}

	var payload statePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrInvalidOrExpiredState
	}

	if payload.ExpiresAt.IsZero() || time.Now().After(payload.ExpiresAt) {
		return nil, ErrInvalidOrExpiredState
	}

	pending := payload.PendingAuthorization
	return &pending, nil
}

func (c *Codec) sign(encodedPayload string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(encodedPayload))
	return mac.Sum(nil)
}
