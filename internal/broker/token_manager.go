package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"tradegate/internal/credstore"
)

// refreshMargin is how early a token counts as expiring. Accounts for clock
// skew between this host and the brokerage's token endpoint.
const refreshMargin = 30 * time.Second

// ErrNoCredential is returned by GetAccessToken when no credential has been
// loaded or exchanged yet.
var ErrNoCredential = errors.New("no credential available")

// TokenManager is the external token-refresh capability. Implementations
// own the refresh mechanics; callers treat them as opaque.
type TokenManager interface {
	// Initialize loads the persisted credential into the manager. It is
	// idempotent; a second call reloads from persistence.
	Initialize(ctx context.Context) error

	// GetAccessToken returns a live access token, refreshing and persisting
	// it first when the cached one is expiring.
	GetAccessToken(ctx context.Context) (string, error)

	// ExchangeCode redeems a one-time authorization code for a credential.
	// rawState is the opaque state value that accompanied the code; engines
	// that bind the exchange to the originating request consume it, the
	// standard authorization-code grant does not.
	ExchangeCode(ctx context.Context, code, rawState string) (*credstore.Record, error)
}

// LoadFunc loads the persisted credential record. Returns nil, nil when no
// record exists.
type LoadFunc func(ctx context.Context) (*credstore.Record, error)

// SaveFunc persists a credential record wholesale.
type SaveFunc func(ctx context.Context, record *credstore.Record) error

// OAuthTokenManager is the default TokenManager on golang.org/x/oauth2.
// It caches the current token in memory and writes every refreshed or
// exchanged credential back through the save closure.
type OAuthTokenManager struct {
	cfg    *oauth2.Config
	load   LoadFunc
	save   SaveFunc
	logger *slog.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

// NewOAuthTokenManager creates a token manager. load and save may be nil
// for managers that only perform code exchange (the authorization handshake
// persists the result itself).
func NewOAuthTokenManager(cfg *oauth2.Config, load LoadFunc, save SaveFunc, logger *slog.Logger) *OAuthTokenManager {
	return &OAuthTokenManager{
		cfg:    cfg,
		load:   load,
		save:   save,
		logger: logger,
	}
}

// Initialize implements TokenManager.
func (m *OAuthTokenManager) Initialize(ctx context.Context) error {
	if m.load == nil {
		return nil
	}

	record, err := m.load(ctx)
	if err != nil {
		return fmt.Errorf("load persisted credential: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if record == nil {
		m.token = nil
		m.logger.Debug("no persisted credential found")
		return nil
	}

	m.token = recordToToken(record)
	m.logger.Debug("loaded persisted credential", "expires_at", record.ExpiresAt)
	return nil
}

// GetAccessToken implements TokenManager. A refresh that yields a new token
// is persisted before the token is handed out, so a crash after this call
// never loses a rotated refresh token.
func (m *OAuthTokenManager) GetAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil {
		return "", ErrNoCredential
	}

	current := m.token
	if current.AccessToken != "" && (current.Expiry.IsZero() || time.Now().Add(refreshMargin).Before(current.Expiry)) {
		return current.AccessToken, nil
	}

	refreshed, err := m.cfg.TokenSource(ctx, current).Token()
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}

	if refreshed.AccessToken != current.AccessToken {
		m.token = refreshed
		if m.save != nil {
			if err := m.save(ctx, tokenToRecord(refreshed)); err != nil {
				return "", fmt.Errorf("persist refreshed credential: %w", err)
			}
		}
		m.logger.Debug("refreshed access token", "expires_at", refreshed.Expiry)
	}

	return refreshed.AccessToken, nil
}

// ExchangeCode implements TokenManager. The exchanged credential becomes
// the manager's current token and is persisted when a save closure is set.
func (m *OAuthTokenManager) ExchangeCode(ctx context.Context, code, _ string) (*credstore.Record, error) {
	token, err := m.cfg.Exchange(ctx, code, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	record := tokenToRecord(token)

	m.mu.Lock()
	m.token = token
	m.mu.Unlock()

	if m.save != nil {
		if err := m.save(ctx, record); err != nil {
			return nil, fmt.Errorf("persist exchanged credential: %w", err)
		}
	}

	return record, nil
}

func recordToToken(record *credstore.Record) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		TokenType:    record.TokenType,
		Expiry:       record.ExpiresAt,
	}
}

func tokenToRecord(token *oauth2.Token) *credstore.Record {
	return &credstore.Record{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresAt:    token.Expiry,
	}
}
