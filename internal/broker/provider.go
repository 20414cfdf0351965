package broker

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/oauth2"

	"tradegate/internal/credstore"
)

// Provider is the brokerage's authorization provider: it produces the
// redirect that sends a user to the consent screen and the final redirect
// that hands an authorized session back to the tool client.
type Provider struct {
	cfg         *oauth2.Config
	completeURL string
}

// NewProvider creates a provider gateway. completeURL is where authorized
// users land once the handshake finishes (typically the tool client's own
// connect-complete page).
func NewProvider(cfg *oauth2.Config, completeURL string) *Provider {
	return &Provider{cfg: cfg, completeURL: completeURL}
}

// AuthorizeURL builds the provider authorization redirect embedding the
// opaque state token.
func (p *Provider) AuthorizeURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Complete yields the final redirect target for a finished authorization.
func (p *Provider) Complete(_ context.Context, canonicalID, fallbackID, scope string) (string, error) {
	target, err := url.Parse(p.completeURL)
	if err != nil {
		return "", fmt.Errorf("parse completion URL: %w", err)
	}

	query := target.Query()
	query.Set("client_id", fallbackID)
	query.Set("user_id", canonicalID)
	if scope != "" {
		query.Set("scope", scope)
	}
	query.Set("status", "authorized")
	target.RawQuery = query.Encode()

	return target.String(), nil
}

// staticTokenProvider yields one fixed access token. Used to call the
// brokerage with a freshly exchanged credential before any token manager
// owns it.
type staticTokenProvider struct {
	record *credstore.Record
}

func (s staticTokenProvider) GetAccessToken(context.Context) (string, error) {
	if s.record == nil || s.record.AccessToken == "" {
		return "", ErrNoCredential
	}
	return s.record.AccessToken, nil
}

// StaticToken returns a TokenProvider that always yields the record's
// access token, without refresh.
func StaticToken(record *credstore.Record) TokenProvider {
	return staticTokenProvider{record: record}
}
