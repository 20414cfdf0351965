package broker

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"tradegate/internal/credstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTokenEndpoint serves the OAuth token endpoint for refresh and
// exchange grants.
func fakeTokenEndpoint(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("grant_type") {
		case "refresh_token":
			if r.Form.Get("refresh_token") != "good-refresh" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			w.Write([]byte(`{"access_token":"refreshed-token","refresh_token":"good-refresh","token_type":"Bearer","expires_in":3600}`))
		case "authorization_code":
			if r.Form.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			w.Write([]byte(`{"access_token":"exchanged-token","refresh_token":"good-refresh","token_type":"Bearer","expires_in":3600}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"unsupported_grant_type"}`))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testOAuthConfig(srv *httptest.Server) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "tradegate",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  srv.URL + "/authorize",
			TokenURL: srv.URL + "/token",
		},
		RedirectURL: "https://gateway.example.com/auth/callback",
	}
}

// recordStore is a minimal load/save pair over a guarded slot.
type recordStore struct {
	mu     sync.Mutex
	record *credstore.Record
	saves  int
}

func (rs *recordStore) load(context.Context) (*credstore.Record, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.record, nil
}

func (rs *recordStore) save(_ context.Context, record *credstore.Record) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.record = record
	rs.saves++
	return nil
}

func TestInitializeLoadsPersistedCredential(t *testing.T) {
	srv := fakeTokenEndpoint(t)
	rs := &recordStore{record: &credstore.Record{
		AccessToken:  "persisted-token",
		RefreshToken: "good-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}}
	m := NewOAuthTokenManager(testOAuthConfig(srv), rs.load, rs.save, discardLogger())

	require.NoError(t, m.Initialize(context.Background()))

	token, err := m.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "persisted-token", token)
	assert.Zero(t, rs.saves, "a live token must not trigger a refresh save")
}

func TestInitializeWithoutRecord(t *testing.T) {
	srv := fakeTokenEndpoint(t)
	rs := &recordStore{}
	m := NewOAuthTokenManager(testOAuthConfig(srv), rs.load, rs.save, discardLogger())

	require.NoError(t, m.Initialize(context.Background()))

	_, err := m.GetAccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestGetAccessTokenRefreshesAndPersists(t *testing.T) {
	srv := fakeTokenEndpoint(t)
	rs := &recordStore{record: &credstore.Record{
		AccessToken:  "stale-token",
		RefreshToken: "good-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}}
	m := NewOAuthTokenManager(testOAuthConfig(srv), rs.load, rs.save, discardLogger())
	require.NoError(t, m.Initialize(context.Background()))

	token, err := m.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed-token", token)

	assert.Equal(t, 1, rs.saves)
	assert.Equal(t, "refreshed-token", rs.record.AccessToken)
}

func TestGetAccessTokenRefreshFailure(t *testing.T) {
	srv := fakeTokenEndpoint(t)
	rs := &recordStore{record: &credstore.Record{
		AccessToken:  "stale-token",
		RefreshToken: "bad-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}}
	m := NewOAuthTokenManager(testOAuthConfig(srv), rs.load, rs.save, discardLogger())
	require.NoError(t, m.Initialize(context.Background()))

	_, err := m.GetAccessToken(context.Background())
	assert.Error(t, err)
	assert.Zero(t, rs.saves)
}

func TestInitializeIsReentrant(t *testing.T) {
	srv := fakeTokenEndpoint(t)
	rs := &recordStore{record: &credstore.Record{
		AccessToken: "persisted-token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
	m := NewOAuthTokenManager(testOAuthConfig(srv), rs.load, rs.save, discardLogger())

	require.NoError(t, m.Initialize(context.Background()))
	require.NoError(t, m.Initialize(context.Background()))

	token, err := m.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "persisted-token", token)
}

func TestExchangeCode(t *testing.T) {
	srv := fakeTokenEndpoint(t)
	rs := &recordStore{}
	m := NewOAuthTokenManager(testOAuthConfig(srv), rs.load, rs.save, discardLogger())

	record, err := m.ExchangeCode(context.Background(), "good-code", "opaque-state")
	require.NoError(t, err)
	assert.Equal(t, "exchanged-token", record.AccessToken)
	assert.Equal(t, "good-refresh", record.RefreshToken)

	// The exchanged credential is adopted and persisted.
	assert.Equal(t, 1, rs.saves)
	token, err := m.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "exchanged-token", token)
}

func TestExchangeCodeFailure(t *testing.T) {
	srv := fakeTokenEndpoint(t)
	m := NewOAuthTokenManager(testOAuthConfig(srv), nil, nil, discardLogger())

	_, err := m.ExchangeCode(context.Background(), "bad-code", "opaque-state")
	assert.Error(t, err)
}
