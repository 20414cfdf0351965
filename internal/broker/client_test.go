package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegate/internal/credstore"
)

func staticClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, StaticToken(&credstore.Record{AccessToken: "tok"}), nil, discardLogger())
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	c := staticClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"user_id":"u1"}`))
	})

	principal, err := c.GetUserPrincipal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "u1", principal.UserID)
}

func TestClientListAccounts(t *testing.T) {
	c := staticClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts", r.URL.Path)
		w.Write([]byte(`[{"account_id":"a1","type":"margin","equity":1200.5}]`))
	})

	accounts, err := c.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "a1", accounts[0].AccountID)
	assert.Equal(t, 1200.5, accounts[0].Equity)
}

func TestClientGetQuotes(t *testing.T) {
	c := staticClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/marketdata/quotes", r.URL.Path)
		assert.Equal(t, "AAPL,MSFT", r.URL.Query().Get("symbols"))
		w.Write([]byte(`[{"symbol":"AAPL","last":190.1},{"symbol":"MSFT","last":410.2}]`))
	})

	quotes, err := c.GetQuotes(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Len(t, quotes, 2)
}

func TestClientGetQuotesRequiresSymbols(t *testing.T) {
	c := staticClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := c.GetQuotes(context.Background(), nil)
	assert.Error(t, err)
}

func TestClientListOrdersRequiresAccountID(t *testing.T) {
	c := staticClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := c.ListOrders(context.Background(), "")
	assert.Error(t, err)
}

func TestClientAPIErrorParsing(t *testing.T) {
	c := staticClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"insufficient_scope","message":"trading scope required"}`))
	})

	_, err := c.ListAccounts(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "insufficient_scope", apiErr.Code)
	assert.Contains(t, apiErr.Message, "trading scope")
}

func TestClientAPIErrorNonJSONBody(t *testing.T) {
	c := staticClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	})

	_, err := c.ListAccounts(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "upstream unavailable", apiErr.Message)
}

func TestClientTokenFailureShortCircuits(t *testing.T) {
	called := false
	c := staticClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	c.tokens = StaticToken(nil)

	_, err := c.ListAccounts(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.False(t, called, "no API call without a token")
}

func TestProviderAuthorizeURL(t *testing.T) {
	srv := fakeTokenEndpoint(t)
	p := NewProvider(testOAuthConfig(srv), "https://client.example.com/connected")

	authURL := p.AuthorizeURL("opaque-state")
	assert.Contains(t, authURL, "/authorize")
	assert.Contains(t, authURL, "state=opaque-state")
	assert.Contains(t, authURL, "access_type=offline")
}

func TestProviderComplete(t *testing.T) {
	srv := fakeTokenEndpoint(t)
	p := NewProvider(testOAuthConfig(srv), "https://client.example.com/connected")

	target, err := p.Complete(context.Background(), "u1", "c1", "trading.read")
	require.NoError(t, err)
	assert.Contains(t, target, "https://client.example.com/connected?")
	assert.Contains(t, target, "user_id=u1")
	assert.Contains(t, target, "client_id=c1")
	assert.Contains(t, target, "status=authorized")
}
