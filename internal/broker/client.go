package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TokenProvider supplies the bearer token for outgoing brokerage requests.
// TokenManager satisfies it.
type TokenProvider interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// APIError is a non-2xx response from the brokerage API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("brokerage API error: status=%d code=%s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("brokerage API error: status=%d: %s", e.Status, e.Message)
}

// Account is a brokerage account summary.
type Account struct {
	AccountID   string  `json:"account_id"`
	Type        string  `json:"type"`
	Nickname    string  `json:"nickname,omitempty"`
	CashBalance float64 `json:"cash_balance"`
	Equity      float64 `json:"equity"`
}

// Quote is a market quote for one symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Last      float64   `json:"last"`
	Timestamp time.Time `json:"timestamp"`
}

// Order is a brokerage order.
type Order struct {
	OrderID   string    `json:"order_id"`
	AccountID string    `json:"account_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Quantity  float64   `json:"quantity"`
	Status    string    `json:"status"`
	EnteredAt time.Time `json:"entered_at"`
}

// Transaction is a settled account transaction.
type Transaction struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	Type          string    `json:"type"`
	Amount        float64   `json:"amount"`
	Description   string    `json:"description,omitempty"`
	SettledAt     time.Time `json:"settled_at"`
}

// UserPrincipal identifies the authenticated brokerage user.
type UserPrincipal struct {
	UserID    string `json:"user_id"`
	LoginID   string `json:"login_id,omitempty"`
	AccountNr string `json:"primary_account,omitempty"`
}

// Client is a brokerage REST client bound to a token provider. Requests
// carry no extra timeout layer; the supplied http.Client's own timeout
// behavior applies.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
	logger     *slog.Logger
}

// NewClient creates a brokerage client. httpClient may be nil, in which
// case http.DefaultClient is used.
func NewClient(baseURL string, tokens TokenProvider, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
	}
}

// GetUserPrincipal returns the canonical identity of the authenticated user.
func (c *Client) GetUserPrincipal(ctx context.Context) (*UserPrincipal, error) {
	var principal UserPrincipal
	if err := c.get(ctx, "/v1/userprincipals", nil, &principal); err != nil {
		return nil, err
	}
	return &principal, nil
}

// ListAccounts returns the user's brokerage accounts.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := c.get(ctx, "/v1/accounts", nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// GetQuotes returns market quotes for the given symbols.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) ([]Quote, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("at least one symbol is required")
	}

	query := url.Values{"symbols": {strings.Join(symbols, ",")}}
	var quotes []Quote
	if err := c.get(ctx, "/v1/marketdata/quotes", query, &quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

// ListOrders returns orders for an account.
func (c *Client) ListOrders(ctx context.Context, accountID string) ([]Order, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account ID is required")
	}

	var orders []Order
	if err := c.get(ctx, "/v1/accounts/"+url.PathEscape(accountID)+"/orders", nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListTransactions returns settled transactions for an account.
func (c *Client) ListTransactions(ctx context.Context, accountID string) ([]Transaction, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account ID is required")
	}

	var transactions []Transaction
	if err := c.get(ctx, "/v1/accounts/"+url.PathEscape(accountID)+"/transactions", nil, &transactions); err != nil {
		return nil, err
	}
	return transactions, nil
}

// get performs an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	token, err := c.tokens.GetAccessToken(ctx)
	if err != nil {
		return fmt.Errorf("obtain access token: %w", err)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call brokerage API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode brokerage response: %w", err)
	}
	return nil
}

// maxErrorBodyBytes bounds how much of an error response body is read.
const maxErrorBodyBytes = 4096

// apiError builds an APIError from a non-2xx response. The brokerage
// usually returns {"error": "...", "message": "..."}; anything else is
// carried as raw text.
func (c *Client) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	apiErr := &APIError{Status: resp.StatusCode}

	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && (parsed.Error != "" || parsed.Message != "") {
		apiErr.Code = parsed.Error
		apiErr.Message = parsed.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}

	c.logger.Debug("brokerage API error response", "status", resp.StatusCode, "code", apiErr.Code)
	return apiErr
}
