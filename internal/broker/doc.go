// Package broker talks to the brokerage: a REST client for account, quote,
// order, and transaction data, and the token manager that keeps the client
// authenticated.
//
// The token manager is consumed everywhere else as an opaque capability
// (Initialize, GetAccessToken, ExchangeCode). The default implementation
// wraps golang.org/x/oauth2 and persists refreshed credentials through
// load/save closures supplied by the caller, so the manager itself never
// knows how or where credentials are keyed.
package broker
