package config

import "time"

// TradegateConfig is the top-level configuration structure for tradegate.
type TradegateConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Broker      BrokerConfig      `yaml:"broker"`
	Session     SessionConfig     `yaml:"session"`
}

// CredentialBackend selects the credential persistence backend.
type CredentialBackend string

const (
	// CredentialBackendMemory keeps credentials in process memory.
	CredentialBackendMemory CredentialBackend = "memory"
	// CredentialBackendSQLite persists credentials to a SQLite database.
	CredentialBackendSQLite CredentialBackend = "sqlite"
)

// ServerConfig defines the HTTP listener and public addressing.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"` // Host to bind to (default: localhost)
	Port int    `yaml:"port,omitempty"` // Port for the HTTP endpoint (default: 8090)

	// PublicURL is the externally reachable base URL, used to build the
	// authorization redirect target. Defaults to http://<host>:<port>.
	PublicURL string `yaml:"publicURL,omitempty"`

	LogLevel string `yaml:"logLevel,omitempty"` // debug, info, warn, error (default: info)
}

// AuthConfig defines the state token signing parameters.
type AuthConfig struct {
	// StateSecret signs pending-authorization state tokens. Overridable
	// via TRADEGATE_STATE_SECRET; required either way.
	StateSecret string `yaml:"stateSecret,omitempty"`

	// StateTTL bounds how long an issued state token stays redeemable.
	StateTTL time.Duration `yaml:"stateTTL,omitempty"`
}

// CredentialsConfig selects and tunes the credential store.
type CredentialsConfig struct {
	Backend CredentialBackend `yaml:"backend,omitempty"` // memory or sqlite (default: memory)
	Path    string            `yaml:"path,omitempty"`    // SQLite database path (sqlite backend only)
	TTL     time.Duration     `yaml:"ttl,omitempty"`     // Credential retention (default: 90 days)
}

// BrokerConfig defines the upstream brokerage OAuth application and API.
type BrokerConfig struct {
	AuthURL  string `yaml:"authURL"`  // Brokerage authorization endpoint
	TokenURL string `yaml:"tokenURL"` // Brokerage token endpoint
	ClientID string `yaml:"clientID"` // OAuth application client ID

	// ClientSecret is overridable via TRADEGATE_BROKER_CLIENT_SECRET.
	ClientSecret string `yaml:"clientSecret,omitempty"`

	RedirectURL string   `yaml:"redirectURL,omitempty"` // Defaults to <publicURL>/auth/callback
	Scopes      []string `yaml:"scopes,omitempty"`

	APIBaseURL string `yaml:"apiBaseURL"` // Brokerage REST API base URL

	// CompletionURL is where the user lands after the flow finishes.
	CompletionURL string `yaml:"completionURL,omitempty"`
}

// SessionConfig tunes session lifecycle.
type SessionConfig struct {
	Timeout     time.Duration `yaml:"timeout,omitempty"`     // Idle session cleanup (default: 30m)
	MaxSessions int           `yaml:"maxSessions,omitempty"` // Concurrent session cap (default: 10000)

	// DefaultClientID backfills the fallback identity for sessions that
	// predate canonical user IDs.
	DefaultClientID string `yaml:"defaultClientID,omitempty"`
}
