package config

import "time"

const (
	// DefaultCallbackPath is the path the brokerage redirects back to.
	DefaultCallbackPath = "/auth/callback"

	// DefaultCompletionPath is where a finished flow sends the user.
	DefaultCompletionPath = "/auth/complete"

	// DefaultCredentialTTL is how long a stored credential is retained.
	// Brokerage refresh tokens are typically valid for 90 days.
	DefaultCredentialTTL = 90 * 24 * time.Hour
)

// GetDefaultConfig returns the default configuration for tradegate.
func GetDefaultConfig() TradegateConfig {
	return TradegateConfig{
		Server: ServerConfig{
			Host:     "localhost",
			Port:     8090,
			LogLevel: "info",
		},
		Auth: AuthConfig{
			StateTTL: 10 * time.Minute,
		},
		Credentials: CredentialsConfig{
			Backend: CredentialBackendMemory,
			TTL:     DefaultCredentialTTL,
		},
		Session: SessionConfig{
			Timeout:     30 * time.Minute,
			MaxSessions: 10000,
		},
	}
}
