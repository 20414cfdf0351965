package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a validation error with field context.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors.
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors.
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error.
func (ve *ValidationErrors) Add(field, message string) {
	*ve = append(*ve, ValidationError{Field: field, Message: message})
}

// Validate checks the configuration for problems that would prevent the
// server from operating. Returns nil when the configuration is usable.
func Validate(config TradegateConfig) error {
	var errs ValidationErrors

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		errs.Add("server.port", fmt.Sprintf("must be between 1 and 65535, got %d", config.Server.Port))
	}
	if strings.TrimSpace(config.Auth.StateSecret) == "" {
		errs.Add("auth.stateSecret", "is required (set it in config.yaml or via "+EnvStateSecret+")")
	}
	if config.Auth.StateTTL <= 0 {
		errs.Add("auth.stateTTL", "must be positive")
	}

	switch config.Credentials.Backend {
	case CredentialBackendMemory:
	case CredentialBackendSQLite:
		if strings.TrimSpace(config.Credentials.Path) == "" {
			errs.Add("credentials.path", "is required for the sqlite backend")
		}
	default:
		errs.Add("credentials.backend", fmt.Sprintf("must be one of: %s, %s",
			CredentialBackendMemory, CredentialBackendSQLite))
	}
	if config.Credentials.TTL <= 0 {
		errs.Add("credentials.ttl", "must be positive")
	}

	if strings.TrimSpace(config.Broker.AuthURL) == "" {
		errs.Add("broker.authURL", "is required")
	}
	if strings.TrimSpace(config.Broker.TokenURL) == "" {
		errs.Add("broker.tokenURL", "is required")
	}
	if strings.TrimSpace(config.Broker.ClientID) == "" {
		errs.Add("broker.clientID", "is required")
	}
	if strings.TrimSpace(config.Broker.APIBaseURL) == "" {
		errs.Add("broker.apiBaseURL", "is required")
	}

	if config.Session.Timeout <= 0 {
		errs.Add("session.timeout", "must be positive")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
