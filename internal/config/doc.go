// Package config loads, defaults, and validates tradegate's configuration.
//
// Configuration comes from a single config.yaml in the configuration
// directory (default ~/.config/tradegate), layered over built-in defaults.
// Secrets are taken from the environment when present so they never need
// to be written to disk: TRADEGATE_STATE_SECRET and
// TRADEGATE_BROKER_CLIENT_SECRET override their file counterparts.
package config
