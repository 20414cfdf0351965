package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0o600))
	return dir
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	config, err := LoadConfig(t.TempDir(), testLogger())
	require.NoError(t, err)

	defaults := GetDefaultConfig()
	assert.Equal(t, defaults.Server.Host, config.Server.Host)
	assert.Equal(t, defaults.Server.Port, config.Server.Port)
	assert.Equal(t, defaults.Credentials.Backend, config.Credentials.Backend)
	assert.Equal(t, defaults.Credentials.TTL, config.Credentials.TTL)
}

func TestLoadConfigParsesYAML(t *testing.T) {
	dir := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 9000
auth:
  stateSecret: topsecret
  stateTTL: 5m
credentials:
  backend: sqlite
  path: /var/lib/tradegate/creds.db
broker:
  authURL: https://broker.example/oauth/authorize
  tokenURL: https://broker.example/oauth/token
  clientID: app-1
  apiBaseURL: https://api.broker.example
session:
  timeout: 15m
`)

	config, err := LoadConfig(dir, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "topsecret", config.Auth.StateSecret)
	assert.Equal(t, 5*time.Minute, config.Auth.StateTTL)
	assert.Equal(t, CredentialBackendSQLite, config.Credentials.Backend)
	assert.Equal(t, 15*time.Minute, config.Session.Timeout)
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	dir := writeConfig(t, "server: [not a mapping")

	_, err := LoadConfig(dir, testLogger())
	assert.Error(t, err)
}

func TestLoadConfigDerivedDefaults(t *testing.T) {
	dir := writeConfig(t, `
server:
  host: broker-bridge.internal
  port: 8443
broker:
  clientID: app-1
`)

	config, err := LoadConfig(dir, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "http://broker-bridge.internal:8443", config.Server.PublicURL)
	assert.Equal(t, "http://broker-bridge.internal:8443/auth/callback", config.Broker.RedirectURL)
	assert.Equal(t, "http://broker-bridge.internal:8443/auth/complete", config.Broker.CompletionURL)
}

func TestLoadConfigExplicitPublicURLWins(t *testing.T) {
	dir := writeConfig(t, `
server:
  publicURL: https://gate.example.com
`)

	config, err := LoadConfig(dir, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "https://gate.example.com", config.Server.PublicURL)
	assert.Equal(t, "https://gate.example.com/auth/callback", config.Broker.RedirectURL)
}

func TestLoadConfigEnvOverridesSecrets(t *testing.T) {
	dir := writeConfig(t, `
auth:
  stateSecret: from-file
broker:
  clientSecret: file-secret
`)
	t.Setenv(EnvStateSecret, "from-env")
	t.Setenv(EnvBrokerClientSecret, "env-secret")

	config, err := LoadConfig(dir, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "from-env", config.Auth.StateSecret)
	assert.Equal(t, "env-secret", config.Broker.ClientSecret)
}
