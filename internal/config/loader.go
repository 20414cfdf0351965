package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/tradegate"
	configFileName = "config.yaml"

	// EnvStateSecret overrides auth.stateSecret so the signing key never
	// has to live in the config file.
	EnvStateSecret = "TRADEGATE_STATE_SECRET"

	// EnvBrokerClientSecret overrides broker.clientSecret.
	EnvBrokerClientSecret = "TRADEGATE_BROKER_CLIENT_SECRET"
)

// DefaultConfigPath returns the per-user configuration directory.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads configuration from the specified directory. A missing
// config.yaml yields the defaults; a malformed one is an error. Secrets
// from the environment override their file counterparts after parsing.
func LoadConfig(configPath string, logger *slog.Logger) (TradegateConfig, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("no config.yaml found, using defaults", "path", configFilePath)
			applyEnvOverrides(&config)
			return config, nil
		}
		return TradegateConfig{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return TradegateConfig{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	applyEnvOverrides(&config)
	applyDerivedDefaults(&config)

	logger.Info("loaded configuration", "path", configFilePath)
	return config, nil
}

func applyEnvOverrides(config *TradegateConfig) {
	if v := os.Getenv(EnvStateSecret); v != "" {
		config.Auth.StateSecret = v
	}
	if v := os.Getenv(EnvBrokerClientSecret); v != "" {
		config.Broker.ClientSecret = v
	}
}

// applyDerivedDefaults fills fields whose defaults depend on other fields.
func applyDerivedDefaults(config *TradegateConfig) {
	if config.Server.PublicURL == "" {
		config.Server.PublicURL = fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)
	}
	if config.Broker.RedirectURL == "" {
		config.Broker.RedirectURL = config.Server.PublicURL + DefaultCallbackPath
	}
	if config.Broker.CompletionURL == "" {
		config.Broker.CompletionURL = config.Server.PublicURL + DefaultCompletionPath
	}
}
