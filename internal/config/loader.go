package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"smartlaunch/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/smartlaunch"
	configFileName = "config.yaml"
)

// Environment variables that override the file.
const (
	EnvFHIRBaseURL = "SMARTLAUNCH_FHIR_BASE_URL"
	EnvClientID    = "SMARTLAUNCH_CLIENT_ID"
	EnvStorageKey  = "SMARTLAUNCH_STORAGE_KEY"
)

func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads config.yaml from configPath on top of the defaults and
// applies environment overrides. A missing file is not an error.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		logging.Info("ConfigLoader", "Error loading config.yaml from %s: %s", configFilePath, err)
		return Config{}, err
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
		}
		logging.Debug("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	applyEnvOverrides(&config)
	return config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv(EnvFHIRBaseURL); v != "" {
		config.Smart.FHIRBaseURL = v
	}
	if v := os.Getenv(EnvClientID); v != "" {
		config.Smart.ClientID = v
	}
	if v := os.Getenv(EnvStorageKey); v != "" {
		config.Storage.EncryptionKey = v
	}
}
