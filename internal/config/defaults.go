package config

import (
	"smartlaunch/internal/auth"
	"smartlaunch/internal/httpclient"
	"smartlaunch/internal/storage"
)

// GetDefaultConfig returns the configuration used when no config.yaml exists.
func GetDefaultConfig() Config {
	return Config{
		Session: SessionConfig{TTL: auth.DefaultSessionTTL},
		HTTP:    HTTPConfig{Timeout: httpclient.DefaultTimeout},
		Storage: StorageConfig{Type: storage.TypeFile},
	}
}
