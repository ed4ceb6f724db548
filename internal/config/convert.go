package config

import (
	"crypto/tls"
	"fmt"
	"path/filepath"

	"github.com/giantswarm/mcp-oauth/security"

	"smartlaunch/internal/httpclient"
	"smartlaunch/internal/storage"
	"smartlaunch/pkg/smart"
)

// stateDirName is the file storage directory inside the config directory.
const stateDirName = "state"

// ClientOptions returns the SMART client options.
func (c Config) ClientOptions() smart.ClientOptions {
	return c.Smart.ClientOptions
}

// HTTPClientConfig returns the outbound HTTP client configuration.
func (c Config) HTTPClientConfig() httpclient.Config {
	return httpclient.Config{
		Timeout:    c.HTTP.Timeout,
		CACertFile: c.HTTP.CACertFile,
	}
}

// StorageConfig returns the storage backend configuration. The file backend
// defaults to a "state" directory inside configPath.
func (c Config) StorageConfig(configPath string) (storage.Config, error) {
	cfg := storage.Config{Type: c.Storage.Type}

	switch c.Storage.Type {
	case "", storage.TypeFile:
		cfg.File.Dir = c.Storage.Dir
		if cfg.File.Dir == "" && configPath != "" {
			cfg.File.Dir = filepath.Join(configPath, stateDirName)
		}
		if c.Storage.EncryptionKey != "" {
			key, err := security.KeyFromBase64(c.Storage.EncryptionKey)
			if err != nil {
				return storage.Config{}, fmt.Errorf("invalid storage encryption key: %w", err)
			}
			cfg.File.EncryptionKey = key
		}
	case storage.TypeValkey:
		cfg.Valkey = storage.ValkeyConfig{
			Address:   c.Storage.Valkey.Address,
			Password:  c.Storage.Valkey.Password,
			DB:        c.Storage.Valkey.DB,
			KeyPrefix: c.Storage.Valkey.KeyPrefix,
		}
		if c.Storage.Valkey.TLS {
			cfg.Valkey.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}

	return cfg, nil
}
