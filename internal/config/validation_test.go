package config

import (
	"encoding/base64"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	validKey := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

	tests := []struct {
		name       string
		modify     func(*Config)
		wantFields []string
	}{
		{
			name:   "defaults",
			modify: func(*Config) {},
		},
		{
			name:   "encrypted file storage",
			modify: func(c *Config) { c.Storage.EncryptionKey = validKey },
		},
		{
			name: "valkey with address",
			modify: func(c *Config) {
				c.Storage.Type = "valkey"
				c.Storage.Valkey.Address = "localhost:6379"
			},
		},
		{
			name:       "unknown storage type",
			modify:     func(c *Config) { c.Storage.Type = "s3" },
			wantFields: []string{"storage.type"},
		},
		{
			name:       "valkey without address",
			modify:     func(c *Config) { c.Storage.Type = "valkey" },
			wantFields: []string{"storage.valkey.address"},
		},
		{
			name:       "short encryption key",
			modify:     func(c *Config) { c.Storage.EncryptionKey = base64.StdEncoding.EncodeToString([]byte("short")) },
			wantFields: []string{"storage.encryptionKey"},
		},
		{
			name: "negative durations",
			modify: func(c *Config) {
				c.Session.TTL = -1
				c.Discovery.CacheTTL = -1
				c.HTTP.Timeout = -1
			},
			wantFields: []string{"session.ttl", "discovery.cacheTtl", "http.timeout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := GetDefaultConfig()
			tt.modify(&config)

			err := config.Validate()
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			var fields []string
			for _, ve := range verrs {
				fields = append(fields, ve.Field)
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	var errs ValidationErrors
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("a", "is required")
	assert.Equal(t, "field 'a': is required", errs.Error())

	errs.Add("b", "must be one of: x, y")
	assert.Equal(t, "validation failed: field 'a': is required; field 'b': must be one of: x, y", errs.Error())
}

func TestConfig_StorageConfig(t *testing.T) {
	key := []byte(strings.Repeat("k", 32))

	t.Run("file defaults into config dir", func(t *testing.T) {
		config := GetDefaultConfig()
		config.Storage.EncryptionKey = base64.StdEncoding.EncodeToString(key)

		cfg, err := config.StorageConfig("/etc/smartlaunch")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/etc/smartlaunch", "state"), cfg.File.Dir)
		assert.Equal(t, key, cfg.File.EncryptionKey)
	})

	t.Run("explicit dir wins", func(t *testing.T) {
		config := GetDefaultConfig()
		config.Storage.Dir = "/var/lib/smartlaunch"

		cfg, err := config.StorageConfig("/etc/smartlaunch")
		require.NoError(t, err)
		assert.Equal(t, "/var/lib/smartlaunch", cfg.File.Dir)
		assert.Nil(t, cfg.File.EncryptionKey)
	})

	t.Run("invalid key", func(t *testing.T) {
		config := GetDefaultConfig()
		config.Storage.EncryptionKey = "not base64!"

		_, err := config.StorageConfig("")
		assert.ErrorContains(t, err, "invalid storage encryption key")
	})

	t.Run("valkey", func(t *testing.T) {
		config := GetDefaultConfig()
		config.Storage.Type = "valkey"
		config.Storage.Valkey = ValkeyConfig{Address: "cache:6379", DB: 1, KeyPrefix: "p:", TLS: true}

		cfg, err := config.StorageConfig("")
		require.NoError(t, err)
		assert.Equal(t, "valkey", cfg.Type)
		assert.Equal(t, "cache:6379", cfg.Valkey.Address)
		assert.Equal(t, 1, cfg.Valkey.DB)
		assert.Equal(t, "p:", cfg.Valkey.KeyPrefix)
		assert.NotNil(t, cfg.Valkey.TLS)
	})
}
