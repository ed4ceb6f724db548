package config

import (
	"time"

	"smartlaunch/pkg/smart"
)

// Config is the top-level configuration structure of smartlaunch.
type Config struct {
	Smart     SmartConfig     `yaml:"smart"`
	Session   SessionConfig   `yaml:"session"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	OIDC      OIDCConfig      `yaml:"oidc"`
}

// SmartConfig holds the SMART client registration.
type SmartConfig struct {
	smart.ClientOptions `yaml:",inline"`

	// Launch is the default launch context sent with EHR launches.
	Launch string `yaml:"launch,omitempty"`
}

// SessionConfig controls the pending authorization session.
type SessionConfig struct {
	// TTL is the maximum age of a pending session. Zero disables expiry.
	TTL time.Duration `yaml:"ttl"`
}

// DiscoveryConfig controls SMART configuration discovery.
type DiscoveryConfig struct {
	// CacheTTL keeps a resolved document for this long. Zero disables caching.
	CacheTTL time.Duration `yaml:"cacheTtl"`
}

// HTTPConfig controls the outbound HTTP client.
type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	CACertFile string        `yaml:"caCertFile,omitempty"`
}

// StorageConfig selects the backend for sessions and tokens.
type StorageConfig struct {
	Type string `yaml:"type"` // memory, file or valkey
	Dir  string `yaml:"dir,omitempty"`

	// EncryptionKey is a base64 encoded 32 byte key. When set, files are
	// encrypted with AES-256-GCM.
	EncryptionKey string `yaml:"encryptionKey,omitempty"`

	Valkey ValkeyConfig `yaml:"valkey,omitempty"`
}

// ValkeyConfig configures the valkey storage backend.
type ValkeyConfig struct {
	Address   string `yaml:"address,omitempty"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
	TLS       bool   `yaml:"tls,omitempty"`
}

// OIDCConfig controls ID token handling.
type OIDCConfig struct {
	// VerifyIDToken checks the signature and claims of the ID token against
	// the issuer's JWKS during code exchange.
	VerifyIDToken bool `yaml:"verifyIdToken"`
}
