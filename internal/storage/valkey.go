package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"
)

const (
	// DefaultValkeyKeyPrefix is prepended to every key written to Valkey.
	DefaultValkeyKeyPrefix = "smartlaunch:"

	connectionVerifyTimeout = 5 * time.Second
)

// ValkeyConfig configures a ValkeyStorage.
type ValkeyConfig struct {
	// Address is host:port of the Valkey server. Required.
	Address string

	Password string
	DB       int

	// KeyPrefix defaults to DefaultValkeyKeyPrefix.
	KeyPrefix string

	// TLS enables TLS when non-nil.
	TLS *tls.Config
}

// ValkeyStorage stores values in Valkey under a key prefix.
type ValkeyStorage struct {
	client valkeygo.Client
	prefix string
}

// NewValkeyStorage connects to Valkey and verifies the connection with PING.
func NewValkeyStorage(cfg ValkeyConfig) (*ValkeyStorage, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultValkeyKeyPrefix
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	slog.Debug("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &ValkeyStorage{client: client, prefix: prefix}, nil
}

// Close closes the Valkey client connection.
func (v *ValkeyStorage) Close() {
	v.client.Close()
}

// Set implements Storage.
func (v *ValkeyStorage) Set(ctx context.Context, key, value string) error {
	cmd := v.client.B().Set().Key(v.prefix + key).Value(value).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

// Get implements Storage.
func (v *ValkeyStorage) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := v.client.Do(ctx, v.client.B().Get().Key(v.prefix+key).Build()).ToString()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	if strings.TrimSpace(value) == "" {
		return "", false, nil
	}
	return value, true, nil
}

// Remove implements Storage.
func (v *ValkeyStorage) Remove(ctx context.Context, key string) error {
	if err := v.client.Do(ctx, v.client.B().Del().Key(v.prefix+key).Build()).Error(); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}
