// Package storage provides the string key-value backends that persist the
// pending authorization session and the active token set.
//
// Three backends are available:
//   - Memory: process-local, for tests and one-shot commands
//   - File: one file per key under a private directory, optionally encrypted
//     at rest with AES-256-GCM
//   - Valkey: a shared Valkey (or Redis) instance
//
// Every write is a single call to the backend. A value that is blank after
// trimming reads back as absent.
package storage

import (
	"context"
	"fmt"
)

// Storage is a string-keyed persistent key-value store.
type Storage interface {
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Get returns the value stored under key. ok is false when nothing, or
	// only a blank value, is stored.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// Backend type names accepted by New.
const (
	TypeMemory = "memory"
	TypeFile   = "file"
	TypeValkey = "valkey"
)

// Config selects and configures a backend.
type Config struct {
	// Type is one of TypeMemory, TypeFile or TypeValkey.
	Type string

	// File configures the file backend.
	File FileConfig

	// Valkey configures the valkey backend.
	Valkey ValkeyConfig
}

// New creates the backend selected by cfg.Type.
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", TypeFile:
		s, err := NewFileStorage(cfg.File)
		if err != nil {
			return nil, err
		}
		return s, nil
	case TypeMemory:
		return NewMemoryStorage(), nil
	case TypeValkey:
		s, err := NewValkeyStorage(cfg.Valkey)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
