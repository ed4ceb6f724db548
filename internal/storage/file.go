package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/giantswarm/mcp-oauth/security"
)

// DefaultStorageDir is the default directory for persisted state,
// relative to the user's home directory.
const DefaultStorageDir = ".config/smartlaunch/state"

// FileConfig configures a FileStorage.
type FileConfig struct {
	// Dir is the storage directory. Defaults to ~/.config/smartlaunch/state.
	Dir string

	// EncryptionKey enables AES-256-GCM encryption at rest when set.
	// It must be exactly 32 bytes.
	EncryptionKey []byte
}

// FileStorage stores each key in its own file.
//
// SECURITY: values include access tokens and PKCE verifiers.
//   - The directory is created with 0700 permissions
//   - Files are written with 0600 permissions
//   - Writes go to a temporary file that is renamed into place
//   - File names are hashes of the key, never the key itself
type FileStorage struct {
	mu        sync.Mutex
	dir       string
	encryptor *security.Encryptor
}

// NewFileStorage creates the storage directory if needed and returns the store.
func NewFileStorage(cfg FileConfig) (*FileStorage, error) {
	dir := cfg.Dir
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, DefaultStorageDir)
	}

	encryptor, err := security.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	if encryptor.IsEnabled() {
		slog.Debug("Encryption at rest enabled for file storage", "dir", dir)
	}

	return &FileStorage{dir: dir, encryptor: encryptor}, nil
}

// Dir returns the storage directory.
func (f *FileStorage) Dir() string {
	return f.dir
}

// Set implements Storage.
func (f *FileStorage) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := f.encryptor.Encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt value: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write value: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write value: %w", err)
	}
	return nil
}

// Get implements Storage.
func (f *FileStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	f.mu.Lock()
	// #nosec G304 -- path is derived from a hash of the key
	data, err := os.ReadFile(f.path(key))
	f.mu.Unlock()

	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read value: %w", err)
	}

	value, err := f.encryptor.Decrypt(string(data))
	if err != nil {
		return "", false, fmt.Errorf("failed to decrypt value: %w", err)
	}

	if strings.TrimSpace(value) == "" {
		return "", false, nil
	}
	return value, true, nil
}

// Remove implements Storage.
func (f *FileStorage) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// path maps a key to a filesystem-safe file name.
func (f *FileStorage) path(key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(f.dir, hex.EncodeToString(hash[:16])+".json")
}
