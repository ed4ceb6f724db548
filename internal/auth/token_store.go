package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"smartlaunch/internal/storage"
	"smartlaunch/pkg/smart"
)

// TokenStorageKey is the slot holding the most recent token set.
const TokenStorageKey = "smart-token"

// TokenStore persists the most recently obtained TokenSet.
//
// SECURITY: token values are never logged, only their shape.
type TokenStore struct {
	storage storage.Storage
}

// NewTokenStore creates a token store on top of s.
func NewTokenStore(s storage.Storage) *TokenStore {
	return &TokenStore{storage: s}
}

// Get returns the stored token set, or nil when there is none.
func (t *TokenStore) Get(ctx context.Context) (*smart.TokenSet, error) {
	const op = "token_store.get"

	raw, ok, err := t.storage.Get(ctx, TokenStorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var token *smart.TokenSet
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, smart.ProtocolError(op, smart.ErrCorruptState, "", err)
	}
	if token == nil || strings.TrimSpace(token.AccessToken) == "" {
		return nil, smart.ProtocolError(op, smart.ErrCorruptState, "stored token has no access token", nil)
	}

	return token, nil
}

// Save replaces the stored token set. Token sets without an access token
// are rejected.
func (t *TokenStore) Save(ctx context.Context, token *smart.TokenSet) error {
	const op = "token_store.save"

	if token == nil || strings.TrimSpace(token.AccessToken) == "" {
		return smart.InvalidArgumentError(op, "token must carry an access token")
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := t.storage.Set(ctx, TokenStorageKey, string(data)); err != nil {
		slog.Warn("SECURITY_AUDIT: SMART token storage failed",
			"event", "token_store_failed",
			"error", err.Error(),
		)
		return fmt.Errorf("failed to persist token: %w", err)
	}

	slog.Info("SECURITY_AUDIT: SMART token stored",
		"event", "token_stored",
		"expiry", formatExpiry(token.ExpiresAt),
		"has_refresh_token", token.RefreshToken != "",
		"has_id_token", token.IDToken != "",
		"has_patient", token.Patient != "",
	)
	return nil
}

// Clear removes the stored token set.
func (t *TokenStore) Clear(ctx context.Context) error {
	if err := t.storage.Remove(ctx, TokenStorageKey); err != nil {
		slog.Warn("SECURITY_AUDIT: SMART token deletion failed",
			"event", "token_delete_failed",
			"error", err.Error(),
		)
		return fmt.Errorf("failed to clear token: %w", err)
	}

	slog.Info("SECURITY_AUDIT: SMART token deleted", "event", "token_deleted")
	return nil
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "none"
	}
	return t.Format(time.RFC3339)
}
