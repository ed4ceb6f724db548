package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"smartlaunch/internal/storage"
	"smartlaunch/pkg/smart"
)

// SessionStorageKey is the single slot holding the pending authorization.
// Supporting several concurrent logins would mean keying by state instead.
const SessionStorageKey = "smart-auth-session"

// SessionStore persists the one in-flight AuthSession.
type SessionStore struct {
	storage storage.Storage
}

// NewSessionStore creates a session store on top of s.
func NewSessionStore(s storage.Storage) *SessionStore {
	return &SessionStore{storage: s}
}

// Get returns the pending session, or nil when there is none.
// A stored value that cannot be decoded is reported as ErrCorruptState.
func (s *SessionStore) Get(ctx context.Context) (*smart.AuthSession, error) {
	raw, ok, err := s.storage.Get(ctx, SessionStorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load authorization session: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var session *smart.AuthSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, smart.ProtocolError("session_store.get", smart.ErrCorruptState, "", err)
	}
	if session == nil {
		return nil, smart.ProtocolError("session_store.get", smart.ErrCorruptState, "", nil)
	}

	return session, nil
}

// Save replaces any pending session with session.
func (s *SessionStore) Save(ctx context.Context, session *smart.AuthSession) error {
	if session == nil {
		return smart.InvalidArgumentError("session_store.save", "session must not be nil")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization session: %w", err)
	}

	if err := s.storage.Set(ctx, SessionStorageKey, string(data)); err != nil {
		return fmt.Errorf("failed to persist authorization session: %w", err)
	}
	return nil
}

// Delete removes the pending session.
func (s *SessionStore) Delete(ctx context.Context) error {
	if err := s.storage.Remove(ctx, SessionStorageKey); err != nil {
		return fmt.Errorf("failed to delete authorization session: %w", err)
	}
	return nil
}
