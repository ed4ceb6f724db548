package smart

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	// MinVerifierLength and MaxVerifierLength bound the number of random bytes
	// drawn for a code verifier (RFC 7636 section 4.1).
	MinVerifierLength = 43
	MaxVerifierLength = 128

	// DefaultVerifierLength is the verifier length used by the orchestrator.
	DefaultVerifierLength = 64

	// ChallengeMethodS256 is the only challenge method this client sends.
	ChallengeMethodS256 = "S256"

	// stateBytes is the number of random bytes for the OAuth state parameter.
	// 32 bytes encodes to 43 base64url characters.
	stateBytes = 32
)

// PKCE holds a verifier and the challenge derived from it.
type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// NewPKCE creates a verifier of the given length and its S256 challenge.
func NewPKCE(length int) (*PKCE, error) {
	verifier, err := CreateVerifier(length)
	if err != nil {
		return nil, err
	}

	challenge, err := CreateChallenge(verifier)
	if err != nil {
		return nil, err
	}

	return &PKCE{
		Verifier:  verifier,
		Challenge: challenge,
		Method:    ChallengeMethodS256,
	}, nil
}

// CreateVerifier draws length bytes from crypto/rand and returns them
// base64url-encoded without padding.
//
// It fails with ErrInvalidArgument when length is outside
// [MinVerifierLength, MaxVerifierLength].
func CreateVerifier(length int) (string, error) {
	if length < MinVerifierLength || length > MaxVerifierLength {
		return "", InvalidArgumentError("pkce.create_verifier",
			fmt.Sprintf("verifier length must be between %d and %d, got %d", MinVerifierLength, MaxVerifierLength, length))
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes for PKCE: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CreateChallenge returns base64url(SHA-256(verifier)) without padding.
// The result is deterministic for a given verifier.
func CreateChallenge(verifier string) (string, error) {
	if strings.TrimSpace(verifier) == "" {
		return "", InvalidArgumentError("pkce.create_challenge", "verifier must not be blank")
	}

	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:]), nil
}

// GenerateState generates a random state parameter that correlates the
// authorization response with the request that started it.
func GenerateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
