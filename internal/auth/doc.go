// Package auth orchestrates the SMART App Launch authorization code flow.
//
// Service.BuildAuthorizeURL resolves the SMART configuration, creates a fresh
// state and PKCE pair, stores them as the single pending AuthSession and
// returns the authorize URL. Service.ExchangeCode checks the returned state
// against that session before any network call, redeems the code at the token
// endpoint and consumes the session once a usable token set was obtained.
//
// SessionStore and TokenStore own the JSON documents kept in the storage
// backend under fixed keys. Stored documents that cannot be decoded are
// reported as smart.ErrCorruptState rather than discarded.
//
// ID tokens can optionally be verified during exchange with OIDCVerifier;
// ReadClaims decodes one for display without verification.
package auth
