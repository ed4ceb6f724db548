package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"smartlaunch/pkg/logging"
	"smartlaunch/pkg/smart"
)

const (
	// DefaultSessionTTL bounds how long a pending authorization stays valid.
	DefaultSessionTTL = 10 * time.Minute

	maxTokenResponseBytes = 1 << 20
)

// DiscoveryResolver resolves the SMART configuration for a FHIR server.
type DiscoveryResolver interface {
	Resolve(ctx context.Context, fhirBaseURL, issuerBaseURL string) (*smart.Discovery, error)
}

// Service runs the authorization code flow with PKCE.
//
// It holds at most one pending authorization. A second BuildAuthorizeURL
// replaces the first, and ExchangeCode reads then deletes the session without
// a transaction, so callers must not run two flows at once through the same
// storage.
type Service struct {
	options    smart.ClientOptions
	sessions   *SessionStore
	resolver   DiscoveryResolver
	httpClient *http.Client
	verifier   IDTokenVerifier
	sessionTTL time.Duration
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient sets the client used for token requests and, unless
// WithResolver is given, for discovery.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(s *Service) {
		s.httpClient = httpClient
	}
}

// WithResolver sets the discovery resolver.
func WithResolver(resolver DiscoveryResolver) Option {
	return func(s *Service) {
		s.resolver = resolver
	}
}

// WithSessionTTL sets how long a pending session is accepted. Zero disables expiry.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.sessionTTL = ttl
	}
}

// WithIDTokenVerifier enables verification of ID tokens during exchange.
func WithIDTokenVerifier(verifier IDTokenVerifier) Option {
	return func(s *Service) {
		s.verifier = verifier
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates the orchestrator for options.
func NewService(options smart.ClientOptions, sessions *SessionStore, opts ...Option) *Service {
	s := &Service{
		options:    options,
		sessions:   sessions,
		httpClient: &http.Client{Timeout: smart.DefaultHTTPTimeout},
		sessionTTL: DefaultSessionTTL,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.resolver == nil {
		s.resolver = smart.NewResolver(smart.WithHTTPClient(s.httpClient))
	}

	return s
}

// Options returns the client options the service was created with.
func (s *Service) Options() smart.ClientOptions {
	return s.options
}

// Discover resolves the SMART configuration for the configured server.
func (s *Service) Discover(ctx context.Context) (*smart.Discovery, error) {
	if err := s.options.Validate(); err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, s.options.FHIRBaseURL, s.options.IssuerBaseURL)
}

// BuildAuthorizeURL starts a login. It stores a fresh session (replacing any
// pending one) and returns the URL the user agent must visit. launch is the
// optional EHR launch context.
func (s *Service) BuildAuthorizeURL(ctx context.Context, launch string) (string, error) {
	const op = "auth.build_authorize_url"

	discovery, err := s.Discover(ctx)
	if err != nil {
		return "", err
	}

	state, err := smart.GenerateState()
	if err != nil {
		return "", err
	}
	pkce, err := smart.NewPKCE(smart.DefaultVerifierLength)
	if err != nil {
		return "", err
	}

	authURL, err := url.Parse(discovery.AuthorizationEndpoint)
	if err != nil || !authURL.IsAbs() {
		return "", &smart.Error{Op: op, Kind: smart.ErrProtocol, Message: "invalid authorization endpoint", Err: err}
	}

	query := authURL.Query()
	query.Set("response_type", "code")
	query.Set("client_id", s.options.ClientID)
	query.Set("redirect_uri", s.options.RedirectURI)
	query.Set("scope", s.options.EffectiveScope())
	query.Set("state", state)
	query.Set("aud", s.options.FHIRBaseURL)
	query.Set("code_challenge", pkce.Challenge)
	query.Set("code_challenge_method", pkce.Method)
	if strings.TrimSpace(launch) != "" {
		query.Set("launch", launch)
	}
	authURL.RawQuery = query.Encode()

	session := &smart.AuthSession{
		ID:           uuid.NewString(),
		State:        state,
		CodeVerifier: pkce.Verifier,
		RedirectURI:  s.options.RedirectURI,
		CreatedAt:    s.now().UTC(),
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return "", err
	}

	logging.Debug("SmartAuth", "Started authorization session %s (launch context: %t)", session.ID, strings.TrimSpace(launch) != "")
	return authURL.String(), nil
}

// ExchangeCode completes a login. state is compared with the pending session
// before any network call; an empty state skips the comparison. The session
// is deleted only when a usable token set was obtained. The caller persists
// the returned token set.
func (s *Service) ExchangeCode(ctx context.Context, code, state string) (*smart.TokenSet, error) {
	const op = "auth.exchange_code"

	if strings.TrimSpace(code) == "" {
		return nil, smart.InvalidArgumentError(op, "authorization code must not be blank")
	}
	if err := s.options.Validate(); err != nil {
		return nil, err
	}

	session, err := s.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, smart.SessionError(op, smart.ErrNoSession)
	}

	if session.Expired(s.sessionTTL, s.now()) {
		slog.Warn("SECURITY_AUDIT: expired authorization session rejected",
			"event", "session_expired",
			"session_id", session.ID,
			"age", s.now().Sub(session.CreatedAt).Round(time.Second).String(),
		)
		if err := s.sessions.Delete(ctx); err != nil {
			return nil, &smart.Error{Op: op, Kind: smart.ErrSession, Reason: smart.ErrSessionExpired, Err: err}
		}
		return nil, smart.SessionError(op, smart.ErrSessionExpired)
	}

	if state != "" && subtle.ConstantTimeCompare([]byte(state), []byte(session.State)) != 1 {
		slog.Warn("SECURITY_AUDIT: OAuth state mismatch detected - possible CSRF attack",
			"event", "state_mismatch",
			"session_id", session.ID,
			"expected_state_len", len(session.State),
			"received_state_len", len(state),
		)
		return nil, smart.SessionError(op, smart.ErrStateMismatch)
	}

	discovery, err := s.resolver.Resolve(ctx, s.options.FHIRBaseURL, s.options.IssuerBaseURL)
	if err != nil {
		return nil, err
	}

	token, err := s.requestToken(ctx, discovery.TokenEndpoint, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {session.RedirectURI},
		"code_verifier": {session.CodeVerifier},
		"client_id":     {s.options.ClientID},
	})
	if err != nil {
		return nil, err
	}

	if s.verifier != nil && token.IDToken != "" {
		if err := s.verifier.Verify(ctx, discovery, token.IDToken); err != nil {
			return nil, smart.ProtocolError(op, smart.ErrIDTokenInvalid, "", err)
		}
	}

	// The session is consumed before the token is handed out.
	if err := s.sessions.Delete(ctx); err != nil {
		return nil, fmt.Errorf("failed to consume authorization session %s: %w", session.ID, err)
	}

	token.SetExpiresAtFromExpiresIn(s.now())
	logging.Debug("SmartAuth", "Completed authorization session %s", session.ID)
	return token, nil
}

// tokenResponse is the standard part of a token endpoint response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
}

// requestToken posts form to the token endpoint and turns the response into
// a TokenSet or a protocol error.
func (s *Service) requestToken(ctx context.Context, tokenEndpoint string, form url.Values) (*smart.TokenSet, error) {
	const op = "auth.exchange_code"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		if resp.StatusCode != http.StatusOK {
			return nil, smart.ProtocolError(op, nil,
				fmt.Sprintf("token request failed with status %d", resp.StatusCode), nil)
		}
		return nil, smart.ProtocolError(op, smart.ErrEmptyResponse, "invalid token response", err)
	}

	if tokenErr := parseTokenError(raw); tokenErr != nil {
		tokenErr.StatusCode = resp.StatusCode
		return nil, smart.ProtocolError(op, nil, "token exchange failed", tokenErr)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, smart.ProtocolError(op, nil,
			fmt.Sprintf("token request failed with status %d", resp.StatusCode), nil)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, smart.ProtocolError(op, smart.ErrEmptyResponse, "invalid token response", err)
	}
	if strings.TrimSpace(tr.AccessToken) == "" {
		return nil, smart.ProtocolError(op, smart.ErrEmptyToken, "", nil)
	}

	token := &smart.TokenSet{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		Scope:        tr.Scope,
		IDToken:      tr.IDToken,
		RefreshToken: tr.RefreshToken,
		Patient:      optionalString(raw, "patient"),
	}
	token.ExpiresIn = optionalSeconds(raw, "expires_in")

	return token, nil
}

// parseTokenError returns the OAuth error carried by raw, if any.
func parseTokenError(raw map[string]json.RawMessage) *smart.TokenError {
	code := optionalString(raw, "error")
	if code == "" {
		return nil
	}
	return &smart.TokenError{
		Code:        code,
		Description: optionalString(raw, "error_description"),
		URI:         optionalString(raw, "error_uri"),
	}
}

// optionalSeconds reads a positive number of seconds, given as a JSON number
// or a numeric string. Anything else counts as absent.
func optionalSeconds(raw map[string]json.RawMessage, name string) int {
	value, ok := raw[name]
	if !ok {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(value, &n); err != nil {
		return 0
	}
	if i, err := n.Int64(); err == nil && i > 0 {
		return int(i)
	}
	if f, err := n.Float64(); err == nil && f >= 1 {
		return int(f)
	}
	return 0
}

// optionalString reads a string member, ignoring absent or non-string values.
func optionalString(raw map[string]json.RawMessage, name string) string {
	value, ok := raw[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return ""
	}
	return s
}
