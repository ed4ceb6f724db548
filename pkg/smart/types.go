package smart

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultScope is requested when ClientOptions.Scope is blank.
const DefaultScope = "launch/patient openid fhirUser profile offline_access"

// DefaultExpiryMargin is the margin applied when checking token expiry.
const DefaultExpiryMargin = 30 * time.Second

// Discovery is the subset of a SMART configuration document
// (.well-known/smart-configuration) used by this client.
type Discovery struct {
	// Issuer is the authorization server's issuer identifier (optional).
	Issuer string `json:"issuer,omitempty"`

	// AuthorizationEndpoint is the URL of the authorization endpoint.
	AuthorizationEndpoint string `json:"authorization_endpoint"`

	// TokenEndpoint is the URL of the token endpoint.
	TokenEndpoint string `json:"token_endpoint"`

	// JwksURI is the URL of the JSON Web Key Set, used for ID token verification.
	JwksURI string `json:"jwks_uri,omitempty"`

	// ScopesSupported lists the scopes the server advertises.
	ScopesSupported []string `json:"scopes_supported,omitempty"`

	// Capabilities lists SMART capabilities such as "launch-ehr".
	Capabilities []string `json:"capabilities,omitempty"`

	// CodeChallengeMethodsSupported lists the supported PKCE methods.
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// SupportsS256 reports whether the server advertises the S256 challenge
// method. An empty list is treated as unknown and reported as false.
func (d *Discovery) SupportsS256() bool {
	for _, m := range d.CodeChallengeMethodsSupported {
		if m == ChallengeMethodS256 {
			return true
		}
	}
	return false
}

// HasCapability reports whether the server advertises the given capability.
func (d *Discovery) HasCapability(capability string) bool {
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// TokenSet is the result of a successful code exchange.
// All keys are always serialized so the stored document keeps its shape.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`

	// Patient is the SMART launch context patient id, when the server sent one.
	Patient string `json:"patient"`

	// ExpiresAt is computed from ExpiresIn when the token is received.
	ExpiresAt time.Time `json:"expires_at"`
}

// SetExpiresAtFromExpiresIn calculates ExpiresAt relative to now.
func (t *TokenSet) SetExpiresAtFromExpiresIn(now time.Time) {
	if t.ExpiresIn > 0 && t.ExpiresAt.IsZero() {
		t.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
}

// IsExpired reports whether the token is expired or expires within
// DefaultExpiryMargin. Tokens without an expiry never expire.
func (t *TokenSet) IsExpired() bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(DefaultExpiryMargin).After(t.ExpiresAt)
}

// Scopes returns the granted scope as individual values.
func (t *TokenSet) Scopes() []string {
	if t.Scope == "" {
		return nil
	}
	return strings.Fields(t.Scope)
}

// OAuth2Token converts the token set for use with golang.org/x/oauth2.
func (t *TokenSet) OAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}

	extra := map[string]interface{}{}
	if t.IDToken != "" {
		extra["id_token"] = t.IDToken
	}
	if t.Patient != "" {
		extra["patient"] = t.Patient
	}
	if len(extra) > 0 {
		token = token.WithExtra(extra)
	}

	return token
}

// AuthSession is the single in-flight authorization attempt.
type AuthSession struct {
	// ID correlates log lines for this attempt. It is not sent to any server.
	ID           string    `json:"id"`
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	RedirectURI  string    `json:"redirect_uri"`
	CreatedAt    time.Time `json:"created_at"`
}

// Expired reports whether the session is older than ttl at now.
// A zero ttl disables expiry.
func (s *AuthSession) Expired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(s.CreatedAt) > ttl
}

// ClientOptions configures the authorization flow. It is not mutated at runtime.
type ClientOptions struct {
	// FHIRBaseURL is the FHIR server base and the "aud" of the authorize request.
	FHIRBaseURL string `yaml:"fhirBaseUrl"`

	// IssuerBaseURL is where discovery is performed. Defaults to FHIRBaseURL.
	IssuerBaseURL string `yaml:"issuerBaseUrl,omitempty"`

	ClientID    string `yaml:"clientId"`
	RedirectURI string `yaml:"redirectUri"`

	// Scope is space-separated. DefaultScope is used when blank.
	Scope string `yaml:"scope,omitempty"`
}

// Validate checks that the options required to run the flow are present.
func (o ClientOptions) Validate() error {
	var missing []string
	if strings.TrimSpace(o.FHIRBaseURL) == "" {
		missing = append(missing, "fhirBaseUrl")
	}
	if strings.TrimSpace(o.ClientID) == "" {
		missing = append(missing, "clientId")
	}
	if strings.TrimSpace(o.RedirectURI) == "" {
		missing = append(missing, "redirectUri")
	}

	if len(missing) > 0 {
		return ConfigurationError("options.validate",
			fmt.Sprintf("missing required client options: %s", strings.Join(missing, ", ")))
	}
	return nil
}

// EffectiveScope returns Scope, or DefaultScope when Scope is blank.
func (o ClientOptions) EffectiveScope() string {
	if strings.TrimSpace(o.Scope) == "" {
		return DefaultScope
	}
	return o.Scope
}
