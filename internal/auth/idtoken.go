package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"

	"smartlaunch/pkg/smart"
)

// IDTokenVerifier checks the signature and standard claims of an ID token
// returned alongside the access token.
type IDTokenVerifier interface {
	Verify(ctx context.Context, discovery *smart.Discovery, rawIDToken string) error
}

// OIDCVerifier verifies ID tokens against the JWKS advertised in the SMART
// configuration, using the discovery issuer and the client id as audience.
type OIDCVerifier struct {
	clientID   string
	httpClient *http.Client

	mu      sync.Mutex
	keySets map[string]*oidc.RemoteKeySet
}

// NewOIDCVerifier creates a verifier. httpClient is used to fetch the JWKS;
// http.DefaultClient is used when nil.
func NewOIDCVerifier(clientID string, httpClient *http.Client) *OIDCVerifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OIDCVerifier{
		clientID:   clientID,
		httpClient: httpClient,
		keySets:    make(map[string]*oidc.RemoteKeySet),
	}
}

// Verify implements IDTokenVerifier.
func (v *OIDCVerifier) Verify(ctx context.Context, discovery *smart.Discovery, rawIDToken string) error {
	if discovery.JwksURI == "" {
		return errors.New("SMART configuration does not advertise a jwks_uri")
	}
	if discovery.Issuer == "" {
		return errors.New("SMART configuration does not advertise an issuer")
	}

	verifier := oidc.NewVerifier(discovery.Issuer, v.keySet(discovery.JwksURI), &oidc.Config{
		ClientID: v.clientID,
	})

	_, err := verifier.Verify(oidc.ClientContext(ctx, v.httpClient), rawIDToken)
	return err
}

// keySet returns a cached key set per JWKS URL so keys are fetched once and
// refreshed by go-oidc when an unknown key id shows up.
func (v *OIDCVerifier) keySet(jwksURI string) *oidc.RemoteKeySet {
	v.mu.Lock()
	defer v.mu.Unlock()

	if ks, ok := v.keySets[jwksURI]; ok {
		return ks
	}

	ks := oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), v.httpClient), jwksURI)
	v.keySets[jwksURI] = ks
	return ks
}
