package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartlaunch/internal/storage"
	"smartlaunch/pkg/smart"
)

func TestBuildAuthorizeURL(t *testing.T) {
	t.Run("builds SMART authorize url and persists one session", func(t *testing.T) {
		env := newTestEnv(t, testOptions())

		rawURL, err := env.service.BuildAuthorizeURL(context.Background(), "launch-ctx")
		require.NoError(t, err)

		assert.Contains(t, rawURL, "aud=https%3A%2F%2Ffhir.example.com%2Ffhir")
		assert.Contains(t, rawURL, "launch=launch-ctx")
		assert.True(t, strings.HasPrefix(rawURL, testAuthEndpoint+"?"))
		assert.Equal(t, 1, env.storage.Len())

		u, err := url.Parse(rawURL)
		require.NoError(t, err)
		q := u.Query()

		session, err := env.sessions.Get(context.Background())
		require.NoError(t, err)
		require.NotNil(t, session)

		challenge, err := smart.CreateChallenge(session.CodeVerifier)
		require.NoError(t, err)

		assert.Equal(t, "code", q.Get("response_type"))
		assert.Equal(t, "client", q.Get("client_id"))
		assert.Equal(t, "http://localhost/callback", q.Get("redirect_uri"))
		assert.Equal(t, "launch/patient openid", q.Get("scope"))
		assert.Equal(t, session.State, q.Get("state"))
		assert.Equal(t, testFHIRBase, q.Get("aud"))
		assert.Equal(t, challenge, q.Get("code_challenge"))
		assert.Equal(t, "S256", q.Get("code_challenge_method"))

		assert.Equal(t, "http://localhost/callback", session.RedirectURI)
		assert.NotEmpty(t, session.ID)
		assert.False(t, session.CreatedAt.IsZero())
	})

	t.Run("omits a blank launch context", func(t *testing.T) {
		env := newTestEnv(t, testOptions())

		rawURL, err := env.service.BuildAuthorizeURL(context.Background(), "   ")
		require.NoError(t, err)

		u, err := url.Parse(rawURL)
		require.NoError(t, err)
		assert.False(t, u.Query().Has("launch"))
	})

	t.Run("omits launch when not provided and uses default scope", func(t *testing.T) {
		options := testOptions()
		options.Scope = ""
		env := newTestEnv(t, options)

		rawURL, err := env.service.BuildAuthorizeURL(context.Background(), "")
		require.NoError(t, err)

		u, err := url.Parse(rawURL)
		require.NoError(t, err)
		assert.False(t, u.Query().Has("launch"))
		assert.Equal(t, smart.DefaultScope, u.Query().Get("scope"))
	})

	t.Run("keeps existing query parameters of the authorization endpoint", func(t *testing.T) {
		env := newTestEnv(t, testOptions())
		env.transport.respond(testDiscoveryURL, http.StatusOK,
			`{"authorization_endpoint":"https://issuer.example.com/auth?tenant=a","token_endpoint":"https://issuer.example.com/token"}`)

		rawURL, err := env.service.BuildAuthorizeURL(context.Background(), "")
		require.NoError(t, err)

		u, err := url.Parse(rawURL)
		require.NoError(t, err)
		assert.Equal(t, "a", u.Query().Get("tenant"))
	})

	t.Run("blank fhir base is a configuration error without network", func(t *testing.T) {
		options := testOptions()
		options.FHIRBaseURL = ""
		env := newTestEnv(t, options)

		_, err := env.service.BuildAuthorizeURL(context.Background(), "")
		assert.ErrorIs(t, err, smart.ErrConfiguration)
		assert.Equal(t, 0, env.transport.callCount(testDiscoveryURL))
		assert.Equal(t, 0, env.storage.Len())
	})

	t.Run("each call replaces the pending session", func(t *testing.T) {
		env := newTestEnv(t, testOptions())

		_, err := env.service.BuildAuthorizeURL(context.Background(), "")
		require.NoError(t, err)
		first, err := env.sessions.Get(context.Background())
		require.NoError(t, err)

		_, err = env.service.BuildAuthorizeURL(context.Background(), "")
		require.NoError(t, err)
		second, err := env.sessions.Get(context.Background())
		require.NoError(t, err)

		assert.NotEqual(t, first.State, second.State)
		assert.NotEqual(t, first.CodeVerifier, second.CodeVerifier)
		assert.Equal(t, 1, env.storage.Len())
	})

	t.Run("discovery failure persists nothing", func(t *testing.T) {
		env := newTestEnv(t, testOptions())
		env.transport.respond(testDiscoveryURL, http.StatusOK, `{"authorization_endpoint":"https://issuer.example.com/auth"}`)

		_, err := env.service.BuildAuthorizeURL(context.Background(), "")
		assert.ErrorIs(t, err, smart.ErrMissingEndpoints)
		assert.Equal(t, 0, env.storage.Len())
	})

	t.Run("cancellation before persistence writes nothing", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		resolver := resolverFunc(func(context.Context, string, string) (*smart.Discovery, error) {
			cancel()
			return &smart.Discovery{AuthorizationEndpoint: testAuthEndpoint, TokenEndpoint: testTokenEndpoint}, nil
		})
		env := newTestEnv(t, testOptions(), WithResolver(resolver))

		_, err := env.service.BuildAuthorizeURL(ctx, "")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, env.storage.Len())
	})
}

func TestExchangeCode(t *testing.T) {
	t.Run("round trip succeeds and consumes the session", func(t *testing.T) {
		env := newTestEnv(t, testOptions())
		env.transport.respond(testTokenEndpoint, http.StatusOK,
			`{"access_token":"access","token_type":"Bearer","expires_in":3600,"scope":"launch/patient openid","id_token":"id","refresh_token":"refresh","patient":"123"}`)

		rawURL, err := env.service.BuildAuthorizeURL(context.Background(), "")
		require.NoError(t, err)
		u, err := url.Parse(rawURL)
		require.NoError(t, err)
		state := u.Query().Get("state")

		session, err := env.sessions.Get(context.Background())
		require.NoError(t, err)

		token, err := env.service.ExchangeCode(context.Background(), "auth-code", state)
		require.NoError(t, err)

		assert.Equal(t, "access", token.AccessToken)
		assert.Equal(t, "Bearer", token.TokenType)
		assert.Equal(t, 3600, token.ExpiresIn)
		assert.Equal(t, "id", token.IDToken)
		assert.Equal(t, "refresh", token.RefreshToken)
		assert.Equal(t, "123", token.Patient)
		assert.False(t, token.ExpiresAt.IsZero())

		form := env.transport.lastForm(testTokenEndpoint)
		assert.Equal(t, "authorization_code", form.Get("grant_type"))
		assert.Equal(t, "auth-code", form.Get("code"))
		assert.Equal(t, "http://localhost/callback", form.Get("redirect_uri"))
		assert.Equal(t, session.CodeVerifier, form.Get("code_verifier"))
		assert.Equal(t, "client", form.Get("client_id"))

		assert.Equal(t, 2, env.transport.callCount(testDiscoveryURL), "discovery is resolved again for the exchange")

		remaining, err := env.sessions.Get(context.Background())
		require.NoError(t, err)
		assert.Nil(t, remaining)

		_, err = env.service.ExchangeCode(context.Background(), "auth-code", state)
		assert.ErrorIs(t, err, smart.ErrSession)
		assert.ErrorIs(t, err, smart.ErrNoSession)
	})

	t.Run("state mismatch makes no token request", func(t *testing.T) {
		env := newTestEnv(t, testOptions())
		require.NoError(t, env.sessions.Save(context.Background(), &smart.AuthSession{
			State:        "expected",
			CodeVerifier: "verifier",
			RedirectURI:  "http://localhost/callback",
			CreatedAt:    time.Now(),
		}))

		_, err := env.service.ExchangeCode(context.Background(), "code", "wrong")
		assert.ErrorIs(t, err, smart.ErrSession)
		assert.ErrorIs(t, err, smart.ErrStateMismatch)
		assert.Equal(t, 0, env.transport.callCount(testTokenEndpoint))
		assert.Equal(t, 0, env.transport.callCount(testDiscoveryURL))

		session, err := env.sessions.Get(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, session)
	})

	t.Run("empty state skips the comparison", func(t *testing.T) {
		env := newTestEnv(t, testOptions())
		env.transport.respond(testTokenEndpoint, http.StatusOK, `{"access_token":"access"}`)
		require.NoError(t, env.sessions.Save(context.Background(), &smart.AuthSession{
			State: "expected", CodeVerifier: "verifier", RedirectURI: "http://localhost/callback", CreatedAt: time.Now(),
		}))

		token, err := env.service.ExchangeCode(context.Background(), "code", "")
		require.NoError(t, err)
		assert.Equal(t, "access", token.AccessToken)
	})

	t.Run("blank access token is a protocol error", func(t *testing.T) {
		for _, body := range []string{`{"access_token":""}`, `{"token_type":"Bearer"}`, `{"access_token":"  "}`} {
			env := newTestEnv(t, testOptions())
			env.transport.respond(testTokenEndpoint, http.StatusOK, body)
			saveSession(t, env, "s")

			_, err := env.service.ExchangeCode(context.Background(), "code", "s")
			assert.ErrorIs(t, err, smart.ErrProtocol, body)
			assert.ErrorIs(t, err, smart.ErrEmptyToken, body)

			session, err := env.sessions.Get(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, session, "failed exchange must keep the session")
		}
	})

	t.Run("oauth error body is surfaced", func(t *testing.T) {
		env := newTestEnv(t, testOptions())
		env.transport.respond(testTokenEndpoint, http.StatusBadRequest,
			`{"error":"invalid_grant","error_description":"Code expired"}`)
		saveSession(t, env, "s")

		_, err := env.service.ExchangeCode(context.Background(), "code", "s")
		require.ErrorIs(t, err, smart.ErrProtocol)
		assert.Contains(t, err.Error(), "invalid_grant. Code expired")

		var tokenErr *smart.TokenError
		require.True(t, errors.As(err, &tokenErr))
		assert.Equal(t, "invalid_grant", tokenErr.Code)
		assert.Equal(t, "Code expired", tokenErr.Description)
		assert.Equal(t, http.StatusBadRequest, tokenErr.StatusCode)
	})

	t.Run("non json failure is a protocol error", func(t *testing.T) {
		env := newTestEnv(t, testOptions())
		env.transport.respond(testTokenEndpoint, http.StatusBadGateway, `<html>bad gateway</html>`)
		saveSession(t, env, "s")

		_, err := env.service.ExchangeCode(context.Background(), "code", "s")
		assert.ErrorIs(t, err, smart.ErrProtocol)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("patient is read only when it is a string", func(t *testing.T) {
		env := newTestEnv(t, testOptions())
		env.transport.respond(testTokenEndpoint, http.StatusOK, `{"access_token":"access","patient":42}`)
		saveSession(t, env, "s")

		token, err := env.service.ExchangeCode(context.Background(), "code", "s")
		require.NoError(t, err)
		assert.Empty(t, token.Patient)
	})

	t.Run("expires_in as string", func(t *testing.T) {
		now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		env := newTestEnv(t, testOptions(), WithClock(func() time.Time { return now }))
		env.transport.respond(testTokenEndpoint, http.StatusOK, `{"access_token":"access","expires_in":"300"}`)
		saveSessionAt(t, env, "s", now)

		token, err := env.service.ExchangeCode(context.Background(), "code", "s")
		require.NoError(t, err)
		assert.Equal(t, 300, token.ExpiresIn)
		assert.Equal(t, now.Add(5*time.Minute), token.ExpiresAt)
	})

	t.Run("non-numeric expires_in counts as no expiry", func(t *testing.T) {
		env := newTestEnv(t, testOptions())
		env.transport.respond(testTokenEndpoint, http.StatusOK, `{"access_token":"access","expires_in":"soon"}`)
		saveSession(t, env, "s")

		token, err := env.service.ExchangeCode(context.Background(), "code", "s")
		require.NoError(t, err)
		assert.Equal(t, "access", token.AccessToken)
		assert.Zero(t, token.ExpiresIn)
		assert.True(t, token.ExpiresAt.IsZero())
	})

	t.Run("preconditions", func(t *testing.T) {
		env := newTestEnv(t, testOptions())

		_, err := env.service.ExchangeCode(context.Background(), " ", "s")
		assert.ErrorIs(t, err, smart.ErrInvalidArgument)

		_, err = env.service.ExchangeCode(context.Background(), "code", "s")
		assert.ErrorIs(t, err, smart.ErrNoSession)

		options := testOptions()
		options.ClientID = ""
		broken := newTestEnv(t, options)
		_, err = broken.service.ExchangeCode(context.Background(), "code", "s")
		assert.ErrorIs(t, err, smart.ErrConfiguration)
	})

	t.Run("corrupt session is a protocol error", func(t *testing.T) {
		env := newTestEnv(t, testOptions())
		require.NoError(t, env.storage.Set(context.Background(), SessionStorageKey, "{not json"))

		_, err := env.service.ExchangeCode(context.Background(), "code", "s")
		assert.ErrorIs(t, err, smart.ErrProtocol)
		assert.ErrorIs(t, err, smart.ErrCorruptState)
	})

	t.Run("expired session is rejected and removed", func(t *testing.T) {
		now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		env := newTestEnv(t, testOptions(), WithClock(func() time.Time { return now }))
		saveSessionAt(t, env, "s", now.Add(-11*time.Minute))

		_, err := env.service.ExchangeCode(context.Background(), "code", "s")
		assert.ErrorIs(t, err, smart.ErrSession)
		assert.ErrorIs(t, err, smart.ErrSessionExpired)
		assert.Equal(t, 0, env.transport.callCount(testTokenEndpoint))
		assert.Equal(t, 0, env.storage.Len())
	})

	t.Run("zero ttl disables expiry", func(t *testing.T) {
		now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		env := newTestEnv(t, testOptions(), WithClock(func() time.Time { return now }), WithSessionTTL(0))
		env.transport.respond(testTokenEndpoint, http.StatusOK, `{"access_token":"access"}`)
		saveSessionAt(t, env, "s", now.Add(-48*time.Hour))

		_, err := env.service.ExchangeCode(context.Background(), "code", "s")
		assert.NoError(t, err)
	})
}

func TestExchangeCode_IDTokenVerification(t *testing.T) {
	t.Run("verification failure keeps the session", func(t *testing.T) {
		verifier := &fakeVerifier{err: errors.New("bad signature")}
		env := newTestEnv(t, testOptions(), WithIDTokenVerifier(verifier))
		env.transport.respond(testTokenEndpoint, http.StatusOK, `{"access_token":"access","id_token":"header.payload.sig"}`)
		saveSession(t, env, "s")

		_, err := env.service.ExchangeCode(context.Background(), "code", "s")
		assert.ErrorIs(t, err, smart.ErrProtocol)
		assert.ErrorIs(t, err, smart.ErrIDTokenInvalid)
		assert.Equal(t, 1, verifier.calls)

		session, err := env.sessions.Get(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, session)
	})

	t.Run("verifier receives discovery and token", func(t *testing.T) {
		verifier := &fakeVerifier{}
		env := newTestEnv(t, testOptions(), WithIDTokenVerifier(verifier))
		env.transport.respond(testTokenEndpoint, http.StatusOK, `{"access_token":"access","id_token":"header.payload.sig"}`)
		saveSession(t, env, "s")

		_, err := env.service.ExchangeCode(context.Background(), "code", "s")
		require.NoError(t, err)
		assert.Equal(t, "header.payload.sig", verifier.lastToken)
		assert.Equal(t, "https://issuer.example.com", verifier.lastIssuer)
	})

	t.Run("no id token skips verification", func(t *testing.T) {
		verifier := &fakeVerifier{err: errors.New("must not be called")}
		env := newTestEnv(t, testOptions(), WithIDTokenVerifier(verifier))
		env.transport.respond(testTokenEndpoint, http.StatusOK, `{"access_token":"access"}`)
		saveSession(t, env, "s")

		_, err := env.service.ExchangeCode(context.Background(), "code", "s")
		require.NoError(t, err)
		assert.Equal(t, 0, verifier.calls)
	})
}

type resolverFunc func(ctx context.Context, fhirBaseURL, issuerBaseURL string) (*smart.Discovery, error)

func (f resolverFunc) Resolve(ctx context.Context, fhirBaseURL, issuerBaseURL string) (*smart.Discovery, error) {
	return f(ctx, fhirBaseURL, issuerBaseURL)
}

type fakeVerifier struct {
	err        error
	calls      int
	lastToken  string
	lastIssuer string
}

func (f *fakeVerifier) Verify(_ context.Context, discovery *smart.Discovery, rawIDToken string) error {
	f.calls++
	f.lastToken = rawIDToken
	f.lastIssuer = discovery.Issuer
	return f.err
}

func saveSession(t *testing.T, env *testEnv, state string) {
	t.Helper()
	saveSessionAt(t, env, state, time.Now())
}

func saveSessionAt(t *testing.T, env *testEnv, state string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, env.sessions.Save(context.Background(), &smart.AuthSession{
		ID:           "test-session",
		State:        state,
		CodeVerifier: "verifier",
		RedirectURI:  "http://localhost/callback",
		CreatedAt:    createdAt,
	}))
}

// removeFailingStorage fails every Remove, leaving the value in place.
type removeFailingStorage struct {
	*storage.MemoryStorage
}

func (removeFailingStorage) Remove(ctx context.Context, key string) error {
	return errors.New("storage unavailable")
}

func TestExchangeCode_SessionDeleteFailure(t *testing.T) {
	newService := func(t *testing.T, opts ...Option) (*Service, *stubTransport) {
		t.Helper()
		transport := newStubTransport()
		transport.respond(testTokenEndpoint, http.StatusOK, `{"access_token":"access"}`)
		sessions := NewSessionStore(removeFailingStorage{storage.NewMemoryStorage()})
		allOpts := append([]Option{WithHTTPClient(&http.Client{Transport: transport})}, opts...)
		return NewService(testOptions(), sessions, allOpts...), transport
	}

	t.Run("no token when the session cannot be consumed", func(t *testing.T) {
		service, transport := newService(t)

		rawURL, err := service.BuildAuthorizeURL(context.Background(), "")
		require.NoError(t, err)
		u, err := url.Parse(rawURL)
		require.NoError(t, err)
		state := u.Query().Get("state")

		token, err := service.ExchangeCode(context.Background(), "code", state)
		require.Error(t, err)
		assert.Nil(t, token)
		assert.Contains(t, err.Error(), "storage unavailable")

		token, err = service.ExchangeCode(context.Background(), "code", state)
		require.Error(t, err)
		assert.Nil(t, token)
		assert.Equal(t, 2, transport.callCount(testTokenEndpoint))
	})

	t.Run("expired session reports the delete failure", func(t *testing.T) {
		now := time.Now()
		service, transport := newService(t, WithClock(func() time.Time { return now }))
		require.NoError(t, service.sessions.Save(context.Background(), &smart.AuthSession{
			State:       "s",
			RedirectURI: "http://localhost/callback",
			CreatedAt:   now.Add(-time.Hour),
		}))

		_, err := service.ExchangeCode(context.Background(), "code", "s")
		assert.ErrorIs(t, err, smart.ErrSession)
		assert.ErrorIs(t, err, smart.ErrSessionExpired)
		assert.Contains(t, err.Error(), "storage unavailable")
		assert.Equal(t, 0, transport.callCount(testTokenEndpoint))
	})
}
