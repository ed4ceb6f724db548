package auth

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"smartlaunch/internal/storage"
	"smartlaunch/pkg/smart"
)

const (
	testFHIRBase      = "https://fhir.example.com/fhir"
	testDiscoveryURL  = testFHIRBase + "/.well-known/smart-configuration"
	testAuthEndpoint  = "https://issuer.example.com/auth"
	testTokenEndpoint = "https://issuer.example.com/token"
	testDiscoveryBody = `{"issuer":"https://issuer.example.com","authorization_endpoint":"https://issuer.example.com/auth","token_endpoint":"https://issuer.example.com/token"}`
)

// stubTransport answers requests by URL and counts calls per URL.
type stubTransport struct {
	mu        sync.Mutex
	responses map[string]stubResponse
	calls     map[string]int
	forms     map[string]url.Values
}

type stubResponse struct {
	status int
	body   string
}

func newStubTransport() *stubTransport {
	return &stubTransport{
		responses: map[string]stubResponse{
			testDiscoveryURL: {status: http.StatusOK, body: testDiscoveryBody},
		},
		calls: make(map[string]int),
		forms: make(map[string]url.Values),
	}
}

func (s *stubTransport) respond(rawURL string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[rawURL] = stubResponse{status: status, body: body}
}

func (s *stubTransport) callCount(rawURL string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[rawURL]
}

func (s *stubTransport) lastForm(rawURL string) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forms[rawURL]
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	key := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path

	var form url.Values
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		form, _ = url.ParseQuery(string(data))
	}

	s.mu.Lock()
	s.calls[key]++
	if form != nil {
		s.forms[key] = form
	}
	resp, ok := s.responses[key]
	s.mu.Unlock()

	if !ok {
		resp = stubResponse{status: http.StatusNotFound, body: ""}
	}

	return &http.Response{
		StatusCode: resp.status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(resp.body)),
		Request:    req,
	}, nil
}

func testOptions() smart.ClientOptions {
	return smart.ClientOptions{
		FHIRBaseURL: testFHIRBase,
		ClientID:    "client",
		RedirectURI: "http://localhost/callback",
		Scope:       "launch/patient openid",
	}
}

type testEnv struct {
	storage   *storage.MemoryStorage
	sessions  *SessionStore
	transport *stubTransport
	service   *Service
}

func newTestEnv(t *testing.T, options smart.ClientOptions, opts ...Option) *testEnv {
	t.Helper()

	mem := storage.NewMemoryStorage()
	sessions := NewSessionStore(mem)
	transport := newStubTransport()

	allOpts := append([]Option{WithHTTPClient(&http.Client{Transport: transport})}, opts...)

	return &testEnv{
		storage:   mem,
		sessions:  sessions,
		transport: transport,
		service:   NewService(options, sessions, allOpts...),
	}
}
