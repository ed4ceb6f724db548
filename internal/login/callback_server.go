package login

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"smartlaunch/pkg/smart"
)

// CallbackTimeout is how long Authorize waits for the browser redirect.
const CallbackTimeout = 10 * time.Minute

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

var (
	successTemplate = template.Must(template.New("success").Parse(callbackSuccessHTML))
	errorTemplate   = template.Must(template.New("error").Parse(callbackErrorHTML))
)

// CallbackResult is the query of the redirect back from the authorization server.
type CallbackResult struct {
	// URL is the full redirect URL as received.
	URL string

	Code  string
	State string

	// Error is the OAuth error code when authorization failed.
	Error            string
	ErrorDescription string
	ErrorURI         string
}

// IsError reports whether the authorization server returned an error.
func (r *CallbackResult) IsError() bool {
	return r.Error != ""
}

// TokenError converts an error callback into a smart.TokenError.
func (r *CallbackResult) TokenError() *smart.TokenError {
	if !r.IsError() {
		return nil
	}
	return &smart.TokenError{Code: r.Error, Description: r.ErrorDescription, URI: r.ErrorURI}
}

// ParseCallbackURL extracts the callback parameters from a redirect URL, for
// example one pasted from the browser address bar.
func ParseCallbackURL(raw string) (*CallbackResult, error) {
	const op = "login.parse_callback"

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, smart.InvalidArgumentError(op, "callback url must not be blank")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, smart.InvalidArgumentError(op, fmt.Sprintf("invalid callback url: %v", err))
	}

	result := resultFromQuery(u.Query())
	result.URL = raw
	if result.Code == "" && !result.IsError() {
		return nil, smart.InvalidArgumentError(op, "callback url contains neither code nor error")
	}
	return result, nil
}

func resultFromQuery(query url.Values) *CallbackResult {
	return &CallbackResult{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
		ErrorURI:         query.Get("error_uri"),
	}
}

// CallbackServer is a temporary local HTTP server that receives one
// authorization redirect and then shuts down.
type CallbackServer struct {
	redirectURI *url.URL
	addr        string
	path        string

	server   *http.Server
	listener net.Listener
	resultCh chan *CallbackResult
	errorCh  chan error
	once     sync.Once
	stopOnce sync.Once
}

// NewCallbackServer prepares a server for redirectURI, which must be a plain
// http URL on a loopback host. Without an explicit port, port 80 is used.
func NewCallbackServer(redirectURI string) (*CallbackServer, error) {
	const op = "login.callback_server"

	u, err := url.Parse(strings.TrimSpace(redirectURI))
	if err != nil || u.Host == "" {
		return nil, smart.ConfigurationError(op, fmt.Sprintf("invalid redirect uri %q", redirectURI))
	}
	if u.Scheme != "http" {
		return nil, smart.ConfigurationError(op, "interactive login needs an http redirect uri on a loopback host")
	}

	host := u.Hostname()
	if !isLoopback(host) {
		return nil, smart.ConfigurationError(op, fmt.Sprintf("redirect uri host %q is not a loopback address", host))
	}
	// Bind where the browser will connect for "localhost".
	if strings.EqualFold(host, "localhost") {
		host = "127.0.0.1"
	}
	port := u.Port()
	if port == "" {
		port = "80"
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	return &CallbackServer{
		redirectURI: u,
		addr:        net.JoinHostPort(host, port),
		path:        path,
		resultCh:    make(chan *CallbackResult, 1),
		errorCh:     make(chan error, 1),
	}, nil
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Start begins listening. The server stops when ctx is cancelled.
func (s *CallbackServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start callback server on %s: %w", s.addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Addr returns the listening address, or the configured one before Start.
func (s *CallbackServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// WaitForCallback blocks until the redirect arrives, the server fails or ctx ends.
func (s *CallbackServer) WaitForCallback(ctx context.Context) (*CallbackResult, error) {
	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errorCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	// Browsers probe for favicons on the same origin.
	if r.URL.Path != s.path {
		http.NotFound(w, r)
		return
	}

	// Requests without a code or error are not a redirect and leave the
	// server waiting.
	query := r.URL.Query()
	if query.Get("code") == "" && query.Get("error") == "" {
		http.Error(w, "Missing code or error parameter", http.StatusBadRequest)
		return
	}

	var handled bool
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})

	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (s *CallbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	result := resultFromQuery(r.URL.Query())
	result.URL = s.redirectURI.Scheme + "://" + s.redirectURI.Host + r.URL.RequestURI()

	tmpl, data := successTemplate, map[string]string{}
	if result.IsError() {
		tmpl = errorTemplate
		data = map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}

	select {
	case s.resultCh <- result:
	default:
	}

	// Leave time for the page to reach the browser.
	go func() {
		time.Sleep(1 * time.Second)
		s.Stop()
	}()
}

// Stop shuts the server down. It is safe to call more than once.
func (s *CallbackServer) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}
