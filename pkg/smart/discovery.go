package smart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// WellKnownPath is appended to the issuer (or FHIR) base URL.
	WellKnownPath = "/.well-known/smart-configuration"

	// DefaultHTTPTimeout is the default timeout for discovery requests.
	DefaultHTTPTimeout = 30 * time.Second

	// maxDiscoveryBodyBytes caps the size of a discovery document.
	maxDiscoveryBodyBytes = 1 << 20
)

type discoveryCacheEntry struct {
	discovery *Discovery
	fetchedAt time.Time
}

// Resolver fetches and validates SMART configuration documents.
//
// Caching is off by default, so every call goes to the network. When enabled
// with WithCacheTTL, entries are revalidated after the TTL expires.
// Concurrent fetches of the same document are always collapsed into one.
type Resolver struct {
	httpClient *http.Client
	logger     *slog.Logger

	cacheMu  sync.RWMutex
	cache    map[string]*discoveryCacheEntry
	cacheTTL time.Duration

	group singleflight.Group
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithHTTPClient sets the HTTP client used for discovery requests.
func WithHTTPClient(httpClient *http.Client) ResolverOption {
	return func(r *Resolver) {
		r.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithCacheTTL enables caching of resolved documents for ttl.
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.cacheTTL = ttl
	}
}

// NewResolver creates a new discovery resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		logger:     slog.Default(),
		cache:      make(map[string]*discoveryCacheEntry),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// MetadataURL returns the well-known configuration URL for the given bases.
// The issuer base wins when set; one trailing slash is removed.
func MetadataURL(fhirBaseURL, issuerBaseURL string) (string, error) {
	const op = "discovery.metadata_url"

	if strings.TrimSpace(fhirBaseURL) == "" {
		return "", InvalidArgumentError(op, "fhir base url must not be blank")
	}

	base := strings.TrimSpace(fhirBaseURL)
	if strings.TrimSpace(issuerBaseURL) != "" {
		base = strings.TrimSpace(issuerBaseURL)
	}
	base = strings.TrimSuffix(base, "/")

	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "", &Error{Op: op, Kind: ErrInvalidArgument, Message: fmt.Sprintf("invalid base url %q", base), Err: err}
	}
	if u.Scheme != "https" && !(u.Scheme == "http" && isLoopbackHost(u.Hostname())) {
		return "", InvalidArgumentError(op, fmt.Sprintf("discovery requires https, got %q", base))
	}

	return base + WellKnownPath, nil
}

// Resolve fetches {issuerBaseURL or fhirBaseURL}/.well-known/smart-configuration
// and checks that it names both an authorization and a token endpoint.
// Failures are not retried.
func (r *Resolver) Resolve(ctx context.Context, fhirBaseURL, issuerBaseURL string) (*Discovery, error) {
	metadataURL, err := MetadataURL(fhirBaseURL, issuerBaseURL)
	if err != nil {
		return nil, err
	}

	if d, ok := r.cached(metadataURL); ok {
		return d, nil
	}

	// The shared fetch outlives any single caller; each caller waits on its
	// own ctx. The HTTP client timeout bounds the fetch.
	ch := r.group.DoChan(metadataURL, func() (interface{}, error) {
		if d, ok := r.cached(metadataURL); ok {
			return d, nil
		}
		return r.fetch(context.WithoutCancel(ctx), metadataURL)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		d := *res.Val.(*Discovery)
		return &d, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops all cached documents.
func (r *Resolver) Invalidate() {
	r.cacheMu.Lock()
	r.cache = make(map[string]*discoveryCacheEntry)
	r.cacheMu.Unlock()
}

func (r *Resolver) cached(metadataURL string) (*Discovery, bool) {
	if r.cacheTTL <= 0 {
		return nil, false
	}

	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	entry, ok := r.cache[metadataURL]
	if !ok || time.Since(entry.fetchedAt) >= r.cacheTTL {
		return nil, false
	}

	d := *entry.discovery
	return &d, true
}

func (r *Resolver) fetch(ctx context.Context, metadataURL string) (*Discovery, error) {
	const op = "discovery.resolve"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch SMART configuration from %s: %w", metadataURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDiscoveryBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read SMART configuration: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.logger.Debug("SMART configuration request failed",
			"url", metadataURL,
			"status", resp.StatusCode)
		return nil, ProtocolError(op, nil,
			fmt.Sprintf("SMART configuration request failed with status %d", resp.StatusCode), nil)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ProtocolError(op, ErrEmptyResponse, "", nil)
	}

	var discovery *Discovery
	if err := json.Unmarshal(body, &discovery); err != nil {
		return nil, ProtocolError(op, ErrEmptyResponse, "", err)
	}
	if discovery == nil {
		return nil, ProtocolError(op, ErrEmptyResponse, "", nil)
	}

	if strings.TrimSpace(discovery.AuthorizationEndpoint) == "" || strings.TrimSpace(discovery.TokenEndpoint) == "" {
		return nil, ProtocolError(op, ErrMissingEndpoints, "", nil)
	}

	r.logger.Debug("Resolved SMART configuration",
		"url", metadataURL,
		"issuer", discovery.Issuer,
		"authorization_endpoint", discovery.AuthorizationEndpoint,
		"token_endpoint", discovery.TokenEndpoint)

	if r.cacheTTL > 0 {
		r.cacheMu.Lock()
		r.cache[metadataURL] = &discoveryCacheEntry{discovery: discovery, fetchedAt: time.Now()}
		r.cacheMu.Unlock()
	}

	return discovery, nil
}

// isLoopbackHost reports whether host names the local machine.
func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
