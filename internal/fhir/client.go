// Package fhir creates HTTP clients that call a FHIR server with the stored
// SMART access token.
package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"smartlaunch/pkg/smart"
)

const maxResponseBytes = 10 << 20

// TokenSource provides the current token set.
type TokenSource interface {
	Get(ctx context.Context) (*smart.TokenSet, error)
}

// Factory creates authenticated FHIR clients.
type Factory struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewFactory returns a factory for the FHIR server at baseURL. httpClient is
// the underlying transport; http.DefaultClient is used when nil.
func NewFactory(baseURL string, tokens TokenSource, httpClient *http.Client) *Factory {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Factory{baseURL: baseURL, tokens: tokens, httpClient: httpClient}
}

// Create returns a client that sends "Authorization: Bearer <access token>".
// It fails with smart.ErrConfiguration when no base URL is configured and
// with smart.ErrNotAuthenticated when no token is stored.
func (f *Factory) Create(ctx context.Context) (*Client, error) {
	const op = "fhir.create_client"

	if strings.TrimSpace(f.baseURL) == "" {
		return nil, smart.ConfigurationError(op, "FHIR base url is not configured")
	}

	token, err := f.tokens.Get(ctx)
	if err != nil {
		return nil, err
	}
	if token == nil || strings.TrimSpace(token.AccessToken) == "" {
		return nil, smart.SessionError(op, smart.ErrNotAuthenticated)
	}

	// The stored token is sent as is, expired or not. There is no refresh.
	baseCtx := context.WithValue(context.Background(), oauth2.HTTPClient, f.httpClient)
	httpClient := oauth2.NewClient(baseCtx, oauth2.StaticTokenSource(token.OAuth2Token()))
	httpClient.Timeout = f.httpClient.Timeout

	return &Client{
		baseURL:    strings.TrimSuffix(f.baseURL, "/"),
		httpClient: httpClient,
		patient:    token.Patient,
	}, nil
}

// Client issues authenticated requests against one FHIR server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	patient    string
}

// BaseURL returns the FHIR base URL without trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Patient returns the launch context patient id, if any.
func (c *Client) Patient() string {
	return c.patient
}

// HTTPClient returns the authenticated client for custom requests.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Get reads {base}/{path} and returns the response body.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	target := c.baseURL + "/" + strings.TrimPrefix(path, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create FHIR request: %w", err)
	}
	req.Header.Set("Accept", "application/fhir+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("FHIR request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read FHIR response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{StatusCode: resp.StatusCode, URL: target, Detail: outcomeText(body)}
	}

	return body, nil
}

// RequestError is a non-2xx response from the FHIR server.
type RequestError struct {
	StatusCode int
	URL        string
	Detail     string
}

func (e *RequestError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("FHIR request to %s failed with status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("FHIR request to %s failed with status %d: %s", e.URL, e.StatusCode, e.Detail)
}

// operationOutcome is the part of a FHIR OperationOutcome used for errors.
type operationOutcome struct {
	ResourceType string `json:"resourceType"`
	Issue        []struct {
		Severity    string `json:"severity"`
		Code        string `json:"code"`
		Diagnostics string `json:"diagnostics"`
		Details     struct {
			Text string `json:"text"`
		} `json:"details"`
	} `json:"issue"`
}

func outcomeText(body []byte) string {
	var outcome operationOutcome
	if err := json.Unmarshal(body, &outcome); err != nil || outcome.ResourceType != "OperationOutcome" {
		return ""
	}

	var parts []string
	for _, issue := range outcome.Issue {
		text := issue.Diagnostics
		if text == "" {
			text = issue.Details.Text
		}
		if text == "" {
			text = issue.Code
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "; ")
}
