package login

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"smartlaunch/pkg/logging"
)

// ErrCancelled is returned when the user or the caller abandons the
// interactive authorization.
var ErrCancelled = errors.New("authorization cancelled")

// Authorizer drives the user through the authorization server and returns
// the redirect it produced.
type Authorizer interface {
	Authorize(ctx context.Context, startURL, redirectURI string) (*CallbackResult, error)
}

// LoopbackConfig configures a LoopbackAuthorizer.
type LoopbackConfig struct {
	// OpenBrowser launches the browser. Nil disables launching; the URL is
	// only printed.
	OpenBrowser func(url string) error

	// Output receives instructions for the user. Nil discards them.
	Output io.Writer

	// Timeout bounds the wait for the redirect. Zero means CallbackTimeout.
	Timeout time.Duration
}

// LoopbackAuthorizer receives the redirect on a local HTTP server bound to
// the redirect URI.
type LoopbackAuthorizer struct {
	openBrowser func(url string) error
	out         io.Writer
	timeout     time.Duration
}

// NewLoopbackAuthorizer creates a LoopbackAuthorizer.
func NewLoopbackAuthorizer(cfg LoopbackConfig) *LoopbackAuthorizer {
	out := cfg.Output
	if out == nil {
		out = io.Discard
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = CallbackTimeout
	}
	return &LoopbackAuthorizer{
		openBrowser: cfg.OpenBrowser,
		out:         out,
		timeout:     timeout,
	}
}

// Authorize starts the callback server, sends the user to startURL and waits
// for one redirect. It fails with ErrCancelled when ctx ends or the wait
// times out.
func (a *LoopbackAuthorizer) Authorize(ctx context.Context, startURL, redirectURI string) (*CallbackResult, error) {
	server, err := NewCallbackServer(redirectURI)
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := server.Start(waitCtx); err != nil {
		return nil, err
	}
	defer server.Stop()
	logging.Debug("Login", "Callback server listening on %s", server.Addr())

	if a.openBrowser == nil {
		fmt.Fprintf(a.out, "Open this URL in your browser to sign in:\n\n  %s\n\n", startURL)
	} else if err := a.openBrowser(startURL); err != nil {
		logging.Warn("Login", "Failed to open browser: %v", err)
		fmt.Fprintf(a.out, "Could not open a browser. Open this URL to sign in:\n\n  %s\n\n", startURL)
	} else {
		fmt.Fprintf(a.out, "Your browser has been opened. If it did not open, visit:\n\n  %s\n\n", startURL)
	}

	result, err := server.WaitForCallback(waitCtx)
	if err != nil {
		if waitCtx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		return nil, fmt.Errorf("callback server failed: %w", err)
	}
	return result, nil
}
