// Package login runs the interactive part of the SMART authorization flow:
// sending the user to the authorization server, receiving the redirect and
// completing the code exchange.
package login

import (
	"context"
	"log/slog"

	"smartlaunch/pkg/smart"
)

// Orchestrator is the part of auth.Service used by Flow.
type Orchestrator interface {
	Options() smart.ClientOptions
	BuildAuthorizeURL(ctx context.Context, launch string) (string, error)
	ExchangeCode(ctx context.Context, code, state string) (*smart.TokenSet, error)
}

// TokenSaver persists the token set obtained by a login.
type TokenSaver interface {
	Save(ctx context.Context, token *smart.TokenSet) error
}

// Flow performs one-shot logins.
type Flow struct {
	orchestrator Orchestrator
	tokens       TokenSaver
	authorizer   Authorizer
}

// NewFlow creates a Flow. authorizer may be nil when only Complete is used.
func NewFlow(orchestrator Orchestrator, tokens TokenSaver, authorizer Authorizer) *Flow {
	return &Flow{orchestrator: orchestrator, tokens: tokens, authorizer: authorizer}
}

// Login builds the authorize URL, lets the authorizer obtain the redirect
// and completes it. The saved token set is returned.
func (f *Flow) Login(ctx context.Context, launch string) (*smart.TokenSet, error) {
	const op = "login.login"

	if f.authorizer == nil {
		return nil, smart.ConfigurationError(op, "no interactive authorizer configured")
	}

	authorizeURL, err := f.orchestrator.BuildAuthorizeURL(ctx, launch)
	if err != nil {
		return nil, err
	}

	result, err := f.authorizer.Authorize(ctx, authorizeURL, f.orchestrator.Options().RedirectURI)
	if err != nil {
		return nil, err
	}

	return f.Complete(ctx, result)
}

// Complete exchanges the code of a received redirect and saves the tokens.
// An error redirect from the authorization server is reported as a protocol
// error wrapping the smart.TokenError.
func (f *Flow) Complete(ctx context.Context, result *CallbackResult) (*smart.TokenSet, error) {
	const op = "login.complete"

	if result == nil {
		return nil, smart.InvalidArgumentError(op, "callback result must not be nil")
	}
	if result.IsError() {
		slog.Warn("SECURITY_AUDIT: authorization server returned an error",
			"event", "authorization_denied",
			"error", result.Error,
		)
		return nil, smart.ProtocolError(op, smart.ErrAccessDenied, "", result.TokenError())
	}

	token, err := f.orchestrator.ExchangeCode(ctx, result.Code, result.State)
	if err != nil {
		return nil, err
	}

	if err := f.tokens.Save(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}
