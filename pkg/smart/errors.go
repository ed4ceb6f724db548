package smart

import (
	"errors"
	"strings"
)

// Error categories. Every error produced by the authorization core matches
// exactly one of these through errors.Is.
var (
	// ErrConfiguration means required client options are missing. Not retryable.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidArgument means a caller-supplied parameter violates a precondition.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrProtocol means a remote server, or persisted state, is outside protocol expectations.
	ErrProtocol = errors.New("protocol error")

	// ErrSession means the local correlation between authorize request and callback failed.
	// The flow must restart from BuildAuthorizeURL.
	ErrSession = errors.New("session error")
)

// Specific conditions, each reported together with its category.
var (
	ErrEmptyResponse    = errors.New("empty or unparseable response")
	ErrMissingEndpoints = errors.New("authorization_endpoint or token_endpoint missing")
	ErrEmptyToken       = errors.New("token response did not contain an access token")
	ErrCorruptState     = errors.New("persisted state is corrupt")
	ErrNoSession        = errors.New("no pending authorization session, restart login")
	ErrStateMismatch    = errors.New("state mismatch")
	ErrSessionExpired   = errors.New("authorization session expired, restart login")
	ErrNotAuthenticated = errors.New("not authenticated, login required")
	ErrIDTokenInvalid   = errors.New("id token verification failed")
	ErrAccessDenied     = errors.New("authorization server rejected the request")
)

// Error is the error type returned by the authorization core.
//
// It unwraps to its category (Kind), its specific condition (Reason) when set,
// and the underlying cause (Err), so callers can branch with errors.Is on any
// of them and with errors.As on the cause.
type Error struct {
	// Op names the operation that failed, e.g. "discovery.resolve".
	Op string

	// Kind is one of ErrConfiguration, ErrInvalidArgument, ErrProtocol, ErrSession.
	Kind error

	// Reason is an optional specific condition such as ErrStateMismatch.
	Reason error

	// Message is an optional human-readable detail.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}

	switch {
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Reason != nil:
		b.WriteString(e.Reason.Error())
	case e.Kind != nil:
		b.WriteString(e.Kind.Error())
	default:
		b.WriteString("unknown error")
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the category, reason and cause for error chain inspection.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 3)
	for _, err := range []error{e.Kind, e.Reason, e.Err} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// ConfigurationError creates an error in the ErrConfiguration category.
func ConfigurationError(op, message string) *Error {
	return &Error{Op: op, Kind: ErrConfiguration, Message: message}
}

// InvalidArgumentError creates an error in the ErrInvalidArgument category.
func InvalidArgumentError(op, message string) *Error {
	return &Error{Op: op, Kind: ErrInvalidArgument, Message: message}
}

// ProtocolError creates an error in the ErrProtocol category.
// message may be empty, in which case the reason text is used.
func ProtocolError(op string, reason error, message string, cause error) *Error {
	return &Error{Op: op, Kind: ErrProtocol, Reason: reason, Message: message, Err: cause}
}

// SessionError creates an error in the ErrSession category.
func SessionError(op string, reason error) *Error {
	return &Error{Op: op, Kind: ErrSession, Reason: reason}
}

// TokenError is an OAuth 2.0 error response body (RFC 6749 section 5.2)
// returned by the token endpoint.
type TokenError struct {
	// StatusCode is the HTTP status of the response carrying the error.
	StatusCode int `json:"-"`

	// Code is the "error" member, e.g. "invalid_grant".
	Code string `json:"error"`

	// Description is the optional "error_description" member.
	Description string `json:"error_description,omitempty"`

	// URI is the optional "error_uri" member.
	URI string `json:"error_uri,omitempty"`
}

// Error joins the error code and description into a single message.
func (e *TokenError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ". " + e.Description
}

// Category returns the taxonomy category of err, or nil if err did not
// originate from the authorization core.
func Category(err error) error {
	for _, kind := range []error{ErrConfiguration, ErrInvalidArgument, ErrProtocol, ErrSession} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
