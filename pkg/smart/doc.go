// Package smart provides the protocol building blocks of a SMART App Launch
// client: the authorization code flow with PKCE (RFC 7636) against a FHIR
// server's authorization server.
//
// The orchestration of a login (session correlation, token exchange, token
// persistence) lives in internal/auth; this package holds what that flow and
// its callers share.
//
// # Core Components
//
//   - PKCE: verifier and S256 challenge generation, plus the state parameter
//   - Resolver: fetches .well-known/smart-configuration and validates it
//   - Discovery: the parsed SMART configuration document
//   - TokenSet: the persisted result of a code exchange
//   - AuthSession: the single pending authorization attempt
//   - ClientOptions: client id, redirect URI, FHIR base and scope
//   - Error: the error taxonomy (configuration, invalid argument, protocol, session)
//
// # Errors
//
// Every error produced by the core is a *Error and matches its category:
//
//	if errors.Is(err, smart.ErrSession) {
//		// restart the login
//	}
//
// The specific condition is matched the same way, e.g. errors.Is(err,
// smart.ErrStateMismatch). OAuth error bodies from the token endpoint are
// available with errors.As and *TokenError.
//
// # Usage
//
//	resolver := smart.NewResolver(smart.WithHTTPClient(httpClient))
//	discovery, err := resolver.Resolve(ctx, "https://fhir.example.com/r4", "")
//
//	pkce, err := smart.NewPKCE(smart.DefaultVerifierLength)
package smart
