package cmd

import (
	"strings"
	"time"

	"smartlaunch/pkg/smart"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long: `Show whether a token is stored for the configured FHIR server, when it
expires, the granted scopes and the patient launch context.

Exits with code 2 when no token is stored.`,
	Args: cobra.NoArgs,
	RunE: runAuthStatus,
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	token, err := a.tokens.Get(ctx)
	if err != nil {
		return err
	}

	authPrintln(cmd, "SMART Authentication")
	authPrint(cmd, "  FHIR server: %s\n", a.config.Smart.FHIRBaseURL)

	if session, err := a.sessions.Get(ctx); err == nil && session != nil {
		authPrint(cmd, "  Pending:     login started %s ago\n", formatDuration(time.Since(session.CreatedAt)))
	}

	if token == nil {
		authPrint(cmd, "  Status:      %s\n", text.FgRed.Sprint("Not authenticated"))
		authPrintln(cmd, "               Run: smartlaunch auth login")
		return smart.SessionError("auth.status", smart.ErrNotAuthenticated)
	}

	if token.IsExpired() {
		authPrint(cmd, "  Status:      %s\n", text.FgYellow.Sprint("Expired"))
	} else {
		authPrint(cmd, "  Status:      %s\n", text.FgGreen.Sprint("Authenticated"))
	}
	if token.TokenType != "" {
		authPrint(cmd, "  Token type:  %s\n", token.TokenType)
	}
	if !token.ExpiresAt.IsZero() {
		authPrint(cmd, "  Expires:     %s\n", formatExpiryWithDirection(token.ExpiresAt))
	}
	if scopes := token.Scopes(); len(scopes) > 0 {
		authPrint(cmd, "  Scopes:      %s\n", strings.Join(scopes, " "))
	}
	if token.Patient != "" {
		authPrint(cmd, "  Patient:     %s\n", token.Patient)
	}
	if token.RefreshToken != "" {
		authPrintln(cmd, "  Refresh:     available")
	}
	return nil
}
