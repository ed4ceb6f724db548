package cmd

import (
	"errors"
	"fmt"

	"smartlaunch/internal/auth"
	"smartlaunch/pkg/logging"
	"smartlaunch/pkg/smart"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage SMART authentication",
	Long: `Manage the SMART App Launch authentication of smartlaunch.

The auth command group signs in to the authorization server of the
configured FHIR server, shows the stored token and identity, and signs out.

Examples:
  smartlaunch auth login                     # Interactive login in the browser
  smartlaunch auth login --launch <ctx>      # EHR launch with a launch context
  smartlaunch auth url                       # Print the authorize URL only
  smartlaunch auth callback '<redirect-url>' # Complete a login from a pasted redirect
  smartlaunch auth status                    # Show token status
  smartlaunch auth whoami                    # Show the signed-in identity
  smartlaunch auth logout                    # Remove the stored token`,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored token",
	Long: `Remove the stored SMART token set.

The next FHIR request requires a new login. Tokens are not revoked at the
authorization server.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogout,
}

// authWhoamiCmd represents the auth whoami command
var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show current authenticated identity",
	Long: `Show the identity claims of the stored ID token.

The ID token is decoded for display without verifying its signature.
Enable oidc.verifyIdToken in the configuration to verify it during login.`,
	Args: cobra.NoArgs,
	RunE: runAuthWhoami,
}

// authPrint prints output only if the --quiet flag is not set.
// Use this for progress messages and non-essential output.
func authPrint(cmd *cobra.Command, format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	}
}

// authPrintln prints a line only if the --quiet flag is not set.
func authPrintln(cmd *cobra.Command, a ...interface{}) {
	if !quiet {
		fmt.Fprintln(cmd.OutOrStdout(), a...)
	}
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authURLCmd)
	authCmd.AddCommand(authCallbackCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authWhoamiCmd)
	authCmd.AddCommand(authLogoutCmd)
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	// A corrupt token document is removed like a valid one.
	token, err := a.tokens.Get(ctx)
	corrupt := errors.Is(err, smart.ErrCorruptState)
	if err != nil && !corrupt {
		return err
	}

	if err := a.tokens.Clear(ctx); err != nil {
		return err
	}

	logging.Audit(logging.AuditEvent{
		Action:  "logout",
		Outcome: "success",
		Target:  a.config.Smart.FHIRBaseURL,
	})

	if token == nil && !corrupt {
		authPrintln(cmd, "Not logged in.")
		return nil
	}
	authPrint(cmd, "%s Logged out from %s\n", text.FgGreen.Sprint("✓"), a.config.Smart.FHIRBaseURL)
	return nil
}

func runAuthWhoami(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	token, err := a.tokens.Get(cmd.Context())
	if err != nil {
		return err
	}
	if token == nil {
		return smart.SessionError("auth.whoami", smart.ErrNotAuthenticated)
	}

	out := cmd.OutOrStdout()
	if token.IDToken == "" {
		fmt.Fprintln(out, "The stored token has no ID token. Request the openid scope to receive one.")
		if token.Patient != "" {
			fmt.Fprintf(out, "Patient:   %s\n", token.Patient)
		}
		return nil
	}

	claims, err := auth.ReadClaims(token.IDToken)
	if err != nil {
		return err
	}

	printField := func(label, value string) {
		if value != "" {
			fmt.Fprintf(out, "%-10s %s\n", label+":", value)
		}
	}
	printField("Subject", claims.Subject)
	printField("FHIR User", claims.FHIRUser)
	printField("Name", claims.Name)
	printField("Email", claims.Email)
	printField("Issuer", claims.Issuer)
	printField("Patient", token.Patient)
	if !claims.ExpiresAt.IsZero() {
		printField("ID token", "expires "+formatExpiryWithDirection(claims.ExpiresAt))
	}
	return nil
}
