package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"smartlaunch/internal/login"
	"smartlaunch/pkg/logging"
	"smartlaunch/pkg/smart"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// Login-specific flags
var (
	loginLaunch    string
	loginNoBrowser bool
	loginTimeout   time.Duration
)

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with SMART App Launch",
	Long: `Sign in to the authorization server of the configured FHIR server.

The authorize URL is opened in the browser and the redirect is received on a
local server listening on the configured redirect URI, which must be an
http://localhost or http://127.0.0.1 address. The resulting token is stored
for later FHIR requests.

Examples:
  smartlaunch auth login                   # Standalone launch
  smartlaunch auth login --launch abc123   # EHR launch with launch context
  smartlaunch auth login --no-browser      # Print the URL instead of opening it`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

// authURLCmd represents the auth url command
var authURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Start a login and print the authorize URL",
	Long: `Start a login and print the authorize URL without waiting for the redirect.

Open the URL on any device. After signing in, pass the URL the browser was
redirected to to 'smartlaunch auth callback'. Starting a new login replaces
any pending one.`,
	Args: cobra.NoArgs,
	RunE: runAuthURL,
}

// authCallbackCmd represents the auth callback command
var authCallbackCmd = &cobra.Command{
	Use:   "callback <redirect-url>",
	Short: "Complete a login from a redirect URL",
	Long: `Complete a login started with 'smartlaunch auth url'.

The argument is the full URL the browser was redirected to, including the
code and state query parameters.`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthCallback,
}

func init() {
	authLoginCmd.Flags().StringVar(&loginLaunch, "launch", "", "EHR launch context (defaults to smart.launch from config)")
	authLoginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "Print the authorize URL instead of opening the browser")
	authLoginCmd.Flags().DurationVar(&loginTimeout, "timeout", login.CallbackTimeout, "How long to wait for the browser redirect")

	authURLCmd.Flags().StringVar(&loginLaunch, "launch", "", "EHR launch context (defaults to smart.launch from config)")
}

func launchContext(a *app) string {
	if loginLaunch != "" {
		return loginLaunch
	}
	return a.config.Smart.Launch
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg := login.LoopbackConfig{
		Output:  cmd.OutOrStdout(),
		Timeout: loginTimeout,
	}
	if !loginNoBrowser {
		cfg.OpenBrowser = login.OpenBrowser
	}
	authorizer := &spinnerAuthorizer{next: login.NewLoopbackAuthorizer(cfg), cmd: cmd}

	token, err := a.loginFlow(authorizer).Login(ctx, launchContext(a))
	if err != nil {
		logging.Audit(logging.AuditEvent{Action: "login", Outcome: "failure", Target: a.config.Smart.FHIRBaseURL, Error: err.Error()})
		return err
	}
	logging.Audit(logging.AuditEvent{Action: "login", Outcome: "success", Target: a.config.Smart.FHIRBaseURL})

	printLoginSuccess(cmd, a, token)
	return nil
}

func runAuthURL(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	authorizeURL, err := a.service.BuildAuthorizeURL(cmd.Context(), launchContext(a))
	if err != nil {
		return err
	}

	// The URL is the command's result and is printed even with --quiet.
	fmt.Fprintln(cmd.OutOrStdout(), authorizeURL)
	return nil
}

func runAuthCallback(cmd *cobra.Command, args []string) error {
	result, err := login.ParseCallbackURL(args[0])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	token, err := a.loginFlow(nil).Complete(cmd.Context(), result)
	if err != nil {
		logging.Audit(logging.AuditEvent{Action: "login", Outcome: "failure", Target: a.config.Smart.FHIRBaseURL, Error: err.Error()})
		return err
	}
	logging.Audit(logging.AuditEvent{Action: "login", Outcome: "success", Target: a.config.Smart.FHIRBaseURL})

	printLoginSuccess(cmd, a, token)
	return nil
}

func printLoginSuccess(cmd *cobra.Command, a *app, token *smart.TokenSet) {
	authPrint(cmd, "%s Logged in to %s\n", text.FgGreen.Sprint("✓"), a.config.Smart.FHIRBaseURL)
	if token.Patient != "" {
		authPrint(cmd, "  Patient:   %s\n", token.Patient)
	}
	if !token.ExpiresAt.IsZero() {
		authPrint(cmd, "  Expires:   %s\n", formatExpiryWithDirection(token.ExpiresAt))
	}
}

// spinnerAuthorizer shows a spinner while the browser redirect is pending.
type spinnerAuthorizer struct {
	next login.Authorizer
	cmd  *cobra.Command
}

func (s *spinnerAuthorizer) Authorize(ctx context.Context, startURL, redirectURI string) (*login.CallbackResult, error) {
	if quiet {
		return s.next.Authorize(ctx, startURL, redirectURI)
	}

	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(s.cmd.ErrOrStderr()))
	sp.Suffix = " Waiting for authorization in the browser..."
	sp.Start()
	defer sp.Stop()

	result, err := s.next.Authorize(ctx, startURL, redirectURI)
	if err != nil {
		sp.FinalMSG = text.FgRed.Sprint("Authorization did not complete") + "\n"
	}
	return result, err
}
