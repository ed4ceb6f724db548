package cmd

import (
	"errors"
	"os"

	"smartlaunch/internal/config"
	"smartlaunch/internal/login"
	"smartlaunch/pkg/logging"
	"smartlaunch/pkg/smart"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates the command needs a login, or the pending
	// login can no longer be completed.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the authorization flow failed.
	ExitCodeAuthFailed = 3
	// ExitCodeConfigError indicates missing or invalid configuration.
	ExitCodeConfigError = 4
)

// Global flags
var (
	configPath string
	debugLog   bool
	quiet      bool
)

// rootCmd represents the base command for the smartlaunch application.
var rootCmd = &cobra.Command{
	Use:   "smartlaunch",
	Short: "SMART App Launch client for FHIR servers",
	Long: `smartlaunch signs in to a FHIR server using SMART App Launch
(OAuth 2.0 authorization code flow with PKCE and OpenID Connect) and
calls the FHIR API with the resulting access token.

Configure the FHIR server and client registration in
~/.config/smartlaunch/config.yaml, then run:

  smartlaunch auth login
  smartlaunch fhir get Patient/123`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage:      true,
	PersistentPreRunE: initLogging,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "smartlaunch version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

func initLogging(cmd *cobra.Command, args []string) error {
	level := logging.LevelWarn
	switch {
	case debugLog:
		level = logging.LevelDebug
	case quiet:
		level = logging.LevelError
	}
	logging.InitForCLI(level, cmd.ErrOrStderr())
	return nil
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var validationErrs config.ValidationErrors
	if errors.As(err, &validationErrs) || errors.Is(err, smart.ErrConfiguration) {
		return ExitCodeConfigError
	}

	if errors.Is(err, smart.ErrSession) {
		return ExitCodeAuthRequired
	}

	if errors.Is(err, smart.ErrProtocol) || errors.Is(err, login.ErrCancelled) {
		return ExitCodeAuthFailed
	}

	// Default to general error
	return ExitCodeError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", config.GetDefaultConfigPathOrPanic(), "Configuration directory")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
}
