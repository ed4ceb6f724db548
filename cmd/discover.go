package cmd

import (
	"smartlaunch/internal/formatting"
	"smartlaunch/pkg/smart"

	"github.com/spf13/cobra"
)

var discoverOutput string

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Show the SMART configuration of the FHIR server",
	Long: `Fetch {fhirBaseUrl}/.well-known/smart-configuration (or the one of
issuerBaseUrl when configured) and print the endpoints and capabilities
the client will use.

Examples:
  smartlaunch discover
  smartlaunch discover -o json`,
	Args: cobra.NoArgs,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().StringVarP(&discoverOutput, "output", "o", "table", "Output format (table, json, yaml)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	format, err := formatting.ParseFormat(discoverOutput)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	discovery, err := a.service.Discover(cmd.Context())
	if err != nil {
		return err
	}

	f := formatting.NewFormatter(formatting.Options{Format: format, Output: cmd.OutOrStdout()})
	if format != formatting.FormatTable {
		return f.FormatData(discovery)
	}
	return f.FormatData(discoveryRecord(discovery))
}

func discoveryRecord(d *smart.Discovery) formatting.Record {
	pkce := "not advertised"
	if d.SupportsS256() {
		pkce = smart.ChallengeMethodS256
	}
	return formatting.Record{
		{Key: "Issuer", Value: d.Issuer},
		{Key: "Authorization endpoint", Value: d.AuthorizationEndpoint},
		{Key: "Token endpoint", Value: d.TokenEndpoint},
		{Key: "JWKS URI", Value: d.JwksURI},
		{Key: "PKCE", Value: pkce},
		{Key: "Capabilities", Value: d.Capabilities},
		{Key: "Scopes", Value: d.ScopesSupported},
	}
}
