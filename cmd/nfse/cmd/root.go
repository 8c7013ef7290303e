package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rezonia/nfse-abrasf/internal/abrasf"
	"github.com/rezonia/nfse-abrasf/internal/config"
	"github.com/rezonia/nfse-abrasf/internal/logger"
	"github.com/rezonia/nfse-abrasf/internal/model"
)

var (
	version = "1.0.0"

	// Global flags
	verbose      bool
	outputFormat string
	configFile   string
	providerName string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "nfse",
	Short: "Map, build and exchange ABRASF NFSe documents",
	Long: `nfse converts Brazilian municipal service invoices (NFSe) between the
ABRASF 1.00 XML layout and JSON, builds the protocol envelopes of the
municipal web services and talks to them.

Supported providers:
  - ABRASF (national baseline)
  - SimplISS

Examples:
  # Load an RPS or CompNfse document
  nfse load nota.xml

  # Render a JSON invoice as an RPS
  nfse write invoice.json --kind rps

  # Submit a lot using settings from a config file
  nfse submit rps/*.xml --lot 12 --config nfse.yaml

  # Verify the signatures of a received NFSe
  nfse verify nota.xml --roots icp-brasil.pem`,
	Version:           version,
	PersistentPreRunE: initConfig,
	SilenceUsage:      true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, csv, table)")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (YAML, env: NFSE_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&providerName, "provider", "p", "", "Provider variant, overrides config (ABRASF, SimplISS)")
}

func initConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		configFile = os.Getenv(config.EnvPrefix + "CONFIG")
	}

	loaded, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if providerName != "" {
		loaded.Provider = providerName
		if _, err := loaded.Variant(); err != nil {
			return err
		}
	}
	if verbose {
		loaded.Log.Level = zerolog.DebugLevel.String()
	}
	if err := logger.Setup(loaded.Log); err != nil {
		return err
	}

	cfg = loaded
	return nil
}

// forcedVariant returns the variant named by --provider, or nil to detect
func forcedVariant() *abrasf.Variant {
	if providerName == "" {
		return nil
	}
	return abrasf.NewRegistry().Get(model.Provider(providerName))
}

// configuredVariant returns the variant of the provider in use
func configuredVariant() (*abrasf.Variant, error) {
	return cfg.Variant()
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
