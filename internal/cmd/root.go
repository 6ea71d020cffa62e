package cmd

import (
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/medcityai/pubgate/internal/config"
	"github.com/medcityai/pubgate/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Rate-limited, cached gateway to the PubMed E-utilities",
	Long: `pubgate brokers access to the NCBI E-utilities: requests are spaced to
stay inside NCBI's rate limits, identical in-flight requests are shared,
transient failures are retried, and responses are cached.

Use the subcommands to search, fetch and summarize articles, build the
trending list and weekly featured report, or run the HTTP service.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry early to prevent config loading from emitting
	// metrics to stdout. Server mode will initialize proper telemetry later.
	disabledConfig := &telemetry.Config{Enabled: false}
	if sys, err := telemetry.NewSystem(disabledConfig); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/pubgate/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

// initConfig wires the CLI logger and the explicit config file, if any.
// Commands load the configuration themselves so they can pass flag
// overrides.
func initConfig() {
	observability.InitCLILogger(config.AppName, verbose)

	config.SetConfigFile(cfgFile)
	if verbose && cfgFile != "" {
		observability.CLILogger.Debug("Using config file", zap.String("path", cfgFile))
	}
}
