package cmd

import (
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/voidhaul/voidhaul/internal/config"
	"github.com/voidhaul/voidhaul/internal/observability"
)

var (
	cfgFile string
	envFile string
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
	Short: "Automated fleet agent for the SpaceTraders API",
	Long: `voidhaul discovers the universe, tracks fleet and market state, and drives
ships through mining and trading loops while staying inside the API's rate limits.

Set AGENT_TOKEN (or agent.token in the config file) before running commands
that talk to the game server.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry early so config loading does not emit metrics to
	// stdout. run initializes the Prometheus exporter when metrics are enabled.
	disabledConfig := &telemetry.Config{Enabled: false}
	if sys, err := telemetry.NewSystem(disabledConfig); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/voidhaul/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file holding AGENT_TOKEN")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig loads .env, then points viper at the config file and environment.
func initConfig() {
	observability.InitCLILogger(config.AppName, verbose)

	if err := config.LoadDotEnv(envFile); err != nil {
		observability.CLILogger.Warn("Failed to load dotenv file", zap.String("file", envFile), zap.Error(err))
	}

	config.Prepare(viper.GetViper(), cfgFile)

	used, err := config.ReadFile(viper.GetViper())
	switch {
	case err != nil:
		observability.CLILogger.Warn("Error reading config file", zap.Error(err))
	case used != "":
		observability.CLILogger.Debug("Using config file", zap.String("path", used))
	default:
		observability.CLILogger.Debug("No config file found, using defaults and environment variables")
	}
}

// loadConfig decodes and validates the merged configuration.
func loadConfig() (*config.Config, error) {
	return config.Decode(viper.GetViper())
}
