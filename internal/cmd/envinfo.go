package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voidhaul/voidhaul/internal/config"
	"github.com/voidhaul/voidhaul/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information. Secrets are masked.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		version := crucible.GetVersion()

		log.Info("=== voidhaul Environment Information ===")
		log.Info("")

		log.Info("Application:")
		log.Info("  Name:       " + config.AppName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("")

		log.Info("SSOT:")
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		log.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		log.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		log.Info("")

		cfg, err := loadConfig()
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		log.Info("Agent:")
		log.Info("  Base URL:   "+cfg.Agent.BaseURL, zap.String("base_url", cfg.Agent.BaseURL))
		log.Info("  Token:      " + maskSecret(cfg.Agent.Token))
		log.Info("")

		g := cfg.Governor
		log.Info("Governor:")
		log.Info(fmt.Sprintf("  Steady:     %d per %s", g.SteadyLimit, g.SteadyWindow))
		log.Info(fmt.Sprintf("  Burst:      %d per %s", g.BurstLimit, g.BurstWindow))
		log.Info(fmt.Sprintf("  Attempts:   %d", g.MaxAttempts))
		log.Info(fmt.Sprintf("  Backoff:    %s x%.1f (max %s)", g.BackoffBase, g.BackoffMultiplier, g.BackoffMax))
		log.Info("")

		log.Info("Engine:")
		log.Info("  Poll:       " + cfg.Engine.PollInterval.String())
		log.Info("  Error Wait: " + cfg.Engine.ErrorBackoff.String())
		log.Info("  Resync:     " + cfg.Engine.ResyncInterval.String())
		log.Info(fmt.Sprintf("  Jettison:   %t", cfg.Engine.Jettison))
		log.Info("")

		log.Info("Store:")
		log.Info(fmt.Sprintf("  Enabled:    %t", cfg.Store.Enabled), zap.Bool("store_enabled", cfg.Store.Enabled))
		log.Info("  Driver:     "+cfg.Store.Driver, zap.String("db_driver", cfg.Store.Driver))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			log.Info("  URL:        "+cfg.Store.URL, zap.String("db_url", cfg.Store.URL))
			log.Info("  Auth Token: " + maskSecret(cfg.Store.AuthToken))
		} else {
			log.Info("  Path:       "+cfg.Store.Path, zap.String("db_path", cfg.Store.Path))
		}
		log.Info("  Retention:  " + cfg.Store.Retention.String())
		log.Info(fmt.Sprintf("  Trade Log:  %t (%s)", cfg.TradeLog.Enabled, cfg.TradeLog.Path))
		log.Info("")

		log.Info("Server:")
		log.Info(fmt.Sprintf("  Enabled:    %t", cfg.Server.Enabled))
		log.Info(fmt.Sprintf("  Address:    %s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info(fmt.Sprintf("  Metrics:    %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		log.Info("  Log Level:  "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		log.Info("  Log Profile: "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		log.Info("  Config File: "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		log.Info("")

		log.Info("=== End Environment Information ===")
	},
}

// maskSecret keeps the last four characters of a credential.
func maskSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	switch {
	case secret == "":
		return "(not set)"
	case len(secret) <= 8:
		return "****"
	default:
		return "****" + secret[len(secret)-4:]
	}
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
