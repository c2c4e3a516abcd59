package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voidhaul/voidhaul/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long: `Verify that voidhaul can start: version info, configuration, agent token
and (when enabled) the journal store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.CLILogger
		log.Info("Running health check...")

		if versionInfo.Version == "" {
			log.Warn("⚠️  Version information missing (development build)")
		} else {
			log.Info("✅ Version information available", zap.String("version", versionInfo.Version))
		}

		cfg, err := loadConfig()
		if err != nil {
			log.Error("❌ FAIL: Configuration invalid", zap.Error(err))
			return err
		}
		log.Info("✅ Configuration valid")

		if err := cfg.RequireToken(); err != nil {
			log.Error("❌ FAIL: Agent token missing")
			return err
		}
		log.Info("✅ Agent token present")

		if cfg.Store.Enabled {
			db, err := openStore(cmd.Context(), cfg)
			if err != nil {
				log.Error("❌ FAIL: Journal store unavailable", zap.Error(err))
				return err
			}
			defer db.Close() // nolint:errcheck // best-effort cleanup
			if err := db.DB.PingContext(cmd.Context()); err != nil {
				log.Error("❌ FAIL: Journal store ping failed", zap.Error(err))
				return err
			}
			log.Info("✅ Journal store reachable", zap.String("driver", db.Driver()))
		} else {
			log.Info("ℹ️  Journal store disabled")
		}

		log.Info("")
		log.Info("✅ All health checks passed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
