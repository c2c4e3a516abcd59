package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/voidhaul/voidhaul/internal/output"
)

var rateLimitListPrefix string

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rate limit backoffs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := resolveOutputFormat(cmd); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		entries, err := db.ListRateLimits(cmd.Context(), strings.TrimSpace(rateLimitListPrefix))
		if err != nil {
			return err
		}
		return emit(cmd, output.RateLimitsDataset(entries))
	},
}

func init() {
	addOutputFlags(rateLimitListCmd)
	rateLimitListCmd.Flags().StringVar(&rateLimitListPrefix, "prefix", "", "List buckets with matching prefix")
}
