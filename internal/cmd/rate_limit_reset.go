package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/voidhaul/voidhaul/internal/output"
)

var (
	rateLimitResetPrefix string
	rateLimitResetYes    bool
	rateLimitResetDryRun bool
)

// resetResult is the reset report.
type resetResult struct {
	Prefix  string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Matched int    `json:"matched" yaml:"matched"`
	Deleted int64  `json:"deleted" yaml:"deleted"`
	DryRun  bool   `json:"dry_run" yaml:"dry_run"`
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear stored rate limit backoffs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := resolveOutputFormat(cmd); err != nil {
			return err
		}
		prefix := strings.TrimSpace(rateLimitResetPrefix)
		if err := confirmReset(prefix, rateLimitResetYes, rateLimitResetDryRun); err != nil {
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

		entries, err := db.ListRateLimits(cmd.Context(), prefix)
		if err != nil {
			return err
		}
		result := resetResult{Prefix: prefix, Matched: len(entries), DryRun: rateLimitResetDryRun}
		if !rateLimitResetDryRun {
			result.Deleted, err = db.ResetRateLimits(cmd.Context(), prefix)
			if err != nil {
				return err
			}
		}
		return emit(cmd, resetDataset(result))
	},
}

// confirmReset refuses to clear every bucket without --yes.
func confirmReset(prefix string, yes, dryRun bool) error {
	if prefix == "" && !yes && !dryRun {
		return errors.New("resetting every bucket requires --yes (or use --dry-run or --prefix)")
	}
	return nil
}

func resetDataset(r resetResult) output.Dataset {
	summary := fmt.Sprintf("Deleted %d/%d bucket(s)", r.Deleted, r.Matched)
	if r.DryRun {
		summary = fmt.Sprintf("Would delete %d bucket(s)", r.Matched)
	}
	return output.Dataset{
		Title:  "Rate Limit Reset",
		Header: table.Row{"Result"},
		Rows:   []table.Row{{summary}},
		Data:   r,
	}
}

func init() {
	addOutputFlags(rateLimitResetCmd)
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetPrefix, "prefix", "", "Reset buckets with matching prefix")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetYes, "yes", false, "Confirm resetting every bucket")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetDryRun, "dry-run", false, "Show what would be deleted")
}
