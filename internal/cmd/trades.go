package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voidhaul/voidhaul/internal/output"
)

var (
	tradesShip  string
	tradesLimit int
)

var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List journaled trades",
	Long: `List the most recent sells and refuels recorded by run.

Examples:
  voidhaul trades
  voidhaul trades --ship MYAGENT-3 --limit 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := resolveOutputFormat(cmd); err != nil {
			return err
		}
		if tradesLimit <= 0 {
			return fmt.Errorf("--limit must be positive")
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

		txs, err := db.RecentTransactions(cmd.Context(), strings.ToUpper(strings.TrimSpace(tradesShip)), tradesLimit)
		if err != nil {
			return err
		}
		return emit(cmd, output.TransactionsDataset(txs))
	},
}

func init() {
	rootCmd.AddCommand(tradesCmd)
	addOutputFlags(tradesCmd)
	tradesCmd.Flags().StringVar(&tradesShip, "ship", "", "Only show trades for this ship")
	tradesCmd.Flags().IntVar(&tradesLimit, "limit", 20, "Maximum rows")
}
