package cmd

import (
	"github.com/spf13/cobra"

	"github.com/voidhaul/voidhaul/internal/observability"
	"github.com/voidhaul/voidhaul/internal/output"
)

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "List the agent's ships",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := resolveOutputFormat(cmd); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sess, err := openSession(cmd.Context(), cfg, observability.CLILogger, false, nil)
		if err != nil {
			return err
		}
		defer sess.Close() // nolint:errcheck // best-effort cleanup

		ships, err := sess.client.ListShips(cmd.Context())
		if err != nil {
			return err
		}
		return emit(cmd, output.FleetDataset(ships))
	},
}

func init() {
	rootCmd.AddCommand(fleetCmd)
	addOutputFlags(fleetCmd)
}
