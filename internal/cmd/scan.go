package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voidhaul/voidhaul/internal/core"
	"github.com/voidhaul/voidhaul/internal/observability"
	"github.com/voidhaul/voidhaul/internal/output"
)

var (
	scanSystem string
	scanTraits []string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover the agent, its home system and the fleet",
	Long: `Fetch the agent, its headquarters system and every waypoint in that system
(optionally filtered by trait), then list the fleet.

Examples:
  voidhaul scan
  voidhaul scan --system X1-DF55 --trait MARKETPLACE --trait SHIPYARD
  voidhaul scan --output-format json --out scan.json`,
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

		ctx := cmd.Context()
		agent, err := sess.client.GetAgent(ctx)
		if err != nil {
			return err
		}

		system := strings.ToUpper(strings.TrimSpace(scanSystem))
		if system == "" {
			system = core.SystemSymbolOf(agent.Headquarters)
		}
		sys, err := sess.client.GetSystem(ctx, system)
		if err != nil {
			return err
		}
		waypoints, err := sess.client.ScanSystemWaypoints(ctx, system, normalizeTraits(scanTraits)...)
		if err != nil {
			return err
		}
		ships, err := sess.client.ListShips(ctx)
		if err != nil {
			return err
		}

		observability.CLILogger.Debug("Scan complete",
			zap.String("system", system),
			zap.Int("waypoints", len(waypoints)),
			zap.Int("ships", len(ships)))

		return emit(cmd,
			output.AgentDataset(agent),
			output.SystemsDataset([]core.SystemRecord{sys}),
			output.WaypointsDataset(system, waypoints),
			output.FleetDataset(ships),
		)
	},
}

func normalizeTraits(traits []string) []string {
	out := make([]string, 0, len(traits))
	for _, t := range traits {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(scanCmd)
	addOutputFlags(scanCmd)
	scanCmd.Flags().StringVar(&scanSystem, "system", "", "System to scan (default: the agent's headquarters system)")
	scanCmd.Flags().StringArrayVar(&scanTraits, "trait", nil, "Only list waypoints with this trait (repeatable)")
}
