package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/voidhaul/voidhaul/internal/core"
	"github.com/voidhaul/voidhaul/internal/core/store"
	"github.com/voidhaul/voidhaul/internal/observability"
	"github.com/voidhaul/voidhaul/internal/output"
)

var (
	marketGood     string
	marketHours    int
	marketLimit    int
	marketWaypoint string
)

var marketCmd = &cobra.Command{
	Use:   "market",
	Short: "Query market prices",
}

var marketBestSellCmd = &cobra.Command{
	Use:   "best-sell",
	Short: "Highest journaled sell prices for a good",
	Long: `List the waypoints that paid the most for a good within the window.

Examples:
  voidhaul market best-sell --good IRON_ORE
  voidhaul market best-sell --good FUEL --hours 6 --limit 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPriceQuery(cmd, core.ObservationSell)
	},
}

var marketBestBuyCmd = &cobra.Command{
	Use:   "best-buy",
	Short: "Lowest journaled purchase prices for a good",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPriceQuery(cmd, core.ObservationBuy)
	},
}

var marketShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Fetch a market and print its prices",
	Long: `Fetch a waypoint's market from the server. Prices are only visible when one
of your ships is present; the observations are also journaled when the store is
enabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := resolveOutputFormat(cmd); err != nil {
			return err
		}
		waypoint := strings.ToUpper(strings.TrimSpace(marketWaypoint))
		if waypoint == "" {
			return fmt.Errorf("--waypoint is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sess, err := openSession(cmd.Context(), cfg, observability.CLILogger, true, nil)
		if err != nil {
			return err
		}
		defer sess.Close() // nolint:errcheck // best-effort cleanup

		if _, err := sess.client.GetMarket(cmd.Context(), core.SystemSymbolOf(waypoint), waypoint); err != nil {
			return err
		}
		return emit(cmd, output.ObservationsDataset("Market "+waypoint, sess.wh.LatestObservations(waypoint)))
	},
}

// priceQuery builds a journal query from the shared market flags.
func priceQuery(good string, hours, limit int, now time.Time) (store.PriceQuery, error) {
	good = strings.ToUpper(strings.TrimSpace(good))
	if good == "" {
		return store.PriceQuery{}, fmt.Errorf("--good is required")
	}
	if hours <= 0 {
		return store.PriceQuery{}, fmt.Errorf("--hours must be positive")
	}
	if limit <= 0 {
		return store.PriceQuery{}, fmt.Errorf("--limit must be positive")
	}
	return store.PriceQuery{
		Good:  good,
		Since: now.Add(-time.Duration(hours) * time.Hour),
		Limit: limit,
	}, nil
}

func runPriceQuery(cmd *cobra.Command, kind core.ObservationKind) error {
	if _, err := resolveOutputFormat(cmd); err != nil {
		return err
	}
	q, err := priceQuery(marketGood, marketHours, marketLimit, time.Now())
	if err != nil {
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

	var points []store.PricePoint
	title := fmt.Sprintf("Best sell prices for %s (last %dh)", q.Good, marketHours)
	if kind == core.ObservationBuy {
		title = fmt.Sprintf("Best purchase prices for %s (last %dh)", q.Good, marketHours)
		points, err = db.BestBuyPrices(cmd.Context(), q)
	} else {
		points, err = db.BestSellPrices(cmd.Context(), q)
	}
	if err != nil {
		return err
	}
	return emit(cmd, output.PricesDataset(title, points))
}

func init() {
	for _, c := range []*cobra.Command{marketBestSellCmd, marketBestBuyCmd} {
		addOutputFlags(c)
		c.Flags().StringVar(&marketGood, "good", "", "Trade good symbol (e.g. IRON_ORE)")
		c.Flags().IntVar(&marketHours, "hours", 24, "Look-back window in hours")
		c.Flags().IntVar(&marketLimit, "limit", 10, "Maximum rows")
		marketCmd.AddCommand(c)
	}
	addOutputFlags(marketShowCmd)
	marketShowCmd.Flags().StringVar(&marketWaypoint, "waypoint", "", "Waypoint symbol (e.g. X1-DF55-20250Z)")
	marketCmd.AddCommand(marketShowCmd)
	rootCmd.AddCommand(marketCmd)
}
