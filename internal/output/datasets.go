package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/voidhaul/voidhaul/internal/core"
	"github.com/voidhaul/voidhaul/internal/core/engine"
	"github.com/voidhaul/voidhaul/internal/core/store"
)

const timeLayout = "2006-01-02 15:04:05"

// AgentDataset renders the account summary.
func AgentDataset(a core.AgentRecord) Dataset {
	return Dataset{
		Title:  "Agent",
		Header: table.Row{"Symbol", "Headquarters", "Credits", "Faction", "Ships"},
		Rows: []table.Row{{
			a.Symbol, a.Headquarters, a.Credits, a.StartingFaction, a.ShipCount,
		}},
		Data: a,
	}
}

// SystemsDataset renders star systems.
func SystemsDataset(systems []core.SystemRecord) Dataset {
	rows := make([]table.Row, 0, len(systems))
	for _, s := range systems {
		rows = append(rows, table.Row{
			s.Symbol, s.Type, coords(s.Coordinates), len(s.Waypoints), strings.Join(s.Factions, ","),
		})
	}
	return Dataset{
		Title:  "Systems",
		Header: table.Row{"Symbol", "Type", "Coordinates", "Waypoints", "Factions"},
		Rows:   rows,
		Data:   systems,
	}
}

// WaypointsDataset renders waypoints with their traits.
func WaypointsDataset(system string, waypoints []core.WaypointRecord) Dataset {
	rows := make([]table.Row, 0, len(waypoints))
	for _, w := range waypoints {
		rows = append(rows, table.Row{
			w.Symbol, w.Type, coords(w.Coordinates), yesNo(w.IsMarket()), yesNo(w.ShipyardPresent), strings.Join(w.Traits, ","),
		})
	}
	title := "Waypoints"
	if system != "" {
		title += " in " + system
	}
	return Dataset{
		Title:  title,
		Header: table.Row{"Symbol", "Type", "Coordinates", "Market", "Shipyard", "Traits"},
		Rows:   rows,
		Data:   waypoints,
	}
}

// FleetDataset renders ship snapshots.
func FleetDataset(ships []core.FleetRecord) Dataset {
	rows := make([]table.Row, 0, len(ships))
	for _, s := range ships {
		rows = append(rows, table.Row{
			s.Symbol,
			string(s.Role),
			s.Waypoint,
			string(s.NavStatus),
			fmt.Sprintf("%d/%d", s.Fuel.Current, s.Fuel.Capacity),
			fmt.Sprintf("%d/%d", s.Cargo.Units, s.Cargo.Capacity),
			optionalTime(s.ArrivalAt),
			optionalTime(s.CooldownExpiresAt),
		})
	}
	return Dataset{
		Title:  "Fleet",
		Header: table.Row{"Ship", "Role", "Waypoint", "Status", "Fuel", "Cargo", "Arrival", "Cooldown"},
		Rows:   rows,
		Data:   ships,
	}
}

// ShipStatesDataset renders the automation state of each ship loop.
func ShipStatesDataset(states []engine.ShipState) Dataset {
	rows := make([]table.Row, 0, len(states))
	for _, s := range states {
		rows = append(rows, table.Row{s.Ship, string(s.State)})
	}
	return Dataset{
		Title:  "Ship loops",
		Header: table.Row{"Ship", "State"},
		Rows:   rows,
		Data:   states,
	}
}

// PricesDataset renders journal price rows for one good.
func PricesDataset(title string, points []store.PricePoint) Dataset {
	rows := make([]table.Row, 0, len(points))
	for _, p := range points {
		rows = append(rows, table.Row{
			p.ObservedAt.UTC().Format(timeLayout), p.System, p.Waypoint, p.Good, p.Price,
		})
	}
	return Dataset{
		Title:  title,
		Header: table.Row{"Observed", "System", "Waypoint", "Good", "Price"},
		Rows:   rows,
		Data:   points,
	}
}

// ObservationsDataset renders warehouse price samples.
func ObservationsDataset(title string, observations []core.Observation) Dataset {
	rows := make([]table.Row, 0, len(observations))
	for _, o := range observations {
		rows = append(rows, table.Row{
			o.Good, string(o.Kind), o.Waypoint, o.Price, o.TradeVolume, o.Supply, o.ObservedAt.UTC().Format(timeLayout),
		})
	}
	return Dataset{
		Title:  title,
		Header: table.Row{"Good", "Kind", "Waypoint", "Price", "Volume", "Supply", "Observed"},
		Rows:   rows,
		Data:   observations,
	}
}

// TransactionsDataset renders journaled trades with a credit total footer.
func TransactionsDataset(txs []core.Transaction) Dataset {
	rows := make([]table.Row, 0, len(txs))
	var net int
	for _, t := range txs {
		rows = append(rows, table.Row{
			t.Timestamp.UTC().Format(timeLayout), t.Action, t.Ship, t.Waypoint, t.Symbol, t.Units, t.UnitPrice, t.TotalPrice,
		})
		if strings.EqualFold(t.Action, "SELL") {
			net += t.TotalPrice
		} else {
			net -= t.TotalPrice
		}
	}
	d := Dataset{
		Title:  "Transactions",
		Header: table.Row{"Time", "Action", "Ship", "Waypoint", "Symbol", "Units", "Unit", "Total"},
		Rows:   rows,
		Data:   txs,
	}
	if len(txs) > 0 {
		d.Footer = table.Row{"", "", "", "", "", "", "Net", net}
	}
	return d
}

// RateLimitsDataset renders persisted governor buckets.
func RateLimitsDataset(entries []store.RateLimitEntry) Dataset {
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, table.Row{e.Bucket, optionalTime(e.BackoffUntil), optionalTime(e.Last429At), e.UpdatedAt.UTC().Format(timeLayout)})
	}
	return Dataset{
		Title:  "Rate limit buckets",
		Header: table.Row{"Bucket", "Backoff until", "Last 429", "Updated"},
		Rows:   rows,
		Data:   entries,
	}
}

func coords(c core.Coordinates) string {
	return fmt.Sprintf("(%d, %d)", c.X, c.Y)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "-"
}

func optionalTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}
