package api

import (
	"strings"
	"time"

	"github.com/voidhaul/voidhaul/internal/core"
)

type envelope[T any] struct {
	Data T     `json:"data"`
	Meta *meta `json:"meta,omitempty"`
}

type meta struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type symbolRef struct {
	Symbol string `json:"symbol"`
}

type agentPayload struct {
	AccountID       string `json:"accountId"`
	Symbol          string `json:"symbol"`
	Headquarters    string `json:"headquarters"`
	Credits         int64  `json:"credits"`
	StartingFaction string `json:"startingFaction"`
	ShipCount       int    `json:"shipCount"`
}

func (p agentPayload) record() core.AgentRecord {
	return core.AgentRecord{
		AccountID:       p.AccountID,
		Symbol:          p.Symbol,
		Headquarters:    p.Headquarters,
		Credits:         p.Credits,
		StartingFaction: p.StartingFaction,
		ShipCount:       p.ShipCount,
	}
}

type systemPayload struct {
	Symbol       string            `json:"symbol"`
	SectorSymbol string            `json:"sectorSymbol"`
	Type         string            `json:"type"`
	X            int               `json:"x"`
	Y            int               `json:"y"`
	Waypoints    []waypointPayload `json:"waypoints"`
	Factions     []symbolRef       `json:"factions"`
}

func (p systemPayload) record() core.SystemRecord {
	rec := core.SystemRecord{
		Symbol:      p.Symbol,
		Sector:      p.SectorSymbol,
		Type:        p.Type,
		Coordinates: core.Coordinates{X: p.X, Y: p.Y},
	}
	for _, wp := range p.Waypoints {
		rec.Waypoints = append(rec.Waypoints, wp.Symbol)
	}
	for _, f := range p.Factions {
		rec.Factions = append(rec.Factions, f.Symbol)
	}
	return rec
}

type waypointPayload struct {
	Symbol       string      `json:"symbol"`
	Type         string      `json:"type"`
	SystemSymbol string      `json:"systemSymbol"`
	X            int         `json:"x"`
	Y            int         `json:"y"`
	Orbitals     []symbolRef `json:"orbitals"`
	Orbits       string      `json:"orbits"`
	Faction      *symbolRef  `json:"faction"`
	Traits       []symbolRef `json:"traits"`
}

func (p waypointPayload) record(system string) core.WaypointRecord {
	if p.SystemSymbol != "" {
		system = p.SystemSymbol
	}
	rec := core.WaypointRecord{
		Symbol:      p.Symbol,
		System:      system,
		Type:        p.Type,
		Coordinates: core.Coordinates{X: p.X, Y: p.Y},
		Orbits:      p.Orbits,
	}
	if p.Faction != nil {
		rec.Faction = p.Faction.Symbol
	}
	for _, o := range p.Orbitals {
		rec.Orbitals = append(rec.Orbitals, o.Symbol)
	}
	for _, t := range p.Traits {
		rec.Traits = append(rec.Traits, t.Symbol)
	}
	return rec
}

type routePoint struct {
	Symbol       string `json:"symbol"`
	SystemSymbol string `json:"systemSymbol"`
	X            int    `json:"x"`
	Y            int    `json:"y"`
}

type navPayload struct {
	SystemSymbol   string `json:"systemSymbol"`
	WaypointSymbol string `json:"waypointSymbol"`
	Status         string `json:"status"`
	FlightMode     string `json:"flightMode"`
	Route          struct {
		Destination   routePoint `json:"destination"`
		Origin        routePoint `json:"origin"`
		DepartureTime string     `json:"departureTime"`
		Arrival       string     `json:"arrival"`
	} `json:"route"`
}

func (p navPayload) apply(rec *core.FleetRecord) {
	if p.SystemSymbol != "" {
		rec.System = p.SystemSymbol
	}
	if p.WaypointSymbol != "" {
		rec.Waypoint = p.WaypointSymbol
	}
	if p.Status != "" {
		rec.NavStatus = core.NavStatus(p.Status)
	}
	if p.FlightMode != "" {
		rec.FlightMode = core.FlightMode(p.FlightMode)
	}
	rec.Destination = p.Route.Destination.Symbol
	rec.ArrivalAt = nil
	if rec.NavStatus == core.NavInTransit {
		if arrival, ok := parseTime(p.Route.Arrival); ok {
			rec.ArrivalAt = &arrival
		}
	}
}

type cooldownPayload struct {
	TotalSeconds     int    `json:"totalSeconds"`
	RemainingSeconds int    `json:"remainingSeconds"`
	Expiration       string `json:"expiration"`
}

func (p cooldownPayload) apply(rec *core.FleetRecord, now time.Time) {
	rec.CooldownExpiresAt = nil
	if expires, ok := parseTime(p.Expiration); ok && p.RemainingSeconds > 0 {
		rec.CooldownExpiresAt = &expires
		return
	}
	if p.RemainingSeconds > 0 {
		expires := now.Add(time.Duration(p.RemainingSeconds) * time.Second)
		rec.CooldownExpiresAt = &expires
	}
}

type fuelPayload struct {
	Current  int `json:"current"`
	Capacity int `json:"capacity"`
}

func (p fuelPayload) fuel() core.Fuel {
	return core.Fuel{Current: p.Current, Capacity: p.Capacity}
}

type cargoPayload struct {
	Capacity  int `json:"capacity"`
	Units     int `json:"units"`
	Inventory []struct {
		Symbol string `json:"symbol"`
		Units  int    `json:"units"`
	} `json:"inventory"`
}

func (p cargoPayload) cargo() core.Cargo {
	out := core.Cargo{Units: p.Units, Capacity: p.Capacity}
	for _, item := range p.Inventory {
		out.Inventory = append(out.Inventory, core.CargoItem{Symbol: item.Symbol, Units: item.Units})
	}
	return out
}

type shipPayload struct {
	Symbol       string `json:"symbol"`
	Registration struct {
		Name          string `json:"name"`
		FactionSymbol string `json:"factionSymbol"`
		Role          string `json:"role"`
	} `json:"registration"`
	Nav      navPayload      `json:"nav"`
	Cooldown cooldownPayload `json:"cooldown"`
	Fuel     fuelPayload     `json:"fuel"`
	Cargo    cargoPayload    `json:"cargo"`
}

func (p shipPayload) record(now time.Time) core.FleetRecord {
	rec := core.FleetRecord{
		Symbol:    p.Symbol,
		Role:      core.ParseRole(p.Registration.Role),
		Fuel:      p.Fuel.fuel(),
		Cargo:     p.Cargo.cargo(),
		FetchedAt: now,
	}
	p.Nav.apply(&rec)
	p.Cooldown.apply(&rec, now)
	return rec
}

type transactionPayload struct {
	WaypointSymbol string `json:"waypointSymbol"`
	ShipSymbol     string `json:"shipSymbol"`
	TradeSymbol    string `json:"tradeSymbol"`
	Type           string `json:"type"`
	Units          int    `json:"units"`
	PricePerUnit   int    `json:"pricePerUnit"`
	TotalPrice     int    `json:"totalPrice"`
	Timestamp      string `json:"timestamp"`
}

func (p transactionPayload) record(now time.Time, agent *agentPayload) core.Transaction {
	tx := core.Transaction{
		Timestamp:  now,
		Action:     tradeAction(p.Type),
		Ship:       p.ShipSymbol,
		Waypoint:   p.WaypointSymbol,
		Symbol:     p.TradeSymbol,
		Units:      p.Units,
		UnitPrice:  p.PricePerUnit,
		TotalPrice: p.TotalPrice,
	}
	if ts, ok := parseTime(p.Timestamp); ok {
		tx.Timestamp = ts
	}
	if agent != nil {
		credits := agent.Credits
		tx.CreditsAfter = &credits
	}
	return tx
}

// tradeAction maps the service's transaction type onto the trade log vocabulary.
func tradeAction(kind string) string {
	switch strings.ToUpper(kind) {
	case "PURCHASE":
		return "BUY"
	case "":
		return "UNKNOWN"
	default:
		return strings.ToUpper(kind)
	}
}

type tradeGoodPayload struct {
	Symbol        string `json:"symbol"`
	Type          string `json:"type"`
	TradeVolume   int    `json:"tradeVolume"`
	Supply        string `json:"supply"`
	Activity      string `json:"activity"`
	PurchasePrice int    `json:"purchasePrice"`
	SellPrice     int    `json:"sellPrice"`
}

type marketPayload struct {
	Symbol     string             `json:"symbol"`
	Exports    []symbolRef        `json:"exports"`
	Imports    []symbolRef        `json:"imports"`
	Exchange   []symbolRef        `json:"exchange"`
	TradeGoods []tradeGoodPayload `json:"tradeGoods"`
}

type shipyardPayload struct {
	Symbol    string `json:"symbol"`
	ShipTypes []struct {
		Type string `json:"type"`
	} `json:"shipTypes"`
	Ships []struct {
		Type          string `json:"type"`
		Name          string `json:"name"`
		PurchasePrice int    `json:"purchasePrice"`
	} `json:"ships"`
	ModificationsFee int `json:"modificationsFee"`
}

func symbols(refs []symbolRef) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Symbol)
	}
	return out
}

func parseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}
