package core

import (
	"math"
	"sort"
	"strings"
	"time"
)

// ObservationKind distinguishes buy-side and sell-side price samples.
type ObservationKind string

const (
	// ObservationBuy is the price a ship pays the market (purchasePrice).
	ObservationBuy ObservationKind = "buy"
	// ObservationSell is the price the market pays a ship (sellPrice).
	ObservationSell ObservationKind = "sell"
)

// Valid reports whether the kind is one of the known values.
func (k ObservationKind) Valid() bool {
	return k == ObservationBuy || k == ObservationSell
}

// NavStatus is the navigation status reported for a ship.
type NavStatus string

const (
	NavDocked    NavStatus = "DOCKED"
	NavInTransit NavStatus = "IN_TRANSIT"
	NavInOrbit   NavStatus = "IN_ORBIT"
)

// FlightMode trades speed for fuel consumption.
type FlightMode string

const (
	FlightDrift   FlightMode = "DRIFT"
	FlightStealth FlightMode = "STEALTH"
	FlightCruise  FlightMode = "CRUISE"
	FlightBurn    FlightMode = "BURN"
)

// Well-known waypoint traits.
const (
	TraitMarketplace           = "MARKETPLACE"
	TraitShipyard              = "SHIPYARD"
	TraitMineralDeposits       = "MINERAL_DEPOSITS"
	TraitCommonMetalDeposits   = "COMMON_METAL_DEPOSITS"
	TraitPreciousMetalDeposits = "PRECIOUS_METAL_DEPOSITS"
	TraitRareMetalDeposits     = "RARE_METAL_DEPOSITS"
	TraitMethanePools          = "METHANE_POOLS"
	TraitIceCrystals           = "ICE_CRYSTALS"
	TraitExplosiveGases        = "EXPLOSIVE_GASES"
)

// MineableTraits lists the traits that mark a waypoint as extractable.
var MineableTraits = []string{
	TraitMineralDeposits,
	TraitCommonMetalDeposits,
	TraitPreciousMetalDeposits,
	TraitRareMetalDeposits,
	TraitMethanePools,
	TraitIceCrystals,
	TraitExplosiveGases,
}

// Coordinates locate a waypoint inside its system.
type Coordinates struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Distance returns the Euclidean distance between two points.
func (c Coordinates) Distance(other Coordinates) float64 {
	return math.Hypot(float64(c.X-other.X), float64(c.Y-other.Y))
}

// Observation is one immutable market price sample.
type Observation struct {
	Good        string          `json:"good"`
	Waypoint    string          `json:"waypoint"`
	System      string          `json:"system,omitempty"`
	Kind        ObservationKind `json:"kind"`
	Price       int             `json:"price"`
	TradeVolume int             `json:"trade_volume,omitempty"`
	Supply      string          `json:"supply,omitempty"`
	Activity    string          `json:"activity,omitempty"`
	ObservedAt  time.Time       `json:"observed_at"`
}

// ObservationKey identifies the latest-observation slot for a sample.
type ObservationKey struct {
	Good     string
	Waypoint string
	Kind     ObservationKind
}

// Key returns the slot key for the observation.
func (o Observation) Key() ObservationKey {
	return ObservationKey{Good: o.Good, Waypoint: o.Waypoint, Kind: o.Kind}
}

// Age returns how old the observation is relative to now.
func (o Observation) Age(now time.Time) time.Duration {
	return now.Sub(o.ObservedAt)
}

// WaypointRecord describes a discovered waypoint.
type WaypointRecord struct {
	Symbol          string      `json:"symbol"`
	System          string      `json:"system"`
	Type            string      `json:"type,omitempty"`
	Coordinates     Coordinates `json:"coordinates"`
	Traits          []string    `json:"traits,omitempty"`
	Orbitals        []string    `json:"orbitals,omitempty"`
	Orbits          string      `json:"orbits,omitempty"`
	Faction         string      `json:"faction,omitempty"`
	MarketPresent   bool        `json:"market_present"`
	ShipyardPresent bool        `json:"shipyard_present"`
}

// HasTrait reports whether the waypoint carries the trait.
func (w WaypointRecord) HasTrait(trait string) bool {
	for _, t := range w.Traits {
		if t == trait {
			return true
		}
	}
	return false
}

// HasAnyTrait reports whether the waypoint carries at least one of the traits.
func (w WaypointRecord) HasAnyTrait(traits ...string) bool {
	for _, t := range traits {
		if w.HasTrait(t) {
			return true
		}
	}
	return false
}

// IsMarket reports whether a market is known at the waypoint.
func (w WaypointRecord) IsMarket() bool {
	return w.MarketPresent || w.HasTrait(TraitMarketplace)
}

// IsMineable reports whether the waypoint carries an extractable trait.
func (w WaypointRecord) IsMineable() bool {
	return w.HasAnyTrait(MineableTraits...)
}

// SystemRecord describes a star system.
type SystemRecord struct {
	Symbol      string      `json:"symbol"`
	Sector      string      `json:"sector,omitempty"`
	Type        string      `json:"type,omitempty"`
	Coordinates Coordinates `json:"coordinates"`
	Waypoints   []string    `json:"waypoints,omitempty"`
	Factions    []string    `json:"factions,omitempty"`
}

// Fuel tracks current and maximum fuel.
type Fuel struct {
	Current  int `json:"current"`
	Capacity int `json:"capacity"`
}

// CargoItem is one stack of goods in a hold.
type CargoItem struct {
	Symbol string `json:"symbol"`
	Units  int    `json:"units"`
}

// Cargo tracks a ship's hold.
type Cargo struct {
	Units     int         `json:"units"`
	Capacity  int         `json:"capacity"`
	Inventory []CargoItem `json:"inventory,omitempty"`
}

// Full reports whether the hold has no free capacity.
func (c Cargo) Full() bool {
	return c.Capacity > 0 && c.Units >= c.Capacity
}

// FleetRecord is a live snapshot of one ship.
type FleetRecord struct {
	Symbol            string     `json:"symbol"`
	Role              Role       `json:"role"`
	System            string     `json:"system"`
	Waypoint          string     `json:"waypoint"`
	Destination       string     `json:"destination,omitempty"`
	NavStatus         NavStatus  `json:"nav_status"`
	FlightMode        FlightMode `json:"flight_mode,omitempty"`
	ArrivalAt         *time.Time `json:"arrival_at,omitempty"`
	Fuel              Fuel       `json:"fuel"`
	Cargo             Cargo      `json:"cargo"`
	CooldownExpiresAt *time.Time `json:"cooldown_expires_at,omitempty"`
	FetchedAt         time.Time  `json:"fetched_at"`

	// Revision orders snapshots whose requests were issued at the same
	// instant. Zero means unordered.
	Revision uint64 `json:"-"`
}

// OlderThan reports whether f was requested before other, so it must not
// replace other in a cache. An unstamped record is never older.
func (f FleetRecord) OlderThan(other FleetRecord) bool {
	if f.FetchedAt.IsZero() {
		return false
	}
	if !f.FetchedAt.Equal(other.FetchedAt) {
		return f.FetchedAt.Before(other.FetchedAt)
	}
	return f.Revision != 0 && other.Revision != 0 && f.Revision < other.Revision
}

// InTransitAt reports whether the ship is still travelling at the given instant.
func (f FleetRecord) InTransitAt(now time.Time) bool {
	if f.NavStatus != NavInTransit {
		return false
	}
	return f.ArrivalAt != nil && now.Before(*f.ArrivalAt)
}

// CoolingDownAt reports whether the ship's cooldown is still running.
func (f FleetRecord) CoolingDownAt(now time.Time) bool {
	return f.CooldownExpiresAt != nil && now.Before(*f.CooldownExpiresAt)
}

// Clone returns a deep copy so callers never share slices or pointers with the cache.
func (f FleetRecord) Clone() FleetRecord {
	out := f
	if f.ArrivalAt != nil {
		v := *f.ArrivalAt
		out.ArrivalAt = &v
	}
	if f.CooldownExpiresAt != nil {
		v := *f.CooldownExpiresAt
		out.CooldownExpiresAt = &v
	}
	if f.Cargo.Inventory != nil {
		out.Cargo.Inventory = append([]CargoItem(nil), f.Cargo.Inventory...)
	}
	return out
}

// AgentRecord holds the player's account details.
type AgentRecord struct {
	AccountID       string `json:"account_id,omitempty"`
	Symbol          string `json:"symbol"`
	Headquarters    string `json:"headquarters"`
	Credits         int64  `json:"credits"`
	StartingFaction string `json:"starting_faction,omitempty"`
	ShipCount       int    `json:"ship_count"`
}

// Transaction records a completed market trade.
type Transaction struct {
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"`
	Ship         string    `json:"ship"`
	Waypoint     string    `json:"waypoint"`
	Symbol       string    `json:"symbol"`
	Units        int       `json:"units"`
	UnitPrice    int       `json:"unit_price"`
	TotalPrice   int       `json:"total_price"`
	CreditsAfter *int64    `json:"credits_after,omitempty"`
}

// SystemSymbolOf derives the system symbol from a waypoint symbol (X1-AB12-C3 -> X1-AB12).
func SystemSymbolOf(waypoint string) string {
	parts := strings.Split(strings.TrimSpace(waypoint), "-")
	if len(parts) < 2 {
		return strings.TrimSpace(waypoint)
	}
	return parts[0] + "-" + parts[1]
}

// MergeTraits returns the sorted union of two trait sets.
func MergeTraits(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, t := range a {
		if t = strings.TrimSpace(t); t != "" {
			seen[t] = struct{}{}
		}
	}
	for _, t := range b {
		if t = strings.TrimSpace(t); t != "" {
			seen[t] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
