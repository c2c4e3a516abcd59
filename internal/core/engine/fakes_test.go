package engine

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/voidhaul/voidhaul/internal/core"
	"github.com/voidhaul/voidhaul/internal/core/api"
	"github.com/voidhaul/voidhaul/internal/core/governor"
	"github.com/voidhaul/voidhaul/internal/core/warehouse"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type apiCall struct {
	Name   string
	Ship   string
	Target string
	At     time.Time
}

type recordedTrades struct {
	mu  sync.Mutex
	txs []core.Transaction
}

func (r *recordedTrades) RecordTransaction(ctx context.Context, tx core.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, tx)
	return nil
}

// fakeAPI simulates the game service on top of a warehouse, the way the real
// client writes every response into it.
type fakeAPI struct {
	mu        sync.Mutex
	clock     *fakeClock
	wh        *warehouse.Warehouse
	waypoints []core.WaypointRecord
	markets   map[string]api.Market
	calls     []apiCall

	travelTime time.Duration
	cooldown   time.Duration
	yield      int

	extractErr error
}

func newFakeAPI(clock *fakeClock, wh *warehouse.Warehouse) *fakeAPI {
	return &fakeAPI{
		clock:      clock,
		wh:         wh,
		markets:    make(map[string]api.Market),
		travelTime: 10 * time.Second,
		cooldown:   30 * time.Second,
		yield:      10,
	}
}

func (f *fakeAPI) note(name, ship, target string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, apiCall{Name: name, Ship: ship, Target: target, At: f.clock.Now()})
}

func (f *fakeAPI) Calls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

func (f *fakeAPI) callsNamed(name string) []apiCall {
	var out []apiCall
	for _, c := range f.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func rejected(msg string) error {
	return &governor.RequestRejected{Status: http.StatusBadRequest, Code: 4000, Message: msg}
}

// settle lands a ship whose arrival time has passed.
func (f *fakeAPI) settle(rec core.FleetRecord) core.FleetRecord {
	now := f.clock.Now()
	if rec.NavStatus == core.NavInTransit && rec.ArrivalAt != nil && !now.Before(*rec.ArrivalAt) {
		rec.NavStatus = core.NavInOrbit
		rec.Waypoint = rec.Destination
		rec.ArrivalAt = nil
	}
	return rec
}

func (f *fakeAPI) ship(symbol string) core.FleetRecord {
	rec, _ := f.wh.Ship(symbol)
	return f.settle(rec)
}

func (f *fakeAPI) save(rec core.FleetRecord) core.FleetRecord {
	_ = f.wh.RecordFleetSnapshot(rec)
	return rec
}

func (f *fakeAPI) ListShips(ctx context.Context) ([]core.FleetRecord, error) {
	f.note("ListShips", "", "")
	return f.wh.Ships(), nil
}

func (f *fakeAPI) GetShip(ctx context.Context, ship string) (core.FleetRecord, error) {
	f.note("GetShip", ship, "")
	return f.save(f.ship(ship)), nil
}

func (f *fakeAPI) Orbit(ctx context.Context, ship string) (core.FleetRecord, error) {
	f.note("Orbit", ship, "")
	rec := f.ship(ship)
	if rec.NavStatus == core.NavInTransit {
		return rec, rejected("in transit")
	}
	rec.NavStatus = core.NavInOrbit
	return f.save(rec), nil
}

func (f *fakeAPI) Dock(ctx context.Context, ship string) (core.FleetRecord, error) {
	f.note("Dock", ship, "")
	rec := f.ship(ship)
	if rec.NavStatus == core.NavInTransit {
		return rec, rejected("in transit")
	}
	rec.NavStatus = core.NavDocked
	return f.save(rec), nil
}

func (f *fakeAPI) Navigate(ctx context.Context, ship, waypoint string) (core.FleetRecord, error) {
	f.note("Navigate", ship, waypoint)
	rec := f.ship(ship)
	if rec.NavStatus != core.NavInOrbit {
		return rec, rejected("ship must be in orbit")
	}
	arrival := f.clock.Now().Add(f.travelTime)
	rec.NavStatus = core.NavInTransit
	rec.Destination = waypoint
	rec.ArrivalAt = &arrival
	return f.save(rec), nil
}

func (f *fakeAPI) Extract(ctx context.Context, ship string) (api.Extraction, core.FleetRecord, error) {
	f.note("Extract", ship, "")
	if f.extractErr != nil {
		return api.Extraction{}, core.FleetRecord{}, f.extractErr
	}
	rec := f.ship(ship)
	now := f.clock.Now()
	if rec.NavStatus != core.NavInOrbit {
		return api.Extraction{}, rec, rejected("ship must be in orbit")
	}
	if rec.CoolingDownAt(now) {
		return api.Extraction{}, rec, rejected("cooldown active")
	}
	units := f.yield
	if free := rec.Cargo.Capacity - rec.Cargo.Units; units > free {
		units = free
	}
	rec.Cargo.Units += units
	rec.Cargo.Inventory = addCargo(rec.Cargo.Inventory, "IRON_ORE", units)
	expires := now.Add(f.cooldown)
	rec.CooldownExpiresAt = &expires
	return api.Extraction{Symbol: "IRON_ORE", Units: units}, f.save(rec), nil
}

func (f *fakeAPI) Jettison(ctx context.Context, ship, good string, units int) (core.FleetRecord, error) {
	f.note("Jettison", ship, good)
	rec := f.ship(ship)
	rec.Cargo.Inventory = addCargo(rec.Cargo.Inventory, good, -units)
	rec.Cargo.Units -= units
	return f.save(rec), nil
}

func (f *fakeAPI) Sell(ctx context.Context, ship, good string, units int) (core.Transaction, error) {
	f.note("Sell", ship, good)
	rec := f.ship(ship)
	if rec.NavStatus != core.NavDocked {
		return core.Transaction{}, rejected("ship must be docked")
	}
	price := 0
	for _, g := range f.markets[rec.Waypoint].TradeGoods {
		if g.Symbol == good {
			price = g.SellPrice
		}
	}
	rec.Cargo.Inventory = addCargo(rec.Cargo.Inventory, good, -units)
	rec.Cargo.Units -= units
	f.save(rec)
	return core.Transaction{
		Timestamp: f.clock.Now(), Action: "SELL", Ship: ship, Waypoint: rec.Waypoint,
		Symbol: good, Units: units, UnitPrice: price, TotalPrice: price * units,
	}, nil
}

func (f *fakeAPI) Refuel(ctx context.Context, ship string, units int) (core.Transaction, error) {
	f.note("Refuel", ship, "")
	rec := f.ship(ship)
	bought := rec.Fuel.Capacity - rec.Fuel.Current
	rec.Fuel.Current = rec.Fuel.Capacity
	f.save(rec)
	return core.Transaction{
		Timestamp: f.clock.Now(), Action: "BUY", Ship: ship, Waypoint: rec.Waypoint,
		Symbol: "FUEL", Units: bought, UnitPrice: 1, TotalPrice: bought,
	}, nil
}

func (f *fakeAPI) GetMarket(ctx context.Context, system, waypoint string) (api.Market, error) {
	f.note("GetMarket", "", waypoint)
	market := f.markets[waypoint]
	now := f.clock.Now()
	for _, g := range market.TradeGoods {
		if g.SellPrice > 0 {
			_ = f.wh.RecordObservation(core.Observation{Good: g.Symbol, Waypoint: waypoint, System: system, Kind: core.ObservationSell, Price: g.SellPrice, ObservedAt: now})
		}
		if g.PurchasePrice > 0 {
			_ = f.wh.RecordObservation(core.Observation{Good: g.Symbol, Waypoint: waypoint, System: system, Kind: core.ObservationBuy, Price: g.PurchasePrice, ObservedAt: now})
		}
	}
	if len(market.TradeGoods) > 0 {
		_ = f.wh.RecordMarketReading(waypoint, now)
	}
	return market, nil
}

func (f *fakeAPI) ScanSystemWaypoints(ctx context.Context, system string, traits ...string) ([]core.WaypointRecord, error) {
	f.note("Scan", "", system)
	var out []core.WaypointRecord
	for _, wp := range f.waypoints {
		if wp.System == system {
			_ = f.wh.RecordWaypoint(wp)
			out = append(out, wp)
		}
	}
	return out, nil
}

func addCargo(inv []core.CargoItem, good string, units int) []core.CargoItem {
	out := make([]core.CargoItem, 0, len(inv)+1)
	found := false
	for _, item := range inv {
		if item.Symbol == good {
			item.Units += units
			found = true
		}
		if item.Units > 0 {
			out = append(out, item)
		}
	}
	if !found && units > 0 {
		out = append(out, core.CargoItem{Symbol: good, Units: units})
	}
	return out
}

// testUniverse is a small system: A is a market with fuel, B an asteroid
// field, C and D markets that buy ore.
func testUniverse() []core.WaypointRecord {
	return []core.WaypointRecord{
		{Symbol: "X1-T-A", System: "X1-T", Type: "PLANET", Coordinates: core.Coordinates{X: 0, Y: 0}, Traits: []string{core.TraitMarketplace}},
		{Symbol: "X1-T-B", System: "X1-T", Type: "ASTEROID_FIELD", Coordinates: core.Coordinates{X: 10, Y: 0}, Traits: []string{core.TraitCommonMetalDeposits}},
		{Symbol: "X1-T-C", System: "X1-T", Type: "MOON", Coordinates: core.Coordinates{X: 30, Y: 0}, Traits: []string{core.TraitMarketplace}},
		{Symbol: "X1-T-D", System: "X1-T", Type: "MOON", Coordinates: core.Coordinates{X: 12, Y: 0}, Traits: []string{core.TraitMarketplace}},
	}
}

type harness struct {
	clock  *fakeClock
	wh     *warehouse.Warehouse
	api    *fakeAPI
	trades *recordedTrades
	fleet  *Fleet
}

func newHarness(ships ...core.FleetRecord) *harness {
	clock := &fakeClock{now: t0}
	wh := warehouse.New()
	fake := newFakeAPI(clock, wh)
	fake.waypoints = testUniverse()
	for _, wp := range fake.waypoints {
		_ = wh.RecordWaypoint(wp)
	}
	fake.markets["X1-T-A"] = api.Market{Symbol: "X1-T-A", TradeGoods: []api.TradeGood{
		{Symbol: "FUEL", PurchasePrice: 70, TradeVolume: 100},
	}}
	fake.markets["X1-T-C"] = api.Market{Symbol: "X1-T-C", TradeGoods: []api.TradeGood{
		{Symbol: "IRON_ORE", SellPrice: 50, TradeVolume: 10},
		{Symbol: "FUEL", PurchasePrice: 72, TradeVolume: 100},
	}}
	fake.markets["X1-T-D"] = api.Market{Symbol: "X1-T-D", TradeGoods: []api.TradeGood{
		{Symbol: "IRON_ORE", SellPrice: 30, TradeVolume: 100},
	}}
	for _, s := range ships {
		_ = wh.RecordFleetSnapshot(s)
	}

	trades := &recordedTrades{}
	fleet := NewFleet(fake, wh, trades, nil, Config{Jettison: true})
	fleet.Clock = clock.Now
	fleet.Sleep = clock.Sleep
	return &harness{clock: clock, wh: wh, api: fake, trades: trades, fleet: fleet}
}

func (h *harness) ship(symbol string) *ship {
	rec, _ := h.wh.Ship(symbol)
	return h.fleet.newShip(rec)
}
