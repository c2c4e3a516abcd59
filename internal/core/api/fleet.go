package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/voidhaul/voidhaul/internal/core"
)

// Extraction is the yield of one extract call.
type Extraction struct {
	Symbol string `json:"symbol"`
	Units  int    `json:"units"`
}

// ListShips walks every page of the fleet.
func (c *Client) ListShips(ctx context.Context) ([]core.FleetRecord, error) {
	var all []core.FleetRecord
	for page := 1; ; page++ {
		var env envelope[[]shipPayload]
		d := c.dispatch()
		if err := c.get(ctx, "my/ships", pageQuery(page, c.pageLimit()), &env); err != nil {
			return all, err
		}
		now := c.now()
		for _, p := range env.Data {
			rec := p.record(now)
			d.stamp(&rec)
			c.recordShip(rec)
			all = append(all, rec)
		}
		if !morePages(env.Meta, page, len(env.Data), len(all)) {
			return all, nil
		}
	}
}

// GetShip fetches one ship and replaces its snapshot.
func (c *Client) GetShip(ctx context.Context, ship string) (core.FleetRecord, error) {
	var env envelope[shipPayload]
	d := c.dispatch()
	if err := c.get(ctx, pathf("my/ships/%s", ship), nil, &env); err != nil {
		return core.FleetRecord{}, err
	}
	rec := env.Data.record(c.now())
	d.stamp(&rec)
	c.recordShip(rec)
	return rec, nil
}

// Orbit moves a docked ship into orbit.
func (c *Client) Orbit(ctx context.Context, ship string) (core.FleetRecord, error) {
	var env envelope[struct {
		Nav navPayload `json:"nav"`
	}]
	d := c.dispatch()
	if err := c.post(ctx, pathf("my/ships/%s/orbit", ship), nil, &env); err != nil {
		return core.FleetRecord{}, err
	}
	return c.mergeShip(ship, d, func(rec *core.FleetRecord) { env.Data.Nav.apply(rec) }), nil
}

// Dock docks an orbiting ship.
func (c *Client) Dock(ctx context.Context, ship string) (core.FleetRecord, error) {
	var env envelope[struct {
		Nav navPayload `json:"nav"`
	}]
	d := c.dispatch()
	if err := c.post(ctx, pathf("my/ships/%s/dock", ship), nil, &env); err != nil {
		return core.FleetRecord{}, err
	}
	return c.mergeShip(ship, d, func(rec *core.FleetRecord) { env.Data.Nav.apply(rec) }), nil
}

// Navigate starts in-system travel. The returned snapshot carries ArrivalAt.
func (c *Client) Navigate(ctx context.Context, ship, waypoint string) (core.FleetRecord, error) {
	var env envelope[struct {
		Nav  navPayload  `json:"nav"`
		Fuel fuelPayload `json:"fuel"`
	}]
	body := map[string]string{"waypointSymbol": waypoint}
	d := c.dispatch()
	if err := c.post(ctx, pathf("my/ships/%s/navigate", ship), body, &env); err != nil {
		return core.FleetRecord{}, err
	}
	return c.mergeShip(ship, d, func(rec *core.FleetRecord) {
		env.Data.Nav.apply(rec)
		rec.Fuel = env.Data.Fuel.fuel()
	}), nil
}

// Warp starts inter-system travel with a warp drive.
func (c *Client) Warp(ctx context.Context, ship, system string) (core.FleetRecord, error) {
	var env envelope[struct {
		Nav  navPayload  `json:"nav"`
		Fuel fuelPayload `json:"fuel"`
	}]
	body := map[string]string{"systemSymbol": system}
	d := c.dispatch()
	if err := c.post(ctx, pathf("my/ships/%s/warp", ship), body, &env); err != nil {
		return core.FleetRecord{}, err
	}
	return c.mergeShip(ship, d, func(rec *core.FleetRecord) {
		env.Data.Nav.apply(rec)
		rec.Fuel = env.Data.Fuel.fuel()
	}), nil
}

// Jump moves a ship through a jump gate.
func (c *Client) Jump(ctx context.Context, ship, system string) (core.FleetRecord, error) {
	var env envelope[struct {
		Nav      navPayload      `json:"nav"`
		Cooldown cooldownPayload `json:"cooldown"`
		Agent    *agentPayload   `json:"agent"`
	}]
	body := map[string]string{"systemSymbol": system}
	d := c.dispatch()
	if err := c.post(ctx, pathf("my/ships/%s/jump", ship), body, &env); err != nil {
		return core.FleetRecord{}, err
	}
	c.recordAgent(env.Data.Agent)
	now := c.now()
	return c.mergeShip(ship, d, func(rec *core.FleetRecord) {
		env.Data.Nav.apply(rec)
		env.Data.Cooldown.apply(rec, now)
	}), nil
}

// SetFlightMode changes how a ship trades speed for fuel.
func (c *Client) SetFlightMode(ctx context.Context, ship string, mode core.FlightMode) (core.FleetRecord, error) {
	var env envelope[struct {
		navPayload
		Nav *navPayload `json:"nav"`
	}]
	body := map[string]string{"flightMode": string(mode)}
	d := c.dispatch()
	if err := c.call(ctx, http.MethodPatch, pathf("my/ships/%s/nav", ship), nil, body, &env); err != nil {
		return core.FleetRecord{}, err
	}
	nav := env.Data.navPayload
	if env.Data.Nav != nil {
		nav = *env.Data.Nav
	}
	return c.mergeShip(ship, d, func(rec *core.FleetRecord) { nav.apply(rec) }), nil
}

// Extract mines the current waypoint and starts the reactor cooldown.
func (c *Client) Extract(ctx context.Context, ship string) (Extraction, core.FleetRecord, error) {
	var env envelope[struct {
		Cooldown   cooldownPayload `json:"cooldown"`
		Extraction struct {
			Yield Extraction `json:"yield"`
		} `json:"extraction"`
		Cargo cargoPayload `json:"cargo"`
	}]
	d := c.dispatch()
	if err := c.post(ctx, pathf("my/ships/%s/extract", ship), nil, &env); err != nil {
		return Extraction{}, core.FleetRecord{}, err
	}
	now := c.now()
	rec := c.mergeShip(ship, d, func(rec *core.FleetRecord) {
		env.Data.Cooldown.apply(rec, now)
		rec.Cargo = env.Data.Cargo.cargo()
	})
	return env.Data.Extraction.Yield, rec, nil
}

// Jettison dumps cargo into space.
func (c *Client) Jettison(ctx context.Context, ship, good string, units int) (core.FleetRecord, error) {
	if good == "" || units <= 0 {
		return core.FleetRecord{}, errors.New("jettison requires a good and positive units")
	}
	var env envelope[struct {
		Cargo cargoPayload `json:"cargo"`
	}]
	body := map[string]any{"symbol": good, "units": units}
	d := c.dispatch()
	if err := c.post(ctx, pathf("my/ships/%s/jettison", ship), body, &env); err != nil {
		return core.FleetRecord{}, err
	}
	return c.mergeShip(ship, d, func(rec *core.FleetRecord) { rec.Cargo = env.Data.Cargo.cargo() }), nil
}

// GetCargo refreshes a ship's hold.
func (c *Client) GetCargo(ctx context.Context, ship string) (core.Cargo, error) {
	var env envelope[cargoPayload]
	d := c.dispatch()
	if err := c.get(ctx, pathf("my/ships/%s/cargo", ship), nil, &env); err != nil {
		return core.Cargo{}, err
	}
	cargo := env.Data.cargo()
	c.mergeShip(ship, d, func(rec *core.FleetRecord) { rec.Cargo = cargo })
	return cargo, nil
}

// Sell sells cargo at the docked market.
func (c *Client) Sell(ctx context.Context, ship, good string, units int) (core.Transaction, error) {
	if good == "" || units <= 0 {
		return core.Transaction{}, errors.New("sell requires a good and positive units")
	}
	var env envelope[struct {
		Agent       *agentPayload      `json:"agent"`
		Cargo       cargoPayload       `json:"cargo"`
		Transaction transactionPayload `json:"transaction"`
	}]
	body := map[string]any{"symbol": good, "units": units}
	d := c.dispatch()
	if err := c.post(ctx, pathf("my/ships/%s/sell", ship), body, &env); err != nil {
		return core.Transaction{}, err
	}
	c.recordAgent(env.Data.Agent)
	c.mergeShip(ship, d, func(rec *core.FleetRecord) { rec.Cargo = env.Data.Cargo.cargo() })
	tx := env.Data.Transaction.record(c.now(), env.Data.Agent)
	if tx.Ship == "" {
		tx.Ship = ship
	}
	if tx.Symbol == "" {
		tx.Symbol = good
	}
	return tx, nil
}

// Refuel buys fuel at the docked market. units <= 0 fills the tank.
func (c *Client) Refuel(ctx context.Context, ship string, units int) (core.Transaction, error) {
	var env envelope[struct {
		Agent       *agentPayload      `json:"agent"`
		Fuel        fuelPayload        `json:"fuel"`
		Transaction transactionPayload `json:"transaction"`
	}]
	var body any
	if units > 0 {
		body = map[string]int{"units": units}
	}
	d := c.dispatch()
	if err := c.post(ctx, pathf("my/ships/%s/refuel", ship), body, &env); err != nil {
		return core.Transaction{}, err
	}
	c.recordAgent(env.Data.Agent)
	c.mergeShip(ship, d, func(rec *core.FleetRecord) { rec.Fuel = env.Data.Fuel.fuel() })
	tx := env.Data.Transaction.record(c.now(), env.Data.Agent)
	if tx.Ship == "" {
		tx.Ship = ship
	}
	if tx.Symbol == "" {
		tx.Symbol = "FUEL"
	}
	if tx.Action == "UNKNOWN" {
		tx.Action = "BUY"
	}
	return tx, nil
}

func (c *Client) recordShip(rec core.FleetRecord) {
	if c.Warehouse != nil {
		c.record("ship", c.Warehouse.RecordFleetSnapshot(rec))
	}
}

// mergeShip applies a partial response to the cached snapshot in one locked
// step, so a fleet listing landing in between is not lost or resurrected.
func (c *Client) mergeShip(ship string, d dispatch, apply func(rec *core.FleetRecord)) core.FleetRecord {
	if c.Warehouse == nil {
		rec := core.FleetRecord{Symbol: ship}
		apply(&rec)
		d.stamp(&rec)
		return rec
	}
	rec, err := c.Warehouse.MergeFleetSnapshot(ship, d.at, d.revision, apply)
	c.record("ship", err)
	return rec
}
