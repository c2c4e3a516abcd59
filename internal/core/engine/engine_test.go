package engine

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidhaul/voidhaul/internal/core"
	"github.com/voidhaul/voidhaul/internal/core/api"
	"github.com/voidhaul/voidhaul/internal/core/governor"
)

func ptr(t time.Time) *time.Time { return &t }

func TestMineWaitsForArrivalBeforeActing(t *testing.T) {
	h := newHarness(core.FleetRecord{
		Symbol: "VOID-1", Role: core.RoleExcavator, System: "X1-T", Waypoint: "X1-T-A",
		Destination: "X1-T-B", NavStatus: core.NavInTransit, ArrivalAt: ptr(t0.Add(10 * time.Second)),
		Fuel: core.Fuel{Current: 100, Capacity: 100}, Cargo: core.Cargo{Capacity: 30},
	})

	require.NoError(t, mine(context.Background(), h.ship("VOID-1")))

	calls := h.api.Calls()
	require.NotEmpty(t, calls)
	for _, c := range calls {
		assert.False(t, c.At.Before(t0.Add(10*time.Second)), "%s dispatched at %s, before arrival", c.Name, c.At)
	}
	extracts := h.api.callsNamed("Extract")
	require.Len(t, extracts, 1)

	var waited time.Duration
	for _, d := range h.clock.Sleeps() {
		assert.LessOrEqual(t, d, DefaultPollInterval)
		waited += d
	}
	assert.Equal(t, 10*time.Second, waited)

	rec, _ := h.wh.Ship("VOID-1")
	assert.Equal(t, "X1-T-B", rec.Waypoint)
	assert.Equal(t, 10, rec.Cargo.Units)
}

func TestMineWaitsForCooldown(t *testing.T) {
	h := newHarness(core.FleetRecord{
		Symbol: "VOID-1", Role: core.RoleExcavator, System: "X1-T", Waypoint: "X1-T-B",
		NavStatus: core.NavInOrbit, CooldownExpiresAt: ptr(t0.Add(25 * time.Second)),
		Fuel: core.Fuel{Current: 100, Capacity: 100}, Cargo: core.Cargo{Capacity: 30},
	})
	s := h.ship("VOID-1")

	require.NoError(t, mine(context.Background(), s))
	require.NoError(t, mine(context.Background(), s))

	extracts := h.api.callsNamed("Extract")
	require.Len(t, extracts, 2)
	assert.Equal(t, t0.Add(25*time.Second), extracts[0].At)
	assert.Equal(t, t0.Add(55*time.Second), extracts[1].At)
}

func TestMineTravelsToNearestMineable(t *testing.T) {
	h := newHarness(core.FleetRecord{
		Symbol: "VOID-1", Role: core.RoleExcavator, System: "X1-T", Waypoint: "X1-T-A",
		NavStatus: core.NavDocked, Fuel: core.Fuel{Current: 100, Capacity: 100}, Cargo: core.Cargo{Capacity: 30},
	})

	require.NoError(t, mine(context.Background(), h.ship("VOID-1")))

	calls := h.api.Calls()
	require.GreaterOrEqual(t, len(calls), 2)
	assert.Equal(t, "Orbit", calls[0].Name)
	assert.Equal(t, "Navigate", calls[1].Name)
	assert.Equal(t, "X1-T-B", calls[1].Target)

	rec, _ := h.wh.Ship("VOID-1")
	assert.Equal(t, "X1-T-B", rec.Waypoint)
	assert.Equal(t, core.NavInOrbit, rec.NavStatus)
}

func TestFullHoldSellsAtBestKnownBuyer(t *testing.T) {
	h := newHarness(core.FleetRecord{
		Symbol: "VOID-1", Role: core.RoleExcavator, System: "X1-T", Waypoint: "X1-T-B",
		NavStatus: core.NavInOrbit, Fuel: core.Fuel{Current: 50, Capacity: 100},
		Cargo: core.Cargo{Units: 30, Capacity: 30, Inventory: []core.CargoItem{{Symbol: "IRON_ORE", Units: 30}}},
	})
	require.NoError(t, h.wh.RecordObservation(core.Observation{Good: "IRON_ORE", Waypoint: "X1-T-C", Kind: core.ObservationSell, Price: 50, ObservedAt: t0.Add(-time.Minute)}))
	require.NoError(t, h.wh.RecordObservation(core.Observation{Good: "IRON_ORE", Waypoint: "X1-T-D", Kind: core.ObservationSell, Price: 30, ObservedAt: t0.Add(-time.Minute)}))

	require.NoError(t, mine(context.Background(), h.ship("VOID-1")))

	navs := h.api.callsNamed("Navigate")
	require.Len(t, navs, 1)
	assert.Equal(t, "X1-T-C", navs[0].Target)
	assert.Len(t, h.api.callsNamed("Sell"), 3, "sold in trade-volume lots")
	assert.Len(t, h.api.callsNamed("Refuel"), 1)

	require.Len(t, h.trades.txs, 4)
	total := 0
	for _, tx := range h.trades.txs[:3] {
		assert.Equal(t, "SELL", tx.Action)
		total += tx.TotalPrice
	}
	assert.Equal(t, 1500, total)
	assert.Equal(t, "BUY", h.trades.txs[3].Action)

	rec, _ := h.wh.Ship("VOID-1")
	assert.Equal(t, 0, rec.Cargo.Units)
	assert.Equal(t, 100, rec.Fuel.Current)
	assert.Equal(t, core.NavInOrbit, rec.NavStatus)
}

func TestFullHoldFallsBackToNearestMarket(t *testing.T) {
	h := newHarness(core.FleetRecord{
		Symbol: "VOID-1", Role: core.RoleExcavator, System: "X1-T", Waypoint: "X1-T-B",
		NavStatus: core.NavInOrbit, Fuel: core.Fuel{Current: 100, Capacity: 100},
		Cargo: core.Cargo{Units: 30, Capacity: 30, Inventory: []core.CargoItem{{Symbol: "IRON_ORE", Units: 30}}},
	})

	require.NoError(t, mine(context.Background(), h.ship("VOID-1")))

	navs := h.api.callsNamed("Navigate")
	require.Len(t, navs, 1)
	assert.Equal(t, "X1-T-D", navs[0].Target)
	assert.Empty(t, h.api.callsNamed("Refuel"), "tank already full")
}

func TestUnsellableCargoIsJettisoned(t *testing.T) {
	h := newHarness(core.FleetRecord{
		Symbol: "VOID-1", Role: core.RoleExcavator, System: "X1-T", Waypoint: "X1-T-B",
		NavStatus: core.NavInOrbit, Fuel: core.Fuel{Current: 100, Capacity: 100},
		Cargo: core.Cargo{Units: 30, Capacity: 30, Inventory: []core.CargoItem{{Symbol: "QUARTZ_SAND", Units: 30}}},
	})

	require.NoError(t, mine(context.Background(), h.ship("VOID-1")))

	jettisons := h.api.callsNamed("Jettison")
	require.Len(t, jettisons, 1)
	assert.Equal(t, "QUARTZ_SAND", jettisons[0].Target)
	assert.Empty(t, h.api.callsNamed("Sell"))

	rec, _ := h.wh.Ship("VOID-1")
	assert.False(t, rec.Cargo.Full())
}

func TestSurveyVisitsStaleMarkets(t *testing.T) {
	h := newHarness(core.FleetRecord{
		Symbol: "SAT-1", Role: core.RoleSatellite, System: "X1-T", Waypoint: "X1-T-A", NavStatus: core.NavInOrbit,
	})
	s := h.ship("SAT-1")

	require.NoError(t, survey(context.Background(), s))
	require.NoError(t, survey(context.Background(), s))
	require.NoError(t, survey(context.Background(), s))

	markets := h.api.callsNamed("GetMarket")
	require.Len(t, markets, 2)
	assert.Equal(t, "X1-T-A", markets[0].Target)
	assert.Equal(t, "X1-T-D", markets[1].Target)

	navs := h.api.callsNamed("Navigate")
	require.Len(t, navs, 1)
	assert.Equal(t, "X1-T-D", navs[0].Target)

	best, ok := h.wh.BestSellObservation("IRON_ORE")
	require.True(t, ok)
	assert.Equal(t, "X1-T-D", best.Waypoint)
}

func TestFleetRunStopsEveryLoopOnFatal(t *testing.T) {
	h := newHarness(
		core.FleetRecord{Symbol: "VOID-1", Role: core.RoleExcavator, System: "X1-T", Waypoint: "X1-T-B", NavStatus: core.NavInOrbit, Cargo: core.Cargo{Capacity: 30}},
		core.FleetRecord{Symbol: "VOID-2", Role: core.RoleCommand, System: "X1-T", Waypoint: "X1-T-A", NavStatus: core.NavDocked},
	)
	h.api.extractErr = fmt.Errorf("%w: %w", governor.ErrFatalLatched, &governor.FatalAuthError{Code: governor.FatalAuthCode, Message: "reset"})

	done := make(chan error, 1)
	go func() { done <- h.fleet.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, governor.IsFatal(err))
	case <-time.After(5 * time.Second):
		t.Fatal("fleet did not stop after fatal error")
	}
}

func TestFleetRunReturnsOnCancel(t *testing.T) {
	h := newHarness(core.FleetRecord{Symbol: "VOID-2", Role: core.RoleCommand, System: "X1-T", Waypoint: "X1-T-A", NavStatus: core.NavDocked})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.fleet.Run(ctx))
}

func TestShipBacksOffAfterError(t *testing.T) {
	h := newHarness(core.FleetRecord{Symbol: "VOID-1", Role: core.RoleHauler, System: "X1-T", Waypoint: "X1-T-A"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := h.ship("VOID-1")
	attempts := 0
	s.behavior = func(ctx context.Context, s *ship) error {
		attempts++
		if attempts == 1 {
			return rejected("waypoint not found")
		}
		cancel()
		return ctx.Err()
	}

	require.NoError(t, s.run(ctx))
	assert.Equal(t, 2, attempts)
	assert.Contains(t, h.clock.Sleeps(), DefaultErrorBackoff)
	assert.Len(t, h.api.callsNamed("GetShip"), 1, "a rejected command re-reads the ship")

	states := h.fleet.States()
	require.Len(t, states, 1)
	assert.Equal(t, StateIdle, states[0].State)
}

func TestFailedStepWithoutRejectionKeepsCache(t *testing.T) {
	h := newHarness(core.FleetRecord{Symbol: "VOID-1", Role: core.RoleHauler, System: "X1-T", Waypoint: "X1-T-A"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := h.ship("VOID-1")
	attempts := 0
	s.behavior = func(ctx context.Context, s *ship) error {
		attempts++
		if attempts == 1 {
			return &governor.TransientFailure{Attempts: 5, LastStatus: 503}
		}
		cancel()
		return ctx.Err()
	}

	require.NoError(t, s.run(ctx))
	assert.Empty(t, h.api.callsNamed("GetShip"))
}

func TestStaleBuyerRecordDoesNotWedgeFullHold(t *testing.T) {
	h := newHarness(core.FleetRecord{
		Symbol: "VOID-1", Role: core.RoleExcavator, System: "X1-T", Waypoint: "X1-T-B",
		NavStatus: core.NavInOrbit, Fuel: core.Fuel{Current: 100, Capacity: 100},
		Cargo: core.Cargo{Units: 30, Capacity: 30, Inventory: []core.CargoItem{{Symbol: "IRON_ORE", Units: 30}}},
	})
	h.fleet.Config.Jettison = false
	// A once bought ore; its live market no longer does.
	require.NoError(t, h.wh.RecordObservation(core.Observation{
		Good: "IRON_ORE", Waypoint: "X1-T-A", Kind: core.ObservationSell, Price: 99, ObservedAt: t0.Add(-time.Hour),
	}))
	s := h.ship("VOID-1")

	err := mine(context.Background(), s)
	require.ErrorIs(t, err, ErrNothingSold)
	rec, _ := h.wh.Ship("VOID-1")
	assert.Equal(t, "X1-T-A", rec.Waypoint)
	assert.Equal(t, 30, rec.Cargo.Units)

	require.NoError(t, mine(context.Background(), s))

	navs := h.api.callsNamed("Navigate")
	require.Len(t, navs, 2)
	assert.Equal(t, "X1-T-A", navs[0].Target)
	assert.Equal(t, "X1-T-D", navs[1].Target, "the nearest market not yet read")
	assert.Len(t, h.api.callsNamed("GetMarket"), 2)

	rec, _ = h.wh.Ship("VOID-1")
	assert.Equal(t, "X1-T-D", rec.Waypoint)
	assert.Equal(t, 0, rec.Cargo.Units)
}

func TestStaleBuyerRecordNoLongerBlocksJettison(t *testing.T) {
	h := newHarness(core.FleetRecord{
		Symbol: "VOID-1", Role: core.RoleExcavator, System: "X1-T", Waypoint: "X1-T-B",
		NavStatus: core.NavInOrbit, Fuel: core.Fuel{Current: 100, Capacity: 100},
		Cargo: core.Cargo{Units: 30, Capacity: 30, Inventory: []core.CargoItem{{Symbol: "IRON_ORE", Units: 30}}},
	})
	require.NoError(t, h.wh.RecordObservation(core.Observation{
		Good: "IRON_ORE", Waypoint: "X1-T-A", Kind: core.ObservationSell, Price: 99, ObservedAt: t0.Add(-time.Hour),
	}))

	require.NoError(t, mine(context.Background(), h.ship("VOID-1")))

	jettisons := h.api.callsNamed("Jettison")
	require.Len(t, jettisons, 1)
	assert.Equal(t, "IRON_ORE", jettisons[0].Target)
	rec, _ := h.wh.Ship("VOID-1")
	assert.Equal(t, 0, rec.Cargo.Units)
}

func TestTradingStopThatSellsNothingBacksOff(t *testing.T) {
	h := newHarness(core.FleetRecord{
		Symbol: "VOID-1", Role: core.RoleExcavator, System: "X1-T", Waypoint: "X1-T-A",
		NavStatus: core.NavInOrbit, Fuel: core.Fuel{Current: 100, Capacity: 100},
		Cargo: core.Cargo{Units: 30, Capacity: 30, Inventory: []core.CargoItem{{Symbol: "IRON_ORE", Units: 30}}},
	})
	h.fleet.Config.Jettison = false
	// Every market has been read and none buys ore.
	h.api.markets["X1-T-C"] = api.Market{Symbol: "X1-T-C", TradeGoods: []api.TradeGood{{Symbol: "FUEL", PurchasePrice: 72}}}
	h.api.markets["X1-T-D"] = api.Market{Symbol: "X1-T-D", TradeGoods: []api.TradeGood{{Symbol: "FUEL", PurchasePrice: 71}}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := h.ship("VOID-1")
	steps := 0
	s.behavior = func(ctx context.Context, s *ship) error {
		steps++
		if steps > 5 {
			cancel()
			return ctx.Err()
		}
		return mine(ctx, s)
	}

	require.NoError(t, s.run(ctx))
	backoffs := 0
	for _, d := range h.clock.Sleeps() {
		if d == DefaultErrorBackoff {
			backoffs++
		}
	}
	assert.Equal(t, 5, backoffs, "every step that moved no cargo backed off")
	assert.LessOrEqual(t, len(h.api.callsNamed("Dock")), 3, "one visit per market at most")
	assert.Empty(t, h.api.callsNamed("Sell"))
}

func TestRoleTable(t *testing.T) {
	pointer := func(b behavior) uintptr { return reflect.ValueOf(b).Pointer() }

	assert.Equal(t, pointer(mine), pointer(behaviorFor(core.RoleExcavator)))
	assert.Equal(t, pointer(survey), pointer(behaviorFor(core.RoleSatellite)))
	for _, role := range []core.Role{core.RoleCommand, core.RoleHauler, core.RoleUnknown} {
		assert.Equal(t, pointer(idle), pointer(behaviorFor(role)), string(role))
	}
}

func TestFleetRunRequiresShips(t *testing.T) {
	h := newHarness()
	require.Error(t, h.fleet.Run(context.Background()))
}
