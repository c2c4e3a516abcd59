package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/voidhaul/voidhaul/internal/core"
)

// behavior performs one step of a role's loop.
type behavior func(ctx context.Context, s *ship) error

// behaviors is the closed role table. Roles not listed park.
var behaviors = map[core.Role]behavior{
	core.RoleExcavator: mine,
	core.RoleSatellite: survey,
}

func behaviorFor(role core.Role) behavior {
	if b, ok := behaviors[role]; ok {
		return b
	}
	return idle
}

// idle parks the ship until the next resync.
func idle(ctx context.Context, s *ship) error {
	s.setState(StateIdle)
	return s.fleet.sleep(ctx, s.fleet.Config.IdleInterval)
}

// mine runs one step of the extraction loop: travel to the nearest mineable
// waypoint, extract until the hold is full, then sell.
func mine(ctx context.Context, s *ship) error {
	rec, err := s.awaitArrival(ctx)
	if err != nil {
		return err
	}

	if rec.Cargo.Full() {
		return s.sellCargo(ctx, rec)
	}

	here, ok := s.fleet.Warehouse.Waypoint(rec.Waypoint)
	if !ok || !here.IsMineable() {
		target, found, err := s.nearest(ctx, rec, core.WaypointRecord.IsMineable)
		if err != nil {
			return err
		}
		if !found {
			s.fleet.Logger.Warn("No mineable waypoint known in system",
				zap.String("ship", s.symbol),
				zap.String("system", rec.System),
			)
			return idle(ctx, s)
		}
		_, err = s.travel(ctx, rec, target.Symbol)
		return err
	}

	if _, err := s.ensureOrbit(ctx, rec); err != nil {
		return fmt.Errorf("orbit before extracting: %w", err)
	}
	if err := s.awaitCooldown(ctx); err != nil {
		return err
	}

	s.setState(StateExtracting)
	yield, after, err := s.fleet.API.Extract(ctx, s.symbol)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	s.fleet.Logger.Info("Extracted",
		zap.String("ship", s.symbol),
		zap.String("symbol", yield.Symbol),
		zap.Int("units", yield.Units),
		zap.Int("cargo", after.Cargo.Units),
		zap.Int("capacity", after.Cargo.Capacity),
	)
	if after.CoolingDownAt(s.fleet.now()) {
		s.setState(StateCooldown)
	} else {
		s.setState(StateIdle)
	}
	return nil
}

// survey runs one step of the market survey loop: read the market at the
// current waypoint when it is stale, otherwise travel to the nearest stale one.
func survey(ctx context.Context, s *ship) error {
	rec, err := s.awaitArrival(ctx)
	if err != nil {
		return err
	}

	now := s.fleet.now()
	stale := func(wp core.WaypointRecord) bool {
		if !wp.IsMarket() {
			return false
		}
		last, ok := s.surveyed[wp.Symbol]
		return !ok || now.Sub(last) >= s.fleet.Config.SurveyMaxAge
	}

	if here, ok := s.fleet.Warehouse.Waypoint(rec.Waypoint); ok && stale(here) {
		s.setState(StateDockedTrading)
		market, err := s.fleet.API.GetMarket(ctx, rec.System, rec.Waypoint)
		if err != nil {
			return fmt.Errorf("read market %s: %w", rec.Waypoint, err)
		}
		s.surveyed[rec.Waypoint] = now
		s.fleet.Logger.Info("Surveyed market",
			zap.String("ship", s.symbol),
			zap.String("waypoint", rec.Waypoint),
			zap.Int("goods", len(market.TradeGoods)),
		)
		s.setState(StateIdle)
		return nil
	}

	target, found, err := s.nearest(ctx, rec, stale, core.TraitMarketplace)
	if err != nil {
		return err
	}
	if !found {
		return idle(ctx, s)
	}
	_, err = s.travel(ctx, rec, target.Symbol)
	return err
}
