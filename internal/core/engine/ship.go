package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/voidhaul/voidhaul/internal/core"
	"github.com/voidhaul/voidhaul/internal/core/governor"
	"github.com/voidhaul/voidhaul/internal/core/warehouse"
	"github.com/voidhaul/voidhaul/internal/metrics"
)

// State is the position of a ship in its control loop.
type State string

const (
	StateIdle          State = "IDLE"
	StateNavigating    State = "NAVIGATING"
	StateArrived       State = "ARRIVED"
	StateExtracting    State = "EXTRACTING"
	StateDockedTrading State = "DOCKED_TRADING"
	StateCooldown      State = "COOLDOWN"
)

// ship is the loop for a single ship.
type ship struct {
	fleet    *Fleet
	symbol   string
	role     core.Role
	behavior behavior

	// surveyed tracks when this ship last read each market.
	surveyed map[string]time.Time
}

// run repeats the role behavior until ctx ends. Fatal identity errors end the
// loop with an error; every other failure pauses the ship and retries.
func (s *ship) run(ctx context.Context) error {
	f := s.fleet
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := s.behavior(ctx, s)
		switch {
		case err == nil:
			continue
		case governor.IsFatal(err):
			f.Logger.Error("Stopping ship loop on fatal identity error",
				zap.String("ship", s.symbol),
				zap.Error(err),
			)
			return err
		case ctx.Err() != nil:
			return nil
		}

		metrics.RecordShipError(string(s.role))
		f.Logger.Warn("Ship step failed, backing off",
			zap.String("ship", s.symbol),
			zap.Duration("backoff", f.Config.ErrorBackoff),
			zap.Error(err),
		)
		if err := s.refreshAfterRejection(ctx, err); err != nil {
			return err
		}
		s.setState(StateIdle)
		if err := f.sleep(ctx, f.Config.ErrorBackoff); err != nil {
			return nil
		}
	}
}

// refreshAfterRejection re-reads the ship when the service refused a command,
// since the cached position or status was likely wrong. Only a fatal error is
// returned.
func (s *ship) refreshAfterRejection(ctx context.Context, cause error) error {
	var rejected *governor.RequestRejected
	if !errors.As(cause, &rejected) {
		return nil
	}
	if _, err := s.fleet.API.GetShip(ctx, s.symbol); err != nil {
		if governor.IsFatal(err) {
			return err
		}
		s.fleet.Logger.Warn("Failed to refresh ship after rejection",
			zap.String("ship", s.symbol),
			zap.Error(err),
		)
	}
	return nil
}

func (s *ship) setState(state State) {
	s.fleet.setState(s.symbol, state)
}

// snapshot returns the cached record, fetching it once when the cache has none.
func (s *ship) snapshot(ctx context.Context) (core.FleetRecord, error) {
	if rec, ok := s.fleet.Warehouse.Ship(s.symbol); ok {
		return rec, nil
	}
	return s.fleet.API.GetShip(ctx, s.symbol)
}

// awaitArrival suspends while the cached record says the ship is in transit and
// refreshes the snapshot once it has arrived.
func (s *ship) awaitArrival(ctx context.Context) (core.FleetRecord, error) {
	rec, err := s.snapshot(ctx)
	if err != nil {
		return rec, err
	}
	if rec.NavStatus != core.NavInTransit {
		return rec, nil
	}

	s.setState(StateNavigating)
	if err := s.waitUntil(ctx, func(r core.FleetRecord) (time.Time, bool) {
		if r.NavStatus != core.NavInTransit || r.ArrivalAt == nil {
			return time.Time{}, false
		}
		return *r.ArrivalAt, true
	}); err != nil {
		return rec, err
	}

	rec, err = s.fleet.API.GetShip(ctx, s.symbol)
	if err != nil {
		return rec, err
	}
	s.setState(StateArrived)
	return rec, nil
}

// awaitCooldown suspends until the cached cooldown has expired.
func (s *ship) awaitCooldown(ctx context.Context) error {
	rec, ok := s.fleet.Warehouse.Ship(s.symbol)
	if !ok || !rec.CoolingDownAt(s.fleet.now()) {
		return nil
	}
	s.setState(StateCooldown)
	return s.waitUntil(ctx, func(r core.FleetRecord) (time.Time, bool) {
		if r.CooldownExpiresAt == nil {
			return time.Time{}, false
		}
		return *r.CooldownExpiresAt, true
	})
}

// waitUntil sleeps in steps of at most PollInterval until the deadline read
// from the cached record has passed. The record is re-read on every step, so a
// refreshed snapshot shortens or extends the wait.
func (s *ship) waitUntil(ctx context.Context, deadline func(core.FleetRecord) (time.Time, bool)) error {
	f := s.fleet
	for {
		rec, ok := f.Warehouse.Ship(s.symbol)
		if !ok {
			return nil
		}
		until, waiting := deadline(rec)
		now := f.now()
		if !waiting || !now.Before(until) {
			return nil
		}
		step := until.Sub(now)
		if step > f.Config.PollInterval {
			step = f.Config.PollInterval
		}
		if err := f.sleep(ctx, step); err != nil {
			return err
		}
	}
}

// travel moves the ship to waypoint and waits for arrival.
func (s *ship) travel(ctx context.Context, rec core.FleetRecord, waypoint string) (core.FleetRecord, error) {
	if rec.Waypoint == waypoint && rec.NavStatus != core.NavInTransit {
		return rec, nil
	}
	if rec.NavStatus == core.NavDocked {
		if _, err := s.fleet.API.Orbit(ctx, s.symbol); err != nil {
			return rec, fmt.Errorf("orbit before navigating: %w", err)
		}
	}
	s.fleet.Logger.Info("Navigating",
		zap.String("ship", s.symbol),
		zap.String("from", rec.Waypoint),
		zap.String("to", waypoint),
	)
	if _, err := s.fleet.API.Navigate(ctx, s.symbol, waypoint); err != nil {
		return rec, fmt.Errorf("navigate to %s: %w", waypoint, err)
	}
	return s.awaitArrival(ctx)
}

func (s *ship) ensureOrbit(ctx context.Context, rec core.FleetRecord) (core.FleetRecord, error) {
	if rec.NavStatus != core.NavDocked {
		return rec, nil
	}
	return s.fleet.API.Orbit(ctx, s.symbol)
}

func (s *ship) ensureDocked(ctx context.Context, rec core.FleetRecord) (core.FleetRecord, error) {
	if rec.NavStatus == core.NavDocked {
		return rec, nil
	}
	return s.fleet.API.Dock(ctx, s.symbol)
}

// position returns the coordinates of the ship's current waypoint, scanning the
// system once when the waypoint is not cached yet.
func (s *ship) position(ctx context.Context, rec core.FleetRecord) (core.Coordinates, error) {
	if wp, ok := s.fleet.Warehouse.Waypoint(rec.Waypoint); ok && wp.Type != "" {
		return wp.Coordinates, nil
	}
	if _, err := s.fleet.API.ScanSystemWaypoints(ctx, rec.System); err != nil {
		return core.Coordinates{}, err
	}
	wp, ok := s.fleet.Warehouse.Waypoint(rec.Waypoint)
	if !ok {
		return core.Coordinates{}, fmt.Errorf("waypoint %s not found in system %s", rec.Waypoint, rec.System)
	}
	return wp.Coordinates, nil
}

// nearest finds the closest waypoint in the ship's system matching pred,
// scanning the system once on a cache miss.
func (s *ship) nearest(ctx context.Context, rec core.FleetRecord, pred func(core.WaypointRecord) bool, traits ...string) (core.WaypointRecord, bool, error) {
	from, err := s.position(ctx, rec)
	if err != nil {
		return core.WaypointRecord{}, false, err
	}
	match := warehouse.InSystem(rec.System, pred)
	if wp, ok := s.fleet.Warehouse.NearestWaypoint(from, match); ok {
		return wp, true, nil
	}
	if _, err := s.fleet.API.ScanSystemWaypoints(ctx, rec.System, traits...); err != nil {
		return core.WaypointRecord{}, false, err
	}
	wp, ok := s.fleet.Warehouse.NearestWaypoint(from, match)
	return wp, ok, nil
}
