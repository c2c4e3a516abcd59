package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/voidhaul/voidhaul/internal/core"
	"github.com/voidhaul/voidhaul/internal/core/api"
	"github.com/voidhaul/voidhaul/internal/core/governor"
	"github.com/voidhaul/voidhaul/internal/metrics"
)

// sellDestination picks where a full hold should go. The best current buyer
// in the ship's system for the most valuable stack wins. Without one, the
// nearest market this ship has not read yet is tried.
func (s *ship) sellDestination(ctx context.Context, rec core.FleetRecord) (string, error) {
	var (
		target string
		value  int
	)
	for _, item := range rec.Cargo.Inventory {
		if item.Units <= 0 {
			continue
		}
		obs, ok := s.fleet.Warehouse.CurrentSellObservationInSystem(item.Symbol, rec.System)
		if !ok {
			continue
		}
		if v := obs.Price * item.Units; v > value || (v == value && obs.Waypoint < target) {
			target, value = obs.Waypoint, v
		}
	}
	if target != "" {
		return target, nil
	}

	unread := func(wp core.WaypointRecord) bool {
		if !wp.IsMarket() {
			return false
		}
		_, read := s.surveyed[wp.Symbol]
		return !read
	}
	market, found, err := s.nearest(ctx, rec, unread, core.TraitMarketplace)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("no market in system %s buys the cargo", rec.System)
	}
	return market.Symbol, nil
}

// ErrNothingSold is returned by a trading stop that neither sold nor dumped
// any cargo, so the loop backs off instead of retrying at once.
var ErrNothingSold = errors.New("trading stop moved no cargo")

// sellCargo travels to the sell destination, docks, sells everything the
// market buys, refuels when the tank is not full and returns to orbit.
func (s *ship) sellCargo(ctx context.Context, rec core.FleetRecord) error {
	dest, err := s.sellDestination(ctx, rec)
	if err != nil {
		return err
	}
	rec, err = s.travel(ctx, rec, dest)
	if err != nil {
		return err
	}

	s.setState(StateDockedTrading)
	if rec, err = s.ensureDocked(ctx, rec); err != nil {
		return fmt.Errorf("dock at %s: %w", dest, err)
	}
	market, err := s.fleet.API.GetMarket(ctx, rec.System, rec.Waypoint)
	if err != nil {
		return fmt.Errorf("read market %s: %w", rec.Waypoint, err)
	}
	s.surveyed[rec.Waypoint] = s.fleet.now()

	earned, sold := 0, 0
	var unsold []core.CargoItem
	for _, item := range rec.Cargo.Inventory {
		if item.Units <= 0 {
			continue
		}
		if !market.Buys(item.Symbol) {
			unsold = append(unsold, item)
			continue
		}
		units, total, err := s.sellItem(ctx, market, item)
		earned += total
		sold += units
		if err != nil {
			if governor.IsFatal(err) || ctx.Err() != nil {
				return err
			}
			s.fleet.Logger.Warn("Sell failed",
				zap.String("ship", s.symbol),
				zap.String("symbol", item.Symbol),
				zap.Error(err),
			)
		}
	}
	s.fleet.Logger.Info("Selling complete",
		zap.String("ship", s.symbol),
		zap.String("waypoint", rec.Waypoint),
		zap.Int("units", sold),
		zap.Int("credits", earned),
	)

	dumped, err := s.jettisonUnsellable(ctx, rec, unsold)
	if err != nil {
		return err
	}
	if err := s.refuel(ctx, market); err != nil {
		return err
	}

	current, err := s.snapshot(ctx)
	if err != nil {
		return err
	}
	if _, err := s.ensureOrbit(ctx, current); err != nil {
		return fmt.Errorf("orbit after trading: %w", err)
	}
	s.setState(StateIdle)
	if sold == 0 && dumped == 0 {
		return fmt.Errorf("%w at %s", ErrNothingSold, rec.Waypoint)
	}
	return nil
}

// sellItem sells a stack in lots no larger than the market's trade volume and
// returns the units and credits it moved.
func (s *ship) sellItem(ctx context.Context, market api.Market, item core.CargoItem) (int, int, error) {
	lot := item.Units
	for _, g := range market.TradeGoods {
		if g.Symbol == item.Symbol && g.TradeVolume > 0 && g.TradeVolume < lot {
			lot = g.TradeVolume
		}
	}

	sold, total := 0, 0
	for remaining := item.Units; remaining > 0; {
		units := lot
		if units > remaining {
			units = remaining
		}
		tx, err := s.fleet.API.Sell(ctx, s.symbol, item.Symbol, units)
		if err != nil {
			return sold, total, err
		}
		sold += units
		total += tx.TotalPrice
		remaining -= units
		s.recordTrade(ctx, tx)
	}
	return sold, total, nil
}

// refuel tops up the tank when the market sells fuel. A rejected refuel is
// logged and ignored.
func (s *ship) refuel(ctx context.Context, market api.Market) error {
	rec, err := s.snapshot(ctx)
	if err != nil {
		return err
	}
	if rec.Fuel.Capacity == 0 || rec.Fuel.Current >= rec.Fuel.Capacity || !market.Sells("FUEL") {
		return nil
	}
	tx, err := s.fleet.API.Refuel(ctx, s.symbol, 0)
	if err != nil {
		if governor.IsFatal(err) || ctx.Err() != nil {
			return err
		}
		s.fleet.Logger.Warn("Refuel unavailable", zap.String("ship", s.symbol), zap.Error(err))
		return nil
	}
	s.recordTrade(ctx, tx)
	return nil
}

// jettisonUnsellable dumps stacks no market in the system currently buys, so
// a full hold cannot wedge the mining loop. It returns the units dumped.
func (s *ship) jettisonUnsellable(ctx context.Context, rec core.FleetRecord, unsold []core.CargoItem) (int, error) {
	dumped := 0
	for _, item := range unsold {
		if _, ok := s.fleet.Warehouse.CurrentSellObservationInSystem(item.Symbol, rec.System); ok {
			continue
		}
		if !s.fleet.Config.Jettison {
			s.fleet.Logger.Warn("No known buyer for cargo",
				zap.String("ship", s.symbol),
				zap.String("symbol", item.Symbol),
			)
			continue
		}
		if _, err := s.fleet.API.Jettison(ctx, s.symbol, item.Symbol, item.Units); err != nil {
			if governor.IsFatal(err) || ctx.Err() != nil {
				return dumped, err
			}
			s.fleet.Logger.Warn("Jettison failed", zap.String("symbol", item.Symbol), zap.Error(err))
			continue
		}
		dumped += item.Units
		s.fleet.Logger.Info("Jettisoned cargo",
			zap.String("ship", s.symbol),
			zap.String("symbol", item.Symbol),
			zap.Int("units", item.Units),
		)
	}
	return dumped, nil
}

func (s *ship) recordTrade(ctx context.Context, tx core.Transaction) {
	metrics.RecordTrade(tx.Action, tx.TotalPrice)
	if s.fleet.Trades == nil {
		return
	}
	if err := s.fleet.Trades.RecordTransaction(ctx, tx); err != nil {
		s.fleet.Logger.Warn("Failed to record trade", zap.Error(err))
	}
}
