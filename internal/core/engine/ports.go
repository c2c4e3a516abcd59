package engine

import (
	"context"

	"github.com/voidhaul/voidhaul/internal/core"
	"github.com/voidhaul/voidhaul/internal/core/api"
)

// ShipAPI is the set of endpoint calls the ship loops issue. *api.Client
// implements it; every call writes its result into the warehouse.
type ShipAPI interface {
	ListShips(ctx context.Context) ([]core.FleetRecord, error)
	GetShip(ctx context.Context, ship string) (core.FleetRecord, error)
	Orbit(ctx context.Context, ship string) (core.FleetRecord, error)
	Dock(ctx context.Context, ship string) (core.FleetRecord, error)
	Navigate(ctx context.Context, ship, waypoint string) (core.FleetRecord, error)
	Extract(ctx context.Context, ship string) (api.Extraction, core.FleetRecord, error)
	Jettison(ctx context.Context, ship, good string, units int) (core.FleetRecord, error)
	Sell(ctx context.Context, ship, good string, units int) (core.Transaction, error)
	Refuel(ctx context.Context, ship string, units int) (core.Transaction, error)
	GetMarket(ctx context.Context, system, waypoint string) (api.Market, error)
	ScanSystemWaypoints(ctx context.Context, system string, traits ...string) ([]core.WaypointRecord, error)
}

// TradeRecorder receives every completed trade.
type TradeRecorder interface {
	RecordTransaction(ctx context.Context, tx core.Transaction) error
}

// TradeRecorders fans a transaction out to several recorders.
type TradeRecorders []TradeRecorder

// RecordTransaction records tx everywhere and returns the first error.
func (r TradeRecorders) RecordTransaction(ctx context.Context, tx core.Transaction) error {
	var first error
	for _, rec := range r {
		if rec == nil {
			continue
		}
		if err := rec.RecordTransaction(ctx, tx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
