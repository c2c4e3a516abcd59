package warehouse

import (
	"sort"

	"github.com/voidhaul/voidhaul/internal/core"
)

// RecordWaypoint merges a waypoint into the cache. Traits and presence flags
// only grow; scalar fields are overwritten when the new record sets them.
func (w *Warehouse) RecordWaypoint(rec core.WaypointRecord) error {
	if rec.Symbol == "" {
		return ErrEmptySymbol
	}
	if rec.System == "" {
		rec.System = core.SystemSymbolOf(rec.Symbol)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if existing, ok := w.waypoints[rec.Symbol]; ok {
		rec.Traits = core.MergeTraits(existing.Traits, rec.Traits)
		rec.Orbitals = core.MergeTraits(existing.Orbitals, rec.Orbitals)
		rec.MarketPresent = rec.MarketPresent || existing.MarketPresent
		rec.ShipyardPresent = rec.ShipyardPresent || existing.ShipyardPresent
		if rec.Type == "" {
			// Flag-only updates carry no position.
			rec.Type = existing.Type
			rec.Coordinates = existing.Coordinates
		}
		if rec.Orbits == "" {
			rec.Orbits = existing.Orbits
		}
		if rec.Faction == "" {
			rec.Faction = existing.Faction
		}
	} else {
		rec.Traits = core.MergeTraits(nil, rec.Traits)
		rec.Orbitals = core.MergeTraits(nil, rec.Orbitals)
	}
	if rec.HasTrait(core.TraitMarketplace) {
		rec.MarketPresent = true
	}
	if rec.HasTrait(core.TraitShipyard) {
		rec.ShipyardPresent = true
	}

	w.waypoints[rec.Symbol] = rec
	return nil
}

// Waypoint returns a copy of the waypoint record.
func (w *Warehouse) Waypoint(symbol string) (core.WaypointRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rec, ok := w.waypoints[symbol]
	if !ok {
		return core.WaypointRecord{}, false
	}
	return cloneWaypoint(rec), true
}

// WaypointsInSystem returns every known waypoint of a system sorted by symbol.
func (w *Warehouse) WaypointsInSystem(system string) []core.WaypointRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]core.WaypointRecord, 0)
	for _, rec := range w.waypoints {
		if rec.System == system {
			out = append(out, cloneWaypoint(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// NearestWaypoint returns the waypoint matching pred with the smallest
// Euclidean distance from `from`. Equal distances resolve to the smaller symbol.
// A nil pred matches everything.
func (w *Warehouse) NearestWaypoint(from core.Coordinates, pred func(core.WaypointRecord) bool) (core.WaypointRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var (
		best     core.WaypointRecord
		bestDist float64
		found    bool
	)
	for _, rec := range w.waypoints {
		if pred != nil && !pred(cloneWaypoint(rec)) {
			continue
		}
		dist := from.Distance(rec.Coordinates)
		if !found || dist < bestDist || (dist == bestDist && rec.Symbol < best.Symbol) {
			best, bestDist, found = rec, dist, true
		}
	}
	if !found {
		return core.WaypointRecord{}, false
	}
	return cloneWaypoint(best), true
}

// InSystem is a NearestWaypoint predicate restricting matches to one system.
func InSystem(system string, pred func(core.WaypointRecord) bool) func(core.WaypointRecord) bool {
	return func(rec core.WaypointRecord) bool {
		if rec.System != system {
			return false
		}
		return pred == nil || pred(rec)
	}
}

func cloneWaypoint(rec core.WaypointRecord) core.WaypointRecord {
	rec.Traits = cloneStrings(rec.Traits)
	rec.Orbitals = cloneStrings(rec.Orbitals)
	return rec
}
