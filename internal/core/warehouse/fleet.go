package warehouse

import (
	"sort"
	"time"

	"github.com/voidhaul/voidhaul/internal/core"
)

// RecordFleetSnapshot replaces the cached snapshot of one ship. A snapshot
// whose request was issued before the cached one is dropped, so a slow fleet
// listing cannot undo a later navigate or dock.
func (w *Warehouse) RecordFleetSnapshot(rec core.FleetRecord) error {
	if rec.Symbol == "" {
		return ErrEmptySymbol
	}
	if rec.System == "" && rec.Waypoint != "" {
		rec.System = core.SystemSymbolOf(rec.Waypoint)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if current, ok := w.fleet[rec.Symbol]; ok && rec.OlderThan(current) {
		return nil
	}
	w.fleet[rec.Symbol] = rec.Clone()
	return nil
}

// MergeFleetSnapshot applies a partial update to the cached snapshot under the
// write lock. The result keeps the newer of the cached and given stamps.
func (w *Warehouse) MergeFleetSnapshot(symbol string, at time.Time, revision uint64, apply func(rec *core.FleetRecord)) (core.FleetRecord, error) {
	if symbol == "" {
		return core.FleetRecord{}, ErrEmptySymbol
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	rec, ok := w.fleet[symbol]
	if ok {
		rec = rec.Clone()
	} else {
		rec = core.FleetRecord{Symbol: symbol}
	}
	apply(&rec)
	rec.Symbol = symbol
	if rec.System == "" && rec.Waypoint != "" {
		rec.System = core.SystemSymbolOf(rec.Waypoint)
	}
	if at.After(rec.FetchedAt) {
		rec.FetchedAt = at
	}
	if revision > rec.Revision {
		rec.Revision = revision
	}
	w.fleet[symbol] = rec.Clone()
	return rec, nil
}

// Ship returns a copy of the ship snapshot.
func (w *Warehouse) Ship(symbol string) (core.FleetRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rec, ok := w.fleet[symbol]
	if !ok {
		return core.FleetRecord{}, false
	}
	return rec.Clone(), true
}

// Ships returns every ship snapshot sorted by symbol.
func (w *Warehouse) Ships() []core.FleetRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]core.FleetRecord, 0, len(w.fleet))
	for _, rec := range w.fleet {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
