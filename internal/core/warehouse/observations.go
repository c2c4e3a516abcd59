package warehouse

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/voidhaul/voidhaul/internal/core"
)

// RecordObservation stores a price sample. The sample becomes the latest for its
// (good, waypoint, kind) key unless a newer one is already held; it always
// enters the bounded history.
func (w *Warehouse) RecordObservation(obs core.Observation) error {
	if err := validateObservation(obs); err != nil {
		return err
	}
	if obs.System == "" {
		obs.System = core.SystemSymbolOf(obs.Waypoint)
	}
	key := obs.Key()

	w.mu.Lock()
	defer w.mu.Unlock()

	if current, ok := w.latest[key]; !ok || !obs.ObservedAt.Before(current.ObservedAt) {
		w.latest[key] = obs
	}

	hist := append(w.history[key], obs)
	sort.SliceStable(hist, func(i, j int) bool { return hist[i].ObservedAt.Before(hist[j].ObservedAt) })
	if over := len(hist) - w.historySize; over > 0 {
		hist = append([]core.Observation(nil), hist[over:]...)
	}
	w.history[key] = hist
	return nil
}

func validateObservation(obs core.Observation) error {
	switch {
	case obs.Good == "":
		return errors.New("observation good is required")
	case obs.Waypoint == "":
		return errors.New("observation waypoint is required")
	case !obs.Kind.Valid():
		return fmt.Errorf("invalid observation kind %q", obs.Kind)
	case obs.Price < 0:
		return fmt.Errorf("invalid observation price %d", obs.Price)
	case obs.ObservedAt.IsZero():
		return errors.New("observation time is required")
	}
	return nil
}

// BestSellObservation returns the highest sell price known for a good.
func (w *Warehouse) BestSellObservation(good string) (core.Observation, bool) {
	return w.best(good, core.ObservationSell, nil)
}

// BestPurchaseObservation returns the lowest purchase price known for a good.
func (w *Warehouse) BestPurchaseObservation(good string) (core.Observation, bool) {
	return w.best(good, core.ObservationBuy, nil)
}

// BestSellObservationInSystem restricts BestSellObservation to one system.
func (w *Warehouse) BestSellObservationInSystem(good, system string) (core.Observation, bool) {
	return w.best(good, core.ObservationSell, func(o core.Observation) bool { return o.System == system })
}

// RecordMarketReading notes that the priced goods of a market were read at the
// given time. A good missing from that reading is no longer traded there.
func (w *Warehouse) RecordMarketReading(waypoint string, at time.Time) error {
	if waypoint == "" {
		return ErrEmptySymbol
	}
	if at.IsZero() {
		return errors.New("market reading time is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if current, ok := w.readings[waypoint]; !ok || at.After(current) {
		w.readings[waypoint] = at
	}
	return nil
}

// MarketReadAt returns when the market's priced goods were last read.
func (w *Warehouse) MarketReadAt(waypoint string) (time.Time, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	at, ok := w.readings[waypoint]
	return at, ok
}

// CurrentSellObservationInSystem is BestSellObservationInSystem without the
// samples a later reading of the same market left out.
func (w *Warehouse) CurrentSellObservationInSystem(good, system string) (core.Observation, bool) {
	return w.best(good, core.ObservationSell, func(o core.Observation) bool {
		return o.System == system && !w.supersededLocked(o)
	})
}

// supersededLocked requires w.mu to be held.
func (w *Warehouse) supersededLocked(o core.Observation) bool {
	read, ok := w.readings[o.Waypoint]
	return ok && o.ObservedAt.Before(read)
}

// best scans the latest observations. Sell prefers higher prices, buy prefers
// lower; ties go to the newest sample, then to the smaller waypoint symbol.
func (w *Warehouse) best(good string, kind core.ObservationKind, pred func(core.Observation) bool) (core.Observation, bool) {
	if good == "" {
		return core.Observation{}, false
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	var (
		best  core.Observation
		found bool
	)
	for key, obs := range w.latest {
		if key.Good != good || key.Kind != kind {
			continue
		}
		if pred != nil && !pred(obs) {
			continue
		}
		if !found || better(obs, best, kind) {
			best, found = obs, true
		}
	}
	return best, found
}

func better(candidate, current core.Observation, kind core.ObservationKind) bool {
	if candidate.Price != current.Price {
		if kind == core.ObservationSell {
			return candidate.Price > current.Price
		}
		return candidate.Price < current.Price
	}
	if !candidate.ObservedAt.Equal(current.ObservedAt) {
		return candidate.ObservedAt.After(current.ObservedAt)
	}
	return candidate.Waypoint < current.Waypoint
}

// LatestObservations returns the latest samples held for a waypoint, sorted by
// good then kind.
func (w *Warehouse) LatestObservations(waypoint string) []core.Observation {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]core.Observation, 0)
	for key, obs := range w.latest {
		if key.Waypoint == waypoint {
			out = append(out, obs)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Good != out[j].Good {
			return out[i].Good < out[j].Good
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// ObservationHistory returns the retained samples for a key, oldest first.
func (w *Warehouse) ObservationHistory(good, waypoint string, kind core.ObservationKind) []core.Observation {
	w.mu.RLock()
	defer w.mu.RUnlock()
	hist := w.history[core.ObservationKey{Good: good, Waypoint: waypoint, Kind: kind}]
	return append([]core.Observation(nil), hist...)
}

// ObservedWaypoints returns the set of waypoints with at least one sample.
func (w *Warehouse) ObservedWaypoints() map[string]bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]bool)
	for key := range w.latest {
		out[key.Waypoint] = true
	}
	return out
}
