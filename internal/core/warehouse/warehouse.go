// Package warehouse holds the in-memory view of the game universe shared by
// every ship loop. All reads return copies; nothing is ever deleted.
package warehouse

import (
	"errors"
	"sync"
	"time"

	"github.com/voidhaul/voidhaul/internal/core"
)

// DefaultHistorySize bounds the per-key observation history.
const DefaultHistorySize = 16

// ErrEmptySymbol is returned when a record has no identifying symbol.
var ErrEmptySymbol = errors.New("symbol is required")

// Warehouse is the shared state cache. The zero value is not usable; call New.
type Warehouse struct {
	mu sync.RWMutex

	historySize int

	agent     *core.AgentRecord
	systems   map[string]core.SystemRecord
	waypoints map[string]core.WaypointRecord
	fleet     map[string]core.FleetRecord
	latest    map[core.ObservationKey]core.Observation
	history   map[core.ObservationKey][]core.Observation

	// readings holds when each market's priced goods were last read.
	readings map[string]time.Time
}

// Option configures a Warehouse.
type Option func(*Warehouse)

// WithHistorySize sets how many samples are kept per observation key.
func WithHistorySize(n int) Option {
	return func(w *Warehouse) {
		if n > 0 {
			w.historySize = n
		}
	}
}

// New returns an empty warehouse.
func New(opts ...Option) *Warehouse {
	w := &Warehouse{
		historySize: DefaultHistorySize,
		systems:     make(map[string]core.SystemRecord),
		waypoints:   make(map[string]core.WaypointRecord),
		fleet:       make(map[string]core.FleetRecord),
		latest:      make(map[core.ObservationKey]core.Observation),
		history:     make(map[core.ObservationKey][]core.Observation),
		readings:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Stats summarizes what the warehouse currently knows.
type Stats struct {
	Systems      int `json:"systems"`
	Waypoints    int `json:"waypoints"`
	Ships        int `json:"ships"`
	Observations int `json:"observations"`
}

// Stats returns entity counts.
func (w *Warehouse) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Stats{
		Systems:      len(w.systems),
		Waypoints:    len(w.waypoints),
		Ships:        len(w.fleet),
		Observations: len(w.latest),
	}
}

// RecordAgent replaces the cached agent.
func (w *Warehouse) RecordAgent(agent core.AgentRecord) error {
	if agent.Symbol == "" {
		return ErrEmptySymbol
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.agent = &agent
	return nil
}

// Agent returns the cached agent.
func (w *Warehouse) Agent() (core.AgentRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.agent == nil {
		return core.AgentRecord{}, false
	}
	return *w.agent, true
}

// RecordSystem stores a system, keeping previously known waypoints and factions.
func (w *Warehouse) RecordSystem(rec core.SystemRecord) error {
	if rec.Symbol == "" {
		return ErrEmptySymbol
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.systems[rec.Symbol]; ok {
		rec.Waypoints = core.MergeTraits(existing.Waypoints, rec.Waypoints)
		rec.Factions = core.MergeTraits(existing.Factions, rec.Factions)
	} else {
		rec.Waypoints = core.MergeTraits(nil, rec.Waypoints)
		rec.Factions = core.MergeTraits(nil, rec.Factions)
	}
	w.systems[rec.Symbol] = rec
	return nil
}

// System returns a copy of the system record.
func (w *Warehouse) System(symbol string) (core.SystemRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rec, ok := w.systems[symbol]
	if !ok {
		return core.SystemRecord{}, false
	}
	rec.Waypoints = cloneStrings(rec.Waypoints)
	rec.Factions = cloneStrings(rec.Factions)
	return rec, true
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
