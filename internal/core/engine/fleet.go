// Package engine runs one control loop per ship. Loops share nothing but the
// request governor (behind ShipAPI) and the warehouse.
package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voidhaul/voidhaul/internal/core"
	"github.com/voidhaul/voidhaul/internal/core/governor"
	"github.com/voidhaul/voidhaul/internal/core/warehouse"
	"github.com/voidhaul/voidhaul/internal/metrics"
	"github.com/voidhaul/voidhaul/internal/observability"
)

// Defaults for Config.
const (
	DefaultPollInterval = time.Second
	DefaultErrorBackoff = 10 * time.Second
	DefaultIdleInterval = 5 * time.Minute
	DefaultSurveyMaxAge = 15 * time.Minute
)

// Config tunes the ship loops.
type Config struct {
	// PollInterval bounds each step of an arrival or cooldown wait.
	PollInterval time.Duration
	// ErrorBackoff is how long a ship pauses after a failed step.
	ErrorBackoff time.Duration
	// IdleInterval is how long parked ships and finished surveys wait.
	IdleInterval time.Duration
	// SurveyMaxAge is how long a market reading stays fresh for satellites.
	SurveyMaxAge time.Duration
	// Jettison allows dumping cargo no known market buys.
	Jettison bool
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = DefaultErrorBackoff
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = DefaultIdleInterval
	}
	if c.SurveyMaxAge <= 0 {
		c.SurveyMaxAge = DefaultSurveyMaxAge
	}
	return c
}

// Fleet drives every ship of the agent.
type Fleet struct {
	API       ShipAPI
	Warehouse *warehouse.Warehouse
	Trades    TradeRecorder
	Logger    observability.Logger
	Config    Config

	// Clock and Sleep are replaceable for tests.
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	states map[string]State
}

// NewFleet wires a fleet runner.
func NewFleet(shipAPI ShipAPI, wh *warehouse.Warehouse, trades TradeRecorder, logger observability.Logger, cfg Config) *Fleet {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Fleet{
		API:       shipAPI,
		Warehouse: wh,
		Trades:    trades,
		Logger:    logger,
		Config:    cfg.withDefaults(),
		states:    make(map[string]State),
	}
}

// Run fetches the fleet and runs one loop per ship until ctx is cancelled or a
// loop hits a fatal identity error, which stops every loop.
func (f *Fleet) Run(ctx context.Context) error {
	if f == nil || f.API == nil || f.Warehouse == nil {
		return errors.New("fleet is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	f.Config = f.Config.withDefaults()

	ships, err := f.API.ListShips(ctx)
	if err != nil {
		return err
	}
	if len(ships) == 0 {
		return errors.New("agent has no ships")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ship := range ships {
		runner := f.newShip(ship)
		f.Logger.Info("Starting ship loop",
			zap.String("ship", ship.Symbol),
			zap.String("role", string(ship.Role)),
		)
		g.Go(func() error {
			return runner.run(gctx)
		})
	}

	return g.Wait()
}

// States returns the current state of every ship, sorted by symbol.
func (f *Fleet) States() []ShipState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]ShipState, 0, len(f.states))
	for symbol, state := range f.states {
		out = append(out, ShipState{Ship: symbol, State: state})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ship < out[j].Ship })
	return out
}

// ShipState pairs a ship with its loop state.
type ShipState struct {
	Ship  string `json:"ship"`
	State State  `json:"state"`
}

func (f *Fleet) setState(ship string, state State) {
	f.mu.Lock()
	if f.states == nil {
		f.states = make(map[string]State)
	}
	prev := f.states[ship]
	f.states[ship] = state
	f.mu.Unlock()

	if prev != state {
		metrics.RecordShipState(string(state))
		f.Logger.Debug("Ship state changed",
			zap.String("ship", ship),
			zap.String("from", string(prev)),
			zap.String("to", string(state)),
		)
	}
}

func (f *Fleet) newShip(rec core.FleetRecord) *ship {
	return &ship{
		fleet:    f,
		symbol:   rec.Symbol,
		role:     rec.Role,
		behavior: behaviorFor(rec.Role),
		surveyed: make(map[string]time.Time),
	}
}

func (f *Fleet) now() time.Time {
	if f.Clock != nil {
		return f.Clock()
	}
	return time.Now().UTC()
}

func (f *Fleet) sleep(ctx context.Context, d time.Duration) error {
	if f.Sleep != nil {
		return f.Sleep(ctx, d)
	}
	return governor.SleepContext(ctx, d)
}
