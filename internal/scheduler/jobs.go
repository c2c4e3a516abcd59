package scheduler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/voidhaul/voidhaul/internal/core"
	"github.com/voidhaul/voidhaul/internal/core/warehouse"
	"github.com/voidhaul/voidhaul/internal/metrics"
	"github.com/voidhaul/voidhaul/internal/observability"
)

// Pruner trims the journal.
type Pruner interface {
	MaybePrune(ctx context.Context) (bool, error)
}

// RetentionJob applies journal retention.
type RetentionJob struct {
	Store  Pruner
	Logger observability.Logger
}

func (j *RetentionJob) Name() string { return "retention" }

func (j *RetentionJob) Run(ctx context.Context) error {
	if j.Store == nil {
		return errors.New("retention job has no store")
	}
	ran, err := j.Store.MaybePrune(ctx)
	if err != nil {
		return err
	}
	if ran && j.Logger != nil {
		j.Logger.Debug("Journal retention applied")
	}
	return nil
}

// FleetLister refreshes ship snapshots; implementations record them in the warehouse.
type FleetLister interface {
	ListShips(ctx context.Context) ([]core.FleetRecord, error)
}

// FleetSyncJob re-reads the fleet so the warehouse does not drift from the
// server between ship actions.
type FleetSyncJob struct {
	API    FleetLister
	Logger observability.Logger
}

func (j *FleetSyncJob) Name() string { return "fleet_sync" }

func (j *FleetSyncJob) Run(ctx context.Context) error {
	if j.API == nil {
		return errors.New("fleet sync job has no api")
	}
	ships, err := j.API.ListShips(ctx)
	if err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Debug("Fleet resynced", zap.Int("ships", len(ships)))
	}
	return nil
}

// StateSource exposes the governor's current rate limit state.
type StateSource interface {
	State() core.RateLimitState
}

// StateSink persists rate limit state.
type StateSink interface {
	SaveRateLimitState(ctx context.Context, state core.RateLimitState) error
}

// CheckpointJob persists governor backoffs so a restart keeps honouring them.
type CheckpointJob struct {
	Source StateSource
	Sink   StateSink
}

func (j *CheckpointJob) Name() string { return "checkpoint" }

func (j *CheckpointJob) Run(ctx context.Context) error {
	if j.Source == nil || j.Sink == nil {
		return errors.New("checkpoint job is not wired")
	}
	state := j.Source.State()
	if len(state.BackoffUntil) == 0 {
		return nil
	}
	return j.Sink.SaveRateLimitState(ctx, state)
}

// StatsJob publishes warehouse entity counts as gauges.
type StatsJob struct {
	Warehouse *warehouse.Warehouse
}

func (j *StatsJob) Name() string { return "warehouse_stats" }

func (j *StatsJob) Run(_ context.Context) error {
	if j.Warehouse == nil {
		return errors.New("stats job has no warehouse")
	}
	stats := j.Warehouse.Stats()
	metrics.SetWarehouseEntities("systems", stats.Systems)
	metrics.SetWarehouseEntities("waypoints", stats.Waypoints)
	metrics.SetWarehouseEntities("ships", stats.Ships)
	metrics.SetWarehouseEntities("observations", stats.Observations)
	return nil
}
