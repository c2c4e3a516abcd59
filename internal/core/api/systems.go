package api

import (
	"context"
	"strings"

	"github.com/voidhaul/voidhaul/internal/core"
)

// ListSystems fetches one page of systems.
func (c *Client) ListSystems(ctx context.Context, page int) ([]core.SystemRecord, error) {
	if page < 1 {
		page = 1
	}
	var env envelope[[]systemPayload]
	if err := c.get(ctx, "systems", pageQuery(page, c.pageLimit()), &env); err != nil {
		return nil, err
	}
	out := make([]core.SystemRecord, 0, len(env.Data))
	for _, p := range env.Data {
		rec := p.record()
		c.recordSystem(rec)
		out = append(out, rec)
	}
	return out, nil
}

// GetSystem fetches a system and the waypoint stubs it lists.
func (c *Client) GetSystem(ctx context.Context, system string) (core.SystemRecord, error) {
	var env envelope[systemPayload]
	if err := c.get(ctx, pathf("systems/%s", system), nil, &env); err != nil {
		return core.SystemRecord{}, err
	}
	rec := env.Data.record()
	c.recordSystem(rec)
	if c.Warehouse != nil {
		for _, wp := range env.Data.Waypoints {
			c.record("waypoint", c.Warehouse.RecordWaypoint(wp.record(rec.Symbol)))
		}
	}
	return rec, nil
}

// ListWaypoints fetches one page of waypoints, optionally filtered by traits.
func (c *Client) ListWaypoints(ctx context.Context, system string, page int, traits ...string) ([]core.WaypointRecord, int, error) {
	if page < 1 {
		page = 1
	}
	q := pageQuery(page, c.pageLimit())
	if len(traits) > 0 {
		q.Set("traits", strings.Join(traits, ","))
	}
	var env envelope[[]waypointPayload]
	if err := c.get(ctx, pathf("systems/%s/waypoints", system), q, &env); err != nil {
		return nil, 0, err
	}
	out := make([]core.WaypointRecord, 0, len(env.Data))
	for _, p := range env.Data {
		rec := p.record(system)
		if c.Warehouse != nil {
			c.record("waypoint", c.Warehouse.RecordWaypoint(rec))
		}
		out = append(out, rec)
	}
	total := 0
	if env.Meta != nil {
		total = env.Meta.Total
	}
	return out, total, nil
}

// ScanSystemWaypoints walks every page of a system's waypoints.
func (c *Client) ScanSystemWaypoints(ctx context.Context, system string, traits ...string) ([]core.WaypointRecord, error) {
	var all []core.WaypointRecord
	for page := 1; ; page++ {
		batch, total, err := c.ListWaypoints(ctx, system, page, traits...)
		if err != nil {
			return all, err
		}
		all = append(all, batch...)
		if !morePages(&meta{Total: total}, page, len(batch), len(all)) {
			return all, nil
		}
	}
}

// GetWaypoint fetches one waypoint.
func (c *Client) GetWaypoint(ctx context.Context, system, waypoint string) (core.WaypointRecord, error) {
	var env envelope[waypointPayload]
	if err := c.get(ctx, pathf("systems/%s/waypoints/%s", system, waypoint), nil, &env); err != nil {
		return core.WaypointRecord{}, err
	}
	rec := env.Data.record(system)
	if c.Warehouse != nil {
		c.record("waypoint", c.Warehouse.RecordWaypoint(rec))
		if merged, ok := c.Warehouse.Waypoint(rec.Symbol); ok {
			rec = merged
		}
	}
	return rec, nil
}

func (c *Client) recordSystem(rec core.SystemRecord) {
	if c.Warehouse != nil {
		c.record("system", c.Warehouse.RecordSystem(rec))
	}
}
