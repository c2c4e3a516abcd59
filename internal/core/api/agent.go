package api

import (
	"context"

	"github.com/voidhaul/voidhaul/internal/core"
)

// GetAgent fetches the player's agent.
func (c *Client) GetAgent(ctx context.Context) (core.AgentRecord, error) {
	var env envelope[agentPayload]
	if err := c.get(ctx, "my/agent", nil, &env); err != nil {
		return core.AgentRecord{}, err
	}
	rec := env.Data.record()
	if c.Warehouse != nil {
		c.record("agent", c.Warehouse.RecordAgent(rec))
	}
	return rec, nil
}

func (c *Client) recordAgent(p *agentPayload) {
	if p == nil || c.Warehouse == nil || p.Symbol == "" {
		return
	}
	c.record("agent", c.Warehouse.RecordAgent(p.record()))
}
