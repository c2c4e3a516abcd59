package api

import (
	"context"

	"github.com/voidhaul/voidhaul/internal/core"
)

// TradeGood is one priced line of a market.
type TradeGood struct {
	Symbol        string `json:"symbol"`
	Type          string `json:"type"`
	TradeVolume   int    `json:"trade_volume"`
	Supply        string `json:"supply"`
	Activity      string `json:"activity"`
	PurchasePrice int    `json:"purchase_price"`
	SellPrice     int    `json:"sell_price"`
}

// Market is a waypoint's market. TradeGoods is empty unless a ship is present.
type Market struct {
	Symbol     string      `json:"symbol"`
	System     string      `json:"system"`
	Exports    []string    `json:"exports,omitempty"`
	Imports    []string    `json:"imports,omitempty"`
	Exchange   []string    `json:"exchange,omitempty"`
	TradeGoods []TradeGood `json:"trade_goods,omitempty"`
}

// Buys reports whether the market pays for the good.
func (m Market) Buys(good string) bool {
	for _, g := range m.TradeGoods {
		if g.Symbol == good && g.SellPrice > 0 {
			return true
		}
	}
	if len(m.TradeGoods) > 0 {
		return false
	}
	for _, list := range [][]string{m.Imports, m.Exchange} {
		for _, s := range list {
			if s == good {
				return true
			}
		}
	}
	return false
}

// Sells reports whether the market offers the good.
func (m Market) Sells(good string) bool {
	for _, g := range m.TradeGoods {
		if g.Symbol == good && g.PurchasePrice > 0 {
			return true
		}
	}
	return false
}

// Shipyard lists the ship types offered at a waypoint.
type Shipyard struct {
	Symbol           string         `json:"symbol"`
	ShipTypes        []string       `json:"ship_types"`
	Prices           map[string]int `json:"prices,omitempty"`
	ModificationsFee int            `json:"modifications_fee"`
}

// GetMarket reads a market and records one buy and one sell observation per
// priced trade good.
func (c *Client) GetMarket(ctx context.Context, system, waypoint string) (Market, error) {
	var env envelope[marketPayload]
	if err := c.get(ctx, pathf("systems/%s/waypoints/%s/market", system, waypoint), nil, &env); err != nil {
		return Market{}, err
	}
	now := c.now()
	p := env.Data
	if p.Symbol == "" {
		p.Symbol = waypoint
	}
	market := Market{
		Symbol:   p.Symbol,
		System:   system,
		Exports:  symbols(p.Exports),
		Imports:  symbols(p.Imports),
		Exchange: symbols(p.Exchange),
	}

	observations := make([]core.Observation, 0, 2*len(p.TradeGoods))
	for _, g := range p.TradeGoods {
		market.TradeGoods = append(market.TradeGoods, TradeGood(g))
		base := core.Observation{
			Good:        g.Symbol,
			Waypoint:    p.Symbol,
			System:      system,
			TradeVolume: g.TradeVolume,
			Supply:      g.Supply,
			Activity:    g.Activity,
			ObservedAt:  now,
		}
		if g.PurchasePrice > 0 {
			buy := base
			buy.Kind, buy.Price = core.ObservationBuy, g.PurchasePrice
			observations = append(observations, buy)
		}
		if g.SellPrice > 0 {
			sell := base
			sell.Kind, sell.Price = core.ObservationSell, g.SellPrice
			observations = append(observations, sell)
		}
	}

	if c.Warehouse != nil {
		c.record("waypoint", c.Warehouse.RecordWaypoint(core.WaypointRecord{Symbol: p.Symbol, System: system, MarketPresent: true}))
		for _, obs := range observations {
			c.record("observation", c.Warehouse.RecordObservation(obs))
		}
		if len(p.TradeGoods) > 0 {
			c.record("market reading", c.Warehouse.RecordMarketReading(p.Symbol, now))
		}
	}
	if c.Journal != nil && len(observations) > 0 {
		c.record("observations", c.Journal.AppendObservations(ctx, observations))
	}
	return market, nil
}

// GetShipyard reads a shipyard.
func (c *Client) GetShipyard(ctx context.Context, system, waypoint string) (Shipyard, error) {
	var env envelope[shipyardPayload]
	if err := c.get(ctx, pathf("systems/%s/waypoints/%s/shipyard", system, waypoint), nil, &env); err != nil {
		return Shipyard{}, err
	}
	p := env.Data
	if p.Symbol == "" {
		p.Symbol = waypoint
	}
	yard := Shipyard{Symbol: p.Symbol, ModificationsFee: p.ModificationsFee}
	for _, t := range p.ShipTypes {
		yard.ShipTypes = append(yard.ShipTypes, t.Type)
	}
	if len(p.Ships) > 0 {
		yard.Prices = make(map[string]int, len(p.Ships))
		for _, s := range p.Ships {
			yard.Prices[s.Type] = s.PurchasePrice
		}
	}
	if c.Warehouse != nil {
		c.record("waypoint", c.Warehouse.RecordWaypoint(core.WaypointRecord{Symbol: p.Symbol, System: system, ShipyardPresent: true}))
	}
	return yard, nil
}
