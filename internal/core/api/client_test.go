package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidhaul/voidhaul/internal/core"
	"github.com/voidhaul/voidhaul/internal/core/governor"
	"github.com/voidhaul/voidhaul/internal/core/warehouse"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type memoryJournal struct {
	mu           sync.Mutex
	observations []core.Observation
}

func (m *memoryJournal) AppendObservations(ctx context.Context, observations []core.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations = append(m.observations, observations...)
	return nil
}

type capturedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

func newTestClient(t *testing.T, routes map[string]string) (*Client, *warehouse.Warehouse, *memoryJournal, func() []capturedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := capturedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &req.Body)
		}
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()

		key := r.Method + " " + r.URL.Path
		if page := r.URL.Query().Get("page"); page != "" {
			if body, ok := routes[key+"?page="+page]; ok {
				_, _ = w.Write([]byte(body))
				return
			}
		}
		body, ok := routes[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"not found","code":404}}`))
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	gov, err := governor.New(governor.Config{
		BaseURL:     srv.URL,
		Token:       "token",
		SteadyLimit: 1000,
		BurstLimit:  1000,
	}, governor.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	wh := warehouse.New()
	journal := &memoryJournal{}
	client := NewClient(gov, wh, journal, nil)
	client.Clock = func() time.Time { return fixedNow }

	return client, wh, journal, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), seen...)
	}
}

const shipJSON = `{
  "symbol": "VOID-1",
  "registration": {"name": "VOID-1", "factionSymbol": "COSMIC", "role": "EXCAVATOR"},
  "nav": {
    "systemSymbol": "X1-AB",
    "waypointSymbol": "X1-AB-A1",
    "status": "IN_TRANSIT",
    "flightMode": "CRUISE",
    "route": {
      "destination": {"symbol": "X1-AB-B2", "systemSymbol": "X1-AB", "x": 10, "y": 0},
      "origin": {"symbol": "X1-AB-A1", "systemSymbol": "X1-AB", "x": 0, "y": 0},
      "departureTime": "2025-06-01T11:59:00Z",
      "arrival": "2025-06-01T12:00:30Z"
    }
  },
  "cooldown": {"shipSymbol": "VOID-1", "totalSeconds": 70, "remainingSeconds": 0},
  "fuel": {"current": 300, "capacity": 400},
  "cargo": {"capacity": 30, "units": 5, "inventory": [{"symbol": "IRON_ORE", "units": 5}]}
}`

func TestGetAgentRecordsWarehouse(t *testing.T) {
	client, wh, _, _ := newTestClient(t, map[string]string{
		"GET /my/agent": `{"data":{"accountId":"acc","symbol":"VOID","headquarters":"X1-AB-A1","credits":175000,"startingFaction":"COSMIC","shipCount":2}}`,
	})

	agent, err := client.GetAgent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "VOID", agent.Symbol)

	cached, ok := wh.Agent()
	require.True(t, ok)
	assert.Equal(t, int64(175000), cached.Credits)
}

func TestListShipsPages(t *testing.T) {
	client, wh, _, requests := newTestClient(t, map[string]string{
		"GET /my/ships?page=1": `{"data":[` + shipJSON + `],"meta":{"total":2,"page":1,"limit":1}}`,
		"GET /my/ships?page=2": `{"data":[{"symbol":"VOID-2","registration":{"role":"SATELLITE"},"nav":{"systemSymbol":"X1-AB","waypointSymbol":"X1-AB-A1","status":"DOCKED"},"fuel":{"current":0,"capacity":0},"cargo":{"capacity":0,"units":0,"inventory":[]}}],"meta":{"total":2,"page":2,"limit":1}}`,
	})

	ships, err := client.ListShips(context.Background())
	require.NoError(t, err)
	require.Len(t, ships, 2)
	assert.Len(t, requests(), 2)

	first, ok := wh.Ship("VOID-1")
	require.True(t, ok)
	assert.Equal(t, core.RoleExcavator, first.Role)
	assert.Equal(t, core.NavInTransit, first.NavStatus)
	require.NotNil(t, first.ArrivalAt)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC), *first.ArrivalAt)
	assert.Equal(t, "X1-AB-B2", first.Destination)
	assert.Nil(t, first.CooldownExpiresAt)
	assert.Equal(t, 5, first.Cargo.Units)

	second, ok := wh.Ship("VOID-2")
	require.True(t, ok)
	assert.Equal(t, core.RoleSatellite, second.Role)
	assert.Nil(t, second.ArrivalAt)
}

func TestGetMarketRecordsObservations(t *testing.T) {
	client, wh, journal, _ := newTestClient(t, map[string]string{
		"GET /systems/X1-AB/waypoints/X1-AB-B2/market": `{"data":{
			"symbol":"X1-AB-B2",
			"imports":[{"symbol":"IRON_ORE"}],
			"exports":[{"symbol":"FUEL"}],
			"tradeGoods":[
				{"symbol":"IRON_ORE","type":"IMPORT","tradeVolume":60,"supply":"SCARCE","activity":"WEAK","purchasePrice":80,"sellPrice":40},
				{"symbol":"FUEL","type":"EXPORT","tradeVolume":100,"supply":"ABUNDANT","purchasePrice":72,"sellPrice":0}
			]}}`,
	})

	market, err := client.GetMarket(context.Background(), "X1-AB", "X1-AB-B2")
	require.NoError(t, err)
	assert.True(t, market.Buys("IRON_ORE"))
	assert.False(t, market.Buys("FUEL"))
	assert.True(t, market.Sells("FUEL"))

	best, ok := wh.BestSellObservation("IRON_ORE")
	require.True(t, ok)
	assert.Equal(t, 40, best.Price)
	assert.Equal(t, "X1-AB", best.System)
	assert.Equal(t, fixedNow, best.ObservedAt)
	assert.Equal(t, "SCARCE", best.Supply)

	buy, ok := wh.BestPurchaseObservation("FUEL")
	require.True(t, ok)
	assert.Equal(t, 72, buy.Price)
	_, ok = wh.BestSellObservation("FUEL")
	assert.False(t, ok)

	wp, ok := wh.Waypoint("X1-AB-B2")
	require.True(t, ok)
	assert.True(t, wp.MarketPresent)

	assert.Len(t, journal.observations, 3)
}

func TestScanSystemWaypointsByTrait(t *testing.T) {
	client, wh, _, requests := newTestClient(t, map[string]string{
		"GET /systems/X1-AB/waypoints": `{"data":[
			{"symbol":"X1-AB-A1","type":"PLANET","systemSymbol":"X1-AB","x":0,"y":0,"traits":[{"symbol":"MARKETPLACE"}],"orbitals":[{"symbol":"X1-AB-A2"}]},
			{"symbol":"X1-AB-C3","type":"ASTEROID","systemSymbol":"X1-AB","x":4,"y":3,"traits":[{"symbol":"COMMON_METAL_DEPOSITS"}]}
		],"meta":{"total":2,"page":1,"limit":20}}`,
	})

	recs, err := client.ScanSystemWaypoints(context.Background(), "X1-AB", core.TraitMarketplace)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Query, "traits=MARKETPLACE")

	nearest, ok := wh.NearestWaypoint(core.Coordinates{X: 5, Y: 5}, core.WaypointRecord.IsMineable)
	require.True(t, ok)
	assert.Equal(t, "X1-AB-C3", nearest.Symbol)

	market, ok := wh.Waypoint("X1-AB-A1")
	require.True(t, ok)
	assert.True(t, market.MarketPresent)
	assert.Equal(t, []string{"X1-AB-A2"}, market.Orbitals)
}

func TestNavigateMergesPartialResponse(t *testing.T) {
	client, wh, _, requests := newTestClient(t, map[string]string{
		"GET /my/ships/VOID-1": `{"data":` + shipJSON + `}`,
		"POST /my/ships/VOID-1/navigate": `{"data":{
			"fuel":{"current":280,"capacity":400},
			"nav":{"systemSymbol":"X1-AB","waypointSymbol":"X1-AB-A1","status":"IN_TRANSIT","flightMode":"CRUISE",
				"route":{"destination":{"symbol":"X1-AB-C3"},"arrival":"2025-06-01T12:01:00Z"}}}}`,
	})

	_, err := client.GetShip(context.Background(), "VOID-1")
	require.NoError(t, err)

	rec, err := client.Navigate(context.Background(), "VOID-1", "X1-AB-C3")
	require.NoError(t, err)
	require.NotNil(t, rec.ArrivalAt)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC), *rec.ArrivalAt)
	assert.Equal(t, 280, rec.Fuel.Current)
	assert.Equal(t, core.RoleExcavator, rec.Role, "fields absent from the response survive")

	cached, ok := wh.Ship("VOID-1")
	require.True(t, ok)
	assert.Equal(t, "X1-AB-C3", cached.Destination)

	reqs := requests()
	assert.Equal(t, "X1-AB-C3", reqs[len(reqs)-1].Body["waypointSymbol"])
}

func TestExtractSetsCooldown(t *testing.T) {
	client, wh, _, _ := newTestClient(t, map[string]string{
		"POST /my/ships/VOID-1/extract": `{"data":{
			"cooldown":{"shipSymbol":"VOID-1","totalSeconds":70,"remainingSeconds":70,"expiration":"2025-06-01T12:01:10Z"},
			"extraction":{"shipSymbol":"VOID-1","yield":{"symbol":"IRON_ORE","units":7}},
			"cargo":{"capacity":30,"units":12,"inventory":[{"symbol":"IRON_ORE","units":12}]}}}`,
	})

	yield, rec, err := client.Extract(context.Background(), "VOID-1")
	require.NoError(t, err)
	assert.Equal(t, Extraction{Symbol: "IRON_ORE", Units: 7}, yield)
	require.NotNil(t, rec.CooldownExpiresAt)
	assert.True(t, rec.CoolingDownAt(fixedNow))
	assert.False(t, rec.CoolingDownAt(fixedNow.Add(70*time.Second)))

	cached, _ := wh.Ship("VOID-1")
	assert.Equal(t, 12, cached.Cargo.Units)
}

func TestSellAndRefuelReturnTransactions(t *testing.T) {
	client, wh, _, _ := newTestClient(t, map[string]string{
		"POST /my/ships/VOID-1/sell": `{"data":{
			"agent":{"symbol":"VOID","headquarters":"X1-AB-A1","credits":1500},
			"cargo":{"capacity":30,"units":0,"inventory":[]},
			"transaction":{"waypointSymbol":"X1-AB-B2","shipSymbol":"VOID-1","tradeSymbol":"IRON_ORE","type":"SELL","units":12,"pricePerUnit":40,"totalPrice":480,"timestamp":"2025-06-01T12:02:00Z"}}}`,
		"POST /my/ships/VOID-1/refuel": `{"data":{
			"agent":{"symbol":"VOID","headquarters":"X1-AB-A1","credits":1428},
			"fuel":{"current":400,"capacity":400},
			"transaction":{"waypointSymbol":"X1-AB-B2","shipSymbol":"VOID-1","tradeSymbol":"FUEL","type":"PURCHASE","units":1,"pricePerUnit":72,"totalPrice":72,"timestamp":"2025-06-01T12:02:05Z"}}}`,
	})

	tx, err := client.Sell(context.Background(), "VOID-1", "IRON_ORE", 12)
	require.NoError(t, err)
	assert.Equal(t, "SELL", tx.Action)
	assert.Equal(t, 480, tx.TotalPrice)
	require.NotNil(t, tx.CreditsAfter)
	assert.Equal(t, int64(1500), *tx.CreditsAfter)

	fuel, err := client.Refuel(context.Background(), "VOID-1", 0)
	require.NoError(t, err)
	assert.Equal(t, "BUY", fuel.Action)
	assert.Equal(t, "FUEL", fuel.Symbol)

	agent, ok := wh.Agent()
	require.True(t, ok)
	assert.Equal(t, int64(1428), agent.Credits)

	ship, _ := wh.Ship("VOID-1")
	assert.Equal(t, 400, ship.Fuel.Current)
	assert.Equal(t, 0, ship.Cargo.Units)

	_, err = client.Sell(context.Background(), "VOID-1", "IRON_ORE", 0)
	require.Error(t, err)
}

func TestClientSurfacesRejections(t *testing.T) {
	client, _, _, _ := newTestClient(t, map[string]string{})

	_, err := client.GetShip(context.Background(), "NOPE")
	require.Error(t, err)
	var rejected *governor.RequestRejected
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, http.StatusNotFound, rejected.Status)
}

func TestClientReportsMalformedBody(t *testing.T) {
	client, _, _, _ := newTestClient(t, map[string]string{
		"GET /my/agent": `<html>oops</html>`,
	})

	_, err := client.GetAgent(context.Background())
	var perr *governor.ProtocolError
	require.True(t, errors.As(err, &perr))
}

// gatedExec answers from a fixed table and holds the fleet listing until
// release is closed.
type gatedExec struct {
	routes  map[string]string
	listing chan struct{}
	release chan struct{}
}

func (g *gatedExec) Execute(ctx context.Context, req governor.Request) (*governor.Response, error) {
	key := req.Method + " " + req.Path
	if key == "GET my/ships" {
		close(g.listing)
		<-g.release
	}
	body, ok := g.routes[key]
	if !ok {
		return nil, &governor.RequestRejected{Status: http.StatusNotFound, Message: key}
	}
	return &governor.Response{StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func TestLateFleetListingDoesNotUndoNavigate(t *testing.T) {
	exec := &gatedExec{
		routes: map[string]string{
			"GET my/ships": `{"data":[{"symbol":"VOID-1","registration":{"role":"EXCAVATOR"},
				"nav":{"systemSymbol":"X1-AB","waypointSymbol":"X1-AB-A1","status":"IN_ORBIT","flightMode":"CRUISE"},
				"fuel":{"current":300,"capacity":400},"cargo":{"capacity":30,"units":0,"inventory":[]}}],
				"meta":{"total":1,"page":1,"limit":20}}`,
			"POST my/ships/VOID-1/navigate": `{"data":{
				"fuel":{"current":280,"capacity":400},
				"nav":{"systemSymbol":"X1-AB","waypointSymbol":"X1-AB-A1","status":"IN_TRANSIT","flightMode":"CRUISE",
					"route":{"destination":{"symbol":"X1-AB-B2"},"arrival":"2025-06-01T12:01:00Z"}}}}`,
		},
		listing: make(chan struct{}),
		release: make(chan struct{}),
	}
	wh := warehouse.New()
	client := NewClient(exec, wh, nil, nil)
	client.Clock = func() time.Time { return fixedNow }

	listed := make(chan error, 1)
	go func() {
		_, err := client.ListShips(context.Background())
		listed <- err
	}()
	<-exec.listing

	_, err := client.Navigate(context.Background(), "VOID-1", "X1-AB-B2")
	require.NoError(t, err)
	close(exec.release)
	require.NoError(t, <-listed)

	rec, ok := wh.Ship("VOID-1")
	require.True(t, ok)
	assert.Equal(t, core.NavInTransit, rec.NavStatus)
	assert.Equal(t, "X1-AB-B2", rec.Destination)
	require.NotNil(t, rec.ArrivalAt)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC), *rec.ArrivalAt)
	assert.Equal(t, 280, rec.Fuel.Current)
}

func TestGetMarketRecordsReadingForPricedGoods(t *testing.T) {
	client, wh, _, _ := newTestClient(t, map[string]string{
		"GET /systems/X1-AB/waypoints/X1-AB-A1/market": `{"data":{"symbol":"X1-AB-A1","imports":[{"symbol":"IRON_ORE"}],
			"tradeGoods":[{"symbol":"FUEL","type":"EXCHANGE","tradeVolume":100,"supply":"HIGH","purchasePrice":70,"sellPrice":65}]}}`,
		"GET /systems/X1-AB/waypoints/X1-AB-B2/market": `{"data":{"symbol":"X1-AB-B2","imports":[{"symbol":"IRON_ORE"}]}}`,
	})
	require.NoError(t, wh.RecordObservation(core.Observation{
		Good: "IRON_ORE", Waypoint: "X1-AB-A1", Kind: core.ObservationSell, Price: 99, ObservedAt: fixedNow.Add(-time.Hour),
	}))

	_, err := client.GetMarket(context.Background(), "X1-AB", "X1-AB-A1")
	require.NoError(t, err)
	_, err = client.GetMarket(context.Background(), "X1-AB", "X1-AB-B2")
	require.NoError(t, err)

	at, ok := wh.MarketReadAt("X1-AB-A1")
	require.True(t, ok)
	assert.Equal(t, fixedNow, at)
	_, ok = wh.MarketReadAt("X1-AB-B2")
	assert.False(t, ok, "a market read from orbit carries no prices")

	_, ok = wh.CurrentSellObservationInSystem("IRON_ORE", "X1-AB")
	assert.False(t, ok)
	_, ok = wh.BestSellObservationInSystem("IRON_ORE", "X1-AB")
	assert.True(t, ok)
}
