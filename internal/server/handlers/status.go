package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/voidhaul/voidhaul/internal/core"
	"github.com/voidhaul/voidhaul/internal/core/engine"
	"github.com/voidhaul/voidhaul/internal/core/store"
	"github.com/voidhaul/voidhaul/internal/core/warehouse"
	apperrors "github.com/voidhaul/voidhaul/internal/errors"
)

// FleetView exposes per-ship loop states.
type FleetView interface {
	States() []engine.ShipState
}

// GovernorView exposes admission state and the fatal latch.
type GovernorView interface {
	State() core.RateLimitState
	Fatal() error
}

// PriceJournal answers historical price queries.
type PriceJournal interface {
	BestSellPrices(ctx context.Context, q store.PriceQuery) ([]store.PricePoint, error)
	BestBuyPrices(ctx context.Context, q store.PriceQuery) ([]store.PricePoint, error)
}

// StatusHandler serves read-only views of the running agent. Nil fields
// make their endpoints report SERVICE_UNAVAILABLE.
type StatusHandler struct {
	Fleet     FleetView
	Warehouse *warehouse.Warehouse
	Governor  GovernorView
	Journal   PriceJournal
	Now       func() time.Time
}

// ShipStatus joins a ship snapshot with its loop state.
type ShipStatus struct {
	core.FleetRecord
	State engine.State `json:"state,omitempty"`
}

// FleetResponse is the body of GET /fleet.
type FleetResponse struct {
	Ships []ShipStatus `json:"ships"`
}

// GovernorResponse is the body of GET /governor.
type GovernorResponse struct {
	Fatal          string               `json:"fatal,omitempty"`
	SteadyInWindow int                  `json:"steady_in_window"`
	BurstInWindow  int                  `json:"burst_in_window"`
	BackoffUntil   map[string]time.Time `json:"backoff_until,omitempty"`
	Last429At      *time.Time           `json:"last_429_at,omitempty"`
	Remaining      int                  `json:"remaining"`
	ResetAt        *time.Time           `json:"reset_at,omitempty"`
}

// HistoryResponse is the body of GET /market/history.
type HistoryResponse struct {
	Good   string               `json:"good"`
	Kind   core.ObservationKind `json:"kind"`
	Since  time.Time            `json:"since"`
	Prices []store.PricePoint   `json:"prices"`
}

func (h *StatusHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// FleetHandler lists every known ship with its automation state.
func (h *StatusHandler) FleetHandler(w http.ResponseWriter, r *http.Request) {
	if h.Warehouse == nil {
		apperrors.RespondWithError(w, r, errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "warehouse not available"))
		return
	}
	states := map[string]engine.State{}
	if h.Fleet != nil {
		for _, s := range h.Fleet.States() {
			states[s.Ship] = s.State
		}
	}
	ships := h.Warehouse.Ships()
	out := FleetResponse{Ships: make([]ShipStatus, 0, len(ships))}
	for _, rec := range ships {
		out.Ships = append(out.Ships, ShipStatus{FleetRecord: rec, State: states[rec.Symbol]})
	}
	writeJSON(w, out)
}

// WarehouseStatsHandler reports warehouse entity counts.
func (h *StatusHandler) WarehouseStatsHandler(w http.ResponseWriter, r *http.Request) {
	if h.Warehouse == nil {
		apperrors.RespondWithError(w, r, errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "warehouse not available"))
		return
	}
	writeJSON(w, h.Warehouse.Stats())
}

// BestObservationHandler answers ?good=&kind=sell|buy[&system=] from the
// warehouse's latest observations.
func (h *StatusHandler) BestObservationHandler(w http.ResponseWriter, r *http.Request) {
	if h.Warehouse == nil {
		apperrors.RespondWithError(w, r, errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "warehouse not available"))
		return
	}
	good, kind, err := goodAndKind(r)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	system := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("system")))

	var (
		obs   core.Observation
		found bool
	)
	switch {
	case kind == core.ObservationBuy && system != "":
		apperrors.RespondWithError(w, r, errors.NewErrorEnvelope("INVALID_INPUT", "system filter applies to sell prices only"))
		return
	case kind == core.ObservationBuy:
		obs, found = h.Warehouse.BestPurchaseObservation(good)
	case system != "":
		obs, found = h.Warehouse.BestSellObservationInSystem(good, system)
	default:
		obs, found = h.Warehouse.BestSellObservation(good)
	}
	if !found {
		apperrors.RespondWithError(w, r, errors.NewErrorEnvelope("NOT_FOUND", fmt.Sprintf("no %s observation for %s", kind, good)))
		return
	}
	writeJSON(w, obs)
}

// PriceHistoryHandler answers ?good=&kind=&hours=&limit= from the journal.
func (h *StatusHandler) PriceHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if h.Journal == nil {
		apperrors.RespondWithError(w, r, errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "journal not enabled"))
		return
	}
	good, kind, err := goodAndKind(r)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	hours, err := positiveQueryInt(r, "hours", 24)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	limit, err := positiveQueryInt(r, "limit", 10)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}

	q := store.PriceQuery{Good: good, Since: h.now().Add(-time.Duration(hours) * time.Hour), Limit: limit}
	var points []store.PricePoint
	if kind == core.ObservationBuy {
		points, err = h.Journal.BestBuyPrices(r.Context(), q)
	} else {
		points, err = h.Journal.BestSellPrices(r.Context(), q)
	}
	if err != nil {
		env, _ := errors.NewErrorEnvelope("DATABASE_ERROR", "price query failed").
			WithContext(map[string]interface{}{"wrapped_error": err.Error()})
		apperrors.RespondWithError(w, r, env)
		return
	}
	if points == nil {
		points = []store.PricePoint{}
	}
	writeJSON(w, HistoryResponse{Good: good, Kind: kind, Since: q.Since.UTC(), Prices: points})
}

// GovernorHandler reports request admission state.
func (h *StatusHandler) GovernorHandler(w http.ResponseWriter, r *http.Request) {
	if h.Governor == nil {
		apperrors.RespondWithError(w, r, errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "governor not available"))
		return
	}
	state := h.Governor.State()
	now := h.now()
	out := GovernorResponse{
		SteadyInWindow: len(state.Steady),
		BurstInWindow:  len(state.Burst),
		Last429At:      state.Last429At,
		Remaining:      state.Remaining,
		ResetAt:        state.ResetAt,
	}
	for bucket, until := range state.BackoffUntil {
		if !until.After(now) {
			continue
		}
		if out.BackoffUntil == nil {
			out.BackoffUntil = map[string]time.Time{}
		}
		out.BackoffUntil[bucket] = until
	}
	if err := h.Governor.Fatal(); err != nil {
		out.Fatal = err.Error()
	}
	writeJSON(w, out)
}

func goodAndKind(r *http.Request) (string, core.ObservationKind, error) {
	q := r.URL.Query()
	good := strings.ToUpper(strings.TrimSpace(q.Get("good")))
	if good == "" {
		return "", "", errors.NewErrorEnvelope("INVALID_INPUT", "good is required")
	}
	kind := core.ObservationKind(strings.ToLower(strings.TrimSpace(q.Get("kind"))))
	if kind == "" {
		kind = core.ObservationSell
	}
	if !kind.Valid() {
		return "", "", errors.NewErrorEnvelope("INVALID_INPUT", "kind must be sell or buy")
	}
	return good, kind, nil
}

func positiveQueryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.NewErrorEnvelope("INVALID_INPUT", key+" must be a positive integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
