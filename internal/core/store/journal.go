package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voidhaul/voidhaul/internal/core"
)

// PriceQuery selects journal rows for one good.
type PriceQuery struct {
	Good  string
	Since time.Time
	Limit int
}

// PricePoint is one journal row returned by a price query.
type PricePoint struct {
	ObservedAt time.Time `json:"observed_at" yaml:"observed_at"`
	System     string    `json:"system" yaml:"system"`
	Waypoint   string    `json:"waypoint" yaml:"waypoint"`
	Good       string    `json:"good" yaml:"good"`
	Price      int       `json:"price" yaml:"price"`
}

const defaultQueryLimit = 10

// AppendObservations writes market samples in one transaction. Invalid samples
// are skipped. A retention sweep runs first when one is due.
func (s *Store) AppendObservations(ctx context.Context, observations []core.Observation) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if len(observations) == 0 {
		return nil
	}

	if _, err := s.MaybePrune(ctx); err != nil {
		return err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin observation batch: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	for _, obs := range observations {
		good := strings.TrimSpace(obs.Good)
		waypoint := strings.TrimSpace(obs.Waypoint)
		if good == "" || waypoint == "" || !obs.Kind.Valid() {
			continue
		}
		system := obs.System
		if system == "" {
			system = core.SystemSymbolOf(waypoint)
		}
		observedAt := obs.ObservedAt
		if observedAt.IsZero() {
			observedAt = s.now()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO market_observations
			(observed_at, system, waypoint, good, kind, price, trade_volume, supply, activity)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, observedAt.UTC().UnixMilli(), system, waypoint, good, string(obs.Kind), obs.Price,
			nullInt(obs.TradeVolume), nullString(obs.Supply), nullString(obs.Activity))
		if err != nil {
			return fmt.Errorf("store observation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit observation batch: %w", err)
	}
	return nil
}

// RecordTransaction journals a completed trade.
func (s *Store) RecordTransaction(ctx context.Context, t core.Transaction) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(t.Action) == "" {
		return errors.New("transaction action is required")
	}

	if _, err := s.MaybePrune(ctx); err != nil {
		return err
	}

	ts := t.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	var credits sql.NullInt64
	if t.CreditsAfter != nil {
		credits = sql.NullInt64{Int64: *t.CreditsAfter, Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO transactions
		(occurred_at, ship, waypoint, action, symbol, units, unit_price, total_price, credits_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ts.UTC().UnixMilli(), t.Ship, t.Waypoint, strings.ToUpper(t.Action), t.Symbol, t.Units, t.UnitPrice, t.TotalPrice, credits)
	if err != nil {
		return fmt.Errorf("store transaction: %w", err)
	}
	return nil
}

// BestSellPrices returns the highest prices markets paid for the good since
// q.Since, newest first among equal prices.
func (s *Store) BestSellPrices(ctx context.Context, q PriceQuery) ([]PricePoint, error) {
	return s.prices(ctx, q, core.ObservationSell, "DESC")
}

// BestBuyPrices returns the lowest prices markets asked for the good since
// q.Since, newest first among equal prices.
func (s *Store) BestBuyPrices(ctx context.Context, q PriceQuery) ([]PricePoint, error) {
	return s.prices(ctx, q, core.ObservationBuy, "ASC")
}

func (s *Store) prices(ctx context.Context, q PriceQuery, kind core.ObservationKind, order string) ([]PricePoint, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	good := strings.TrimSpace(q.Good)
	if good == "" {
		return nil, errors.New("good is required")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT observed_at, system, waypoint, good, price
		FROM market_observations
		WHERE good = ? AND kind = ? AND observed_at >= ?
		ORDER BY price %s, observed_at DESC, waypoint ASC
		LIMIT ?
	`, order), good, string(kind), q.Since.UTC().UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	points := []PricePoint{}
	for rows.Next() {
		var (
			p  PricePoint
			ts int64
		)
		if err := rows.Scan(&ts, &p.System, &p.Waypoint, &p.Good, &p.Price); err != nil {
			return nil, fmt.Errorf("scan prices: %w", err)
		}
		p.ObservedAt = time.UnixMilli(ts).UTC()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	return points, nil
}

// LoadRecentObservations returns journal rows observed at or after since,
// oldest first, so replaying them keeps the newest sample per key.
func (s *Store) LoadRecentObservations(ctx context.Context, since time.Time) ([]core.Observation, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT observed_at, system, waypoint, good, kind, price, trade_volume, supply, activity
		FROM market_observations
		WHERE observed_at >= ?
		ORDER BY observed_at ASC, id ASC
	`, since.UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var out []core.Observation
	for rows.Next() {
		var (
			obs      core.Observation
			ts       int64
			kind     string
			volume   sql.NullInt64
			supply   sql.NullString
			activity sql.NullString
		)
		if err := rows.Scan(&ts, &obs.System, &obs.Waypoint, &obs.Good, &kind, &obs.Price, &volume, &supply, &activity); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		obs.Kind = core.ObservationKind(kind)
		obs.ObservedAt = time.UnixMilli(ts).UTC()
		obs.TradeVolume = int(volume.Int64)
		obs.Supply = supply.String
		obs.Activity = activity.String
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	return out, nil
}

// RecentTransactions returns up to limit trades, newest first.
func (s *Store) RecentTransactions(ctx context.Context, ship string, limit int) ([]core.Transaction, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	query := `
		SELECT occurred_at, ship, waypoint, action, symbol, units, unit_price, total_price, credits_after
		FROM transactions`
	args := []any{}
	if ship = strings.TrimSpace(ship); ship != "" {
		query += ` WHERE ship = ?`
		args = append(args, ship)
	}
	query += ` ORDER BY occurred_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	out := []core.Transaction{}
	for rows.Next() {
		var (
			t        core.Transaction
			ts       int64
			shipSym  sql.NullString
			waypoint sql.NullString
			symbol   sql.NullString
			credits  sql.NullInt64
		)
		if err := rows.Scan(&ts, &shipSym, &waypoint, &t.Action, &symbol, &t.Units, &t.UnitPrice, &t.TotalPrice, &credits); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Timestamp = time.UnixMilli(ts).UTC()
		t.Ship = shipSym.String
		t.Waypoint = waypoint.String
		t.Symbol = symbol.String
		if credits.Valid {
			v := credits.Int64
			t.CreditsAfter = &v
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	return out, nil
}

// MaybePrune runs a retention sweep when the last one is older than the prune
// interval. It reports whether a sweep ran.
func (s *Store) MaybePrune(ctx context.Context) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}
	now := s.now()

	s.pruneMu.Lock()
	due := s.lastPrune.IsZero() || !now.Before(s.lastPrune.Add(positiveOr(s.pruneInterval, DefaultPruneInterval)))
	if due {
		s.lastPrune = now
	}
	s.pruneMu.Unlock()

	if !due {
		return false, nil
	}
	if _, err := s.Prune(ctx, now.Add(-s.Retention())); err != nil {
		return true, err
	}
	return true, nil
}

// Prune deletes journal rows older than cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var total int64
	for _, stmt := range []string{
		`DELETE FROM market_observations WHERE observed_at < ?`,
		`DELETE FROM transactions WHERE occurred_at < ?`,
	} {
		result, err := s.DB.ExecContext(ctx, stmt, cutoff.UTC().UnixMilli())
		if err != nil {
			return total, fmt.Errorf("prune journal: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("prune journal: %w", err)
		}
		total += affected
	}
	return total, nil
}

func nullInt(v int) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}

func nullString(v string) sql.NullString {
	if strings.TrimSpace(v) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
