package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Time columns hold Unix milliseconds.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS market_observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		observed_at INTEGER NOT NULL,
		system TEXT NOT NULL,
		waypoint TEXT NOT NULL,
		good TEXT NOT NULL,
		kind TEXT NOT NULL,
		price INTEGER NOT NULL,
		trade_volume INTEGER,
		supply TEXT,
		activity TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_obs_good_time ON market_observations(good, kind, observed_at);`,
	`CREATE INDEX IF NOT EXISTS idx_obs_waypoint_time ON market_observations(waypoint, observed_at);`,
	`CREATE INDEX IF NOT EXISTS idx_obs_time ON market_observations(observed_at);`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		occurred_at INTEGER NOT NULL,
		ship TEXT,
		waypoint TEXT,
		action TEXT NOT NULL,
		symbol TEXT,
		units INTEGER,
		unit_price INTEGER,
		total_price INTEGER,
		credits_after INTEGER
	);`,
	`CREATE INDEX IF NOT EXISTS idx_tx_time ON transactions(occurred_at);`,
	`CREATE INDEX IF NOT EXISTS idx_tx_ship_time ON transactions(ship, occurred_at);`,
	`CREATE TABLE IF NOT EXISTS rate_limits (
		bucket TEXT PRIMARY KEY,
		backoff_until INTEGER,
		last_429_at INTEGER,
		updated_at INTEGER NOT NULL
	);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	if err := s.ensureColumn(ctx, "transactions", "credits_after", "INTEGER"); err != nil {
		return err
	}

	return nil
}

func (s *Store) ensureColumn(ctx context.Context, table, column, columnDef string) error {
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspect %s schema: %w", table, err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("inspect %s columns: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s columns: %w", table, err)
	}

	if _, err := s.DB.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, columnDef)); err != nil {
		return fmt.Errorf("add %s.%s column: %w", table, column, err)
	}

	return nil
}
