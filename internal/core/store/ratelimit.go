package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/voidhaul/voidhaul/internal/core"
)

// RateLimitEntry is one persisted governor bucket.
type RateLimitEntry struct {
	Bucket       string     `json:"bucket" yaml:"bucket"`
	BackoffUntil *time.Time `json:"backoff_until,omitempty" yaml:"backoff_until,omitempty"`
	Last429At    *time.Time `json:"last_429_at,omitempty" yaml:"last_429_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at" yaml:"updated_at"`
}

// SaveRateLimitState persists the governor's per-bucket backoffs so a restart
// keeps honouring a server-imposed pause.
func (s *Store) SaveRateLimitState(ctx context.Context, state core.RateLimitState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := s.now()
	var last429 sql.NullInt64
	if state.Last429At != nil {
		last429 = sql.NullInt64{Int64: state.Last429At.UTC().UnixMilli(), Valid: true}
	}

	buckets := make([]string, 0, len(state.BackoffUntil))
	for bucket := range state.BackoffUntil {
		buckets = append(buckets, bucket)
	}
	sort.Strings(buckets)

	for _, bucket := range buckets {
		until := state.BackoffUntil[bucket]
		_, err := s.DB.ExecContext(ctx, `
			INSERT INTO rate_limits (bucket, backoff_until, last_429_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(bucket) DO UPDATE SET
				backoff_until = excluded.backoff_until,
				last_429_at = COALESCE(excluded.last_429_at, rate_limits.last_429_at),
				updated_at = excluded.updated_at
		`, bucket, until.UTC().UnixMilli(), last429, now.UnixMilli())
		if err != nil {
			return fmt.Errorf("store rate limit: %w", err)
		}
	}
	return nil
}

// ActiveBackoffs returns bucket deadlines still in the future.
func (s *Store) ActiveBackoffs(ctx context.Context) (map[string]time.Time, error) {
	entries, err := s.ListRateLimits(ctx, "")
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make(map[string]time.Time)
	for _, e := range entries {
		if e.BackoffUntil != nil && e.BackoffUntil.After(now) {
			out[e.Bucket] = *e.BackoffUntil
		}
	}
	return out, nil
}

// ListRateLimits returns persisted buckets, optionally filtered by prefix.
func (s *Store) ListRateLimits(ctx context.Context, prefix string) ([]RateLimitEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args := prefixClause(prefix)
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT bucket, backoff_until, last_429_at, updated_at
		FROM rate_limits
		%s
		ORDER BY bucket
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []RateLimitEntry{}
	for rows.Next() {
		var (
			entry        RateLimitEntry
			backoffUntil sql.NullInt64
			last429At    sql.NullInt64
			updatedAt    int64
		)
		if err := rows.Scan(&entry.Bucket, &backoffUntil, &last429At, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan rate limits: %w", err)
		}
		if backoffUntil.Valid {
			value := time.UnixMilli(backoffUntil.Int64).UTC()
			entry.BackoffUntil = &value
		}
		if last429At.Valid {
			value := time.UnixMilli(last429At.Int64).UTC()
			entry.Last429At = &value
		}
		entry.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	return entries, nil
}

// ResetRateLimits deletes persisted buckets matching prefix (all when empty).
func (s *Store) ResetRateLimits(ctx context.Context, prefix string) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args := prefixClause(prefix)
	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM rate_limits
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset rate limits: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset rate limits: %w", err)
	}
	return affected, nil
}

func prefixClause(prefix string) (string, []any) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", nil
	}
	return "WHERE bucket LIKE ?", []any{prefix + "%"}
}
