package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/voidhaul/voidhaul/internal/core"
)

// TradeLog appends one tab-separated line per trade:
// timestamp, action, ship, waypoint, symbol, units, unitPrice, totalPrice.
type TradeLog struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewTradeLog writes to w. The caller owns w.
func NewTradeLog(w io.Writer) *TradeLog {
	return &TradeLog{w: w}
}

// OpenTradeLog opens path for appending, creating it and its directory as needed.
func OpenTradeLog(path string) (*TradeLog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("trade log path is required")
	}
	if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
		// #nosec G301 -- data directories use 0755 like the store
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create trade log directory: %w", err)
		}
	}
	// #nosec G304 -- path comes from operator configuration
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}
	return &TradeLog{w: f, closer: f}, nil
}

// RecordTransaction appends the trade.
func (l *TradeLog) RecordTransaction(_ context.Context, t core.Transaction) error {
	if l == nil || l.w == nil {
		return errors.New("trade log is not open")
	}
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := strings.Join([]string{
		ts.UTC().Format(time.RFC3339),
		tsvField(strings.ToUpper(t.Action)),
		tsvField(t.Ship),
		tsvField(t.Waypoint),
		tsvField(t.Symbol),
		fmt.Sprint(t.Units),
		fmt.Sprint(t.UnitPrice),
		fmt.Sprint(t.TotalPrice),
	}, "\t") + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.w, line); err != nil {
		return fmt.Errorf("write trade log: %w", err)
	}
	return nil
}

// Close closes the underlying file when the log opened it.
func (l *TradeLog) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func tsvField(v string) string {
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(v)
}
