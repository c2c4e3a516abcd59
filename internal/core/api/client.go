// Package api holds the typed call sites for the game service. Every call goes
// through the request governor and writes what it learns into the warehouse.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/voidhaul/voidhaul/internal/core"
	"github.com/voidhaul/voidhaul/internal/core/governor"
	"github.com/voidhaul/voidhaul/internal/core/warehouse"
	"github.com/voidhaul/voidhaul/internal/observability"
)

// DefaultPageLimit is the largest page size the service accepts.
const DefaultPageLimit = 20

// maxPages guards paged scans against a service that never reports a total.
const maxPages = 200

// Executor dispatches requests. *governor.Governor implements it.
type Executor interface {
	Execute(ctx context.Context, req governor.Request) (*governor.Response, error)
}

// ObservationJournal persists market samples outside the warehouse.
type ObservationJournal interface {
	AppendObservations(ctx context.Context, observations []core.Observation) error
}

// Client is the set of typed endpoint calls.
type Client struct {
	Exec      Executor
	Warehouse *warehouse.Warehouse
	Journal   ObservationJournal
	Logger    observability.Logger
	PageLimit int
	Clock     func() time.Time

	issued atomic.Uint64
}

// dispatch marks when a ship request was issued. Snapshots carry it so an
// earlier request answering late cannot replace a later one.
type dispatch struct {
	at       time.Time
	revision uint64
}

func (c *Client) dispatch() dispatch {
	return dispatch{at: c.now(), revision: c.issued.Add(1)}
}

func (d dispatch) stamp(rec *core.FleetRecord) {
	rec.FetchedAt = d.at
	rec.Revision = d.revision
}

// NewClient wires a client. journal may be nil.
func NewClient(exec Executor, wh *warehouse.Warehouse, journal ObservationJournal, logger observability.Logger) *Client {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Client{Exec: exec, Warehouse: wh, Journal: journal, Logger: logger, PageLimit: DefaultPageLimit}
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	if c == nil || c.Exec == nil {
		return errors.New("api client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := c.Exec.Execute(ctx, governor.Request{Method: method, Path: path, Query: query, Body: body})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(path, out)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.call(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.call(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) pageLimit() int {
	if c.PageLimit <= 0 || c.PageLimit > DefaultPageLimit {
		return DefaultPageLimit
	}
	return c.PageLimit
}

func pageQuery(page, limit int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	return q
}

// morePages reports whether another page should be fetched.
func morePages(m *meta, page, got, collected int) bool {
	if got == 0 || page >= maxPages {
		return false
	}
	if m == nil || m.Total <= 0 {
		return false
	}
	return collected < m.Total
}

func (c *Client) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

func (c *Client) logger() observability.Logger {
	if c.Logger == nil {
		return observability.Nop()
	}
	return c.Logger
}

func (c *Client) record(kind string, err error) {
	if err != nil {
		c.logger().Warn("Failed to record "+kind, zap.Error(err))
	}
}

func pathf(format string, args ...any) string {
	escaped := make([]any, len(args))
	for i, a := range args {
		escaped[i] = url.PathEscape(fmt.Sprint(a))
	}
	return fmt.Sprintf(format, escaped...)
}
