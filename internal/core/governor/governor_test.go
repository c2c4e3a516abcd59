package governor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// recorder is a fake game server that notes the fake time of every dispatch.
type recorder struct {
	mu      sync.Mutex
	clock   *fakeClock
	times   []time.Time
	handler func(w http.ResponseWriter, r *http.Request, n int)
}

func (rec *recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec.mu.Lock()
	rec.times = append(rec.times, rec.clock.Now())
	n := len(rec.times)
	rec.mu.Unlock()

	if rec.handler != nil {
		rec.handler(w, r, n)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"data":{}}`))
}

func (rec *recorder) Times() []time.Time {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]time.Time(nil), rec.times...)
}

func newTestGovernor(t *testing.T, clock *fakeClock, handler func(w http.ResponseWriter, r *http.Request, n int), hooks Hooks) (*Governor, *recorder) {
	t.Helper()
	rec := &recorder{clock: clock, handler: handler}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	g, err := New(Config{BaseURL: srv.URL, Token: "token-123"},
		WithHTTPClient(srv.Client()),
		WithHooks(hooks),
		WithRand(func() float64 { return 0.5 }),
	)
	require.NoError(t, err)
	g.Clock = clock.Now
	g.Sleep = clock.Sleep
	return g, rec
}

func countInWindow(times []time.Time, start time.Time, window time.Duration) int {
	count := 0
	for _, ts := range times {
		if !ts.Before(start) && ts.Before(start.Add(window)) {
			count++
		}
	}
	return count
}

func TestGovernorThirdRequestWaitsForSteadyWindow(t *testing.T) {
	clock := newFakeClock()
	g, rec := newTestGovernor(t, clock, nil, Hooks{})

	for i := 0; i < 3; i++ {
		_, err := g.Execute(context.Background(), Request{Path: "my/agent"})
		require.NoError(t, err)
	}

	times := rec.Times()
	require.Len(t, times, 3)
	assert.Equal(t, times[0], times[1])
	assert.GreaterOrEqual(t, times[2].Sub(times[0]), time.Second)
}

func TestGovernorNeverExceedsWindows(t *testing.T) {
	clock := newFakeClock()
	g, rec := newTestGovernor(t, clock, nil, Hooks{})

	for i := 0; i < 70; i++ {
		_, err := g.Execute(context.Background(), Request{Path: "my/ships"})
		require.NoError(t, err)
	}

	times := rec.Times()
	require.Len(t, times, 70)
	for _, start := range times {
		require.LessOrEqual(t, countInWindow(times, start, time.Second), DefaultSteadyLimit)
		require.LessOrEqual(t, countInWindow(times, start, time.Minute), DefaultBurstLimit)
	}
	// The 31st dispatch has to wait for the first burst entry to expire.
	assert.GreaterOrEqual(t, times[30].Sub(times[0]), time.Minute)
}

func TestGovernorConcurrentCallersAllComplete(t *testing.T) {
	clock := newFakeClock()
	g, rec := newTestGovernor(t, clock, nil, Hooks{})

	var wg sync.WaitGroup
	errs := make(chan error, 12)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Execute(context.Background(), Request{Path: "my/agent"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, rec.Times(), 12)
	state := g.State()
	require.LessOrEqual(t, len(state.Steady), DefaultSteadyLimit)
}

func TestGovernor429WithResetWaitsUntilReset(t *testing.T) {
	clock := newFakeClock()
	resetAt := clock.Now().Add(5 * time.Second)
	handler := func(w http.ResponseWriter, r *http.Request, n int) {
		if n == 1 {
			w.Header().Set(HeaderLimitType, "IP_ADDRESS")
			w.Header().Set(HeaderLimit, "2")
			w.Header().Set(HeaderRemaining, "0")
			w.Header().Set(HeaderReset, resetAt.Format(time.RFC3339Nano))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","code":429}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{}}`))
	}
	g, rec := newTestGovernor(t, clock, handler, Hooks{})

	resp, err := g.Execute(context.Background(), Request{Path: "systems"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	times := rec.Times()
	require.Len(t, times, 2)
	assert.False(t, times[1].Before(resetAt), "retry dispatched before reset")
	require.NotNil(t, g.State().Last429At)
}

func TestGovernor429WithoutHeadersUsesBackoff(t *testing.T) {
	clock := newFakeClock()
	handler := func(w http.ResponseWriter, r *http.Request, n int) {
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":{}}`))
	}
	var retries []string
	g, _ := newTestGovernor(t, clock, handler, Hooks{
		OnRetry: func(reason string, attempt int, wait time.Duration) { retries = append(retries, reason) },
	})

	_, err := g.Execute(context.Background(), Request{Path: "systems"})
	require.NoError(t, err)
	assert.Contains(t, clock.Sleeps(), DefaultBackoffBase)
	assert.Equal(t, []string{"rate_limited"}, retries)
}

func TestGovernorServerErrorsExhaustAttempts(t *testing.T) {
	clock := newFakeClock()
	handler := func(w http.ResponseWriter, r *http.Request, n int) {
		w.WriteHeader(http.StatusBadGateway)
	}
	g, rec := newTestGovernor(t, clock, handler, Hooks{})

	_, err := g.Execute(context.Background(), Request{Path: "my/ships"})
	require.Error(t, err)

	var transient *TransientFailure
	require.True(t, errors.As(err, &transient))
	assert.Equal(t, DefaultMaxAttempts, transient.Attempts)
	assert.Equal(t, http.StatusBadGateway, transient.LastStatus)
	assert.Len(t, rec.Times(), DefaultMaxAttempts)
	assert.True(t, IsTransient(err))
}

func TestGovernorFatalStopsAllDispatch(t *testing.T) {
	clock := newFakeClock()
	handler := func(w http.ResponseWriter, r *http.Request, n int) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Failed to parse token. Token reset_date does not match the server.","code":4113}}`))
	}
	var fatalCalls atomic.Int32
	g, rec := newTestGovernor(t, clock, handler, Hooks{
		OnFatal: func(err error) { fatalCalls.Add(1) },
	})

	_, err := g.Execute(context.Background(), Request{Path: "my/agent"})
	require.Error(t, err)
	require.True(t, IsFatal(err))

	for i := 0; i < 3; i++ {
		_, err = g.Execute(context.Background(), Request{Path: "my/ships"})
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrFatalLatched))
		require.True(t, IsFatal(err))
	}

	assert.Len(t, rec.Times(), 1)
	assert.Equal(t, int32(1), fatalCalls.Load())
	assert.Error(t, g.Fatal())
}

func TestGovernorRejectsOtherClientErrors(t *testing.T) {
	clock := newFakeClock()
	handler := func(w http.ResponseWriter, r *http.Request, n int) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Ship is currently in-transit","code":4214,"data":{"secondsToArrival":12}}}`))
	}
	g, rec := newTestGovernor(t, clock, handler, Hooks{})

	_, err := g.Execute(context.Background(), Request{Method: http.MethodPost, Path: "my/ships/S-1/extract"})
	require.Error(t, err)

	var rejected *RequestRejected
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, http.StatusBadRequest, rejected.Status)
	assert.Equal(t, 4214, rejected.Code)
	assert.Equal(t, "Ship is currently in-transit", rejected.Message)
	assert.True(t, IsRejected(err, 4214))
	assert.False(t, IsRejected(err, 4000))
	assert.Len(t, rec.Times(), 1)
}

func TestGovernorSendsAuthAndBody(t *testing.T) {
	clock := newFakeClock()
	seen := make(chan *http.Request, 1)
	handler := func(w http.ResponseWriter, r *http.Request, n int) {
		seen <- r.Clone(context.Background())
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}
	g, _ := newTestGovernor(t, clock, handler, Hooks{})

	resp, err := g.Execute(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "my/ships/S-1/navigate",
		Query:  map[string][]string{"page": {"2"}},
		Body:   map[string]string{"waypointSymbol": "X1-A-B"},
	})
	require.NoError(t, err)
	got := <-seen
	assert.Equal(t, "Bearer token-123", got.Header.Get("Authorization"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "page=2", got.URL.RawQuery)
	assert.Equal(t, "/my/ships/S-1/navigate", got.URL.Path)

	var decoded struct {
		Data struct {
			OK bool `json:"ok"`
		} `json:"data"`
	}
	require.NoError(t, resp.Decode("navigate", &decoded))
	assert.True(t, decoded.Data.OK)

	bad := &Response{Body: []byte("not json")}
	var perr *ProtocolError
	require.True(t, errors.As(bad.Decode("x", &decoded), &perr))
}

func TestGovernorHonoursCancellation(t *testing.T) {
	clock := newFakeClock()
	g, rec := newTestGovernor(t, clock, nil, Hooks{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Execute(ctx, Request{Path: "my/agent"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.Times())
}

func TestGovernorRestoreHonoursCarriedBackoff(t *testing.T) {
	clock := newFakeClock()
	g, rec := newTestGovernor(t, clock, nil, Hooks{})
	start := clock.Now()

	g.Restore(map[string]time.Time{
		"IP_ADDRESS": start.Add(5 * time.Second),
		"stale":      start.Add(-time.Minute),
	})
	state := g.State()
	require.Contains(t, state.BackoffUntil, "IP_ADDRESS")
	require.NotContains(t, state.BackoffUntil, "stale")

	_, err := g.Execute(context.Background(), Request{Method: http.MethodGet, Path: "my/agent"})
	require.NoError(t, err)

	times := rec.Times()
	require.Len(t, times, 1)
	assert.False(t, times[0].Before(start.Add(5*time.Second)))
}

func TestGovernorWindowMarginDelaysAdmission(t *testing.T) {
	clock := newFakeClock()
	g, rec := newTestGovernor(t, clock, nil, Hooks{})

	for i := 0; i < 3; i++ {
		_, err := g.Execute(context.Background(), Request{Path: "my/agent"})
		require.NoError(t, err)
	}
	times := rec.Times()
	require.Len(t, times, 3)
	assert.Equal(t, time.Second+DefaultWindowMargin, times[2].Sub(times[0]))

	clock = newFakeClock()
	rec = &recorder{clock: clock}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	wide, err := New(Config{BaseURL: srv.URL, Token: "token-123", WindowMargin: 200 * time.Millisecond},
		WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	wide.Clock = clock.Now
	wide.Sleep = clock.Sleep

	for i := 0; i < 3; i++ {
		_, err := wide.Execute(context.Background(), Request{Path: "my/agent"})
		require.NoError(t, err)
	}
	times = rec.Times()
	require.Len(t, times, 3)
	assert.Equal(t, 1200*time.Millisecond, times[2].Sub(times[0]))
}

func TestGovernorWallClockKeepsMonotonicReading(t *testing.T) {
	g, err := New(Config{Token: "token-123"})
	require.NoError(t, err)
	assert.Contains(t, g.now().String(), "m=+", "admission arithmetic needs the monotonic clock")

	g.Clock = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.FixedZone("X", 3600)) }
	g.mu.Lock()
	g.state.Steady = append(g.state.Steady, g.now())
	g.mu.Unlock()
	assert.Equal(t, time.UTC, g.State().Steady[0].Location())
}
