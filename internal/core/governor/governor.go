package governor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voidhaul/voidhaul/internal/core"
	"github.com/voidhaul/voidhaul/internal/observability"
)

// Defaults match the service's published limits.
const (
	DefaultBaseURL           = "https://api.spacetraders.io/v2"
	DefaultSteadyLimit       = 2
	DefaultSteadyWindow      = time.Second
	DefaultBurstLimit        = 30
	DefaultBurstWindow       = time.Minute
	DefaultWindowMargin      = 50 * time.Millisecond
	DefaultMaxAttempts       = 5
	DefaultBackoffBase       = 1200 * time.Millisecond
	DefaultBackoffMultiplier = 2.0
	DefaultBackoffMax        = 30 * time.Second
	DefaultBackoffJitter     = 0.1
	DefaultMaxResetWait      = time.Minute
	DefaultRequestTimeout    = 30 * time.Second
)

// Config controls admission and retry behavior.
type Config struct {
	BaseURL string
	Token   string

	SteadyLimit  int
	SteadyWindow time.Duration
	BurstLimit   int
	BurstWindow  time.Duration
	// WindowMargin keeps each dispatch counted for this long past its window,
	// absorbing clock skew and network jitter between us and the server.
	WindowMargin time.Duration

	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	BackoffMax        time.Duration
	BackoffJitter     float64
	MaxResetWait      time.Duration
	RequestTimeout    time.Duration
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.SteadyLimit <= 0 {
		c.SteadyLimit = DefaultSteadyLimit
	}
	if c.SteadyWindow <= 0 {
		c.SteadyWindow = DefaultSteadyWindow
	}
	if c.BurstLimit <= 0 {
		c.BurstLimit = DefaultBurstLimit
	}
	if c.BurstWindow <= 0 {
		c.BurstWindow = DefaultBurstWindow
	}
	if c.WindowMargin <= 0 {
		c.WindowMargin = DefaultWindowMargin
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.BackoffJitter < 0 || c.BackoffJitter >= 1 {
		c.BackoffJitter = DefaultBackoffJitter
	}
	if c.MaxResetWait <= 0 {
		c.MaxResetWait = DefaultMaxResetWait
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// Request describes one call to the game API. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the body into v.
func (r *Response) Decode(path string, v any) error {
	if r == nil {
		return &ProtocolError{Path: path, Err: errors.New("empty response")}
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &ProtocolError{Path: path, Err: err}
	}
	return nil
}

// Hooks receive governor events. All fields are optional.
type Hooks struct {
	OnDispatch func(method, path string)
	OnRetry    func(reason string, attempt int, wait time.Duration)
	OnFatal    func(err error)
}

// Governor is the single gateway for outbound game API traffic. It is safe for
// concurrent use by any number of callers.
type Governor struct {
	cfg     Config
	baseURL *url.URL
	client  *http.Client
	logger  observability.Logger
	hooks   Hooks
	backoff Backoff

	// Clock and Sleep are replaceable for tests.
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	state *core.RateLimitState
	queue []chan struct{}
	fatal error
}

// Option configures a Governor.
type Option func(*Governor)

// WithHTTPClient sets the HTTP client used for dispatch.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Governor) {
		if client != nil {
			g.client = client
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(g *Governor) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithHooks registers event hooks.
func WithHooks(hooks Hooks) Option {
	return func(g *Governor) { g.hooks = hooks }
}

// WithRand sets the jitter source.
func WithRand(fn func() float64) Option {
	return func(g *Governor) { g.backoff.Rand = fn }
}

// New builds a Governor.
func New(cfg Config, opts ...Option) (*Governor, error) {
	cfg = cfg.withDefaults()
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	g := &Governor{
		cfg:     cfg,
		baseURL: base,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		logger:  observability.Nop(),
		state:   core.NewRateLimitState(),
		backoff: Backoff{
			Base:       cfg.BackoffBase,
			Multiplier: cfg.BackoffMultiplier,
			Max:        cfg.BackoffMax,
			Jitter:     cfg.BackoffJitter,
			Rand:       rand.Float64,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Config returns the effective configuration.
func (g *Governor) Config() Config {
	return g.cfg
}

// Execute admits, dispatches and, when appropriate, retries a request.
func (g *Governor) Execute(ctx context.Context, req Request) (*Response, error) {
	if g == nil {
		return nil, errors.New("governor is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	var payload []byte
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = encoded
	}

	var (
		lastStatus int
		lastErr    error
	)
	for attempt := 1; ; attempt++ {
		if err := g.admit(ctx); err != nil {
			return nil, err
		}

		resp, err := g.dispatch(ctx, req, payload)
		var (
			wait   time.Duration
			reason string
		)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastStatus, lastErr = 0, err
			reason = "network"
			wait = g.backoff.Delay(attempt)
		default:
			now := g.now()
			info, hasLimits := ParseLimitHeaders(resp.Header, now, g.cfg.MaxResetWait)
			if hasLimits {
				g.observeLimits(info)
			}
			if fatal := fatalFromBody(resp.Body); fatal != nil {
				return nil, g.latch(fatal)
			}

			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return resp, nil
			case resp.StatusCode == http.StatusTooManyRequests:
				lastStatus, lastErr = resp.StatusCode, rejectionFrom(resp)
				reason = "rate_limited"
				if hasLimits {
					g.backOffBucket(info, now)
				} else {
					wait = g.backoff.Delay(attempt)
				}
			case resp.StatusCode >= 500:
				lastStatus, lastErr = resp.StatusCode, rejectionFrom(resp)
				reason = "server_error"
				wait = g.backoff.Delay(attempt)
			default:
				return nil, rejectionFrom(resp)
			}
		}

		if attempt >= g.cfg.MaxAttempts {
			return nil, &TransientFailure{Attempts: attempt, LastStatus: lastStatus, Err: lastErr}
		}

		g.logger.Debug("Retrying request",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.String("reason", reason),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
		)
		if g.hooks.OnRetry != nil {
			g.hooks.OnRetry(reason, attempt, wait)
		}
		if wait > 0 {
			if err := g.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
}

// Fatal returns the latched fatal error, if any.
func (g *Governor) Fatal() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fatal
}

// State returns a copy of the current rate limit state.
func (g *Governor) State() core.RateLimitState {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := core.RateLimitState{
		Steady:       utcTimes(g.state.Steady),
		Burst:        utcTimes(g.state.Burst),
		BackoffUntil: make(map[string]time.Time, len(g.state.BackoffUntil)),
		Remaining:    g.state.Remaining,
	}
	for k, v := range g.state.BackoffUntil {
		out.BackoffUntil[k] = v.UTC()
	}
	if g.state.Last429At != nil {
		v := g.state.Last429At.UTC()
		out.Last429At = &v
	}
	if g.state.ResetAt != nil {
		v := g.state.ResetAt.UTC()
		out.ResetAt = &v
	}
	return out
}

func utcTimes(in []time.Time) []time.Time {
	if in == nil {
		return nil
	}
	out := make([]time.Time, len(in))
	for i, t := range in {
		out[i] = t.UTC()
	}
	return out
}

// Restore seeds bucket backoffs carried over from a previous run. Entries
// already in the past are ignored; later deadlines win over current ones.
func (g *Governor) Restore(backoffs map[string]time.Time) {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	for bucket, until := range backoffs {
		if !until.After(now) {
			continue
		}
		if current, ok := g.state.BackoffUntil[bucket]; !ok || until.After(current) {
			g.state.BackoffUntil[bucket] = until
		}
	}
}

func (g *Governor) dispatch(ctx context.Context, req Request, payload []byte) (*Response, error) {
	target, err := g.resolve(req)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if g.cfg.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	}
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	if g.hooks.OnDispatch != nil {
		g.hooks.OnDispatch(req.Method, req.Path)
	}
	g.logger.Debug("Dispatching request",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
	)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (g *Governor) resolve(req Request) (string, error) {
	ref, err := url.Parse(strings.TrimLeft(req.Path, "/"))
	if err != nil {
		return "", fmt.Errorf("parse request path: %w", err)
	}
	target := g.baseURL.ResolveReference(ref)
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}
	return target.String(), nil
}

func (g *Governor) observeLimits(info LimitInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Remaining = info.Remaining
	reset := info.ResetAt
	g.state.ResetAt = &reset
}

func (g *Governor) backOffBucket(info LimitInfo, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Last429At = &now
	if current, ok := g.state.BackoffUntil[info.LimitType]; !ok || info.ResetAt.After(current) {
		g.state.BackoffUntil[info.LimitType] = info.ResetAt
	}
}

// latch records the fatal error once and fires the OnFatal hook.
func (g *Governor) latch(fatal *FatalAuthError) error {
	g.mu.Lock()
	first := g.fatal == nil
	if first {
		g.fatal = fmt.Errorf("%w: %w", ErrFatalLatched, fatal)
	}
	latched := g.fatal
	g.mu.Unlock()

	if first {
		g.logger.Error("Fatal identity error, halting all requests",
			zap.Int("code", fatal.Code),
			zap.String("message", fatal.Message),
		)
		if g.hooks.OnFatal != nil {
			g.hooks.OnFatal(fatal)
		}
	}
	return latched
}

func (g *Governor) now() time.Time {
	if g.Clock != nil {
		return g.Clock()
	}
	// Keep the monotonic reading; window arithmetic must not follow wall-clock steps.
	return time.Now()
}

func (g *Governor) sleep(ctx context.Context, d time.Duration) error {
	if g.Sleep != nil {
		return g.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type errorEnvelope struct {
	Error *struct {
		Message string         `json:"message"`
		Code    int            `json:"code"`
		Data    map[string]any `json:"data"`
	} `json:"error"`
}

func parseErrorBody(body []byte) (errorEnvelope, bool) {
	var env errorEnvelope
	if len(body) == 0 || !bytes.Contains(body, []byte(`"error"`)) {
		return env, false
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return env, false
	}
	return env, true
}

func fatalFromBody(body []byte) *FatalAuthError {
	env, ok := parseErrorBody(body)
	if !ok || env.Error.Code != FatalAuthCode {
		return nil
	}
	return &FatalAuthError{Code: env.Error.Code, Message: env.Error.Message}
}

func rejectionFrom(resp *Response) *RequestRejected {
	rejected := &RequestRejected{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	if env, ok := parseErrorBody(resp.Body); ok {
		rejected.Code = env.Error.Code
		rejected.Data = env.Error.Data
		if env.Error.Message != "" {
			rejected.Message = env.Error.Message
		}
	}
	return rejected
}
