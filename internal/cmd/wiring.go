package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/voidhaul/voidhaul/internal/config"
	"github.com/voidhaul/voidhaul/internal/core/api"
	"github.com/voidhaul/voidhaul/internal/core/governor"
	"github.com/voidhaul/voidhaul/internal/core/store"
	"github.com/voidhaul/voidhaul/internal/core/warehouse"
	"github.com/voidhaul/voidhaul/internal/metrics"
	"github.com/voidhaul/voidhaul/internal/observability"
)

// session holds the components every API-facing command shares.
type session struct {
	cfg    *config.Config
	logger observability.Logger
	gov    *governor.Governor
	wh     *warehouse.Warehouse
	client *api.Client
	store  *store.Store
}

// governorConfig maps the typed config onto the governor's.
func governorConfig(cfg *config.Config) governor.Config {
	g := cfg.Governor
	return governor.Config{
		BaseURL:           cfg.Agent.BaseURL,
		Token:             cfg.Agent.Token,
		SteadyLimit:       g.SteadyLimit,
		SteadyWindow:      g.SteadyWindow,
		BurstLimit:        g.BurstLimit,
		BurstWindow:       g.BurstWindow,
		WindowMargin:      g.WindowMargin,
		MaxAttempts:       g.MaxAttempts,
		BackoffBase:       g.BackoffBase,
		BackoffMultiplier: g.BackoffMultiplier,
		BackoffMax:        g.BackoffMax,
		BackoffJitter:     g.BackoffJitter,
		MaxResetWait:      g.MaxResetWait,
		RequestTimeout:    g.RequestTimeout,
	}
}

// governorHooks feeds governor events into metrics. onFatal runs after the
// fatal latch is set.
func governorHooks(onFatal func(error)) governor.Hooks {
	return governor.Hooks{
		OnDispatch: func(method, _ string) {
			metrics.RecordDispatch(method)
		},
		OnRetry: func(reason string, _ int, wait time.Duration) {
			metrics.RecordRetry(reason, wait)
		},
		OnFatal: func(err error) {
			metrics.RecordFatal()
			if onFatal != nil {
				onFatal(err)
			}
		},
	}
}

// openSession builds the governor, warehouse and client. With withStore the
// journal is opened too when the config enables it.
func openSession(ctx context.Context, cfg *config.Config, logger observability.Logger, withStore bool, onFatal func(error)) (*session, error) {
	if err := cfg.RequireToken(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.Nop()
	}

	gov, err := governor.New(governorConfig(cfg),
		governor.WithLogger(logger),
		governor.WithHooks(governorHooks(onFatal)),
	)
	if err != nil {
		return nil, fmt.Errorf("create governor: %w", err)
	}

	s := &session{cfg: cfg, logger: logger, gov: gov, wh: warehouse.New()}

	var journal api.ObservationJournal
	if withStore && cfg.Store.Enabled {
		st, err := openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.store = st
		journal = st
	}
	s.client = api.NewClient(gov, s.wh, journal, logger)
	return s, nil
}

// restore replays recent journal prices into the warehouse and carries
// persisted governor backoffs into the new process.
func (s *session) restore(ctx context.Context) {
	if s.store == nil {
		return
	}
	since := time.Now().Add(-s.cfg.Store.HydrateWindow)
	observations, err := s.store.LoadRecentObservations(ctx, since)
	if err != nil {
		s.logger.Warn("Failed to hydrate warehouse from journal", zap.Error(err))
	} else {
		loaded := 0
		for _, obs := range observations {
			if err := s.wh.RecordObservation(obs); err == nil {
				loaded++
			}
		}
		s.logger.Info("Warehouse hydrated from journal",
			zap.Int("observations", loaded),
			zap.Duration("window", s.cfg.Store.HydrateWindow))
	}

	backoffs, err := s.store.ActiveBackoffs(ctx)
	if err != nil {
		s.logger.Warn("Failed to load persisted rate limit backoffs", zap.Error(err))
		return
	}
	if len(backoffs) > 0 {
		s.gov.Restore(backoffs)
		s.logger.Info("Restored rate limit backoffs", zap.Int("buckets", len(backoffs)))
	}
}

// checkpoint persists the governor's current backoffs.
func (s *session) checkpoint(ctx context.Context) {
	if s.store == nil {
		return
	}
	state := s.gov.State()
	if len(state.BackoffUntil) == 0 {
		return
	}
	if err := s.store.SaveRateLimitState(ctx, state); err != nil {
		s.logger.Warn("Failed to checkpoint rate limit state", zap.Error(err))
	}
}

func (s *session) Close() error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.Close()
}

// openStore opens and migrates the journal.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if !cfg.Store.Enabled {
		return nil, errors.New("journal store is disabled (store.enabled=false)")
	}
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return db, nil
}
