package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/voidhaul/voidhaul/internal/config"
	"github.com/voidhaul/voidhaul/internal/core/engine"
	"github.com/voidhaul/voidhaul/internal/metrics"
	"github.com/voidhaul/voidhaul/internal/observability"
	"github.com/voidhaul/voidhaul/internal/output"
	"github.com/voidhaul/voidhaul/internal/scheduler"
	"github.com/voidhaul/voidhaul/internal/server"
	"github.com/voidhaul/voidhaul/internal/server/handlers"
)

var runServe bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the fleet automation loops",
	Long: `Run one control loop per ship until interrupted.

Excavators mine and sell, satellites survey markets, command ships and haulers
idle. All loops share one request governor and one warehouse. A fatal identity
error (code 4113) stops every loop and exits non-zero.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: stop loops, checkpoint, exit
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: re-validate the config file`,
	RunE: runFleet,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runServe, "serve", false, "also start the HTTP status server (same as server.enabled=true)")
}

func runLogger(cfg *config.Config) observability.Logger {
	if strings.EqualFold(cfg.Logging.Profile, "simple") {
		return observability.CLILogger
	}
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	observability.InitServerLogger(config.AppName, level, config.AppName)
	return observability.ServerLogger
}

func runFleet(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireToken(); err != nil {
		return err
	}

	logger := runLogger(cfg)
	runID := uuid.New().String()
	logger.Info("Starting voidhaul",
		zap.String("run_id", runID),
		zap.String("version", versionInfo.Version),
		zap.String("base_url", cfg.Agent.BaseURL))

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port); err != nil {
			logger.Warn("Failed to initialize metrics exporter", zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sess, err := openSession(ctx, cfg, logger, true, func(err error) {
		logger.Error("Fatal identity error, stopping every ship loop", zap.Error(err))
		cancel()
	})
	if err != nil {
		return err
	}
	sess.restore(ctx)

	recorders := engine.TradeRecorders{}
	if sess.store != nil {
		recorders = append(recorders, sess.store)
	}
	var tradeLog *output.TradeLog
	if cfg.TradeLog.Enabled {
		tradeLog, err = output.OpenTradeLog(cfg.TradeLog.Path)
		if err != nil {
			_ = sess.Close()
			return err
		}
		recorders = append(recorders, tradeLog)
		logger.Info("Trade log enabled", zap.String("path", cfg.TradeLog.Path))
	}

	fleet := engine.NewFleet(sess.client, sess.wh, recorders, logger, engine.Config{
		PollInterval: cfg.Engine.PollInterval,
		ErrorBackoff: cfg.Engine.ErrorBackoff,
		IdleInterval: cfg.Engine.ResyncInterval,
		SurveyMaxAge: cfg.Engine.SurveyMaxAge,
		Jettison:     cfg.Engine.Jettison,
	})

	sched := scheduler.New(logger)
	if err := registerJobs(sched, cfg, sess, logger); err != nil {
		_ = sess.Close()
		return err
	}
	sched.Start(ctx)

	var srv *server.Server
	if cfg.Server.Enabled || runServe {
		srv = startStatusServer(cfg, sess, fleet, logger)
	}

	done := make(chan struct{})
	var once sync.Once
	shutdown := func() {
		once.Do(func() {
			sched.Stop()
			checkpointCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			sess.checkpoint(checkpointCtx)
			stop()
			if srv != nil {
				timeout := cfg.Server.ShutdownTimeout
				if timeout <= 0 {
					timeout = 10 * time.Second
				}
				shutdownCtx, stop := context.WithTimeout(context.Background(), timeout)
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Warn("HTTP server shutdown failed", zap.Error(err))
				}
				stop()
			}
			if tradeLog != nil {
				_ = tradeLog.Close()
			}
			_ = sess.Close()
			close(done)
		})
	}
	installSignalHandlers(ctx, cancel, done, logger)

	runErr := fleet.Run(ctx)
	cancel()
	shutdown()

	if fatal := sess.gov.Fatal(); fatal != nil {
		return fatal
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	logger.Info("voidhaul stopped", zap.String("run_id", runID))
	return nil
}

func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, sess *session, logger observability.Logger) error {
	jobs := []struct {
		spec string
		job  scheduler.Job
	}{
		{cfg.Scheduler.FleetSync, &scheduler.FleetSyncJob{API: sess.client, Logger: logger}},
		{cfg.Scheduler.Stats, &scheduler.StatsJob{Warehouse: sess.wh}},
	}
	if sess.store != nil {
		jobs = append(jobs,
			struct {
				spec string
				job  scheduler.Job
			}{cfg.Scheduler.Retention, &scheduler.RetentionJob{Store: sess.store, Logger: logger}},
			struct {
				spec string
				job  scheduler.Job
			}{cfg.Scheduler.Checkpoint, &scheduler.CheckpointJob{Source: sess.gov, Sink: sess.store}},
		)
	}
	for _, j := range jobs {
		if err := sched.AddJob(j.spec, j.job); err != nil {
			return err
		}
	}
	return nil
}

func startStatusServer(cfg *config.Config, sess *session, fleet *engine.Fleet, logger observability.Logger) *server.Server {
	hm := handlers.NewHealthManager(versionInfo.Version)
	hm.RegisterChecker("governor", handlers.GovernorChecker(sess.gov))
	status := &handlers.StatusHandler{
		Fleet:     fleet,
		Warehouse: sess.wh,
		Governor:  sess.gov,
	}
	if sess.store != nil {
		hm.RegisterChecker("store", handlers.PingChecker(sess.store.DB))
		status.Journal = sess.store
	}

	srv := server.New(cfg.Server, server.Deps{
		Health:     hm,
		Status:     status,
		AdminToken: os.Getenv(config.EnvPrefix + "_ADMIN_TOKEN"),
	})
	metrics.SetServerStartTime(time.Now().Unix())

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()
	logger.Info("Status server listening", zap.String("addr", srv.Addr()))
	return srv
}

// installSignalHandlers stops the loops on SIGINT/SIGTERM and waits for the
// shutdown sequence to finish before the signal package exits.
func installSignalHandlers(ctx context.Context, cancel context.CancelFunc, done <-chan struct{}, logger observability.Logger) {
	signals.OnShutdown(func(sctx context.Context) error {
		logger.Info("Shutdown requested, stopping ship loops")
		cancel()
		select {
		case <-done:
		case <-sctx.Done():
		}
		return nil
	})

	signals.OnReload(func(context.Context) error {
		logger.Info("Received SIGHUP: re-validating configuration")
		if _, err := config.ReadFile(viper.GetViper()); err != nil {
			logger.Error("Failed to re-read config file", zap.Error(err))
			return err
		}
		if _, err := loadConfig(); err != nil {
			logger.Error("Configuration is invalid", zap.Error(err))
			return err
		}
		logger.Info("Configuration is valid; restart to apply changes")
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	go func() {
		if err := signals.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Signal handler error", zap.Error(err))
		}
	}()
}
