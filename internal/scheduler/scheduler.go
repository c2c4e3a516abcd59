// Package scheduler runs periodic maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/voidhaul/voidhaul/internal/metrics"
	"github.com/voidhaul/voidhaul/internal/observability"
)

// Job represents a scheduled job
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler manages background jobs. A job that is still running when its
// next tick arrives is skipped for that tick.
type Scheduler struct {
	cron *cron.Cron
	log  observability.Logger

	mu  sync.Mutex
	ctx context.Context
}

// New creates a new scheduler
func New(log observability.Logger) *Scheduler {
	if log == nil {
		log = observability.Nop()
	}
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:  log,
		ctx:  context.Background(),
	}
}

// Start starts the scheduler. Jobs receive ctx and stop scheduling once it is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info("Scheduler started", zap.Int("jobs", len(s.cron.Entries())))

	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	<-done.Done()
	s.log.Info("Scheduler stopped")
}

// AddJob registers a job. An empty schedule disables it.
// Schedule examples:
//   - "@hourly"            - Every hour
//   - "@every 30s"         - Every 30 seconds
//   - "*/5 * * * *"        - Every 5 minutes
func (s *Scheduler) AddJob(schedule string, job Job) error {
	if job == nil {
		return errors.New("job is required")
	}
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		s.log.Debug("Job disabled", zap.String("job", job.Name()))
		return nil
	}

	_, err := s.cron.AddFunc(schedule, func() {
		_ = s.execute(s.context(), job)
	})
	if err != nil {
		return err
	}

	s.log.Info("Job registered",
		zap.String("schedule", schedule),
		zap.String("job", job.Name()),
	)
	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(ctx context.Context, job Job) error {
	s.log.Info("Running job immediately", zap.String("job", job.Name()))
	return s.execute(ctx, job)
}

func (s *Scheduler) execute(ctx context.Context, job Job) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	start := time.Now()
	s.log.Debug("Running job", zap.String("job", job.Name()))

	err := job.Run(ctx)
	metrics.RecordJobRun(job.Name(), err == nil)
	if err != nil {
		s.log.Error("Job failed",
			zap.String("job", job.Name()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return err
	}
	s.log.Debug("Job completed", zap.String("job", job.Name()), zap.Duration("duration", time.Since(start)))
	return nil
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}
