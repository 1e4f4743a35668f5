package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// SchedulerConfig holds configuration for the refresh scheduler.
type SchedulerConfig struct {
	// Cron is a five-field cron expression. Takes precedence over Interval.
	Cron string

	// Interval runs the job every interval when Cron is empty.
	// Default: 15 minutes
	Interval time.Duration

	Job    *RefreshJob
	Logger zerolog.Logger
}

// Scheduler runs the refresh job periodically. Runs never overlap.
type Scheduler struct {
	scheduler *gocron.Scheduler
	job       *RefreshJob
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler registers the refresh job on a UTC scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		job:       cfg.Job,
		logger:    cfg.Logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	var sched *gocron.Scheduler
	if cfg.Cron != "" {
		sched = s.scheduler.Cron(cfg.Cron)
	} else {
		interval := cfg.Interval
		if interval <= 0 {
			interval = 15 * time.Minute
		}
		sched = s.scheduler.Every(interval)
	}

	if _, err := sched.SingletonMode().Do(s.run); err != nil {
		cancel()
		return nil, fmt.Errorf("scheduling favourites refresh: %w", err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	s.logger.Debug().Msg("scheduler: running favourites refresh")
	s.job.Run(s.ctx)
}

// Start starts the scheduler without blocking.
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop cancels an in-flight run and stops future runs.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}
