// Package scheduler runs the reconciliation sweeps in-process on fixed
// intervals. It is optional: deployments that trigger sweeps from an external
// cron through the HTTP endpoints or the CLI leave it disabled.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/consult-booking/internal/config"
	"github.com/tbourn/consult-booking/internal/services"
)

// Runner executes one sweep by name.
type Runner interface {
	Run(ctx context.Context, name string) (services.SweepResult, error)
}

// Job is one sweep and how often it runs.
type Job struct {
	Sweep    string
	Interval time.Duration
}

// JobsFromConfig returns the three sweeps with their configured intervals.
func JobsFromConfig(cfg config.SweepConfig) []Job {
	return []Job{
		{Sweep: services.SweepAbandoned, Interval: cfg.AbandonedInterval},
		{Sweep: services.SweepIncomplete, Interval: cfg.IncompleteInterval},
		{Sweep: services.SweepReminders, Interval: cfg.ReminderInterval},
	}
}

// Scheduler owns one ticker goroutine per job. A job never overlaps with
// itself; different jobs may run concurrently, which the sweeps tolerate
// because every write they make is conditional.
type Scheduler struct {
	runner Runner
	jobs   []Job
	logger zerolog.Logger
	wg     sync.WaitGroup
}

// New builds a Scheduler. Jobs with a non-positive interval are dropped.
func New(r Runner, jobs ...Job) *Scheduler {
	s := &Scheduler{runner: r, logger: log.Logger.With().Str("component", "scheduler").Logger()}
	for _, j := range jobs {
		if j.Interval > 0 {
			s.jobs = append(s.jobs, j)
		}
	}
	return s
}

// Start launches the jobs and returns immediately. Each job runs once right
// away and then on every tick until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
}

// Wait blocks until every job loop has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	s.runOnce(ctx, j)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Str("sweep", j.Sweep).Msg("scheduler job stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx, j)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j Job) {
	l := s.logger.With().Str("sweep", j.Sweep).Logger()
	ctx = l.WithContext(ctx)

	start := time.Now()
	res, err := s.runner.Run(ctx, j.Sweep)
	if err != nil {
		l.Error().Err(err).Msg("scheduled sweep failed")
		return
	}
	l.Debug().
		Int("processed", res.Processed).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Dur("took", time.Since(start)).
		Msg("scheduled sweep done")
}
