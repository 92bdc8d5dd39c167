// Package scheduler runs periodic maintenance jobs on gocron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/m3rciful/weatherbot/core/logger"
)

const (
	// JobSweep resets abandoned conversation sessions.
	JobSweep = "state.sweep"
	// JobStats logs preference counters.
	JobStats = "stats.report"
)

// Sweeper drops sessions older than ttl.
type Sweeper interface {
	Sweep(ttl time.Duration) []int64
}

// Counter exposes aggregate preference counters.
type Counter interface {
	CountUsers(ctx context.Context) (int, error)
	CountDistinctCities(ctx context.Context) (int, error)
}

// Options configures New. A job whose collaborator or interval is unset is not scheduled.
type Options struct {
	States   Sweeper
	SweepTTL time.Duration
	Store    Counter

	SweepInterval time.Duration
	StatsInterval time.Duration
}

// Scheduler owns a gocron scheduler and its jobs.
type Scheduler struct {
	cron gocron.Scheduler
	opts Options
}

// New creates the scheduler in UTC and registers the configured jobs.
func New(opts Options) (*Scheduler, error) {
	cron, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(gocronLogger{log: logger.SCHED}),
	)
	if err != nil {
		return nil, fmt.Errorf("scheduler: create: %w", err)
	}
	s := &Scheduler{cron: cron, opts: opts}

	if opts.States != nil && opts.SweepTTL > 0 && opts.SweepInterval > 0 {
		if err := s.add(JobSweep, opts.SweepInterval, func() { s.Sweep() }); err != nil {
			return nil, err
		}
	}
	if opts.Store != nil && opts.StatsInterval > 0 {
		if err := s.add(JobStats, opts.StatsInterval, func() { _ = s.Report(context.Background()) }); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name string, every time.Duration, task func()) error {
	_, err := s.cron.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logger.SCHED.Error("failed to add job",
			slog.String("event", "job.add"),
			slog.String("job", name),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("scheduler: add %s: %w", name, err)
	}
	logger.SCHED.Info("job scheduled",
		slog.String("event", "job.add"),
		slog.String("job", name),
		slog.Duration("interval", every),
	)
	return nil
}

// JobNames lists registered jobs.
func (s *Scheduler) JobNames() []string {
	jobs := s.cron.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

// Run starts the jobs and shuts them down once ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	if err := s.cron.Shutdown(); err != nil && !errors.Is(err, gocron.ErrStopSchedulerTimedOut) {
		return fmt.Errorf("scheduler: shutdown: %w", err)
	}
	return nil
}

// Sweep resets abandoned sessions and returns how many were reset.
func (s *Scheduler) Sweep() int {
	if s.opts.States == nil {
		return 0
	}
	start := time.Now()
	users := s.opts.States.Sweep(s.opts.SweepTTL)
	level := slog.LevelDebug
	if len(users) > 0 {
		level = slog.LevelInfo
	}
	logger.LogEvent(context.Background(), logger.SCHED, level, JobSweep,
		slog.Int("count", len(users)),
		slog.Duration("duration", logger.Took(start)),
	)
	return len(users)
}

// Report logs the user and city counters.
func (s *Scheduler) Report(ctx context.Context) error {
	if s.opts.Store == nil {
		return nil
	}
	users, err := s.opts.Store.CountUsers(ctx)
	if err == nil {
		var cities int
		cities, err = s.opts.Store.CountDistinctCities(ctx)
		if err == nil {
			logger.LogEvent(ctx, logger.SCHED, slog.LevelInfo, JobStats,
				slog.Int("users", users),
				slog.Int("cities", cities),
			)
			return nil
		}
	}
	logger.LogEvent(ctx, logger.SCHED, slog.LevelWarn, JobStats,
		slog.String("status", logger.Status(err)),
		slog.String("err", err.Error()),
	)
	return err
}

// gocronLogger forwards gocron's own diagnostics to the scheduler component logger.
type gocronLogger struct {
	log *slog.Logger
}

func (l gocronLogger) Debug(msg string, args ...any) { l.log.Debug(msg, args...) }
func (l gocronLogger) Info(msg string, args ...any)  { l.log.Info(msg, args...) }
func (l gocronLogger) Warn(msg string, args ...any)  { l.log.Warn(msg, args...) }
func (l gocronLogger) Error(msg string, args ...any) { l.log.Error(msg, args...) }
