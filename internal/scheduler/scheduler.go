package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ravito/ravito-backend/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.SchedulerConfig
}

// NewScheduler creates a scheduler evaluating cron expressions in loc.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.SchedulerConfig, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler. It returns the number of
// jobs that were scheduled.
func (s *Scheduler) Start() int {
	scheduled := 0
	if _, err := s.cron.AddFunc(s.config.CommissionSnapshotSchedule, s.jobs.SnapshotPreviousPeriod); err != nil {
		s.logger.Error("failed to schedule commission snapshot job", "error", err)
	} else {
		scheduled++
		s.logger.Info("scheduled commission snapshot job", "schedule", s.config.CommissionSnapshotSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.CommissionReminderSchedule, s.jobs.SendPaymentReminders); err != nil {
		s.logger.Error("failed to schedule commission reminder job", "error", err)
	} else {
		scheduled++
		s.logger.Info("scheduled commission reminder job", "schedule", s.config.CommissionReminderSchedule)
	}

	s.cron.Start()
	return scheduled
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
