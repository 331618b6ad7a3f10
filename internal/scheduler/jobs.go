/**
 * @description
 * Scheduled commission jobs. Each job calls an internal route of the API, which owns
 * the business rules; the scheduler only decides when and for which period.
 */
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ravito/ravito-backend/internal/domain"
)

const jobTimeout = 2 * time.Minute

// APIClient defines the internal API calls made by the jobs.
type APIClient interface {
	SnapshotCommissions(ctx context.Context, period string) error
	SendCommissionReminders(ctx context.Context) error
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	client APIClient
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(client APIClient, logger *slog.Logger, loc *time.Location) *Jobs {
	if loc == nil {
		loc = time.UTC
	}
	return &Jobs{
		client: client,
		logger: logger,
		loc:    loc,
		now:    time.Now,
	}
}

// SnapshotPreviousPeriod saves the pending commission calculations of the month that
// just ended.
func (j *Jobs) SnapshotPreviousPeriod() {
	period := domain.PeriodOf(j.now().In(j.loc)).Previous()
	j.logger.Info("starting commission snapshot job", "period", period.String())

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := j.client.SnapshotCommissions(ctx, period.String()); err != nil {
		j.logger.Error("failed to snapshot commissions", "period", period.String(), "error", err)
		return
	}

	j.logger.Info("commission snapshot job finished", "period", period.String())
}

// SendPaymentReminders asks the API to remind admins of due commission payments.
func (j *Jobs) SendPaymentReminders() {
	j.logger.Info("starting commission reminder job")

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := j.client.SendCommissionReminders(ctx); err != nil {
		j.logger.Error("failed to send commission reminders", "error", err)
		return
	}

	j.logger.Info("commission reminder job finished")
}
