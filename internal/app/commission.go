/**
 * @description
 * Sales-representative commissions: live statistics and estimations per period, the
 * settings singleton and the pending -> validated -> paid payment lifecycle.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ravito/ravito-backend/internal/commission"
	"github.com/ravito/ravito-backend/internal/domain"
	"github.com/ravito/ravito-backend/internal/store"
)

const statsLoadConcurrency = 8

// CommissionRepository defines the storage operations of the commission module.
type CommissionRepository interface {
	GetCommissionSettings(ctx context.Context) (*domain.SalesCommissionSettings, error)
	SaveCommissionSettings(ctx context.Context, s domain.SalesCommissionSettings, actor string) (*domain.SalesCommissionSettings, error)
	ListSalesRepresentatives(ctx context.Context, activeOnly bool) ([]domain.SalesRepresentative, error)
	GetSalesRepresentative(ctx context.Context, repID string) (*domain.SalesRepresentative, error)
	GetSalesRepresentativeByUserID(ctx context.Context, userID string) (*domain.SalesRepresentative, error)
	GetSalesObjective(ctx context.Context, repID string, period domain.Period) (*domain.SalesObjective, error)
	ListSalesObjectives(ctx context.Context, period domain.Period) ([]domain.SalesObjective, error)
	UpsertSalesObjective(ctx context.Context, o domain.SalesObjective) error
	ListAccountActivity(ctx context.Context, repID string, periodStart, periodEnd time.Time) ([]domain.AccountActivity, error)
	GetPayment(ctx context.Context, repID string, period domain.Period) (*domain.SalesCommissionPayment, error)
	GetPaymentByID(ctx context.Context, paymentID string) (*domain.SalesCommissionPayment, error)
	UpsertPendingPayment(ctx context.Context, p domain.SalesCommissionPayment) (*domain.SalesCommissionPayment, error)
	ValidatePendingPayments(ctx context.Context, period domain.Period, actor string, at time.Time) ([]domain.SalesCommissionPayment, error)
	MarkPaymentPaid(ctx context.Context, paymentID, actor string, reference *string, at time.Time) (*domain.SalesCommissionPayment, error)
	ListPaymentsByPeriod(ctx context.Context, period domain.Period) ([]domain.SalesCommissionPayment, error)
	ListPaymentsByRep(ctx context.Context, repID string) ([]domain.SalesCommissionPayment, error)
	ListDueValidatedPayments(ctx context.Context, day time.Time) ([]domain.SalesCommissionPayment, error)
	ListUserIDsByRole(ctx context.Context, role domain.UserRole) ([]string, error)
}

// SettingsCache keeps the commission settings singleton.
type SettingsCache interface {
	GetSettings(ctx context.Context) (*domain.SalesCommissionSettings, error)
	SetSettings(ctx context.Context, settings domain.SalesCommissionSettings) error
	DeleteSettings(ctx context.Context) error
}

// CommissionService computes and persists sales-representative commissions.
type CommissionService struct {
	repo     CommissionRepository
	cache    SettingsCache
	notifier Notifier
	events   events
	loc      *time.Location
	now      func() time.Time
}

// NewCommissionService creates the commission service. cache and notifier may be nil.
func NewCommissionService(repo CommissionRepository, cache SettingsCache, notifier Notifier, publisher EventPublisher, exchange, timezone string) *CommissionService {
	return &CommissionService{
		repo:     repo,
		cache:    cache,
		notifier: notifier,
		events:   events{publisher: publisher, exchange: exchange},
		loc:      loadLocation(timezone),
		now:      time.Now,
	}
}

// SnapshotResult summarizes a period-wide calculation save.
type SnapshotResult struct {
	Period domain.Period `json:"period"`
	Saved  int           `json:"saved"`
	Locked int           `json:"locked"`
	Failed int           `json:"failed"`
}

// ReminderResult summarizes a payment reminder run.
type ReminderResult struct {
	DuePayments int   `json:"due_payments"`
	TotalDue    int64 `json:"total_due"`
	Notified    int   `json:"notified"`
}

// CurrentPeriod is the calendar month containing now in the business timezone.
func (s *CommissionService) CurrentPeriod() domain.Period {
	return domain.PeriodOf(s.now().In(s.loc))
}

// Settings returns the commission settings, from cache when possible.
func (s *CommissionService) Settings(ctx context.Context) (*domain.SalesCommissionSettings, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetSettings(ctx); err == nil {
			return cached, nil
		}
	}

	settings, err := s.repo.GetCommissionSettings(ctx)
	if err != nil {
		if errors.Is(err, store.ErrSettingsNotFound) {
			return nil, commission.ErrConfigurationMissing
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetSettings(ctx, *settings); err != nil {
			log.Printf("level=warn component=commission msg=\"settings cache write failed\" err=%v", err)
		}
	}
	return settings, nil
}

// UpdateSettings merges patch into the stored settings after validating every field.
// The first save starts from zero values, so it must carry a complete configuration.
func (s *CommissionService) UpdateSettings(ctx context.Context, patch commission.SettingsPatch, actor domain.Actor) (*domain.SalesCommissionSettings, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: settings patch is empty", ErrInvalidInput)
	}

	var base domain.SalesCommissionSettings
	current, err := s.repo.GetCommissionSettings(ctx)
	switch {
	case err == nil:
		base = *current
	case errors.Is(err, store.ErrSettingsNotFound):
	default:
		return nil, err
	}

	merged, err := commission.Merge(base, patch)
	if err != nil {
		return nil, err
	}

	saved, err := s.repo.SaveCommissionSettings(ctx, merged, actor.UserID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.DeleteSettings(ctx); err != nil {
			log.Printf("level=warn component=commission msg=\"settings cache evict failed\" err=%v", err)
		}
	}
	return saved, nil
}

// PeriodStats returns the ranked activity of every active representative.
func (s *CommissionService) PeriodStats(ctx context.Context, period domain.Period) ([]domain.CommercialActivityStats, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return s.rankedStats(ctx, period, settings)
}

func (s *CommissionService) rankedStats(ctx context.Context, period domain.Period, settings *domain.SalesCommissionSettings) ([]domain.CommercialActivityStats, error) {
	reps, err := s.repo.ListSalesRepresentatives(ctx, true)
	if err != nil {
		return nil, err
	}
	objectives, err := s.repo.ListSalesObjectives(ctx, period)
	if err != nil {
		return nil, err
	}
	byRep := make(map[string]*domain.SalesObjective, len(objectives))
	for i := range objectives {
		byRep[objectives[i].SalesRepID] = &objectives[i]
	}

	start, end := period.Start(s.loc), period.End(s.loc)
	stats := make([]domain.CommercialActivityStats, len(reps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statsLoadConcurrency)
	for i, rep := range reps {
		g.Go(func() error {
			accounts, err := s.repo.ListAccountActivity(gctx, rep.ID, start, end)
			if err != nil {
				return fmt.Errorf("failed to load activity of representative %s: %w", rep.ID, err)
			}
			repStats, err := commission.BuildStats(rep, accounts, byRep[rep.ID], period, settings, s.loc)
			if err != nil {
				return err
			}
			stats[i] = repStats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return commission.RankRepresentatives(stats), nil
}

// PeriodOverview returns every active representative's stats, estimation and saved
// payment for the period, in ranking order.
func (s *CommissionService) PeriodOverview(ctx context.Context, period domain.Period) ([]domain.CommissionOverview, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	ranked, err := s.rankedStats(ctx, period, settings)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPaymentsByPeriod(ctx, period)
	if err != nil {
		return nil, err
	}
	byRep := make(map[string]*domain.SalesCommissionPayment, len(payments))
	for i := range payments {
		byRep[payments[i].SalesRepID] = &payments[i]
	}

	overviews := make([]domain.CommissionOverview, 0, len(ranked))
	for _, stats := range ranked {
		est, err := commission.EstimateChecked(stats, settings, period, s.loc)
		if err != nil {
			return nil, fmt.Errorf("representative %s: %w", stats.SalesRepID, err)
		}
		overviews = append(overviews, domain.CommissionOverview{Stats: stats, Estimation: est, Payment: byRep[stats.SalesRepID]})
	}
	return overviews, nil
}

// RepOverview returns one representative's stats, estimation and saved payment.
func (s *CommissionService) RepOverview(ctx context.Context, repID string, period domain.Period) (*domain.CommissionOverview, error) {
	rep, err := s.repo.GetSalesRepresentative(ctx, repID)
	if err != nil {
		return nil, err
	}
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return s.overview(ctx, *rep, period, settings)
}

// MyOverview resolves the signed-in representative and returns their overview.
func (s *CommissionService) MyOverview(ctx context.Context, actor domain.Actor, period domain.Period) (*domain.CommissionOverview, error) {
	rep, err := s.repo.GetSalesRepresentativeByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return s.overview(ctx, *rep, period, settings)
}

// MyPayments lists the signed-in representative's payments.
func (s *CommissionService) MyPayments(ctx context.Context, actor domain.Actor) ([]domain.SalesCommissionPayment, error) {
	rep, err := s.repo.GetSalesRepresentativeByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPaymentsByRep(ctx, rep.ID)
}

func (s *CommissionService) overview(ctx context.Context, rep domain.SalesRepresentative, period domain.Period, settings *domain.SalesCommissionSettings) (*domain.CommissionOverview, error) {
	ranked, err := s.rankedStats(ctx, period, settings)
	if err != nil {
		return nil, err
	}

	stats, found := findStats(ranked, rep.ID)
	if !found {
		// Inactive representatives are not ranked but still get their figures.
		start, end := period.Start(s.loc), period.End(s.loc)
		accounts, err := s.repo.ListAccountActivity(ctx, rep.ID, start, end)
		if err != nil {
			return nil, err
		}
		objective, err := s.repo.GetSalesObjective(ctx, rep.ID, period)
		if err != nil {
			return nil, err
		}
		stats, err = commission.BuildStats(rep, accounts, objective, period, settings, s.loc)
		if err != nil {
			return nil, err
		}
	}

	est, err := commission.EstimateChecked(stats, settings, period, s.loc)
	if err != nil {
		return nil, err
	}

	payment, err := s.repo.GetPayment(ctx, rep.ID, period)
	if err != nil && !errors.Is(err, store.ErrPaymentNotFound) {
		return nil, err
	}

	return &domain.CommissionOverview{Stats: stats, Estimation: est, Payment: payment}, nil
}

func findStats(ranked []domain.CommercialActivityStats, repID string) (domain.CommercialActivityStats, bool) {
	for _, stats := range ranked {
		if stats.SalesRepID == repID {
			return stats, true
		}
	}
	return domain.CommercialActivityStats{}, false
}

// SetObjective creates or replaces a representative's objective for a period.
func (s *CommissionService) SetObjective(ctx context.Context, actor domain.Actor, o domain.SalesObjective) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if _, err := domain.NewPeriod(o.Year, o.Month); err != nil {
		return err
	}
	if o.ObjectiveChr < 0 || o.ObjectiveDepots < 0 {
		return fmt.Errorf("%w: objectives cannot be negative", ErrInvalidInput)
	}
	if _, err := s.repo.GetSalesRepresentative(ctx, o.SalesRepID); err != nil {
		return err
	}
	return s.repo.UpsertSalesObjective(ctx, o)
}

// SaveCalculation freezes the representative's current estimation for the period into
// a pending payment. Once validated or paid the stored payment can no longer change.
func (s *CommissionService) SaveCalculation(ctx context.Context, repID string, period domain.Period, actor domain.Actor) (*domain.SalesCommissionPayment, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	existing, err := s.repo.GetPayment(ctx, repID, period)
	switch {
	case err == nil:
		if existing.Status != domain.PaymentPending {
			return nil, ErrPaymentLocked
		}
	case errors.Is(err, store.ErrPaymentNotFound):
	default:
		return nil, err
	}

	rep, err := s.repo.GetSalesRepresentative(ctx, repID)
	if err != nil {
		return nil, err
	}
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	overview, err := s.overview(ctx, *rep, period, settings)
	if err != nil {
		return nil, err
	}

	saved, err := s.savePending(ctx, *overview, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, *saved, rep, actor.UserID)
	return saved, nil
}

func (s *CommissionService) savePending(ctx context.Context, overview domain.CommissionOverview, actorID string) (*domain.SalesCommissionPayment, error) {
	payment := domain.NewPaymentFromEstimation(overview.Stats, overview.Estimation, actorID)

	saved, err := s.repo.UpsertPendingPayment(ctx, payment)
	if errors.Is(err, store.ErrPaymentStatusConflict) {
		return nil, ErrPaymentLocked
	}
	return saved, err
}

// SnapshotPeriod saves a pending calculation for every active representative. Payments
// already validated or paid are left untouched and counted as locked.
func (s *CommissionService) SnapshotPeriod(ctx context.Context, period domain.Period, actor domain.Actor) (*SnapshotResult, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	overviews, err := s.PeriodOverview(ctx, period)
	if err != nil {
		return nil, err
	}

	result := &SnapshotResult{Period: period}
	for _, overview := range overviews {
		if overview.Payment != nil && overview.Payment.Status != domain.PaymentPending {
			result.Locked++
			continue
		}
		saved, err := s.savePending(ctx, overview, actor.UserID)
		switch {
		case err == nil:
			result.Saved++
			s.announce(ctx, *saved, s.representative(ctx, saved.SalesRepID), actor.UserID)
		case errors.Is(err, ErrPaymentLocked):
			result.Locked++
		default:
			log.Printf("level=error component=commission msg=\"snapshot save failed\" rep_id=%s period=%s err=%v", overview.Stats.SalesRepID, period, err)
			result.Failed++
		}
	}

	log.Printf("level=info component=commission msg=\"period snapshot\" period=%s saved=%d locked=%d failed=%d", period, result.Saved, result.Locked, result.Failed)
	return result, nil
}

// ValidatePeriod moves every pending payment of the period to validated at once.
func (s *CommissionService) ValidatePeriod(ctx context.Context, period domain.Period, actor domain.Actor) ([]domain.SalesCommissionPayment, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	validated, err := s.repo.ValidatePendingPayments(ctx, period, actor.UserID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if len(validated) == 0 {
		return nil, ErrNothingToValidate
	}

	for _, payment := range validated {
		s.announce(ctx, payment, s.representative(ctx, payment.SalesRepID), actor.UserID)
	}
	return validated, nil
}

// MarkPaid records the payout of a validated payment.
func (s *CommissionService) MarkPaid(ctx context.Context, paymentID string, reference *string, actor domain.Actor) (*domain.SalesCommissionPayment, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	paid, err := s.repo.MarkPaymentPaid(ctx, paymentID, actor.UserID, reference, s.now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrPaymentStatusConflict) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}

	s.announce(ctx, *paid, s.representative(ctx, paid.SalesRepID), actor.UserID)
	return paid, nil
}

// GetPayment loads one payment.
func (s *CommissionService) GetPayment(ctx context.Context, paymentID string) (*domain.SalesCommissionPayment, error) {
	return s.repo.GetPaymentByID(ctx, paymentID)
}

// ListPayments returns the period's payments.
func (s *CommissionService) ListPayments(ctx context.Context, period domain.Period) ([]domain.SalesCommissionPayment, error) {
	return s.repo.ListPaymentsByPeriod(ctx, period)
}

// ListRepPayments returns a representative's payments.
func (s *CommissionService) ListRepPayments(ctx context.Context, repID string) ([]domain.SalesCommissionPayment, error) {
	if _, err := s.repo.GetSalesRepresentative(ctx, repID); err != nil {
		return nil, err
	}
	return s.repo.ListPaymentsByRep(ctx, repID)
}

// SendPaymentReminders notifies every admin of validated payments due today or earlier.
func (s *CommissionService) SendPaymentReminders(ctx context.Context) (*ReminderResult, error) {
	today := startOfDay(s.now(), s.loc)
	due, err := s.repo.ListDueValidatedPayments(ctx, today)
	if err != nil {
		return nil, err
	}

	result := &ReminderResult{DuePayments: len(due)}
	if len(due) == 0 {
		return result, nil
	}
	for _, p := range due {
		result.TotalDue += p.TotalAmount
	}

	admins, err := s.repo.ListUserIDsByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	for _, adminID := range admins {
		if s.notifier == nil {
			break
		}
		_, err := s.notifier.Notify(ctx, domain.Notification{
			UserID:  adminID,
			Type:    domain.NotificationCommissionReminder,
			Title:   "Commissions à payer",
			Message: fmt.Sprintf("%d commission(s) validée(s) à payer, total %d FCFA.", len(due), result.TotalDue),
			Data: map[string]interface{}{
				"due_payments": len(due),
				"total_due":    result.TotalDue,
			},
		})
		if err != nil {
			log.Printf("level=warn component=commission msg=\"reminder failed\" user_id=%s err=%v", adminID, err)
			continue
		}
		result.Notified++
	}
	return result, nil
}

func (s *CommissionService) paymentEvent(p domain.SalesCommissionPayment, actorID string) domain.CommissionPaymentEvent {
	return domain.CommissionPaymentEvent{
		PaymentID:   p.ID,
		SalesRepID:  p.SalesRepID,
		Period:      p.Period(),
		Status:      p.Status,
		TotalAmount: p.TotalAmount,
		Actor:       actorID,
		Timestamp:   s.now().UTC(),
	}
}

// representative loads the recipient of a lifecycle notification. A failed lookup only
// costs the notification.
func (s *CommissionService) representative(ctx context.Context, repID string) *domain.SalesRepresentative {
	rep, err := s.repo.GetSalesRepresentative(ctx, repID)
	if err != nil {
		log.Printf("level=warn component=commission msg=\"representative lookup failed\" rep_id=%s err=%v", repID, err)
		return nil
	}
	return rep
}

// announce publishes the lifecycle event of p and notifies its representative.
func (s *CommissionService) announce(ctx context.Context, p domain.SalesCommissionPayment, rep *domain.SalesRepresentative, actorID string) {
	var (
		routingKey string
		n          domain.Notification
	)
	switch p.Status {
	case domain.PaymentPending:
		routingKey = domain.EventCommissionSaved
		n = domain.Notification{
			Type:    domain.NotificationCommissionSaved,
			Title:   "Commission calculée",
			Message: fmt.Sprintf("Votre commission de %s est estimée à %d FCFA.", p.Period(), p.TotalAmount),
		}
	case domain.PaymentValidated:
		routingKey = domain.EventCommissionValidated
		n = domain.Notification{
			Type:    domain.NotificationCommissionValidated,
			Title:   "Commission validée",
			Message: fmt.Sprintf("Votre commission de %s (%d FCFA) est validée, paiement prévu le %s.", p.Period(), p.TotalAmount, p.PaymentDate.Format("02/01/2006")),
		}
	case domain.PaymentPaid:
		routingKey = domain.EventCommissionPaid
		n = domain.Notification{
			Type:    domain.NotificationCommissionPaid,
			Title:   "Commission payée",
			Message: fmt.Sprintf("Votre commission de %s (%d FCFA) a été payée.", p.Period(), p.TotalAmount),
		}
	default:
		return
	}

	s.events.publish(ctx, routingKey, s.paymentEvent(p, actorID))

	if rep == nil || rep.UserID == nil {
		return
	}
	n.UserID = *rep.UserID
	n.Data = map[string]interface{}{
		"payment_id": p.ID,
		"period":     p.Period().String(),
		"amount":     p.TotalAmount,
	}
	notify(ctx, s.notifier, n)
}
