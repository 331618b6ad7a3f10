package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ravito/ravito-backend/internal/domain"
)

const defaultTransactionPageSize = 50

// CreditRepository defines the credit ledger storage operations.
type CreditRepository interface {
	ListCreditCustomers(ctx context.Context, orgID string, filter domain.CreditCustomerFilter) ([]domain.CreditCustomer, error)
	GetCreditCustomer(ctx context.Context, customerID string) (*domain.CreditCustomer, error)
	InsertCreditCustomer(ctx context.Context, orgID string, in domain.CreditCustomerInput) (*domain.CreditCustomer, error)
	SetCreditCustomerStatus(ctx context.Context, customerID string, status domain.CreditStatus, reason *string, at time.Time) (*domain.CreditCustomer, error)
	ApplyCreditMovement(
		ctx context.Context,
		customerID string,
		txType domain.CreditTransactionType,
		amount int64,
		notes *string,
		actor string,
		apply func(domain.CreditCustomer) (int64, error),
	) (*domain.CreditTransaction, *domain.CreditCustomer, error)
	ListCreditTransactions(ctx context.Context, customerID string, limit, offset int) ([]domain.CreditTransaction, error)
	SumCreditTransactions(ctx context.Context, orgID string, from, to time.Time) (domain.DailyCreditTotals, error)
}

// CreditService manages the credit accounts of an establishment.
type CreditService struct {
	repo     CreditRepository
	notifier Notifier
	events   events
	loc      *time.Location
	now      func() time.Time
}

// NewCreditService creates the credit ledger service.
func NewCreditService(repo CreditRepository, notifier Notifier, publisher EventPublisher, exchange, timezone string) *CreditService {
	return &CreditService{
		repo:     repo,
		notifier: notifier,
		events:   events{publisher: publisher, exchange: exchange},
		loc:      loadLocation(timezone),
		now:      time.Now,
	}
}

// CreditMovement is the outcome of a consumption or payment.
type CreditMovement struct {
	Transaction domain.CreditTransaction `json:"transaction"`
	Customer    domain.CreditCustomer    `json:"customer"`
}

// ConsumptionBalance returns the balance after consuming amount, enforcing the frozen
// status and the credit limit. A zero limit means no limit.
func ConsumptionBalance(c domain.CreditCustomer, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if c.Status == domain.CreditFrozen {
		return 0, ErrCustomerFrozen
	}
	next := c.CurrentBalance + amount
	if c.CreditLimit > 0 && next > c.CreditLimit {
		return 0, fmt.Errorf("%w: balance would reach %d for a limit of %d", ErrCreditLimitExceeded, next, c.CreditLimit)
	}
	return next, nil
}

// PaymentBalance returns the balance after a repayment of amount. Payments are accepted
// from frozen customers but may not exceed what is owed.
func PaymentBalance(c domain.CreditCustomer, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if amount > c.CurrentBalance {
		return 0, fmt.Errorf("%w: outstanding balance is %d", ErrOverpayment, c.CurrentBalance)
	}
	return c.CurrentBalance - amount, nil
}

// ListCustomers returns the actor's organization customers.
func (s *CreditService) ListCustomers(ctx context.Context, actor domain.Actor, filter domain.CreditCustomerFilter) ([]domain.CreditCustomer, error) {
	if actor.OrganizationID == nil {
		return nil, ErrNoOrganization
	}
	return s.repo.ListCreditCustomers(ctx, *actor.OrganizationID, filter)
}

// CreateCustomer opens a credit account with a zero balance.
func (s *CreditService) CreateCustomer(ctx context.Context, actor domain.Actor, in domain.CreditCustomerInput) (*domain.CreditCustomer, error) {
	if actor.OrganizationID == nil {
		return nil, ErrNoOrganization
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.CreditLimit < 0 {
		return nil, fmt.Errorf("%w: credit limit cannot be negative", ErrInvalidInput)
	}
	return s.repo.InsertCreditCustomer(ctx, *actor.OrganizationID, in)
}

// GetCustomer loads a customer of the actor's organization.
func (s *CreditService) GetCustomer(ctx context.Context, actor domain.Actor, customerID string) (*domain.CreditCustomer, error) {
	customer, err := s.repo.GetCreditCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessOrganization(customer.OrganizationID) {
		return nil, ErrForbidden
	}
	return customer, nil
}

// RecordConsumption charges amount to the customer's account.
func (s *CreditService) RecordConsumption(ctx context.Context, actor domain.Actor, customerID string, amount int64, notes *string) (*CreditMovement, error) {
	return s.record(ctx, actor, customerID, domain.CreditConsumption, amount, notes, ConsumptionBalance)
}

// RecordPayment credits a repayment to the customer's account.
func (s *CreditService) RecordPayment(ctx context.Context, actor domain.Actor, customerID string, amount int64, notes *string) (*CreditMovement, error) {
	return s.record(ctx, actor, customerID, domain.CreditPayment, amount, notes, PaymentBalance)
}

func (s *CreditService) record(
	ctx context.Context,
	actor domain.Actor,
	customerID string,
	txType domain.CreditTransactionType,
	amount int64,
	notes *string,
	rule func(domain.CreditCustomer, int64) (int64, error),
) (*CreditMovement, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := s.GetCustomer(ctx, actor, customerID); err != nil {
		return nil, err
	}

	tx, customer, err := s.repo.ApplyCreditMovement(ctx, customerID, txType, amount, notes, actor.UserID, func(locked domain.CreditCustomer) (int64, error) {
		return rule(locked, amount)
	})
	if err != nil {
		return nil, err
	}
	return &CreditMovement{Transaction: *tx, Customer: *customer}, nil
}

// FreezeCustomer blocks further consumptions.
func (s *CreditService) FreezeCustomer(ctx context.Context, actor domain.Actor, customerID, reason string) (*domain.CreditCustomer, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: a freeze reason is required", ErrInvalidInput)
	}
	if _, err := s.GetCustomer(ctx, actor, customerID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	customer, err := s.repo.SetCreditCustomerStatus(ctx, customerID, domain.CreditFrozen, &reason, now)
	if err != nil {
		return nil, err
	}

	s.events.publish(ctx, domain.EventCreditCustomerFrozen, domain.CreditCustomerFrozenEvent{
		CustomerID:     customer.ID,
		OrganizationID: customer.OrganizationID,
		Balance:        customer.CurrentBalance,
		Reason:         reason,
		Actor:          actor.UserID,
		Timestamp:      now,
	})
	notify(ctx, s.notifier, domain.Notification{
		UserID:  actor.UserID,
		Type:    domain.NotificationCreditFrozen,
		Title:   "Compte crédit gelé",
		Message: fmt.Sprintf("Le compte de %s est gelé (solde %d FCFA).", customer.Name, customer.CurrentBalance),
		Data: map[string]interface{}{
			"customer_id": customer.ID,
			"reason":      reason,
		},
	})

	return customer, nil
}

// UnfreezeCustomer allows consumptions again.
func (s *CreditService) UnfreezeCustomer(ctx context.Context, actor domain.Actor, customerID string) (*domain.CreditCustomer, error) {
	if _, err := s.GetCustomer(ctx, actor, customerID); err != nil {
		return nil, err
	}
	return s.repo.SetCreditCustomerStatus(ctx, customerID, domain.CreditActive, nil, s.now().UTC())
}

// ListTransactions returns the customer's ledger, newest first.
func (s *CreditService) ListTransactions(ctx context.Context, actor domain.Actor, customerID string, limit, offset int) ([]domain.CreditTransaction, error) {
	if _, err := s.GetCustomer(ctx, actor, customerID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = defaultTransactionPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListCreditTransactions(ctx, customerID, limit, offset)
}

// DailyCreditTotals totals the organization's consumptions and payments recorded on
// the calendar date of day, taken as a business-timezone day.
func (s *CreditService) DailyCreditTotals(ctx context.Context, orgID string, day time.Time) (domain.DailyCreditTotals, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.loc)
	return s.repo.SumCreditTransactions(ctx, orgID, from, from.AddDate(0, 0, 1))
}
