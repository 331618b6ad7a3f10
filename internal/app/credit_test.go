package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ravito/ravito-backend/internal/domain"
	"github.com/ravito/ravito-backend/internal/store"
)

type creditRepoStub struct {
	CreditRepository

	customers    map[string]*domain.CreditCustomer
	transactions []domain.CreditTransaction
	sumFrom      time.Time
	sumTo        time.Time
}

func newCreditRepoStub(customers ...domain.CreditCustomer) *creditRepoStub {
	s := &creditRepoStub{customers: map[string]*domain.CreditCustomer{}}
	for i := range customers {
		c := customers[i]
		s.customers[c.ID] = &c
	}
	return s
}

func (s *creditRepoStub) GetCreditCustomer(ctx context.Context, customerID string) (*domain.CreditCustomer, error) {
	c, ok := s.customers[customerID]
	if !ok {
		return nil, store.ErrCustomerNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *creditRepoStub) SetCreditCustomerStatus(ctx context.Context, customerID string, status domain.CreditStatus, reason *string, at time.Time) (*domain.CreditCustomer, error) {
	c := s.customers[customerID]
	c.Status = status
	c.FrozenReason = reason
	copied := *c
	return &copied, nil
}

func (s *creditRepoStub) ApplyCreditMovement(
	ctx context.Context,
	customerID string,
	txType domain.CreditTransactionType,
	amount int64,
	notes *string,
	actor string,
	apply func(domain.CreditCustomer) (int64, error),
) (*domain.CreditTransaction, *domain.CreditCustomer, error) {
	c := s.customers[customerID]
	balance, err := apply(*c)
	if err != nil {
		return nil, nil, err
	}
	c.CurrentBalance = balance
	tx := domain.CreditTransaction{
		CustomerID:     customerID,
		OrganizationID: c.OrganizationID,
		Type:           txType,
		Amount:         amount,
		BalanceAfter:   balance,
		CreatedBy:      actor,
	}
	s.transactions = append(s.transactions, tx)
	copied := *c
	return &tx, &copied, nil
}

func (s *creditRepoStub) SumCreditTransactions(ctx context.Context, orgID string, from, to time.Time) (domain.DailyCreditTotals, error) {
	s.sumFrom, s.sumTo = from, to
	return domain.DailyCreditTotals{Sales: 1200, Payments: 300}, nil
}

func TestConsumptionBalance(t *testing.T) {
	tests := []struct {
		name     string
		customer domain.CreditCustomer
		amount   int64
		want     int64
		wantErr  error
	}{
		{name: "unlimited", customer: domain.CreditCustomer{Status: domain.CreditActive, CurrentBalance: 90000}, amount: 50000, want: 140000},
		{name: "within limit", customer: domain.CreditCustomer{Status: domain.CreditActive, CreditLimit: 10000, CurrentBalance: 4000}, amount: 6000, want: 10000},
		{name: "over limit", customer: domain.CreditCustomer{Status: domain.CreditActive, CreditLimit: 10000, CurrentBalance: 4000}, amount: 6001, wantErr: ErrCreditLimitExceeded},
		{name: "frozen", customer: domain.CreditCustomer{Status: domain.CreditFrozen}, amount: 100, wantErr: ErrCustomerFrozen},
		{name: "zero amount", customer: domain.CreditCustomer{Status: domain.CreditActive}, amount: 0, wantErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConsumptionBalance(tt.customer, tt.amount)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected balance %d, got %d", tt.want, got)
			}
		})
	}
}

func TestPaymentBalance(t *testing.T) {
	tests := []struct {
		name     string
		customer domain.CreditCustomer
		amount   int64
		want     int64
		wantErr  error
	}{
		{name: "partial", customer: domain.CreditCustomer{CurrentBalance: 5000}, amount: 2000, want: 3000},
		{name: "full", customer: domain.CreditCustomer{CurrentBalance: 5000}, amount: 5000, want: 0},
		{name: "frozen accepted", customer: domain.CreditCustomer{Status: domain.CreditFrozen, CurrentBalance: 5000}, amount: 1000, want: 4000},
		{name: "overpayment", customer: domain.CreditCustomer{CurrentBalance: 5000}, amount: 5001, wantErr: ErrOverpayment},
		{name: "negative", customer: domain.CreditCustomer{CurrentBalance: 5000}, amount: -1, wantErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PaymentBalance(tt.customer, tt.amount)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected balance %d, got %d", tt.want, got)
			}
		})
	}
}

func TestRecordMovementsStoreBalanceAfter(t *testing.T) {
	repo := newCreditRepoStub(domain.CreditCustomer{ID: "c1", OrganizationID: "org-1", Status: domain.CreditActive, CreditLimit: 20000})
	svc := NewCreditService(repo, nil, nil, "ravito.events", "UTC")
	actor := ownerActor("org-1")

	if _, err := svc.RecordConsumption(context.Background(), actor, "c1", 15000, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	movement, err := svc.RecordPayment(context.Background(), actor, "c1", 4000, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if movement.Transaction.BalanceAfter != 11000 || movement.Customer.CurrentBalance != 11000 {
		t.Fatalf("expected balance 11000, got %+v", movement)
	}

	if _, err := svc.RecordConsumption(context.Background(), actor, "c1", 10000, nil); !errors.Is(err, ErrCreditLimitExceeded) {
		t.Fatalf("expected ErrCreditLimitExceeded, got %v", err)
	}
	if len(repo.transactions) != 2 {
		t.Fatalf("expected rejected movement not to be recorded, got %d transactions", len(repo.transactions))
	}
}

func TestRecordConsumptionRejectsOtherOrganization(t *testing.T) {
	repo := newCreditRepoStub(domain.CreditCustomer{ID: "c1", OrganizationID: "org-1", Status: domain.CreditActive})
	svc := NewCreditService(repo, nil, nil, "ravito.events", "UTC")

	if _, err := svc.RecordConsumption(context.Background(), ownerActor("org-2"), "c1", 100, nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestFreezeCustomerBlocksConsumption(t *testing.T) {
	repo := newCreditRepoStub(domain.CreditCustomer{ID: "c1", Name: "Koffi", OrganizationID: "org-1", Status: domain.CreditActive, CurrentBalance: 3000})
	publisher := &publisherStub{}
	notifier := &notifierStub{}
	svc := NewCreditService(repo, notifier, publisher, "ravito.events", "UTC")
	actor := ownerActor("org-1")

	if _, err := svc.FreezeCustomer(context.Background(), actor, "c1", "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank reason, got %v", err)
	}

	customer, err := svc.FreezeCustomer(context.Background(), actor, "c1", "impayés")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if customer.Status != domain.CreditFrozen {
		t.Fatalf("expected frozen customer, got %s", customer.Status)
	}
	if len(publisher.routingKeys) != 1 || publisher.routingKeys[0] != domain.EventCreditCustomerFrozen {
		t.Fatalf("expected credit.customer.frozen event, got %v", publisher.routingKeys)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.sent))
	}

	if _, err := svc.RecordConsumption(context.Background(), actor, "c1", 100, nil); !errors.Is(err, ErrCustomerFrozen) {
		t.Fatalf("expected ErrCustomerFrozen, got %v", err)
	}
	if _, err := svc.RecordPayment(context.Background(), actor, "c1", 1000, nil); err != nil {
		t.Fatalf("expected payment to be accepted while frozen, got %v", err)
	}

	if _, err := svc.UnfreezeCustomer(context.Background(), actor, "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.RecordConsumption(context.Background(), actor, "c1", 100, nil); err != nil {
		t.Fatalf("expected consumption after unfreeze, got %v", err)
	}
}

func TestDailyCreditTotalsCoversOneBusinessDay(t *testing.T) {
	repo := newCreditRepoStub()
	svc := NewCreditService(repo, nil, nil, "ravito.events", "Africa/Abidjan")

	totals, err := svc.DailyCreditTotals(context.Background(), "org-1", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totals.Sales != 1200 || totals.Payments != 300 {
		t.Fatalf("unexpected totals %+v", totals)
	}
	if repo.sumTo.Sub(repo.sumFrom) != 24*time.Hour {
		t.Fatalf("expected a one-day window, got %s to %s", repo.sumFrom, repo.sumTo)
	}
	if repo.sumFrom.Day() != 10 || repo.sumFrom.Hour() != 0 {
		t.Fatalf("expected window to start at midnight on the 10th, got %s", repo.sumFrom)
	}
}
