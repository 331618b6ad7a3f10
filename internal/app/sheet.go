package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ravito/ravito-backend/internal/domain"
	"github.com/ravito/ravito-backend/internal/store"
)

// SheetRepository defines the daily sheet storage operations.
type SheetRepository interface {
	GetSheet(ctx context.Context, sheetID string) (*domain.DailySheet, error)
	GetSheetByDate(ctx context.Context, orgID string, date time.Time) (*domain.DailySheet, error)
	ListSheets(ctx context.Context, orgID string, from, to time.Time) ([]domain.DailySheet, error)
	CreateSheetWithCarryover(ctx context.Context, orgID string, date time.Time) (string, error)
	SyncRavitoDeliveries(ctx context.Context, sheetID string) error
	ListStockLines(ctx context.Context, sheetID string) ([]domain.StockLine, error)
	ListPackaging(ctx context.Context, sheetID string) ([]domain.PackagingLine, error)
	ListExpenses(ctx context.Context, sheetID string) ([]domain.Expense, error)
	ListEstablishmentProducts(ctx context.Context, orgID string) ([]domain.EstablishmentProduct, error)
	UpdateStockLine(ctx context.Context, sheetID, lineID string, upd domain.StockLineUpdate) (*domain.StockLine, error)
	UpdatePackagingLine(ctx context.Context, sheetID, lineID string, upd domain.PackagingUpdate) (*domain.PackagingLine, error)
	InsertExpense(ctx context.Context, sheetID string, in domain.ExpenseInput) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, sheetID, expenseID string) error
	UpdateOpeningCash(ctx context.Context, sheetID string, amount int64) (*domain.DailySheet, error)
	CloseSheet(ctx context.Context, sheetID string, summary domain.SheetSummary, notes *string, actor string, closedAt time.Time) (*domain.DailySheet, error)
	ReopenSheet(ctx context.Context, sheetID string) (*domain.DailySheet, error)
}

// CreditTotalsProvider reports the day's credit movements of an organization.
type CreditTotalsProvider interface {
	DailyCreditTotals(ctx context.Context, orgID string, day time.Time) (domain.DailyCreditTotals, error)
}

var expenseCategories = map[domain.ExpenseCategory]bool{
	domain.ExpenseSupplies:    true,
	domain.ExpenseTransport:   true,
	domain.ExpenseSalary:      true,
	domain.ExpenseUtilities:   true,
	domain.ExpenseMaintenance: true,
	domain.ExpenseOther:       true,
}

// SheetService implements daily cash and stock reconciliation.
type SheetService struct {
	repo     SheetRepository
	credit   CreditTotalsProvider
	notifier Notifier
	events   events
	loc      *time.Location
	now      func() time.Time
}

// NewSheetService creates the daily sheet service.
func NewSheetService(repo SheetRepository, credit CreditTotalsProvider, notifier Notifier, publisher EventPublisher, exchange, timezone string) *SheetService {
	return &SheetService{
		repo:     repo,
		credit:   credit,
		notifier: notifier,
		events:   events{publisher: publisher, exchange: exchange},
		loc:      loadLocation(timezone),
		now:      time.Now,
	}
}

// ComputeSheetSummary derives the sheet totals from its lines. closingCash may be nil
// while the cash has not been counted, in which case CashDifference stays zero.
func ComputeSheetSummary(
	openingCash int64,
	stock []domain.StockLine,
	packaging []domain.PackagingLine,
	expenses []domain.Expense,
	credit domain.DailyCreditTotals,
	closingCash *int64,
) domain.SheetSummary {
	var summary domain.SheetSummary

	for _, line := range stock {
		if line.FinalStock == nil {
			summary.UncountedLines++
			continue
		}
		summary.TotalSalesQty += line.SalesQty()
		summary.TheoreticalRevenue += line.Revenue()
	}
	for _, e := range expenses {
		summary.ExpensesTotal += e.Amount
	}
	for _, p := range packaging {
		summary.PackagingDifference += p.Difference()
	}

	summary.CreditSales = credit.Sales
	summary.CreditPayments = credit.Payments
	summary.CreditVariation = credit.Payments - credit.Sales
	summary.ExpectedCash = openingCash + summary.TheoreticalRevenue - summary.ExpensesTotal + summary.CreditVariation

	if closingCash != nil {
		cash := *closingCash
		summary.ClosingCash = &cash
		summary.CashDifference = cash - summary.ExpectedCash
	}

	return summary
}

// OpenSheet returns the organization's sheet for date, creating it with yesterday's
// carry-over when it does not exist yet.
func (s *SheetService) OpenSheet(ctx context.Context, actor domain.Actor, date time.Time) (*domain.SheetDetails, error) {
	if actor.OrganizationID == nil {
		return nil, ErrNoOrganization
	}
	orgID := *actor.OrganizationID
	day := startOfDay(date, s.loc)

	sheet, err := s.repo.GetSheetByDate(ctx, orgID, day)
	if err == nil {
		return s.details(ctx, sheet)
	}
	if !errors.Is(err, store.ErrSheetNotFound) {
		return nil, err
	}

	sheetID, err := s.repo.CreateSheetWithCarryover(ctx, orgID, day)
	if err != nil {
		return nil, err
	}
	return s.GetSheetDetails(ctx, actor, sheetID)
}

// GetSheetDetails loads the sheet with all its lines and a freshly derived summary.
func (s *SheetService) GetSheetDetails(ctx context.Context, actor domain.Actor, sheetID string) (*domain.SheetDetails, error) {
	sheet, err := s.authorizedSheet(ctx, actor, sheetID)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, sheet)
}

func (s *SheetService) details(ctx context.Context, sheet *domain.DailySheet) (*domain.SheetDetails, error) {
	details := &domain.SheetDetails{Sheet: *sheet}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lines, err := s.repo.ListStockLines(gctx, sheet.ID)
		details.Stock = lines
		return err
	})
	g.Go(func() error {
		lines, err := s.repo.ListPackaging(gctx, sheet.ID)
		details.Packaging = lines
		return err
	})
	g.Go(func() error {
		expenses, err := s.repo.ListExpenses(gctx, sheet.ID)
		details.Expenses = expenses
		return err
	})
	g.Go(func() error {
		products, err := s.repo.ListEstablishmentProducts(gctx, sheet.OrganizationID)
		details.Products = products
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load sheet %s: %w", sheet.ID, err)
	}

	credit := domain.DailyCreditTotals{Sales: sheet.CreditSales, Payments: sheet.CreditPayments}
	if sheet.Status == domain.SheetOpen {
		live, err := s.creditTotals(ctx, sheet)
		if err != nil {
			return nil, err
		}
		credit = live
	}

	details.Summary = ComputeSheetSummary(sheet.OpeningCash, details.Stock, details.Packaging, details.Expenses, credit, sheet.ClosingCash)
	return details, nil
}

func (s *SheetService) creditTotals(ctx context.Context, sheet *domain.DailySheet) (domain.DailyCreditTotals, error) {
	if s.credit == nil {
		return domain.DailyCreditTotals{}, nil
	}
	totals, err := s.credit.DailyCreditTotals(ctx, sheet.OrganizationID, sheet.SheetDate)
	if err != nil {
		return domain.DailyCreditTotals{}, fmt.Errorf("failed to load credit totals for sheet %s: %w", sheet.ID, err)
	}
	return totals, nil
}

// UpdateStockLine edits the counts of one stock line of an open sheet.
func (s *SheetService) UpdateStockLine(ctx context.Context, actor domain.Actor, sheetID, lineID string, upd domain.StockLineUpdate) (*domain.StockLine, error) {
	if _, err := s.openSheet(ctx, actor, sheetID); err != nil {
		return nil, err
	}
	line, err := s.repo.UpdateStockLine(ctx, sheetID, lineID, upd)
	return line, mapSheetErr(err)
}

// UpdatePackaging edits the crate counts of one packaging line of an open sheet.
func (s *SheetService) UpdatePackaging(ctx context.Context, actor domain.Actor, sheetID, lineID string, upd domain.PackagingUpdate) (*domain.PackagingLine, error) {
	if _, err := s.openSheet(ctx, actor, sheetID); err != nil {
		return nil, err
	}
	line, err := s.repo.UpdatePackagingLine(ctx, sheetID, lineID, upd)
	return line, mapSheetErr(err)
}

// AddExpense records an expense on an open sheet.
func (s *SheetService) AddExpense(ctx context.Context, actor domain.Actor, sheetID string, in domain.ExpenseInput) (*domain.Expense, error) {
	in.Label = strings.TrimSpace(in.Label)
	if err := validateExpense(in); err != nil {
		return nil, err
	}
	if _, err := s.openSheet(ctx, actor, sheetID); err != nil {
		return nil, err
	}
	expense, err := s.repo.InsertExpense(ctx, sheetID, in)
	return expense, mapSheetErr(err)
}

func validateExpense(in domain.ExpenseInput) error {
	switch {
	case in.Label == "":
		return fmt.Errorf("%w: label is required", ErrInvalidInput)
	case in.Amount <= 0:
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidInput)
	case !expenseCategories[in.Category]:
		return fmt.Errorf("%w: unknown expense category %q", ErrInvalidInput, in.Category)
	}
	return nil
}

// DeleteExpense removes an expense from an open sheet.
func (s *SheetService) DeleteExpense(ctx context.Context, actor domain.Actor, sheetID, expenseID string) error {
	if _, err := s.openSheet(ctx, actor, sheetID); err != nil {
		return err
	}
	return mapSheetErr(s.repo.DeleteExpense(ctx, sheetID, expenseID))
}

// UpdateOpeningCash sets the cash counted at opening.
func (s *SheetService) UpdateOpeningCash(ctx context.Context, actor domain.Actor, sheetID string, amount int64) (*domain.DailySheet, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: opening cash cannot be negative", ErrInvalidInput)
	}
	if _, err := s.openSheet(ctx, actor, sheetID); err != nil {
		return nil, err
	}
	sheet, err := s.repo.UpdateOpeningCash(ctx, sheetID, amount)
	return sheet, mapSheetErr(err)
}

// SyncRavitoDeliveries refreshes the platform deliveries on an open sheet.
func (s *SheetService) SyncRavitoDeliveries(ctx context.Context, actor domain.Actor, sheetID string) (*domain.SheetDetails, error) {
	sheet, err := s.openSheet(ctx, actor, sheetID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SyncRavitoDeliveries(ctx, sheetID); err != nil {
		return nil, err
	}

	refreshed, err := s.repo.GetSheet(ctx, sheet.ID)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, refreshed)
}

// CloseSheet freezes the day's figures with the counted closing cash.
func (s *SheetService) CloseSheet(ctx context.Context, actor domain.Actor, sheetID string, closingCash int64, notes *string) (*domain.SheetDetails, error) {
	if closingCash < 0 {
		return nil, fmt.Errorf("%w: closing cash cannot be negative", ErrInvalidInput)
	}
	sheet, err := s.openSheet(ctx, actor, sheetID)
	if err != nil {
		return nil, err
	}

	details, err := s.details(ctx, sheet)
	if err != nil {
		return nil, err
	}
	summary := ComputeSheetSummary(sheet.OpeningCash, details.Stock, details.Packaging, details.Expenses,
		domain.DailyCreditTotals{Sales: details.Summary.CreditSales, Payments: details.Summary.CreditPayments}, &closingCash)

	closed, err := s.repo.CloseSheet(ctx, sheetID, summary, notes, actor.UserID, s.now().UTC())
	if err != nil {
		return nil, mapSheetErr(err)
	}
	details.Sheet = *closed
	details.Summary = summary

	s.events.publish(ctx, domain.EventDailySheetClosed, domain.DailySheetClosedEvent{
		SheetID:        closed.ID,
		OrganizationID: closed.OrganizationID,
		SheetDate:      closed.SheetDate.Format("2006-01-02"),
		ExpectedCash:   summary.ExpectedCash,
		ClosingCash:    closingCash,
		CashDifference: summary.CashDifference,
		ClosedBy:       actor.UserID,
		Timestamp:      s.now().UTC(),
	})
	notify(ctx, s.notifier, domain.Notification{
		UserID:  actor.UserID,
		Type:    domain.NotificationSheetClosed,
		Title:   "Journée clôturée",
		Message: fmt.Sprintf("Fiche du %s clôturée, écart de caisse %d FCFA.", closed.SheetDate.Format("02/01/2006"), summary.CashDifference),
		Data: map[string]interface{}{
			"sheet_id":        closed.ID,
			"cash_difference": summary.CashDifference,
		},
	})

	return details, nil
}

// ReopenSheet returns a closed sheet to open. Admins only.
func (s *SheetService) ReopenSheet(ctx context.Context, actor domain.Actor, sheetID string) (*domain.DailySheet, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	sheet, err := s.repo.GetSheet(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	if sheet.Status != domain.SheetClosed {
		return nil, ErrSheetNotClosed
	}
	return s.repo.ReopenSheet(ctx, sheetID)
}

// ListSheets returns the actor's organization sheets between two days.
func (s *SheetService) ListSheets(ctx context.Context, actor domain.Actor, from, to time.Time) ([]domain.DailySheet, error) {
	if actor.OrganizationID == nil {
		return nil, ErrNoOrganization
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end date before start date", ErrInvalidInput)
	}
	return s.repo.ListSheets(ctx, *actor.OrganizationID, startOfDay(from, s.loc), startOfDay(to, s.loc))
}

func (s *SheetService) authorizedSheet(ctx context.Context, actor domain.Actor, sheetID string) (*domain.DailySheet, error) {
	sheet, err := s.repo.GetSheet(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessOrganization(sheet.OrganizationID) {
		return nil, ErrForbidden
	}
	return sheet, nil
}

func (s *SheetService) openSheet(ctx context.Context, actor domain.Actor, sheetID string) (*domain.DailySheet, error) {
	sheet, err := s.authorizedSheet(ctx, actor, sheetID)
	if err != nil {
		return nil, err
	}
	if sheet.Status != domain.SheetOpen {
		return nil, ErrSheetClosed
	}
	return sheet, nil
}

func mapSheetErr(err error) error {
	if errors.Is(err, store.ErrSheetNotOpen) {
		return ErrSheetClosed
	}
	return err
}
