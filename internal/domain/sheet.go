/**
 * @description
 * Daily reconciliation sheet models: stock lines, packaging, expenses and the
 * derived cash summary.
 */
package domain

import "time"

// SheetStatus is the state of a daily sheet.
type SheetStatus string

const (
	SheetOpen   SheetStatus = "open"
	SheetClosed SheetStatus = "closed"
)

// DailySheet is one organization's reconciliation record for one day.
type DailySheet struct {
	ID                 string      `json:"id"`
	OrganizationID     string      `json:"organization_id"`
	SheetDate          time.Time   `json:"sheet_date"`
	Status             SheetStatus `json:"status"`
	OpeningCash        int64       `json:"opening_cash"`
	ClosingCash        *int64      `json:"closing_cash,omitempty"`
	TheoreticalRevenue int64       `json:"theoretical_revenue"`
	ExpensesTotal      int64       `json:"expenses_total"`
	CashDifference     int64       `json:"cash_difference"`
	CreditSales        int64       `json:"credit_sales"`
	CreditPayments     int64       `json:"credit_payments"`
	Notes              *string     `json:"notes,omitempty"`
	ClosedAt           *time.Time  `json:"closed_at,omitempty"`
	ClosedBy           *string     `json:"closed_by,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// StockLine is the per-product stock movement of a sheet.
type StockLine struct {
	ID             string `json:"id"`
	SheetID        string `json:"sheet_id"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name,omitempty"`
	InitialStock   int    `json:"initial_stock"`
	RavitoSupply   int    `json:"ravito_supply"`
	ExternalSupply int    `json:"external_supply"`
	FinalStock     *int   `json:"final_stock,omitempty"`
	SellingPrice   int64  `json:"selling_price"`
}

// SalesQty is the quantity sold, zero until the final stock has been counted.
func (l StockLine) SalesQty() int {
	if l.FinalStock == nil {
		return 0
	}
	return l.InitialStock + l.RavitoSupply + l.ExternalSupply - *l.FinalStock
}

// Revenue is the theoretical revenue of the line.
func (l StockLine) Revenue() int64 {
	return int64(l.SalesQty()) * l.SellingPrice
}

// PackagingLine tracks crates for one crate type.
type PackagingLine struct {
	ID            string `json:"id"`
	SheetID       string `json:"sheet_id"`
	CrateType     string `json:"crate_type"`
	QtyFullStart  int    `json:"qty_full_start"`
	QtyEmptyStart int    `json:"qty_empty_start"`
	QtyReceived   int    `json:"qty_received"`
	QtyReturned   int    `json:"qty_returned"`
	QtyFullEnd    int    `json:"qty_full_end"`
	QtyEmptyEnd   int    `json:"qty_empty_end"`
}

// ExpectedTotal is the crate count the establishment should hold at close.
func (p PackagingLine) ExpectedTotal() int {
	return p.QtyFullStart + p.QtyEmptyStart + p.QtyReceived - p.QtyReturned
}

// ActualTotal is the crate count observed at close.
func (p PackagingLine) ActualTotal() int {
	return p.QtyFullEnd + p.QtyEmptyEnd
}

// Difference is negative when crates are missing.
func (p PackagingLine) Difference() int {
	return p.ActualTotal() - p.ExpectedTotal()
}

// ExpenseCategory classifies a daily expense.
type ExpenseCategory string

const (
	ExpenseSupplies    ExpenseCategory = "supplies"
	ExpenseTransport   ExpenseCategory = "transport"
	ExpenseSalary      ExpenseCategory = "salary"
	ExpenseUtilities   ExpenseCategory = "utilities"
	ExpenseMaintenance ExpenseCategory = "maintenance"
	ExpenseOther       ExpenseCategory = "other"
)

// Expense is a cash outflow recorded on a sheet.
type Expense struct {
	ID        string          `json:"id"`
	SheetID   string          `json:"sheet_id"`
	Label     string          `json:"label"`
	Amount    int64           `json:"amount"`
	Category  ExpenseCategory `json:"category"`
	CreatedAt time.Time       `json:"created_at"`
}

// EstablishmentProduct is a product sold by an organization at its own price.
type EstablishmentProduct struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Category       string `json:"category,omitempty"`
	SellingPrice   int64  `json:"selling_price"`
	IsActive       bool   `json:"is_active"`
}

// SheetSummary holds the totals derived from a sheet's lines.
type SheetSummary struct {
	TheoreticalRevenue  int64  `json:"theoretical_revenue"`
	ExpensesTotal       int64  `json:"expenses_total"`
	CreditSales         int64  `json:"credit_sales"`
	CreditPayments      int64  `json:"credit_payments"`
	CreditVariation     int64  `json:"credit_variation"`
	ExpectedCash        int64  `json:"expected_cash"`
	ClosingCash         *int64 `json:"closing_cash,omitempty"`
	CashDifference      int64  `json:"cash_difference"`
	TotalSalesQty       int    `json:"total_sales_qty"`
	PackagingDifference int    `json:"packaging_difference"`
	UncountedLines      int    `json:"uncounted_lines"`
}

// SheetDetails is the full view of a sheet with its lines and derived summary.
type SheetDetails struct {
	Sheet     DailySheet             `json:"sheet"`
	Stock     []StockLine            `json:"stock_lines"`
	Packaging []PackagingLine        `json:"packaging"`
	Expenses  []Expense              `json:"expenses"`
	Products  []EstablishmentProduct `json:"products"`
	Summary   SheetSummary           `json:"summary"`
}

// StockLineUpdate carries the editable counts of a stock line. Nil fields are kept.
type StockLineUpdate struct {
	InitialStock   *int   `json:"initial_stock,omitempty" validate:"omitempty,min=0"`
	ExternalSupply *int   `json:"external_supply,omitempty" validate:"omitempty,min=0"`
	FinalStock     *int   `json:"final_stock,omitempty" validate:"omitempty,min=0"`
	SellingPrice   *int64 `json:"selling_price,omitempty" validate:"omitempty,min=0"`
}

// PackagingUpdate carries the editable crate counts. Nil fields are kept.
type PackagingUpdate struct {
	QtyFullStart  *int `json:"qty_full_start,omitempty" validate:"omitempty,min=0"`
	QtyEmptyStart *int `json:"qty_empty_start,omitempty" validate:"omitempty,min=0"`
	QtyReceived   *int `json:"qty_received,omitempty" validate:"omitempty,min=0"`
	QtyReturned   *int `json:"qty_returned,omitempty" validate:"omitempty,min=0"`
	QtyFullEnd    *int `json:"qty_full_end,omitempty" validate:"omitempty,min=0"`
	QtyEmptyEnd   *int `json:"qty_empty_end,omitempty" validate:"omitempty,min=0"`
}

// ExpenseInput is a new expense as submitted by the establishment.
type ExpenseInput struct {
	Label    string          `json:"label"`
	Amount   int64           `json:"amount"`
	Category ExpenseCategory `json:"category"`
}
