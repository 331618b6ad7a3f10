package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ravito/ravito-backend/internal/domain"
)

const sheetColumns = `id, organization_id, sheet_date, status, opening_cash, closing_cash,
		       theoretical_revenue, expenses_total, cash_difference, credit_sales, credit_payments,
		       notes, closed_at, closed_by, created_at, updated_at`

func scanSheet(row pgx.Row) (*domain.DailySheet, error) {
	var s domain.DailySheet
	if err := row.Scan(
		&s.ID,
		&s.OrganizationID,
		&s.SheetDate,
		&s.Status,
		&s.OpeningCash,
		&s.ClosingCash,
		&s.TheoreticalRevenue,
		&s.ExpensesTotal,
		&s.CashDifference,
		&s.CreditSales,
		&s.CreditPayments,
		&s.Notes,
		&s.ClosedAt,
		&s.ClosedBy,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSheetNotFound
		}
		return nil, err
	}
	return &s, nil
}

// GetSheet loads a sheet by id.
func (r *Repository) GetSheet(ctx context.Context, sheetID string) (*domain.DailySheet, error) {
	return scanSheet(r.db.QueryRow(ctx, `SELECT `+sheetColumns+` FROM daily_sheets WHERE id = $1`, sheetID))
}

// GetSheetByDate loads the organization's sheet for one calendar day.
func (r *Repository) GetSheetByDate(ctx context.Context, orgID string, date time.Time) (*domain.DailySheet, error) {
	query := `SELECT ` + sheetColumns + ` FROM daily_sheets WHERE organization_id = $1 AND sheet_date = $2::DATE`
	return scanSheet(r.db.QueryRow(ctx, query, orgID, date.Format("2006-01-02")))
}

// ListSheets returns the organization's sheets between two dates, newest first.
func (r *Repository) ListSheets(ctx context.Context, orgID string, from, to time.Time) ([]domain.DailySheet, error) {
	query := `
		SELECT ` + sheetColumns + `
		FROM daily_sheets
		WHERE organization_id = $1 AND sheet_date BETWEEN $2::DATE AND $3::DATE
		ORDER BY sheet_date DESC
	`
	rows, err := r.db.Query(ctx, query, orgID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sheets := []domain.DailySheet{}
	for rows.Next() {
		sheet, err := scanSheet(rows)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, *sheet)
	}
	return sheets, rows.Err()
}

// CreateSheetWithCarryover delegates sheet creation to the database procedure, which
// carries the previous day's final stock and closing cash over.
func (r *Repository) CreateSheetWithCarryover(ctx context.Context, orgID string, date time.Time) (string, error) {
	var sheetID string
	err := r.db.QueryRow(ctx, `SELECT create_daily_sheet_with_carryover($1, $2::DATE)`, orgID, date.Format("2006-01-02")).Scan(&sheetID)
	if err != nil {
		return "", fmt.Errorf("create_daily_sheet_with_carryover: %w", err)
	}
	return sheetID, nil
}

// SyncRavitoDeliveries refreshes ravito_supply on the sheet's stock lines.
func (r *Repository) SyncRavitoDeliveries(ctx context.Context, sheetID string) error {
	if _, err := r.db.Exec(ctx, `SELECT sync_ravito_deliveries_to_daily_sheet($1)`, sheetID); err != nil {
		return fmt.Errorf("sync_ravito_deliveries_to_daily_sheet: %w", err)
	}
	return nil
}

// ListStockLines returns the sheet's stock lines with product names.
func (r *Repository) ListStockLines(ctx context.Context, sheetID string) ([]domain.StockLine, error) {
	query := `
		SELECT l.id, l.sheet_id, l.product_id, COALESCE(p.name, ''), l.initial_stock, l.ravito_supply,
		       l.external_supply, l.final_stock, l.selling_price
		FROM daily_stock_lines l
		LEFT JOIN products p ON p.id = l.product_id
		WHERE l.sheet_id = $1
		ORDER BY p.name
	`
	rows, err := r.db.Query(ctx, query, sheetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []domain.StockLine{}
	for rows.Next() {
		var l domain.StockLine
		if err := rows.Scan(&l.ID, &l.SheetID, &l.ProductID, &l.ProductName, &l.InitialStock, &l.RavitoSupply, &l.ExternalSupply, &l.FinalStock, &l.SellingPrice); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ListPackaging returns the sheet's crate lines.
func (r *Repository) ListPackaging(ctx context.Context, sheetID string) ([]domain.PackagingLine, error) {
	query := `
		SELECT id, sheet_id, crate_type, qty_full_start, qty_empty_start, qty_received, qty_returned,
		       qty_full_end, qty_empty_end
		FROM daily_packaging
		WHERE sheet_id = $1
		ORDER BY crate_type
	`
	rows, err := r.db.Query(ctx, query, sheetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []domain.PackagingLine{}
	for rows.Next() {
		var p domain.PackagingLine
		if err := rows.Scan(&p.ID, &p.SheetID, &p.CrateType, &p.QtyFullStart, &p.QtyEmptyStart, &p.QtyReceived, &p.QtyReturned, &p.QtyFullEnd, &p.QtyEmptyEnd); err != nil {
			return nil, err
		}
		lines = append(lines, p)
	}
	return lines, rows.Err()
}

// ListExpenses returns the sheet's expenses in creation order.
func (r *Repository) ListExpenses(ctx context.Context, sheetID string) ([]domain.Expense, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, sheet_id, label, amount, category, created_at
		FROM daily_expenses
		WHERE sheet_id = $1
		ORDER BY created_at
	`, sheetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := []domain.Expense{}
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.SheetID, &e.Label, &e.Amount, &e.Category, &e.CreatedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// ListEstablishmentProducts returns the active products sold by the organization.
func (r *Repository) ListEstablishmentProducts(ctx context.Context, orgID string) ([]domain.EstablishmentProduct, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ep.id, ep.organization_id, ep.product_id, p.name, COALESCE(p.category, ''), ep.selling_price, ep.is_active
		FROM establishment_products ep
		JOIN products p ON p.id = ep.product_id
		WHERE ep.organization_id = $1 AND ep.is_active = TRUE
		ORDER BY p.name
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []domain.EstablishmentProduct{}
	for rows.Next() {
		var p domain.EstablishmentProduct
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.ProductID, &p.Name, &p.Category, &p.SellingPrice, &p.IsActive); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// UpdateStockLine applies the non-nil fields of upd while the sheet is open.
func (r *Repository) UpdateStockLine(ctx context.Context, sheetID, lineID string, upd domain.StockLineUpdate) (*domain.StockLine, error) {
	query := `
		UPDATE daily_stock_lines l
		SET initial_stock = COALESCE($3, l.initial_stock),
		    external_supply = COALESCE($4, l.external_supply),
		    final_stock = COALESCE($5, l.final_stock),
		    selling_price = COALESCE($6, l.selling_price),
		    updated_at = NOW()
		FROM daily_sheets s
		WHERE l.id = $1 AND l.sheet_id = $2 AND s.id = l.sheet_id AND s.status = 'open'
		RETURNING l.id, l.sheet_id, l.product_id, l.initial_stock, l.ravito_supply, l.external_supply,
		          l.final_stock, l.selling_price
	`
	var l domain.StockLine
	err := r.db.QueryRow(ctx, query, lineID, sheetID, upd.InitialStock, upd.ExternalSupply, upd.FinalStock, upd.SellingPrice).Scan(
		&l.ID, &l.SheetID, &l.ProductID, &l.InitialStock, &l.RavitoSupply, &l.ExternalSupply, &l.FinalStock, &l.SellingPrice,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.openSheetLineMissing(ctx, sheetID, ErrStockLineNotFound)
		}
		return nil, err
	}
	return &l, nil
}

// UpdatePackagingLine applies the non-nil fields of upd while the sheet is open.
func (r *Repository) UpdatePackagingLine(ctx context.Context, sheetID, lineID string, upd domain.PackagingUpdate) (*domain.PackagingLine, error) {
	query := `
		UPDATE daily_packaging p
		SET qty_full_start = COALESCE($3, p.qty_full_start),
		    qty_empty_start = COALESCE($4, p.qty_empty_start),
		    qty_received = COALESCE($5, p.qty_received),
		    qty_returned = COALESCE($6, p.qty_returned),
		    qty_full_end = COALESCE($7, p.qty_full_end),
		    qty_empty_end = COALESCE($8, p.qty_empty_end),
		    updated_at = NOW()
		FROM daily_sheets s
		WHERE p.id = $1 AND p.sheet_id = $2 AND s.id = p.sheet_id AND s.status = 'open'
		RETURNING p.id, p.sheet_id, p.crate_type, p.qty_full_start, p.qty_empty_start, p.qty_received,
		          p.qty_returned, p.qty_full_end, p.qty_empty_end
	`
	var p domain.PackagingLine
	err := r.db.QueryRow(ctx, query, lineID, sheetID,
		upd.QtyFullStart, upd.QtyEmptyStart, upd.QtyReceived, upd.QtyReturned, upd.QtyFullEnd, upd.QtyEmptyEnd,
	).Scan(&p.ID, &p.SheetID, &p.CrateType, &p.QtyFullStart, &p.QtyEmptyStart, &p.QtyReceived, &p.QtyReturned, &p.QtyFullEnd, &p.QtyEmptyEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.openSheetLineMissing(ctx, sheetID, ErrPackagingNotFound)
		}
		return nil, err
	}
	return &p, nil
}

// InsertExpense records an expense on an open sheet.
func (r *Repository) InsertExpense(ctx context.Context, sheetID string, in domain.ExpenseInput) (*domain.Expense, error) {
	query := `
		INSERT INTO daily_expenses (sheet_id, label, amount, category)
		SELECT s.id, $2, $3, $4
		FROM daily_sheets s
		WHERE s.id = $1 AND s.status = 'open'
		RETURNING id, sheet_id, label, amount, category, created_at
	`
	var e domain.Expense
	err := r.db.QueryRow(ctx, query, sheetID, in.Label, in.Amount, in.Category).Scan(&e.ID, &e.SheetID, &e.Label, &e.Amount, &e.Category, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.openSheetLineMissing(ctx, sheetID, ErrSheetNotFound)
		}
		return nil, err
	}
	return &e, nil
}

// DeleteExpense removes an expense from an open sheet.
func (r *Repository) DeleteExpense(ctx context.Context, sheetID, expenseID string) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM daily_expenses e
		USING daily_sheets s
		WHERE e.id = $1 AND e.sheet_id = $2 AND s.id = e.sheet_id AND s.status = 'open'
	`, expenseID, sheetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.openSheetLineMissing(ctx, sheetID, ErrExpenseNotFound)
	}
	return nil
}

// UpdateOpeningCash sets the opening cash of an open sheet.
func (r *Repository) UpdateOpeningCash(ctx context.Context, sheetID string, amount int64) (*domain.DailySheet, error) {
	query := `
		UPDATE daily_sheets SET opening_cash = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'open'
		RETURNING ` + sheetColumns
	sheet, err := scanSheet(r.db.QueryRow(ctx, query, sheetID, amount))
	if errors.Is(err, ErrSheetNotFound) {
		return nil, r.openSheetLineMissing(ctx, sheetID, ErrSheetNotFound)
	}
	return sheet, err
}

// CloseSheet persists the final summary and moves the sheet to closed.
func (r *Repository) CloseSheet(ctx context.Context, sheetID string, summary domain.SheetSummary, notes *string, actor string, closedAt time.Time) (*domain.DailySheet, error) {
	query := `
		UPDATE daily_sheets
		SET status = 'closed',
		    closing_cash = $2,
		    theoretical_revenue = $3,
		    expenses_total = $4,
		    cash_difference = $5,
		    credit_sales = $6,
		    credit_payments = $7,
		    notes = COALESCE($8, notes),
		    closed_at = $9,
		    closed_by = $10,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'open'
		RETURNING ` + sheetColumns
	sheet, err := scanSheet(r.db.QueryRow(ctx, query,
		sheetID,
		summary.ClosingCash,
		summary.TheoreticalRevenue,
		summary.ExpensesTotal,
		summary.CashDifference,
		summary.CreditSales,
		summary.CreditPayments,
		notes,
		closedAt,
		actor,
	))
	if errors.Is(err, ErrSheetNotFound) {
		return nil, r.openSheetLineMissing(ctx, sheetID, ErrSheetNotFound)
	}
	return sheet, err
}

// ReopenSheet returns a closed sheet to open. Closing figures are kept until the next close.
func (r *Repository) ReopenSheet(ctx context.Context, sheetID string) (*domain.DailySheet, error) {
	query := `
		UPDATE daily_sheets
		SET status = 'open', closed_at = NULL, closed_by = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'closed'
		RETURNING ` + sheetColumns
	return scanSheet(r.db.QueryRow(ctx, query, sheetID))
}

// openSheetLineMissing tells a missing row apart from a sheet that is no longer open.
func (r *Repository) openSheetLineMissing(ctx context.Context, sheetID string, notFound error) error {
	var status domain.SheetStatus
	if err := r.db.QueryRow(ctx, `SELECT status FROM daily_sheets WHERE id = $1`, sheetID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSheetNotFound
		}
		return err
	}
	if status != domain.SheetOpen {
		return ErrSheetNotOpen
	}
	return notFound
}
