package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ravito/ravito-backend/internal/domain"
)

const creditCustomerColumns = `id, organization_id, name, phone, credit_limit, current_balance, status,
		       frozen_reason, frozen_at, created_at, updated_at`

func scanCreditCustomer(row pgx.Row) (*domain.CreditCustomer, error) {
	var c domain.CreditCustomer
	if err := row.Scan(
		&c.ID,
		&c.OrganizationID,
		&c.Name,
		&c.Phone,
		&c.CreditLimit,
		&c.CurrentBalance,
		&c.Status,
		&c.FrozenReason,
		&c.FrozenAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListCreditCustomers returns the organization's credit customers matching filter.
func (r *Repository) ListCreditCustomers(ctx context.Context, orgID string, filter domain.CreditCustomerFilter) ([]domain.CreditCustomer, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + creditCustomerColumns + ` FROM credit_customers WHERE organization_id = $1`)
	args := []interface{}{orgID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		fmt.Fprintf(&sb, " AND status = $%d", len(args))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		fmt.Fprintf(&sb, " AND (name ILIKE $%d OR phone ILIKE $%d)", len(args), len(args))
	}
	if filter.WithBalance {
		sb.WriteString(" AND current_balance > 0")
	}
	sb.WriteString(" ORDER BY name")

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := []domain.CreditCustomer{}
	for rows.Next() {
		c, err := scanCreditCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, *c)
	}
	return customers, rows.Err()
}

// GetCreditCustomer loads one customer.
func (r *Repository) GetCreditCustomer(ctx context.Context, customerID string) (*domain.CreditCustomer, error) {
	return scanCreditCustomer(r.db.QueryRow(ctx, `SELECT `+creditCustomerColumns+` FROM credit_customers WHERE id = $1`, customerID))
}

// InsertCreditCustomer opens a credit account with a zero balance.
func (r *Repository) InsertCreditCustomer(ctx context.Context, orgID string, in domain.CreditCustomerInput) (*domain.CreditCustomer, error) {
	query := `
		INSERT INTO credit_customers (organization_id, name, phone, credit_limit, current_balance, status)
		VALUES ($1, $2, $3, $4, 0, 'active')
		RETURNING ` + creditCustomerColumns
	return scanCreditCustomer(r.db.QueryRow(ctx, query, orgID, strings.TrimSpace(in.Name), in.Phone, in.CreditLimit))
}

// SetCreditCustomerStatus freezes or unfreezes a customer.
func (r *Repository) SetCreditCustomerStatus(ctx context.Context, customerID string, status domain.CreditStatus, reason *string, at time.Time) (*domain.CreditCustomer, error) {
	query := `
		UPDATE credit_customers
		SET status = $2,
		    frozen_reason = CASE WHEN $2 = 'frozen' THEN $3 ELSE NULL END,
		    frozen_at = CASE WHEN $2 = 'frozen' THEN $4::TIMESTAMPTZ ELSE NULL END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + creditCustomerColumns
	return scanCreditCustomer(r.db.QueryRow(ctx, query, customerID, status, reason, at))
}

// ApplyCreditMovement locks the customer row, lets apply compute the new balance from
// the locked state and records the movement with its resulting balance. Nothing is
// written when apply returns an error.
func (r *Repository) ApplyCreditMovement(
	ctx context.Context,
	customerID string,
	txType domain.CreditTransactionType,
	amount int64,
	notes *string,
	actor string,
	apply func(domain.CreditCustomer) (int64, error),
) (*domain.CreditTransaction, *domain.CreditCustomer, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	customer, err := scanCreditCustomer(tx.QueryRow(ctx, `SELECT `+creditCustomerColumns+` FROM credit_customers WHERE id = $1 FOR UPDATE`, customerID))
	if err != nil {
		return nil, nil, err
	}

	newBalance, err := apply(*customer)
	if err != nil {
		return nil, nil, err
	}

	updated, err := scanCreditCustomer(tx.QueryRow(ctx, `
		UPDATE credit_customers SET current_balance = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+creditCustomerColumns, customerID, newBalance))
	if err != nil {
		return nil, nil, err
	}

	var t domain.CreditTransaction
	err = tx.QueryRow(ctx, `
		INSERT INTO credit_transactions (customer_id, organization_id, type, amount, balance_after, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, customer_id, organization_id, type, amount, balance_after, notes, created_by, created_at
	`, customerID, customer.OrganizationID, txType, amount, newBalance, notes, actor).Scan(
		&t.ID, &t.CustomerID, &t.OrganizationID, &t.Type, &t.Amount, &t.BalanceAfter, &t.Notes, &t.CreatedBy, &t.CreatedAt,
	)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return &t, updated, nil
}

// ListCreditTransactions returns a customer's ledger, newest first.
func (r *Repository) ListCreditTransactions(ctx context.Context, customerID string, limit, offset int) ([]domain.CreditTransaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, customer_id, organization_id, type, amount, balance_after, notes, created_by, created_at
		FROM credit_transactions
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, customerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := []domain.CreditTransaction{}
	for rows.Next() {
		var t domain.CreditTransaction
		if err := rows.Scan(&t.ID, &t.CustomerID, &t.OrganizationID, &t.Type, &t.Amount, &t.BalanceAfter, &t.Notes, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// SumCreditTransactions totals consumptions and payments recorded in [from, to).
func (r *Repository) SumCreditTransactions(ctx context.Context, orgID string, from, to time.Time) (domain.DailyCreditTotals, error) {
	var totals domain.DailyCreditTotals
	err := r.db.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE type = 'consumption'), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'payment'), 0)
		FROM credit_transactions
		WHERE organization_id = $1 AND created_at >= $2 AND created_at < $3
	`, orgID, from, to).Scan(&totals.Sales, &totals.Payments)
	return totals, err
}
