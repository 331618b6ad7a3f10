package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ravito/ravito-backend/internal/domain"
)

const paymentColumns = `id, sales_rep_id, period_year, period_month,
		       chr_activated, depot_activated, total_ca, objective_chr, objective_depots,
		       prime_inscriptions, bonus_objectives, bonus_overshoot, commission_ca, total_amount,
		       status, payment_date, created_by, validated_at, validated_by, paid_at, paid_by,
		       payment_reference, created_at, updated_at`

func scanPayment(row pgx.Row) (*domain.SalesCommissionPayment, error) {
	var p domain.SalesCommissionPayment
	if err := row.Scan(
		&p.ID,
		&p.SalesRepID,
		&p.PeriodYear,
		&p.PeriodMonth,
		&p.ChrActivated,
		&p.DepotActivated,
		&p.TotalCa,
		&p.ObjectiveChr,
		&p.ObjectiveDepots,
		&p.PrimeInscriptions,
		&p.BonusObjectives,
		&p.BonusOvershoot,
		&p.CommissionCa,
		&p.TotalAmount,
		&p.Status,
		&p.PaymentDate,
		&p.CreatedBy,
		&p.ValidatedAt,
		&p.ValidatedBy,
		&p.PaidAt,
		&p.PaidBy,
		&p.PaymentReference,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func collectPayments(rows pgx.Rows) ([]domain.SalesCommissionPayment, error) {
	defer rows.Close()

	payments := []domain.SalesCommissionPayment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// GetPayment loads the representative's payment for a period.
func (r *Repository) GetPayment(ctx context.Context, repID string, period domain.Period) (*domain.SalesCommissionPayment, error) {
	query := `SELECT ` + paymentColumns + ` FROM sales_commission_payments
		WHERE sales_rep_id = $1 AND period_year = $2 AND period_month = $3`
	return scanPayment(r.db.QueryRow(ctx, query, repID, period.Year, period.Month))
}

// GetPaymentByID loads a payment by id.
func (r *Repository) GetPaymentByID(ctx context.Context, paymentID string) (*domain.SalesCommissionPayment, error) {
	return scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM sales_commission_payments WHERE id = $1`, paymentID))
}

// UpsertPendingPayment stores a freshly computed calculation. An existing row is only
// refreshed while it is still pending; otherwise ErrPaymentStatusConflict is returned.
func (r *Repository) UpsertPendingPayment(ctx context.Context, p domain.SalesCommissionPayment) (*domain.SalesCommissionPayment, error) {
	query := `
		INSERT INTO sales_commission_payments (
			sales_rep_id, period_year, period_month,
			chr_activated, depot_activated, total_ca, objective_chr, objective_depots,
			prime_inscriptions, bonus_objectives, bonus_overshoot, commission_ca, total_amount,
			status, payment_date, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 'pending', $14::DATE, $15)
		ON CONFLICT (sales_rep_id, period_year, period_month) DO UPDATE
		SET chr_activated = EXCLUDED.chr_activated,
		    depot_activated = EXCLUDED.depot_activated,
		    total_ca = EXCLUDED.total_ca,
		    objective_chr = EXCLUDED.objective_chr,
		    objective_depots = EXCLUDED.objective_depots,
		    prime_inscriptions = EXCLUDED.prime_inscriptions,
		    bonus_objectives = EXCLUDED.bonus_objectives,
		    bonus_overshoot = EXCLUDED.bonus_overshoot,
		    commission_ca = EXCLUDED.commission_ca,
		    total_amount = EXCLUDED.total_amount,
		    payment_date = EXCLUDED.payment_date,
		    created_by = EXCLUDED.created_by,
		    updated_at = NOW()
		WHERE sales_commission_payments.status = 'pending'
		RETURNING ` + paymentColumns
	saved, err := scanPayment(r.db.QueryRow(ctx, query,
		p.SalesRepID, p.PeriodYear, p.PeriodMonth,
		p.ChrActivated, p.DepotActivated, p.TotalCa, p.ObjectiveChr, p.ObjectiveDepots,
		p.PrimeInscriptions, p.BonusObjectives, p.BonusOvershoot, p.CommissionCa, p.TotalAmount,
		p.PaymentDate.Format("2006-01-02"), p.CreatedBy,
	))
	if errors.Is(err, ErrPaymentNotFound) {
		return nil, ErrPaymentStatusConflict
	}
	return saved, err
}

// ValidatePendingPayments moves every pending payment of the period to validated in one
// transaction and returns the validated rows.
func (r *Repository) ValidatePendingPayments(ctx context.Context, period domain.Period, actor string, at time.Time) ([]domain.SalesCommissionPayment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Lock the period's rows so a concurrent save cannot slip in between.
	if _, err := tx.Exec(ctx, `
		SELECT id FROM sales_commission_payments
		WHERE period_year = $1 AND period_month = $2
		FOR UPDATE
	`, period.Year, period.Month); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		UPDATE sales_commission_payments
		SET status = 'validated', validated_at = $3, validated_by = $4, updated_at = NOW()
		WHERE period_year = $1 AND period_month = $2 AND status = 'pending'
		RETURNING `+paymentColumns, period.Year, period.Month, at, domain.ActorRef(actor))
	if err != nil {
		return nil, err
	}
	payments, err := collectPayments(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return payments, nil
}

// MarkPaymentPaid moves a validated payment to paid.
func (r *Repository) MarkPaymentPaid(ctx context.Context, paymentID, actor string, reference *string, at time.Time) (*domain.SalesCommissionPayment, error) {
	query := `
		UPDATE sales_commission_payments
		SET status = 'paid', paid_at = $2, paid_by = $3, payment_reference = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'validated'
		RETURNING ` + paymentColumns
	paid, err := scanPayment(r.db.QueryRow(ctx, query, paymentID, at, domain.ActorRef(actor), reference))
	if errors.Is(err, ErrPaymentNotFound) {
		if _, getErr := r.GetPaymentByID(ctx, paymentID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrPaymentStatusConflict
	}
	return paid, err
}

// ListPaymentsByPeriod returns the period's payments.
func (r *Repository) ListPaymentsByPeriod(ctx context.Context, period domain.Period) ([]domain.SalesCommissionPayment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+` FROM sales_commission_payments
		WHERE period_year = $1 AND period_month = $2
		ORDER BY total_amount DESC
	`, period.Year, period.Month)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

// ListPaymentsByRep returns a representative's payments, newest period first.
func (r *Repository) ListPaymentsByRep(ctx context.Context, repID string) ([]domain.SalesCommissionPayment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+` FROM sales_commission_payments
		WHERE sales_rep_id = $1
		ORDER BY period_year DESC, period_month DESC
	`, repID)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

// ListDueValidatedPayments returns validated payments whose payment date is on or before day.
func (r *Repository) ListDueValidatedPayments(ctx context.Context, day time.Time) ([]domain.SalesCommissionPayment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+` FROM sales_commission_payments
		WHERE status = 'validated' AND payment_date <= $1::DATE
		ORDER BY payment_date, sales_rep_id
	`, day.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}
