package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ravito/ravito-backend/internal/domain"
)

const settingsColumns = `chr_activation_threshold, depot_activation_deliveries,
		       prime_per_chr_activated, prime_per_depot_activated,
		       bonus_chr_objective, bonus_depot_objective, bonus_combined, bonus_best_of_month,
		       overshoot_tier1_threshold, overshoot_tier2_threshold, overshoot_tier1_bonus, overshoot_tier2_bonus,
		       ca_commission_enabled, ca_tier1_max, ca_tier2_max, ca_tier3_max,
		       ca_tier1_rate, ca_tier2_rate, ca_tier3_rate, ca_tier4_rate,
		       updated_at, updated_by`

func scanSettings(row pgx.Row) (*domain.SalesCommissionSettings, error) {
	var s domain.SalesCommissionSettings
	if err := row.Scan(
		&s.ChrActivationThreshold,
		&s.DepotActivationDeliveries,
		&s.PrimePerChrActivated,
		&s.PrimePerDepotActivated,
		&s.BonusChrObjective,
		&s.BonusDepotObjective,
		&s.BonusCombined,
		&s.BonusBestOfMonth,
		&s.OvershootTier1Threshold,
		&s.OvershootTier2Threshold,
		&s.OvershootTier1Bonus,
		&s.OvershootTier2Bonus,
		&s.CaCommissionEnabled,
		&s.CaTier1Max,
		&s.CaTier2Max,
		&s.CaTier3Max,
		&s.CaTier1Rate,
		&s.CaTier2Rate,
		&s.CaTier3Rate,
		&s.CaTier4Rate,
		&s.UpdatedAt,
		&s.UpdatedBy,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}
	return &s, nil
}

// GetCommissionSettings loads the platform's singleton settings row.
func (r *Repository) GetCommissionSettings(ctx context.Context) (*domain.SalesCommissionSettings, error) {
	query := `SELECT ` + settingsColumns + ` FROM sales_commission_settings ORDER BY updated_at DESC LIMIT 1`
	return scanSettings(r.db.QueryRow(ctx, query))
}

// SaveCommissionSettings replaces the singleton settings row, creating it on first save.
func (r *Repository) SaveCommissionSettings(ctx context.Context, s domain.SalesCommissionSettings, actor string) (*domain.SalesCommissionSettings, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	args := []interface{}{
		s.ChrActivationThreshold, s.DepotActivationDeliveries,
		s.PrimePerChrActivated, s.PrimePerDepotActivated,
		s.BonusChrObjective, s.BonusDepotObjective, s.BonusCombined, s.BonusBestOfMonth,
		s.OvershootTier1Threshold, s.OvershootTier2Threshold, s.OvershootTier1Bonus, s.OvershootTier2Bonus,
		s.CaCommissionEnabled, s.CaTier1Max, s.CaTier2Max, s.CaTier3Max,
		s.CaTier1Rate, s.CaTier2Rate, s.CaTier3Rate, s.CaTier4Rate,
		domain.ActorRef(actor),
	}

	saved, err := scanSettings(tx.QueryRow(ctx, `
		UPDATE sales_commission_settings
		SET chr_activation_threshold = $1, depot_activation_deliveries = $2,
		    prime_per_chr_activated = $3, prime_per_depot_activated = $4,
		    bonus_chr_objective = $5, bonus_depot_objective = $6, bonus_combined = $7, bonus_best_of_month = $8,
		    overshoot_tier1_threshold = $9, overshoot_tier2_threshold = $10,
		    overshoot_tier1_bonus = $11, overshoot_tier2_bonus = $12,
		    ca_commission_enabled = $13, ca_tier1_max = $14, ca_tier2_max = $15, ca_tier3_max = $16,
		    ca_tier1_rate = $17, ca_tier2_rate = $18, ca_tier3_rate = $19, ca_tier4_rate = $20,
		    updated_by = $21, updated_at = NOW()
		WHERE id = (SELECT id FROM sales_commission_settings ORDER BY updated_at DESC LIMIT 1)
		RETURNING `+settingsColumns, args...))
	if errors.Is(err, ErrSettingsNotFound) {
		saved, err = scanSettings(tx.QueryRow(ctx, `
			INSERT INTO sales_commission_settings (
				chr_activation_threshold, depot_activation_deliveries,
				prime_per_chr_activated, prime_per_depot_activated,
				bonus_chr_objective, bonus_depot_objective, bonus_combined, bonus_best_of_month,
				overshoot_tier1_threshold, overshoot_tier2_threshold, overshoot_tier1_bonus, overshoot_tier2_bonus,
				ca_commission_enabled, ca_tier1_max, ca_tier2_max, ca_tier3_max,
				ca_tier1_rate, ca_tier2_rate, ca_tier3_rate, ca_tier4_rate,
				updated_by
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
			RETURNING `+settingsColumns, args...))
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return saved, nil
}

const salesRepColumns = `id, user_id, name, email, phone, is_active, created_at`

func scanSalesRep(row pgx.Row) (*domain.SalesRepresentative, error) {
	var rep domain.SalesRepresentative
	if err := row.Scan(&rep.ID, &rep.UserID, &rep.Name, &rep.Email, &rep.Phone, &rep.IsActive, &rep.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSalesRepNotFound
		}
		return nil, err
	}
	return &rep, nil
}

// ListSalesRepresentatives returns representatives ordered by name.
func (r *Repository) ListSalesRepresentatives(ctx context.Context, activeOnly bool) ([]domain.SalesRepresentative, error) {
	query := `SELECT ` + salesRepColumns + ` FROM sales_representatives WHERE ($1 = FALSE OR is_active = TRUE) ORDER BY name`
	rows, err := r.db.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reps := []domain.SalesRepresentative{}
	for rows.Next() {
		rep, err := scanSalesRep(rows)
		if err != nil {
			return nil, err
		}
		reps = append(reps, *rep)
	}
	return reps, rows.Err()
}

// GetSalesRepresentative loads one representative.
func (r *Repository) GetSalesRepresentative(ctx context.Context, repID string) (*domain.SalesRepresentative, error) {
	return scanSalesRep(r.db.QueryRow(ctx, `SELECT `+salesRepColumns+` FROM sales_representatives WHERE id = $1`, repID))
}

// GetSalesRepresentativeByUserID resolves the representative record of a signed-in user.
func (r *Repository) GetSalesRepresentativeByUserID(ctx context.Context, userID string) (*domain.SalesRepresentative, error) {
	return scanSalesRep(r.db.QueryRow(ctx, `SELECT `+salesRepColumns+` FROM sales_representatives WHERE user_id = $1`, userID))
}

// GetSalesObjective returns the representative's objective for the period, or nil when
// none is configured.
func (r *Repository) GetSalesObjective(ctx context.Context, repID string, period domain.Period) (*domain.SalesObjective, error) {
	var o domain.SalesObjective
	err := r.db.QueryRow(ctx, `
		SELECT sales_rep_id, year, month, objective_chr, objective_depots
		FROM sales_objectives
		WHERE sales_rep_id = $1 AND year = $2 AND month = $3
	`, repID, period.Year, period.Month).Scan(&o.SalesRepID, &o.Year, &o.Month, &o.ObjectiveChr, &o.ObjectiveDepots)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// ListSalesObjectives returns every objective configured for the period.
func (r *Repository) ListSalesObjectives(ctx context.Context, period domain.Period) ([]domain.SalesObjective, error) {
	rows, err := r.db.Query(ctx, `
		SELECT sales_rep_id, year, month, objective_chr, objective_depots
		FROM sales_objectives
		WHERE year = $1 AND month = $2
	`, period.Year, period.Month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	objectives := []domain.SalesObjective{}
	for rows.Next() {
		var o domain.SalesObjective
		if err := rows.Scan(&o.SalesRepID, &o.Year, &o.Month, &o.ObjectiveChr, &o.ObjectiveDepots); err != nil {
			return nil, err
		}
		objectives = append(objectives, o)
	}
	return objectives, rows.Err()
}

// UpsertSalesObjective creates or replaces an objective.
func (r *Repository) UpsertSalesObjective(ctx context.Context, o domain.SalesObjective) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sales_objectives (sales_rep_id, year, month, objective_chr, objective_depots)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sales_rep_id, year, month)
		DO UPDATE SET objective_chr = EXCLUDED.objective_chr,
		              objective_depots = EXCLUDED.objective_depots,
		              updated_at = NOW()
	`, o.SalesRepID, o.Year, o.Month, o.ObjectiveChr, o.ObjectiveDepots)
	return err
}

// ListAccountActivity returns the delivered-order footprint of every CHR and depot the
// representative registered up to periodEnd. Activation totals are cumulative up to
// periodEnd; period revenue only counts deliveries inside [periodStart, periodEnd].
func (r *Repository) ListAccountActivity(ctx context.Context, repID string, periodStart, periodEnd time.Time) ([]domain.AccountActivity, error) {
	query := `
		SELECT
			p.id,
			p.role,
			p.created_at,
			COALESCE(SUM(o.total_amount) FILTER (WHERE o.delivered_at <= $3), 0),
			COUNT(o.id) FILTER (WHERE o.delivered_at <= $3),
			COALESCE(SUM(o.total_amount) FILTER (WHERE o.delivered_at >= $2 AND o.delivered_at <= $3), 0)
		FROM profiles p
		LEFT JOIN orders o
			ON o.status = 'delivered'
			AND ((p.role = 'client' AND o.client_id = p.id) OR (p.role = 'supplier' AND o.supplier_id = p.id))
		WHERE p.registered_by_sales_rep_id = $1
		  AND p.role IN ('client', 'supplier')
		  AND p.created_at <= $3
		GROUP BY p.id, p.role, p.created_at
	`
	rows, err := r.db.Query(ctx, query, repID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activity []domain.AccountActivity
	for rows.Next() {
		var a domain.AccountActivity
		if err := rows.Scan(&a.AccountID, &a.Role, &a.RegisteredAt, &a.DeliveredRevenue, &a.DeliveredCount, &a.PeriodRevenue); err != nil {
			return nil, err
		}
		activity = append(activity, a)
	}
	return activity, rows.Err()
}
