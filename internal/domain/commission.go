/**
 * @description
 * Domain models for the sales-representative commission engine and its
 * persisted payment records.
 */
package domain

import "time"

// SalesCommissionSettings is the platform-wide commission configuration.
// Money fields are whole currency units; thresholds are integer percentages;
// CA rates are percentages that may carry decimals.
type SalesCommissionSettings struct {
	ChrActivationThreshold    int64 `json:"chr_activation_threshold"`
	DepotActivationDeliveries int   `json:"depot_activation_deliveries"`

	PrimePerChrActivated   int64 `json:"prime_per_chr_activated"`
	PrimePerDepotActivated int64 `json:"prime_per_depot_activated"`

	BonusChrObjective   int64 `json:"bonus_chr_objective"`
	BonusDepotObjective int64 `json:"bonus_depot_objective"`
	BonusCombined       int64 `json:"bonus_combined"`
	BonusBestOfMonth    int64 `json:"bonus_best_of_month"`

	OvershootTier1Threshold int   `json:"overshoot_tier1_threshold"`
	OvershootTier2Threshold int   `json:"overshoot_tier2_threshold"`
	OvershootTier1Bonus     int64 `json:"overshoot_tier1_bonus"`
	OvershootTier2Bonus     int64 `json:"overshoot_tier2_bonus"`

	CaCommissionEnabled bool    `json:"ca_commission_enabled"`
	CaTier1Max          int64   `json:"ca_tier1_max"`
	CaTier2Max          int64   `json:"ca_tier2_max"`
	CaTier3Max          int64   `json:"ca_tier3_max"`
	CaTier1Rate         float64 `json:"ca_tier1_rate"`
	CaTier2Rate         float64 `json:"ca_tier2_rate"`
	CaTier3Rate         float64 `json:"ca_tier3_rate"`
	CaTier4Rate         float64 `json:"ca_tier4_rate"`

	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy *string   `json:"updated_by,omitempty"`
}

// SalesRepresentative is a commercial agent registering CHRs and depots.
type SalesRepresentative struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"user_id,omitempty"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// SalesObjective is the objective configured for one representative and period.
type SalesObjective struct {
	SalesRepID      string `json:"sales_rep_id"`
	Year            int    `json:"year"`
	Month           int    `json:"month"`
	ObjectiveChr    int    `json:"objective_chr"`
	ObjectiveDepots int    `json:"objective_depots"`
}

// AccountActivity is the order footprint of one account registered by a representative.
// DeliveredRevenue and DeliveredCount are cumulative up to the end of the evaluated
// period; PeriodRevenue only counts orders delivered inside it.
type AccountActivity struct {
	AccountID        string    `json:"account_id"`
	Role             UserRole  `json:"role"`
	RegisteredAt     time.Time `json:"registered_at"`
	DeliveredRevenue int64     `json:"delivered_revenue"`
	DeliveredCount   int       `json:"delivered_count"`
	PeriodRevenue    int64     `json:"period_revenue"`
}

// CommercialActivityStats is derived per period and never persisted.
type CommercialActivityStats struct {
	SalesRepID      string `json:"sales_rep_id"`
	SalesRepName    string `json:"sales_rep_name,omitempty"`
	ChrRegistered   int    `json:"chr_registered"`
	ChrActivated    int    `json:"chr_activated"`
	DepotRegistered int    `json:"depot_registered"`
	DepotActivated  int    `json:"depot_activated"`
	TotalCa         int64  `json:"total_ca"`
	ObjectiveChr    int    `json:"objective_chr"`
	ObjectiveDepots int    `json:"objective_depots"`
	Ranking         int    `json:"ranking"`
	TotalReps       int    `json:"total_reps"`
}

// CommissionEstimation is the itemized output of the estimation algorithm.
type CommissionEstimation struct {
	SalesRepID string `json:"sales_rep_id"`
	Period     Period `json:"period"`

	PrimeChrTotal          int64 `json:"prime_chr_total"`
	PrimeDepotTotal        int64 `json:"prime_depot_total"`
	PrimeInscriptionsTotal int64 `json:"prime_inscriptions_total"`

	ChrObjectiveReached   bool  `json:"chr_objective_reached"`
	DepotObjectiveReached bool  `json:"depot_objective_reached"`
	BonusChrObjective     int64 `json:"bonus_chr_objective"`
	BonusDepotObjective   int64 `json:"bonus_depot_objective"`
	BonusCombined         int64 `json:"bonus_combined"`
	BonusObjectivesTotal  int64 `json:"bonus_objectives_total"`

	OvershootPercent float64 `json:"overshoot_percent"`
	BonusOvershoot   int64   `json:"bonus_overshoot"`

	CaRate       float64 `json:"ca_rate"`
	CommissionCa int64   `json:"commission_ca"`

	TotalEstimated       int64     `json:"total_estimated"`
	ProjectedPaymentDate time.Time `json:"projected_payment_date"`
}

// PaymentStatus is the lifecycle state of a persisted commission payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentValidated PaymentStatus = "validated"
	PaymentPaid      PaymentStatus = "paid"
)

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// The lifecycle only moves forward: pending -> validated -> paid.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return next == PaymentValidated
	case PaymentValidated:
		return next == PaymentPaid
	default:
		return false
	}
}

// SalesCommissionPayment freezes an estimation at save time.
type SalesCommissionPayment struct {
	ID          string `json:"id"`
	SalesRepID  string `json:"sales_rep_id"`
	PeriodYear  int    `json:"period_year"`
	PeriodMonth int    `json:"period_month"`

	ChrActivated    int   `json:"chr_activated"`
	DepotActivated  int   `json:"depot_activated"`
	TotalCa         int64 `json:"total_ca"`
	ObjectiveChr    int   `json:"objective_chr"`
	ObjectiveDepots int   `json:"objective_depots"`

	PrimeInscriptions int64 `json:"prime_inscriptions"`
	BonusObjectives   int64 `json:"bonus_objectives"`
	BonusOvershoot    int64 `json:"bonus_overshoot"`
	CommissionCa      int64 `json:"commission_ca"`
	TotalAmount       int64 `json:"total_amount"`

	Status           PaymentStatus `json:"status"`
	PaymentDate      time.Time     `json:"payment_date"`
	CreatedBy        *string       `json:"created_by,omitempty"`
	ValidatedAt      *time.Time    `json:"validated_at,omitempty"`
	ValidatedBy      *string       `json:"validated_by,omitempty"`
	PaidAt           *time.Time    `json:"paid_at,omitempty"`
	PaidBy           *string       `json:"paid_by,omitempty"`
	PaymentReference *string       `json:"payment_reference,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Period returns the calendar month the payment covers.
func (p SalesCommissionPayment) Period() Period {
	return Period{Year: p.PeriodYear, Month: p.PeriodMonth}
}

// NewPaymentFromEstimation copies the estimation figures into a pending payment.
func NewPaymentFromEstimation(stats CommercialActivityStats, est CommissionEstimation, actor string) SalesCommissionPayment {
	return SalesCommissionPayment{
		SalesRepID:        est.SalesRepID,
		PeriodYear:        est.Period.Year,
		PeriodMonth:       est.Period.Month,
		ChrActivated:      stats.ChrActivated,
		DepotActivated:    stats.DepotActivated,
		TotalCa:           stats.TotalCa,
		ObjectiveChr:      stats.ObjectiveChr,
		ObjectiveDepots:   stats.ObjectiveDepots,
		PrimeInscriptions: est.PrimeInscriptionsTotal,
		BonusObjectives:   est.BonusObjectivesTotal,
		BonusOvershoot:    est.BonusOvershoot,
		CommissionCa:      est.CommissionCa,
		TotalAmount:       est.TotalEstimated,
		Status:            PaymentPending,
		PaymentDate:       est.ProjectedPaymentDate,
		CreatedBy:         ActorRef(actor),
	}
}

// CommissionOverview pairs the live stats and estimation of one representative with
// the persisted payment for the same period, if any.
type CommissionOverview struct {
	Stats      CommercialActivityStats `json:"stats"`
	Estimation CommissionEstimation    `json:"estimation"`
	Payment    *SalesCommissionPayment `json:"payment,omitempty"`
}
