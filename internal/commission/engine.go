/**
 * @description
 * Commission estimation for sales representatives. Estimate is a pure function of
 * activity stats, platform settings and period; every monetary component is rounded
 * to the whole currency unit where it is computed.
 */
package commission

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ravito/ravito-backend/internal/domain"
)

var (
	ErrConfigurationMissing = errors.New("commission settings are not configured")
	ErrInconsistentStats    = errors.New("inconsistent activity stats")
)

var hundred = decimal.NewFromInt(100)

// Estimate computes the itemized commission of one representative for one period, with
// the projected payment date in UTC. Inputs are trusted as given; use EstimateChecked to
// reject impossible stats.
func Estimate(stats domain.CommercialActivityStats, settings *domain.SalesCommissionSettings, period domain.Period) (domain.CommissionEstimation, error) {
	return EstimateIn(stats, settings, period, time.UTC)
}

// EstimateIn is Estimate with the projected payment date placed in loc.
func EstimateIn(stats domain.CommercialActivityStats, settings *domain.SalesCommissionSettings, period domain.Period, loc *time.Location) (domain.CommissionEstimation, error) {
	if settings == nil {
		return domain.CommissionEstimation{}, ErrConfigurationMissing
	}

	est := domain.CommissionEstimation{
		SalesRepID: stats.SalesRepID,
		Period:     period,
	}

	// Registration primes.
	est.PrimeChrTotal = money(decimal.NewFromInt(int64(stats.ChrActivated)).Mul(decimal.NewFromInt(settings.PrimePerChrActivated)))
	est.PrimeDepotTotal = money(decimal.NewFromInt(int64(stats.DepotActivated)).Mul(decimal.NewFromInt(settings.PrimePerDepotActivated)))
	est.PrimeInscriptionsTotal = est.PrimeChrTotal + est.PrimeDepotTotal

	// Objective bonuses. An objective of zero can never be reached.
	est.ChrObjectiveReached = stats.ObjectiveChr > 0 && stats.ChrActivated >= stats.ObjectiveChr
	est.DepotObjectiveReached = stats.ObjectiveDepots > 0 && stats.DepotActivated >= stats.ObjectiveDepots
	if est.ChrObjectiveReached {
		est.BonusChrObjective = settings.BonusChrObjective
	}
	if est.DepotObjectiveReached {
		est.BonusDepotObjective = settings.BonusDepotObjective
	}
	if est.ChrObjectiveReached && est.DepotObjectiveReached {
		est.BonusCombined = settings.BonusCombined
	}
	est.BonusObjectivesTotal = est.BonusChrObjective + est.BonusDepotObjective + est.BonusCombined

	est.OvershootPercent, est.BonusOvershoot = overshoot(stats, settings)

	if settings.CaCommissionEnabled {
		est.CaRate = caRate(stats.TotalCa, settings)
		est.CommissionCa = money(decimal.NewFromInt(stats.TotalCa).Mul(decimal.NewFromFloat(est.CaRate)).Div(hundred))
	}

	est.TotalEstimated = est.PrimeInscriptionsTotal + est.BonusObjectivesTotal + est.BonusOvershoot + est.CommissionCa
	if loc == nil {
		loc = time.UTC
	}
	est.ProjectedPaymentDate = period.PaymentDate(loc)

	return est, nil
}

// EstimateChecked rejects stats that cannot describe a real period before estimating in
// loc.
func EstimateChecked(stats domain.CommercialActivityStats, settings *domain.SalesCommissionSettings, period domain.Period, loc *time.Location) (domain.CommissionEstimation, error) {
	if err := CheckStats(stats); err != nil {
		return domain.CommissionEstimation{}, err
	}
	return EstimateIn(stats, settings, period, loc)
}

// CheckStats reports the first impossible value found in stats.
func CheckStats(stats domain.CommercialActivityStats) error {
	switch {
	case stats.ChrRegistered < 0, stats.ChrActivated < 0, stats.DepotRegistered < 0, stats.DepotActivated < 0:
		return fmt.Errorf("%w: negative account count for %s", ErrInconsistentStats, stats.SalesRepID)
	case stats.ObjectiveChr < 0, stats.ObjectiveDepots < 0:
		return fmt.Errorf("%w: negative objective for %s", ErrInconsistentStats, stats.SalesRepID)
	case stats.TotalCa < 0:
		return fmt.Errorf("%w: negative revenue for %s", ErrInconsistentStats, stats.SalesRepID)
	case stats.ChrActivated > stats.ChrRegistered:
		return fmt.Errorf("%w: %d CHR activated out of %d registered", ErrInconsistentStats, stats.ChrActivated, stats.ChrRegistered)
	case stats.DepotActivated > stats.DepotRegistered:
		return fmt.Errorf("%w: %d depots activated out of %d registered", ErrInconsistentStats, stats.DepotActivated, stats.DepotRegistered)
	}
	return nil
}

// overshoot returns the realized/objective percentage and the single tier bonus it earns.
// Both objectives must be set for the bonus to apply.
func overshoot(stats domain.CommercialActivityStats, settings *domain.SalesCommissionSettings) (float64, int64) {
	if stats.ObjectiveChr <= 0 || stats.ObjectiveDepots <= 0 {
		return 0, 0
	}

	totalObjective := decimal.NewFromInt(int64(stats.ObjectiveChr + stats.ObjectiveDepots))
	totalRealized := decimal.NewFromInt(int64(stats.ChrActivated + stats.DepotActivated))
	percent := totalRealized.Div(totalObjective).Mul(hundred)
	display := percent.Round(2).InexactFloat64()

	switch {
	case percent.GreaterThanOrEqual(decimal.NewFromInt(int64(settings.OvershootTier2Threshold))):
		return display, settings.OvershootTier2Bonus
	case percent.GreaterThanOrEqual(decimal.NewFromInt(int64(settings.OvershootTier1Threshold))):
		return display, settings.OvershootTier1Bonus
	default:
		return display, 0
	}
}

// caRate picks the one bracket the whole CA falls into.
func caRate(totalCa int64, settings *domain.SalesCommissionSettings) float64 {
	switch {
	case totalCa > settings.CaTier3Max:
		return settings.CaTier4Rate
	case totalCa > settings.CaTier2Max:
		return settings.CaTier3Rate
	case totalCa > settings.CaTier1Max:
		return settings.CaTier2Rate
	default:
		return settings.CaTier1Rate
	}
}

// money rounds half away from zero to a whole currency unit.
func money(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
