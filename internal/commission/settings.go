package commission

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ravito/ravito-backend/internal/domain"
)

// ErrInvalidSettings is matched by every *ValidationError.
var ErrInvalidSettings = errors.New("invalid commission settings")

// Violation names one rejected settings field.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every violation found in a settings record.
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s %s", v.Field, v.Message))
	}
	return fmt.Sprintf("%s: %s", ErrInvalidSettings, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidSettings
}

// SettingsPatch is a partial update of the commission settings. Nil fields are left
// unchanged by Merge.
type SettingsPatch struct {
	ChrActivationThreshold    *int64 `json:"chr_activation_threshold,omitempty"`
	DepotActivationDeliveries *int   `json:"depot_activation_deliveries,omitempty"`

	PrimePerChrActivated   *int64 `json:"prime_per_chr_activated,omitempty"`
	PrimePerDepotActivated *int64 `json:"prime_per_depot_activated,omitempty"`

	BonusChrObjective   *int64 `json:"bonus_chr_objective,omitempty"`
	BonusDepotObjective *int64 `json:"bonus_depot_objective,omitempty"`
	BonusCombined       *int64 `json:"bonus_combined,omitempty"`
	BonusBestOfMonth    *int64 `json:"bonus_best_of_month,omitempty"`

	OvershootTier1Threshold *int   `json:"overshoot_tier1_threshold,omitempty"`
	OvershootTier2Threshold *int   `json:"overshoot_tier2_threshold,omitempty"`
	OvershootTier1Bonus     *int64 `json:"overshoot_tier1_bonus,omitempty"`
	OvershootTier2Bonus     *int64 `json:"overshoot_tier2_bonus,omitempty"`

	CaCommissionEnabled *bool    `json:"ca_commission_enabled,omitempty"`
	CaTier1Max          *int64   `json:"ca_tier1_max,omitempty"`
	CaTier2Max          *int64   `json:"ca_tier2_max,omitempty"`
	CaTier3Max          *int64   `json:"ca_tier3_max,omitempty"`
	CaTier1Rate         *float64 `json:"ca_tier1_rate,omitempty"`
	CaTier2Rate         *float64 `json:"ca_tier2_rate,omitempty"`
	CaTier3Rate         *float64 `json:"ca_tier3_rate,omitempty"`
	CaTier4Rate         *float64 `json:"ca_tier4_rate,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p == SettingsPatch{}
}

// Merge applies patch over base and validates the result. The returned settings are
// only meaningful when err is nil.
func Merge(base domain.SalesCommissionSettings, patch SettingsPatch) (domain.SalesCommissionSettings, error) {
	merged := base

	setInt64(&merged.ChrActivationThreshold, patch.ChrActivationThreshold)
	setInt(&merged.DepotActivationDeliveries, patch.DepotActivationDeliveries)
	setInt64(&merged.PrimePerChrActivated, patch.PrimePerChrActivated)
	setInt64(&merged.PrimePerDepotActivated, patch.PrimePerDepotActivated)
	setInt64(&merged.BonusChrObjective, patch.BonusChrObjective)
	setInt64(&merged.BonusDepotObjective, patch.BonusDepotObjective)
	setInt64(&merged.BonusCombined, patch.BonusCombined)
	setInt64(&merged.BonusBestOfMonth, patch.BonusBestOfMonth)
	setInt(&merged.OvershootTier1Threshold, patch.OvershootTier1Threshold)
	setInt(&merged.OvershootTier2Threshold, patch.OvershootTier2Threshold)
	setInt64(&merged.OvershootTier1Bonus, patch.OvershootTier1Bonus)
	setInt64(&merged.OvershootTier2Bonus, patch.OvershootTier2Bonus)
	if patch.CaCommissionEnabled != nil {
		merged.CaCommissionEnabled = *patch.CaCommissionEnabled
	}
	setInt64(&merged.CaTier1Max, patch.CaTier1Max)
	setInt64(&merged.CaTier2Max, patch.CaTier2Max)
	setInt64(&merged.CaTier3Max, patch.CaTier3Max)
	setFloat(&merged.CaTier1Rate, patch.CaTier1Rate)
	setFloat(&merged.CaTier2Rate, patch.CaTier2Rate)
	setFloat(&merged.CaTier3Rate, patch.CaTier3Rate)
	setFloat(&merged.CaTier4Rate, patch.CaTier4Rate)

	if err := Validate(merged); err != nil {
		return base, err
	}
	return merged, nil
}

// Validate checks every field range of a complete settings record.
func Validate(s domain.SalesCommissionSettings) error {
	var violations []Violation
	add := func(field, msg string) {
		violations = append(violations, Violation{Field: field, Message: msg})
	}

	amounts := []struct {
		field string
		value int64
	}{
		{"chr_activation_threshold", s.ChrActivationThreshold},
		{"prime_per_chr_activated", s.PrimePerChrActivated},
		{"prime_per_depot_activated", s.PrimePerDepotActivated},
		{"bonus_chr_objective", s.BonusChrObjective},
		{"bonus_depot_objective", s.BonusDepotObjective},
		{"bonus_combined", s.BonusCombined},
		{"bonus_best_of_month", s.BonusBestOfMonth},
		{"overshoot_tier1_bonus", s.OvershootTier1Bonus},
		{"overshoot_tier2_bonus", s.OvershootTier2Bonus},
		{"ca_tier1_max", s.CaTier1Max},
		{"ca_tier2_max", s.CaTier2Max},
		{"ca_tier3_max", s.CaTier3Max},
	}
	for _, a := range amounts {
		if a.value < 0 {
			add(a.field, "must not be negative")
		}
	}

	if s.DepotActivationDeliveries < 0 {
		add("depot_activation_deliveries", "must not be negative")
	}

	rates := []struct {
		field string
		value float64
	}{
		{"ca_tier1_rate", s.CaTier1Rate},
		{"ca_tier2_rate", s.CaTier2Rate},
		{"ca_tier3_rate", s.CaTier3Rate},
		{"ca_tier4_rate", s.CaTier4Rate},
	}
	for _, r := range rates {
		if r.value < 0 || r.value > 100 {
			add(r.field, "must be between 0 and 100")
		}
	}

	if s.OvershootTier1Threshold <= 0 {
		add("overshoot_tier1_threshold", "must be greater than 0")
	}
	if s.OvershootTier2Threshold <= 0 {
		add("overshoot_tier2_threshold", "must be greater than 0")
	}
	if s.OvershootTier2Threshold < s.OvershootTier1Threshold {
		add("overshoot_tier2_threshold", "must not be lower than overshoot_tier1_threshold")
	}

	// Bands only matter while the CA commission is on; disabled settings may leave them at zero.
	if s.CaCommissionEnabled {
		if s.CaTier2Max <= s.CaTier1Max {
			add("ca_tier2_max", "must be greater than ca_tier1_max")
		}
		if s.CaTier3Max <= s.CaTier2Max {
			add("ca_tier3_max", "must be greater than ca_tier2_max")
		}
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func setInt64(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
