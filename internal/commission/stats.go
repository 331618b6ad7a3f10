package commission

import (
	"sort"
	"time"

	"github.com/ravito/ravito-backend/internal/domain"
)

// IsActivated re-evaluates the activation rule for one account. CHRs activate on
// cumulative delivered revenue, depots on cumulative delivered order count.
func IsActivated(account domain.AccountActivity, settings *domain.SalesCommissionSettings) bool {
	switch account.Role {
	case domain.RoleClient:
		return account.DeliveredRevenue >= settings.ChrActivationThreshold
	case domain.RoleSupplier:
		return account.DeliveredCount >= settings.DepotActivationDeliveries
	default:
		return false
	}
}

// BuildStats derives a representative's activity for the period from the accounts
// attributed to them. Registered and activated counts only consider accounts that
// were registered inside the period; TotalCa sums in-period revenue of every CHR
// the representative brought in. A nil objective counts as zero objectives.
func BuildStats(
	rep domain.SalesRepresentative,
	accounts []domain.AccountActivity,
	objective *domain.SalesObjective,
	period domain.Period,
	settings *domain.SalesCommissionSettings,
	loc *time.Location,
) (domain.CommercialActivityStats, error) {
	if settings == nil {
		return domain.CommercialActivityStats{}, ErrConfigurationMissing
	}
	if loc == nil {
		loc = time.UTC
	}

	stats := domain.CommercialActivityStats{
		SalesRepID:   rep.ID,
		SalesRepName: rep.Name,
	}
	if objective != nil {
		stats.ObjectiveChr = objective.ObjectiveChr
		stats.ObjectiveDepots = objective.ObjectiveDepots
	}

	start, end := period.Start(loc), period.End(loc)
	for _, account := range accounts {
		inPeriod := !account.RegisteredAt.Before(start) && !account.RegisteredAt.After(end)

		switch account.Role {
		case domain.RoleClient:
			stats.TotalCa += account.PeriodRevenue
			if !inPeriod {
				continue
			}
			stats.ChrRegistered++
			if IsActivated(account, settings) {
				stats.ChrActivated++
			}
		case domain.RoleSupplier:
			if !inPeriod {
				continue
			}
			stats.DepotRegistered++
			if IsActivated(account, settings) {
				stats.DepotActivated++
			}
		}
	}

	return stats, nil
}

// RankRepresentatives orders the period's stats by total activations, then revenue,
// then representative id, and assigns competition ranks: representatives tied on
// activations and revenue share a rank and the following rank is skipped.
func RankRepresentatives(stats []domain.CommercialActivityStats) []domain.CommercialActivityStats {
	ranked := make([]domain.CommercialActivityStats, len(stats))
	copy(ranked, stats)

	sort.SliceStable(ranked, func(i, j int) bool {
		ai := ranked[i].ChrActivated + ranked[i].DepotActivated
		aj := ranked[j].ChrActivated + ranked[j].DepotActivated
		if ai != aj {
			return ai > aj
		}
		if ranked[i].TotalCa != ranked[j].TotalCa {
			return ranked[i].TotalCa > ranked[j].TotalCa
		}
		return ranked[i].SalesRepID < ranked[j].SalesRepID
	})

	for i := range ranked {
		ranked[i].TotalReps = len(ranked)
		if i > 0 && sameStanding(ranked[i-1], ranked[i]) {
			ranked[i].Ranking = ranked[i-1].Ranking
			continue
		}
		ranked[i].Ranking = i + 1
	}

	return ranked
}

func sameStanding(a, b domain.CommercialActivityStats) bool {
	return a.ChrActivated+a.DepotActivated == b.ChrActivated+b.DepotActivated && a.TotalCa == b.TotalCa
}
