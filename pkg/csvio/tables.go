package csvio

import (
	"fmt"
	"sort"
	"time"

	"growth-accounting/pkg/models"
	"growth-accounting/pkg/period"
)

// Table est un résultat tabulaire : noms de colonnes stables et lignes de
// cellules (string, int, float64, bool, time.Time, period.Label).
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

// GrowthTable : comptabilité de croissance et ratios par (période, segment).
func GrowthTable(rows []models.RatioRow, g period.Grain) Table {
	t := Table{
		Name: fmt.Sprintf("%s_growth_accounting", g),
		Header: []string{
			g.Unit(), "segment",
			"active_users", "retained_users", "new_users", "resurrected_users", "churned_users",
			"users_bop", "user_retention", "user_quick_ratio", "user_growth_rate",
			"revenue", "retained_revenue", "new_revenue", "resurrected_revenue",
			"expansion_revenue", "contraction_revenue", "churned_revenue",
			"revenue_bop", "revenue_retention", "revenue_quick_ratio", "net_expansion_revenue",
			"revenue_growth_rate", "revenue_per_user", "growth_rate_lookback",
		},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{
			r.Period, r.Segment,
			r.ActiveUsers, r.RetainedUsers, r.NewUsers, r.ResurrectedUsers, r.ChurnedUsers,
			r.UsersBOP, r.UserRetention, r.UserQuickRatio, r.UserGrowthRate,
			r.Revenue, r.RetainedRevenue, r.NewRevenue, r.ResurrectedRevenue,
			r.ExpansionRevenue, r.ContractionRevenue, r.ChurnedRevenue,
			r.RevenueBOP, r.RevenueRetention, r.RevenueQuickRatio, r.NetExpansionRevenue,
			r.RevenueGrowthRate, r.RevenuePerUser, r.Lookback,
		})
	}
	return t
}

// CohortTable : rétention et revenu cumulé par cohorte.
func CohortTable(rows []models.CohortRow, g period.Grain) Table {
	unit := g.Unit()
	t := Table{
		Name: fmt.Sprintf("%s_cohorts", g),
		Header: []string{
			"first_" + string(g), unit, "segment", unit + "s Since First",
			"cohort_size", "customer_count", "income", "cumulative_income",
			"income_per_cohort_customer", "retention",
		},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{
			r.FirstPeriod, r.Period, r.Segment, r.PeriodsSinceFirst,
			r.CohortSize, r.CustomerCount, r.Income, r.CumulativeIncome,
			r.IncomePerCohortCustomer, r.Retention,
		})
	}
	return t
}

// WindowTable : comptabilité de croissance sur fenêtres glissantes.
func WindowTable(rows []models.WindowRow) Table {
	t := Table{
		Name: "rolling_windows",
		Header: []string{
			"window_end_date", "segment", "window_days",
			"active_users", "retained_users", "new_users", "resurrected_users", "churned_users",
			"revenue", "last_revenue", "retained_revenue", "new_revenue", "resurrected_revenue",
			"expansion_revenue", "contraction_revenue", "churned_revenue",
			"user_quick_ratio", "user_retention_rate", "pop_user_growth_rate",
			"revenue_quick_ratio", "revenue_retention_rate", "pop_revenue_growth_rate",
		},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{
			r.WindowEnd, r.Segment, r.WindowDays,
			r.ActiveUsers, r.RetainedUsers, r.NewUsers, r.ResurrectedUsers, r.ChurnedUsers,
			r.Revenue, r.LastRevenue, r.RetainedRevenue, r.NewRevenue, r.ResurrectedRevenue,
			r.ExpansionRevenue, r.ContractionRevenue, r.ChurnedRevenue,
			r.UserQuickRatio, r.UserRetentionRate, r.UserGrowthRate,
			r.RevenueQuickRatio, r.RevenueRetentionRate, r.RevenueGrowthRate,
		})
	}
	return t
}

// EngagementTable : ratios d'engagement par fenêtre, une paire de colonnes
// (utilisateurs, ratio) par seuil de breakout.
func EngagementTable(rows []models.EngagementRow) Table {
	t := Table{
		Name: "engagement",
		Header: []string{
			"window_end_date", "segment", "grain", "window_days",
			"active_periods", "active_users", "window_ratio", "window_frequency",
		},
	}
	var thresholds []int
	seen := make(map[int]bool)
	for _, r := range rows {
		for _, b := range r.Breakouts {
			if !seen[b.Threshold] {
				seen[b.Threshold] = true
				thresholds = append(thresholds, b.Threshold)
			}
		}
	}
	sort.Ints(thresholds)
	for _, b := range thresholds {
		t.Header = append(t.Header, fmt.Sprintf("breakout_%d_users", b), fmt.Sprintf("breakout_%d_ratio", b))
	}

	for _, r := range rows {
		row := []any{
			r.WindowEnd, r.Segment, string(r.Grain), r.WindowDays,
			r.ActivePeriods, r.ActiveUsers, r.WindowRatio, r.WindowFrequency,
		}
		shares := make(map[int]models.BreakoutShare, len(r.Breakouts))
		for _, b := range r.Breakouts {
			shares[b.Threshold] = b
		}
		for _, b := range thresholds {
			s, ok := shares[b]
			if !ok {
				row = append(row, nil, nil)
				continue
			}
			row = append(row, s.Users, s.Ratio)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// IncomeTable : distribution du revenu par utilisateur (rang, part cumulée, décile).
func IncomeTable(rows []models.UserIncome) Table {
	t := Table{
		Name: "income_distribution",
		Header: []string{
			"user_id", "segment", "active_periods", "amount", "rank",
			"cumulative_amount", "cumulative_share", "decile",
		},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{
			r.UserID, r.Segment, r.ActivePeriods, r.Amount, r.Rank,
			r.CumulativeAmount, r.CumulativeShare, r.Decile,
		})
	}
	return t
}

// ConcentrationTable : nombre d'utilisateurs faisant 80 % du revenu.
func ConcentrationTable(rows []models.Concentration) Table {
	t := Table{
		Name:   "revenue_concentration",
		Header: []string{"segment", "total_amount", "total_users", "revenue_80pct_user_count", "revenue_80pct_ratio"},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{r.Segment, r.TotalAmount, r.TotalUsers, r.Revenue80PctUserCount, r.Revenue80PctRatio})
	}
	return t
}

// HistogramTable : utilisateurs par nombre de sous-périodes actives.
func HistogramTable(rows []models.HistogramBin, g period.Grain) Table {
	t := Table{
		Name:   fmt.Sprintf("active_%ss_histogram", g),
		Header: []string{"segment", fmt.Sprintf("active_%ss", g), "user_count", fmt.Sprintf("avg_%ss_active", g)},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{r.Segment, r.ActivePeriods, r.UserCount, r.AvgActive})
	}
	return t
}

func formatTime(v time.Time) string { return v.Format(time.DateOnly) }
