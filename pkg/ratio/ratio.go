package ratio

import (
	"cmp"
	"math"
	"slices"

	"growth-accounting/pkg/models"
)

// DefaultLookback : fenêtre par défaut du taux de croissance composé.
const DefaultLookback = 12

// Compute dérive les ratios de chaque série (un segment = une série, triée par période).
// Le BOP d'une ligne est la valeur active de la ligne précédente de la série.
// Les ratios non définis valent NaN.
func Compute(rows []models.PeriodGrowthRow, lookback int) []models.RatioRow {
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	bySegment := make(map[string][]models.PeriodGrowthRow)
	for _, r := range rows {
		bySegment[r.Segment] = append(bySegment[r.Segment], r)
	}

	out := make([]models.RatioRow, 0, len(rows))
	for _, series := range bySegment {
		slices.SortFunc(series, func(a, b models.PeriodGrowthRow) int { return a.Period.Compare(b.Period) })
		for t, r := range series {
			rr := models.RatioRow{
				PeriodGrowthRow:     r,
				UsersBOP:            math.NaN(),
				RevenueBOP:          math.NaN(),
				UserQuickRatio:      QuickRatio(float64(r.NewUsers+r.ResurrectedUsers), float64(r.ChurnedUsers)),
				RevenueQuickRatio:   QuickRatio(r.NewRevenue+r.ResurrectedRevenue+r.ExpansionRevenue, r.ChurnedRevenue+r.ContractionRevenue),
				NetExpansionRevenue: r.ExpansionRevenue + r.ContractionRevenue,
				RevenuePerUser:      Div(r.Revenue, float64(r.ActiveUsers)),
				UserGrowthRate:      math.NaN(),
				RevenueGrowthRate:   math.NaN(),
				Lookback:            lookback,
			}
			if t > 0 {
				prev := series[t-1]
				rr.UsersBOP = float64(prev.ActiveUsers)
				rr.RevenueBOP = prev.Revenue
			}
			rr.UserRetention = Div(float64(r.RetainedUsers), rr.UsersBOP)
			rr.RevenueRetention = Div(r.RetainedRevenue, rr.RevenueBOP)
			if t >= lookback {
				base := series[t-lookback]
				rr.UserGrowthRate = CompoundGrowth(float64(r.ActiveUsers), float64(base.ActiveUsers), lookback)
				rr.RevenueGrowthRate = CompoundGrowth(r.Revenue, base.Revenue, lookback)
			}
			out = append(out, rr)
		}
	}

	slices.SortFunc(out, func(a, b models.RatioRow) int {
		if c := a.Period.Compare(b.Period); c != 0 {
			return c
		}
		return cmp.Compare(a.Segment, b.Segment)
	})
	return out
}

// QuickRatio = gains / -pertes. Pertes >= 0 (pas de churn) : NaN, jamais +Inf ni 0.
func QuickRatio(gains, losses float64) float64 {
	if !(losses < 0) {
		return math.NaN()
	}
	return gains / -losses
}

// Div renvoie NaN pour un dénominateur nul ou NaN.
func Div(num, den float64) float64 {
	if den == 0 || math.IsNaN(den) || math.IsNaN(num) {
		return math.NaN()
	}
	return num / den
}

// CompoundGrowth = (cur/base)^(1/n) - 1, NaN si la base est nulle ou le rapport négatif.
func CompoundGrowth(cur, base float64, n int) float64 {
	if n <= 0 || base == 0 || math.IsNaN(base) {
		return math.NaN()
	}
	r := cur / base
	if r < 0 {
		return math.NaN()
	}
	return math.Pow(r, 1/float64(n)) - 1
}
