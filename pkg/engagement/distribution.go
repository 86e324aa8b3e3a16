package engagement

import (
	"cmp"
	"math"
	"slices"

	"growth-accounting/pkg/activity"
	"growth-accounting/pkg/models"
	"growth-accounting/pkg/ratio"
)

// ParetoShare : part du revenu visée par le comptage "80 %".
const ParetoShare = 0.8

// Distribution classe les utilisateurs de chaque segment par revenu décroissant,
// calcule la part cumulée du revenu, le nombre minimal d'utilisateurs atteignant
// 80 % du revenu et le décile de revenu de chacun.
func Distribution(daily []models.DailyActivity, w Window) ([]models.UserIncome, []models.Concentration, error) {
	usage, err := Usage(daily, w)
	if err != nil {
		return nil, nil, err
	}
	segments, groups := bySegment(usage)

	var incomes []models.UserIncome
	var conc []models.Concentration
	for _, seg := range segments {
		rows, c := rankSegment(groups[seg])
		incomes = append(incomes, rows...)
		conc = append(conc, c)
	}
	return incomes, conc, nil
}

// rankSegment traite un segment. users est dans l'ordre (segment, utilisateur),
// qui sert d'ordre d'insertion pour départager les égalités.
func rankSegment(users []models.UserUsage) ([]models.UserIncome, models.Concentration) {
	n := len(users)
	amounts := make([]float64, n)
	for i, u := range users {
		amounts[i] = u.Amount
	}
	total := activity.Sum(amounts)

	// rang croissant, égalités dans l'ordre d'insertion
	asc := make([]int, n)
	for i := range asc {
		asc[i] = i
	}
	slices.SortStableFunc(asc, func(a, b int) int { return cmp.Compare(users[a].Amount, users[b].Amount) })

	out := make([]models.UserIncome, n)
	for r, idx := range asc {
		out[n-1-r] = models.UserIncome{
			UserUsage: users[idx],
			Rank:      n - r,
			Decile:    Decile(r+1, n),
		}
	}

	c := models.Concentration{Segment: users[0].Segment, TotalAmount: total, TotalUsers: n}
	var cum float64
	for i := range out {
		cum += out[i].Amount
		out[i].CumulativeAmount = cum
		out[i].CumulativeShare = ratio.Div(cum, total)
		if c.Revenue80PctUserCount == 0 && out[i].CumulativeShare >= ParetoShare {
			c.Revenue80PctUserCount = i + 1
		}
	}
	c.Revenue80PctRatio = ratio.Div(float64(c.Revenue80PctUserCount), float64(n))
	return out, c
}

// Decile répartit le rang croissant r (1..n) en 10 classes d'effectif égal,
// comme un découpage par quantiles des rangs : 1 = plus faibles revenus.
func Decile(r, n int) int {
	if n <= 1 {
		return 1
	}
	d := int(math.Ceil(float64(r-1) * 10 / float64(n-1)))
	return max(1, min(10, d))
}
