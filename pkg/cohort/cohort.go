package cohort

import (
	"cmp"
	"context"
	"slices"
	"time"

	"growth-accounting/pkg/activity"
	"growth-accounting/pkg/models"
	"growth-accounting/pkg/parallel"
	"growth-accounting/pkg/period"
)

// DefaultSinceOffset : nombre de périodes récentes exclues par défaut.
const DefaultSinceOffset = 1

// Options du calcul de rétention par cohorte.
type Options struct {
	SinceOffset int       // périodes récentes (par rapport à Now) exclues
	Now         time.Time // zéro = time.Now()
	DateLimit   time.Time // zéro = pas de limite
	Workers     int
}

// key identifie une cohorte : première période et segment.
type key struct {
	first   period.Label
	segment string
}

type cell struct {
	period  period.Label
	users   map[string]struct{}
	amounts []float64
}

// Retention calcule, pour chaque cohorte (première période, segment) et chaque
// période, le nombre de clients actifs, le revenu cumulé et leur rapport à la
// taille initiale de la cohorte. Une tâche par cohorte sur le pool de workers.
func Retention(ctx context.Context, pa []models.PeriodActivity, opts Options) ([]models.CohortRow, error) {
	if len(pa) == 0 {
		return nil, nil
	}

	cutoff, err := lastIncludedPeriod(pa[0].Period.Grain, opts)
	if err != nil {
		return nil, err
	}

	groups := make(map[key][]models.PeriodActivity)
	for _, row := range pa {
		if row.Period.After(cutoff) {
			continue
		}
		if !opts.DateLimit.IsZero() && row.Period.Start.After(opts.DateLimit) {
			continue
		}
		k := key{first: row.FirstPeriod, segment: row.Segment}
		groups[k] = append(groups[k], row)
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b key) int {
		if c := a.first.Compare(b.first); c != 0 {
			return c
		}
		return cmp.Compare(a.segment, b.segment)
	})

	parts, err := parallel.Map(ctx, len(keys), opts.Workers, func(_ context.Context, i int) ([]models.CohortRow, error) {
		return cohortRows(keys[i], groups[keys[i]])
	})
	if err != nil {
		return nil, err
	}

	out := parallel.Concat(parts)
	Sort(out)
	return out, nil
}

// cohortRows calcule la courbe d'une cohorte. La taille de la cohorte est le
// nombre de clients de sa première ligne (période la plus ancienne).
func cohortRows(k key, rows []models.PeriodActivity) ([]models.CohortRow, error) {
	byPeriod := make(map[period.Label]*cell)
	for _, r := range rows {
		c, ok := byPeriod[r.Period]
		if !ok {
			c = &cell{period: r.Period, users: make(map[string]struct{})}
			byPeriod[r.Period] = c
		}
		c.users[r.UserID] = struct{}{}
		c.amounts = append(c.amounts, r.Amount)
	}

	cells := make([]*cell, 0, len(byPeriod))
	for _, c := range byPeriod {
		cells = append(cells, c)
	}
	slices.SortFunc(cells, func(a, b *cell) int { return a.period.Compare(b.period) })

	size := len(cells[0].users)
	out := make([]models.CohortRow, 0, len(cells))
	var cum float64
	for _, c := range cells {
		since, err := period.Between(k.first, c.period)
		if err != nil {
			return nil, err
		}
		income := activity.Sum(c.amounts)
		cum += income
		out = append(out, models.CohortRow{
			FirstPeriod:             k.first,
			Period:                  c.period,
			Segment:                 k.segment,
			PeriodsSinceFirst:       since,
			CohortSize:              size,
			CustomerCount:           len(c.users),
			Income:                  income,
			CumulativeIncome:        cum,
			IncomePerCohortCustomer: cum / float64(size),
			Retention:               float64(len(c.users)) / float64(size),
		})
	}
	return out, nil
}

// lastIncludedPeriod : période de (Now - SinceOffset périodes). Les périodes
// postérieures sont incomplètes et exclues.
func lastIncludedPeriod(g period.Grain, opts Options) (period.Label, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	k := opts.SinceOffset
	if k < 0 {
		k = 0
	}

	var ref time.Time
	switch g {
	case period.Month:
		ref = now.AddDate(0, -k, 0)
	case period.Week:
		ref = now.AddDate(0, 0, -7*k)
	default:
		ref = now.AddDate(0, 0, -k)
	}
	return period.Of(ref, g)
}

// Sort trie par (première période, période, segment).
func Sort(rows []models.CohortRow) {
	slices.SortFunc(rows, func(a, b models.CohortRow) int {
		if c := a.FirstPeriod.Compare(b.FirstPeriod); c != 0 {
			return c
		}
		if c := a.Period.Compare(b.Period); c != 0 {
			return c
		}
		return cmp.Compare(a.Segment, b.Segment)
	})
}
