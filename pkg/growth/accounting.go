package growth

import (
	"cmp"
	"slices"
	"time"

	"growth-accounting/pkg/models"
	"growth-accounting/pkg/period"
)

// ObservationOf convertit une paire jointe en observation : la paire est
// "nouvelle" quand la première période (côté courant) est la période elle-même.
func ObservationOf(p models.JoinedPair) Observation {
	return Observation{
		This:            p.This,
		Last:            p.Last,
		FirstThisPeriod: p.This.Valid && p.ThisFirstPeriod.Equal(p.Period),
	}
}

// Classify renvoie la catégorie de croissance d'une paire jointe.
func Classify(p models.JoinedPair) Category {
	return ClassifyObservation(ObservationOf(p))
}

type groupKey struct {
	period  period.Label
	segment string
}

// accumulate ajoute une contribution aux totaux d'un groupe (période, segment).
func accumulate(r *models.PeriodGrowthRow, c Contribution) {
	if c.Active {
		r.ActiveUsers++
	}
	r.Revenue += c.Total
	switch c.Category {
	case New:
		r.NewUsers++
		r.NewRevenue += c.New
	case Retained:
		r.RetainedUsers++
		r.RetainedRevenue += c.Retained
		r.ExpansionRevenue += c.Expansion
		r.ContractionRevenue += c.Contraction
	case Resurrected:
		r.ResurrectedUsers++
		r.ResurrectedRevenue += c.Resurrected
	case Churned:
		r.ChurnedUsers--
		r.ChurnedRevenue += c.Churned
	}
}

// tallyPairs groupe les paires par (période, segment) dans l'ordre canonique.
func tallyPairs(pairs []models.JoinedPair) []*models.PeriodGrowthRow {
	sorted := slices.Clone(pairs)
	slices.SortFunc(sorted, func(a, b models.JoinedPair) int {
		return compareKey(a.Period, a.Segment, a.UserID, b.Period, b.Segment, b.UserID)
	})

	index := make(map[groupKey]*models.PeriodGrowthRow)
	var order []*models.PeriodGrowthRow
	for _, p := range sorted {
		k := groupKey{period: p.Period, segment: p.Segment}
		row, ok := index[k]
		if !ok {
			row = &models.PeriodGrowthRow{Period: p.Period, Segment: p.Segment}
			index[k] = row
			order = append(order, row)
		}
		accumulate(row, Split(ObservationOf(p)))
	}
	return order
}

// AggregateUserGrowth compte, par (période, segment), les utilisateurs actifs,
// retenus, nouveaux, ressuscités et churnés (en négatif). Les périodes sans
// utilisateur actif sont écartées.
func AggregateUserGrowth(pairs []models.JoinedPair) []models.PeriodGrowthRow {
	var out []models.PeriodGrowthRow
	for _, r := range tallyPairs(pairs) {
		if r.ActiveUsers == 0 {
			continue
		}
		out = append(out, models.PeriodGrowthRow{
			Period:           r.Period,
			Segment:          r.Segment,
			ActiveUsers:      r.ActiveUsers,
			RetainedUsers:    r.RetainedUsers,
			NewUsers:         r.NewUsers,
			ResurrectedUsers: r.ResurrectedUsers,
			ChurnedUsers:     r.ChurnedUsers,
		})
	}
	return out
}

// AggregateRevenueGrowth calcule les revenus par (période, segment) :
// total, retenu, nouveau, ressuscité, expansion, contraction et churn.
// Sans keepZeroRevenue, les périodes de revenu total <= 0 sont écartées.
func AggregateRevenueGrowth(pairs []models.JoinedPair, keepZeroRevenue bool) []models.PeriodGrowthRow {
	var out []models.PeriodGrowthRow
	for _, r := range tallyPairs(pairs) {
		if r.ActiveUsers == 0 {
			continue
		}
		if !keepZeroRevenue && r.Revenue <= 0 {
			continue
		}
		out = append(out, models.PeriodGrowthRow{
			Period:             r.Period,
			Segment:            r.Segment,
			ActiveUsers:        r.ActiveUsers,
			Revenue:            r.Revenue,
			RetainedRevenue:    r.RetainedRevenue,
			NewRevenue:         r.NewRevenue,
			ResurrectedRevenue: r.ResurrectedRevenue,
			ExpansionRevenue:   r.ExpansionRevenue,
			ContractionRevenue: r.ContractionRevenue,
			ChurnedRevenue:     r.ChurnedRevenue,
		})
	}
	return out
}

// Consolidate joint (jointure interne sur période et segment) les lignes
// utilisateurs et les lignes revenus.
func Consolidate(users, revenue []models.PeriodGrowthRow) []models.PeriodGrowthRow {
	rev := make(map[groupKey]models.PeriodGrowthRow, len(revenue))
	for _, r := range revenue {
		rev[groupKey{period: r.Period, segment: r.Segment}] = r
	}

	out := make([]models.PeriodGrowthRow, 0, len(users))
	for _, u := range users {
		r, ok := rev[groupKey{period: u.Period, segment: u.Segment}]
		if !ok {
			continue
		}
		u.Revenue = r.Revenue
		u.RetainedRevenue = r.RetainedRevenue
		u.NewRevenue = r.NewRevenue
		u.ResurrectedRevenue = r.ResurrectedRevenue
		u.ExpansionRevenue = r.ExpansionRevenue
		u.ContractionRevenue = r.ContractionRevenue
		u.ChurnedRevenue = r.ChurnedRevenue
		out = append(out, u)
	}
	SortRows(out)
	return out
}

// TrimOptions filtre la série finale.
type TrimOptions struct {
	KeepIncompleteFinalPeriod bool
	DateLimit                 time.Time // zéro = pas de limite
}

// Trim retire la dernière période (souvent incomplète) et les périodes
// commençant après DateLimit.
func Trim(rows []models.PeriodGrowthRow, opts TrimOptions) []models.PeriodGrowthRow {
	var last period.Label
	for _, r := range rows {
		if last.IsZero() || r.Period.After(last) {
			last = r.Period
		}
	}

	out := make([]models.PeriodGrowthRow, 0, len(rows))
	for _, r := range rows {
		if !opts.KeepIncompleteFinalPeriod && r.Period.Equal(last) {
			continue
		}
		if !opts.DateLimit.IsZero() && r.Period.Start.After(opts.DateLimit) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// SortRows trie par (période, segment).
func SortRows(rows []models.PeriodGrowthRow) {
	slices.SortFunc(rows, func(a, b models.PeriodGrowthRow) int {
		if c := a.Period.Compare(b.Period); c != 0 {
			return c
		}
		return cmp.Compare(a.Segment, b.Segment)
	})
}
