package growth

import (
	"cmp"
	"database/sql"
	"fmt"
	"slices"

	"growth-accounting/pkg/activity"
	"growth-accounting/pkg/models"
	"growth-accounting/pkg/period"
)

type periodKey struct {
	period  period.Label
	user    string
	segment string
}

// BuildPeriodActivity agrège l'activité journalière par (période, utilisateur, segment)
// et rattache la première période de l'utilisateur et la période suivante.
func BuildPeriodActivity(daily []models.DailyActivity, grain period.Grain, bySegment bool) ([]models.PeriodActivity, error) {
	if err := grain.Validate(); err != nil {
		return nil, err
	}
	firsts := activity.FirstByUser(activity.FirstActivity(daily))

	amounts := make(map[periodKey][]float64)
	for _, d := range daily {
		seg := models.AllSegment
		if bySegment {
			seg = d.Segment
		}
		k := periodKey{period: period.MustOf(d.Date, grain), user: d.UserID, segment: seg}
		amounts[k] = append(amounts[k], d.Amount)
	}

	out := make([]models.PeriodActivity, 0, len(amounts))
	for k, vals := range amounts {
		first := firsts[k.user].FirstPeriod(grain)
		if k.period.Before(first) {
			return nil, fmt.Errorf("user %s: period %s precedes first period %s", k.user, k.period, first)
		}
		out = append(out, models.PeriodActivity{
			Period:      k.period,
			UserID:      k.user,
			Segment:     k.segment,
			Amount:      activity.Sum(vals),
			FirstPeriod: first,
			NextPeriod:  k.period.Next(),
		})
	}
	slices.SortFunc(out, func(a, b models.PeriodActivity) int {
		return compareKey(a.Period, a.Segment, a.UserID, b.Period, b.Segment, b.UserID)
	})
	return out, nil
}

// JoinConsecutive réalise la jointure externe complète de l'activité avec
// elle-même décalée d'une période : (user, segment, period) = (user, segment, next_period).
// Les lignes n'ayant qu'un côté (nouveaux, churn) sont conservées.
func JoinConsecutive(pa []models.PeriodActivity) []models.JoinedPair {
	pairs := make(map[periodKey]*models.JoinedPair, len(pa))
	get := func(k periodKey) *models.JoinedPair {
		p, ok := pairs[k]
		if !ok {
			p = &models.JoinedPair{Period: k.period, UserID: k.user, Segment: k.segment}
			pairs[k] = p
		}
		return p
	}

	for _, row := range pa {
		this := get(periodKey{period: row.Period, user: row.UserID, segment: row.Segment})
		this.This = sql.NullFloat64{Float64: row.Amount, Valid: true}
		this.ThisFirstPeriod = row.FirstPeriod

		last := get(periodKey{period: row.NextPeriod, user: row.UserID, segment: row.Segment})
		last.Last = sql.NullFloat64{Float64: row.Amount, Valid: true}
		last.LastFirstPeriod = row.FirstPeriod
	}

	out := make([]models.JoinedPair, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b models.JoinedPair) int {
		return compareKey(a.Period, a.Segment, a.UserID, b.Period, b.Segment, b.UserID)
	})
	return out
}

func compareKey(pa period.Label, sa, ua string, pb period.Label, sb, ub string) int {
	if c := pa.Compare(pb); c != 0 {
		return c
	}
	if c := cmp.Compare(sa, sb); c != 0 {
		return c
	}
	return cmp.Compare(ua, ub)
}
