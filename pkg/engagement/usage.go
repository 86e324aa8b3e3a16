package engagement

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"growth-accounting/pkg/activity"
	"growth-accounting/pkg/models"
	"growth-accounting/pkg/period"
)

// DefaultBreakouts : seuils "actif 2+ / 4+ sous-périodes".
var DefaultBreakouts = []int{2, 4}

// Window décrit une fenêtre d'engagement : les Days jours se terminant à End,
// découpés en sous-périodes de la granularité Grain.
type Window struct {
	End       time.Time
	Days      int
	Grain     period.Grain
	Breakouts []int
}

func (w Window) start() time.Time { return w.End.AddDate(0, 0, -w.Days+1) }

// subPeriods renvoie la largeur d'une sous-période et leur nombre dans la fenêtre.
func (w Window) subPeriods() (width, count int, err error) {
	if w.Days <= 0 {
		return 0, 0, fmt.Errorf("window days must be positive, got %d", w.Days)
	}
	width, err = period.WidthDays(w.Grain)
	if err != nil {
		return 0, 0, err
	}
	return width, (w.Days + width - 1) / width, nil
}

// PeriodsPerWindow : nombre (fractionnaire) de sous-périodes dans la fenêtre.
func (w Window) PeriodsPerWindow() (float64, error) {
	width, _, err := w.subPeriods()
	if err != nil {
		return 0, err
	}
	return float64(w.Days) / float64(width), nil
}

type userKey struct {
	user    string
	segment string
}

type usageAcc struct {
	periods map[int]struct{}
	amounts []float64
}

// Usage compte, pour chaque (utilisateur, segment) actif dans la fenêtre, le
// nombre de sous-périodes actives et le revenu total. Les sous-périodes sont
// numérotées depuis le début de la fenêtre (jour / largeur). Résultat trié par
// revenu décroissant puis (segment, utilisateur).
func Usage(daily []models.DailyActivity, w Window) ([]models.UserUsage, error) {
	width, _, err := w.subPeriods()
	if err != nil {
		return nil, err
	}
	start := w.start()

	acc := make(map[userKey]*usageAcc)
	for _, d := range daily {
		if d.Date.Before(start) || d.Date.After(w.End) {
			continue
		}
		idx, err := period.Between(period.MustOf(start, period.Day), period.MustOf(d.Date, period.Day))
		if err != nil {
			return nil, err
		}
		k := userKey{user: d.UserID, segment: d.Segment}
		a, ok := acc[k]
		if !ok {
			a = &usageAcc{periods: make(map[int]struct{})}
			acc[k] = a
		}
		a.periods[idx/width] = struct{}{}
		a.amounts = append(a.amounts, d.Amount)
	}

	out := make([]models.UserUsage, 0, len(acc))
	for k, a := range acc {
		u := models.UserUsage{
			UserID:        k.user,
			Segment:       k.segment,
			ActivePeriods: len(a.periods),
			Amount:        activity.Sum(a.amounts),
		}
		if len(w.Breakouts) > 0 {
			u.Breakouts = make(map[int]bool, len(w.Breakouts))
			for _, b := range w.Breakouts {
				u.Breakouts[b] = u.ActivePeriods >= b
			}
		}
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b models.UserUsage) int {
		if c := cmp.Compare(b.Amount, a.Amount); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Segment, b.Segment); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	return out, nil
}

// bySegment regroupe l'usage par segment en conservant l'ordre (segment, utilisateur).
func bySegment(usage []models.UserUsage) ([]string, map[string][]models.UserUsage) {
	canon := slices.Clone(usage)
	slices.SortFunc(canon, func(a, b models.UserUsage) int {
		if c := cmp.Compare(a.Segment, b.Segment); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})

	var segments []string
	groups := make(map[string][]models.UserUsage)
	for _, u := range canon {
		if _, ok := groups[u.Segment]; !ok {
			segments = append(segments, u.Segment)
		}
		groups[u.Segment] = append(groups[u.Segment], u)
	}
	return segments, groups
}
