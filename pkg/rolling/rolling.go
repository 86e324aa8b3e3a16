package rolling

import (
	"cmp"
	"context"
	"slices"
	"time"

	"growth-accounting/pkg/activity"
	"growth-accounting/pkg/models"
	"growth-accounting/pkg/parallel"
)

// Windows recalcule la comptabilité de croissance pour chaque date de fin,
// indépendamment des autres (implémentation de référence). Les dates sont
// réparties sur le pool de workers puis le résultat est retrié par
// (date de fin, segment).
func Windows(ctx context.Context, daily []models.DailyActivity, firsts []models.FirstActivity, opts Options) ([]models.WindowRow, error) {
	minDate, maxDate, ok := activity.Bounds(daily)
	if !ok {
		return nil, nil
	}
	ends := EndDates(minDate, maxDate, opts)
	first := activity.FirstByUser(firsts)

	sorted := slices.Clone(daily)
	activity.SortDaily(sorted)

	parts, err := parallel.Map(ctx, len(ends), opts.Workers, func(_ context.Context, i int) ([]models.WindowRow, error) {
		rows := window(sorted, first, ends[i], opts.days())
		if opts.OnWindow != nil {
			opts.OnWindow()
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}

	out := parallel.Concat(parts)
	Sort(out)
	return out, nil
}

type sums struct {
	cur, prev []float64
}

// window calcule une fenêtre se terminant à end. sorted est trié par date.
func window(sorted []models.DailyActivity, first map[string]models.FirstActivity, end time.Time, w int) []models.WindowRow {
	prevStart, curStart := bounds(end, w)
	lo, _ := slices.BinarySearchFunc(sorted, prevStart, func(d models.DailyActivity, t time.Time) int { return d.Date.Compare(t) })

	byUser := make(map[userKey]*sums)
	for _, d := range sorted[lo:] {
		if d.Date.After(end) {
			break
		}
		k := userKey{user: d.UserID, segment: d.Segment}
		s, ok := byUser[k]
		if !ok {
			s = &sums{}
			byUser[k] = s
		}
		if d.Date.Before(curStart) {
			s.prev = append(s.prev, d.Amount)
		} else {
			s.cur = append(s.cur, d.Amount)
		}
	}

	keys := make([]userKey, 0, len(byUser))
	for k := range byUser {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUserKey)

	tallies := make(map[string]*tally)
	var segments []string
	for _, k := range keys {
		t, ok := tallies[k.segment]
		if !ok {
			t = &tally{}
			tallies[k.segment] = t
			segments = append(segments, k.segment)
		}
		s := byUser[k]
		o := observation(activity.Sum(s.cur), len(s.cur), activity.Sum(s.prev), len(s.prev), first[k.user].FirstDate, curStart)
		t.add(o, 1)
	}

	var out []models.WindowRow
	for _, seg := range segments {
		t := tallies[seg]
		if t.active() == 0 {
			continue
		}
		out = append(out, t.row(end, seg, w))
	}
	return out
}

func compareUserKey(a, b userKey) int {
	if c := cmp.Compare(a.segment, b.segment); c != 0 {
		return c
	}
	return cmp.Compare(a.user, b.user)
}

// Sort trie par (date de fin, segment).
func Sort(rows []models.WindowRow) {
	slices.SortFunc(rows, func(a, b models.WindowRow) int {
		if c := a.WindowEnd.Compare(b.WindowEnd); c != 0 {
			return c
		}
		return cmp.Compare(a.Segment, b.Segment)
	})
}
