package engagement

import (
	"cmp"
	"context"
	"slices"
	"time"

	"growth-accounting/pkg/activity"
	"growth-accounting/pkg/models"
	"growth-accounting/pkg/parallel"
	"growth-accounting/pkg/ratio"
)

// Histogram compte, par segment, les utilisateurs actifs exactement N
// sous-périodes (N de 1 au nombre de sous-périodes, classes vides incluses),
// avec la moyenne pondérée du nombre de sous-périodes actives.
func Histogram(daily []models.DailyActivity, w Window) ([]models.HistogramBin, error) {
	_, count, err := w.subPeriods()
	if err != nil {
		return nil, err
	}
	usage, err := Usage(daily, w)
	if err != nil {
		return nil, err
	}
	segments, groups := bySegment(usage)

	var out []models.HistogramBin
	for _, seg := range segments {
		bins := make([]int, count+1)
		var weighted int
		for _, u := range groups[seg] {
			bins[u.ActivePeriods]++
			weighted += u.ActivePeriods
		}
		avg := ratio.Div(float64(weighted), float64(len(groups[seg])))
		for n := 1; n <= count; n++ {
			out = append(out, models.HistogramBin{Segment: seg, ActivePeriods: n, UserCount: bins[n], AvgActive: avg})
		}
	}
	return out, nil
}

// Ratios calcule, par segment, les ratios d'engagement de la fenêtre (type DAU/MAU) :
// WindowRatio = (sous-périodes actives / sous-périodes par fenêtre) / utilisateurs,
// WindowFrequency = nombre moyen de sous-périodes actives par utilisateur,
// et la part des utilisateurs au-dessus de chaque seuil de breakout.
func Ratios(daily []models.DailyActivity, w Window) ([]models.EngagementRow, error) {
	perWindow, err := w.PeriodsPerWindow()
	if err != nil {
		return nil, err
	}
	usage, err := Usage(daily, w)
	if err != nil {
		return nil, err
	}
	segments, groups := bySegment(usage)

	out := make([]models.EngagementRow, 0, len(segments))
	for _, seg := range segments {
		users := groups[seg]
		row := models.EngagementRow{
			WindowEnd:   w.End,
			Segment:     seg,
			Grain:       w.Grain,
			WindowDays:  w.Days,
			ActiveUsers: len(users),
		}
		for _, u := range users {
			row.ActivePeriods += u.ActivePeriods
		}
		row.WindowRatio = ratio.Div(float64(row.ActivePeriods)/perWindow, float64(row.ActiveUsers))
		row.WindowFrequency = row.WindowRatio * perWindow
		for _, b := range w.Breakouts {
			share := models.BreakoutShare{Threshold: b}
			for _, u := range users {
				if u.Breakouts[b] {
					share.Users++
				}
			}
			share.Ratio = ratio.Div(float64(share.Users), float64(row.ActiveUsers))
			row.Breakouts = append(row.Breakouts, share)
		}
		out = append(out, row)
	}
	return out, nil
}

// RollingOptions : dates de fin et exécution du calcul glissant.
type RollingOptions struct {
	UseFinalDay bool
	Workers     int
	OnWindow    func()
}

// Rolling applique Ratios à chaque fenêtre de tmpl.Days jours, de min+Days à la
// dernière date (l'avant-dernière sans UseFinalDay), en parallèle, puis trie
// par (date de fin, segment). tmpl.End est ignoré.
func Rolling(ctx context.Context, daily []models.DailyActivity, tmpl Window, opts RollingOptions) ([]models.EngagementRow, error) {
	if _, _, err := tmpl.subPeriods(); err != nil {
		return nil, err
	}
	minDate, maxDate, ok := activity.Bounds(daily)
	if !ok {
		return nil, nil
	}
	end := maxDate
	if !opts.UseFinalDay {
		end = end.AddDate(0, 0, -1)
	}
	var ends []time.Time
	for d := minDate.AddDate(0, 0, tmpl.Days); !d.After(end); d = d.AddDate(0, 0, 1) {
		ends = append(ends, d)
	}

	parts, err := parallel.Map(ctx, len(ends), opts.Workers, func(_ context.Context, i int) ([]models.EngagementRow, error) {
		w := tmpl
		w.End = ends[i]
		rows, err := Ratios(daily, w)
		if opts.OnWindow != nil {
			opts.OnWindow()
		}
		return rows, err
	})
	if err != nil {
		return nil, err
	}

	out := parallel.Concat(parts)
	slices.SortFunc(out, func(a, b models.EngagementRow) int {
		if c := a.WindowEnd.Compare(b.WindowEnd); c != 0 {
			return c
		}
		return cmp.Compare(a.Segment, b.Segment)
	})
	return out, nil
}
