package rolling

import (
	"slices"
	"time"

	"growth-accounting/pkg/activity"
	"growth-accounting/pkg/models"
)

// state : sommes glissantes d'un (utilisateur, segment) sur les deux fenêtres.
type state struct {
	cur, prev   float64
	curN, prevN int
}

func (s *state) empty() bool { return s.curN == 0 && s.prevN == 0 }

// Incremental produit le même résultat que Windows en faisant glisser les deux
// fenêtres jour après jour : chaque jour, les lignes de d entrent dans la
// fenêtre courante, celles de d-W passent dans la précédente et celles de d-2W
// sortent. Seuls les utilisateurs touchés sont reclassés.
//
// Les totaux de revenu sont mis à jour par différence : sur des montants non
// entiers, ils peuvent s'écarter de Windows de l'ordre de l'epsilon machine.
func Incremental(daily []models.DailyActivity, firsts []models.FirstActivity, opts Options) []models.WindowRow {
	minDate, maxDate, ok := activity.Bounds(daily)
	if !ok {
		return nil
	}
	w := opts.days()
	ends := EndDates(minDate, maxDate, opts)
	if len(ends) == 0 {
		return nil
	}
	first := activity.FirstByUser(firsts)

	byDate := make(map[time.Time][]models.DailyActivity)
	for _, d := range daily {
		byDate[d.Date] = append(byDate[d.Date], d)
	}
	newcomers := make(map[time.Time][]string) // première date -> utilisateurs
	for _, f := range firsts {
		newcomers[f.FirstDate] = append(newcomers[f.FirstDate], f.UserID)
	}

	states := make(map[userKey]*state)
	userKeys := make(map[string]map[userKey]struct{})
	tallies := make(map[string]*tally)

	contribute := func(k userKey, s *state, curStart time.Time, sign int) {
		if s.empty() {
			return
		}
		t, ok := tallies[k.segment]
		if !ok {
			t = &tally{}
			tallies[k.segment] = t
		}
		t.add(observation(s.cur, s.curN, s.prev, s.prevN, first[k.user].FirstDate, curStart), sign)
	}

	var out []models.WindowRow
	last := ends[len(ends)-1]
	for d := minDate; !d.After(last); d = d.AddDate(0, 0, 1) {
		_, curStart := bounds(d, w)
		prevCurStart := curStart.AddDate(0, 0, -1)

		// utilisateurs dont l'état ou le statut "nouveau" change aujourd'hui
		touched := make(map[userKey]struct{})
		for _, day := range []time.Time{d, d.AddDate(0, 0, -w), d.AddDate(0, 0, -2*w)} {
			for _, row := range byDate[day] {
				touched[userKey{user: row.UserID, segment: row.Segment}] = struct{}{}
			}
		}
		for _, u := range newcomers[d.AddDate(0, 0, -w)] {
			for k := range userKeys[u] {
				touched[k] = struct{}{}
			}
		}

		keys := make([]userKey, 0, len(touched))
		for k := range touched {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareUserKey)

		for _, k := range keys {
			s, ok := states[k]
			if !ok {
				s = &state{}
				states[k] = s
			}
			contribute(k, s, prevCurStart, -1)
		}

		for _, row := range byDate[d] {
			s := states[userKey{user: row.UserID, segment: row.Segment}]
			s.cur += row.Amount
			s.curN++
		}
		for _, row := range byDate[d.AddDate(0, 0, -w)] {
			s := states[userKey{user: row.UserID, segment: row.Segment}]
			s.cur -= row.Amount
			s.curN--
			s.prev += row.Amount
			s.prevN++
		}
		for _, row := range byDate[d.AddDate(0, 0, -2*w)] {
			s := states[userKey{user: row.UserID, segment: row.Segment}]
			s.prev -= row.Amount
			s.prevN--
		}

		for _, k := range keys {
			s := states[k]
			if s.curN == 0 {
				s.cur = 0
			}
			if s.prevN == 0 {
				s.prev = 0
			}
			if s.empty() {
				delete(states, k)
				delete(userKeys[k.user], k)
				continue
			}
			if userKeys[k.user] == nil {
				userKeys[k.user] = make(map[userKey]struct{})
			}
			userKeys[k.user][k] = struct{}{}
			contribute(k, s, curStart, 1)
		}

		if d.Before(ends[0]) {
			continue
		}
		segments := make([]string, 0, len(tallies))
		for seg := range tallies {
			segments = append(segments, seg)
		}
		slices.Sort(segments)
		for _, seg := range segments {
			t := tallies[seg]
			if t.active() == 0 {
				continue
			}
			out = append(out, t.row(d, seg, w))
		}
		if opts.OnWindow != nil {
			opts.OnWindow()
		}
	}
	return out
}
