package activity

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"growth-accounting/pkg/models"
	"growth-accounting/pkg/period"
)

// Option configure l'agrégation journalière.
type Option func(*options)

type options struct {
	includeNonPositive bool
	useSegment         bool
}

// WithNonPositive conserve les transactions de montant <= 0 (remboursements, usage gratuit).
func WithNonPositive() Option {
	return func(o *options) { o.includeNonPositive = true }
}

// WithSegments conserve le segment de chaque transaction. Sans cette option
// toutes les lignes tombent dans le segment synthétique "All".
func WithSegments() Option {
	return func(o *options) { o.useSegment = true }
}

type dayKey struct {
	user    string
	date    time.Time
	segment string
}

// AggregateDaily regroupe les transactions par (utilisateur, jour, segment)
// en sommant les montants. Le résultat ne dépend pas de l'ordre d'entrée.
func AggregateDaily(txns []models.Transaction, opts ...Option) ([]models.DailyActivity, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	amounts := make(map[dayKey][]float64)
	for i, t := range txns {
		if strings.TrimSpace(t.UserID) == "" {
			return nil, fmt.Errorf("transaction %d: %w: user_id", i, models.ErrMissingColumn)
		}
		if t.ActivityDate.IsZero() {
			return nil, fmt.Errorf("transaction %d: %w: activity_date", i, models.ErrMissingColumn)
		}
		if t.Amount <= 0 && !o.includeNonPositive {
			continue
		}
		seg := models.AllSegment
		if o.useSegment {
			seg = t.Segment
		}
		k := dayKey{user: t.UserID, date: period.Date(t.ActivityDate), segment: seg}
		amounts[k] = append(amounts[k], t.Amount)
	}

	out := make([]models.DailyActivity, 0, len(amounts))
	for k, vals := range amounts {
		out = append(out, models.DailyActivity{UserID: k.user, Date: k.date, Segment: k.segment, Amount: Sum(vals)})
	}
	SortDaily(out)
	return out, nil
}

// Sum additionne les montants dans l'ordre croissant : le total est le même
// quel que soit l'ordre des lignes.
func Sum(vals []float64) float64 {
	sorted := slices.Clone(vals)
	slices.Sort(sorted)
	var total float64
	for _, v := range sorted {
		total += v
	}
	return total
}

// SortDaily trie par (date, segment, utilisateur).
func SortDaily(rows []models.DailyActivity) {
	slices.SortFunc(rows, func(a, b models.DailyActivity) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Segment, b.Segment); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
}

// FirstActivity calcule la première date d'activité de chaque utilisateur,
// tous segments confondus, avec la semaine et le mois correspondants.
func FirstActivity(daily []models.DailyActivity) []models.FirstActivity {
	first := make(map[string]time.Time)
	for _, d := range daily {
		if cur, ok := first[d.UserID]; !ok || d.Date.Before(cur) {
			first[d.UserID] = d.Date
		}
	}

	out := make([]models.FirstActivity, 0, len(first))
	for user, dt := range first {
		out = append(out, models.FirstActivity{
			UserID:     user,
			FirstDate:  dt,
			FirstWeek:  period.MustOf(dt, period.Week),
			FirstMonth: period.MustOf(dt, period.Month),
		})
	}
	slices.SortFunc(out, func(a, b models.FirstActivity) int { return cmp.Compare(a.UserID, b.UserID) })
	return out
}

// FirstByUser indexe le résultat de FirstActivity.
func FirstByUser(firsts []models.FirstActivity) map[string]models.FirstActivity {
	m := make(map[string]models.FirstActivity, len(firsts))
	for _, f := range firsts {
		m[f.UserID] = f
	}
	return m
}

// Bounds renvoie la première et la dernière date observées.
func Bounds(daily []models.DailyActivity) (minDate, maxDate time.Time, ok bool) {
	for i, d := range daily {
		if i == 0 || d.Date.Before(minDate) {
			minDate = d.Date
		}
		if i == 0 || d.Date.After(maxDate) {
			maxDate = d.Date
		}
	}
	return minDate, maxDate, len(daily) > 0
}

// Rebase décale toutes les dates pour que la transaction la plus récente
// tombe le jour base. Utile pour rejouer un jeu de données d'exemple.
func Rebase(txns []models.Transaction, base time.Time) []models.Transaction {
	if len(txns) == 0 {
		return nil
	}
	latest := txns[0].ActivityDate
	for _, t := range txns[1:] {
		if t.ActivityDate.After(latest) {
			latest = t.ActivityDate
		}
	}
	days, err := period.Between(period.MustOf(latest, period.Day), period.MustOf(base, period.Day))
	if err != nil {
		return nil
	}

	out := make([]models.Transaction, len(txns))
	for i, t := range txns {
		t.ActivityDate = t.ActivityDate.AddDate(0, 0, days)
		out[i] = t
	}
	return out
}
