package period

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Grain est l'unité de découpage du temps (jour, semaine, mois).
type Grain string

const (
	Day   Grain = "day"
	Week  Grain = "week"
	Month Grain = "month"
)

// ErrInvalidGrain : granularité non supportée.
var ErrInvalidGrain = errors.New("invalid grain")

// ParseGrain("week") -> Week
func ParseGrain(s string) (Grain, error) {
	g := Grain(strings.ToLower(strings.TrimSpace(s)))
	if err := g.Validate(); err != nil {
		return "", err
	}
	return g, nil
}

func (g Grain) Validate() error {
	switch g {
	case Day, Week, Month:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidGrain, string(g))
}

// Unit renvoie le libellé utilisé dans les colonnes ("Week" -> "Weeks Since First").
func (g Grain) Unit() string {
	switch g {
	case Day:
		return "Day"
	case Week:
		return "Week"
	case Month:
		return "Month"
	}
	return ""
}

// Label identifie une période par sa date de début (UTC, minuit).
type Label struct {
	Grain Grain
	Start time.Time
}

// Date tronque un instant à son jour calendaire en UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Of renvoie la période (de granularité g) qui contient la date d.
// Les semaines commencent le lundi.
func Of(d time.Time, g Grain) (Label, error) {
	day := Date(d)
	switch g {
	case Day:
		return Label{Grain: Day, Start: day}, nil
	case Week:
		offset := (int(day.Weekday()) + 6) % 7 // lundi = 0
		return Label{Grain: Week, Start: day.AddDate(0, 0, -offset)}, nil
	case Month:
		return Label{Grain: Month, Start: time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)}, nil
	}
	return Label{}, fmt.Errorf("%w: %q", ErrInvalidGrain, string(g))
}

// MustOf is Of for grains already validated by the caller.
func MustOf(d time.Time, g Grain) Label {
	l, err := Of(d, g)
	if err != nil {
		panic(err)
	}
	return l
}

// Next : période suivante. Le mois avance d'un mois calendaire (pas de 28 jours),
// la semaine de 7 jours exactement.
func (l Label) Next() Label {
	switch l.Grain {
	case Day:
		return Label{Grain: Day, Start: l.Start.AddDate(0, 0, 1)}
	case Week:
		return Label{Grain: Week, Start: l.Start.AddDate(0, 0, 7)}
	case Month:
		return MustOf(l.Start.AddDate(0, 1, 0), Month)
	}
	return l
}

// Prev is the inverse of Next.
func (l Label) Prev() Label {
	switch l.Grain {
	case Day:
		return Label{Grain: Day, Start: l.Start.AddDate(0, 0, -1)}
	case Week:
		return Label{Grain: Week, Start: l.Start.AddDate(0, 0, -7)}
	case Month:
		return MustOf(l.Start.AddDate(0, -1, 0), Month)
	}
	return l
}

// End renvoie le dernier jour inclus de la période.
func (l Label) End() time.Time {
	return l.Next().Start.AddDate(0, 0, -1)
}

func (l Label) IsZero() bool { return l.Start.IsZero() }

func (l Label) Equal(o Label) bool { return l.Grain == o.Grain && l.Start.Equal(o.Start) }

func (l Label) Before(o Label) bool { return l.Start.Before(o.Start) }

func (l Label) After(o Label) bool { return l.Start.After(o.Start) }

// Compare orders labels by start date.
func (l Label) Compare(o Label) int { return l.Start.Compare(o.Start) }

// String : "2018-09-03" (jour/semaine), "2018-09" (mois).
func (l Label) String() string {
	if l.IsZero() {
		return ""
	}
	if l.Grain == Month {
		return l.Start.Format("2006-01")
	}
	return l.Start.Format("2006-01-02")
}

// Between compte le nombre de périodes de a vers b (négatif si b < a).
func Between(a, b Label) (int, error) {
	if a.Grain != b.Grain {
		return 0, fmt.Errorf("%w: cannot compare %s with %s", ErrInvalidGrain, a.Grain, b.Grain)
	}
	switch a.Grain {
	case Day:
		return daysBetween(a.Start, b.Start), nil
	case Week:
		return daysBetween(a.Start, b.Start) / 7, nil
	case Month:
		return (b.Start.Year()-a.Start.Year())*12 + int(b.Start.Month()) - int(a.Start.Month()), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidGrain, string(a.Grain))
}

// WidthDays : largeur approximative d'une période, utilisée pour le découpage
// d'une fenêtre en sous-périodes (mois = 28 jours).
func WidthDays(g Grain) (int, error) {
	switch g {
	case Day:
		return 1, nil
	case Week:
		return 7, nil
	case Month:
		return 28, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidGrain, string(g))
}

// Range renvoie toutes les périodes de start à end inclus.
func Range(start, end Label) []Label {
	if start.Grain != end.Grain || end.Before(start) {
		return nil
	}
	var out []Label
	for cur := start; !cur.After(end); cur = cur.Next() {
		out = append(out, cur)
	}
	return out
}

// ParseMonth("MMYYYY") -> 1er jour du mois UTC
func ParseMonth(mmyyyy string) (time.Time, error) {
	if len(mmyyyy) != 6 {
		return time.Time{}, fmt.Errorf("format attendu MMYYYY (ex: 012025)")
	}
	for _, c := range mmyyyy {
		if c < '0' || c > '9' {
			return time.Time{}, fmt.Errorf("format attendu MMYYYY (ex: 012025)")
		}
	}
	month := int(mmyyyy[0]-'0')*10 + int(mmyyyy[1]-'0')
	year := int(mmyyyy[2]-'0')*1000 + int(mmyyyy[3]-'0')*100 + int(mmyyyy[4]-'0')*10 + int(mmyyyy[5]-'0')
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("mois invalide")
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

func daysBetween(a, b time.Time) int {
	return int(Date(b).Sub(Date(a)).Hours() / 24)
}
