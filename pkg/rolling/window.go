package rolling

import (
	"database/sql"
	"time"

	"growth-accounting/pkg/growth"
	"growth-accounting/pkg/models"
	"growth-accounting/pkg/ratio"
)

// DefaultWindowDays : fenêtre L28.
const DefaultWindowDays = 28

// Options des fenêtres glissantes.
type Options struct {
	WindowDays  int
	UseFinalDay bool // false : la dernière date (souvent partielle) n'est pas une fin de fenêtre
	Workers     int
	OnWindow    func() // appelé après chaque fenêtre calculée, depuis n'importe quel worker
}

func (o Options) days() int {
	if o.WindowDays <= 0 {
		return DefaultWindowDays
	}
	return o.WindowDays
}

type userKey struct {
	user    string
	segment string
}

// bounds renvoie la fenêtre courante [curStart, end] et la précédente
// [prevStart, curStart-1] d'une fenêtre se terminant à end.
func bounds(end time.Time, w int) (prevStart, curStart time.Time) {
	return end.AddDate(0, 0, -2*w+1), end.AddDate(0, 0, -w+1)
}

// EndDates renvoie les dates de fin de fenêtre : de min+2W à max (ou max-1).
func EndDates(minDate, maxDate time.Time, opts Options) []time.Time {
	w := opts.days()
	end := maxDate
	if !opts.UseFinalDay {
		end = end.AddDate(0, 0, -1)
	}
	var out []time.Time
	for d := minDate.AddDate(0, 0, 2*w); !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// observation construit l'entrée de classification d'un utilisateur sur une
// paire de fenêtres : "nouveau" si sa première date tombe dans la fenêtre courante.
func observation(cur float64, curN int, prev float64, prevN int, first, curStart time.Time) growth.Observation {
	return growth.Observation{
		This:            sql.NullFloat64{Float64: cur, Valid: curN > 0},
		Last:            sql.NullFloat64{Float64: prev, Valid: prevN > 0},
		FirstThisPeriod: curN > 0 && !first.Before(curStart),
	}
}

// tally accumule les contributions d'un segment pour une fenêtre.
// sign = -1 retire une contribution (moteur incrémental).
type tally struct {
	retained, newUsers, resurrected, churned int

	revenue        float64
	lastRevenue    float64
	retainedRev    float64
	newRev         float64
	resurrectedRev float64
	expansionRev   float64
	contractionRev float64
	churnedRev     float64
}

func (t *tally) add(o growth.Observation, sign int) {
	c := growth.Split(o)
	s := float64(sign)
	t.revenue += s * c.Total
	if o.Last.Valid {
		t.lastRevenue += s * o.Last.Float64
	}
	switch c.Category {
	case growth.New:
		t.newUsers += sign
		t.newRev += s * c.New
	case growth.Retained:
		t.retained += sign
		t.retainedRev += s * c.Retained
		t.expansionRev += s * c.Expansion
		t.contractionRev += s * c.Contraction
	case growth.Resurrected:
		t.resurrected += sign
		t.resurrectedRev += s * c.Resurrected
	case growth.Churned:
		t.churned -= sign
		t.churnedRev += s * c.Churned
	}
}

func (t *tally) active() int { return t.retained + t.newUsers + t.resurrected }

// row convertit les totaux en ligne, avec quick ratios, taux de rétention
// et croissance d'une fenêtre à l'autre.
func (t *tally) row(end time.Time, segment string, w int) models.WindowRow {
	lastUsers := float64(t.retained - t.churned)
	return models.WindowRow{
		WindowEnd:            end,
		Segment:              segment,
		WindowDays:           w,
		ActiveUsers:          t.active(),
		RetainedUsers:        t.retained,
		NewUsers:             t.newUsers,
		ResurrectedUsers:     t.resurrected,
		ChurnedUsers:         t.churned,
		Revenue:              t.revenue,
		LastRevenue:          t.lastRevenue,
		RetainedRevenue:      t.retainedRev,
		NewRevenue:           t.newRev,
		ResurrectedRevenue:   t.resurrectedRev,
		ExpansionRevenue:     t.expansionRev,
		ContractionRevenue:   t.contractionRev,
		ChurnedRevenue:       t.churnedRev,
		UserQuickRatio:       ratio.QuickRatio(float64(t.newUsers+t.resurrected), float64(t.churned)),
		UserRetentionRate:    ratio.Div(float64(t.retained), lastUsers),
		UserGrowthRate:       ratio.Div(float64(t.active()), lastUsers) - 1,
		RevenueQuickRatio:    ratio.QuickRatio(t.newRev+t.resurrectedRev+t.expansionRev, t.churnedRev+t.contractionRev),
		RevenueRetentionRate: ratio.Div(t.retainedRev, t.lastRevenue),
		RevenueGrowthRate:    ratio.Div(t.revenue, t.lastRevenue) - 1,
	}
}
