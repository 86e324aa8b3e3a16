package growth

import (
	"database/sql"
)

// Category est le statut de croissance d'un utilisateur sur une période.
type Category int

const (
	Prior Category = iota
	New
	Retained
	Resurrected
	Churned
)

func (c Category) String() string {
	switch c {
	case New:
		return "new"
	case Retained:
		return "retained"
	case Resurrected:
		return "resurrected"
	case Churned:
		return "churned"
	}
	return "prior"
}

// Observation est l'entrée de la classification : montant de la période
// courante, montant de la période précédente (tous deux optionnels) et
// appartenance de la première activité à la période courante.
type Observation struct {
	This            sql.NullFloat64
	Last            sql.NullFloat64
	FirstThisPeriod bool
}

func (o Observation) thisActive() bool { return o.This.Valid && o.This.Float64 > 0 }
func (o Observation) lastActive() bool { return o.Last.Valid && o.Last.Float64 > 0 }

// ClassifyObservation applique les règles dans l'ordre : new, retained,
// resurrected, churned, prior. La première règle vérifiée l'emporte.
func ClassifyObservation(o Observation) Category {
	switch {
	case o.FirstThisPeriod:
		return New
	case o.thisActive() && o.lastActive():
		return Retained
	case o.thisActive():
		return Resurrected
	case o.lastActive():
		return Churned
	default:
		return Prior
	}
}

// Contribution est l'apport d'une observation aux totaux d'une période.
type Contribution struct {
	Category Category

	Active bool
	Total  float64 // montant de la période courante (présent ou non actif)

	Retained    float64
	New         float64
	Resurrected float64
	Expansion   float64
	Contraction float64 // <= 0
	Churned     float64 // <= 0
}

// Split classe l'observation et répartit son revenu. Pour un utilisateur
// retenu : retained = min(this, last), puis soit expansion (this > last)
// soit contraction (this < last), jamais les deux.
func Split(o Observation) Contribution {
	c := Contribution{Category: ClassifyObservation(o), Active: o.thisActive()}
	if o.This.Valid {
		c.Total = o.This.Float64
	}

	switch c.Category {
	case New:
		c.New = c.Total
	case Retained:
		this, last := o.This.Float64, o.Last.Float64
		c.Retained = min(this, last)
		switch {
		case this > last:
			c.Expansion = this - last
		case this < last:
			c.Contraction = this - last
		}
	case Resurrected:
		c.Resurrected = c.Total
	case Churned:
		c.Churned = -o.Last.Float64
	}
	return c
}
