package models

import (
	"database/sql"
	"errors"
	"time"

	"growth-accounting/pkg/period"
)

// AllSegment est le segment synthétique utilisé quand la segmentation est désactivée.
const AllSegment = "All"

// ErrMissingColumn : un champ obligatoire (utilisateur, date) est absent des données.
var ErrMissingColumn = errors.New("missing column")

/*
LOAD → types simples pour les transactions brutes.
*/

// Transaction est une ligne brute du journal d'événements (achat, remboursement, usage).
type Transaction struct {
	UserID       string
	ActivityDate time.Time
	Amount       float64
	Segment      string // optionnel
}

// DailyActivity agrège les transactions par (utilisateur, jour, segment).
type DailyActivity struct {
	UserID  string
	Date    time.Time
	Segment string
	Amount  float64
}

// FirstActivity : première date d'activité d'un utilisateur et ses périodes.
// Calculée une seule fois, jamais révisée.
type FirstActivity struct {
	UserID     string
	FirstDate  time.Time
	FirstWeek  period.Label
	FirstMonth period.Label
}

// FirstPeriod renvoie la première période de l'utilisateur pour une granularité.
func (f FirstActivity) FirstPeriod(g period.Grain) period.Label {
	switch g {
	case period.Week:
		return f.FirstWeek
	case period.Month:
		return f.FirstMonth
	}
	return period.Label{Grain: period.Day, Start: f.FirstDate}
}

// ColumnMapping : correspondance entre les champs d'une transaction et les
// colonnes de la source (CSV ou table SQL).
type ColumnMapping struct {
	User    string
	Date    string
	Amount  string // vide : chaque ligne vaut 1 (comptage d'événements)
	Segment string // vide : pas de colonne segment
}

/*
COMPUTE → tables intermédiaires et résultats.
*/

// PeriodActivity : activité d'un utilisateur sur une période (semaine, mois...).
type PeriodActivity struct {
	Period      period.Label
	UserID      string
	Segment     string
	Amount      float64
	FirstPeriod period.Label
	NextPeriod  period.Label
}

// JoinedPair aligne l'activité de la période (This) avec celle de la période
// précédente (Last). Un côté absent a Valid == false.
type JoinedPair struct {
	Period          period.Label
	UserID          string
	Segment         string
	This            sql.NullFloat64
	Last            sql.NullFloat64
	ThisFirstPeriod period.Label
	LastFirstPeriod period.Label
}

// PeriodGrowthRow contient la comptabilité de croissance d'une période.
// Les churns sont stockés en négatif.
type PeriodGrowthRow struct {
	Period  period.Label
	Segment string

	ActiveUsers      int
	RetainedUsers    int
	NewUsers         int
	ResurrectedUsers int
	ChurnedUsers     int

	Revenue            float64
	RetainedRevenue    float64
	NewRevenue         float64
	ResurrectedRevenue float64
	ExpansionRevenue   float64
	ContractionRevenue float64
	ChurnedRevenue     float64
}

// RatioRow ajoute les ratios dérivés à une ligne de croissance.
// Les valeurs non définies valent NaN.
type RatioRow struct {
	PeriodGrowthRow

	UsersBOP            float64
	UserRetention       float64
	UserQuickRatio      float64
	UserGrowthRate      float64 // CGR sur la fenêtre de lookback
	RevenueBOP          float64
	RevenueRetention    float64
	RevenueQuickRatio   float64
	NetExpansionRevenue float64
	RevenueGrowthRate   float64
	RevenuePerUser      float64
	Lookback            int
}

// CohortRow : rétention et revenu cumulé d'une cohorte sur une période.
type CohortRow struct {
	FirstPeriod       period.Label
	Period            period.Label
	Segment           string
	PeriodsSinceFirst int

	CohortSize              int
	CustomerCount           int
	Income                  float64
	CumulativeIncome        float64
	IncomePerCohortCustomer float64
	Retention               float64
}

// WindowRow : comptabilité de croissance sur deux fenêtres de jours adjacentes.
type WindowRow struct {
	WindowEnd  time.Time
	Segment    string
	WindowDays int

	ActiveUsers      int
	RetainedUsers    int
	NewUsers         int
	ResurrectedUsers int
	ChurnedUsers     int

	Revenue            float64 // fenêtre courante
	LastRevenue        float64 // fenêtre précédente
	RetainedRevenue    float64
	NewRevenue         float64
	ResurrectedRevenue float64
	ExpansionRevenue   float64
	ContractionRevenue float64
	ChurnedRevenue     float64

	UserQuickRatio       float64
	UserRetentionRate    float64
	UserGrowthRate       float64
	RevenueQuickRatio    float64
	RevenueRetentionRate float64
	RevenueGrowthRate    float64
}

// UserUsage : activité d'un utilisateur sur une fenêtre d'engagement.
type UserUsage struct {
	UserID        string
	Segment       string
	ActivePeriods int
	Amount        float64
	Breakouts     map[int]bool // seuil -> actif au moins N sous-périodes
}

// UserIncome : rang d'un utilisateur dans la distribution du revenu.
type UserIncome struct {
	UserUsage
	Rank             int // 1 = plus gros revenu
	CumulativeAmount float64
	CumulativeShare  float64
	Decile           int // 1..10, 10 = plus gros revenus
}

// Concentration : concentration du revenu (Pareto) par segment.
type Concentration struct {
	Segment               string
	TotalAmount           float64
	TotalUsers            int
	Revenue80PctUserCount int
	Revenue80PctRatio     float64
}

// HistogramBin : nombre d'utilisateurs actifs exactement N sous-périodes.
type HistogramBin struct {
	Segment       string
	ActivePeriods int
	UserCount     int
	AvgActive     float64
}

// BreakoutShare : utilisateurs actifs au moins Threshold sous-périodes.
type BreakoutShare struct {
	Threshold int
	Users     int
	Ratio     float64
}

// EngagementRow : ratios d'engagement (type DAU/MAU) d'une fenêtre.
type EngagementRow struct {
	WindowEnd       time.Time
	Segment         string
	Grain           period.Grain
	WindowDays      int
	ActivePeriods   int
	ActiveUsers     int
	WindowRatio     float64
	WindowFrequency float64
	Breakouts       []BreakoutShare
}

/*
CONFIG → paramètres globaux
*/

// Config contient les paramètres passés au calculateur.
type Config struct {
	Grain                     period.Grain
	UseSegment                bool
	IncludeNonPositive        bool
	KeepIncompleteFinalPeriod bool
	DateLimit                 time.Time // zéro = pas de limite
	GrowthRateLookback        int
	WindowDays                int
	BreakoutThresholds        []int
	EngagementGrain           period.Grain // sous-périodes des fenêtres d'engagement
	CohortSinceOffset         int
	UseFinalDay               bool
	IncrementalWindows        bool
	Workers                   int
	Observation               time.Time // "aujourd'hui" pour l'exclusion des cohortes incomplètes (UTC)
	Verbose                   bool      // Flag pour activer les logs détaillés.
}
