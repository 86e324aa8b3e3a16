package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"growth-accounting/pkg/cohort"
	"growth-accounting/pkg/engagement"
	"growth-accounting/pkg/models"
	"growth-accounting/pkg/period"
	"growth-accounting/pkg/ratio"
	"growth-accounting/pkg/rolling"
)

// Settings regroupe la configuration du moteur et des entrées / sorties.
type Settings struct {
	Run         models.Config
	File        string
	DSN         string
	Table       string
	Columns     models.ColumnMapping
	Format      string // csv | json
	Out         string // répertoire de sortie, vide = stdout
	Environment string
}

// Defaults renvoie la configuration par défaut.
func Defaults() Settings {
	return Settings{
		Run: models.Config{
			Grain:              period.Week,
			GrowthRateLookback: ratio.DefaultLookback,
			WindowDays:         rolling.DefaultWindowDays,
			BreakoutThresholds: append([]int(nil), engagement.DefaultBreakouts...),
			EngagementGrain:    period.Day,
			CohortSinceOffset:  cohort.DefaultSinceOffset,
			UseFinalDay:        true,
			Workers:            runtime.GOMAXPROCS(0),
		},
		Table:       "transactions",
		Columns:     models.ColumnMapping{User: "user_id", Date: "activity_date", Amount: "amount"},
		Format:      "csv",
		Environment: "development",
	}
}

// Load lit le fichier .env (s'il existe) puis les variables GA_* par-dessus
// les valeurs par défaut.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil {
		_ = err // pas de .env : seules les variables d'environnement comptent
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv construit la configuration à partir d'une fonction de lecture
// d'environnement (os.LookupEnv en production, une map en test).
func FromEnv(lookup func(string) (string, bool)) (Settings, error) {
	s := Defaults()
	r := &s.Run

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []string
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}

	if v, ok := lookup("GA_GRAIN"); ok {
		g, err := period.ParseGrain(v)
		if err != nil {
			return s, fmt.Errorf("GA_GRAIN: %w", err)
		}
		r.Grain = g
	}
	if v, ok := lookup("GA_ENGAGEMENT_GRAIN"); ok {
		g, err := period.ParseGrain(v)
		if err != nil {
			return s, fmt.Errorf("GA_ENGAGEMENT_GRAIN: %w", err)
		}
		r.EngagementGrain = g
	}
	flag("GA_USE_SEGMENT", &r.UseSegment)
	flag("GA_INCLUDE_NON_POSITIVE_AMOUNTS", &r.IncludeNonPositive)
	flag("GA_KEEP_INCOMPLETE_FINAL_PERIOD", &r.KeepIncompleteFinalPeriod)
	flag("GA_USE_FINAL_DAY", &r.UseFinalDay)
	flag("GA_INCREMENTAL_WINDOWS", &r.IncrementalWindows)
	flag("GA_VERBOSE", &r.Verbose)
	num("GA_GROWTH_RATE_LOOKBACK", &r.GrowthRateLookback)
	num("GA_WINDOW_DAYS", &r.WindowDays)
	num("GA_COHORT_SINCE_OFFSET", &r.CohortSinceOffset)
	num("GA_WORKERS", &r.Workers)

	if v, ok := lookup("GA_DATE_LIMIT"); ok && strings.TrimSpace(v) != "" {
		t, err := ParseDate(v)
		if err != nil {
			return s, fmt.Errorf("GA_DATE_LIMIT: %w", err)
		}
		r.DateLimit = t
	}
	if v, ok := lookup("GA_BREAKOUT_THRESHOLDS"); ok {
		b, err := ParseInts(v)
		if err != nil {
			return s, fmt.Errorf("GA_BREAKOUT_THRESHOLDS: %w", err)
		}
		r.BreakoutThresholds = b
	}

	str("GA_FILE", &s.File)
	str("GA_DSN", &s.DSN)
	str("GA_TABLE", &s.Table)
	str("GA_USER_COLUMN", &s.Columns.User)
	str("GA_DATE_COLUMN", &s.Columns.Date)
	str("GA_AMOUNT_COLUMN", &s.Columns.Amount)
	str("GA_SEGMENT_COLUMN", &s.Columns.Segment)
	str("GA_FORMAT", &s.Format)
	str("GA_OUT", &s.Out)
	str("ENVIRONMENT", &s.Environment)

	if len(errs) > 0 {
		return s, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return s, s.Validate()
}

// Validate vérifie la cohérence de la configuration.
func (s Settings) Validate() error {
	if err := s.Run.Grain.Validate(); err != nil {
		return err
	}
	if err := s.Run.EngagementGrain.Validate(); err != nil {
		return err
	}
	if s.Run.WindowDays <= 0 {
		return fmt.Errorf("window days must be positive, got %d", s.Run.WindowDays)
	}
	if s.Run.GrowthRateLookback <= 0 {
		return fmt.Errorf("growth rate lookback must be positive, got %d", s.Run.GrowthRateLookback)
	}
	if s.Run.UseSegment && s.Columns.Segment == "" {
		return fmt.Errorf("segmentation requested without a segment column")
	}
	switch s.Format {
	case "csv", "json":
	default:
		return fmt.Errorf("unknown output format %q (csv|json)", s.Format)
	}
	return nil
}

// ParseDate accepte "YYYY-MM-DD" ou le format mois "MMYYYY".
func ParseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return period.ParseMonth(v)
}

// ParseInts("2,4") -> [2 4]
func ParseInts(v string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
