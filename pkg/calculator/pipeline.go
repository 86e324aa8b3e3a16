package calculator

import (
	"context"
	"fmt"
	"os"
	"time"

	"growth-accounting/pkg/activity"
	"growth-accounting/pkg/cohort"
	"growth-accounting/pkg/engagement"
	"growth-accounting/pkg/growth"
	"growth-accounting/pkg/logger"
	"growth-accounting/pkg/models"
	"growth-accounting/pkg/ratio"
	"growth-accounting/pkg/rolling"

	"github.com/schollz/progressbar/v3"
)

// Stage sélectionne les calculs à exécuter.
type Stage uint8

const (
	StageGrowth Stage = 1 << iota
	StageCohorts
	StageRolling
	StageEngagement

	StageAll = StageGrowth | StageCohorts | StageRolling | StageEngagement
)

func (s Stage) has(o Stage) bool { return s&o != 0 }

// Report regroupe les tables produites par Run.
type Report struct {
	Config models.Config

	Daily  []models.DailyActivity
	Firsts []models.FirstActivity

	Growth  []models.RatioRow
	Cohorts []models.CohortRow
	Windows []models.WindowRow

	EngagementWindow engagement.Window
	Engagement       []models.EngagementRow
	Incomes          []models.UserIncome
	Concentration    []models.Concentration
	Histogram        []models.HistogramBin
}

// Run agrège les transactions puis exécute les étapes demandées.
// Une entrée vide donne un rapport vide, pas une erreur.
func Run(ctx context.Context, txns []models.Transaction, cfg models.Config, stages Stage) (*Report, error) {
	if err := cfg.Grain.Validate(); err != nil {
		return nil, err
	}
	rep := &Report{Config: cfg}
	log := logger.FromContext(ctx)

	var opts []activity.Option
	if cfg.IncludeNonPositive {
		opts = append(opts, activity.WithNonPositive())
	}
	if cfg.UseSegment {
		opts = append(opts, activity.WithSegments())
	}
	daily, err := activity.AggregateDaily(txns, opts...)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	rep.Daily = daily
	rep.Firsts = activity.FirstActivity(daily)
	if cfg.Verbose {
		log.Info("activité journalière", "transactions", len(txns), "rows", len(daily), "users", len(rep.Firsts))
	}

	var pa []models.PeriodActivity
	if stages.has(StageGrowth) || stages.has(StageCohorts) {
		if pa, err = growth.BuildPeriodActivity(daily, cfg.Grain, cfg.UseSegment); err != nil {
			return nil, fmt.Errorf("period activity: %w", err)
		}
	}

	if stages.has(StageGrowth) {
		rep.Growth = Growth(pa, cfg)
		if cfg.Verbose {
			log.Info("comptabilité de croissance", "grain", cfg.Grain, "rows", len(rep.Growth))
		}
	}

	if stages.has(StageCohorts) {
		rep.Cohorts, err = cohort.Retention(ctx, pa, cohort.Options{
			SinceOffset: cfg.CohortSinceOffset,
			Now:         cfg.Observation,
			DateLimit:   cfg.DateLimit,
			Workers:     cfg.Workers,
		})
		if err != nil {
			return nil, fmt.Errorf("cohorts: %w", err)
		}
		if cfg.Verbose {
			log.Info("cohortes", "grain", cfg.Grain, "rows", len(rep.Cohorts))
		}
	}

	if stages.has(StageRolling) {
		if rep.Windows, err = Windows(ctx, daily, rep.Firsts, cfg); err != nil {
			return nil, fmt.Errorf("rolling windows: %w", err)
		}
		if cfg.Verbose {
			log.Info("fenêtres glissantes", "window_days", cfg.WindowDays, "rows", len(rep.Windows), "incremental", cfg.IncrementalWindows)
		}
	}

	if stages.has(StageEngagement) {
		if err := engagementStage(ctx, rep, cfg); err != nil {
			return nil, fmt.Errorf("engagement: %w", err)
		}
		if cfg.Verbose {
			log.Info("engagement", "window_days", cfg.WindowDays, "rows", len(rep.Engagement), "users", len(rep.Incomes))
		}
	}
	return rep, nil
}

// Growth : jointure des périodes consécutives, classification, consolidation
// utilisateurs / revenus, filtrage de la dernière période puis ratios.
func Growth(pa []models.PeriodActivity, cfg models.Config) []models.RatioRow {
	pairs := growth.JoinConsecutive(pa)
	users := growth.AggregateUserGrowth(pairs)
	revenue := growth.AggregateRevenueGrowth(pairs, cfg.IncludeNonPositive)
	rows := growth.Trim(growth.Consolidate(users, revenue), growth.TrimOptions{
		KeepIncompleteFinalPeriod: cfg.KeepIncompleteFinalPeriod,
		DateLimit:                 cfg.DateLimit,
	})
	return ratio.Compute(rows, cfg.GrowthRateLookback)
}

// Windows lance le moteur glissant (incrémental ou de référence) avec une
// barre de progression en mode verbeux.
func Windows(ctx context.Context, daily []models.DailyActivity, firsts []models.FirstActivity, cfg models.Config) ([]models.WindowRow, error) {
	opts := rolling.Options{WindowDays: cfg.WindowDays, UseFinalDay: cfg.UseFinalDay, Workers: cfg.Workers}
	if minDate, maxDate, ok := activity.Bounds(daily); ok && cfg.Verbose {
		bar := newBar(len(rolling.EndDates(minDate, maxDate, opts)), "fenêtres")
		defer bar.Finish() //nolint:errcheck
		opts.OnWindow = func() { _ = bar.Add(1) }
	}
	if cfg.IncrementalWindows {
		return rolling.Incremental(daily, firsts, opts), nil
	}
	return rolling.Windows(ctx, daily, firsts, opts)
}

func engagementStage(ctx context.Context, rep *Report, cfg models.Config) error {
	_, maxDate, ok := activity.Bounds(rep.Daily)
	if !ok {
		return nil
	}
	if !cfg.UseFinalDay {
		maxDate = maxDate.AddDate(0, 0, -1)
	}
	w := engagement.Window{
		End:       maxDate,
		Days:      cfg.WindowDays,
		Grain:     cfg.EngagementGrain,
		Breakouts: cfg.BreakoutThresholds,
	}
	rep.EngagementWindow = w

	var err error
	if rep.Incomes, rep.Concentration, err = engagement.Distribution(rep.Daily, w); err != nil {
		return err
	}
	if rep.Histogram, err = engagement.Histogram(rep.Daily, w); err != nil {
		return err
	}

	ropts := engagement.RollingOptions{UseFinalDay: cfg.UseFinalDay, Workers: cfg.Workers}
	if cfg.Verbose {
		minDate, _, _ := activity.Bounds(rep.Daily)
		n := 0
		for d := minDate.AddDate(0, 0, w.Days); !d.After(maxDate); d = d.AddDate(0, 0, 1) {
			n++
		}
		bar := newBar(n, "engagement")
		defer bar.Finish() //nolint:errcheck
		ropts.OnWindow = func() { _ = bar.Add(1) }
	}
	rep.Engagement, err = engagement.Rolling(ctx, rep.Daily, w, ropts)
	return err
}

// newBar : progression sur stderr, stdout restant réservé aux tables.
func newBar(n int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
