package calculator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"growth-accounting/pkg/csvio"
	"growth-accounting/pkg/models"
	"growth-accounting/pkg/period"
)

// d1 est un lundi.
var d1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func baseConfig() models.Config {
	return models.Config{
		Grain:              period.Week,
		GrowthRateLookback: 4,
		WindowDays:         7,
		BreakoutThresholds: []int{2, 4},
		EngagementGrain:    period.Day,
		CohortSinceOffset:  1,
		UseFinalDay:        true,
		Workers:            4,
		Observation:        time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func fixture() []models.Transaction {
	r := rand.New(rand.NewSource(11))
	plans := []string{"free", "pro"}
	var out []models.Transaction
	for i := 0; i < 400; i++ {
		out = append(out, models.Transaction{
			UserID:       fmt.Sprintf("user-%02d", r.Intn(25)),
			ActivityDate: d1.AddDate(0, 0, r.Intn(90)).Add(time.Duration(r.Intn(24)) * time.Hour),
			Amount:       float64(r.Intn(12) - 1),
			Segment:      plans[r.Intn(len(plans))],
		})
	}
	return out
}

func render(t *testing.T, rep *Report) string {
	t.Helper()
	tables := []csvio.Table{
		csvio.GrowthTable(rep.Growth, rep.Config.Grain),
		csvio.CohortTable(rep.Cohorts, rep.Config.Grain),
		csvio.WindowTable(rep.Windows),
		csvio.EngagementTable(rep.Engagement),
		csvio.IncomeTable(rep.Incomes),
		csvio.ConcentrationTable(rep.Concentration),
		csvio.HistogramTable(rep.Histogram, rep.Config.EngagementGrain),
	}
	var buf bytes.Buffer
	for _, tbl := range tables {
		require.NoError(t, csvio.WriteCSV(&buf, tbl))
	}
	return buf.String()
}

func TestRun_Scenario(t *testing.T) {
	cfg := baseConfig()
	cfg.KeepIncompleteFinalPeriod = true
	rep, err := Run(context.Background(), []models.Transaction{
		{UserID: "u1", ActivityDate: d1, Amount: 10},
		{UserID: "u1", ActivityDate: d1.AddDate(0, 0, 7), Amount: 10},
		{UserID: "u2", ActivityDate: d1.AddDate(0, 0, 7), Amount: 5},
	}, cfg, StageGrowth)
	require.NoError(t, err)
	require.Len(t, rep.Growth, 2)

	w1, w2 := rep.Growth[0], rep.Growth[1]
	assert.Equal(t, 1, w1.ActiveUsers)
	assert.Equal(t, 1, w1.NewUsers)
	assert.Equal(t, 2, w2.ActiveUsers)
	assert.Equal(t, 1, w2.RetainedUsers)
	assert.Equal(t, 1, w2.NewUsers)
	assert.True(t, math.IsNaN(w2.UserQuickRatio), "no churn")
	assert.Equal(t, 1.0, w2.UserRetention)

	assert.Nil(t, rep.Cohorts)
	assert.Nil(t, rep.Windows)
}

func TestRun_TrimsIncompleteFinalPeriod(t *testing.T) {
	txns := []models.Transaction{
		{UserID: "u1", ActivityDate: d1, Amount: 10},
		{UserID: "u1", ActivityDate: d1.AddDate(0, 0, 7), Amount: 10},
	}
	rep, err := Run(context.Background(), txns, baseConfig(), StageGrowth)
	require.NoError(t, err)
	require.Len(t, rep.Growth, 1)
	assert.True(t, rep.Growth[0].Period.Equal(period.MustOf(d1, period.Week)))
}

func TestRun_Empty(t *testing.T) {
	rep, err := Run(context.Background(), nil, baseConfig(), StageAll)
	require.NoError(t, err)
	assert.Empty(t, rep.Growth)
	assert.Empty(t, rep.Cohorts)
	assert.Empty(t, rep.Windows)
	assert.Empty(t, rep.Engagement)
	assert.Empty(t, rep.Incomes)
	assert.Empty(t, rep.Histogram)
}

func TestRun_Errors(t *testing.T) {
	cfg := baseConfig()
	cfg.Grain = period.Grain("quarter")
	_, err := Run(context.Background(), fixture(), cfg, StageAll)
	assert.True(t, errors.Is(err, period.ErrInvalidGrain))

	_, err = Run(context.Background(), []models.Transaction{{ActivityDate: d1, Amount: 1}}, baseConfig(), StageGrowth)
	assert.True(t, errors.Is(err, models.ErrMissingColumn))

	cfg = baseConfig()
	cfg.EngagementGrain = period.Grain("hour")
	_, err = Run(context.Background(), fixture(), cfg, StageEngagement)
	assert.True(t, errors.Is(err, period.ErrInvalidGrain))
}

func TestRun_Idempotent(t *testing.T) {
	for _, segments := range []bool{false, true} {
		cfg := baseConfig()
		cfg.UseSegment = segments

		a, err := Run(context.Background(), fixture(), cfg, StageAll)
		require.NoError(t, err)
		require.NotEmpty(t, a.Growth)
		require.NotEmpty(t, a.Cohorts)
		require.NotEmpty(t, a.Windows)
		require.NotEmpty(t, a.Engagement)

		cfg.Workers = 1
		b, err := Run(context.Background(), fixture(), cfg, StageAll)
		require.NoError(t, err)
		assert.Equal(t, render(t, a), render(t, b), "segments=%v", segments)
	}
}

func TestRun_IncrementalWindowsMatchReference(t *testing.T) {
	cfg := baseConfig()
	cfg.UseSegment = true
	ref, err := Run(context.Background(), fixture(), cfg, StageRolling)
	require.NoError(t, err)

	cfg.IncrementalWindows = true
	inc, err := Run(context.Background(), fixture(), cfg, StageRolling)
	require.NoError(t, err)

	assert.Equal(t, render(t, ref), render(t, inc))
}

func TestRun_NonPositiveAmounts(t *testing.T) {
	txns := []models.Transaction{
		{UserID: "u1", ActivityDate: d1, Amount: 10},
		{UserID: "u2", ActivityDate: d1, Amount: -4},
	}
	cfg := baseConfig()
	cfg.KeepIncompleteFinalPeriod = true

	rep, err := Run(context.Background(), txns, cfg, StageGrowth)
	require.NoError(t, err)
	require.Len(t, rep.Growth, 1)
	assert.Equal(t, 1, rep.Growth[0].ActiveUsers)

	cfg.IncludeNonPositive = true
	rep, err = Run(context.Background(), txns, cfg, StageGrowth)
	require.NoError(t, err)
	require.Len(t, rep.Growth, 1)
	assert.Len(t, rep.Daily, 2)
	assert.Equal(t, 6.0, rep.Growth[0].Revenue)
}
