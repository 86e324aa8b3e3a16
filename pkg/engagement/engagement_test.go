package engagement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"growth-accounting/pkg/activity"
	"growth-accounting/pkg/models"
	"growth-accounting/pkg/period"
)

func jan(day int) time.Time {
	return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
}

func sample(t *testing.T) []models.DailyActivity {
	t.Helper()
	daily, err := activity.AggregateDaily([]models.Transaction{
		{UserID: "u1", ActivityDate: jan(1), Amount: 10},
		{UserID: "u1", ActivityDate: jan(2), Amount: 5},
		{UserID: "u1", ActivityDate: jan(3), Amount: 5},
		{UserID: "u1", ActivityDate: jan(5), Amount: 1},
		{UserID: "u2", ActivityDate: jan(7), Amount: 3},
		{UserID: "u3", ActivityDate: jan(4), Amount: 2},
		{UserID: "u3", ActivityDate: jan(6), Amount: 2},
		{UserID: "u4", ActivityDate: jan(1).AddDate(0, 0, -1), Amount: 100},
		{UserID: "u4", ActivityDate: jan(8), Amount: 1},
	})
	require.NoError(t, err)
	return daily
}

func week1() Window {
	return Window{End: jan(7), Days: 7, Grain: period.Day, Breakouts: []int{2, 4}}
}

func TestUsage(t *testing.T) {
	usage, err := Usage(sample(t), week1())
	require.NoError(t, err)
	require.Len(t, usage, 3, "u4 is outside the window")

	assert.Equal(t, "u1", usage[0].UserID)
	assert.Equal(t, 4, usage[0].ActivePeriods)
	assert.Equal(t, 21.0, usage[0].Amount)
	assert.Equal(t, map[int]bool{2: true, 4: true}, usage[0].Breakouts)

	assert.Equal(t, "u3", usage[1].UserID)
	assert.Equal(t, map[int]bool{2: true, 4: false}, usage[1].Breakouts)

	assert.Equal(t, "u2", usage[2].UserID)
	assert.Equal(t, 1, usage[2].ActivePeriods)
}

func TestUsage_WeekSubPeriods(t *testing.T) {
	daily, err := activity.AggregateDaily([]models.Transaction{
		{UserID: "a", ActivityDate: jan(1), Amount: 1},
		{UserID: "a", ActivityDate: jan(8), Amount: 1},
		{UserID: "b", ActivityDate: jan(1), Amount: 1},
		{UserID: "b", ActivityDate: jan(7), Amount: 1},
	})
	require.NoError(t, err)

	usage, err := Usage(daily, Window{End: jan(14), Days: 14, Grain: period.Week})
	require.NoError(t, err)
	periods := map[string]int{}
	for _, u := range usage {
		periods[u.UserID] = u.ActivePeriods
	}
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, periods)
}

func TestUsage_InvalidWindow(t *testing.T) {
	_, err := Usage(nil, Window{End: jan(7), Days: 7, Grain: period.Grain("hour")})
	assert.ErrorIs(t, err, period.ErrInvalidGrain)

	_, err = Usage(nil, Window{End: jan(7), Grain: period.Day})
	assert.Error(t, err)
}

func TestDistribution(t *testing.T) {
	incomes, conc, err := Distribution(sample(t), week1())
	require.NoError(t, err)
	require.Len(t, incomes, 3)
	require.Len(t, conc, 1)

	ranks := map[string]int{}
	deciles := map[string]int{}
	for _, u := range incomes {
		ranks[u.UserID] = u.Rank
		deciles[u.UserID] = u.Decile
	}
	assert.Equal(t, map[string]int{"u1": 1, "u3": 2, "u2": 3}, ranks)
	assert.Equal(t, map[string]int{"u1": 10, "u3": 5, "u2": 1}, deciles)

	assert.Equal(t, 21.0, incomes[0].CumulativeAmount)
	assert.Equal(t, 0.75, incomes[0].CumulativeShare)
	assert.Equal(t, 1.0, incomes[2].CumulativeShare)

	c := conc[0]
	assert.Equal(t, models.AllSegment, c.Segment)
	assert.Equal(t, 28.0, c.TotalAmount)
	assert.Equal(t, 3, c.TotalUsers)
	assert.Equal(t, 2, c.Revenue80PctUserCount)
	assert.InDelta(t, 2.0/3.0, c.Revenue80PctRatio, 1e-12)
}

func TestDistribution_TiesKeepInsertionOrder(t *testing.T) {
	daily := []models.DailyActivity{
		{UserID: "b", Date: jan(1), Segment: "All", Amount: 5},
		{UserID: "a", Date: jan(2), Segment: "All", Amount: 5},
	}
	incomes, _, err := Distribution(daily, Window{End: jan(2), Days: 2, Grain: period.Day})
	require.NoError(t, err)
	require.Len(t, incomes, 2)
	// ordre d'insertion (a, b) : a a le rang croissant 1, donc le rang 2
	assert.Equal(t, "b", incomes[0].UserID)
	assert.Equal(t, 1, incomes[0].Rank)
	assert.Equal(t, "a", incomes[1].UserID)
}

func TestDistribution_Empty(t *testing.T) {
	incomes, conc, err := Distribution(nil, week1())
	require.NoError(t, err)
	assert.Empty(t, incomes)
	assert.Empty(t, conc)
}

func TestDecile(t *testing.T) {
	cases := []struct{ r, n, want int }{
		{1, 1, 1},
		{1, 10, 1},
		{2, 10, 2},
		{5, 10, 5},
		{10, 10, 10},
		{1, 100, 1},
		{100, 100, 10},
		{50, 100, 5},
	}
	for _, c := range cases {
		if got := Decile(c.r, c.n); got != c.want {
			t.Fatalf("Decile(%d, %d) = %d, want %d", c.r, c.n, got, c.want)
		}
	}
}

func TestDecile_EqualCountBuckets(t *testing.T) {
	counts := make(map[int]int)
	for r := 1; r <= 1000; r++ {
		counts[Decile(r, 1000)]++
	}
	require.Len(t, counts, 10)
	for d, n := range counts {
		assert.InDelta(t, 100, n, 2, "decile %d", d)
	}
}

func TestHistogram(t *testing.T) {
	bins, err := Histogram(sample(t), week1())
	require.NoError(t, err)
	require.Len(t, bins, 7)

	got := map[int]int{}
	for _, b := range bins {
		got[b.ActivePeriods] = b.UserCount
		assert.InDelta(t, 7.0/3.0, b.AvgActive, 1e-12)
	}
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 0, 4: 1, 5: 0, 6: 0, 7: 0}, got)
}

func TestRatios(t *testing.T) {
	rows, err := Ratios(sample(t), week1())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Equal(t, 3, r.ActiveUsers)
	assert.Equal(t, 7, r.ActivePeriods)
	assert.InDelta(t, 1.0/3.0, r.WindowRatio, 1e-12)
	assert.InDelta(t, 7.0/3.0, r.WindowFrequency, 1e-12)
	assert.Equal(t, []models.BreakoutShare{
		{Threshold: 2, Users: 2, Ratio: 2.0 / 3.0},
		{Threshold: 4, Users: 1, Ratio: 1.0 / 3.0},
	}, r.Breakouts)
}

func TestRolling(t *testing.T) {
	tmpl := Window{Days: 3, Grain: period.Day, Breakouts: []int{2}}
	var calls int
	rows, err := Rolling(context.Background(), sample(t), tmpl, RollingOptions{UseFinalDay: true, Workers: 1, OnWindow: func() { calls++ }})
	require.NoError(t, err)

	// de 12-31 + 3 jours à 01-08
	assert.Equal(t, 6, calls)
	require.Len(t, rows, 6)
	for i := 1; i < len(rows); i++ {
		assert.True(t, rows[i-1].WindowEnd.Before(rows[i].WindowEnd))
	}
	last := rows[len(rows)-1]
	assert.Equal(t, jan(8), last.WindowEnd)
	assert.Equal(t, 3, last.ActiveUsers)

	rows, err = Rolling(context.Background(), sample(t), tmpl, RollingOptions{})
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestRolling_Empty(t *testing.T) {
	rows, err := Rolling(context.Background(), nil, Window{Days: 7, Grain: period.Day}, RollingOptions{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
