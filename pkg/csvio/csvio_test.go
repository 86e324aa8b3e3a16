package csvio

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"growth-accounting/pkg/models"
	"growth-accounting/pkg/period"
)

var mapping = models.ColumnMapping{User: "user_id", Date: "activity_date", Amount: "amount", Segment: "plan"}

func TestReadTransactions(t *testing.T) {
	in := "\ufeffuser_id,activity_date,amount,plan\n" +
		"u1,2024-01-03,10.5,pro\n" +
		"u2,2024-01-04 13:45:00,-2,free\n" +
		"u3,2024/01/05,,free\n"
	txns, err := ReadTransactions(strings.NewReader(in), mapping)
	require.NoError(t, err)
	require.Len(t, txns, 3)

	assert.Equal(t, models.Transaction{UserID: "u1", ActivityDate: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Amount: 10.5, Segment: "pro"}, txns[0])
	assert.Equal(t, 13, txns[1].ActivityDate.Hour())
	assert.Equal(t, -2.0, txns[1].Amount)
	assert.Equal(t, 0.0, txns[2].Amount, "empty amount cell")
}

func TestReadTransactions_NoAmountColumnCountsEvents(t *testing.T) {
	in := "user_id,activity_date\nu1,2024-01-03\n"
	txns, err := ReadTransactions(strings.NewReader(in), models.ColumnMapping{User: "user_id", Date: "activity_date"})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, 1.0, txns[0].Amount)
	assert.Empty(t, txns[0].Segment)
}

func TestReadTransactions_MissingColumn(t *testing.T) {
	cases := map[string]string{
		"header without user": "customer,activity_date,amount,plan\nu1,2024-01-03,1,pro\n",
		"header without plan": "user_id,activity_date,amount\nu1,2024-01-03,1\n",
		"empty user cell":     "user_id,activity_date,amount,plan\n,2024-01-03,1,pro\n",
		"empty date cell":     "user_id,activity_date,amount,plan\nu1,,1,pro\n",
		"empty file":          "",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadTransactions(strings.NewReader(in), mapping)
			if !errors.Is(err, models.ErrMissingColumn) {
				t.Fatalf("want ErrMissingColumn, got %v", err)
			}
		})
	}
}

func TestReadTransactions_BadValues(t *testing.T) {
	_, err := ReadTransactions(strings.NewReader("user_id,activity_date,amount,plan\nu1,03.01.2024,1,pro\n"), mapping)
	assert.Error(t, err)
	_, err = ReadTransactions(strings.NewReader("user_id,activity_date,amount,plan\nu1,2024-01-03,abc,pro\n"), mapping)
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-02-29", "02/29/2024", "2024/02/29", " 2024-02-29 "} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(want), "%s: got %v", in, got)
	}
	_, err := ParseDate("yesterday")
	assert.Error(t, err)
}

func TestCell(t *testing.T) {
	assert.Equal(t, "", Cell(math.NaN()))
	assert.Equal(t, "", Cell(math.Inf(1)))
	assert.Equal(t, "", Cell(nil))
	assert.Equal(t, "0.25", Cell(0.25))
	assert.Equal(t, "-3", Cell(-3))
	assert.Equal(t, "2024-01-08", Cell(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-01", Cell(period.MustOf(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), period.Month)))
}

func sampleTable() Table {
	return Table{
		Name:   "sample",
		Header: []string{"week", "segment", "active_users", "user_quick_ratio"},
		Rows: [][]any{
			{period.MustOf(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), period.Week), "All", 2, math.NaN()},
			{period.MustOf(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), period.Week), "All", 3, 1.5},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleTable()))
	want := "week,segment,active_users,user_quick_ratio\n" +
		"2024-01-01,All,2,\n" +
		"2024-01-08,All,3,1.5\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleTable()))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "2024-01-01", got[0]["week"])
	assert.Nil(t, got[0]["user_quick_ratio"])
	assert.Equal(t, 1.5, got[1]["user_quick_ratio"])
}

func TestWrite_UnknownFormat(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, sampleTable(), "xlsx"))
}

func TestExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	now := time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)

	path, err := Export(dir, sampleTable(), "csv", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sample_20250102_150405.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "week,segment"))
}

func TestGrowthTableColumns(t *testing.T) {
	tbl := GrowthTable([]models.RatioRow{{UsersBOP: math.NaN()}}, period.Week)
	assert.Equal(t, "week_growth_accounting", tbl.Name)
	assert.Equal(t, "Week", tbl.Header[0])
	require.Len(t, tbl.Rows, 1)
	assert.Len(t, tbl.Rows[0], len(tbl.Header))
}

func TestEngagementTableBreakoutColumns(t *testing.T) {
	tbl := EngagementTable([]models.EngagementRow{
		{Segment: "a", Breakouts: []models.BreakoutShare{{Threshold: 4, Users: 1, Ratio: 0.5}, {Threshold: 2, Users: 2, Ratio: 1}}},
		{Segment: "b"},
	})
	assert.Equal(t, []string{"breakout_2_users", "breakout_2_ratio", "breakout_4_users", "breakout_4_ratio"}, tbl.Header[8:])
	assert.Equal(t, []any{2, 1.0, 1, 0.5}, tbl.Rows[0][8:])
	assert.Equal(t, []any{nil, nil, nil, nil}, tbl.Rows[1][8:])
}
