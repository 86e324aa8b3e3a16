package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"growth-accounting/pkg/models"
)

// dateLayouts : formats de date acceptés pour la colonne date.
var dateLayouts = []string{
	time.DateOnly,
	time.DateTime,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"01/02/2006",
	"2006/01/02",
}

// ParseDate essaie successivement les formats connus.
func ParseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", v)
}

// ReadTransactions lit un CSV avec en-tête et convertit chaque ligne en
// transaction selon la correspondance de colonnes. Une colonne obligatoire
// absente de l'en-tête renvoie ErrMissingColumn. Sans colonne montant,
// chaque ligne vaut 1.
func ReadTransactions(r io.Reader, m models.ColumnMapping) ([]models.Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty CSV: %w: %s", models.ErrMissingColumn, m.User)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}

	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	col := func(name string, required bool) (int, error) {
		if name == "" {
			if required {
				return -1, fmt.Errorf("%w: unnamed column", models.ErrMissingColumn)
			}
			return -1, nil
		}
		i, ok := index[name]
		if !ok {
			return -1, fmt.Errorf("%w: %s", models.ErrMissingColumn, name)
		}
		return i, nil
	}

	userCol, err := col(m.User, true)
	if err != nil {
		return nil, err
	}
	dateCol, err := col(m.Date, true)
	if err != nil {
		return nil, err
	}
	amountCol, err := col(m.Amount, false)
	if err != nil {
		return nil, err
	}
	segmentCol, err := col(m.Segment, false)
	if err != nil {
		return nil, err
	}

	field := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []models.Transaction
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		t := models.Transaction{UserID: field(row, userCol), Segment: field(row, segmentCol), Amount: 1}
		if t.UserID == "" {
			return nil, fmt.Errorf("line %d: %w: %s", line, models.ErrMissingColumn, m.User)
		}
		raw := field(row, dateCol)
		if raw == "" {
			return nil, fmt.Errorf("line %d: %w: %s", line, models.ErrMissingColumn, m.Date)
		}
		if t.ActivityDate, err = ParseDate(raw); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if amountCol >= 0 {
			v := field(row, amountCol)
			if v == "" {
				t.Amount = 0
			} else if t.Amount, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, fmt.Errorf("line %d: invalid amount %q: %w", line, v, err)
			}
		}
		out = append(out, t)
	}
	return out, nil
}
