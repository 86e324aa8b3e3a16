package csvio

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"growth-accounting/pkg/period"
)

// Cell formate une cellule pour le CSV. NaN (ratio non défini) donne "".
func Cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return formatTime(x)
	case period.Label:
		return x.String()
	}
	return fmt.Sprint(v)
}

// jsonValue : NaN devient null, les dates des chaînes.
func jsonValue(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case time.Time, period.Label:
		return Cell(x)
	}
	return v
}

// WriteCSV écrit l'en-tête puis les lignes.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	record := make([]string, len(t.Header))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = Cell(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON écrit un tableau d'objets (une clé par colonne).
func WriteJSON(w io.Writer, t Table) error {
	objects := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		obj := make(map[string]any, len(t.Header))
		for i, h := range t.Header {
			if i < len(row) {
				obj[h] = jsonValue(row[i])
			} else {
				obj[h] = nil
			}
		}
		objects = append(objects, obj)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(objects); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}

// Write choisit le format ("csv" ou "json").
func Write(w io.Writer, t Table, format string) error {
	switch format {
	case "json":
		return WriteJSON(w, t)
	case "csv", "":
		return WriteCSV(w, t)
	}
	return fmt.Errorf("unknown output format %q", format)
}

// Export écrit la table dans dir sous un nom horodaté et renvoie le chemin.
func Export(dir string, t Table, format string, now time.Time) (string, error) {
	if format == "" {
		format = "csv"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create folder: %w", err)
	}
	path := TimestampedFilename(dir, t.Name, format, now)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if err := Write(f, t, format); err != nil {
		return "", err
	}
	return path, f.Close()
}

// TimestampedFilename("out", "week_cohorts", "csv", t) -> out/week_cohorts_20250102_150405.csv
func TimestampedFilename(dir, name, ext string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", name, now.Format("20060102_150405"), ext))
}
