package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"growth-accounting/pkg/csvio"
	"growth-accounting/pkg/models"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

const pingTimeout = 3 * time.Second

var identifier = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Open ouvre une connexion selon le DSN :
// postgres:// ou postgresql:// → lib/pq, mariadb:// ou mysql:// → format MySQL driver,
// sinon DSN MySQL natif. Renvoie aussi le nom du driver.
func Open(ctx context.Context, dsn string) (*sql.DB, string, error) {
	driver, native, err := driverDSN(dsn)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open(driver, native)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("database ping failed: %w", err)
	}
	return db, driver, nil
}

func driverDSN(dsn string) (driver, native string, err error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", dsn, nil
	}
	native, err = toMySQLDSN(dsn)
	return "mysql", native, err
}

func toMySQLDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "mariadb://") || strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		user := ""
		pass := ""
		if u.User != nil {
			user = u.User.Username()
			pw, _ := u.User.Password()
			pass = pw
		}
		host := u.Host
		db := strings.TrimPrefix(u.Path, "/")
		if user == "" || host == "" || db == "" {
			return "", fmt.Errorf("dsn incomplet (user/host/db)")
		}
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&interpolateParams=true",
			user, pass, host, db), nil
	}
	return dsn, nil
}

// Source décrit la table des transactions et ses colonnes.
type Source struct {
	Table   string
	Columns models.ColumnMapping
}

func (s Source) validate() error {
	for _, name := range []string{s.Table, s.Columns.User, s.Columns.Date} {
		if !identifier.MatchString(name) {
			return fmt.Errorf("identifiant invalide: %q", name)
		}
	}
	for _, name := range []string{s.Columns.Amount, s.Columns.Segment} {
		if name != "" && !identifier.MatchString(name) {
			return fmt.Errorf("identifiant invalide: %q", name)
		}
	}
	return nil
}

// Columns liste les colonnes de la table (requête vide).
func Columns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("table invalide")
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE 1=0", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return rows.Columns()
}

// LoadTransactions lit toutes les transactions de la table. Une colonne
// configurée mais absente de la table renvoie ErrMissingColumn.
func LoadTransactions(ctx context.Context, db *sql.DB, src Source) ([]models.Transaction, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}

	cols, err := Columns(ctx, db, src.Table)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", src.Table, err)
	}
	present := make(map[string]bool, len(cols))
	for _, c := range cols {
		present[strings.ToLower(c)] = true
	}
	selected := []string{src.Columns.User, src.Columns.Date}
	if src.Columns.Amount != "" {
		selected = append(selected, src.Columns.Amount)
	}
	if src.Columns.Segment != "" {
		selected = append(selected, src.Columns.Segment)
	}
	for _, c := range selected {
		if !present[strings.ToLower(c)] {
			return nil, fmt.Errorf("%s: %w: %s", src.Table, models.ErrMissingColumn, c)
		}
	}

	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selected, ", "), src.Table)
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var (
			user    sql.NullString
			date    any
			amount  sql.NullFloat64
			segment sql.NullString
		)
		dest := []any{&user, &date}
		if src.Columns.Amount != "" {
			dest = append(dest, &amount)
		}
		if src.Columns.Segment != "" {
			dest = append(dest, &segment)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		if !user.Valid || user.String == "" {
			return nil, fmt.Errorf("row %d: %w: %s", len(out)+1, models.ErrMissingColumn, src.Columns.User)
		}
		t := models.Transaction{UserID: user.String, Segment: segment.String, Amount: 1}
		if t.ActivityDate, err = toTime(date); err != nil {
			return nil, fmt.Errorf("row %d: %w", len(out)+1, err)
		}
		if src.Columns.Amount != "" {
			t.Amount = amount.Float64 // NULL = 0
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// toTime convertit une date scannée : DATE/DATETIME (parseTime) ou texte.
func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case []byte:
		return csvio.ParseDate(string(x))
	case string:
		return csvio.ParseDate(x)
	case nil:
		return time.Time{}, fmt.Errorf("%w: date", models.ErrMissingColumn)
	}
	return time.Time{}, fmt.Errorf("unsupported date type %T", v)
}
