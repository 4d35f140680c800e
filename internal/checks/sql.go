package checks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/blackwhitehere/acme-data-dash/internal/check"
	"github.com/blackwhitehere/acme-data-dash/internal/config"
)

// Opener abstracts sql.Open for testability.
type Opener func(driverName, dsn string) (*sql.DB, error)

// driverNames maps profile drivers to registered database/sql drivers.
var driverNames = map[string]string{
	"sqlite":     "sqlite",
	"sqlite3":    "sqlite",
	"postgres":   "pgx",
	"postgresql": "pgx",
	"pgx":        "pgx",
}

// sqlDriver picks the database/sql driver for a connection. The profile's
// driver wins when the context exposes it; otherwise the connection string
// scheme decides.
func sqlDriver(ctx context.Context, cc check.Context, name, dsn string) (string, error) {
	profileDriver := ""
	if pc, ok := cc.(check.ProfileContext); ok {
		p, err := pc.Profile(ctx, name)
		if err != nil {
			return "", check.ExecutionError("loading profile "+name, err)
		}
		profileDriver = p.Driver
	} else if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		profileDriver = "postgres"
	} else {
		profileDriver = "sqlite"
	}

	d, ok := driverNames[strings.ToLower(profileDriver)]
	if !ok {
		return "", check.ConfigErrorf("connection %s: unsupported driver %q", name, profileDriver)
	}
	return d, nil
}

// sqlCheck is shared by the SQL-backed kinds.
type sqlCheck struct {
	base
	open Opener
}

// queryScalar resolves the connection, runs query and scans its single value.
func (s *sqlCheck) queryScalar(ctx context.Context, cc check.Context, p check.Params, dest any) error {
	name, err := p.String("connection")
	if err != nil {
		return err
	}
	query, err := p.String("query")
	if err != nil {
		return err
	}

	dsn, err := cc.ConnectionString(ctx, name)
	if err != nil {
		return check.ExecutionError("resolving connection "+name, err)
	}
	driver, err := sqlDriver(ctx, cc, name, dsn)
	if err != nil {
		return err
	}

	db, err := s.open(driver, dsn)
	if err != nil {
		return check.ExecutionError("opening "+name, err)
	}
	defer db.Close()

	if err := db.QueryRowContext(ctx, query).Scan(dest); err != nil {
		return check.ExecutionError("querying "+name, err)
	}
	return nil
}

type sqlRowCount struct {
	sqlCheck
}

// NewSQLRowCount checks that a COUNT-style query lands within bounds.
func NewSQLRowCount(c config.Check) check.Check {
	return NewSQLRowCountWithOpener(c, sql.Open)
}

// NewSQLRowCountWithOpener creates the check with a custom opener (for testing).
func NewSQLRowCountWithOpener(c config.Check, open Opener) check.Check {
	return &sqlRowCount{sqlCheck{
		base: newBase(c,
			"Runs a scalar count query and compares it with expected bounds",
			[]check.ParameterDefinition{
				param("connection", "Connection profile to query"),
				param("query", "SQL returning a single integer"),
				paramDefault("min_rows", "Fail when the count is below this", "1"),
				param("max_rows", "Warn when the count is above this"),
			},
		),
		open: open,
	}}
}

func (s *sqlRowCount) Execute(ctx context.Context, cc check.Context, params check.Params) (check.Result, error) {
	p, err := s.resolve(params)
	if err != nil {
		return check.Result{}, err
	}

	minRows, err := p.IntOr("min_rows", 1)
	if err != nil {
		return check.Result{}, err
	}
	var maxRows *int64
	if p.Has("max_rows") {
		n, err := p.Int("max_rows")
		if err != nil {
			return check.Result{}, err
		}
		maxRows = &n
	}

	var count int64
	if err := s.queryScalar(ctx, cc, p, &count); err != nil {
		return check.Result{}, err
	}

	details := map[string]any{"rows": count, "min_rows": minRows}
	if maxRows != nil {
		details["max_rows"] = *maxRows
	}

	switch {
	case count < minRows:
		return check.Failed(fmt.Sprintf("found %d rows, expected at least %d", count, minRows)).WithDetails(details), nil
	case maxRows != nil && count > *maxRows:
		return check.Warned(fmt.Sprintf("found %d rows, expected at most %d", count, *maxRows)).WithDetails(details), nil
	}
	return check.Succeeded(fmt.Sprintf("found %d rows", count)).WithDetails(details), nil
}

type sqlFreshness struct {
	sqlCheck
	now func() time.Time
}

// NewSQLFreshness checks that the newest timestamp a query returns is recent.
func NewSQLFreshness(c config.Check) check.Check {
	return NewSQLFreshnessWithClock(c, sql.Open, time.Now)
}

// NewSQLFreshnessWithClock creates the check with a custom opener and clock (for testing).
func NewSQLFreshnessWithClock(c config.Check, open Opener, now func() time.Time) check.Check {
	return &sqlFreshness{
		sqlCheck: sqlCheck{
			base: newBase(c,
				"Checks that the latest timestamp returned by a query is recent enough",
				[]check.ParameterDefinition{
					param("connection", "Connection profile to query"),
					param("query", "SQL returning a single timestamp, e.g. SELECT MAX(loaded_at) FROM t"),
					paramDefault("max_age", "Fail when the data is older than this; warn past half of it", "24h"),
					param("target_date", "Date the run is for, recorded in the details"),
				},
			),
			open: open,
		},
		now: now,
	}
}

func (s *sqlFreshness) Execute(ctx context.Context, cc check.Context, params check.Params) (check.Result, error) {
	p, err := s.resolve(params)
	if err != nil {
		return check.Result{}, err
	}

	maxAge, err := p.DurationOr("max_age", 24*time.Hour)
	if err != nil {
		return check.Result{}, err
	}
	if maxAge <= 0 {
		return check.Result{}, check.ConfigErrorf("parameter max_age: must be positive, got %s", maxAge)
	}

	var raw any
	if err := s.queryScalar(ctx, cc, p, &raw); err != nil {
		return check.Result{}, err
	}
	if raw == nil {
		return check.Failed("query returned no timestamp"), nil
	}
	latest, err := toTime(raw)
	if err != nil {
		return check.Result{}, check.ExecutionError("reading timestamp", err)
	}

	age := s.now().Sub(latest)
	details := map[string]any{
		"latest":  latest.UTC().Format(time.RFC3339),
		"age":     age.Round(time.Second).String(),
		"max_age": maxAge.String(),
	}
	if p.Has("target_date") {
		if d, err := p.String("target_date"); err == nil {
			details["target_date"] = d
		}
	}
	switch {
	case age > maxAge:
		return check.Failed(fmt.Sprintf("data is %s old, limit %s", age.Round(time.Second), maxAge)).WithDetails(details), nil
	case age > maxAge/2:
		return check.Warned(fmt.Sprintf("data is %s old, over half of %s", age.Round(time.Second), maxAge)).WithDetails(details), nil
	}
	return check.Succeeded(fmt.Sprintf("data is %s old", age.Round(time.Second))).WithDetails(details), nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// toTime converts a scanned driver value into a time. Integers are Unix seconds.
func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case int64:
		return time.Unix(t, 0), nil
	case []byte:
		return parseTimestamp(string(t))
	case string:
		return parseTimestamp(t)
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
