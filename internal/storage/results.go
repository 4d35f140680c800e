package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Record is one persisted check execution. Records are append-only.
type Record struct {
	ID         int64           `json:"id"`
	CheckID    string          `json:"check_id"`
	RunID      string          `json:"run_id"`
	Status     string          `json:"status"`
	Message    string          `json:"message"`
	Details    json.RawMessage `json:"details,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// LatestStatus is the newest record's status for one check.
type LatestStatus struct {
	ID         int64     `json:"id"`
	CheckID    string    `json:"check_id"`
	Status     string    `json:"status"`
	ExecutedAt time.Time `json:"executed_at"`
}

// AppendResult inserts r and returns its sequence id. r.ID is ignored.
func (d *DB) AppendResult(ctx context.Context, r Record) (int64, error) {
	var details sql.NullString
	if len(r.Details) > 0 && string(r.Details) != "null" {
		details = sql.NullString{String: string(r.Details), Valid: true}
	}
	if r.ExecutedAt.IsZero() {
		r.ExecutedAt = time.Now()
	}

	res, err := d.db.ExecContext(ctx,
		`INSERT INTO check_results (check_id, run_id, status, message, details, executed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.CheckID,
		r.RunID,
		r.Status,
		r.Message,
		details,
		formatTime(r.ExecutedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting result for %q: %w", r.CheckID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading result id for %q: %w", r.CheckID, err)
	}
	return id, nil
}

// LatestStatuses returns, for every check with at least one record, the
// record with the greatest executed_at. Equal timestamps are broken by the
// higher id, so the later insert wins.
func (d *DB) LatestStatuses(ctx context.Context) (map[string]LatestStatus, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, check_id, status, executed_at
		FROM (
			SELECT id, check_id, status, executed_at,
			       ROW_NUMBER() OVER (PARTITION BY check_id ORDER BY executed_at DESC, id DESC) AS rn
			FROM check_results
		)
		WHERE rn = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("querying latest statuses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]LatestStatus)
	for rows.Next() {
		var ls LatestStatus
		var executedAt string
		if err := rows.Scan(&ls.ID, &ls.CheckID, &ls.Status, &executedAt); err != nil {
			return nil, fmt.Errorf("scanning latest status row: %w", err)
		}
		if ls.ExecutedAt, err = parseTime(executedAt); err != nil {
			return nil, err
		}
		out[ls.CheckID] = ls
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating latest status rows: %w", err)
	}
	return out, nil
}

// LatestResult returns the newest record for checkID, or nil if none.
func (d *DB) LatestResult(ctx context.Context, checkID string) (*Record, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, check_id, run_id, status, message, details, executed_at FROM check_results WHERE check_id = ? ORDER BY executed_at DESC, id DESC LIMIT 1`,
		checkID,
	)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest result for %q: %w", checkID, err)
	}
	return r, nil
}

// Recent returns at most limit records, newest first. Equal timestamps are
// ordered by descending id.
func (d *DB) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, check_id, run_id, status, message, details, executed_at FROM check_results ORDER BY executed_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recent results: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// CheckHistory returns paginated records for one check plus the total count.
func (d *DB) CheckHistory(ctx context.Context, checkID string, limit, offset int) ([]Record, int, error) {
	var total int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM check_results WHERE check_id = ?`, checkID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting results for %q: %w", checkID, err)
	}
	if limit <= 0 {
		return []Record{}, total, nil
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, check_id, run_id, status, message, details, executed_at FROM check_results WHERE check_id = ? ORDER BY executed_at DESC, id DESC LIMIT ? OFFSET ?`,
		checkID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying history for %q: %w", checkID, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// SuccessRate returns the percentage of "success" records among the last n
// records for checkID.
func (d *DB) SuccessRate(ctx context.Context, checkID string, last int) (float64, error) {
	var total int
	var okCount sql.NullInt64
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END)
		FROM (
			SELECT status FROM check_results WHERE check_id = ? ORDER BY executed_at DESC, id DESC LIMIT ?
		)
	`, checkID, last).Scan(&total, &okCount)
	if err != nil {
		return 0, fmt.Errorf("calculating success rate for %q: %w", checkID, err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(okCount.Int64) / float64(total) * 100, nil
}

func scanRecord(row scanner) (*Record, error) {
	var r Record
	var details sql.NullString
	var executedAt string
	if err := row.Scan(&r.ID, &r.CheckID, &r.RunID, &r.Status, &r.Message, &details, &executedAt); err != nil {
		return nil, err
	}
	if details.Valid {
		r.Details = json.RawMessage(details.String)
	}
	t, err := parseTime(executedAt)
	if err != nil {
		return nil, err
	}
	r.ExecutedAt = t
	return &r, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	records := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating result rows: %w", err)
	}
	return records, nil
}
