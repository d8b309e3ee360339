package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Simplici0/fieldquote/internal/apperr"
	"github.com/Simplici0/fieldquote/internal/timetrack"
)

const timeRecordColumns = `id, job_id, employee_id, task_category, billable, counts_for_pph,
	start_time, end_time, duration_hours, labor_rate_per_hour, equipment_rate_per_hour,
	labor_cost, equipment_cost, equipment_rate_missing`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTimeRecord(row rowScanner) (timetrack.Record, error) {
	var (
		r        timetrack.Record
		category string
		end      sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.JobID, &r.EmployeeID, &category, &r.Billable, &r.CountsForPPH,
		&r.StartTime, &end, &r.DurationHours, &r.LaborRatePerHour, &r.EquipmentRatePerHour,
		&r.LaborCost, &r.EquipmentCost, &r.EquipmentRateMissing); err != nil {
		return timetrack.Record{}, err
	}
	r.Category = timetrack.Category(category)
	r.StartTime = r.StartTime.In(time.UTC)
	if end.Valid {
		t := end.Time.In(time.UTC)
		r.EndTime = &t
	}
	return r, nil
}

// OpenRecord returns the employee's open record on the job, or nil.
func (s *Store) OpenRecord(ctx context.Context, jobID, employeeID string) (*timetrack.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+timeRecordColumns+`
		FROM time_records
		WHERE job_id = ? AND employee_id = ? AND end_time IS NULL
	`, jobID, employeeID)
	r, err := scanTimeRecord(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open time record: %w", err)
	}
	return &r, nil
}

// SwapOpen closes prev and inserts next in one transaction. The close is
// conditioned on prev still being open; when prev is nil the employee must
// have no open record. Either condition failing, or the write lock staying
// busy past the timeout, is an apperr.ErrConflict.
func (s *Store) SwapOpen(ctx context.Context, prev, closed, next *timetrack.Record) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		switch {
		case prev != nil:
			if closed == nil || closed.EndTime == nil {
				return apperr.Validation("closed", "closing record for %s is required", prev.ID)
			}
			res, err := tx.ExecContext(ctx, `
				UPDATE time_records
				SET end_time = ?, duration_hours = ?, labor_cost = ?, equipment_cost = ?
				WHERE id = ? AND end_time IS NULL
			`, closed.EndTime.UTC(), closed.DurationHours, closed.LaborCost, closed.EquipmentCost, prev.ID)
			if err != nil {
				return fmt.Errorf("close time record %s: %w", prev.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("close time record %s: %w", prev.ID, err)
			}
			if n != 1 {
				return apperr.Conflict("time record %s is no longer open", prev.ID)
			}
		case next != nil:
			var open int
			if err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM time_records
				WHERE job_id = ? AND employee_id = ? AND end_time IS NULL
			`, next.JobID, next.EmployeeID).Scan(&open); err != nil {
				return fmt.Errorf("count open time records: %w", err)
			}
			if open != 0 {
				return apperr.Conflict("employee %s already has an open record on job %s", next.EmployeeID, next.JobID)
			}
		}

		if next == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO time_records (
				id, job_id, employee_id, task_category, billable, counts_for_pph,
				start_time, duration_hours, labor_rate_per_hour, equipment_rate_per_hour, equipment_rate_missing
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		`, next.ID, next.JobID, next.EmployeeID, string(next.Category), next.Billable, next.CountsForPPH,
			next.StartTime.UTC(), next.LaborRatePerHour, next.EquipmentRatePerHour, next.EquipmentRateMissing); err != nil {
			if isUniqueViolation(err) {
				return apperr.Conflict("employee %s already has an open record on job %s", next.EmployeeID, next.JobID)
			}
			return fmt.Errorf("open time record: %w", err)
		}
		return nil
	})
	if isBusy(err) {
		return apperr.Conflict("time records are locked by another writer: %v", err)
	}
	return err
}

// ListRecords returns every record of a job ordered by start time.
func (s *Store) ListRecords(ctx context.Context, jobID string) ([]timetrack.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+timeRecordColumns+`
		FROM time_records
		WHERE job_id = ?
		ORDER BY start_time, id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query time records: %w", err)
	}
	defer rows.Close()

	var out []timetrack.Record
	for rows.Next() {
		r, err := scanTimeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan time record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate time records: %w", err)
	}
	return out, nil
}
