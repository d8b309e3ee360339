package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Simplici0/fieldquote/internal/apperr"
	"github.com/Simplici0/fieldquote/internal/quote"
	"github.com/Simplici0/fieldquote/internal/reconcile"
)

// CompleteJob stores the job's performance record and moves it from accepted
// to completed. A job is reconciled at most once.
func (s *Store) CompleteJob(ctx context.Context, rec reconcile.PerformanceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode performance record: %w", err)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?
		`, string(quote.StatusCompleted), rec.JobID, string(quote.StatusAccepted))
		if err != nil {
			return fmt.Errorf("complete job %s: %w", rec.JobID, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			job, err := s.getJob(ctx, tx, rec.JobID)
			if err != nil {
				return err
			}
			return apperr.Conflict("job %s is %s, only accepted jobs can be reconciled", job.ID, job.Status)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO performance_records (
				id, job_id, service_type, loadout_id, record_json,
				outlier, include_in_template_recalc, created_at
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, rec.JobID, string(rec.ServiceType), rec.LoadoutID, string(data),
			rec.Outlier, rec.IncludeInTemplateRecalc, rec.CreatedAt.UTC()); err != nil {
			if isUniqueViolation(err) {
				return apperr.Conflict("job %s already has a performance record", rec.JobID)
			}
			return fmt.Errorf("insert performance record: %w", err)
		}
		return nil
	})
}

const performanceColumns = `record_json, outlier, include_in_template_recalc, exported_at`

func scanPerformance(row rowScanner) (reconcile.PerformanceRecord, error) {
	var (
		rec      reconcile.PerformanceRecord
		data     string
		outlier  bool
		include  bool
		exported sql.NullTime
	)
	if err := row.Scan(&data, &outlier, &include, &exported); err != nil {
		return reconcile.PerformanceRecord{}, err
	}
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return reconcile.PerformanceRecord{}, fmt.Errorf("decode performance record: %w", err)
	}
	// Review flags live in their own columns.
	rec.Outlier = outlier
	rec.IncludeInTemplateRecalc = include
	rec.ExportedAt = nil
	if exported.Valid {
		t := exported.Time.In(time.UTC)
		rec.ExportedAt = &t
	}
	return rec, nil
}

// GetPerformanceRecord returns the record for a job.
func (s *Store) GetPerformanceRecord(ctx context.Context, jobID string) (reconcile.PerformanceRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+performanceColumns+` FROM performance_records WHERE job_id = ?`, jobID)
	rec, err := scanPerformance(row)
	if isNoRows(err) {
		return reconcile.PerformanceRecord{}, apperr.NotFound("performance record", jobID)
	}
	if err != nil {
		return reconcile.PerformanceRecord{}, fmt.Errorf("get performance record %s: %w", jobID, err)
	}
	return rec, nil
}

// MarkOutlier sets the outlier flag from the review step.
func (s *Store) MarkOutlier(ctx context.Context, id string, outlier bool) error {
	return s.setFlag(ctx, id, "outlier", outlier)
}

// SetIncludeInRecalc sets whether the record may feed template averages.
func (s *Store) SetIncludeInRecalc(ctx context.Context, id string, include bool) error {
	return s.setFlag(ctx, id, "include_in_template_recalc", include)
}

func (s *Store) setFlag(ctx context.Context, id, column string, v bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE performance_records SET `+column+` = ? WHERE id = ?`, v, id)
	if err != nil {
		return fmt.Errorf("update performance record %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("performance record", id)
	}
	return nil
}

// ListExportable returns up to limit records that are eligible for template
// recalculation and not yet exported, oldest first.
func (s *Store) ListExportable(ctx context.Context, limit int) ([]reconcile.PerformanceRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+performanceColumns+`
		FROM performance_records
		WHERE exported_at IS NULL AND outlier = 0 AND include_in_template_recalc = 1
		ORDER BY created_at, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query exportable performance records: %w", err)
	}
	defer rows.Close()

	var out []reconcile.PerformanceRecord
	for rows.Next() {
		rec, err := scanPerformance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan performance record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate performance records: %w", err)
	}
	return out, nil
}

// MarkExported stamps exported_at on the given records.
func (s *Store) MarkExported(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := append([]any{at.UTC()}, stringArgs(ids)...)
	if _, err := s.db.ExecContext(ctx, `
		UPDATE performance_records SET exported_at = ?
		WHERE exported_at IS NULL AND id IN (`+placeholders(len(ids))+`)
	`, args...); err != nil {
		return fmt.Errorf("mark performance records exported: %w", err)
	}
	return nil
}
