package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Simplici0/fieldquote/internal/apperr"
	"github.com/Simplici0/fieldquote/internal/pricing"
	"github.com/Simplici0/fieldquote/internal/quote"
	"github.com/Simplici0/fieldquote/internal/workvolume"
)

// CreateJob inserts a draft job.
func (s *Store) CreateJob(ctx context.Context, j quote.Job) error {
	if err := j.Validate(); err != nil {
		return err
	}
	var loadoutID sql.NullString
	if j.LoadoutID != "" {
		loadoutID = sql.NullString{String: j.LoadoutID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, org_id, name, drive_time_minutes, loadout_id, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, j.ID, j.OrgID, j.Name, j.DriveTimeMinutes, loadoutID, string(quote.StatusDraft))
	if isUniqueViolation(err) {
		return apperr.Conflict("job %s already exists", j.ID)
	}
	if err != nil {
		return fmt.Errorf("insert job %s: %w", j.ID, err)
	}
	return nil
}

// GetJob returns a job or an apperr.ErrNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (quote.Job, error) {
	return s.getJob(ctx, s.db, id)
}

func (s *Store) getJob(ctx context.Context, exec DBTransaction, id string) (quote.Job, error) {
	var (
		j         quote.Job
		loadoutID sql.NullString
		status    string
	)
	err := exec.QueryRowContext(ctx, `
		SELECT id, org_id, name, drive_time_minutes, loadout_id, status
		FROM jobs
		WHERE id = ?
	`, id).Scan(&j.ID, &j.OrgID, &j.Name, &j.DriveTimeMinutes, &loadoutID, &status)
	if isNoRows(err) {
		return quote.Job{}, apperr.NotFound("job", id)
	}
	if err != nil {
		return quote.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	j.LoadoutID = loadoutID.String
	j.Status = quote.Status(status)
	return j, nil
}

// AssignLoadout sets the crew for a draft job.
func (s *Store) AssignLoadout(ctx context.Context, jobID, loadoutID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET loadout_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, loadoutID, jobID, string(quote.StatusDraft))
	if err != nil {
		return fmt.Errorf("assign loadout to job %s: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetJob(ctx, jobID); err != nil {
			return err
		}
		return apperr.Conflict("job %s is no longer a draft", jobID)
	}
	return nil
}

// AddWorkItem appends a line to a draft job.
func (s *Store) AddWorkItem(ctx context.Context, w quote.WorkItem) error {
	if err := w.Validate(); err != nil {
		return err
	}
	inputs, err := encodeJSON(w.Inputs)
	if err != nil {
		return fmt.Errorf("encode work item inputs: %w", err)
	}
	factors, err := encodeJSON(nonNil(w.FactorIDs))
	if err != nil {
		return fmt.Errorf("encode factor ids: %w", err)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		job, err := s.getJob(ctx, tx, w.JobID)
		if err != nil {
			return err
		}
		if job.Status != quote.StatusDraft {
			return apperr.Conflict("job %s is %s, work items are locked", job.ID, job.Status)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO work_items (id, job_id, position, service_type, inputs_json, factor_ids, source)
			VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM work_items WHERE job_id = ?), ?, ?, ?, ?)
		`, w.ID, w.JobID, w.JobID, string(w.ServiceType), inputs, factors, string(w.PricingSource())); err != nil {
			if isUniqueViolation(err) {
				return apperr.Conflict("work item %s already exists", w.ID)
			}
			return fmt.Errorf("insert work item %s: %w", w.ID, err)
		}
		return nil
	})
}

// ListWorkItems returns the job's items in entry order.
func (s *Store) ListWorkItems(ctx context.Context, jobID string) ([]quote.WorkItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, service_type, inputs_json, factor_ids, source
		FROM work_items
		WHERE job_id = ?
		ORDER BY position, id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query work items: %w", err)
	}
	defer rows.Close()

	var items []quote.WorkItem
	for rows.Next() {
		var (
			w                       quote.WorkItem
			st, inputs, factors, so string
		)
		if err := rows.Scan(&w.ID, &w.JobID, &st, &inputs, &factors, &so); err != nil {
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		w.ServiceType = workvolume.ServiceType(st)
		w.Source = pricing.SourceKind(so)
		if err := json.Unmarshal([]byte(inputs), &w.Inputs); err != nil {
			return nil, fmt.Errorf("decode work item inputs: %w", err)
		}
		if w.FactorIDs, err = decodeStrings(factors); err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate work items: %w", err)
	}
	return items, nil
}

// LockEstimate stores the snapshot and moves the job from draft to accepted
// in one transaction. If the job was already accepted the stored snapshot is
// returned unchanged and created is false.
func (s *Store) LockEstimate(ctx context.Context, locked pricing.LockedEstimate) (stored pricing.LockedEstimate, created bool, err error) {
	data, err := locked.MarshalJSON()
	if err != nil {
		return pricing.LockedEstimate{}, false, fmt.Errorf("encode locked estimate: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		existing, found, err := s.lockedEstimate(ctx, tx, locked.JobID())
		if err != nil {
			return err
		}
		if found {
			stored = existing
			return nil
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?
		`, string(quote.StatusAccepted), locked.JobID(), string(quote.StatusDraft))
		if err != nil {
			return fmt.Errorf("accept job %s: %w", locked.JobID(), err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			job, err := s.getJob(ctx, tx, locked.JobID())
			if err != nil {
				return err
			}
			return apperr.Conflict("job %s is %s without a locked estimate", job.ID, job.Status)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO locked_estimates (job_id, snapshot_json, total_price, locked_at)
			VALUES (?, ?, ?, ?)
		`, locked.JobID(), string(data), locked.Price(), locked.LockedAt()); err != nil {
			return fmt.Errorf("insert locked estimate %s: %w", locked.JobID(), err)
		}
		stored = locked
		created = true
		return nil
	})
	if err != nil {
		return pricing.LockedEstimate{}, false, err
	}
	return stored, created, nil
}

// GetLockedEstimate returns the job's snapshot or an apperr.ErrNotFound.
func (s *Store) GetLockedEstimate(ctx context.Context, jobID string) (pricing.LockedEstimate, error) {
	locked, found, err := s.lockedEstimate(ctx, s.db, jobID)
	if err != nil {
		return pricing.LockedEstimate{}, err
	}
	if !found {
		return pricing.LockedEstimate{}, apperr.NotFound("locked estimate", jobID)
	}
	return locked, nil
}

func (s *Store) lockedEstimate(ctx context.Context, exec DBTransaction, jobID string) (pricing.LockedEstimate, bool, error) {
	var data string
	err := exec.QueryRowContext(ctx, `SELECT snapshot_json FROM locked_estimates WHERE job_id = ?`, jobID).Scan(&data)
	if isNoRows(err) {
		return pricing.LockedEstimate{}, false, nil
	}
	if err != nil {
		return pricing.LockedEstimate{}, false, fmt.Errorf("get locked estimate %s: %w", jobID, err)
	}
	locked, err := pricing.Restore([]byte(data))
	if err != nil {
		return pricing.LockedEstimate{}, false, err
	}
	return locked, true, nil
}
