package costing

import (
	"context"

	"go.uber.org/zap"

	"github.com/Simplici0/fieldquote/internal/apperr"
	"github.com/Simplici0/fieldquote/internal/quote"
	"github.com/Simplici0/fieldquote/internal/reconcile"
	"github.com/Simplici0/fieldquote/internal/timetrack"
)

// SwitchTask closes the employee's open record on the job and opens the
// requested one. Completed jobs take no more time.
func (s *Service) SwitchTask(ctx context.Context, req timetrack.SwitchRequest) (timetrack.SwitchResult, error) {
	if err := req.Validate(); err != nil {
		return timetrack.SwitchResult{}, err
	}
	job, err := s.repo.GetJob(ctx, req.JobID)
	if err != nil {
		return timetrack.SwitchResult{}, err
	}
	if job.Status == quote.StatusCompleted {
		return timetrack.SwitchResult{}, apperr.Conflict("job %s is completed", job.ID)
	}

	res, err := s.switcher.Switch(ctx, req)
	if err != nil {
		return res, err
	}
	s.metrics.TaskSwitched(ctx)
	return res, nil
}

// StopTask closes the employee's open record on the job.
func (s *Service) StopTask(ctx context.Context, jobID, employeeID string) (timetrack.SwitchResult, error) {
	return s.switcher.Stop(ctx, jobID, employeeID)
}

// TimeRecords lists the job's records in start order.
func (s *Service) TimeRecords(ctx context.Context, jobID string) ([]timetrack.Record, error) {
	return s.repo.ListRecords(ctx, jobID)
}

// ReconcileJob compares recorded time with the locked estimate, stores the
// performance record and completes the job.
func (s *Service) ReconcileJob(ctx context.Context, jobID string) (reconcile.PerformanceRecord, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return reconcile.PerformanceRecord{}, err
	}
	if job.Status != quote.StatusAccepted {
		return reconcile.PerformanceRecord{}, apperr.Conflict("job %s is %s, only accepted jobs can be reconciled", job.ID, job.Status)
	}

	locked, err := s.repo.GetLockedEstimate(ctx, jobID)
	if err != nil {
		return reconcile.PerformanceRecord{}, err
	}
	records, err := s.repo.ListRecords(ctx, jobID)
	if err != nil {
		return reconcile.PerformanceRecord{}, err
	}

	rec, err := reconcile.Reconcile(jobID, records, locked, s.now())
	if err != nil {
		return reconcile.PerformanceRecord{}, err
	}
	if err := s.repo.CompleteJob(ctx, rec); err != nil {
		return reconcile.PerformanceRecord{}, err
	}

	s.metrics.JobReconciled(ctx, string(rec.ServiceType))
	fields := []zap.Field{
		zap.String("job_id", jobID),
		zap.Float64("actual_cost", rec.Actual.Cost),
		zap.Float64("actual_profit", rec.Actual.Profit),
	}
	if rec.Actual.PPH != nil {
		fields = append(fields, zap.Float64("actual_pph", *rec.Actual.PPH))
	}
	if n := rec.Actual.MissingEquipmentRecords; n > 0 {
		s.logger.Warn("job reconciled without equipment cost on some records, excluded from template recalc",
			append(fields, zap.Int("missing_equipment_records", n))...)
		return rec, nil
	}
	s.logger.Info("job reconciled", fields...)
	return rec, nil
}
