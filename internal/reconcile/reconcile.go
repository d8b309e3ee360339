// Package reconcile compares a completed job's recorded time and cost with
// its locked estimate and produces an immutable PerformanceRecord.
package reconcile

import (
	"time"

	"github.com/google/uuid"

	"github.com/Simplici0/fieldquote/internal/apperr"
	"github.com/Simplici0/fieldquote/internal/pricing"
	"github.com/Simplici0/fieldquote/internal/timetrack"
	"github.com/Simplici0/fieldquote/internal/workvolume"
)

// Variance is actual minus estimated, with the delta as a fraction of the
// estimate. Any field is nil when it cannot be computed.
type Variance struct {
	Estimated *float64 `json:"estimated"`
	Actual    *float64 `json:"actual"`
	Delta     *float64 `json:"delta"`
	Percent   *float64 `json:"percent"`
}

func newVariance(estimated, actual *float64) Variance {
	v := Variance{Estimated: clone(estimated), Actual: clone(actual)}
	if estimated == nil || actual == nil {
		return v
	}
	d := *actual - *estimated
	v.Delta = &d
	v.Percent = pricing.Ratio(d, *estimated)
	return v
}

func clone(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Variances groups the compared quantities.
type Variances struct {
	ProductionHours Variance `json:"production_hours"`
	TotalHours      Variance `json:"total_hours"`
	PPH             Variance `json:"pph"`
	Cost            Variance `json:"cost"`
	Profit          Variance `json:"profit"`
	Margin          Variance `json:"margin"`
}

// Actuals are the measured job figures. Cost understates equipment when
// MissingEquipmentRecords is non-zero.
type Actuals struct {
	Hours                   timetrack.Hours `json:"hours"`
	PPH                     *float64        `json:"pph"`
	Cost                    float64         `json:"cost"`
	Profit                  float64         `json:"profit"`
	Margin                  *float64        `json:"margin"`
	MissingEquipmentRecords int             `json:"missing_equipment_records,omitempty"`
}

// Estimates are the locked figures copied from the accepted quote.
type Estimates struct {
	AdjustedScore   float64  `json:"adjusted_score"`
	ProductionHours float64  `json:"production_hours"`
	TotalHours      float64  `json:"total_hours"`
	PPH             *float64 `json:"pph"`
	Price           float64  `json:"price"`
	Cost            float64  `json:"cost"`
	Profit          float64  `json:"profit"`
	Margin          *float64 `json:"margin"`
}

// PerformanceRecord is written once per completed job. Only Outlier and
// IncludeInTemplateRecalc may change afterwards, through review.
type PerformanceRecord struct {
	ID                      string                 `json:"id"`
	JobID                   string                 `json:"job_id"`
	ServiceType             workvolume.ServiceType `json:"service_type"`
	LoadoutID               string                 `json:"loadout_id,omitempty"`
	Estimate                Estimates              `json:"estimate"`
	Actual                  Actuals                `json:"actual"`
	Variance                Variances              `json:"variance"`
	Outlier                 bool                   `json:"outlier"`
	IncludeInTemplateRecalc bool                   `json:"include_in_template_recalc"`
	CreatedAt               time.Time              `json:"created_at"`
	ExportedAt              *time.Time             `json:"exported_at,omitempty"`
}

// EligibleForRecalc reports whether the record may feed template averages.
func (p PerformanceRecord) EligibleForRecalc() bool {
	return p.IncludeInTemplateRecalc && !p.Outlier
}

// Reconcile builds the performance record for a completed job.
//
// All records must be closed. Only production time counting toward PPH feeds
// the actual PPH; cost includes every category. Records opened without an
// equipment rate are counted, and their job is kept out of template
// recalculation since its cost variance is biased low.
func Reconcile(jobID string, records []timetrack.Record, locked pricing.LockedEstimate, at time.Time) (PerformanceRecord, error) {
	if jobID == "" {
		return PerformanceRecord{}, apperr.Validation("job_id", "is required")
	}
	if locked.JobID() != jobID {
		return PerformanceRecord{}, apperr.Validation("locked_estimate", "belongs to job %q, not %q", locked.JobID(), jobID)
	}
	for _, r := range records {
		if r.JobID != jobID {
			return PerformanceRecord{}, apperr.Validation("time_records", "record %s belongs to job %q", r.ID, r.JobID)
		}
		if r.Open() {
			return PerformanceRecord{}, apperr.Validation("time_records", "record %s is still open", r.ID)
		}
	}

	est := Estimates{
		AdjustedScore:   locked.AdjustedScore(),
		ProductionHours: locked.ProductionHours(),
		TotalHours:      locked.TotalHours(),
		Price:           locked.Price(),
		Cost:            locked.Cost(),
		Profit:          locked.Totals().Profit,
		Margin:          locked.Totals().Margin,
	}
	est.PPH = pricing.Ratio(est.AdjustedScore, est.ProductionHours)

	hours := timetrack.SumHours(records)
	act := Actuals{Hours: hours}
	act.PPH = pricing.Ratio(est.AdjustedScore, hours.PPH)
	for _, r := range records {
		act.Cost += r.LaborCost + r.EquipmentCost
		if r.EquipmentRateMissing {
			act.MissingEquipmentRecords++
		}
	}
	act.Profit = est.Price - act.Cost
	act.Margin = pricing.Margin(est.Price, act.Cost)

	totalHours := hours.Total()
	return PerformanceRecord{
		ID:          uuid.NewString(),
		JobID:       jobID,
		ServiceType: locked.ServiceType(),
		LoadoutID:   locked.LoadoutID(),
		Estimate:    est,
		Actual:      act,
		Variance: Variances{
			ProductionHours: newVariance(&est.ProductionHours, &hours.Production),
			TotalHours:      newVariance(&est.TotalHours, &totalHours),
			PPH:             newVariance(est.PPH, act.PPH),
			Cost:            newVariance(&est.Cost, &act.Cost),
			Profit:          newVariance(&est.Profit, &act.Profit),
			Margin:          newVariance(est.Margin, act.Margin),
		},
		IncludeInTemplateRecalc: act.MissingEquipmentRecords == 0,
		CreatedAt:               at.UTC(),
	}, nil
}
