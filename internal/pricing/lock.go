package pricing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Simplici0/fieldquote/internal/workvolume"
)

// LockedEstimate is the price snapshot written when a quote is accepted.
// Its fields are unexported; later template or loadout changes cannot reach it.
type LockedEstimate struct {
	s lockedSnapshot
}

type lockedSnapshot struct {
	JobID     string      `json:"job_id"`
	LockedAt  time.Time   `json:"locked_at"`
	Estimate  JobEstimate `json:"estimate"`
	LoadoutID string      `json:"loadout_id,omitempty"`
}

// Lock copies every numeric field of est into a new snapshot.
func Lock(jobID, loadoutID string, est JobEstimate, at time.Time) LockedEstimate {
	est.Lines = copyLines(est.Lines)
	est.Totals.Margin = copyFloat(est.Totals.Margin)
	return LockedEstimate{s: lockedSnapshot{
		JobID:     jobID,
		LockedAt:  at.UTC(),
		Estimate:  est,
		LoadoutID: loadoutID,
	}}
}

// Restore decodes a snapshot produced by MarshalJSON.
func Restore(data []byte) (LockedEstimate, error) {
	var s lockedSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return LockedEstimate{}, fmt.Errorf("decode locked estimate: %w", err)
	}
	if s.JobID == "" {
		return LockedEstimate{}, fmt.Errorf("decode locked estimate: missing job_id")
	}
	return LockedEstimate{s: s}, nil
}

// MarshalJSON encodes the snapshot for storage.
func (l LockedEstimate) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.s)
}

func (l LockedEstimate) JobID() string { return l.s.JobID }
func (l LockedEstimate) LoadoutID() string { return l.s.LoadoutID }
func (l LockedEstimate) LockedAt() time.Time { return l.s.LockedAt }
func (l LockedEstimate) Params() JobParams { return l.s.Estimate.Params }
func (l LockedEstimate) Breakdown() Breakdown { return l.s.Estimate.Breakdown }

// Totals returns the locked job totals.
func (l LockedEstimate) Totals() Totals {
	t := l.s.Estimate.Totals
	t.Margin = copyFloat(t.Margin)
	return t
}

// Lines returns a copy of the locked lines.
func (l LockedEstimate) Lines() []Line { return copyLines(l.s.Estimate.Lines) }

// Price is the locked customer price.
func (l LockedEstimate) Price() float64 { return l.s.Estimate.Totals.Price }

// Cost is the estimated total cost.
func (l LockedEstimate) Cost() float64 { return l.s.Estimate.Totals.Cost }

// ProductionHours is the sum of line hours, excluding transport and buffer.
func (l LockedEstimate) ProductionHours() float64 { return l.s.Estimate.Breakdown.WorkHours }

// TotalHours includes transport and buffer.
func (l LockedEstimate) TotalHours() float64 { return l.s.Estimate.Breakdown.TotalHours }

// AdjustedScore is the sum of line adjusted scores.
func (l LockedEstimate) AdjustedScore() float64 {
	total := 0.0
	for _, line := range l.s.Estimate.Lines {
		total += line.AdjustedScore
	}
	return total
}

// ServiceType returns the service shared by every line, or "" for mixed jobs.
func (l LockedEstimate) ServiceType() workvolume.ServiceType {
	var st workvolume.ServiceType
	for i, line := range l.s.Estimate.Lines {
		if i == 0 {
			st = line.ServiceType
			continue
		}
		if line.ServiceType != st {
			return ""
		}
	}
	return st
}

// Estimate returns a copy of the full locked estimate.
func (l LockedEstimate) Estimate() JobEstimate {
	est := l.s.Estimate
	est.Lines = copyLines(est.Lines)
	est.Totals.Margin = copyFloat(est.Totals.Margin)
	return est
}
