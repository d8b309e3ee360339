// Package timetrack records crew time against a job.
//
// An employee has at most one open record per job. Switching task closes the
// open record and opens the next one as a single compare-and-swap against
// storage; a lost race is retried a bounded number of times.
package timetrack

import (
	"time"

	"github.com/Simplici0/fieldquote/internal/apperr"
)

// Category classifies recorded time. Only production time counts toward PPH.
type Category string

const (
	Production     Category = "production"
	SiteSupport    Category = "site_support"
	GeneralSupport Category = "general_support"
)

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case Production, SiteSupport, GeneralSupport:
		return c, nil
	}
	return "", apperr.Validation("task_category", "unknown category %q", s)
}

// Record is one span of an employee's time on a job.
type Record struct {
	ID                   string     `json:"id"`
	JobID                string     `json:"job_id"`
	EmployeeID           string     `json:"employee_id"`
	Category             Category   `json:"task_category"`
	Billable             bool       `json:"billable"`
	CountsForPPH         bool       `json:"counts_for_pph"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              *time.Time `json:"end_time"`
	DurationHours        float64    `json:"duration_hours"`
	LaborRatePerHour     float64    `json:"labor_rate_per_hour"`
	EquipmentRatePerHour float64    `json:"equipment_rate_per_hour"`
	LaborCost            float64    `json:"labor_cost"`
	EquipmentCost        float64    `json:"equipment_cost"`
	// EquipmentRateMissing marks a record opened while the crew's equipment
	// cost could not be resolved; EquipmentRatePerHour is 0.
	EquipmentRateMissing bool `json:"equipment_rate_missing,omitempty"`
}

// Open reports whether the record has no end time.
func (r Record) Open() bool { return r.EndTime == nil }

// Closed returns a copy of r stamped with end time at, with duration and
// costs computed from the record's rates.
func (r Record) Closed(at time.Time) (Record, error) {
	if !r.Open() {
		return Record{}, apperr.Validation("end_time", "record %s is already closed", r.ID)
	}
	if at.Before(r.StartTime) {
		return Record{}, apperr.Validation("end_time", "%s is before start %s", at, r.StartTime)
	}
	end := at.UTC()
	r.EndTime = &end
	r.DurationHours = at.Sub(r.StartTime).Hours()
	r.LaborCost = r.DurationHours * r.LaborRatePerHour
	r.EquipmentCost = r.DurationHours * r.EquipmentRatePerHour
	return r, nil
}

// Hours totals recorded durations by category.
type Hours struct {
	Production     float64 `json:"production_hours"`
	SiteSupport    float64 `json:"site_support_hours"`
	GeneralSupport float64 `json:"general_support_hours"`
	// PPH is the production time flagged as counting toward PPH.
	PPH float64 `json:"pph_hours"`
}

// Total is the sum over all categories.
func (h Hours) Total() float64 { return h.Production + h.SiteSupport + h.GeneralSupport }

// SumHours groups durations by category.
func SumHours(records []Record) Hours {
	var h Hours
	for _, r := range records {
		switch r.Category {
		case Production:
			h.Production += r.DurationHours
			if r.CountsForPPH {
				h.PPH += r.DurationHours
			}
		case SiteSupport:
			h.SiteSupport += r.DurationHours
		case GeneralSupport:
			h.GeneralSupport += r.DurationHours
		}
	}
	return h
}
