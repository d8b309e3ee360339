// Package quote holds jobs and their work items before and after acceptance.
package quote

import (
	"slices"

	"github.com/Simplici0/fieldquote/internal/apperr"
	"github.com/Simplici0/fieldquote/internal/pricing"
	"github.com/Simplici0/fieldquote/internal/workvolume"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
)

// CanTransition reports whether from -> to is allowed. Jobs only move forward.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusAccepted
	case StatusAccepted:
		return to == StatusCompleted
	}
	return false
}

// Job is a customer job made of one or more work items.
type Job struct {
	ID               string  `json:"id"`
	OrgID            string  `json:"org_id"`
	Name             string  `json:"name"`
	DriveTimeMinutes float64 `json:"drive_time_minutes"`
	LoadoutID        string  `json:"loadout_id,omitempty"`
	Status           Status  `json:"status"`
}

// WorkItem is one quote line as entered: the service, its measurements and
// the selected complexity factors.
type WorkItem struct {
	ID          string                 `json:"id"`
	JobID       string                 `json:"job_id"`
	ServiceType workvolume.ServiceType `json:"service_type"`
	Inputs      workvolume.Inputs      `json:"inputs"`
	FactorIDs   []string               `json:"factor_ids"`
	Source      pricing.SourceKind     `json:"source"`
}

// Validate checks the item before it is scored.
func (w WorkItem) Validate() error {
	if _, err := workvolume.ParseServiceType(string(w.ServiceType)); err != nil {
		return err
	}
	switch w.Source {
	case "", pricing.SourceTemplate, pricing.SourceLoadout:
	default:
		return apperr.Validation("source", "unknown pricing source %q", w.Source)
	}
	return nil
}

// PricingSource returns the item's source, defaulting to the template.
func (w WorkItem) PricingSource() pricing.SourceKind {
	if w.Source == "" {
		return pricing.SourceTemplate
	}
	return w.Source
}

// Validate checks the job fields.
func (j Job) Validate() error {
	if j.ID == "" {
		return apperr.Validation("id", "is required")
	}
	if err := apperr.NonNegative("drive_time_minutes", j.DriveTimeMinutes); err != nil {
		return err
	}
	if j.Status != "" && !slices.Contains([]Status{StatusDraft, StatusAccepted, StatusCompleted}, j.Status) {
		return apperr.Validation("status", "unknown status %q", j.Status)
	}
	return nil
}
