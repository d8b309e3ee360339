// Package standards holds the company-wide standard pricing per service type.
//
// A Template is the Tier 1 number: quotes copy its values when they are
// accepted and never read it live afterwards. Templates are only rewritten
// by the external recalculation batch that consumes performance records.
package standards

import (
	"context"
	"math"
	"time"

	"github.com/Simplici0/fieldquote/internal/apperr"
	"github.com/Simplici0/fieldquote/internal/costrate"
)

// Template is the standard throughput, cost and billing rate for one service type.
type Template struct {
	ServiceType         string    `json:"service_type" yaml:"service_type"`
	StandardPPH         float64   `json:"standard_pph" yaml:"standard_pph"`
	StandardCostPerHour float64   `json:"standard_cost_per_hour" yaml:"standard_cost_per_hour"`
	StandardBillingRate float64   `json:"standard_billing_rate" yaml:"-"`
	TargetMargin        float64   `json:"target_margin" yaml:"target_margin"`
	ConfidenceScore     float64   `json:"confidence_score" yaml:"confidence_score"`
	TotalJobsInAverage  int       `json:"total_jobs_in_average" yaml:"total_jobs_in_average"`
	LastRecalculated    time.Time `json:"last_recalculated" yaml:"-"`
}

// New builds a template whose billing rate is derived from cost and margin.
func New(serviceType string, pph, costPerHour, targetMargin float64) (Template, error) {
	billing, err := costrate.BillingRate(costPerHour, targetMargin)
	if err != nil {
		return Template{}, err
	}
	t := Template{
		ServiceType:         serviceType,
		StandardPPH:         pph,
		StandardCostPerHour: costPerHour,
		StandardBillingRate: billing,
		TargetMargin:        targetMargin,
	}
	return t, t.Validate()
}

// Validate checks the setup data a quote needs from this template.
func (t Template) Validate() error {
	if t.ServiceType == "" {
		return apperr.Validation("service_type", "is required")
	}
	if t.StandardPPH <= 0 {
		return apperr.Configuration("standard_pph", "no throughput rate configured for %q", t.ServiceType)
	}
	want, err := costrate.BillingRate(t.StandardCostPerHour, t.TargetMargin)
	if err != nil {
		return err
	}
	if math.Abs(want-t.StandardBillingRate) > 1e-6*math.Max(1, want) {
		return apperr.Configuration("standard_billing_rate", "%v does not match cost %v at margin %v (want %v)",
			t.StandardBillingRate, t.StandardCostPerHour, t.TargetMargin, want)
	}
	if t.ConfidenceScore < 0 || t.ConfidenceScore > 1 {
		return apperr.Validation("confidence_score", "must be in [0, 1], got %v", t.ConfidenceScore)
	}
	return nil
}

// Store reads templates. A missing template is an apperr.ErrNotFound.
type Store interface {
	GetTemplate(ctx context.Context, serviceType string) (Template, error)
}
