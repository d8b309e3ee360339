// Package pricing assembles estimates: hours, cost, price, profit and margin
// for each work item, plus the job-level transport and buffer hours.
package pricing

import (
	"github.com/Simplici0/fieldquote/internal/apperr"
	"github.com/Simplici0/fieldquote/internal/workvolume"
)

// Default job parameters.
const (
	DefaultHoursPerDay         = 8.0
	DefaultBufferFraction      = 0.10
	DefaultTransportRateFactor = 1.0
)

// SourceKind says where a line's rates came from.
type SourceKind string

const (
	// SourceTemplate is the company-standard (Tier 1) price.
	SourceTemplate SourceKind = "template"
	// SourceLoadout is the assigned crew's cost profile (Tier 2).
	SourceLoadout SourceKind = "loadout"
)

// Rates are the throughput and money rates used to price a line.
type Rates struct {
	Source      SourceKind `json:"source"`
	SourceID    string     `json:"source_id"`
	PPH         float64    `json:"pph"`
	CostPerHour float64    `json:"cost_per_hour"`
	BillingRate float64    `json:"billing_rate"`
}

func (r Rates) validate(dayBased bool) error {
	if !dayBased && r.PPH <= 0 {
		return apperr.Configuration("pph", "no throughput rate configured for %s %q", r.Source, r.SourceID)
	}
	if r.CostPerHour < 0 {
		return apperr.Configuration("cost_per_hour", "must be greater than or equal to 0, got %v", r.CostPerHour)
	}
	if r.BillingRate < 0 {
		return apperr.Configuration("billing_rate", "must be greater than or equal to 0, got %v", r.BillingRate)
	}
	return nil
}

// LineInput is one scored work item ready to be priced.
type LineInput struct {
	ID          string                 `json:"id"`
	ServiceType workvolume.ServiceType `json:"service_type"`
	BaseScore   float64                `json:"base_score"`
	Multiplier  float64                `json:"complexity_multiplier"`
}

// Line is a priced work item.
type Line struct {
	ID                   string                 `json:"id"`
	ServiceType          workvolume.ServiceType `json:"service_type"`
	BaseScore            float64                `json:"base_score"`
	ComplexityMultiplier float64                `json:"complexity_multiplier"`
	AdjustedScore        float64                `json:"adjusted_score"`
	Rates                Rates                  `json:"rates"`
	EstimatedHours       float64                `json:"estimated_hours"`
	EstimatedCost        float64                `json:"estimated_cost"`
	EstimatedPrice       float64                `json:"estimated_price"`
	EstimatedProfit      float64                `json:"estimated_profit"`
	EstimatedMargin      *float64               `json:"estimated_margin"`
}

// Options tune line assembly.
type Options struct {
	// HoursPerDay converts crew-days to hours for day-based services.
	HoursPerDay float64
}

// AssembleLine prices one work item from rates.
//
// Score-based services take hours = adjustedScore / PPH. Day-based services
// treat the adjusted score as crew-days, so complexity extends the day count.
func AssembleLine(in LineInput, rates Rates, opts Options) (Line, error) {
	if err := apperr.Positive("base_score", in.BaseScore); err != nil {
		return Line{}, err
	}
	if err := apperr.Positive("complexity_multiplier", in.Multiplier); err != nil {
		return Line{}, err
	}
	dayBased := in.ServiceType.DayBased()
	if err := rates.validate(dayBased); err != nil {
		return Line{}, err
	}

	adjusted := in.BaseScore * in.Multiplier

	var hours float64
	if dayBased {
		hoursPerDay := opts.HoursPerDay
		if hoursPerDay == 0 {
			hoursPerDay = DefaultHoursPerDay
		}
		if hoursPerDay < 0 {
			return Line{}, apperr.Configuration("hours_per_day", "must be greater than 0, got %v", hoursPerDay)
		}
		hours = adjusted * hoursPerDay
	} else {
		hours = adjusted / rates.PPH
	}

	cost := hours * rates.CostPerHour
	price := hours * rates.BillingRate

	return Line{
		ID:                   in.ID,
		ServiceType:          in.ServiceType,
		BaseScore:            in.BaseScore,
		ComplexityMultiplier: in.Multiplier,
		AdjustedScore:        adjusted,
		Rates:                rates,
		EstimatedHours:       hours,
		EstimatedCost:        cost,
		EstimatedPrice:       price,
		EstimatedProfit:      price - cost,
		EstimatedMargin:      Margin(price, cost),
	}, nil
}

// TwoTier prices a line at the company standard and costs it with the
// assigned crew, for internal margin tracking.
type TwoTier struct {
	Standard   Line     `json:"standard"`
	Crew       Rates    `json:"crew"`
	CrewCost   float64  `json:"crew_cost"`
	CrewProfit float64  `json:"crew_profit"`
	CrewMargin *float64 `json:"crew_margin"`
}

// AssembleTwoTier takes hours and price from standard and cost from crew.
func AssembleTwoTier(in LineInput, standard, crew Rates, opts Options) (TwoTier, error) {
	line, err := AssembleLine(in, standard, opts)
	if err != nil {
		return TwoTier{}, err
	}
	if crew.CostPerHour < 0 {
		return TwoTier{}, apperr.Configuration("cost_per_hour", "crew cost must be greater than or equal to 0, got %v", crew.CostPerHour)
	}
	crewCost := line.EstimatedHours * crew.CostPerHour
	return TwoTier{
		Standard:   line,
		Crew:       crew,
		CrewCost:   crewCost,
		CrewProfit: line.EstimatedPrice - crewCost,
		CrewMargin: Margin(line.EstimatedPrice, crewCost),
	}, nil
}

// Margin is (price - cost) / price, or nil when price <= 0.
func Margin(price, cost float64) *float64 {
	if price <= 0 {
		return nil
	}
	m := (price - cost) / price
	return &m
}

// Ratio is num / den, or nil when den == 0.
func Ratio(num, den float64) *float64 {
	if den == 0 {
		return nil
	}
	r := num / den
	return &r
}
