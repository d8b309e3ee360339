package pricing

import (
	"slices"

	"github.com/Simplici0/fieldquote/internal/apperr"
)

// JobParams are the job-level inputs for transport and buffer time.
type JobParams struct {
	DriveTimeMinutes    float64 `json:"drive_time_minutes"`
	TransportRateFactor float64 `json:"transport_rate_factor"`
	BufferFraction      float64 `json:"buffer_fraction"`
}

// Validate rejects negative drive time or factors and a buffer outside [0, 1).
func (p JobParams) Validate() error {
	if err := apperr.NonNegative("drive_time_minutes", p.DriveTimeMinutes); err != nil {
		return err
	}
	if err := apperr.NonNegative("transport_rate_factor", p.TransportRateFactor); err != nil {
		return err
	}
	if p.BufferFraction < 0 || p.BufferFraction >= 1 {
		return apperr.Validation("buffer_fraction", "must be in [0, 1), got %v", p.BufferFraction)
	}
	return nil
}

// Breakdown contains the job-level intermediate values.
type Breakdown struct {
	WorkHours          float64 `json:"work_hours"`
	TransportHours     float64 `json:"transport_hours"`
	BufferHours        float64 `json:"buffer_hours"`
	TotalHours         float64 `json:"total_hours"`
	LinePrice          float64 `json:"line_price"`
	LineCost           float64 `json:"line_cost"`
	BlendedBillingRate float64 `json:"blended_billing_rate"`
	BlendedCostRate    float64 `json:"blended_cost_rate"`
	TransportPrice     float64 `json:"transport_price"`
	BufferPrice        float64 `json:"buffer_price"`
	TransportCost      float64 `json:"transport_cost"`
	BufferCost         float64 `json:"buffer_cost"`
}

// Totals contains the job roll-up.
type Totals struct {
	Price  float64  `json:"price"`
	Cost   float64  `json:"cost"`
	Profit float64  `json:"profit"`
	Margin *float64 `json:"margin"`
}

// JobEstimate groups the priced lines with the job breakdown and totals.
type JobEstimate struct {
	Params    JobParams `json:"params"`
	Lines     []Line    `json:"lines"`
	Breakdown Breakdown `json:"breakdown"`
	Totals    Totals    `json:"totals"`
}

// AssembleJob adds transport and buffer hours once for the whole job.
//
// transportHours = driveTimeMinutes/60 x 2 x transportRateFactor
// bufferHours    = (workHours + transportHours) x bufferFraction
//
// Both are charged at the blended line billing rate (sum price / sum hours)
// and costed at the blended line cost rate; with zero work hours the
// denominator is 1.
func AssembleJob(lines []Line, params JobParams) (JobEstimate, error) {
	if err := params.Validate(); err != nil {
		return JobEstimate{}, err
	}

	b := Breakdown{}
	for _, l := range lines {
		b.WorkHours += l.EstimatedHours
		b.LinePrice += l.EstimatedPrice
		b.LineCost += l.EstimatedCost
	}

	b.TransportHours = (params.DriveTimeMinutes / 60 * 2) * params.TransportRateFactor
	b.BufferHours = (b.WorkHours + b.TransportHours) * params.BufferFraction
	b.TotalHours = b.WorkHours + b.TransportHours + b.BufferHours

	denominator := b.WorkHours
	if denominator == 0 {
		denominator = 1
	}
	b.BlendedBillingRate = b.LinePrice / denominator
	b.BlendedCostRate = b.LineCost / denominator

	b.TransportPrice = b.TransportHours * b.BlendedBillingRate
	b.BufferPrice = b.BufferHours * b.BlendedBillingRate
	b.TransportCost = b.TransportHours * b.BlendedCostRate
	b.BufferCost = b.BufferHours * b.BlendedCostRate

	price := b.LinePrice + b.TransportPrice + b.BufferPrice
	cost := b.LineCost + b.TransportCost + b.BufferCost

	return JobEstimate{
		Params:    params,
		Lines:     copyLines(lines),
		Breakdown: b,
		Totals: Totals{
			Price:  price,
			Cost:   cost,
			Profit: price - cost,
			Margin: Margin(price, cost),
		},
	}, nil
}

func copyLines(lines []Line) []Line {
	out := slices.Clone(lines)
	for i := range out {
		out[i].EstimatedMargin = copyFloat(out[i].EstimatedMargin)
	}
	return out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
