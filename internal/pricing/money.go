package pricing

import "github.com/shopspring/decimal"

// RoundCents rounds v half away from zero to two decimals.
func RoundCents(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// FormatMoney renders v with exactly two decimals, e.g. "4153.85".
func FormatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// Summary is a cent-rounded view of a job estimate for display. Stored
// snapshots keep full precision.
type Summary struct {
	Price      string  `json:"price"`
	Cost       string  `json:"cost"`
	Profit     string  `json:"profit"`
	TotalHours float64 `json:"total_hours"`
	MarginPct  *string `json:"margin_pct"`
}

// Summarize rounds the totals of est for display.
func Summarize(est JobEstimate) Summary {
	s := Summary{
		Price:      FormatMoney(est.Totals.Price),
		Cost:       FormatMoney(est.Totals.Cost),
		Profit:     FormatMoney(est.Totals.Profit),
		TotalHours: RoundCents(est.Breakdown.TotalHours),
	}
	if est.Totals.Margin != nil {
		pct := decimal.NewFromFloat(*est.Totals.Margin).Mul(decimal.NewFromInt(100)).StringFixed(1)
		s.MarginPct = &pct
	}
	return s
}
