package costrate

import (
	"github.com/Simplici0/fieldquote/internal/apperr"
)

// Employee is the wage and qualification profile of one crew member.
type Employee struct {
	ID                         string   `json:"id"`
	Name                       string   `json:"name"`
	BaseHourlyRate             float64  `json:"base_hourly_rate"`
	Tier                       int      `json:"tier"`
	LeadershipLevel            string   `json:"leadership_level"`
	EquipmentCertifications    []string `json:"equipment_certifications"`
	DriverLicenses             []string `json:"driver_licenses"`
	ProfessionalCertifications []string `json:"professional_certifications"`
}

// EmployeeCost is the hourly cost breakdown for one employee.
type EmployeeCost struct {
	EmployeeID          string  `json:"employee_id"`
	BaseTiered          float64 `json:"base_tiered"`
	LeadershipPremium   float64 `json:"leadership_premium"`
	CertPremium         float64 `json:"cert_premium"`
	LicensePremium      float64 `json:"license_premium"`
	ProfessionalPremium float64 `json:"professional_premium"`
	TotalHourly         float64 `json:"total_hourly"`
	TrueCostPerHour     float64 `json:"true_cost_per_hour"`
}

// TierMultipliers maps tier 1..5 to its wage multiplier.
var TierMultipliers = map[int]float64{
	1: 1.0,
	2: 1.6,
	3: 1.8,
	4: 2.0,
	5: 2.2,
}

// Calculator holds the premium tables and burden used for employee rates.
// Codes missing from a table contribute no premium.
type Calculator struct {
	Burden                float64
	LeadershipPremiums    map[string]float64
	EquipmentCertPremiums map[string]float64
	LicensePremiums       map[string]float64
	ProfessionalPremiums  map[string]float64
}

// NewCalculator returns a Calculator with the standard premium tables and the given burden.
// A burden <= 0 falls back to DefaultBurdenMultiplier.
func NewCalculator(burden float64) *Calculator {
	if burden <= 0 {
		burden = DefaultBurdenMultiplier
	}
	return &Calculator{
		Burden: burden,
		LeadershipPremiums: map[string]float64{
			"":  0,
			"N": 0,
			"L": 1,
			"S": 3,
			"F": 5,
			"M": 7,
		},
		EquipmentCertPremiums: map[string]float64{
			"E1": 1,
			"E2": 2,
			"E3": 3,
			"E4": 4,
		},
		LicensePremiums: map[string]float64{
			"D1": 1,
			"D2": 2,
			"D3": 3,
		},
		ProfessionalPremiums: map[string]float64{
			"ISA":     3,
			"TRAQ":    2,
			"CTSP":    2,
			"UTILITY": 4,
		},
	}
}

// EmployeeRate computes the burdened true cost per hour of e.
func (c *Calculator) EmployeeRate(e Employee) (EmployeeCost, error) {
	if err := apperr.Positive("base_hourly_rate", e.BaseHourlyRate); err != nil {
		return EmployeeCost{}, err
	}
	multiplier, ok := TierMultipliers[e.Tier]
	if !ok {
		return EmployeeCost{}, apperr.Validation("tier", "tier %d is outside 1..5", e.Tier)
	}

	cost := EmployeeCost{
		EmployeeID:          e.ID,
		BaseTiered:          e.BaseHourlyRate * multiplier,
		LeadershipPremium:   c.LeadershipPremiums[e.LeadershipLevel],
		CertPremium:         sumPremiums(c.EquipmentCertPremiums, e.EquipmentCertifications),
		LicensePremium:      sumPremiums(c.LicensePremiums, e.DriverLicenses),
		ProfessionalPremium: sumPremiums(c.ProfessionalPremiums, e.ProfessionalCertifications),
	}
	cost.TotalHourly = cost.BaseTiered +
		cost.LeadershipPremium +
		cost.CertPremium +
		cost.LicensePremium +
		cost.ProfessionalPremium
	cost.TrueCostPerHour = cost.TotalHourly * c.Burden

	return cost, nil
}

func sumPremiums(table map[string]float64, codes []string) float64 {
	total := 0.0
	for _, code := range codes {
		total += table[code]
	}
	return total
}
