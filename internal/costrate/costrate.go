// Package costrate derives the all-in hourly cost of a piece of equipment or an employee.
package costrate

import (
	"github.com/Simplici0/fieldquote/internal/apperr"
)

// DefaultBurdenMultiplier approximates payroll tax, insurance and benefits on top of wages.
const DefaultBurdenMultiplier = 1.7

// Equipment is the ownership and operating profile of one machine.
type Equipment struct {
	ID                    string  `json:"id"`
	Name                  string  `json:"name"`
	PurchasePrice         float64 `json:"purchase_price"`
	UsefulLifeYears       float64 `json:"useful_life_years"`
	AnnualHours           float64 `json:"annual_hours"`
	FinanceRate           float64 `json:"finance_rate"`
	InsuranceCost         float64 `json:"insurance_cost"`
	RegistrationCost      float64 `json:"registration_cost"`
	FuelConsumptionGPH    float64 `json:"fuel_consumption_gph"`
	FuelPricePerGallon    float64 `json:"fuel_price_per_gallon"`
	MaintenanceCostAnnual float64 `json:"maintenance_cost_annual"`
	RepairCostAnnual      float64 `json:"repair_cost_annual"`
}

// EquipmentCost is the hourly cost breakdown for one machine.
type EquipmentCost struct {
	EquipmentID      string  `json:"equipment_id"`
	OwnershipPerYear float64 `json:"ownership_per_year"`
	OwnershipPerHour float64 `json:"ownership_per_hour"`
	OperatingPerYear float64 `json:"operating_per_year"`
	OperatingPerHour float64 `json:"operating_per_hour"`
	TotalPerHour     float64 `json:"total_per_hour"`
}

// EquipmentRate computes the ownership and operating cost per hour of e.
func EquipmentRate(e Equipment) (EquipmentCost, error) {
	if e.UsefulLifeYears <= 0 {
		return EquipmentCost{}, apperr.Configuration("useful_life_years", "must be greater than 0 for equipment %q", e.ID)
	}
	if e.AnnualHours <= 0 {
		return EquipmentCost{}, apperr.Configuration("annual_hours", "must be greater than 0 for equipment %q", e.ID)
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"purchase_price", e.PurchasePrice},
		{"finance_rate", e.FinanceRate},
		{"insurance_cost", e.InsuranceCost},
		{"registration_cost", e.RegistrationCost},
		{"fuel_consumption_gph", e.FuelConsumptionGPH},
		{"fuel_price_per_gallon", e.FuelPricePerGallon},
		{"maintenance_cost_annual", e.MaintenanceCostAnnual},
		{"repair_cost_annual", e.RepairCostAnnual},
	} {
		if err := apperr.NonNegative(f.name, f.value); err != nil {
			return EquipmentCost{}, err
		}
	}

	ownershipPerYear := e.PurchasePrice/e.UsefulLifeYears +
		e.PurchasePrice*e.FinanceRate +
		e.InsuranceCost +
		e.RegistrationCost
	operatingPerYear := e.FuelConsumptionGPH*e.FuelPricePerGallon*e.AnnualHours +
		e.MaintenanceCostAnnual +
		e.RepairCostAnnual

	ownershipPerHour := ownershipPerYear / e.AnnualHours
	operatingPerHour := operatingPerYear / e.AnnualHours

	return EquipmentCost{
		EquipmentID:      e.ID,
		OwnershipPerYear: ownershipPerYear,
		OwnershipPerHour: ownershipPerHour,
		OperatingPerYear: operatingPerYear,
		OperatingPerHour: operatingPerHour,
		TotalPerHour:     ownershipPerHour + operatingPerHour,
	}, nil
}

// BillingRate returns costPerHour / (1 - margin). margin must be in [0, 1).
func BillingRate(costPerHour, margin float64) (float64, error) {
	if margin < 0 || margin >= 1 {
		return 0, apperr.Configuration("target_margin", "must be in [0, 1), got %v", margin)
	}
	if costPerHour < 0 {
		return 0, apperr.Validation("cost_per_hour", "must be greater than or equal to 0, got %v", costPerHour)
	}
	return costPerHour / (1 - margin), nil
}
