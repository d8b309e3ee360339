package costrate

import (
	"errors"
	"math"
	"testing"

	"github.com/Simplici0/fieldquote/internal/apperr"
)

func nearlyEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func mulcher() Equipment {
	return Equipment{
		ID:                    "mulcher-1",
		PurchasePrice:         300000,
		UsefulLifeYears:       10,
		AnnualHours:           1000,
		FinanceRate:           0.05,
		InsuranceCost:         6000,
		RegistrationCost:      500,
		FuelConsumptionGPH:    8,
		FuelPricePerGallon:    4,
		MaintenanceCostAnnual: 12000,
		RepairCostAnnual:      8000,
	}
}

func TestEquipmentRate_OwnershipAndOperating(t *testing.T) {
	cost, err := EquipmentRate(mulcher())
	if err != nil {
		t.Fatalf("EquipmentRate: %v", err)
	}

	// 30000 + 15000 + 6000 + 500
	nearlyEqual(t, "ownershipPerYear", cost.OwnershipPerYear, 51500)
	nearlyEqual(t, "ownershipPerHour", cost.OwnershipPerHour, 51.5)
	// 8*4*1000 + 12000 + 8000
	nearlyEqual(t, "operatingPerYear", cost.OperatingPerYear, 52000)
	nearlyEqual(t, "operatingPerHour", cost.OperatingPerHour, 52)
	nearlyEqual(t, "totalPerHour", cost.TotalPerHour, 103.5)
}

func TestEquipmentRate_ComponentsAddUp(t *testing.T) {
	profiles := []Equipment{
		mulcher(),
		{PurchasePrice: 45000, UsefulLifeYears: 7, AnnualHours: 600, FuelConsumptionGPH: 2.5, FuelPricePerGallon: 3.9},
		{PurchasePrice: 1, UsefulLifeYears: 0.5, AnnualHours: 1, InsuranceCost: 100},
	}
	for i, p := range profiles {
		cost, err := EquipmentRate(p)
		if err != nil {
			t.Fatalf("profile %d: %v", i, err)
		}
		nearlyEqual(t, "ownership+operating", cost.OwnershipPerHour+cost.OperatingPerHour, cost.TotalPerHour)
	}
}

func TestEquipmentRate_RejectsBadSetupData(t *testing.T) {
	noLife := mulcher()
	noLife.UsefulLifeYears = 0
	if _, err := EquipmentRate(noLife); !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("usefulLifeYears=0: got %v, want configuration error", err)
	}

	noHours := mulcher()
	noHours.AnnualHours = -5
	if _, err := EquipmentRate(noHours); !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("annualHours<0: got %v, want configuration error", err)
	}

	negativeFuel := mulcher()
	negativeFuel.FuelPricePerGallon = -1
	if _, err := EquipmentRate(negativeFuel); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("negative fuel price: got %v, want validation error", err)
	}
}

func TestEmployeeRate_TierLeadershipAndCert(t *testing.T) {
	calc := NewCalculator(DefaultBurdenMultiplier)

	cost, err := calc.EmployeeRate(Employee{
		ID:                      "emp-1",
		BaseHourlyRate:          30,
		Tier:                    3,
		LeadershipLevel:         "S",
		EquipmentCertifications: []string{"E2"},
	})
	if err != nil {
		t.Fatalf("EmployeeRate: %v", err)
	}

	nearlyEqual(t, "baseTiered", cost.BaseTiered, 54)
	nearlyEqual(t, "totalHourly", cost.TotalHourly, 59)
	nearlyEqual(t, "trueCost", cost.TrueCostPerHour, 100.3)
}

func TestEmployeeRate_UnknownCodesContributeNothing(t *testing.T) {
	calc := NewCalculator(0)

	cost, err := calc.EmployeeRate(Employee{
		BaseHourlyRate:             20,
		Tier:                       1,
		LeadershipLevel:            "ZZ",
		EquipmentCertifications:    []string{"E9", "E1"},
		DriverLicenses:             []string{"D2", "BOAT"},
		ProfessionalCertifications: []string{"ISA", "UNKNOWN"},
	})
	if err != nil {
		t.Fatalf("EmployeeRate: %v", err)
	}

	nearlyEqual(t, "leadership", cost.LeadershipPremium, 0)
	nearlyEqual(t, "cert", cost.CertPremium, 1)
	nearlyEqual(t, "license", cost.LicensePremium, 2)
	nearlyEqual(t, "professional", cost.ProfessionalPremium, 3)
	nearlyEqual(t, "totalHourly", cost.TotalHourly, 26)
	nearlyEqual(t, "trueCost", cost.TrueCostPerHour, 26*DefaultBurdenMultiplier)
}

func TestEmployeeRate_RejectsInvalidProfile(t *testing.T) {
	calc := NewCalculator(1.7)

	if _, err := calc.EmployeeRate(Employee{BaseHourlyRate: 25, Tier: 6}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("tier 6: got %v, want validation error", err)
	}
	if _, err := calc.EmployeeRate(Employee{BaseHourlyRate: 0, Tier: 1}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("zero rate: got %v, want validation error", err)
	}
}

func TestBillingRate_IncreasesWithMargin(t *testing.T) {
	rate, err := BillingRate(100, 0)
	if err != nil {
		t.Fatalf("BillingRate(m=0): %v", err)
	}
	nearlyEqual(t, "m=0", rate, 100)

	prev := rate
	for _, m := range []float64{0.1, 0.3, 0.5, 0.7, 0.9, 0.99} {
		got, err := BillingRate(100, m)
		if err != nil {
			t.Fatalf("BillingRate(m=%v): %v", m, err)
		}
		if got <= prev {
			t.Fatalf("BillingRate(m=%v) = %v, not greater than %v", m, got, prev)
		}
		prev = got
	}

	if _, err := BillingRate(100, 1); !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("m=1: got %v, want configuration error", err)
	}
}
