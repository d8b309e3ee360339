package loadout

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/Simplici0/fieldquote/internal/apperr"
	"github.com/Simplici0/fieldquote/internal/costrate"
)

func nearlyEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func sampleCosts() ([]costrate.EquipmentCost, []costrate.EmployeeCost) {
	equipment := []costrate.EquipmentCost{
		{EquipmentID: "mulcher", TotalPerHour: 103.5},
		{EquipmentID: "truck", TotalPerHour: 21.5},
	}
	labor := []costrate.EmployeeCost{
		{EmployeeID: "ana", TrueCostPerHour: 100.3},
		{EmployeeID: "bo", TrueCostPerHour: 34.7},
	}
	return equipment, labor
}

func TestAggregate_SumsAndBillingRates(t *testing.T) {
	equipment, labor := sampleCosts()

	b := Aggregate(equipment, labor)

	nearlyEqual(t, "equipment", b.TotalEquipmentCostPerHour, 125)
	nearlyEqual(t, "labor", b.TotalLaborCostPerHour, 135)
	nearlyEqual(t, "total", b.TotalCostPerHour, 260)
	nearlyEqual(t, "margin30", b.BillingRates.Margin30, 260/0.7)
	nearlyEqual(t, "margin50", b.BillingRates.Margin50, 520)
	nearlyEqual(t, "margin70", b.BillingRates.Margin70, 260/0.3)

	rates := []float64{b.BillingRates.Margin30, b.BillingRates.Margin40, b.BillingRates.Margin50, b.BillingRates.Margin60, b.BillingRates.Margin70}
	for i := 1; i < len(rates); i++ {
		if rates[i] <= rates[i-1] {
			t.Fatalf("billing rates must increase with margin: %v", rates)
		}
	}
}

func TestAggregate_Empty(t *testing.T) {
	b := Aggregate(nil, nil)
	nearlyEqual(t, "total", b.TotalCostPerHour, 0)
	nearlyEqual(t, "margin50", b.BillingRates.Margin50, 0)
}

func TestDailyRate(t *testing.T) {
	equipment, labor := sampleCosts()
	b := Aggregate(equipment, labor)

	daily, err := b.DailyRate(8, 0.5)
	if err != nil {
		t.Fatalf("DailyRate: %v", err)
	}
	nearlyEqual(t, "daily", daily, 520*8)

	if _, err := b.DailyRate(0, 0.5); !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("hoursPerDay=0: got %v, want configuration error", err)
	}
}

func TestLoadout_DirtyUntilRecomputed(t *testing.T) {
	equipment, labor := sampleCosts()
	l := New("crew-a", "Crew A", []string{"mulcher", "truck"}, []string{"ana", "bo"})

	if _, err := l.Cost(); !IsStale(err) {
		t.Fatalf("new loadout: got %v, want ErrStale", err)
	}

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	if err := l.Recompute(equipment, labor, at); err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	cost, err := l.Cost()
	if err != nil {
		t.Fatalf("Cost: %v", err)
	}
	nearlyEqual(t, "total", cost.TotalCostPerHour, 260)

	l.SetMembers([]string{"truck", "mulcher"}, []string{"bo", "ana"})
	if l.Dirty() {
		t.Fatalf("reordering members must not mark the loadout dirty")
	}

	l.SetMembers([]string{"mulcher"}, []string{"ana", "bo"})
	if !l.Dirty() {
		t.Fatalf("removing a member must mark the loadout dirty")
	}
	if _, err := l.Cost(); !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("dirty loadout: got %v, want configuration-kind error", err)
	}
}

func TestLoadout_RecomputeIsIdempotent(t *testing.T) {
	equipment, labor := sampleCosts()
	l := New("crew-a", "Crew A", []string{"mulcher", "truck"}, []string{"ana", "bo"})
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	if err := l.Recompute(equipment, labor, at); err != nil {
		t.Fatalf("first Recompute: %v", err)
	}
	first, _ := l.Cost()

	// Same members, costs supplied in a different order.
	if err := l.Recompute([]costrate.EquipmentCost{equipment[1], equipment[0]}, []costrate.EmployeeCost{labor[1], labor[0]}, at); err != nil {
		t.Fatalf("second Recompute: %v", err)
	}
	second, _ := l.Cost()

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("recompute not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestLoadout_RecomputeRejectsMismatchedCosts(t *testing.T) {
	equipment, labor := sampleCosts()
	l := New("crew-a", "Crew A", []string{"mulcher"}, []string{"ana", "bo"})

	if err := l.Recompute(equipment, labor, time.Now()); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("extra equipment: got %v, want validation error", err)
	}
	if !l.Dirty() {
		t.Fatalf("failed recompute must leave the loadout dirty")
	}
}

func TestLoadout_ProductionRate(t *testing.T) {
	l := New("crew-a", "Crew A", nil, nil)
	l.ProductionRates = map[string]float64{"mulching": 1.6, "stump_grinding": 0}

	if pph, ok := l.ProductionRate("mulching"); !ok || pph != 1.6 {
		t.Fatalf("mulching rate = %v,%v", pph, ok)
	}
	if _, ok := l.ProductionRate("stump_grinding"); ok {
		t.Fatalf("zero override must be treated as absent")
	}
}
