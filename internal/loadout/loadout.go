// Package loadout aggregates equipment and crew cost rates into a combined
// hourly cost and a family of margin-based billing rates.
package loadout

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Simplici0/fieldquote/internal/apperr"
	"github.com/Simplici0/fieldquote/internal/costrate"
)

// ErrStale is returned by Cost while membership changed since the last Recompute.
var ErrStale = fmt.Errorf("%w: loadout cost is stale, recompute after membership change", apperr.ErrConfiguration)

// MarginPoints are the fixed margins reported in BillingRates.
var MarginPoints = []float64{0.30, 0.40, 0.50, 0.60, 0.70}

// BillingRates holds totalCostPerHour / (1 - m) for each margin point.
type BillingRates struct {
	Margin30 float64 `json:"margin_30"`
	Margin40 float64 `json:"margin_40"`
	Margin50 float64 `json:"margin_50"`
	Margin60 float64 `json:"margin_60"`
	Margin70 float64 `json:"margin_70"`
}

// CostBreakdown is the derived cost view of a loadout's members.
type CostBreakdown struct {
	Equipment                 []costrate.EquipmentCost `json:"equipment"`
	Labor                     []costrate.EmployeeCost  `json:"labor"`
	TotalEquipmentCostPerHour float64                  `json:"total_equipment_cost_per_hour"`
	TotalLaborCostPerHour     float64                  `json:"total_labor_cost_per_hour"`
	TotalCostPerHour          float64                  `json:"total_cost_per_hour"`
	BillingRates              BillingRates             `json:"billing_rates"`
}

// Aggregate sums member costs in the order given.
func Aggregate(equipment []costrate.EquipmentCost, labor []costrate.EmployeeCost) CostBreakdown {
	b := CostBreakdown{
		Equipment: slices.Clone(equipment),
		Labor:     slices.Clone(labor),
	}
	for _, e := range equipment {
		b.TotalEquipmentCostPerHour += e.TotalPerHour
	}
	for _, l := range labor {
		b.TotalLaborCostPerHour += l.TrueCostPerHour
	}
	b.TotalCostPerHour = b.TotalEquipmentCostPerHour + b.TotalLaborCostPerHour

	rates := make([]float64, len(MarginPoints))
	for i, m := range MarginPoints {
		rates[i] = b.TotalCostPerHour / (1 - m)
	}
	b.BillingRates = BillingRates{
		Margin30: rates[0],
		Margin40: rates[1],
		Margin50: rates[2],
		Margin60: rates[3],
		Margin70: rates[4],
	}
	return b
}

// BillingRate returns the hourly billing rate at an arbitrary target margin.
func (b CostBreakdown) BillingRate(margin float64) (float64, error) {
	return costrate.BillingRate(b.TotalCostPerHour, margin)
}

// DailyRate returns the billing rate for a full crew day.
func (b CostBreakdown) DailyRate(hoursPerDay, margin float64) (float64, error) {
	if hoursPerDay <= 0 {
		return 0, apperr.Configuration("hours_per_day", "must be greater than 0, got %v", hoursPerDay)
	}
	rate, err := b.BillingRate(margin)
	if err != nil {
		return 0, err
	}
	return rate * hoursPerDay, nil
}

// Loadout is a named crew/equipment set. Its cost view is cached and only
// refreshed by Recompute; SetMembers marks it dirty.
type Loadout struct {
	ID           string
	OrgID        string
	Name         string
	EquipmentIDs []string
	EmployeeIDs  []string
	// ProductionRates optionally overrides the template PPH per service type.
	ProductionRates map[string]float64
	RecomputedAt    time.Time

	cost  CostBreakdown
	dirty bool
}

// New returns a dirty loadout with the given members.
func New(id, name string, equipmentIDs, employeeIDs []string) *Loadout {
	return &Loadout{
		ID:           id,
		Name:         name,
		EquipmentIDs: dedupe(equipmentIDs),
		EmployeeIDs:  dedupe(employeeIDs),
		dirty:        true,
	}
}

// Restore rebuilds a loadout from storage with its cached cost and dirty flag.
func Restore(l Loadout, cost CostBreakdown, dirty bool) *Loadout {
	l.cost = cost
	l.dirty = dirty
	return &l
}

// Dirty reports whether membership changed since the last Recompute.
func (l *Loadout) Dirty() bool { return l.dirty }

// SetMembers replaces the membership. The cached cost goes stale only when
// the member set actually changes.
func (l *Loadout) SetMembers(equipmentIDs, employeeIDs []string) {
	equipmentIDs = dedupe(equipmentIDs)
	employeeIDs = dedupe(employeeIDs)
	if sameSet(l.EquipmentIDs, equipmentIDs) && sameSet(l.EmployeeIDs, employeeIDs) {
		return
	}
	l.EquipmentIDs = equipmentIDs
	l.EmployeeIDs = employeeIDs
	l.dirty = true
}

// Recompute refreshes the cached cost from member costs. Every member must be
// covered exactly once.
func (l *Loadout) Recompute(equipment []costrate.EquipmentCost, labor []costrate.EmployeeCost, at time.Time) error {
	equipIDs := make([]string, len(equipment))
	for i, e := range equipment {
		equipIDs[i] = e.EquipmentID
	}
	laborIDs := make([]string, len(labor))
	for i, e := range labor {
		laborIDs[i] = e.EmployeeID
	}
	if len(equipIDs) != len(l.EquipmentIDs) || !sameSet(equipIDs, l.EquipmentIDs) {
		return apperr.Validation("equipment", "costs %v do not match members %v", equipIDs, l.EquipmentIDs)
	}
	if len(laborIDs) != len(l.EmployeeIDs) || !sameSet(laborIDs, l.EmployeeIDs) {
		return apperr.Validation("employees", "costs %v do not match members %v", laborIDs, l.EmployeeIDs)
	}

	l.cost = Aggregate(orderBy(equipment, l.EquipmentIDs, func(e costrate.EquipmentCost) string { return e.EquipmentID }),
		orderBy(labor, l.EmployeeIDs, func(e costrate.EmployeeCost) string { return e.EmployeeID }))
	l.dirty = false
	l.RecomputedAt = at
	return nil
}

// Cost returns the cached cost view, or ErrStale while dirty.
func (l *Loadout) Cost() (CostBreakdown, error) {
	if l.dirty {
		return CostBreakdown{}, ErrStale
	}
	return l.cost, nil
}

// ProductionRate returns the loadout's PPH override for serviceType, if any.
func (l *Loadout) ProductionRate(serviceType string) (float64, bool) {
	pph, ok := l.ProductionRates[serviceType]
	return pph, ok && pph > 0
}

// IsStale reports whether err is ErrStale.
func IsStale(err error) bool { return errors.Is(err, ErrStale) }

func orderBy[T any](items []T, ids []string, key func(T) string) []T {
	out := make([]T, 0, len(items))
	for _, id := range ids {
		for _, it := range items {
			if key(it) == id {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
