package costing

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/Simplici0/fieldquote/internal/apperr"
	"github.com/Simplici0/fieldquote/internal/costrate"
	"github.com/Simplici0/fieldquote/internal/loadout"
	"github.com/Simplici0/fieldquote/internal/timetrack"
)

// LoadoutInput names a loadout and its members.
type LoadoutInput struct {
	ID              string             `json:"id"`
	OrgID           string             `json:"org_id"`
	Name            string             `json:"name"`
	EquipmentIDs    []string           `json:"equipment_ids"`
	EmployeeIDs     []string           `json:"employee_ids"`
	ProductionRates map[string]float64 `json:"production_rates,omitempty"`
}

// AggregateLoadoutCost computes the cost view of an ad hoc member set without storing it.
func (s *Service) AggregateLoadoutCost(ctx context.Context, equipmentIDs, employeeIDs []string) (loadout.CostBreakdown, error) {
	equipment, labor, err := s.memberCosts(ctx, equipmentIDs, employeeIDs)
	if err != nil {
		return loadout.CostBreakdown{}, err
	}
	return loadout.Aggregate(equipment, labor), nil
}

// SetLoadoutMembers creates the loadout or replaces its membership. A changed
// member set leaves the stored cost stale until RecomputeLoadout runs.
func (s *Service) SetLoadoutMembers(ctx context.Context, in LoadoutInput) (*loadout.Loadout, error) {
	if in.ID == "" {
		return nil, apperr.Validation("id", "is required")
	}
	for serviceType, pph := range in.ProductionRates {
		if pph < 0 {
			return nil, apperr.Validation("production_rates", "rate for %q must be greater than or equal to 0, got %v", serviceType, pph)
		}
	}

	l, err := s.repo.GetLoadout(ctx, in.ID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		l = loadout.New(in.ID, in.Name, in.EquipmentIDs, in.EmployeeIDs)
		l.OrgID = in.OrgID
	case err != nil:
		return nil, err
	default:
		l.SetMembers(in.EquipmentIDs, in.EmployeeIDs)
		if in.Name != "" {
			l.Name = in.Name
		}
	}
	if in.ProductionRates != nil {
		l.ProductionRates = in.ProductionRates
	}

	if err := s.repo.SaveLoadout(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// RecomputeLoadout refreshes and stores the loadout's cached cost from the
// current member profiles.
func (s *Service) RecomputeLoadout(ctx context.Context, id string) (*loadout.Loadout, error) {
	l, err := s.repo.GetLoadout(ctx, id)
	if err != nil {
		return nil, err
	}
	equipment, labor, err := s.memberCosts(ctx, l.EquipmentIDs, l.EmployeeIDs)
	if err != nil {
		return nil, err
	}
	if err := l.Recompute(equipment, labor, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.SaveLoadout(ctx, l); err != nil {
		return nil, err
	}

	cost, _ := l.Cost()
	s.logger.Info("loadout recomputed",
		zap.String("loadout_id", l.ID),
		zap.Float64("total_cost_per_hour", cost.TotalCostPerHour))
	return l, nil
}

// LoadoutCost returns the stored cost view, or loadout.ErrStale while the
// membership has changed since the last recompute.
func (s *Service) LoadoutCost(ctx context.Context, id string) (loadout.CostBreakdown, error) {
	l, err := s.repo.GetLoadout(ctx, id)
	if err != nil {
		return loadout.CostBreakdown{}, err
	}
	return l.Cost()
}

func (s *Service) memberCosts(ctx context.Context, equipmentIDs, employeeIDs []string) ([]costrate.EquipmentCost, []costrate.EmployeeCost, error) {
	var equipment []costrate.EquipmentCost
	if len(equipmentIDs) > 0 {
		profiles, err := s.repo.GetEquipment(ctx, equipmentIDs)
		if err != nil {
			return nil, nil, err
		}
		equipment = make([]costrate.EquipmentCost, 0, len(profiles))
		for _, p := range profiles {
			c, err := costrate.EquipmentRate(p)
			if err != nil {
				return nil, nil, fmt.Errorf("equipment %s: %w", p.ID, err)
			}
			equipment = append(equipment, c)
		}
	}

	var labor []costrate.EmployeeCost
	if len(employeeIDs) > 0 {
		profiles, err := s.repo.GetEmployees(ctx, employeeIDs)
		if err != nil {
			return nil, nil, err
		}
		labor = make([]costrate.EmployeeCost, 0, len(profiles))
		for _, p := range profiles {
			c, err := s.calc.EmployeeRate(p)
			if err != nil {
				return nil, nil, fmt.Errorf("employee %s: %w", p.ID, err)
			}
			labor = append(labor, c)
		}
	}
	return equipment, labor, nil
}

// RecordRates returns the hourly rates stamped on a new time record: the
// employee's true cost, plus an even share of the job loadout's equipment
// cost when the employee is a member of it. A stale loadout does not block
// clocking in; the record is marked as missing its equipment rate instead.
func (s *Service) RecordRates(ctx context.Context, jobID, employeeID string) (timetrack.RecordRate, error) {
	employees, err := s.repo.GetEmployees(ctx, []string{employeeID})
	if err != nil {
		return timetrack.RecordRate{}, err
	}
	cost, err := s.calc.EmployeeRate(employees[0])
	if err != nil {
		return timetrack.RecordRate{}, fmt.Errorf("employee %s: %w", employeeID, err)
	}
	rate := timetrack.RecordRate{Labor: cost.TrueCostPerHour}

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return timetrack.RecordRate{}, err
	}
	if job.LoadoutID == "" {
		return rate, nil
	}
	l, err := s.repo.GetLoadout(ctx, job.LoadoutID)
	if err != nil {
		return timetrack.RecordRate{}, err
	}
	if !slices.Contains(l.EmployeeIDs, employeeID) {
		return rate, nil
	}
	crew, err := l.Cost()
	if err != nil {
		s.logger.Warn("loadout cost is stale, equipment rate missing on time record",
			zap.String("loadout_id", l.ID),
			zap.String("job_id", jobID),
			zap.String("employee_id", employeeID))
		rate.EquipmentMissing = true
		return rate, nil
	}
	rate.Equipment = crew.TotalEquipmentCostPerHour / float64(len(l.EmployeeIDs))
	return rate, nil
}
