package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Simplici0/fieldquote/internal/apperr"
	"github.com/Simplici0/fieldquote/internal/complexity"
	"github.com/Simplici0/fieldquote/internal/costrate"
	"github.com/Simplici0/fieldquote/internal/standards"
)

// UpsertEquipment inserts or replaces an equipment profile.
func (s *Store) UpsertEquipment(ctx context.Context, orgID string, e costrate.Equipment) error {
	if e.ID == "" {
		return apperr.Validation("id", "is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO equipment (
			id, org_id, name, purchase_price, useful_life_years, annual_hours,
			finance_rate, insurance_cost, registration_cost,
			fuel_consumption_gph, fuel_price_per_gallon,
			maintenance_cost_annual, repair_cost_annual
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			org_id = excluded.org_id,
			name = excluded.name,
			purchase_price = excluded.purchase_price,
			useful_life_years = excluded.useful_life_years,
			annual_hours = excluded.annual_hours,
			finance_rate = excluded.finance_rate,
			insurance_cost = excluded.insurance_cost,
			registration_cost = excluded.registration_cost,
			fuel_consumption_gph = excluded.fuel_consumption_gph,
			fuel_price_per_gallon = excluded.fuel_price_per_gallon,
			maintenance_cost_annual = excluded.maintenance_cost_annual,
			repair_cost_annual = excluded.repair_cost_annual
	`, e.ID, orgID, e.Name, e.PurchasePrice, e.UsefulLifeYears, e.AnnualHours,
		e.FinanceRate, e.InsuranceCost, e.RegistrationCost,
		e.FuelConsumptionGPH, e.FuelPricePerGallon,
		e.MaintenanceCostAnnual, e.RepairCostAnnual)
	if err != nil {
		return fmt.Errorf("upsert equipment %s: %w", e.ID, err)
	}
	return nil
}

// GetEquipment returns the profiles for ids in the order given.
func (s *Store) GetEquipment(ctx context.Context, ids []string) ([]costrate.Equipment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, purchase_price, useful_life_years, annual_hours,
			finance_rate, insurance_cost, registration_cost,
			fuel_consumption_gph, fuel_price_per_gallon,
			maintenance_cost_annual, repair_cost_annual
		FROM equipment
		WHERE id IN (`+placeholders(len(ids))+`)
	`, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query equipment: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]costrate.Equipment, len(ids))
	for rows.Next() {
		var e costrate.Equipment
		if err := rows.Scan(&e.ID, &e.Name, &e.PurchasePrice, &e.UsefulLifeYears, &e.AnnualHours,
			&e.FinanceRate, &e.InsuranceCost, &e.RegistrationCost,
			&e.FuelConsumptionGPH, &e.FuelPricePerGallon,
			&e.MaintenanceCostAnnual, &e.RepairCostAnnual); err != nil {
			return nil, fmt.Errorf("scan equipment: %w", err)
		}
		byID[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate equipment: %w", err)
	}

	out := make([]costrate.Equipment, 0, len(ids))
	for _, id := range ids {
		e, ok := byID[id]
		if !ok {
			return nil, apperr.NotFound("equipment", id)
		}
		out = append(out, e)
	}
	return out, nil
}

// UpsertEmployee inserts or replaces an employee profile.
func (s *Store) UpsertEmployee(ctx context.Context, orgID string, e costrate.Employee) error {
	if e.ID == "" {
		return apperr.Validation("id", "is required")
	}
	certs, err := encodeJSON(nonNil(e.EquipmentCertifications))
	if err != nil {
		return fmt.Errorf("encode equipment certifications: %w", err)
	}
	licenses, err := encodeJSON(nonNil(e.DriverLicenses))
	if err != nil {
		return fmt.Errorf("encode driver licenses: %w", err)
	}
	professional, err := encodeJSON(nonNil(e.ProfessionalCertifications))
	if err != nil {
		return fmt.Errorf("encode professional certifications: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (
			id, org_id, name, base_hourly_rate, tier, leadership_level,
			equipment_certifications, driver_licenses, professional_certifications
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			org_id = excluded.org_id,
			name = excluded.name,
			base_hourly_rate = excluded.base_hourly_rate,
			tier = excluded.tier,
			leadership_level = excluded.leadership_level,
			equipment_certifications = excluded.equipment_certifications,
			driver_licenses = excluded.driver_licenses,
			professional_certifications = excluded.professional_certifications
	`, e.ID, orgID, e.Name, e.BaseHourlyRate, e.Tier, e.LeadershipLevel, certs, licenses, professional); err != nil {
		return fmt.Errorf("upsert employee %s: %w", e.ID, err)
	}
	return nil
}

// GetEmployees returns the profiles for ids in the order given.
func (s *Store) GetEmployees(ctx context.Context, ids []string) ([]costrate.Employee, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, base_hourly_rate, tier, leadership_level,
			equipment_certifications, driver_licenses, professional_certifications
		FROM employees
		WHERE id IN (`+placeholders(len(ids))+`)
	`, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]costrate.Employee, len(ids))
	for rows.Next() {
		var (
			e                              costrate.Employee
			certs, licenses, professionals string
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.BaseHourlyRate, &e.Tier, &e.LeadershipLevel, &certs, &licenses, &professionals); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		if e.EquipmentCertifications, err = decodeStrings(certs); err != nil {
			return nil, err
		}
		if e.DriverLicenses, err = decodeStrings(licenses); err != nil {
			return nil, err
		}
		if e.ProfessionalCertifications, err = decodeStrings(professionals); err != nil {
			return nil, err
		}
		byID[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}

	out := make([]costrate.Employee, 0, len(ids))
	for _, id := range ids {
		e, ok := byID[id]
		if !ok {
			return nil, apperr.NotFound("employee", id)
		}
		out = append(out, e)
	}
	return out, nil
}

// UpsertFactor writes a complexity factor. An empty orgID stores a global factor.
func (s *Store) UpsertFactor(ctx context.Context, tx DBTransaction, orgID string, f complexity.Factor) (inserted bool, err error) {
	if err := f.Validate(); err != nil {
		return false, err
	}
	class := f.Class
	if class == "" {
		class = complexity.ClassProduction
	}
	services, err := encodeJSON(nonNil(f.ApplicableServiceTypes))
	if err != nil {
		return false, fmt.Errorf("encode service types: %w", err)
	}

	exec := s.executor(tx)
	var exists bool
	if err := exec.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM complexity_factors WHERE org_id = ? AND id = ?)`, orgID, f.ID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check factor %s: %w", f.ID, err)
	}

	if _, err := exec.ExecContext(ctx, `
		INSERT INTO complexity_factors (org_id, id, name, category, class, impact_percentage, applicable_service_types, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id, id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			class = excluded.class,
			impact_percentage = excluded.impact_percentage,
			applicable_service_types = excluded.applicable_service_types,
			active = excluded.active
	`, orgID, f.ID, f.Name, f.Category, string(class), f.ImpactPercentage, services, f.Active); err != nil {
		return false, fmt.Errorf("upsert factor %s: %w", f.ID, err)
	}
	return !exists, nil
}

// ListFactors returns the global factors and the factors of orgID, active or not.
func (s *Store) ListFactors(ctx context.Context, orgID string) (global, org []complexity.Factor, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT org_id, id, name, category, class, impact_percentage, applicable_service_types, active
		FROM complexity_factors
		WHERE org_id = '' OR org_id = ?
		ORDER BY org_id, id
	`, orgID)
	if err != nil {
		return nil, nil, fmt.Errorf("query factors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f        complexity.Factor
			class    string
			services string
		)
		if err := rows.Scan(&f.OrgID, &f.ID, &f.Name, &f.Category, &class, &f.ImpactPercentage, &services, &f.Active); err != nil {
			return nil, nil, fmt.Errorf("scan factor: %w", err)
		}
		f.Class = complexity.Class(class)
		if f.ApplicableServiceTypes, err = decodeStrings(services); err != nil {
			return nil, nil, err
		}
		if f.OrgID == "" {
			global = append(global, f)
		} else {
			org = append(org, f)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate factors: %w", err)
	}
	return global, org, nil
}

// Catalog builds the factor catalog visible to orgID.
func (s *Store) Catalog(ctx context.Context, orgID string) (*complexity.Catalog, error) {
	global, org, err := s.ListFactors(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return complexity.NewCatalog(global, org), nil
}

// UpsertTemplate writes a service template after validating it.
func (s *Store) UpsertTemplate(ctx context.Context, tx DBTransaction, t standards.Template) (inserted bool, err error) {
	if err := t.Validate(); err != nil {
		return false, err
	}

	exec := s.executor(tx)
	var exists bool
	if err := exec.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM service_templates WHERE service_type = ?)`, t.ServiceType).Scan(&exists); err != nil {
		return false, fmt.Errorf("check template %s: %w", t.ServiceType, err)
	}

	var recalculated sql.NullTime
	if !t.LastRecalculated.IsZero() {
		recalculated = sql.NullTime{Time: t.LastRecalculated.UTC(), Valid: true}
	}
	if _, err := exec.ExecContext(ctx, `
		INSERT INTO service_templates (
			service_type, standard_pph, standard_cost_per_hour, standard_billing_rate,
			target_margin, confidence_score, total_jobs_in_average, last_recalculated
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service_type) DO UPDATE SET
			standard_pph = excluded.standard_pph,
			standard_cost_per_hour = excluded.standard_cost_per_hour,
			standard_billing_rate = excluded.standard_billing_rate,
			target_margin = excluded.target_margin,
			confidence_score = excluded.confidence_score,
			total_jobs_in_average = excluded.total_jobs_in_average,
			last_recalculated = excluded.last_recalculated
	`, t.ServiceType, t.StandardPPH, t.StandardCostPerHour, t.StandardBillingRate,
		t.TargetMargin, t.ConfidenceScore, t.TotalJobsInAverage, recalculated); err != nil {
		return false, fmt.Errorf("upsert template %s: %w", t.ServiceType, err)
	}
	return !exists, nil
}

// GetTemplate returns the template for serviceType or an apperr.ErrNotFound.
func (s *Store) GetTemplate(ctx context.Context, serviceType string) (standards.Template, error) {
	var (
		t            standards.Template
		recalculated sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT service_type, standard_pph, standard_cost_per_hour, standard_billing_rate,
			target_margin, confidence_score, total_jobs_in_average, last_recalculated
		FROM service_templates
		WHERE service_type = ?
	`, serviceType).Scan(&t.ServiceType, &t.StandardPPH, &t.StandardCostPerHour, &t.StandardBillingRate,
		&t.TargetMargin, &t.ConfidenceScore, &t.TotalJobsInAverage, &recalculated)
	if isNoRows(err) {
		return standards.Template{}, apperr.NotFound("service template", serviceType)
	}
	if err != nil {
		return standards.Template{}, fmt.Errorf("get template %s: %w", serviceType, err)
	}
	if recalculated.Valid {
		t.LastRecalculated = recalculated.Time.In(time.UTC)
	}
	return t, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
