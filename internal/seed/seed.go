// Package seed loads the global complexity factors and default service
// templates, plus optional demo crew records, into a migrated database.
package seed

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Simplici0/fieldquote/internal/complexity"
	"github.com/Simplici0/fieldquote/internal/costrate"
	"github.com/Simplici0/fieldquote/internal/standards"
	"github.com/Simplici0/fieldquote/internal/store"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the seed file layout.
type Catalog struct {
	Factors   []complexity.Factor `yaml:"factors"`
	Templates []TemplateSeed      `yaml:"templates"`
	Demo      DemoCrew            `yaml:"demo"`
}

// TemplateSeed is a template before its billing rate is derived.
type TemplateSeed struct {
	ServiceType         string  `yaml:"service_type"`
	StandardPPH         float64 `yaml:"standard_pph"`
	StandardCostPerHour float64 `yaml:"standard_cost_per_hour"`
	TargetMargin        float64 `yaml:"target_margin"`
}

// DemoCrew holds sample equipment and employees.
type DemoCrew struct {
	Equipment []equipmentSeed `yaml:"equipment"`
	Employees []employeeSeed  `yaml:"employees"`
}

type equipmentSeed struct {
	ID                    string  `yaml:"id"`
	Name                  string  `yaml:"name"`
	PurchasePrice         float64 `yaml:"purchase_price"`
	UsefulLifeYears       float64 `yaml:"useful_life_years"`
	AnnualHours           float64 `yaml:"annual_hours"`
	FinanceRate           float64 `yaml:"finance_rate"`
	InsuranceCost         float64 `yaml:"insurance_cost"`
	RegistrationCost      float64 `yaml:"registration_cost"`
	FuelConsumptionGPH    float64 `yaml:"fuel_consumption_gph"`
	FuelPricePerGallon    float64 `yaml:"fuel_price_per_gallon"`
	MaintenanceCostAnnual float64 `yaml:"maintenance_cost_annual"`
	RepairCostAnnual      float64 `yaml:"repair_cost_annual"`
}

type employeeSeed struct {
	ID                         string   `yaml:"id"`
	Name                       string   `yaml:"name"`
	BaseHourlyRate             float64  `yaml:"base_hourly_rate"`
	Tier                       int      `yaml:"tier"`
	LeadershipLevel            string   `yaml:"leadership_level"`
	EquipmentCertifications    []string `yaml:"equipment_certifications"`
	DriverLicenses             []string `yaml:"driver_licenses"`
	ProfessionalCertifications []string `yaml:"professional_certifications"`
}

// Config contains the values required by startup seed.
type Config struct {
	// CatalogYAML replaces the embedded catalog when set.
	CatalogYAML []byte
	// Demo also inserts the sample crew.
	Demo bool
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Updates int
}

// ParseCatalog decodes a seed file. Factors default to active.
func ParseCatalog(data []byte) (Catalog, error) {
	var raw struct {
		Factors []struct {
			complexity.Factor `yaml:",inline"`
			Active            *bool `yaml:"active"`
		} `yaml:"factors"`
		Templates []TemplateSeed `yaml:"templates"`
		Demo      DemoCrew       `yaml:"demo"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Catalog{}, fmt.Errorf("parse seed catalog: %w", err)
	}

	c := Catalog{Templates: raw.Templates, Demo: raw.Demo}
	for _, f := range raw.Factors {
		factor := f.Factor
		factor.Active = f.Active == nil || *f.Active
		if err := factor.Validate(); err != nil {
			return Catalog{}, fmt.Errorf("seed factor %q: %w", factor.ID, err)
		}
		c.Factors = append(c.Factors, factor)
	}
	return c, nil
}

// Run executes the startup seed in an idempotent way. Global factors follow
// the catalog; templates and demo records are only inserted when missing so
// recalculated templates are never reset.
func Run(ctx context.Context, db *sql.DB, cfg Config) (Stats, error) {
	data := cfg.CatalogYAML
	if len(data) == 0 {
		data = defaultCatalog
	}
	catalog, err := ParseCatalog(data)
	if err != nil {
		return Stats{}, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	st := store.New(db)
	stats := Stats{}

	for _, f := range catalog.Factors {
		if err := ensureFactor(ctx, tx, st, f, &stats); err != nil {
			_ = tx.Rollback()
			return Stats{}, err
		}
	}
	for _, t := range catalog.Templates {
		if err := ensureTemplate(ctx, tx, st, t, &stats); err != nil {
			_ = tx.Rollback()
			return Stats{}, err
		}
	}
	if cfg.Demo {
		if err := ensureDemoCrew(ctx, tx, catalog.Demo, &stats); err != nil {
			_ = tx.Rollback()
			return Stats{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func ensureFactor(ctx context.Context, tx *sql.Tx, st *store.Store, f complexity.Factor, stats *Stats) error {
	var (
		name, category, class, services string
		impact                          float64
		active                          bool
	)
	err := tx.QueryRowContext(ctx, `
		SELECT name, category, class, impact_percentage, applicable_service_types, active
		FROM complexity_factors
		WHERE org_id = '' AND id = ?
	`, f.ID).Scan(&name, &category, &class, &impact, &services, &active)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("check factor %s existence: %w", f.ID, err)
	case name == f.Name && category == f.Category && class == string(classOf(f)) &&
		impact == f.ImpactPercentage && services == jsonList(f.ApplicableServiceTypes) && active == f.Active:
		return nil
	}

	inserted, err := st.UpsertFactor(ctx, tx, "", f)
	if err != nil {
		return fmt.Errorf("seed factor %s: %w", f.ID, err)
	}
	if inserted {
		stats.Inserts++
	} else {
		stats.Updates++
	}
	return nil
}

func classOf(f complexity.Factor) complexity.Class {
	if f.Class == "" {
		return complexity.ClassProduction
	}
	return f.Class
}

func ensureTemplate(ctx context.Context, tx *sql.Tx, st *store.Store, seed TemplateSeed, stats *Stats) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM service_templates WHERE service_type = ?)`, seed.ServiceType).Scan(&exists); err != nil {
		return fmt.Errorf("check template %s existence: %w", seed.ServiceType, err)
	}
	if exists {
		return nil
	}

	t, err := standards.New(seed.ServiceType, seed.StandardPPH, seed.StandardCostPerHour, seed.TargetMargin)
	if err != nil {
		return fmt.Errorf("seed template %s: %w", seed.ServiceType, err)
	}
	if _, err := st.UpsertTemplate(ctx, tx, t); err != nil {
		return fmt.Errorf("seed template %s: %w", seed.ServiceType, err)
	}
	stats.Inserts++
	return nil
}

func ensureDemoCrew(ctx context.Context, tx *sql.Tx, crew DemoCrew, stats *Stats) error {
	for _, e := range crew.Equipment {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM equipment WHERE id = ?)`, e.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check equipment %s existence: %w", e.ID, err)
		}
		if exists {
			continue
		}
		if _, err := costrate.EquipmentRate(costrate.Equipment(e)); err != nil {
			return fmt.Errorf("seed equipment %s: %w", e.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO equipment (
				id, name, purchase_price, useful_life_years, annual_hours,
				finance_rate, insurance_cost, registration_cost,
				fuel_consumption_gph, fuel_price_per_gallon,
				maintenance_cost_annual, repair_cost_annual
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.Name, e.PurchasePrice, e.UsefulLifeYears, e.AnnualHours,
			e.FinanceRate, e.InsuranceCost, e.RegistrationCost,
			e.FuelConsumptionGPH, e.FuelPricePerGallon,
			e.MaintenanceCostAnnual, e.RepairCostAnnual); err != nil {
			return fmt.Errorf("insert equipment %s: %w", e.ID, err)
		}
		stats.Inserts++
	}

	for _, e := range crew.Employees {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM employees WHERE id = ?)`, e.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check employee %s existence: %w", e.ID, err)
		}
		if exists {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO employees (
				id, name, base_hourly_rate, tier, leadership_level,
				equipment_certifications, driver_licenses, professional_certifications
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.Name, e.BaseHourlyRate, e.Tier, e.LeadershipLevel,
			jsonList(e.EquipmentCertifications), jsonList(e.DriverLicenses), jsonList(e.ProfessionalCertifications)); err != nil {
			return fmt.Errorf("insert employee %s: %w", e.ID, err)
		}
		stats.Inserts++
	}
	return nil
}

func jsonList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}
