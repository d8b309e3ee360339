package seed

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"

	"github.com/Simplici0/fieldquote/internal/db"
	"github.com/Simplici0/fieldquote/internal/migrations"
)

func openMigrated(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "seed-test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := migrations.Up(database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return database
}

func TestRunIsIdempotent(t *testing.T) {
	database := openMigrated(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		stats, err := Run(ctx, database, Config{Demo: true})
		if err != nil {
			t.Fatalf("run seed (iteration=%d): %v", i, err)
		}
		if i == 0 {
			if stats.Inserts != 19 {
				t.Fatalf("expected 19 inserts in first run, got %d", stats.Inserts)
			}
			continue
		}
		if stats.Inserts != 0 || stats.Updates != 0 {
			t.Fatalf("expected no writes in iteration %d, got %+v", i, stats)
		}
	}

	assertCount(t, database, `SELECT COUNT(*) FROM complexity_factors WHERE org_id = ''`, nil, 10)
	assertCount(t, database, `SELECT COUNT(*) FROM service_templates`, nil, 5)
	assertCount(t, database, `SELECT COUNT(*) FROM equipment`, nil, 2)
	assertCount(t, database, `SELECT COUNT(*) FROM employees WHERE id = ?`, "emp-lead", 1)

	var billing float64
	if err := database.QueryRow(`SELECT standard_billing_rate FROM service_templates WHERE service_type = ?`, "mulching").Scan(&billing); err != nil {
		t.Fatalf("query mulching template: %v", err)
	}
	if math.Abs(billing-450) > 1e-9 {
		t.Fatalf("mulching billing rate = %v, want 450", billing)
	}
}

func TestRunUpdatesChangedGlobalFactors(t *testing.T) {
	database := openMigrated(t)
	ctx := context.Background()

	if _, err := Run(ctx, database, Config{}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	custom := []byte(`
factors:
  - id: steep_slope
    name: Steep slope
    category: terrain
    impact: 0.30
  - id: snow_cover
    name: Snow cover
    class: elapsed
    impact: 0.12
    active: false
`)
	stats, err := Run(ctx, database, Config{CatalogYAML: custom})
	if err != nil {
		t.Fatalf("custom run: %v", err)
	}
	if stats.Inserts != 1 || stats.Updates != 1 {
		t.Fatalf("stats = %+v, want 1 insert and 1 update", stats)
	}

	var impact float64
	if err := database.QueryRow(`SELECT impact_percentage FROM complexity_factors WHERE id = 'steep_slope'`).Scan(&impact); err != nil {
		t.Fatalf("query factor: %v", err)
	}
	if impact != 0.30 {
		t.Fatalf("impact = %v, want 0.30", impact)
	}
	assertCount(t, database, `SELECT COUNT(*) FROM complexity_factors WHERE id = 'snow_cover' AND active = 0`, nil, 1)
}

func TestParseCatalogDefaults(t *testing.T) {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	for _, f := range c.Factors {
		if !f.Active {
			t.Fatalf("factor %s should default to active", f.ID)
		}
	}

	if _, err := ParseCatalog([]byte("factors:\n  - id: x\n")); err == nil {
		t.Fatalf("expected error for factor without name")
	}
}

func assertCount(t *testing.T, database *sql.DB, query string, args any, expected int) {
	t.Helper()

	var count int
	var err error
	switch v := args.(type) {
	case nil:
		err = database.QueryRow(query).Scan(&count)
	case []any:
		err = database.QueryRow(query, v...).Scan(&count)
	default:
		err = database.QueryRow(query, v).Scan(&count)
	}
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != expected {
		t.Fatalf("expected count %d, got %d", expected, count)
	}
}
