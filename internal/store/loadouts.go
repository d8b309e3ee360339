package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Simplici0/fieldquote/internal/apperr"
	"github.com/Simplici0/fieldquote/internal/loadout"
)

// SaveLoadout writes membership, the cached cost view and the dirty flag.
func (s *Store) SaveLoadout(ctx context.Context, l *loadout.Loadout) error {
	if l == nil || l.ID == "" {
		return apperr.Validation("id", "is required")
	}
	equipment, err := encodeJSON(nonNil(l.EquipmentIDs))
	if err != nil {
		return fmt.Errorf("encode equipment ids: %w", err)
	}
	employees, err := encodeJSON(nonNil(l.EmployeeIDs))
	if err != nil {
		return fmt.Errorf("encode employee ids: %w", err)
	}
	rates := l.ProductionRates
	if rates == nil {
		rates = map[string]float64{}
	}
	ratesJSON, err := encodeJSON(rates)
	if err != nil {
		return fmt.Errorf("encode production rates: %w", err)
	}

	costJSON := "{}"
	if cost, err := l.Cost(); err == nil {
		if costJSON, err = encodeJSON(cost); err != nil {
			return fmt.Errorf("encode loadout cost: %w", err)
		}
	}

	var recomputed sql.NullTime
	if !l.RecomputedAt.IsZero() {
		recomputed = sql.NullTime{Time: l.RecomputedAt.UTC(), Valid: true}
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO loadouts (id, org_id, name, equipment_ids, employee_ids, production_rates, cost_json, dirty, recomputed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			org_id = excluded.org_id,
			name = excluded.name,
			equipment_ids = excluded.equipment_ids,
			employee_ids = excluded.employee_ids,
			production_rates = excluded.production_rates,
			cost_json = excluded.cost_json,
			dirty = excluded.dirty,
			recomputed_at = excluded.recomputed_at,
			updated_at = CURRENT_TIMESTAMP
	`, l.ID, l.OrgID, l.Name, equipment, employees, ratesJSON, costJSON, l.Dirty(), recomputed); err != nil {
		return fmt.Errorf("save loadout %s: %w", l.ID, err)
	}
	return nil
}

// GetLoadout restores a loadout with its cached cost. A dirty loadout comes
// back dirty; callers recompute explicitly.
func (s *Store) GetLoadout(ctx context.Context, id string) (*loadout.Loadout, error) {
	var (
		l                                  loadout.Loadout
		equipment, employees, rates, costJ string
		dirty                              bool
		recomputed                         sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, equipment_ids, employee_ids, production_rates, cost_json, dirty, recomputed_at
		FROM loadouts
		WHERE id = ?
	`, id).Scan(&l.ID, &l.OrgID, &l.Name, &equipment, &employees, &rates, &costJ, &dirty, &recomputed)
	if isNoRows(err) {
		return nil, apperr.NotFound("loadout", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get loadout %s: %w", id, err)
	}

	if l.EquipmentIDs, err = decodeStrings(equipment); err != nil {
		return nil, err
	}
	if l.EmployeeIDs, err = decodeStrings(employees); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rates), &l.ProductionRates); err != nil {
		return nil, fmt.Errorf("decode production rates: %w", err)
	}
	var cost loadout.CostBreakdown
	if err := json.Unmarshal([]byte(costJ), &cost); err != nil {
		return nil, fmt.Errorf("decode loadout cost: %w", err)
	}
	if recomputed.Valid {
		l.RecomputedAt = recomputed.Time.In(time.UTC)
	}
	return loadout.Restore(l, cost, dirty), nil
}
