// Package complexity resolves named site-condition factors and combines them
// into a single multiplier for the base score.
package complexity

import (
	"slices"
	"strings"

	"github.com/Simplici0/fieldquote/internal/apperr"
)

// DefaultFloor is the lowest multiplier either strategy will return.
const DefaultFloor = 0.1

// Class partitions factors for the compounding strategy.
type Class string

const (
	// ClassProduction factors change how fast the crew produces.
	ClassProduction Class = "production"
	// ClassElapsed factors stretch total elapsed time on site.
	ClassElapsed Class = "elapsed"
)

// Factor is one site condition and its signed impact, e.g. -0.27 or +0.08.
type Factor struct {
	ID                     string   `json:"id" yaml:"id"`
	OrgID                  string   `json:"org_id,omitempty" yaml:"-"`
	Name                   string   `json:"name" yaml:"name"`
	Category               string   `json:"category" yaml:"category"`
	Class                  Class    `json:"class" yaml:"class"`
	ImpactPercentage       float64  `json:"impact_percentage" yaml:"impact"`
	ApplicableServiceTypes []string `json:"applicable_service_types,omitempty" yaml:"service_types"`
	Active                 bool     `json:"active" yaml:"-"`
}

// AppliesTo reports whether f may be used for serviceType. An empty list
// means every service; an empty serviceType skips the check.
func (f Factor) AppliesTo(serviceType string) bool {
	if serviceType == "" || len(f.ApplicableServiceTypes) == 0 {
		return true
	}
	return slices.Contains(f.ApplicableServiceTypes, serviceType)
}

func (f Factor) class() Class {
	if f.Class == ClassElapsed {
		return ClassElapsed
	}
	return ClassProduction
}

// Validate checks the fields a stored factor must carry.
func (f Factor) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return apperr.Validation("id", "is required")
	}
	if strings.TrimSpace(f.Name) == "" {
		return apperr.Validation("name", "is required")
	}
	if f.Class != "" && f.Class != ClassProduction && f.Class != ClassElapsed {
		return apperr.Validation("class", "must be %q or %q, got %q", ClassProduction, ClassElapsed, f.Class)
	}
	return nil
}

// Catalog is the active factor set visible to one organization.
type Catalog struct {
	byID map[string]Factor
}

// NewCatalog merges global and organization factors. Organization factors
// win on id collision; inactive factors are dropped.
func NewCatalog(global, org []Factor) *Catalog {
	c := &Catalog{byID: make(map[string]Factor, len(global)+len(org))}
	for _, set := range [][]Factor{global, org} {
		for _, f := range set {
			if !f.Active {
				delete(c.byID, f.ID)
				continue
			}
			c.byID[f.ID] = f
		}
	}
	return c
}

// Len returns the number of active factors.
func (c *Catalog) Len() int { return len(c.byID) }

// Lookup returns the active factor with id.
func (c *Catalog) Lookup(id string) (Factor, bool) {
	f, ok := c.byID[id]
	return f, ok
}

// Resolve maps ids to active factors applicable to serviceType. Unknown,
// inactive, inapplicable and repeated ids are ignored. The result is sorted
// by id so it never depends on selection order.
func (c *Catalog) Resolve(ids []string, serviceType string) []Factor {
	seen := make(map[string]struct{}, len(ids))
	out := make([]Factor, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		f, ok := c.byID[id]
		if !ok || !f.AppliesTo(serviceType) {
			continue
		}
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b Factor) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// All returns the active factors sorted by id.
func (c *Catalog) All() []Factor {
	out := make([]Factor, 0, len(c.byID))
	for _, f := range c.byID {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b Factor) int { return strings.Compare(a.ID, b.ID) })
	return out
}
