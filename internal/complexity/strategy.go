package complexity

import (
	"math"
	"slices"
	"strings"

	"github.com/Simplici0/fieldquote/internal/apperr"
)

// Strategy names accepted by StrategyByName.
const (
	StrategyAdditive    = "additive"
	StrategyCompounding = "compounding"
)

// Strategy combines resolved factors into one multiplier. Implementations
// must be pure and must not depend on factor order.
type Strategy interface {
	Name() string
	Multiplier(factors []Factor) float64
}

// Additive is 1 + sum(impact), clamped at Floor.
type Additive struct {
	Floor float64
}

func (Additive) Name() string { return StrategyAdditive }

func (s Additive) Multiplier(factors []Factor) float64 {
	sum := 0.0
	for _, f := range sortedImpacts(factors) {
		sum += f
	}
	return clamp(1+sum, s.Floor)
}

// CompoundingByClass multiplies (1 + impact) within each class, then
// multiplies the class results together, clamped at Floor.
type CompoundingByClass struct {
	Floor float64
}

func (CompoundingByClass) Name() string { return StrategyCompounding }

func (s CompoundingByClass) Multiplier(factors []Factor) float64 {
	production := make([]Factor, 0, len(factors))
	elapsed := make([]Factor, 0, len(factors))
	for _, f := range factors {
		if f.class() == ClassElapsed {
			elapsed = append(elapsed, f)
		} else {
			production = append(production, f)
		}
	}
	return clamp(classProduct(production)*classProduct(elapsed), s.Floor)
}

func classProduct(factors []Factor) float64 {
	p := 1.0
	for _, impact := range sortedImpacts(factors) {
		p *= 1 + impact
	}
	return p
}

// StrategyByName returns the named strategy. There is no default: callers
// must pick one explicitly.
func StrategyByName(name string, floor float64) (Strategy, error) {
	if floor <= 0 {
		floor = DefaultFloor
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case StrategyAdditive:
		return Additive{Floor: floor}, nil
	case StrategyCompounding:
		return CompoundingByClass{Floor: floor}, nil
	case "":
		return nil, apperr.Configuration("multiplier_strategy", "must be set to %q or %q", StrategyAdditive, StrategyCompounding)
	default:
		return nil, apperr.Configuration("multiplier_strategy", "unknown strategy %q", name)
	}
}

// Compute resolves ids against catalog and applies strategy. The resolved
// factors are returned alongside for display and audit.
func Compute(catalog *Catalog, strategy Strategy, ids []string, serviceType string) (float64, []Factor) {
	factors := catalog.Resolve(ids, serviceType)
	return strategy.Multiplier(factors), factors
}

// sortedImpacts orders impacts so float accumulation is independent of input order.
func sortedImpacts(factors []Factor) []float64 {
	out := make([]float64, len(factors))
	for i, f := range factors {
		out[i] = f.ImpactPercentage
	}
	slices.Sort(out)
	return out
}

func clamp(m, floor float64) float64 {
	if floor <= 0 {
		floor = DefaultFloor
	}
	return math.Max(m, floor)
}
