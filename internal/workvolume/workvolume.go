// Package workvolume converts service-specific site measurements into a base score.
//
// Scores are in service-specific units and are not comparable across services.
// Land clearing is day-based: its score is the estimated crew-day count.
package workvolume

import (
	"fmt"
	"strings"

	"github.com/Simplici0/fieldquote/internal/apperr"
)

// ServiceType identifies one kind of field work.
type ServiceType string

const (
	Mulching      ServiceType = "mulching"
	StumpGrinding ServiceType = "stump_grinding"
	TreeRemoval   ServiceType = "tree_removal"
	TreeTrimming  ServiceType = "tree_trimming"
	LandClearing  ServiceType = "land_clearing"
)

// ServiceTypes lists every supported service type.
var ServiceTypes = []ServiceType{Mulching, StumpGrinding, TreeRemoval, TreeTrimming, LandClearing}

// ParseServiceType normalizes s and reports whether it is a known service type.
func ParseServiceType(s string) (ServiceType, error) {
	st := ServiceType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ServiceTypes {
		if st == known {
			return st, nil
		}
	}
	return "", apperr.Validation("service_type", "unknown service type %q", s)
}

// DayBased reports whether the service is priced by crew-days rather than by score.
func (s ServiceType) DayBased() bool { return s == LandClearing }

// Stump condition modifiers, applied additively to the stump volume.
var StumpModifiers = map[string]float64{
	"hardwood":         0.15,
	"large_root_flare": 0.20,
	"rotten":           -0.15,
}

// Trim intensity factors applied to the removal formula.
var TrimIntensities = map[string]float64{
	"light":  0.3,
	"medium": 0.5,
	"heavy":  0.8,
}

// Inputs carries the physical measurements for any service type. Only the
// fields of the requested service are read.
type Inputs struct {
	// Mulching
	Acres            float64 `json:"acres,omitempty"`
	DBHPackageInches float64 `json:"dbh_package_inches,omitempty"`

	// Stump grinding
	StumpDiameterInches    float64  `json:"stump_diameter_inches,omitempty"`
	HeightAboveGradeInches float64  `json:"height_above_grade_inches,omitempty"`
	GrindDepthInches       float64  `json:"grind_depth_inches,omitempty"`
	StumpModifiers         []string `json:"stump_modifiers,omitempty"`

	// Tree removal and trimming
	TreeHeightFeet  float64 `json:"tree_height_feet,omitempty"`
	CrownRadiusFeet float64 `json:"crown_radius_feet,omitempty"`
	DBHInches       float64 `json:"dbh_inches,omitempty"`
	TrimIntensity   string  `json:"trim_intensity,omitempty"`

	// Land clearing
	ClearingDays float64 `json:"clearing_days,omitempty"`
}

// Score returns the base score for serviceType.
func Score(serviceType ServiceType, in Inputs) (float64, error) {
	switch serviceType {
	case Mulching:
		return ScoreMulching(in.Acres, in.DBHPackageInches)
	case StumpGrinding:
		return ScoreStump(in.StumpDiameterInches, in.HeightAboveGradeInches, in.GrindDepthInches, in.StumpModifiers)
	case TreeRemoval:
		return ScoreRemoval(in.TreeHeightFeet, in.CrownRadiusFeet, in.DBHInches)
	case TreeTrimming:
		return ScoreTrimming(in.TreeHeightFeet, in.CrownRadiusFeet, in.DBHInches, in.TrimIntensity)
	case LandClearing:
		return ScoreClearing(in.ClearingDays)
	default:
		return 0, apperr.Validation("service_type", "unknown service type %q", serviceType)
	}
}

// ScoreMulching is acres x DBH package.
func ScoreMulching(acres, dbhPackageInches float64) (float64, error) {
	if err := positives(field{"acres", acres}, field{"dbh_package_inches", dbhPackageInches}); err != nil {
		return 0, err
	}
	return acres * dbhPackageInches, nil
}

// ScoreStump is diameter^2 x (height above grade + grind depth), adjusted by
// the sum of condition modifiers. Unknown modifier codes are ignored.
func ScoreStump(diameter, heightAboveGrade, grindDepth float64, modifiers []string) (float64, error) {
	if err := positives(field{"stump_diameter_inches", diameter}, field{"grind_depth_inches", grindDepth}); err != nil {
		return 0, err
	}
	// Flush with grade is 0; grind depth keeps the volume positive.
	if err := apperr.NonNegative("height_above_grade_inches", heightAboveGrade); err != nil {
		return 0, err
	}

	volume := diameter * diameter * (heightAboveGrade + grindDepth)

	adjust := 0.0
	seen := make(map[string]bool, len(modifiers))
	for _, m := range modifiers {
		m = strings.ToLower(strings.TrimSpace(m))
		if seen[m] {
			continue
		}
		seen[m] = true
		adjust += StumpModifiers[m]
	}
	return volume * (1 + adjust), nil
}

// ScoreRemoval is height x crownRadius x 2 x DBH / 12.
func ScoreRemoval(heightFeet, crownRadiusFeet, dbhInches float64) (float64, error) {
	if err := positives(field{"tree_height_feet", heightFeet}, field{"crown_radius_feet", crownRadiusFeet}, field{"dbh_inches", dbhInches}); err != nil {
		return 0, err
	}
	return heightFeet * crownRadiusFeet * 2 * dbhInches / 12, nil
}

// ScoreTrimming is the removal score scaled by the trim intensity factor.
func ScoreTrimming(heightFeet, crownRadiusFeet, dbhInches float64, intensity string) (float64, error) {
	factor, ok := TrimIntensities[strings.ToLower(strings.TrimSpace(intensity))]
	if !ok {
		return 0, apperr.Validation("trim_intensity", "must be light, medium or heavy, got %q", intensity)
	}
	removal, err := ScoreRemoval(heightFeet, crownRadiusFeet, dbhInches)
	if err != nil {
		return 0, err
	}
	return removal * factor, nil
}

// ScoreClearing returns the crew-day count unchanged.
func ScoreClearing(days float64) (float64, error) {
	if err := apperr.Positive("clearing_days", days); err != nil {
		return 0, err
	}
	return days, nil
}

type field struct {
	name  string
	value float64
}

func positives(fields ...field) error {
	for _, f := range fields {
		if err := apperr.Positive(f.name, f.value); err != nil {
			return fmt.Errorf("score work: %w", err)
		}
	}
	return nil
}
