package workvolume

import (
	"errors"
	"math"
	"testing"

	"github.com/Simplici0/fieldquote/internal/apperr"
)

func nearlyEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func TestScore_PerService(t *testing.T) {
	tests := []struct {
		name    string
		service ServiceType
		in      Inputs
		want    float64
	}{
		{"mulching", Mulching, Inputs{Acres: 2, DBHPackageInches: 8}, 16},
		{"stump plain", StumpGrinding, Inputs{StumpDiameterInches: 24, HeightAboveGradeInches: 6, GrindDepthInches: 12}, 24 * 24 * 18},
		{"stump hardwood flare", StumpGrinding, Inputs{StumpDiameterInches: 10, HeightAboveGradeInches: 2, GrindDepthInches: 8, StumpModifiers: []string{"hardwood", "large_root_flare"}}, 1000 * 1.35},
		{"stump rotten", StumpGrinding, Inputs{StumpDiameterInches: 10, GrindDepthInches: 10, StumpModifiers: []string{"rotten"}}, 1000 * 0.85},
		{"removal", TreeRemoval, Inputs{TreeHeightFeet: 60, CrownRadiusFeet: 10, DBHInches: 18}, 60 * 10 * 2 * 18 / 12.0},
		{"trim light", TreeTrimming, Inputs{TreeHeightFeet: 60, CrownRadiusFeet: 10, DBHInches: 18, TrimIntensity: "light"}, 1800 * 0.3},
		{"trim heavy", TreeTrimming, Inputs{TreeHeightFeet: 60, CrownRadiusFeet: 10, DBHInches: 18, TrimIntensity: "Heavy"}, 1800 * 0.8},
		{"clearing", LandClearing, Inputs{ClearingDays: 3}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Score(tt.service, tt.in)
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			nearlyEqual(t, tt.name, got, tt.want)
		})
	}
}

func TestScoreStump_IgnoresUnknownAndRepeatedModifiers(t *testing.T) {
	got, err := ScoreStump(10, 0, 10, []string{"hardwood", "HARDWOOD", "petrified"})
	if err != nil {
		t.Fatalf("ScoreStump: %v", err)
	}
	nearlyEqual(t, "score", got, 1000*1.15)
}

func TestScore_RejectsNonPositiveDimensions(t *testing.T) {
	tests := []struct {
		name    string
		service ServiceType
		in      Inputs
	}{
		{"zero acres", Mulching, Inputs{Acres: 0, DBHPackageInches: 8}},
		{"negative dbh package", Mulching, Inputs{Acres: 1, DBHPackageInches: -4}},
		{"zero stump diameter", StumpGrinding, Inputs{GrindDepthInches: 6}},
		{"negative stump height", StumpGrinding, Inputs{StumpDiameterInches: 10, HeightAboveGradeInches: -1, GrindDepthInches: 6}},
		{"zero tree height", TreeRemoval, Inputs{CrownRadiusFeet: 10, DBHInches: 12}},
		{"trim without intensity", TreeTrimming, Inputs{TreeHeightFeet: 40, CrownRadiusFeet: 10, DBHInches: 12}},
		{"zero days", LandClearing, Inputs{}},
		{"unknown service", ServiceType("paving"), Inputs{Acres: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Score(tt.service, tt.in); !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("got %v, want validation error", err)
			}
		})
	}
}

func TestParseServiceType(t *testing.T) {
	st, err := ParseServiceType(" Stump_Grinding ")
	if err != nil || st != StumpGrinding {
		t.Fatalf("ParseServiceType = %q, %v", st, err)
	}
	if _, err := ParseServiceType("snow"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("unknown type: got %v", err)
	}
	if !LandClearing.DayBased() || Mulching.DayBased() {
		t.Fatalf("only land clearing is day based")
	}
}

func TestScoreStump_FlushWithGrade(t *testing.T) {
	got, err := Score(StumpGrinding, Inputs{StumpDiameterInches: 20, HeightAboveGradeInches: 0, GrindDepthInches: 10})
	if err != nil {
		t.Fatalf("flush stump: %v", err)
	}
	if got != 20*20*10 {
		t.Fatalf("score = %v, want %v", got, 20*20*10)
	}

	if _, err := Score(StumpGrinding, Inputs{StumpDiameterInches: 20, GrindDepthInches: 0}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("zero grind depth: %v, want validation error", err)
	}
}
