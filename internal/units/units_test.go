package units

import (
	"math"
	"testing"
)

func TestRadiansDegreesRoundTrip(t *testing.T) {
	for _, deg := range []float64{0, 1, 45, 60, 90, 180, 360} {
		got := Degrees(Radians(deg))
		if math.Abs(got-deg) > 1e-12 {
			t.Errorf("Degrees(Radians(%v)) = %v, want %v", deg, got, deg)
		}
	}
}

func TestValidateResolution(t *testing.T) {
	tests := []struct {
		name    string
		degrees float64
		wantErr bool
	}{
		{"one degree", 1.0, false},
		{"minimum", MinResolutionDegrees, false},
		{"maximum", MaxResolutionDegrees, false},
		{"too fine", 0.01, true},
		{"too coarse", 45.0, true},
		{"zero", 0, true},
		{"negative", -1.0, true},
		{"nan", math.NaN(), true},
		{"infinite", math.Inf(1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResolution(tt.degrees)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateResolution(%v) error = %v, wantErr %v", tt.degrees, err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeAzimuth(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi / 2, 3 * math.Pi / 2},
		{2*math.Pi + 0.25, 0.25},
		{-0.25, 2*math.Pi - 0.25},
	}
	for _, tt := range tests {
		got := NormalizeAzimuth(tt.in)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("NormalizeAzimuth(%v) = %v, want %v", tt.in, got, tt.want)
		}
		if got < 0 || got >= 2*math.Pi {
			t.Errorf("NormalizeAzimuth(%v) = %v outside [0, 2π)", tt.in, got)
		}
	}
}
