// Package units provides shared angle conversions and validation for the
// dome grid resolution.
package units

import (
	"fmt"
	"math"
)

// Resolution limits in degrees. The grid is dense (cells = theta_steps *
// phi_steps), so very small resolutions blow up memory and very large ones
// produce a grid too coarse to be useful.
const (
	MinResolutionDegrees = 0.1
	MaxResolutionDegrees = 30.0
)

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

// Degrees converts radians to degrees.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// ValidateResolution checks that a grid resolution in degrees is usable.
func ValidateResolution(degrees float64) error {
	if math.IsNaN(degrees) || math.IsInf(degrees, 0) {
		return fmt.Errorf("grid resolution must be finite, got %v", degrees)
	}
	if degrees < MinResolutionDegrees || degrees > MaxResolutionDegrees {
		return fmt.Errorf("grid resolution %.3f° outside valid range [%.1f°, %.1f°]",
			degrees, MinResolutionDegrees, MaxResolutionDegrees)
	}
	return nil
}

// NormalizeAzimuth wraps an azimuth angle in radians into [0, 2π).
func NormalizeAzimuth(phi float64) float64 {
	phi = math.Mod(phi, 2*math.Pi)
	if phi < 0 {
		phi += 2 * math.Pi
	}
	return phi
}
