// Package dome implements the sky obstruction map: a spherical grid over
// the upper hemisphere cap, the camera/rotation model that projects photo
// pixels onto it, the aggregator that accumulates per-cell sky evidence
// across a photo batch, and the artifact exporters.
package dome

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/skyfield-data/obstruction.report/internal/units"
)

// Capture device camera defaults. The focal length follows from the
// horizontal field of view: f = width / (2·tan(fov/2)).
const (
	DefaultImageWidth  = 1864
	DefaultImageHeight = 4032
	DefaultFOVDegrees  = 75.0
)

// Camera is a pinhole model with the principal point at the image center.
type Camera struct {
	Width      int
	Height     int
	FOVDegrees float64

	focal float64
	cx    float64
	cy    float64
}

// NewCamera builds a pinhole camera for the given sensor geometry.
func NewCamera(width, height int, fovDegrees float64) Camera {
	fov := units.Radians(fovDegrees)
	return Camera{
		Width:      width,
		Height:     height,
		FOVDegrees: fovDegrees,
		focal:      float64(width) / (2 * math.Tan(fov/2)),
		cx:         float64(width) / 2,
		cy:         float64(height) / 2,
	}
}

// DefaultCamera returns the camera model for the production capture device.
func DefaultCamera() Camera {
	return NewCamera(DefaultImageWidth, DefaultImageHeight, DefaultFOVDegrees)
}

// FocalLength reports the focal length in pixels.
func (c Camera) FocalLength() float64 { return c.focal }

// PrincipalPoint reports the image-center principal point.
func (c Camera) PrincipalPoint() (cx, cy float64) { return c.cx, c.cy }

// EulerToRotation converts device Euler angles to a rotation matrix taking
// camera-frame directions to world-frame directions. Alpha is yaw about Z,
// beta pitch about X, gamma roll about Y. The composition order is fixed at
// Rz·Ry·Rx; the recorded orientation metadata is only meaningful under this
// exact order.
func EulerToRotation(alpha, beta, gamma float64) *mat.Dense {
	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, math.Cos(beta), -math.Sin(beta),
		0, math.Sin(beta), math.Cos(beta),
	})
	ry := mat.NewDense(3, 3, []float64{
		math.Cos(gamma), 0, math.Sin(gamma),
		0, 1, 0,
		-math.Sin(gamma), 0, math.Cos(gamma),
	})
	rz := mat.NewDense(3, 3, []float64{
		math.Cos(alpha), -math.Sin(alpha), 0,
		math.Sin(alpha), math.Cos(alpha), 0,
		0, 0, 1,
	})

	var zy, r mat.Dense
	zy.Mul(rz, ry)
	r.Mul(&zy, rx)
	return &r
}

// Ray converts a pixel coordinate to a unit world-space direction under the
// given rotation.
func (c Camera) Ray(u, v float64, rot *mat.Dense) r3.Vector {
	cam := r3.Vector{
		X: (u - c.cx) / c.focal,
		Y: (v - c.cy) / c.focal,
		Z: 1,
	}.Normalize()

	return r3.Vector{
		X: rot.At(0, 0)*cam.X + rot.At(0, 1)*cam.Y + rot.At(0, 2)*cam.Z,
		Y: rot.At(1, 0)*cam.X + rot.At(1, 1)*cam.Y + rot.At(1, 2)*cam.Z,
		Z: rot.At(2, 0)*cam.X + rot.At(2, 1)*cam.Y + rot.At(2, 2)*cam.Z,
	}
}

// Projector maps photo pixels onto the dome cap for one camera model.
type Projector struct {
	Camera   Camera
	ThetaMax float64 // dome cap colatitude in radians
}

// NewProjector builds a projector for the given camera and dome cap.
func NewProjector(camera Camera, thetaMax float64) Projector {
	return Projector{Camera: camera, ThetaMax: thetaMax}
}

// PixelToSpherical converts a pixel to dome spherical coordinates: theta is
// colatitude (0 at the zenith), phi azimuth in [0, 2π). ok is false when
// the ray falls outside the dome cap; the bound comparison is strict, so
// theta exactly at the cap is accepted.
func (p Projector) PixelToSpherical(u, v float64, rot *mat.Dense) (theta, phi float64, ok bool) {
	dir := p.Camera.Ray(u, v, rot)

	z := dir.Z
	if z > 1 {
		z = 1
	} else if z < -1 {
		z = -1
	}
	theta = math.Acos(z)
	phi = units.NormalizeAzimuth(math.Atan2(dir.Y, dir.X))

	if theta < 0 || theta > p.ThetaMax {
		return 0, 0, false
	}
	return theta, phi, true
}
