package dome

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCameraGeometry(t *testing.T) {
	c := DefaultCamera()
	assert.Equal(t, 1864, c.Width)
	assert.Equal(t, 4032, c.Height)

	cx, cy := c.PrincipalPoint()
	assert.Equal(t, 932.0, cx)
	assert.Equal(t, 2016.0, cy)

	wantFocal := 1864.0 / (2 * math.Tan(75.0*math.Pi/180/2))
	assert.InDelta(t, wantFocal, c.FocalLength(), 1e-9)
}

func TestEulerToRotationIdentity(t *testing.T) {
	rot := EulerToRotation(0, 0, 0)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(t, want, rot.At(i, j), 1e-12, "rot[%d][%d]", i, j)
		}
	}
}

func TestEulerToRotationAxes(t *testing.T) {
	c := NewCamera(100, 100, 90)

	tests := []struct {
		name               string
		alpha, beta, gamma float64
		want               [3]float64
	}{
		// The principal-point ray is +Z in the camera frame; each case
		// rotates it by a single axis angle.
		{"identity", 0, 0, 0, [3]float64{0, 0, 1}},
		{"yaw_only_fixes_z", math.Pi / 2, 0, 0, [3]float64{0, 0, 1}},
		{"pitch_quarter", 0, math.Pi / 2, 0, [3]float64{0, -1, 0}},
		{"roll_quarter", 0, 0, math.Pi / 2, [3]float64{1, 0, 0}},
		{"pitch_half", 0, math.Pi, 0, [3]float64{0, 0, -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rot := EulerToRotation(tt.alpha, tt.beta, tt.gamma)
			cx, cy := c.PrincipalPoint()
			dir := c.Ray(cx, cy, rot)
			assert.InDelta(t, tt.want[0], dir.X, 1e-12)
			assert.InDelta(t, tt.want[1], dir.Y, 1e-12)
			assert.InDelta(t, tt.want[2], dir.Z, 1e-12)
		})
	}
}

func TestRayIsUnitLength(t *testing.T) {
	c := DefaultCamera()
	rot := EulerToRotation(0.7, -0.3, 1.1)

	for _, px := range [][2]float64{{0, 0}, {932, 2016}, {1863, 4031}, {100, 3000}} {
		dir := c.Ray(px[0], px[1], rot)
		assert.InDelta(t, 1.0, dir.Norm(), 1e-12)
	}
}

// With no device rotation the principal point looks straight up: colatitude
// zero, first colatitude bin.
func TestPrincipalPointMapsToZenith(t *testing.T) {
	c := DefaultCamera()
	p := NewProjector(c, DomeThetaEnd)
	rot := EulerToRotation(0, 0, 0)

	cx, cy := c.PrincipalPoint()
	theta, _, ok := p.PixelToSpherical(cx, cy, rot)
	require.True(t, ok)
	assert.InDelta(t, 0.0, theta, 1e-9)

	g, err := NewGrid(GridConfig{ResolutionDegrees: 1.0})
	require.NoError(t, err)
	thetaIdx, _, ok := g.CellFor(theta, 0)
	require.True(t, ok)
	assert.Equal(t, 0, thetaIdx)
}

func TestPixelToSphericalCapBoundary(t *testing.T) {
	c := DefaultCamera()
	rot := EulerToRotation(0.4, 0.9, -0.2)

	// Find the exact colatitude of an arbitrary off-center ray, then make
	// it the cap: a ray exactly at the cap must be accepted.
	dir := c.Ray(400, 1200, rot)
	boundary := math.Acos(dir.Z)
	require.Greater(t, boundary, 0.0)

	at := NewProjector(c, boundary)
	theta, _, ok := at.PixelToSpherical(400, 1200, rot)
	assert.True(t, ok)
	assert.InDelta(t, boundary, theta, 1e-12)

	below := NewProjector(c, boundary-1e-9)
	_, _, ok = below.PixelToSpherical(400, 1200, rot)
	assert.False(t, ok)
}

func TestPixelToSphericalRejectsBelowCap(t *testing.T) {
	c := DefaultCamera()
	p := NewProjector(c, DomeThetaEnd)

	// Pitch the camera to the horizon: the principal-point ray sits at 90°
	// colatitude, well past the 60° cap.
	rot := EulerToRotation(0, math.Pi/2, 0)
	cx, cy := c.PrincipalPoint()
	_, _, ok := p.PixelToSpherical(cx, cy, rot)
	assert.False(t, ok)
}

func TestPixelToSphericalAzimuthRange(t *testing.T) {
	c := DefaultCamera()
	p := NewProjector(c, DomeThetaEnd)

	for _, angles := range [][3]float64{{0, 0, 0}, {1.2, 0.3, -0.4}, {-2.5, 0.1, 0.2}, {3.0, -0.2, 0.9}} {
		rot := EulerToRotation(angles[0], angles[1], angles[2])
		for _, px := range [][2]float64{{932, 2016}, {500, 1000}, {1500, 3000}} {
			_, phi, ok := p.PixelToSpherical(px[0], px[1], rot)
			if !ok {
				continue
			}
			assert.GreaterOrEqual(t, phi, 0.0)
			assert.Less(t, phi, 2*math.Pi)
		}
	}
}
