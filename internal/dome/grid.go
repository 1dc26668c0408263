package dome

import (
	"fmt"
	"math"
	"sync"

	"github.com/skyfield-data/obstruction.report/internal/units"
)

// Dome cap bounds. The mapped region runs from the zenith (colatitude 0)
// down to 60° colatitude, over the full azimuthal circle.
const (
	DomeThetaStart = 0.0
	DomeThetaEnd   = math.Pi / 3
	DomePhiStart   = 0.0
	DomePhiEnd     = 2 * math.Pi
)

// Cell is one grid cell's accumulated state. Samples only ever increases
// and Sky never reverts to false once set: evidence accumulation is
// monotonic across the grid's lifetime.
type Cell struct {
	Sky     bool
	Samples uint32
}

// GridConfig configures a dome grid at construction.
type GridConfig struct {
	// ResolutionDegrees is the angular size of one grid cell.
	ResolutionDegrees float64
	// ThetaMax overrides the dome cap colatitude in radians. Zero means
	// the production cap of π/3 (60°).
	ThetaMax float64
}

// Grid is the dome obstruction grid: a flat, fixed-shape array of cells
// indexed by colatitude and azimuth bin. Dimensions never change after
// construction. All mutation goes through the Aggregator; the mutex keeps
// concurrent readers (stats, export) consistent with the single writer.
type Grid struct {
	ResolutionDegrees float64
	Resolution        float64 // radians per cell
	ThetaMax          float64
	ThetaSteps        int
	PhiSteps          int

	mu    sync.RWMutex
	cells []Cell
}

// NewGrid constructs an empty dome grid.
func NewGrid(cfg GridConfig) (*Grid, error) {
	if err := units.ValidateResolution(cfg.ResolutionDegrees); err != nil {
		return nil, err
	}
	thetaMax := cfg.ThetaMax
	if thetaMax == 0 {
		thetaMax = DomeThetaEnd
	}
	if thetaMax <= 0 || thetaMax > math.Pi {
		return nil, fmt.Errorf("dome cap colatitude %.4f rad outside (0, π]", thetaMax)
	}

	res := units.Radians(cfg.ResolutionDegrees)
	thetaSteps := int((thetaMax-DomeThetaStart)/res) + 1
	phiSteps := int((DomePhiEnd-DomePhiStart)/res) + 1

	return &Grid{
		ResolutionDegrees: cfg.ResolutionDegrees,
		Resolution:        res,
		ThetaMax:          thetaMax,
		ThetaSteps:        thetaSteps,
		PhiSteps:          phiSteps,
		cells:             make([]Cell, thetaSteps*phiSteps),
	}, nil
}

// Idx maps a (thetaIdx, phiIdx) pair to the flat cell index.
func (g *Grid) Idx(thetaIdx, phiIdx int) int { return thetaIdx*g.PhiSteps + phiIdx }

// TotalCells reports the fixed cell count.
func (g *Grid) TotalCells() int { return g.ThetaSteps * g.PhiSteps }

// CellFor maps dome spherical coordinates to grid indices. ok is false when
// the computed indices fall outside the grid. The bin index is the floor of
// the scaled coordinate: int() truncation toward zero would fold small
// negative angles into bin 0 instead of rejecting them.
func (g *Grid) CellFor(theta, phi float64) (thetaIdx, phiIdx int, ok bool) {
	ti := math.Floor((theta - DomeThetaStart) / g.Resolution)
	pi := math.Floor((phi - DomePhiStart) / g.Resolution)
	if ti < 0 || ti >= float64(g.ThetaSteps) || pi < 0 || pi >= float64(g.PhiSteps) {
		return 0, 0, false
	}
	return int(ti), int(pi), true
}

// CellCenter returns the spherical coordinates of a cell's lower corner
// plus half a resolution step in each axis.
func (g *Grid) CellCenter(thetaIdx, phiIdx int) (theta, phi float64) {
	theta = DomeThetaStart + (float64(thetaIdx)+0.5)*g.Resolution
	phi = DomePhiStart + (float64(phiIdx)+0.5)*g.Resolution
	return theta, phi
}

// Cell returns a copy of one cell.
func (g *Grid) Cell(thetaIdx, phiIdx int) Cell {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cells[g.Idx(thetaIdx, phiIdx)]
}

// Snapshot returns a copy of all cells, consistent with respect to any
// in-flight photo update.
func (g *Grid) Snapshot() []Cell {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Cell, len(g.cells))
	copy(out, g.cells)
	return out
}

// CoverageStats is a derived, read-only snapshot of grid coverage. Sky and
// not-sky percentages are relative to sampled cells; coverage and unsampled
// percentages are relative to total cells.
type CoverageStats struct {
	TotalCells     int `json:"total_cells"`
	SampledCells   int `json:"sampled_cells"`
	SkyCells       int `json:"sky_cells"`
	NotSkyCells    int `json:"not_sky_cells"`
	UnsampledCells int `json:"unsampled_cells"`

	CoveragePercent  float64 `json:"coverage_percent"`
	SkyPercent       float64 `json:"sky_percent"`
	NotSkyPercent    float64 `json:"not_sky_percent"`
	UnsampledPercent float64 `json:"unsampled_percent"`
}

// CoverageStats computes coverage statistics from the current grid state.
// Pure read: the grid is never modified.
func (g *Grid) CoverageStats() CoverageStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := CoverageStats{TotalCells: len(g.cells)}
	for _, c := range g.cells {
		if c.Samples > 0 {
			stats.SampledCells++
			if c.Sky {
				stats.SkyCells++
			}
		}
	}
	stats.NotSkyCells = stats.SampledCells - stats.SkyCells
	stats.UnsampledCells = stats.TotalCells - stats.SampledCells

	stats.CoveragePercent = 100 * float64(stats.SampledCells) / float64(stats.TotalCells)
	stats.UnsampledPercent = 100 * float64(stats.UnsampledCells) / float64(stats.TotalCells)
	if stats.SampledCells > 0 {
		stats.SkyPercent = 100 * float64(stats.SkyCells) / float64(stats.SampledCells)
		stats.NotSkyPercent = 100 * float64(stats.NotSkyCells) / float64(stats.SampledCells)
	}
	return stats
}
