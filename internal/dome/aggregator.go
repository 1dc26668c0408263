package dome

import (
	"fmt"
	"image"
	"log"
	"os"

	_ "image/jpeg"
	_ "image/png"

	"github.com/skyfield-data/obstruction.report/internal/manifest"
)

// SkyThreshold is the mask value above which a pixel counts as sky.
const SkyThreshold = 128

// SampleStride is the pixel stride used when sampling a photo into the
// grid. Sampling every pixel adds nothing at 1° cell size and would cost
// ~7.5M projections per photo; a 20px stride keeps aggregation cheap while
// still oversampling each cell.
const SampleStride = 20

// Mask is a decoded single-channel sky mask, same spatial size as its
// source photo. Values above SkyThreshold mean sky.
type Mask struct {
	Width  int
	Height int
	Pix    []uint8 // row-major, len = Width*Height
}

// At returns the mask value at a pixel.
func (m *Mask) At(x, y int) uint8 { return m.Pix[y*m.Width+x] }

// LoadMask reads a mask raster from disk and reduces it to a single
// channel. Color masks are accepted; the red channel carries the value
// since masks are written as grayscale.
func LoadMask(path string) (*Mask, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mask %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode mask %s: %w", path, err)
	}

	b := img.Bounds()
	m := &Mask{
		Width:  b.Dx(),
		Height: b.Dy(),
		Pix:    make([]uint8, b.Dx()*b.Dy()),
	}
	if gray, ok := img.(*image.Gray); ok && gray.Stride == m.Width {
		copy(m.Pix, gray.Pix)
		return m, nil
	}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			m.Pix[y*m.Width+x] = uint8(r >> 8)
		}
	}
	return m, nil
}

// PhotoCoverage is the per-photo observability counters emitted by
// ProcessPhoto: how many pixel samples were taken, how many landed on the
// dome, and how many of those were sky.
type PhotoCoverage struct {
	PixelsProcessed int
	PixelsMapped    int
	SkyPixels       int
}

// MappedPercent reports the fraction of samples that landed on the dome.
func (c PhotoCoverage) MappedPercent() float64 {
	if c.PixelsProcessed == 0 {
		return 0
	}
	return 100 * float64(c.PixelsMapped) / float64(c.PixelsProcessed)
}

// SkyPercent reports the sky fraction of mapped samples.
func (c PhotoCoverage) SkyPercent() float64 {
	if c.PixelsMapped == 0 {
		return 0
	}
	return 100 * float64(c.SkyPixels) / float64(c.PixelsMapped)
}

// Aggregator owns all mutation of a Grid. It consumes one (record, mask)
// pair at a time and folds the photo's sampled sky evidence into the grid:
// every mapped sample increments the cell's sample count, and sky samples
// set the cell's sky flag. The flag accumulates by OR, never assignment, so
// a cell marked sky stays sky regardless of later evidence.
type Aggregator struct {
	grid      *Grid
	projector Projector
	stride    int
}

// NewAggregator builds an aggregator feeding the given grid using the given
// camera model.
func NewAggregator(grid *Grid, camera Camera) *Aggregator {
	return &Aggregator{
		grid:      grid,
		projector: NewProjector(camera, grid.ThetaMax),
		stride:    SampleStride,
	}
}

// Grid returns the grid this aggregator feeds.
func (a *Aggregator) Grid() *Grid { return a.grid }

// Camera returns the camera model samples are projected through.
func (a *Aggregator) Camera() Camera { return a.projector.Camera }

// ProcessPhoto folds one photo's mask into the grid under the record's
// device orientation. The mask must match the camera's pixel dimensions.
// On error the grid is left untouched for this photo; the caller counts the
// photo as failed and continues the batch. Samples whose rays miss the dome
// cap are skipped silently — that is the expected common case, not an
// error.
func (a *Aggregator) ProcessPhoto(rec manifest.PhotoRecord, mask *Mask) (PhotoCoverage, error) {
	var cov PhotoCoverage
	if mask == nil {
		return cov, fmt.Errorf("photo %d: nil mask", rec.Index)
	}
	cam := a.projector.Camera
	if mask.Width != cam.Width || mask.Height != cam.Height {
		return cov, fmt.Errorf("photo %d: mask size %dx%d does not match camera %dx%d",
			rec.Index, mask.Width, mask.Height, cam.Width, cam.Height)
	}

	rot := EulerToRotation(rec.Alpha, rec.Beta, rec.Gamma)

	g := a.grid
	g.mu.Lock()
	defer g.mu.Unlock()

	for v := 0; v < cam.Height; v += a.stride {
		for u := 0; u < cam.Width; u += a.stride {
			cov.PixelsProcessed++

			theta, phi, ok := a.projector.PixelToSpherical(float64(u), float64(v), rot)
			if !ok {
				continue
			}
			thetaIdx, phiIdx, ok := g.CellFor(theta, phi)
			if !ok {
				continue
			}
			cov.PixelsMapped++

			cell := &g.cells[g.Idx(thetaIdx, phiIdx)]
			cell.Samples++
			if mask.At(u, v) > SkyThreshold {
				cell.Sky = true
				cov.SkyPixels++
			}
		}
	}

	log.Printf("[Aggregator] photo %d: %d/%d pixels mapped (%.1f%%), %d sky pixels (%.1f%%)",
		rec.Index, cov.PixelsMapped, cov.PixelsProcessed, cov.MappedPercent(),
		cov.SkyPixels, cov.SkyPercent())
	return cov, nil
}
