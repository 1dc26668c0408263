package dome

import (
	"bufio"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/skyfield-data/obstruction.report/internal/units"
)

// Artifact file names within an output directory.
const (
	MapJSONName      = "dome_sky_map.json"
	MeshPLYName      = "dome_sky_model.ply"
	TexturePNGName   = "dome_sky_texture.png"
	TextureMetaName  = "texture_metadata.json"
	meshDomeRadius   = 50.0
	artifactFileMode = 0o644
)

// Cell classification colors, all at 50% alpha: sampled sky is blue,
// sampled not-sky is red, unsampled is gray.
var (
	colorSky       = color.RGBA{R: 0, G: 0, B: 255, A: 128}
	colorNotSky    = color.RGBA{R: 255, G: 0, B: 0, A: 128}
	colorUnsampled = color.RGBA{R: 128, G: 128, B: 128, A: 128}
)

func classify(c Cell) color.RGBA {
	switch {
	case c.Samples == 0:
		return colorUnsampled
	case c.Sky:
		return colorSky
	default:
		return colorNotSky
	}
}

// mapMetadata describes the grid's coordinate system, geometry, and value
// legend inside the JSON map document.
type mapMetadata struct {
	CoordinateSystem      string            `json:"coordinate_system"`
	Description           string            `json:"description"`
	DomeCenter            string            `json:"dome_center"`
	ThetaRangeRadians     [2]float64        `json:"theta_range_radians"`
	PhiRangeRadians       [2]float64        `json:"phi_range_radians"`
	ThetaRangeDegrees     [2]float64        `json:"theta_range_degrees"`
	PhiRangeDegrees       [2]float64        `json:"phi_range_degrees"`
	GridResolutionDegrees float64           `json:"grid_resolution_degrees"`
	GridDimensions        [2]int            `json:"grid_dimensions"`
	CameraFOVDegrees      float64           `json:"camera_fov_degrees"`
	ImageDimensions       [2]int            `json:"image_dimensions"`
	RotationMapping       map[string]string `json:"rotation_mapping"`
	GridValues            map[string]bool   `json:"grid_values"`
	ColorScheme           map[string]string `json:"color_scheme"`
}

// mapDocument is the full JSON matrix artifact.
type mapDocument struct {
	SkyGrid      [][]bool    `json:"sky_grid"`
	SampleCounts [][]uint32  `json:"sample_counts"`
	Metadata     mapMetadata `json:"metadata"`
}

// ExportMapJSON writes the sky grid, sample counts, and descriptive
// metadata as a single JSON document in outputDir. Returns the path of the
// written file.
func (g *Grid) ExportMapJSON(outputDir string, camera Camera) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	cells := g.Snapshot()
	sky := make([][]bool, g.ThetaSteps)
	counts := make([][]uint32, g.ThetaSteps)
	for i := 0; i < g.ThetaSteps; i++ {
		sky[i] = make([]bool, g.PhiSteps)
		counts[i] = make([]uint32, g.PhiSteps)
		for j := 0; j < g.PhiSteps; j++ {
			c := cells[g.Idx(i, j)]
			sky[i][j] = c.Sky
			counts[i][j] = c.Samples
		}
	}

	doc := mapDocument{
		SkyGrid:      sky,
		SampleCounts: counts,
		Metadata: mapMetadata{
			CoordinateSystem:      "spherical_dome_0_to_60_degrees",
			Description:           "Spherical dome covering colatitude 0° (zenith) to 60°",
			DomeCenter:            "0,0,0 orientation points to the zenith",
			ThetaRangeRadians:     [2]float64{DomeThetaStart, g.ThetaMax},
			PhiRangeRadians:       [2]float64{DomePhiStart, DomePhiEnd},
			ThetaRangeDegrees:     [2]float64{units.Degrees(DomeThetaStart), units.Degrees(g.ThetaMax)},
			PhiRangeDegrees:       [2]float64{units.Degrees(DomePhiStart), units.Degrees(DomePhiEnd)},
			GridResolutionDegrees: g.ResolutionDegrees,
			GridDimensions:        [2]int{g.ThetaSteps, g.PhiSteps},
			CameraFOVDegrees:      camera.FOVDegrees,
			ImageDimensions:       [2]int{camera.Width, camera.Height},
			RotationMapping: map[string]string{
				"alpha": "yaw (Z-axis rotation)",
				"beta":  "pitch (X-axis rotation)",
				"gamma": "roll (Y-axis rotation)",
			},
			GridValues:  map[string]bool{"sky": true, "not_sky": false},
			ColorScheme: map[string]string{"sky": "blue", "not_sky": "red"},
		},
	}

	outPath := filepath.Join(outputDir, MapJSONName)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal map document: %w", err)
	}
	if err := os.WriteFile(outPath, data, artifactFileMode); err != nil {
		return "", fmt.Errorf("write map document: %w", err)
	}
	log.Printf("[Export] dome sky map saved: %s", outPath)
	return outPath, nil
}

// ExportMeshPLY writes a colored triangle mesh of the dome as an ascii PLY
// file in outputDir. One vertex per grid cell on a sphere of fixed radius;
// each quad of adjacent cells becomes two triangles, with the azimuth index
// wrapping modulo PhiSteps to close the ring. The colatitude index never
// wraps. Returns the path of the written file.
func (g *Grid) ExportMeshPLY(outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	cells := g.Snapshot()
	outPath := filepath.Join(outputDir, MeshPLYName)
	f, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("create mesh file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	vertexCount := g.ThetaSteps * g.PhiSteps
	faceCount := (g.ThetaSteps - 1) * g.PhiSteps * 2

	fmt.Fprintln(w, "ply")
	fmt.Fprintln(w, "format ascii 1.0")
	fmt.Fprintf(w, "element vertex %d\n", vertexCount)
	fmt.Fprintln(w, "property float x")
	fmt.Fprintln(w, "property float y")
	fmt.Fprintln(w, "property float z")
	fmt.Fprintln(w, "property uchar red")
	fmt.Fprintln(w, "property uchar green")
	fmt.Fprintln(w, "property uchar blue")
	fmt.Fprintln(w, "property uchar alpha")
	fmt.Fprintf(w, "element face %d\n", faceCount)
	fmt.Fprintln(w, "property list uchar int vertex_indices")
	fmt.Fprintln(w, "end_header")

	for i := 0; i < g.ThetaSteps; i++ {
		theta := DomeThetaStart + float64(i)*g.Resolution
		sinT, cosT := math.Sin(theta), math.Cos(theta)
		for j := 0; j < g.PhiSteps; j++ {
			phi := DomePhiStart + float64(j)*g.Resolution
			x := meshDomeRadius * sinT * math.Cos(phi)
			y := meshDomeRadius * sinT * math.Sin(phi)
			z := meshDomeRadius * cosT

			c := classify(cells[g.Idx(i, j)])
			fmt.Fprintf(w, "%.6f %.6f %.6f %d %d %d %d\n", x, y, z, c.R, c.G, c.B, c.A)
		}
	}

	for i := 0; i < g.ThetaSteps-1; i++ {
		for j := 0; j < g.PhiSteps; j++ {
			jn := (j + 1) % g.PhiSteps
			v0 := i*g.PhiSteps + j
			v1 := i*g.PhiSteps + jn
			v2 := (i+1)*g.PhiSteps + j
			v3 := (i+1)*g.PhiSteps + jn
			fmt.Fprintf(w, "3 %d %d %d\n", v0, v1, v2)
			fmt.Fprintf(w, "3 %d %d %d\n", v1, v3, v2)
		}
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("write mesh file: %w", err)
	}
	log.Printf("[Export] 3-D dome model saved: %s (%d vertices, %d faces)", outPath, vertexCount, faceCount)
	return outPath, nil
}

// textureMetadata is the small companion document for the data texture.
type textureMetadata struct {
	Description       string            `json:"description"`
	Dimensions        [2]int            `json:"dimensions"`
	ThetaRangeDegrees [2]float64        `json:"theta_range_degrees"`
	PhiRangeDegrees   [2]float64        `json:"phi_range_degrees"`
	ColorMapping      map[string]string `json:"color_mapping"`
	AlphaChannel      map[string]string `json:"alpha_channel"`
	Usage             string            `json:"usage"`
}

// ExportTexture writes the grid as an RGBA data texture (one pixel per
// cell, rows are colatitude bins) plus a metadata document describing the
// encoding. Returns the path of the texture image.
func (g *Grid) ExportTexture(outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	cells := g.Snapshot()
	// NRGBA keeps the channel values straight: the colors carry alpha 128
	// and premultiplied storage would distort them on encode.
	img := image.NewNRGBA(image.Rect(0, 0, g.PhiSteps, g.ThetaSteps))
	for i := 0; i < g.ThetaSteps; i++ {
		for j := 0; j < g.PhiSteps; j++ {
			c := classify(cells[g.Idx(i, j)])
			img.SetNRGBA(j, i, color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A})
		}
	}

	outPath := filepath.Join(outputDir, TexturePNGName)
	f, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("create texture file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encode texture: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close texture file: %w", err)
	}

	meta := textureMetadata{
		Description:       "Data texture for the spherical dome (colatitude 0° to 60°)",
		Dimensions:        [2]int{g.ThetaSteps, g.PhiSteps},
		ThetaRangeDegrees: [2]float64{units.Degrees(DomeThetaStart), units.Degrees(g.ThetaMax)},
		PhiRangeDegrees:   [2]float64{units.Degrees(DomePhiStart), units.Degrees(DomePhiEnd)},
		ColorMapping: map[string]string{
			"red":  "not sky or obstruction",
			"blue": "sky",
			"gray": "unsampled",
		},
		AlphaChannel: map[string]string{
			"128": "50% transparency (consistent across all colors)",
		},
		Usage: "Use as a data texture for dome visualization",
	}
	metaPath := filepath.Join(outputDir, TextureMetaName)
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal texture metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, data, artifactFileMode); err != nil {
		return "", fmt.Errorf("write texture metadata: %w", err)
	}

	log.Printf("[Export] data texture saved: %s (metadata: %s)", outPath, metaPath)
	return outPath, nil
}
