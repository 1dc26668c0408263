// Command obstruction-map builds a ground-truth sky visibility map from a
// batch of photos and their capture-time device orientations: each photo is
// segmented into sky/not-sky, projected through the device rotation onto a
// spherical dome grid, and the accumulated grid is written out as a JSON
// matrix, a colored 3-D mesh, and an RGBA data texture.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/skyfield-data/obstruction.report/internal/db"
	"github.com/skyfield-data/obstruction.report/internal/dome"
	"github.com/skyfield-data/obstruction.report/internal/manifest"
	"github.com/skyfield-data/obstruction.report/internal/pipeline"
	"github.com/skyfield-data/obstruction.report/internal/sky"
)

var (
	manifestPath = flag.String("manifest", "rotation.json", "Path to the capture manifest JSON")
	photosDir    = flag.String("photos", "./photos", "Directory containing the captured photos")
	masksDir     = flag.String("masks", "./masks", "Directory to write sky masks into")
	outputDir    = flag.String("out", "./output", "Directory to write artifacts into")
	resolution   = flag.Float64("resolution", 1.0, "Dome grid resolution in degrees")
	workers      = flag.Int("workers", pipeline.DefaultWorkers, "Segmentation worker pool size")
	dbPath       = flag.String("db", "mapping_runs.db", "Run bookkeeping database path (empty to disable)")
)

func main() {
	flag.Parse()

	records, err := manifest.Load(*manifestPath)
	if err != nil {
		log.Fatalf("failed to load manifest: %v", err)
	}
	log.Printf("loaded %d photo records from %s", len(records), *manifestPath)

	grid, err := dome.NewGrid(dome.GridConfig{ResolutionDegrees: *resolution})
	if err != nil {
		log.Fatalf("failed to build dome grid: %v", err)
	}
	log.Printf("dome grid: %dx%d = %d cells at %.2f° resolution",
		grid.ThetaSteps, grid.PhiSteps, grid.TotalCells(), *resolution)

	cfg := pipeline.Config{
		PhotosDir: *photosDir,
		MasksDir:  *masksDir,
		OutputDir: *outputDir,
		Workers:   *workers,
	}
	if *dbPath != "" {
		store, err := db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open run database: %v", err)
		}
		defer store.Close()
		cfg.Store = store
	} else {
		log.Print("run database disabled; run history will not be recorded")
	}

	aggregator := dome.NewAggregator(grid, dome.DefaultCamera())
	runner := pipeline.NewRunner(sky.NewSegmenter(), aggregator, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := runner.Run(ctx, records)
	if err != nil {
		log.Fatalf("mapping run failed: %v", err)
	}

	log.Printf("run %s complete: segmentation %d/%d, aggregation %d/%d, %d artifacts",
		result.RunID,
		result.Segmentation.Success, result.Segmentation.Total,
		result.Aggregation.Success, result.Aggregation.Total,
		len(result.Artifacts))
	for _, p := range result.Artifacts {
		log.Printf("artifact: %s", p)
	}
}
