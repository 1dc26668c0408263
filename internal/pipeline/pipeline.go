// Package pipeline runs one mapping batch end to end: parallel sky
// segmentation, sequential dome aggregation, artifact export.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/skyfield-data/obstruction.report/internal/dome"
	"github.com/skyfield-data/obstruction.report/internal/manifest"
)

// DefaultWorkers is the segmentation pool size when the caller does not
// choose one.
const DefaultWorkers = 4

// ErrBatchFatal is returned when Stage 1 produces zero usable masks. Dome
// mapping on an empty mask set is meaningless, so the run aborts before
// aggregation.
var ErrBatchFatal = errors.New("no photos produced usable masks")

// MaskGenerator produces a sky mask file for one photo file. Implemented by
// sky.Segmenter; faked in tests.
type MaskGenerator interface {
	GenerateMask(photoPath, maskPath string) error
}

// RunStore persists run bookkeeping for external consumers to poll. A nil
// store disables persistence.
type RunStore interface {
	CreateRun(runID string, totalPhotos int, resolutionDegrees float64) error
	RecordSegmentation(runID string, photoIndex int, ok bool, detail string) error
	RecordAggregation(runID string, photoIndex int, ok bool, cov dome.PhotoCoverage) error
	FinishRun(runID string, segmentation, aggregation StageCounts, stats dome.CoverageStats, artifacts []string) error
}

// StageCounts are per-stage batch counters.
type StageCounts struct {
	Total   int
	Success int
	Failed  int
}

// Result summarises one completed mapping run.
type Result struct {
	RunID        string
	Segmentation StageCounts
	Aggregation  StageCounts
	Coverage     dome.CoverageStats
	Artifacts    []string
}

// Config configures a Runner.
type Config struct {
	PhotosDir string
	MasksDir  string
	OutputDir string
	// Workers bounds the Stage 1 pool; zero means DefaultWorkers.
	Workers int
	// Store is optional run bookkeeping.
	Store RunStore
}

// Runner executes mapping batches. The aggregator (and its grid) is owned
// by the runner for the duration of a run: Stage 2 is the only writer.
type Runner struct {
	segmenter  MaskGenerator
	aggregator *dome.Aggregator
	cfg        Config
}

// NewRunner builds a Runner.
func NewRunner(segmenter MaskGenerator, aggregator *dome.Aggregator, cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Runner{segmenter: segmenter, aggregator: aggregator, cfg: cfg}
}

// Run processes the records through all three stages and returns the run
// summary. Per-photo failures are counted, never propagated; the only
// fatal batch condition is zero usable masks after Stage 1. Artifact
// failures abort only the artifact being written.
func (r *Runner) Run(ctx context.Context, records []manifest.PhotoRecord) (*Result, error) {
	runID := uuid.NewString()
	result := &Result{RunID: runID}

	if r.cfg.Store != nil {
		if err := r.cfg.Store.CreateRun(runID, len(records), r.aggregator.Grid().ResolutionDegrees); err != nil {
			log.Printf("[Pipeline] run %s: cannot record run start: %v", runID, err)
		}
	}

	log.Printf("[Pipeline] run %s: %d photos, %d segmentation workers", runID, len(records), r.cfg.Workers)

	if err := os.MkdirAll(r.cfg.MasksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create masks dir: %w", err)
	}

	seg, err := r.segmentAll(ctx, runID, records)
	if err != nil {
		return nil, err
	}
	result.Segmentation = seg
	log.Printf("[Pipeline] run %s: segmentation complete: %d/%d succeeded, %d failed",
		runID, seg.Success, seg.Total, seg.Failed)

	if seg.Success == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, ErrBatchFatal)
	}

	agg, err := r.aggregateAll(ctx, runID, records)
	if err != nil {
		return nil, err
	}
	result.Aggregation = agg
	result.Coverage = r.aggregator.Grid().CoverageStats()
	log.Printf("[Pipeline] run %s: aggregation complete: %d/%d photos folded in, coverage %.1f%% (%d/%d cells, %.1f%% sky)",
		runID, agg.Success, agg.Total, result.Coverage.CoveragePercent,
		result.Coverage.SampledCells, result.Coverage.TotalCells, result.Coverage.SkyPercent)

	artifacts, exportErr := r.export()
	result.Artifacts = artifacts

	if r.cfg.Store != nil {
		if err := r.cfg.Store.FinishRun(runID, result.Segmentation, result.Aggregation, result.Coverage, artifacts); err != nil {
			log.Printf("[Pipeline] run %s: cannot record run completion: %v", runID, err)
		}
	}
	return result, exportErr
}

// segmentAll is Stage 1: an embarrassingly parallel fan-out over a bounded
// worker pool. Each task reads one photo and writes one independent mask
// file; no shared mutable state beyond the counters.
func (r *Runner) segmentAll(ctx context.Context, runID string, records []manifest.PhotoRecord) (StageCounts, error) {
	counts := StageCounts{Total: len(records)}

	jobs := make(chan manifest.PhotoRecord)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				err := r.segmentOne(rec)
				mu.Lock()
				if err != nil {
					counts.Failed++
					log.Printf("[Pipeline] run %s: photo %d segmentation failed: %v", runID, rec.Index, err)
				} else {
					counts.Success++
				}
				mu.Unlock()
				if r.cfg.Store != nil {
					detail := ""
					if err != nil {
						detail = err.Error()
					}
					if serr := r.cfg.Store.RecordSegmentation(runID, rec.Index, err == nil, detail); serr != nil {
						log.Printf("[Pipeline] run %s: cannot record segmentation outcome: %v", runID, serr)
					}
				}
			}
		}()
	}

	var ctxErr error
feed:
	for _, rec := range records {
		select {
		case jobs <- rec:
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return counts, ctxErr
}

// segmentOne runs the segmenter for one record, converting a panic in the
// underlying image processing into a per-photo error so a bad photo never
// takes down its sibling tasks.
func (r *Runner) segmentOne(rec manifest.PhotoRecord) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("photo %d: segmentation panic: %v", rec.Index, p)
		}
	}()
	return r.segmenter.GenerateMask(rec.PhotoFilename(r.cfg.PhotosDir), rec.MaskFilename(r.cfg.MasksDir))
}

// aggregateAll is Stage 2: strictly sequential, records in ascending index
// order, single writer over the shared grid. The accumulation itself is
// commutative, but single-writer execution is what keeps the monotonic
// count and sticky sky invariants trivially safe.
func (r *Runner) aggregateAll(ctx context.Context, runID string, records []manifest.PhotoRecord) (StageCounts, error) {
	counts := StageCounts{Total: len(records)}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return counts, err
		}

		cov, err := r.aggregateOne(rec)
		if err != nil {
			counts.Failed++
			log.Printf("[Pipeline] run %s: photo %d aggregation failed: %v", runID, rec.Index, err)
		} else {
			counts.Success++
		}
		if r.cfg.Store != nil {
			if serr := r.cfg.Store.RecordAggregation(runID, rec.Index, err == nil, cov); serr != nil {
				log.Printf("[Pipeline] run %s: cannot record aggregation outcome: %v", runID, serr)
			}
		}
	}
	return counts, nil
}

func (r *Runner) aggregateOne(rec manifest.PhotoRecord) (dome.PhotoCoverage, error) {
	mask, err := dome.LoadMask(rec.MaskFilename(r.cfg.MasksDir))
	if err != nil {
		return dome.PhotoCoverage{}, err
	}
	return r.aggregator.ProcessPhoto(rec, mask)
}

// export is Stage 3. Each artifact is written independently; a failure
// aborts only that artifact and already-written artifacts stay valid.
func (r *Runner) export() ([]string, error) {
	grid := r.aggregator.Grid()
	camera := r.aggregator.Camera()

	var paths []string
	var errs []error

	if p, err := grid.ExportMapJSON(r.cfg.OutputDir, camera); err != nil {
		errs = append(errs, fmt.Errorf("map json: %w", err))
	} else {
		paths = append(paths, p)
	}
	if p, err := grid.ExportMeshPLY(r.cfg.OutputDir); err != nil {
		errs = append(errs, fmt.Errorf("mesh ply: %w", err))
	} else {
		paths = append(paths, p)
	}
	if p, err := grid.ExportTexture(r.cfg.OutputDir); err != nil {
		errs = append(errs, fmt.Errorf("texture: %w", err))
	} else {
		paths = append(paths, p)
	}

	return paths, errors.Join(errs...)
}
