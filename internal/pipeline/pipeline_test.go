package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfield-data/obstruction.report/internal/dome"
	"github.com/skyfield-data/obstruction.report/internal/manifest"
)

// fakeSegmenter writes uniform grayscale masks sized for the test camera
// instead of running real image processing. Photos listed in fail return an
// error; photos listed in panics panic.
type fakeSegmenter struct {
	camera dome.Camera
	value  uint8
	fail   map[string]bool
	panics map[string]bool
	delay  time.Duration

	mu    sync.Mutex
	calls []string
}

func (f *fakeSegmenter) GenerateMask(photoPath, maskPath string) error {
	f.mu.Lock()
	f.calls = append(f.calls, filepath.Base(photoPath))
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	name := filepath.Base(photoPath)
	if f.panics[name] {
		panic("corrupt image data")
	}
	if f.fail[name] {
		return fmt.Errorf("cannot decode %s", name)
	}

	img := image.NewGray(image.Rect(0, 0, f.camera.Width, f.camera.Height))
	for i := range img.Pix {
		img.Pix[i] = f.value
	}
	out, err := os.Create(maskPath)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (f *fakeSegmenter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testRunner(t *testing.T, seg MaskGenerator, workers int) (*Runner, *dome.Grid) {
	t.Helper()
	grid, err := dome.NewGrid(dome.GridConfig{ResolutionDegrees: 1.0})
	require.NoError(t, err)
	camera := dome.NewCamera(40, 40, 90)
	agg := dome.NewAggregator(grid, camera)

	base := t.TempDir()
	r := NewRunner(seg, agg, Config{
		PhotosDir: filepath.Join(base, "photos"),
		MasksDir:  filepath.Join(base, "masks"),
		OutputDir: filepath.Join(base, "out"),
		Workers:   workers,
	})
	return r, grid
}

func testRecords(n int) []manifest.PhotoRecord {
	recs := make([]manifest.PhotoRecord, n)
	for i := range recs {
		recs[i] = manifest.PhotoRecord{
			Index:    i,
			PhotoURI: fmt.Sprintf("photo_%d.jpg", i),
			Alpha:    0.05 * float64(i),
		}
	}
	return recs
}

func TestRunHappyPath(t *testing.T) {
	camera := dome.NewCamera(40, 40, 90)
	seg := &fakeSegmenter{camera: camera, value: 255}
	r, grid := testRunner(t, seg, 2)

	result, err := r.Run(context.Background(), testRecords(3))
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, StageCounts{Total: 3, Success: 3}, result.Segmentation)
	assert.Equal(t, StageCounts{Total: 3, Success: 3}, result.Aggregation)
	assert.Equal(t, 3, seg.callCount())

	assert.Greater(t, result.Coverage.SampledCells, 0)
	assert.Equal(t, result.Coverage.SampledCells, result.Coverage.SkyCells)

	// All three photos point near the zenith, so the zenith cell saw every
	// one of them.
	assert.Equal(t, uint32(3), grid.Cell(0, 0).Samples)

	require.Len(t, result.Artifacts, 3)
	for _, p := range result.Artifacts {
		_, err := os.Stat(p)
		assert.NoError(t, err, "artifact %s", p)
	}
}

func TestRunBatchFatalWhenNoMasks(t *testing.T) {
	camera := dome.NewCamera(40, 40, 90)
	seg := &fakeSegmenter{
		camera: camera,
		fail:   map[string]bool{"photo_0.jpg": true, "photo_1.jpg": true},
	}
	r, _ := testRunner(t, seg, 2)

	_, err := r.Run(context.Background(), testRecords(2))
	assert.ErrorIs(t, err, ErrBatchFatal)
}

func TestRunTolerantOfPartialFailure(t *testing.T) {
	camera := dome.NewCamera(40, 40, 90)
	seg := &fakeSegmenter{
		camera: camera,
		value:  255,
		fail:   map[string]bool{"photo_1.jpg": true},
	}
	r, _ := testRunner(t, seg, 2)

	result, err := r.Run(context.Background(), testRecords(3))
	require.NoError(t, err)

	assert.Equal(t, StageCounts{Total: 3, Success: 2, Failed: 1}, result.Segmentation)
	// The failed photo has no mask file, so aggregation fails for it too
	// and carries on with the rest.
	assert.Equal(t, StageCounts{Total: 3, Success: 2, Failed: 1}, result.Aggregation)
	assert.Len(t, result.Artifacts, 3)
}

func TestRunSegmentationPanicIsPerPhoto(t *testing.T) {
	camera := dome.NewCamera(40, 40, 90)
	seg := &fakeSegmenter{
		camera: camera,
		value:  200,
		panics: map[string]bool{"photo_2.jpg": true},
	}
	r, _ := testRunner(t, seg, 2)

	result, err := r.Run(context.Background(), testRecords(4))
	require.NoError(t, err)
	assert.Equal(t, StageCounts{Total: 4, Success: 3, Failed: 1}, result.Segmentation)
}

func TestRunCanceledContext(t *testing.T) {
	camera := dome.NewCamera(40, 40, 90)
	seg := &fakeSegmenter{camera: camera, value: 255, delay: 50 * time.Millisecond}
	r, _ := testRunner(t, seg, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.Run(ctx, testRecords(10))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRunnerDefaultsWorkers(t *testing.T) {
	camera := dome.NewCamera(40, 40, 90)
	grid, err := dome.NewGrid(dome.GridConfig{ResolutionDegrees: 1.0})
	require.NoError(t, err)
	r := NewRunner(&fakeSegmenter{camera: camera}, dome.NewAggregator(grid, camera), Config{})
	assert.Equal(t, DefaultWorkers, r.cfg.Workers)
}

// recordingStore captures every bookkeeping call for inspection.
type recordingStore struct {
	mu           sync.Mutex
	created      []string
	segOutcomes  int
	aggOutcomes  int
	finishedRuns int
	artifacts    []string
}

func (s *recordingStore) CreateRun(runID string, totalPhotos int, resolutionDegrees float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, runID)
	return nil
}

func (s *recordingStore) RecordSegmentation(runID string, photoIndex int, ok bool, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segOutcomes++
	return nil
}

func (s *recordingStore) RecordAggregation(runID string, photoIndex int, ok bool, cov dome.PhotoCoverage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggOutcomes++
	return nil
}

func (s *recordingStore) FinishRun(runID string, segmentation, aggregation StageCounts, stats dome.CoverageStats, artifacts []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishedRuns++
	s.artifacts = append(s.artifacts, artifacts...)
	return nil
}

func TestRunRecordsBookkeeping(t *testing.T) {
	camera := dome.NewCamera(40, 40, 90)
	seg := &fakeSegmenter{camera: camera, value: 255}
	store := &recordingStore{}

	grid, err := dome.NewGrid(dome.GridConfig{ResolutionDegrees: 1.0})
	require.NoError(t, err)
	base := t.TempDir()
	r := NewRunner(seg, dome.NewAggregator(grid, camera), Config{
		PhotosDir: filepath.Join(base, "photos"),
		MasksDir:  filepath.Join(base, "masks"),
		OutputDir: filepath.Join(base, "out"),
		Workers:   2,
		Store:     store,
	})

	result, err := r.Run(context.Background(), testRecords(3))
	require.NoError(t, err)

	assert.Equal(t, []string{result.RunID}, store.created)
	assert.Equal(t, 3, store.segOutcomes)
	assert.Equal(t, 3, store.aggOutcomes)
	assert.Equal(t, 1, store.finishedRuns)
	assert.Len(t, store.artifacts, 3)
}
