// Package db records mapping runs in sqlite so external consumers (the
// serving layer, the coverage-report tool) can poll run state and history
// without scraping logs.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/skyfield-data/obstruction.report/internal/dome"
	"github.com/skyfield-data/obstruction.report/internal/pipeline"
)

type DB struct {
	*sql.DB
}

// NewDB opens (and if needed creates) the run bookkeeping database.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = sqlDB.Exec(`
		CREATE TABLE IF NOT EXISTS mapping_runs (
			run_id              TEXT PRIMARY KEY,
			total_photos        BIGINT,
			resolution_degrees  DOUBLE,
			seg_success         BIGINT,
			seg_failed          BIGINT,
			agg_success         BIGINT,
			agg_failed          BIGINT,
			total_cells         BIGINT,
			sampled_cells       BIGINT,
			sky_cells           BIGINT,
			not_sky_cells       BIGINT,
			unsampled_cells     BIGINT,
			coverage_percent    DOUBLE,
			sky_percent         DOUBLE,
			started_at          TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			finished_at         TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS photo_outcomes (
			run_id            TEXT,
			photo_index       BIGINT,
			stage             TEXT,
			success           INTEGER,
			detail            TEXT,
			pixels_processed  BIGINT,
			pixels_mapped     BIGINT,
			sky_pixels        BIGINT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(run_id) REFERENCES mapping_runs(run_id)
		);
		CREATE TABLE IF NOT EXISTS run_artifacts (
			run_id            TEXT,
			path              TEXT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(run_id) REFERENCES mapping_runs(run_id)
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{sqlDB}, nil
}

// CreateRun records the start of a mapping run.
func (db *DB) CreateRun(runID string, totalPhotos int, resolutionDegrees float64) error {
	_, err := db.Exec(
		`INSERT INTO mapping_runs (run_id, total_photos, resolution_degrees) VALUES (?, ?, ?)`,
		runID, totalPhotos, resolutionDegrees,
	)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", runID, err)
	}
	return nil
}

// RecordSegmentation records one photo's Stage 1 outcome.
func (db *DB) RecordSegmentation(runID string, photoIndex int, ok bool, detail string) error {
	_, err := db.Exec(
		`INSERT INTO photo_outcomes (run_id, photo_index, stage, success, detail) VALUES (?, ?, 'segmentation', ?, ?)`,
		runID, photoIndex, boolToInt(ok), detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record segmentation outcome: %w", err)
	}
	return nil
}

// RecordAggregation records one photo's Stage 2 outcome with its coverage
// counters.
func (db *DB) RecordAggregation(runID string, photoIndex int, ok bool, cov dome.PhotoCoverage) error {
	_, err := db.Exec(
		`INSERT INTO photo_outcomes (run_id, photo_index, stage, success, pixels_processed, pixels_mapped, sky_pixels)
		 VALUES (?, ?, 'aggregation', ?, ?, ?, ?)`,
		runID, photoIndex, boolToInt(ok), cov.PixelsProcessed, cov.PixelsMapped, cov.SkyPixels,
	)
	if err != nil {
		return fmt.Errorf("failed to record aggregation outcome: %w", err)
	}
	return nil
}

// FinishRun records the final counters, coverage statistics, and artifact
// paths for a run.
func (db *DB) FinishRun(runID string, segmentation, aggregation pipeline.StageCounts, stats dome.CoverageStats, artifacts []string) error {
	_, err := db.Exec(
		`UPDATE mapping_runs SET
			seg_success = ?, seg_failed = ?,
			agg_success = ?, agg_failed = ?,
			total_cells = ?, sampled_cells = ?, sky_cells = ?, not_sky_cells = ?, unsampled_cells = ?,
			coverage_percent = ?, sky_percent = ?,
			finished_at = CURRENT_TIMESTAMP
		 WHERE run_id = ?`,
		segmentation.Success, segmentation.Failed,
		aggregation.Success, aggregation.Failed,
		stats.TotalCells, stats.SampledCells, stats.SkyCells, stats.NotSkyCells, stats.UnsampledCells,
		stats.CoveragePercent, stats.SkyPercent,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	for _, path := range artifacts {
		if _, err := db.Exec(`INSERT INTO run_artifacts (run_id, path) VALUES (?, ?)`, runID, path); err != nil {
			return fmt.Errorf("failed to record artifact %s: %w", path, err)
		}
	}
	return nil
}

// PhotoCoverageRow is one photo's aggregation counters for a run, as read
// back for reporting.
type PhotoCoverageRow struct {
	PhotoIndex      int
	Success         bool
	PixelsProcessed int
	PixelsMapped    int
	SkyPixels       int
}

// RunPhotoCoverage returns the per-photo aggregation counters for a run in
// photo index order.
func (db *DB) RunPhotoCoverage(runID string) ([]PhotoCoverageRow, error) {
	rows, err := db.Query(
		`SELECT photo_index, success, COALESCE(pixels_processed, 0), COALESCE(pixels_mapped, 0), COALESCE(sky_pixels, 0)
		 FROM photo_outcomes WHERE run_id = ? AND stage = 'aggregation' ORDER BY photo_index`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PhotoCoverageRow
	for rows.Next() {
		var r PhotoCoverageRow
		var success int
		if err := rows.Scan(&r.PhotoIndex, &success, &r.PixelsProcessed, &r.PixelsMapped, &r.SkyPixels); err != nil {
			return nil, err
		}
		r.Success = success != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestRunID returns the most recently started run.
func (db *DB) LatestRunID() (string, error) {
	var id string
	err := db.QueryRow(`SELECT run_id FROM mapping_runs ORDER BY started_at DESC LIMIT 1`).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
