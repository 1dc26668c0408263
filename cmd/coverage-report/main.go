// Command coverage-report renders the per-photo mapping coverage of one
// recorded run as an HTML chart: for each photo, the fraction of sampled
// pixels that landed on the dome and the sky fraction of those.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/skyfield-data/obstruction.report/internal/db"
)

var (
	dbPath  = flag.String("db", "mapping_runs.db", "Run bookkeeping database path")
	runID   = flag.String("run", "", "Run ID to report on (empty for the latest run)")
	outPath = flag.String("out", "coverage_report.html", "Output HTML path")
)

func main() {
	flag.Parse()

	store, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open run database: %v", err)
	}
	defer store.Close()

	id := *runID
	if id == "" {
		id, err = store.LatestRunID()
		if err != nil {
			log.Fatalf("failed to find latest run: %v", err)
		}
	}

	rowsData, err := store.RunPhotoCoverage(id)
	if err != nil {
		log.Fatalf("failed to load coverage for run %s: %v", id, err)
	}
	if len(rowsData) == 0 {
		log.Fatalf("run %s has no recorded aggregation outcomes", id)
	}

	var labels []string
	var mapped, skyFrac []opts.LineData
	for _, r := range rowsData {
		labels = append(labels, fmt.Sprintf("%d", r.PhotoIndex))

		mappedPct := 0.0
		if r.PixelsProcessed > 0 {
			mappedPct = 100 * float64(r.PixelsMapped) / float64(r.PixelsProcessed)
		}
		skyPct := 0.0
		if r.PixelsMapped > 0 {
			skyPct = 100 * float64(r.SkyPixels) / float64(r.PixelsMapped)
		}
		mapped = append(mapped, opts.LineData{Value: mappedPct})
		skyFrac = append(skyFrac, opts.LineData{Value: skyPct})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Dome Coverage", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Per-photo dome coverage", Subtitle: fmt.Sprintf("run %s photos=%d", id, len(rowsData))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "photo index"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100, Name: "percent"}),
	)
	line.SetXAxis(labels).
		AddSeries("pixels mapped %", mapped).
		AddSeries("sky fraction %", skyFrac)

	page := components.NewPage()
	page.AddCharts(line)

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *outPath, err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("failed to render report: %v", err)
	}
	log.Printf("coverage report for run %s written to %s (%d photos)", id, *outPath, len(rowsData))
}
