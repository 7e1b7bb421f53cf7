package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/firefront/internal/runstore"
)

// StepPoint is one step's row on the diagnostics page.
type StepPoint struct {
	Index            int
	RMS              float64
	AreaDifference   float64
	CentroidDistance float64
	Members          int
	Failed           int
}

// PointsFromRecords converts stored steps for plotting.
func PointsFromRecords(recs []runstore.StepRecord) []StepPoint {
	points := make([]StepPoint, len(recs))
	for i, r := range recs {
		points[i] = StepPoint{
			Index:            r.Index,
			RMS:              r.RMS,
			AreaDifference:   r.AreaDifference,
			CentroidDistance: r.CentroidDistance,
			Members:          r.Members,
			Failed:           r.Failed,
		}
	}
	return points
}

// WriteDiagnostics renders an HTML page with per-step error and failure
// charts for one run.
func WriteDiagnostics(w io.Writer, runID string, points []StepPoint) error {
	if len(points) == 0 {
		return fmt.Errorf("no steps to chart for run %s", runID)
	}

	xAxis := make([]string, len(points))
	rms := make([]opts.LineData, len(points))
	centroid := make([]opts.LineData, len(points))
	area := make([]opts.BarData, len(points))
	failed := make([]opts.BarData, len(points))
	for i, p := range points {
		xAxis[i] = strconv.Itoa(p.Index)
		rms[i] = opts.LineData{Value: p.RMS}
		centroid[i] = opts.LineData{Value: p.CentroidDistance}
		area[i] = opts.BarData{Value: p.AreaDifference}
		failed[i] = opts.BarData{Value: p.Failed}
	}

	errLine := charts.NewLine()
	errLine.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Assimilation diagnostics", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Analysis error", Subtitle: fmt.Sprintf("run %s, %d steps", runID, len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "step"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "metres"}),
	)
	errLine.SetXAxis(xAxis).
		AddSeries("RMS", rms).
		AddSeries("centroid distance", centroid)

	areaBar := charts.NewBar()
	areaBar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Symmetric area difference"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "step"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "m²"}),
	)
	areaBar.SetXAxis(xAxis).AddSeries("area difference", area)

	failBar := charts.NewBar()
	failBar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "300px"}),
		charts.WithTitleOpts(opts.Title{Title: "Failed ensemble members", Subtitle: fmt.Sprintf("of %d", points[0].Members)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "step"}),
	)
	failBar.SetXAxis(xAxis).AddSeries("failed", failed)

	page := components.NewPage()
	page.AddCharts(errLine, areaBar, failBar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("failed to render diagnostics: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// SaveDiagnostics writes the diagnostics page to path.
func SaveDiagnostics(path, runID string, points []StepPoint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteDiagnostics(f, runID, points); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
