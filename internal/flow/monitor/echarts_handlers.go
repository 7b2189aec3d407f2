package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/jykim94/SceneFlowZoo/internal/flow"
	"github.com/jykim94/SceneFlowZoo/internal/httputil"
	"github.com/jykim94/SceneFlowZoo/internal/units"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

var errNoRuns = errors.New("no runs recorded yet")

// handleEPEChart renders a bar chart of mean endpoint error per speed
// bucket, one series per category that has samples.
// Query params:
//   - report_id (optional; defaults to the latest report)
//   - run_id (optional; selects that run's latest report)
func (ws *WebServer) handleEPEChart(w http.ResponseWriter, r *http.Request) {
	report, err := ws.lookupChartReport(r)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	speedBuckets, err := flow.NewBucketSet(report.SpeedBucketSplits)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("bad bucket splits in report: %v", err))
		return
	}

	x := make([]string, speedBuckets.Count())
	for s := 0; s < speedBuckets.Count(); s++ {
		lo, hi := speedBuckets.Bounds(s)
		x[s] = units.FormatSpeedRange(lo, hi, ws.speedUnits)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Mean endpoint error by speed bucket",
			Subtitle: fmt.Sprintf("config=%s epoch=%d created=%s", report.ConfigName, report.Epoch, time.Unix(0, report.CreatedAt).UTC().Format(time.RFC3339)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "30"}),
	)
	bar.SetXAxis(x)

	for c, cat := range report.Categories {
		means, sampled := categorySpeedMeans(report, c)
		if !sampled {
			continue
		}
		data := make([]opts.BarData, len(means))
		for s, mean := range means {
			data[s] = opts.BarData{Value: mean}
		}
		bar.AddSeries(cat.Name, data)
	}

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleHistoryChart renders the headline EPE scalars over the epochs
// of one run as a line chart.
// Query params:
//   - run_id (optional; defaults to the most recent run)
func (ws *WebServer) handleHistoryChart(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		runs, err := ws.runs.List()
		if err != nil || len(runs) == 0 {
			httputil.NotFound(w, errNoRuns.Error())
			return
		}
		runID = runs[0].RunID
	}

	reports, err := ws.reports.ListByRun(runID)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if len(reports) == 0 {
		httputil.NotFound(w, "no reports for run")
		return
	}

	x := make([]string, len(reports))
	series := map[string][]opts.LineData{
		"full mover":     make([]opts.LineData, len(reports)),
		"full nonmover":  make([]opts.LineData, len(reports)),
		"close mover":    make([]opts.LineData, len(reports)),
		"close nonmover": make([]opts.LineData, len(reports)),
	}
	for i, rep := range reports {
		x[i] = fmt.Sprintf("epoch %d", rep.Epoch)
		series["full mover"][i] = opts.LineData{Value: rep.FullMoverEPE}
		series["full nonmover"][i] = opts.LineData{Value: rep.FullNonmoverEPE}
		series["close mover"][i] = opts.LineData{Value: rep.CloseMoverEPE}
		series["close nonmover"][i] = opts.LineData{Value: rep.CloseNonmoverEPE}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Endpoint error over epochs", Subtitle: "run " + runID}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "30"}),
	)
	line.SetXAxis(x)
	for _, name := range []string{"full mover", "full nonmover", "close mover", "close nonmover"} {
		line.AddSeries(name, series[name])
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleDashboard renders a simple dashboard with iframes to the debug
// charts.
func (ws *WebServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Scene Flow Results</title>
  <style>
    body { font-family: sans-serif; margin: 1em; background: #1e1e1e; color: #ddd; }
    iframe { width: 100%; height: 760px; border: 1px solid #444; margin-bottom: 1em; }
    a { color: #6cf; }
  </style>
</head>
<body>
  <h1>Scene Flow Results</h1>
  <p>
    <a href="/api/flow/runs">runs JSON</a> |
    <a href="/debug/tailsql/">tailsql</a>
  </p>
  <iframe src="/debug/charts/epe"></iframe>
  <iframe src="/debug/charts/history"></iframe>
</body>
</html>
`

// categorySpeedMeans computes the mean endpoint error per speed bucket
// for one category index, summed over both proximities and all error
// buckets. The second return is false when the category has no samples.
func categorySpeedMeans(r *flow.Report, cat int) ([]float64, bool) {
	means := make([]float64, r.Dims.SpeedBuckets)
	sampled := false
	for s := 0; s < r.Dims.SpeedBuckets; s++ {
		var sum float64
		var count int64
		for p := 0; p < r.Dims.Proximities; p++ {
			for e := 0; e < r.Dims.ErrorBuckets; e++ {
				idx := r.Dims.Index(p, cat, s, e)
				sum += r.ErrorSum[idx]
				count += r.ErrorCount[idx]
			}
		}
		if count > 0 {
			means[s] = sum / float64(count)
			sampled = true
		}
	}
	for _, m := range means {
		if math.IsNaN(m) {
			return means, false
		}
	}
	return means, sampled
}
