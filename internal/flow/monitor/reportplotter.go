package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/jykim94/SceneFlowZoo/internal/flow"
	"github.com/jykim94/SceneFlowZoo/internal/security"
	"github.com/jykim94/SceneFlowZoo/internal/units"
)

// ReportPlotter writes PNG plots for reports, for runs on headless
// cluster nodes where the web dashboard is not reachable.
type ReportPlotter struct {
	outputDir  string
	speedUnits string
}

// NewReportPlotter creates a plotter writing into outputDir.
func NewReportPlotter(outputDir, speedUnits string) *ReportPlotter {
	if !units.IsValid(speedUnits) {
		speedUnits = units.MPS
	}
	return &ReportPlotter{outputDir: outputDir, speedUnits: speedUnits}
}

// PlotReport writes one PNG per report: mean endpoint error against
// speed bucket, one line per category with samples. Returns the file
// path written.
func (rp *ReportPlotter) PlotReport(report *flow.Report) (string, error) {
	if err := os.MkdirAll(rp.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	speedBuckets, err := flow.NewBucketSet(report.SpeedBucketSplits)
	if err != nil {
		return "", fmt.Errorf("bad bucket splits in report: %w", err)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s epoch %d", report.ConfigName, report.Epoch)
	p.X.Label.Text = "Speed bucket (" + units.Label(rp.speedUnits) + ")"
	p.Y.Label.Text = "Mean endpoint error (m)"
	p.NominalX(speedLabels(speedBuckets, rp.speedUnits)...)

	colors := generateColors(len(report.Categories))
	for c, cat := range report.Categories {
		means, sampled := categorySpeedMeans(report, c)
		if !sampled {
			continue
		}
		pts := make(plotter.XYs, len(means))
		for s, mean := range means {
			pts[s] = plotter.XY{X: float64(s), Y: mean}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", err
		}
		line.Color = colors[c]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(cat.Name, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(rp.outputDir, fmt.Sprintf("%s_epoch_%03d.png", security.SanitizeFilename(report.ConfigName), report.Epoch))
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save report plot: %w", err)
	}
	return file, nil
}

// PlotHistory writes a PNG of the headline EPE scalars across the given
// reports, which should all belong to one run and be ordered by epoch.
func (rp *ReportPlotter) PlotHistory(configName string, reports []*flow.Report) (string, error) {
	if len(reports) == 0 {
		return "", fmt.Errorf("no reports to plot")
	}
	if err := os.MkdirAll(rp.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	p := plot.New()
	p.Title.Text = configName + " over epochs"
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Mean endpoint error (m)"

	type series struct {
		name string
		get  func(*flow.Report) float64
	}
	lines := []series{
		{"full mover", func(r *flow.Report) float64 { return r.FullMoverEPE }},
		{"full nonmover", func(r *flow.Report) float64 { return r.FullNonmoverEPE }},
		{"close mover", func(r *flow.Report) float64 { return r.CloseMoverEPE }},
		{"close nonmover", func(r *flow.Report) float64 { return r.CloseNonmoverEPE }},
	}
	colors := generateColors(len(lines))
	for i, s := range lines {
		pts := make(plotter.XYs, len(reports))
		for j, rep := range reports {
			pts[j] = plotter.XY{X: float64(rep.Epoch), Y: s.get(rep)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(rp.outputDir, fmt.Sprintf("%s_history.png", security.SanitizeFilename(configName)))
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save history plot: %w", err)
	}
	return file, nil
}

func speedLabels(buckets *flow.BucketSet, speedUnits string) []string {
	labels := make([]string, buckets.Count())
	for s := 0; s < buckets.Count(); s++ {
		lo, hi := buckets.Bounds(s)
		labels[s] = units.FormatSpeedRange(lo, hi, speedUnits)
	}
	return labels
}

// generateColors creates a palette of distinct colors for plot lines.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range).
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
