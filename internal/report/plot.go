// Package report renders assimilation results: PNG/SVG perimeter overlays
// with gonum/plot and an HTML diagnostics page with go-echarts.
package report

import (
	"fmt"
	"image/color"

	"github.com/banshee-data/firefront/internal/perimeter"
	"github.com/paulmach/orb"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	priorColor       = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	observationColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	analysisColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
)

// Overlay is everything drawn for one assimilation step. Empty perimeters
// are skipped.
type Overlay struct {
	Title string
	// Extent fixes the plotted area so a run's step plots share axes;
	// nil fits the axes to the data.
	Extent      *orb.Bound
	Prior       perimeter.Perimeter
	Members     []perimeter.Perimeter
	Observation perimeter.Perimeter
	Analysis    perimeter.Perimeter
}

// SaveStepPlot draws o and writes it to path; the extension picks the
// format (.png, .svg, .pdf).
func SaveStepPlot(path string, o Overlay) error {
	p := plot.New()
	p.Title.Text = o.Title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	colors := generateColors(len(o.Members))
	for i, m := range o.Members {
		line, err := ringLine(m)
		if err != nil {
			return fmt.Errorf("member %d: %w", i, err)
		}
		c := colors[i].(color.RGBA)
		c.A = 90
		line.Color = c
		line.Width = vg.Points(0.5)
		p.Add(line)
	}
	if len(o.Members) > 0 {
		p.Legend.Add(fmt.Sprintf("forecast members (%d)", len(o.Members)))
	}

	layers := []struct {
		label string
		ring  perimeter.Perimeter
		color color.Color
		width float64
		dash  bool
	}{
		{"prior", o.Prior, priorColor, 1, true},
		{"observation", o.Observation, observationColor, 1.5, false},
		{"analysis", o.Analysis, analysisColor, 2, false},
	}
	for _, l := range layers {
		if len(l.ring) == 0 {
			continue
		}
		line, err := ringLine(l.ring)
		if err != nil {
			return fmt.Errorf("%s: %w", l.label, err)
		}
		line.Color = l.color
		line.Width = vg.Points(l.width)
		if l.dash {
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		}
		p.Add(line)
		p.Legend.Add(l.label, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	if o.Extent != nil {
		p.X.Min, p.X.Max = o.Extent.Min[0], o.Extent.Max[0]
		p.Y.Min, p.Y.Max = o.Extent.Min[1], o.Extent.Max[1]
	}
	equalAxes(p)

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save step plot: %w", err)
	}
	return nil
}

// SaveTrajectoryPlot draws the track of every vertex across a sequence of
// perimeters after chaining them with nearest-start alignment.
func SaveTrajectoryPlot(path, title string, sequence []perimeter.Perimeter) error {
	aligned, _, err := perimeter.AlignSequential(sequence)
	if err != nil {
		return err
	}
	tracks, err := perimeter.Trajectories(aligned)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	colors := generateColors(len(tracks))
	for v, track := range tracks {
		pts := make(plotter.XYs, len(track))
		for i, pt := range track {
			pts[i] = plotter.XY{X: pt[0], Y: pt[1]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("vertex %d: %w", v, err)
		}
		line.Color = colors[v]
		line.Width = vg.Points(1)
		p.Add(line)
	}
	for i, a := range aligned {
		line, err := ringLine(a)
		if err != nil {
			return fmt.Errorf("perimeter %d: %w", i, err)
		}
		line.Color = priorColor
		line.Width = vg.Points(0.5)
		p.Add(line)
	}
	equalAxes(p)

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save trajectory plot: %w", err)
	}
	return nil
}

// ringLine returns a closed polyline through the perimeter's vertices.
func ringLine(r perimeter.Perimeter) (*plotter.Line, error) {
	ring := r.Ring()
	pts := make(plotter.XYs, len(ring))
	for i, pt := range ring {
		pts[i] = plotter.XY{X: pt[0], Y: pt[1]}
	}
	return plotter.NewLine(pts)
}

// equalAxes widens the shorter axis so that metres are square on a square
// canvas.
func equalAxes(p *plot.Plot) {
	w := p.X.Max - p.X.Min
	h := p.Y.Max - p.Y.Min
	if w > h {
		mid := (p.Y.Max + p.Y.Min) / 2
		p.Y.Min, p.Y.Max = mid-w/2, mid+w/2
	} else {
		mid := (p.X.Max + p.X.Min) / 2
		p.X.Min, p.X.Max = mid-h/2, mid+h/2
	}
}

// generateColors creates a palette of n distinct colors.
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

// hslToRGB converts HSL in [0, 1] to 8-bit RGB.
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
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
