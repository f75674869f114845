package monitor

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/mocap.bridge/internal/publish"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

var axisNames = [3]string{"x", "y", "z"}

var axisColors = [3]color.RGBA{
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
}

// traceSeconds returns each pose's time in seconds relative to the first.
func traceSeconds(trace []publish.PoseMessage) []float64 {
	out := make([]float64, len(trace))
	if len(trace) == 0 {
		return out
	}
	t0 := trace[0].Timestamp
	for i, m := range trace {
		out[i] = float64(m.Timestamp-t0) / 1e9
	}
	return out
}

// renderVelocityChart writes an HTML line chart of per-axis velocity.
func renderVelocityChart(w io.Writer, serial string, trace []publish.PoseMessage) error {
	secs := traceSeconds(trace)
	x := make([]string, len(trace))
	series := [3][]opts.LineData{}
	for i, m := range trace {
		x[i] = fmt.Sprintf("%.3f", secs[i])
		for a := 0; a < 3; a++ {
			series[a] = append(series[a], opts.LineData{Value: m.Velocity[a]})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tracker velocity", Width: "100%", Height: "640px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Tracker velocity", Subtitle: fmt.Sprintf("serial=%s poses=%d", serial, len(trace))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "m/s"}),
	)
	line.SetXAxis(x)
	for a := 0; a < 3; a++ {
		line.AddSeries("v"+axisNames[a], series[a], charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// RenderTracePlot writes a PNG of position against time. axes selects any of
// "x", "y" and "z"; empty means all three.
func RenderTracePlot(w io.Writer, serial, axes string, trace []publish.PoseMessage) error {
	if axes == "" {
		axes = "xyz"
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s position", serial)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Position (m)"
	p.Add(plotter.NewGrid())

	secs := traceSeconds(trace)
	for a, name := range axisNames {
		if !strings.Contains(axes, name) {
			continue
		}
		pts := make(plotter.XYs, len(trace))
		for i, m := range trace {
			pts[i] = plotter.XY{X: secs[i], Y: m.Position[a]}
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build %s line: %w", name, err)
		}
		l.Width = vg.Points(1)
		l.Color = axisColors[a]
		p.Add(l)
		p.Legend.Add(name, l)
	}

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
