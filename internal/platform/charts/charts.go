// Package charts renders dashboard figures with go-chart.
package charts

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Format selects the image encoding.
type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
)

// ParseFormat accepts "png" or "svg"; empty means png.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "png":
		return PNG, nil
	case "svg":
		return SVG, nil
	}
	return "", fmt.Errorf("unknown chart format %q", s)
}

// ContentType is the MIME type of f.
func (f Format) ContentType() string {
	if f == SVG {
		return "image/svg+xml"
	}
	return "image/png"
}

func (f Format) provider() chart.RendererProvider {
	if f == SVG {
		return chart.SVG
	}
	return chart.PNG
}

// Options size and encode a figure.
type Options struct {
	Width  int
	Height int
	Format Format
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 900
	}
	if o.Height <= 0 {
		o.Height = 480
	}
	if o.Format == "" {
		o.Format = PNG
	}
	return o
}

// EmptyMessage is drawn on figures whose selection has no data.
const EmptyMessage = "No data for the current selection"

var palette = []string{
	"1f77b4", "ff7f0e", "2ca02c", "d62728", "9467bd",
	"8c564b", "e377c2", "7f7f7f", "bcbd22", "17becf",
}

// Color returns the i-th palette colour, cycling.
func Color(i int) drawing.Color {
	return drawing.ColorFromHex(palette[i%len(palette)])
}

// ColorHex returns the i-th palette colour as #rrggbb for HTML legends.
func ColorHex(i int) string {
	return "#" + palette[i%len(palette)]
}

func background() chart.Style {
	return chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}}
}

// niceTicks returns evenly spaced ticks covering [min, max].
func niceTicks(min, max float64, step float64, format string) []chart.Tick {
	var ticks []chart.Tick
	start := math.Floor(min/step) * step
	for v := start; v <= max+step/2; v += step {
		ticks = append(ticks, chart.Tick{Value: v, Label: fmt.Sprintf(format, v)})
	}
	return ticks
}

// emptySeries is a centred text annotation used when there is nothing to plot.
func emptySeries(x, y float64) chart.Series {
	return chart.AnnotationSeries{
		Annotations: []chart.Value2{{XValue: x, YValue: y, Label: EmptyMessage}},
	}
}

func render(w io.Writer, ch chart.Chart, opts Options) error {
	if err := ch.Render(opts.Format.provider(), w); err != nil {
		return fmt.Errorf("render %q: %w", ch.Title, err)
	}
	return nil
}
