package charts

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/naitur/dashboard/internal/domain/analytics"
)

func barRange(bins []analytics.Bin) *chart.ContinuousRange {
	top := 1
	for _, b := range bins {
		if b.Count > top {
			top = b.Count
		}
	}
	return &chart.ContinuousRange{Min: 0, Max: float64(top) * 1.1}
}

func bars(bins []analytics.Bin) []chart.Value {
	out := make([]chart.Value, len(bins))
	for i, b := range bins {
		out[i] = chart.Value{
			Label: strconv.Itoa(b.Score),
			Value: float64(b.Count),
			Style: chart.Style{FillColor: Color(0), StrokeColor: Color(0)},
		}
	}
	return out
}

func barWidth(n, width int) int {
	w := width * 6 / 10 / n
	if w < 4 {
		return 4
	}
	return w
}

func barChart(w io.Writer, title string, bins []analytics.Bin, opts Options) error {
	opts = opts.withDefaults()
	if len(bins) == 0 {
		return emptyFigure(w, title, opts)
	}
	bc := chart.BarChart{
		Title:      title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: background(),
		BarWidth:   barWidth(len(bins), opts.Width),
		BarSpacing: 8,
		YAxis: chart.YAxis{
			Name:           "Count",
			Range:          barRange(bins),
			ValueFormatter: func(v interface{}) string { return fmt.Sprintf("%.0f", v) },
		},
		XAxis: chart.Style{},
		Bars:  bars(bins),
	}
	if err := bc.Render(opts.Format.provider(), w); err != nil {
		return fmt.Errorf("render %q: %w", title, err)
	}
	return nil
}

// Histogram draws one bar per score.
func Histogram(w io.Writer, title string, d analytics.Distribution, opts Options) error {
	if d.Empty {
		return emptyFigure(w, title, opts)
	}
	return barChart(w, title, d.Histogram, opts)
}

// ValueCounts draws the scores that occurred, most frequent first.
func ValueCounts(w io.Writer, title string, d analytics.Distribution, opts Options) error {
	if d.Empty {
		return emptyFigure(w, title, opts)
	}
	return barChart(w, title, d.ValueCounts, opts)
}

// BoxPlot draws a single vertical box from Q1 to Q3 with the median and
// whiskers at the minimum and maximum.
func BoxPlot(w io.Writer, title string, d analytics.Distribution, opts Options) error {
	opts = opts.withDefaults()
	if d.Empty {
		return emptyFigure(w, title, opts)
	}

	lo := math.Min(0, float64(d.Min))
	hi := math.Max(4, float64(d.Max))
	col := Color(0)
	line := chart.Style{StrokeColor: col, StrokeWidth: 2}
	min, max := float64(d.Min), float64(d.Max)

	ch := chart.Chart{
		Title:      title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: background(),
		XAxis: chart.XAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: 2},
			Ticks: []chart.Tick{{Value: 0, Label: ""}, {Value: 1, Label: "Score"}, {Value: 2, Label: ""}},
		},
		YAxis: chart.YAxis{
			Name:  "Score",
			Range: &chart.ContinuousRange{Min: lo - 0.5, Max: hi + 0.5},
			Ticks: niceTicks(lo, hi, 1, "%.0f"),
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				XValues: []float64{0.6, 1.4, 1.4, 0.6, 0.6},
				YValues: []float64{d.Q1, d.Q1, d.Q3, d.Q3, d.Q1},
				Style:   chart.Style{StrokeColor: col, StrokeWidth: 2, FillColor: col.WithAlpha(60)},
			},
			chart.ContinuousSeries{
				XValues: []float64{0.6, 1.4},
				YValues: []float64{d.Median, d.Median},
				Style:   chart.Style{StrokeColor: drawing.ColorBlack, StrokeWidth: 3},
			},
			chart.ContinuousSeries{
				XValues: []float64{1, 1, 0.8, 1.2, 1, 1, 1, 0.8, 1.2},
				YValues: []float64{d.Q3, max, max, max, max, d.Q3, min, min, min},
				Style:   line,
			},
			chart.ContinuousSeries{
				XValues: []float64{1, 1},
				YValues: []float64{d.Q1, min},
				Style:   line,
			},
			chart.AnnotationSeries{Annotations: []chart.Value2{
				{XValue: 1.45, YValue: d.Median, Label: fmt.Sprintf("median %.2f", d.Median)},
				{XValue: 1.45, YValue: d.Mean, Label: fmt.Sprintf("mean %.2f", d.Mean)},
			}},
		},
	}
	return render(w, ch, opts)
}

func emptyFigure(w io.Writer, title string, opts Options) error {
	opts = opts.withDefaults()
	ch := chart.Chart{
		Title:      title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: background(),
		XAxis:      chart.XAxis{Range: &chart.ContinuousRange{Min: 0, Max: 4}, Ticks: []chart.Tick{{Value: 0}, {Value: 4}}},
		YAxis:      chart.YAxis{Range: &chart.ContinuousRange{Min: 0, Max: 1}, Ticks: []chart.Tick{{Value: 0}, {Value: 1}}},
		Series:     []chart.Series{emptySeries(2, 0.5)},
	}
	return render(w, ch, opts)
}
