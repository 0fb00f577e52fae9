package charts

import (
	"fmt"
	"io"
	"math"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/naitur/dashboard/internal/domain/analytics"
	"github.com/naitur/dashboard/internal/domain/tracking"
)

// Overlays are the optional layers of a trend chart.
type Overlays struct {
	Variance    bool
	Counts      bool
	Percentages bool
}

const (
	capHalfWidth    = 0.06
	annotationShift = 3.0
)

func timePointAxis() chart.XAxis {
	ticks := make([]chart.Tick, len(tracking.TimePoints))
	for i, tp := range tracking.TimePoints {
		ticks[i] = chart.Tick{Value: float64(i), Label: string(tp)}
	}
	return chart.XAxis{
		Name:  "Time Point",
		Range: &chart.ContinuousRange{Min: -0.25, Max: float64(len(tracking.TimePoints)-1) + 0.25},
		Ticks: ticks,
	}
}

// PercentTrend draws one line per series of average percentage against
// time point, with optional standard deviation bars and count or
// percentage labels.
func PercentTrend(w io.Writer, title string, series []analytics.Series, ov Overlays, opts Options) error {
	opts = opts.withDefaults()

	ymin, ymax := 0.0, 100.0
	var out []chart.Series
	var labels []chart.Value2

	for i, s := range series {
		if len(s.Points) == 0 {
			continue
		}
		col := Color(i)
		xs := make([]float64, len(s.Points))
		ys := make([]float64, len(s.Points))
		for j, p := range s.Points {
			xs[j] = float64(p.TimePoint.Index())
			ys[j] = p.Percent
		}
		out = append(out, chart.ContinuousSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: col, StrokeWidth: 2, DotColor: col, DotWidth: 4},
		})

		if ov.Variance {
			vx, vy := errorBars(s.Points)
			for _, p := range s.Points {
				ymax = math.Max(ymax, p.Percent+p.StdDevPercent)
				ymin = math.Min(ymin, p.Percent-p.StdDevPercent)
			}
			out = append(out, chart.ContinuousSeries{
				Name:    s.Name + " (Variance)",
				XValues: vx,
				YValues: vy,
				Style:   chart.Style{StrokeColor: col.WithAlpha(160), StrokeWidth: 1, StrokeDashArray: []float64{4, 2}},
			})
		}

		for _, p := range s.Points {
			x := float64(p.TimePoint.Index())
			if ov.Counts {
				labels = append(labels, chart.Value2{XValue: x, YValue: p.Percent + annotationShift, Label: fmt.Sprintf("N=%d", p.Count)})
			}
			if ov.Percentages {
				labels = append(labels, chart.Value2{XValue: x, YValue: p.Percent - annotationShift, Label: fmt.Sprintf("%.2f%%", p.Percent)})
			}
		}
	}

	ymin = math.Floor(ymin/10) * 10
	ymax = math.Ceil(ymax/10) * 10

	ch := chart.Chart{
		Title:      title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: background(),
		XAxis:      timePointAxis(),
		YAxis: chart.YAxis{
			Name:  "Average Score (%)",
			Range: &chart.ContinuousRange{Min: ymin, Max: ymax},
			Ticks: niceTicks(ymin, ymax, 20, "%.0f"),
		},
	}

	if len(out) == 0 {
		ch.Series = []chart.Series{emptySeries(2, (ymin+ymax)/2)}
		return render(w, ch, opts)
	}
	if len(labels) > 0 {
		out = append(out, chart.AnnotationSeries{Annotations: labels})
	}
	ch.Series = out
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	return render(w, ch, opts)
}

// errorBars traces the mean line with a capped vertical bar of one
// standard deviation either side at every point.
func errorBars(points []analytics.Point) (xs, ys []float64) {
	for _, p := range points {
		x := float64(p.TimePoint.Index())
		hi, lo := p.Percent+p.StdDevPercent, p.Percent-p.StdDevPercent
		xs = append(xs, x, x, x-capHalfWidth, x+capHalfWidth, x, x, x-capHalfWidth, x+capHalfWidth, x, x)
		ys = append(ys, p.Percent, hi, hi, hi, hi, lo, lo, lo, lo, p.Percent)
	}
	return xs, ys
}

// MeanByTimePoint draws grouped bars of the raw average score, one colour
// per series, grouped by time point.
func MeanByTimePoint(w io.Writer, title string, series []analytics.Series, opts Options) error {
	opts = opts.withDefaults()

	n := 0
	for _, s := range series {
		if len(s.Points) > 0 {
			n++
		}
	}

	ch := chart.Chart{
		Title:      title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: background(),
		XAxis:      timePointAxis(),
		YAxis: chart.YAxis{
			Name:  "Average Score",
			Range: &chart.ContinuousRange{Min: 0, Max: tracking.MaxScore},
			Ticks: niceTicks(0, tracking.MaxScore, 1, "%.0f"),
		},
	}
	if n == 0 {
		ch.Series = []chart.Series{emptySeries(2, tracking.MaxScore/2.0)}
		return render(w, ch, opts)
	}

	// Bars of one group share 0.7 of the unit between time points.
	width := 0.7 / float64(n)
	slot := 0
	for i, s := range series {
		if len(s.Points) == 0 {
			continue
		}
		col := Color(i)
		var xs, ys []float64
		for _, p := range s.Points {
			left := float64(p.TimePoint.Index()) - 0.35 + float64(slot)*width
			right := left + width*0.9
			xs = append(xs, left, left, right, right)
			ys = append(ys, 0, p.Mean, p.Mean, 0)
		}
		ch.Series = append(ch.Series, chart.ContinuousSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: col, StrokeWidth: 1, FillColor: col.WithAlpha(200)},
		})
		slot++
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	return render(w, ch, opts)
}
