package dashboard

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/naitur/dashboard/internal/domain/analytics"
	"github.com/naitur/dashboard/internal/domain/dataset"
	"github.com/naitur/dashboard/internal/platform/charts"
)

type chartFunc func(w io.Writer, s *dataset.Snapshot, o ViewOptions, opts charts.Options) error

// chartRegistry maps an image name to its renderer. Every renderer reads
// the same query parameters as the page that links to it.
var chartRegistry = map[string]chartFunc{
	"form-trend":     formTrendChart,
	"protocol-trend": protocolTrendChart,
	"protocol-means": protocolMeansChart,
	"histogram":      distributionChart(charts.Histogram),
	"box":            distributionChart(charts.BoxPlot),
	"value-counts":   distributionChart(charts.ValueCounts),
}

// chartFilter narrows observations to the client, form and multi-select
// parameters of the request.
func chartFilter(o ViewOptions) dataset.Filter {
	f := dataset.Filter{Forms: o.Forms, Protocols: o.Protocols}
	if o.Client > 0 {
		f.Clients = dataset.Only(o.Client)
	}
	if o.Form > 0 {
		f.Forms = dataset.Only(o.Form)
	}
	return f
}

func chartTitle(s *dataset.Snapshot, o ViewOptions, title string) string {
	if c, ok := s.Client(o.Client); ok {
		return title + " for " + c.Name
	}
	if f, ok := s.Form(o.Form); ok {
		return title + ": " + f.Name
	}
	return title
}

func formTrendChart(w io.Writer, s *dataset.Snapshot, o ViewOptions, opts charts.Options) error {
	series := analytics.Trend(s.Filter(chartFilter(o)), analytics.ByForm, s.FormNames())
	return charts.PercentTrend(w, chartTitle(s, o, "Form Responses Over Time"), series, o.Overlays(), opts)
}

func protocolTrendChart(w io.Writer, s *dataset.Snapshot, o ViewOptions, opts charts.Options) error {
	series := analytics.Trend(s.Filter(chartFilter(o)), analytics.ByProtocol, s.ProtocolNames())
	return charts.PercentTrend(w, chartTitle(s, o, "Protocol Responses Over Time"), series, o.Overlays(), opts)
}

func protocolMeansChart(w io.Writer, s *dataset.Snapshot, o ViewOptions, opts charts.Options) error {
	series := analytics.Trend(s.Filter(chartFilter(o)), analytics.ByProtocol, s.ProtocolNames())
	return charts.MeanByTimePoint(w, "Average Score by Protocol and Time Point", series, opts)
}

func distributionChart(draw func(io.Writer, string, analytics.Distribution, charts.Options) error) chartFunc {
	return func(w io.Writer, s *dataset.Snapshot, o ViewOptions, opts charts.Options) error {
		d := analytics.Describe(analytics.Scores(s.Filter(chartFilter(o))))
		return draw(w, chartTitle(s, o, "Response Distribution"), d, opts)
	}
}

// Chart renders GET /charts/<name>.<png|svg>.
func (h *Handler) Chart(c echo.Context) error {
	file := c.Param("file")
	dot := strings.LastIndexByte(file, '.')
	if dot <= 0 {
		return echo.NewHTTPError(http.StatusNotFound, "chart not found")
	}
	name, ext := file[:dot], file[dot+1:]

	draw, ok := chartRegistry[name]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "chart not found")
	}
	format, err := charts.ParseFormat(ext)
	if err != nil || ext == "" {
		return echo.NewHTTPError(http.StatusNotFound, "chart not found")
	}

	o, err := parseOptions(c)
	if err != nil {
		return err
	}
	s, err := h.snapshot(c)
	if err != nil {
		return err
	}

	opts := o.ChartOptions(h.charts)
	opts.Format = format

	var buf bytes.Buffer
	if err := draw(&buf, s, o, opts); err != nil {
		h.logger.Error().Err(err).Str("chart", name).Msg("render chart")
		return echo.NewHTTPError(http.StatusInternalServerError, "render chart")
	}
	return c.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
}
