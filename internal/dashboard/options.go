package dashboard

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/naitur/dashboard/internal/domain/dataset"
	"github.com/naitur/dashboard/internal/platform/charts"
)

const (
	LayoutCentered = "centered"
	LayoutWide     = "wide"
)

// Query is the scalar part of a page or chart request. Every view option
// travels in the query string so two requests never share layout state.
type Query struct {
	Layout string `query:"layout" validate:"omitempty,oneof=centered wide"`
	Format string `query:"format" validate:"omitempty,oneof=png svg"`
	Width  int    `query:"width" validate:"omitempty,min=200,max=3000"`
	Height int    `query:"height" validate:"omitempty,min=150,max=2000"`

	Variance    bool `query:"variance"`
	Counts      bool `query:"counts"`
	Percentages bool `query:"percentages"`

	// Client progress shows two trend charts with their own toggles.
	ProtocolVariance    bool `query:"protocol_variance"`
	ProtocolCounts      bool `query:"protocol_counts"`
	ProtocolPercentages bool `query:"protocol_percentages"`
	FormVariance        bool `query:"form_variance"`
	FormCounts          bool `query:"form_counts"`
	FormPercentages     bool `query:"form_percentages"`

	Histogram bool `query:"histogram"`
	Box       bool `query:"box"`
	Bars      bool `query:"bars"`
	Stats     bool `query:"stats"`

	Client    int64  `query:"client" validate:"omitempty,min=1"`
	Form      int64  `query:"form" validate:"omitempty,min=1"`
	Dimension string `query:"dimension" validate:"omitempty,oneof=form protocol client"`
	Report    string `query:"report" validate:"omitempty,oneof=protocol-efficacy client"`
	Output    string `query:"output" validate:"omitempty,oneof=json pdf"`

	// Filtered marks a submitted selector form. Without it an absent
	// multi-select means "all"; with it, an absent one means "none".
	Filtered bool `query:"filtered"`
}

// ViewOptions is a parsed and validated request configuration.
type ViewOptions struct {
	Query
	Forms     dataset.IDFilter
	Protocols dataset.IDFilter
	Columns   []string
}

func (o ViewOptions) Wide() bool { return o.Layout == LayoutWide }

func (o ViewOptions) Overlays() charts.Overlays {
	return charts.Overlays{Variance: o.Variance, Counts: o.Counts, Percentages: o.Percentages}
}

func (o ViewOptions) ProtocolOverlays() charts.Overlays {
	return charts.Overlays{Variance: o.ProtocolVariance, Counts: o.ProtocolCounts, Percentages: o.ProtocolPercentages}
}

func (o ViewOptions) FormOverlays() charts.Overlays {
	return charts.Overlays{Variance: o.FormVariance, Counts: o.FormCounts, Percentages: o.FormPercentages}
}

// DistributionToggles returns which distribution figures to show. Before the
// selector form is first submitted only the histogram is on.
func (o ViewOptions) DistributionToggles() (histogram, box, bars, stats bool) {
	if !o.Filtered {
		return true, false, false, false
	}
	return o.Histogram, o.Box, o.Bars, o.Stats
}

// ChartOptions merges the requested size and format over base.
func (o ViewOptions) ChartOptions(base charts.Options) charts.Options {
	if o.Width > 0 {
		base.Width = o.Width
	}
	if o.Height > 0 {
		base.Height = o.Height
	}
	if o.Format != "" {
		base.Format = charts.Format(o.Format)
	}
	return base
}

// parseOptions binds and validates the query string of c.
func parseOptions(c echo.Context) (ViewOptions, error) {
	var q Query
	if err := c.Bind(&q); err != nil {
		return ViewOptions{}, echo.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}
	if err := c.Validate(&q); err != nil {
		return ViewOptions{}, err
	}

	params := c.QueryParams()
	forms, err := idFilter(params, "forms", q.Filtered)
	if err != nil {
		return ViewOptions{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	protocols, err := idFilter(params, "protocols", q.Filtered)
	if err != nil {
		return ViewOptions{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return ViewOptions{
		Query:     q,
		Forms:     forms,
		Protocols: protocols,
		Columns:   columnParam(params, q.Filtered),
	}, nil
}

// idFilter reads a repeated (or comma separated) id parameter.
func idFilter(params url.Values, name string, filtered bool) (dataset.IDFilter, error) {
	raw, present := params[name]
	if !present && !filtered {
		return dataset.All(), nil
	}
	var ids []int64
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return dataset.IDFilter{}, fmt.Errorf("%s: invalid id %q", name, part)
			}
			ids = append(ids, id)
		}
	}
	return dataset.Only(ids...), nil
}

// columnParam returns nil when no column choice was made. A submitted
// selector form with nothing ticked yields an empty, non-nil selection.
func columnParam(params url.Values, filtered bool) []string {
	cols := listParam(params, "columns")
	if cols != nil {
		return cols
	}
	if _, present := params["columns"]; present || filtered {
		return []string{}
	}
	return nil
}

func listParam(params url.Values, name string) []string {
	var out []string
	for _, v := range params[name] {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// encodeFilter writes f as a repeated parameter. An empty selection is
// written as a single empty value so it is not read back as "all".
func encodeFilter(q url.Values, name string, f dataset.IDFilter) {
	if !f.Restricted() {
		return
	}
	ids := f.IDs()
	if len(ids) == 0 {
		q.Set(name, "")
		return
	}
	for _, id := range ids {
		q.Add(name, strconv.FormatInt(id, 10))
	}
}

func encodeOverlays(q url.Values, ov charts.Overlays) {
	if ov.Variance {
		q.Set("variance", "1")
	}
	if ov.Counts {
		q.Set("counts", "1")
	}
	if ov.Percentages {
		q.Set("percentages", "1")
	}
}

// chartURL builds the image URL of a named chart.
func chartURL(name string, o ViewOptions, q url.Values) string {
	format := o.Format
	if format == "" {
		format = string(charts.PNG)
	}
	u := "/charts/" + name + "." + format
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}
