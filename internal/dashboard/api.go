package dashboard

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/naitur/dashboard/internal/domain/analytics"
	"github.com/naitur/dashboard/internal/domain/export"
	"github.com/naitur/dashboard/internal/domain/tracking"
	"github.com/naitur/dashboard/pkg/pagination"
)

type summaryResponse struct {
	analytics.Summary
	Version      tracking.Version `json:"version"`
	LoadedAt     time.Time        `json:"loaded_at"`
	Observations int              `json:"observations"`
	Skipped      int              `json:"skipped"`
}

func (h *Handler) GetSummary(c echo.Context) error {
	s, err := h.snapshot(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summaryResponse{
		Summary:      analytics.Summarize(s),
		Version:      s.Version,
		LoadedAt:     s.LoadedAt,
		Observations: len(s.Observations),
		Skipped:      s.Skipped,
	})
}

type trendResponse struct {
	Dimension analytics.Dimension `json:"dimension"`
	Series    []analytics.Series  `json:"series"`
}

// GetTrends returns per time point statistics grouped by dimension
// (form by default), restricted by client, forms and protocols.
func (h *Handler) GetTrends(c echo.Context) error {
	o, err := parseOptions(c)
	if err != nil {
		return err
	}
	dim := analytics.ByForm
	if o.Dimension != "" {
		if dim, err = analytics.ParseDimension(o.Dimension); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	s, err := h.snapshot(c)
	if err != nil {
		return err
	}

	var names map[int64]string
	switch dim {
	case analytics.ByProtocol:
		names = s.ProtocolNames()
	case analytics.ByClient:
		names = s.ClientNames()
	default:
		names = s.FormNames()
	}

	series := analytics.Trend(s.Filter(chartFilter(o)), dim, names)
	if series == nil {
		series = []analytics.Series{}
	}
	return c.JSON(http.StatusOK, trendResponse{Dimension: dim, Series: series})
}

func (h *Handler) ListClients(c echo.Context) error {
	s, err := h.snapshot(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	total := len(s.Clients)
	start, end := p.Window(total)

	page := append([]tracking.Client{}, s.Clients[start:end]...)
	resp := pagination.NewResponse(page, total, p.Limit, p.Offset)
	resp.Links = p.Links(c.Request().URL.Path, c.QueryParams(), total)
	return c.JSON(http.StatusOK, resp)
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// GetClient returns the client with its trend by form and by protocol.
func (h *Handler) GetClient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	s, err := h.snapshot(c)
	if err != nil {
		return err
	}
	report, err := export.BuildClientProgress(s, id)
	if err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "client not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) ExportClient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	return h.writeClientCSV(c, id, listParam(c.QueryParams(), "columns"))
}

type formResponse struct {
	tracking.Form
	QuestionIDs []int64 `json:"question_ids"`
}

func (h *Handler) ListForms(c echo.Context) error {
	s, err := h.snapshot(c)
	if err != nil {
		return err
	}
	out := make([]formResponse, len(s.Forms))
	for i, f := range s.Forms {
		ids := s.FormQuestionIDs(f.ID)
		if ids == nil {
			ids = []int64{}
		}
		out[i] = formResponse{Form: f, QuestionIDs: ids}
	}
	return c.JSON(http.StatusOK, out)
}

type protocolResponse struct {
	tracking.Protocol
	FormIDs []int64 `json:"form_ids"`
}

func (h *Handler) ListProtocols(c echo.Context) error {
	s, err := h.snapshot(c)
	if err != nil {
		return err
	}
	forms := make(map[int64][]int64)
	for _, pf := range s.ProtocolForms {
		forms[pf.ProtocolID] = append(forms[pf.ProtocolID], pf.FormID)
	}
	out := make([]protocolResponse, len(s.Protocols))
	for i, p := range s.Protocols {
		ids := forms[p.ID]
		if ids == nil {
			ids = []int64{}
		}
		out[i] = protocolResponse{Protocol: p, FormIDs: ids}
	}
	return c.JSON(http.StatusOK, out)
}

type distributionResponse struct {
	analytics.Distribution
	Reliability *analytics.Reliability `json:"reliability,omitempty"`
}

// GetDistribution describes the scores matching the request filters. A
// single form also reports the baseline Cronbach alpha.
func (h *Handler) GetDistribution(c echo.Context) error {
	o, err := parseOptions(c)
	if err != nil {
		return err
	}
	s, err := h.snapshot(c)
	if err != nil {
		return err
	}
	if o.Form > 0 {
		if _, ok := s.Form(o.Form); !ok {
			return echo.NewHTTPError(http.StatusNotFound, "form not found")
		}
	}
	if o.Client > 0 {
		if _, ok := s.Client(o.Client); !ok {
			return echo.NewHTTPError(http.StatusNotFound, "client not found")
		}
	}

	obs := s.Filter(chartFilter(o))
	resp := distributionResponse{Distribution: analytics.Describe(analytics.Scores(obs))}
	if o.Form > 0 {
		r := analytics.FormReliability(obs, o.Form, s.FormQuestionIDs(o.Form), tracking.Baseline)
		resp.Reliability = &r
	}
	return c.JSON(http.StatusOK, resp)
}

// GetReport builds a report preview. output=pdf is refused with 501.
func (h *Handler) GetReport(c echo.Context) error {
	o, err := parseOptions(c)
	if err != nil {
		return err
	}
	if o.Output == "pdf" {
		return echo.NewHTTPError(http.StatusNotImplemented, export.ErrPDFNotImplemented.Error())
	}

	switch export.ReportType(c.Param("type")) {
	case export.ProtocolEfficacy:
		s, err := h.snapshot(c)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, export.BuildProtocolEfficacy(s, o.Protocols))
	case export.ClientReport:
		if o.Client == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "client is required")
		}
		s, err := h.snapshot(c)
		if err != nil {
			return err
		}
		report, err := export.BuildClientProgress(s, o.Client)
		if errors.Is(err, tracking.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "client not found")
		}
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, report)
	}
	return echo.NewHTTPError(http.StatusNotFound, "unknown report type")
}

