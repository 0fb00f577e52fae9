package dashboard

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/naitur/dashboard/internal/domain/analytics"
	"github.com/naitur/dashboard/internal/domain/dataset"
	"github.com/naitur/dashboard/internal/domain/export"
	"github.com/naitur/dashboard/internal/domain/tracking"
	"github.com/naitur/dashboard/internal/platform/db"
	"github.com/naitur/dashboard/internal/platform/reporting"
)

const previewRows = 20

// page parses the view options, loads the snapshot and renders the named
// template with the model built by build. A store failure renders the page
// shell with the unavailable message and a 503.
func (h *Handler) page(c echo.Context, name, title string, build func(*dataset.Snapshot, ViewOptions) (interface{}, error)) error {
	o, err := parseOptions(c)
	if err != nil {
		return err
	}
	s, err := h.snapshot(c)
	if err != nil {
		v := newView(c, title, o, nil)
		v.Error = StoreUnavailable
		return c.Render(http.StatusServiceUnavailable, name, v)
	}
	data, err := build(s, o)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, name, newView(c, title, o, data))
}

type overviewPage struct {
	Opts           ViewOptions
	Summary        analytics.Summary
	Forms          []tracking.Form
	Protocols      []tracking.Protocol
	FormChart      string
	ProtocolChart  string
	FormsEmpty     bool
	ProtocolsEmpty bool
}

func (h *Handler) Overview(c echo.Context) error {
	return h.page(c, "overview", "Overview", func(s *dataset.Snapshot, o ViewOptions) (interface{}, error) {
		fq := url.Values{}
		encodeFilter(fq, "forms", o.Forms)
		encodeOverlays(fq, o.Overlays())

		pq := url.Values{}
		encodeFilter(pq, "protocols", o.Protocols)
		encodeOverlays(pq, o.Overlays())

		return overviewPage{
			Opts:           o,
			Summary:        analytics.Summarize(s),
			Forms:          s.Forms,
			Protocols:      s.Protocols,
			FormChart:      chartURL("form-trend", o, fq),
			ProtocolChart:  chartURL("protocol-trend", o, pq),
			FormsEmpty:     len(s.Filter(dataset.Filter{Forms: o.Forms})) == 0,
			ProtocolsEmpty: len(s.Filter(dataset.Filter{Protocols: o.Protocols})) == 0,
		}, nil
	})
}

type distributionPage struct {
	Opts           ViewOptions
	Forms          []tracking.Form
	Form           *tracking.Form
	ShowHistogram  bool
	ShowBox        bool
	ShowBars       bool
	ShowStats      bool
	Dist           analytics.Distribution
	Reliability    analytics.Reliability
	HistogramChart string
	BoxChart       string
	BarsChart      string
}

func (h *Handler) Distribution(c echo.Context) error {
	return h.page(c, "distribution", "Form Response Distribution", func(s *dataset.Snapshot, o ViewOptions) (interface{}, error) {
		p := distributionPage{Opts: o, Forms: s.Forms}
		p.ShowHistogram, p.ShowBox, p.ShowBars, p.ShowStats = o.DistributionToggles()
		if o.Form == 0 {
			return p, nil
		}

		form, ok := s.Form(o.Form)
		if !ok {
			return nil, echo.NewHTTPError(http.StatusNotFound, "form not found")
		}
		p.Form = form

		obs := s.Filter(dataset.Filter{Forms: dataset.Only(form.ID)})
		p.Dist = analytics.Describe(analytics.Scores(obs))
		p.Reliability = analytics.FormReliability(obs, form.ID, s.FormQuestionIDs(form.ID), tracking.Baseline)

		q := url.Values{"form": {strconv.FormatInt(form.ID, 10)}}
		p.HistogramChart = chartURL("histogram", o, q)
		p.BoxChart = chartURL("box", o, q)
		p.BarsChart = chartURL("value-counts", o, q)
		return p, nil
	})
}

type clientPage struct {
	Opts           ViewOptions
	Clients        []tracking.Client
	Client         *tracking.Client
	Protocols      []tracking.Protocol
	Forms          []tracking.Form
	ProtocolChart  string
	FormChart      string
	HistogramChart string
	BoxChart       string
	Dist           analytics.Distribution
}

// clientEntities lists the protocols and forms a client has answers for.
func clientEntities(s *dataset.Snapshot, clientID int64) ([]tracking.Protocol, []tracking.Form) {
	protocolIDs := make(map[int64]bool)
	formIDs := make(map[int64]bool)
	for _, ob := range s.Filter(dataset.Filter{Clients: dataset.Only(clientID)}) {
		protocolIDs[ob.ProtocolID] = true
		formIDs[ob.FormID] = true
	}

	var protocols []tracking.Protocol
	for _, p := range s.Protocols {
		if protocolIDs[p.ID] {
			protocols = append(protocols, p)
		}
	}
	var forms []tracking.Form
	for _, f := range s.Forms {
		if formIDs[f.ID] {
			forms = append(forms, f)
		}
	}
	return protocols, forms
}

func (h *Handler) ClientProgress(c echo.Context) error {
	return h.page(c, "clients", "Client Progress Over Time", func(s *dataset.Snapshot, o ViewOptions) (interface{}, error) {
		p := clientPage{Opts: o, Clients: s.Clients}
		if o.Client == 0 {
			return p, nil
		}

		client, ok := s.Client(o.Client)
		if !ok {
			return nil, echo.NewHTTPError(http.StatusNotFound, "client not found")
		}
		p.Client = client
		p.Protocols, p.Forms = clientEntities(s, client.ID)

		id := strconv.FormatInt(client.ID, 10)

		pq := url.Values{"client": {id}}
		encodeFilter(pq, "protocols", o.Protocols)
		encodeOverlays(pq, o.ProtocolOverlays())
		p.ProtocolChart = chartURL("protocol-trend", o, pq)

		fq := url.Values{"client": {id}}
		encodeFilter(fq, "forms", o.Forms)
		encodeOverlays(fq, o.FormOverlays())
		p.FormChart = chartURL("form-trend", o, fq)

		dq := url.Values{"client": {id}}
		encodeFilter(dq, "protocols", o.Protocols)
		p.HistogramChart = chartURL("histogram", o, dq)
		p.BoxChart = chartURL("box", o, dq)

		obs := s.Filter(dataset.Filter{Clients: dataset.Only(client.ID), Protocols: o.Protocols})
		p.Dist = analytics.Describe(analytics.Scores(obs))
		return p, nil
	})
}

type effectCell struct {
	Has   bool
	Mean  float64
	Count int
}

type effectRow struct {
	Name  string
	Cells []effectCell
}

type protocolPage struct {
	Opts       ViewOptions
	Protocols  []tracking.Protocol
	TimePoints []tracking.TimePoint
	Rows       []effectRow
	Chart      string
}

// effectRows lays series out as one row per series and one cell per time
// point.
func effectRows(series []analytics.Series) []effectRow {
	rows := make([]effectRow, len(series))
	for i, s := range series {
		cells := make([]effectCell, len(tracking.TimePoints))
		for _, pt := range s.Points {
			cells[pt.TimePoint.Index()] = effectCell{Has: true, Mean: pt.Mean, Count: pt.Count}
		}
		rows[i] = effectRow{Name: s.Name, Cells: cells}
	}
	return rows
}

func (h *Handler) ProtocolEffectiveness(c echo.Context) error {
	return h.page(c, "protocols", "Protocol Effectiveness", func(s *dataset.Snapshot, o ViewOptions) (interface{}, error) {
		obs := s.Filter(dataset.Filter{Protocols: o.Protocols})
		q := url.Values{}
		encodeFilter(q, "protocols", o.Protocols)
		return protocolPage{
			Opts:       o,
			Protocols:  s.Protocols,
			TimePoints: tracking.TimePoints,
			Rows:       effectRows(analytics.Trend(obs, analytics.ByProtocol, s.ProtocolNames())),
			Chart:      chartURL("protocol-means", o, q),
		}, nil
	})
}

type integrationPage struct {
	Backend      string
	Relations    []reporting.RelationCount
	Migrations   []db.MigrationStatus
	StoreError   string
	Version      string
	LoadedAt     time.Time
	Observations int
	Skipped      int
	Summary      analytics.Summary
}

func (h *Handler) DataIntegration(c echo.Context) error {
	return h.page(c, "integration", "Data Integration", func(s *dataset.Snapshot, o ViewOptions) (interface{}, error) {
		p := integrationPage{
			Backend:      "snapshot only",
			Version:      string(s.Version),
			LoadedAt:     s.LoadedAt,
			Observations: len(s.Observations),
			Skipped:      s.Skipped,
			Summary:      analytics.Summarize(s),
		}
		if h.store == nil {
			return p, nil
		}

		ctx := c.Request().Context()
		p.Backend = string(h.store.Dialect())
		counts, err := reporting.RelationCounts(ctx, h.store)
		if err != nil {
			h.logger.Warn().Err(err).Msg("relation counts")
			p.StoreError = StoreUnavailable
			return p, nil
		}
		p.Relations = counts

		statuses, err := db.NewMigrator(h.store, nil).Status(ctx)
		if err != nil {
			h.logger.Warn().Err(err).Msg("migration status")
			p.StoreError = StoreUnavailable
			return p, nil
		}
		p.Migrations = statuses
		return p, nil
	})
}

type exportPage struct {
	Opts         ViewOptions
	Clients      []tracking.Client
	Client       *tracking.Client
	AllColumns   []string
	Selected     []string
	DownloadURL  string
	Header       []string
	Preview      [][]string
	TotalRows    int
	Protocols    []tracking.Protocol
	ReportCharts []string
	PDFURL       string
	NoColumns    bool
}

func (h *Handler) DataExport(c echo.Context) error {
	return h.page(c, "export", "Data Export", func(s *dataset.Snapshot, o ViewOptions) (interface{}, error) {
		selected := o.Columns
		if selected == nil {
			selected = export.DefaultColumns()
		}
		cols, err := export.LookupColumns(selected)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		p := exportPage{
			Opts:       o,
			Clients:    s.Clients,
			AllColumns: export.Labels(),
			Selected:   selected,
			Protocols:  s.Protocols,
			NoColumns:  len(cols) == 0,
		}
		for _, col := range cols {
			p.Header = append(p.Header, col.Label)
		}

		if o.Client > 0 {
			client, ok := s.Client(o.Client)
			if !ok {
				return nil, echo.NewHTTPError(http.StatusNotFound, "client not found")
			}
			p.Client = client

			if !p.NoColumns {
				rows, err := export.ClientRows(s, client.ID)
				if err != nil {
					return nil, err
				}
				p.TotalRows = len(rows)
				for i, r := range rows {
					if i == previewRows {
						break
					}
					record := make([]string, len(cols))
					for j, col := range cols {
						record[j] = col.Value(r)
					}
					p.Preview = append(p.Preview, record)
				}

				dq := url.Values{"client": {strconv.FormatInt(client.ID, 10)}}
				for _, label := range selected {
					dq.Add("columns", label)
				}
				p.DownloadURL = "/export/download?" + dq.Encode()
			}
		}

		switch export.ReportType(o.Report) {
		case export.ProtocolEfficacy:
			q := url.Values{}
			encodeFilter(q, "protocols", o.Protocols)
			p.ReportCharts = []string{chartURL("protocol-trend", o, q)}
			p.PDFURL = "/export/report.pdf?report=" + o.Report
		case export.ClientReport:
			if p.Client != nil {
				q := url.Values{"client": {strconv.FormatInt(p.Client.ID, 10)}}
				p.ReportCharts = []string{chartURL("form-trend", o, q), chartURL("protocol-trend", o, q)}
				p.PDFURL = "/export/report.pdf?report=" + o.Report
			}
		}
		return p, nil
	})
}

// DownloadCSV streams the selected client's rows as CSV.
func (h *Handler) DownloadCSV(c echo.Context) error {
	o, err := parseOptions(c)
	if err != nil {
		return err
	}
	if o.Client == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "client is required")
	}
	return h.writeClientCSV(c, o.Client, o.Columns)
}

func (h *Handler) writeClientCSV(c echo.Context, clientID int64, columns []string) error {
	if columns != nil && len(columns) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, export.ErrNoColumns.Error())
	}
	if _, err := export.LookupColumns(columns); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.snapshot(c)
	if err != nil {
		return err
	}
	client, ok := s.Client(clientID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "client not found")
	}
	rows, err := export.ClientRows(s, clientID)
	if err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "client not found")
		}
		return err
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition,
		`attachment; filename="`+export.FileName(client.Name)+`"`)
	res.WriteHeader(http.StatusOK)
	return export.WriteCSV(res, rows, columns)
}

// ReportPDF answers PDF report requests, which are not built yet.
func (h *Handler) ReportPDF(c echo.Context) error {
	return echo.NewHTTPError(http.StatusNotImplemented, export.ErrPDFNotImplemented.Error())
}
