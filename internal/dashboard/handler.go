package dashboard

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/naitur/dashboard/internal/domain/dataset"
	"github.com/naitur/dashboard/internal/platform/auth"
	"github.com/naitur/dashboard/internal/platform/charts"
	"github.com/naitur/dashboard/internal/platform/db"
	"github.com/naitur/dashboard/internal/platform/middleware"
)

// StoreUnavailable is the one message shown when the store cannot be read.
const StoreUnavailable = "data store unavailable"

type invalidator interface {
	Invalidate()
}

type Handler struct {
	source dataset.Source
	store  db.Store
	charts charts.Options
	logger zerolog.Logger
}

// NewHandler serves pages, charts and the JSON API from source. store is
// optional and only feeds the Data Integration page.
func NewHandler(source dataset.Source, store db.Store, chartOpts charts.Options, logger zerolog.Logger) *Handler {
	return &Handler{source: source, store: store, charts: chartOpts, logger: logger}
}

// RegisterRoutes registers the HTML pages, chart images and CSV download.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusFound, "/overview")
	})
	e.GET("/overview", h.Overview)
	e.GET("/distribution", h.Distribution)
	e.GET("/clients", h.ClientProgress)
	e.GET("/protocols", h.ProtocolEffectiveness)
	e.GET("/integration", h.DataIntegration)
	e.GET("/export", h.DataExport)
	e.GET("/export/download", h.DownloadCSV)
	e.GET("/export/report.pdf", h.ReportPDF)
	e.GET("/charts/:file", h.Chart)
}

// RegisterAPI registers the JSON API on api.
func (h *Handler) RegisterAPI(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleViewer))
	read.GET("/summary", h.GetSummary)
	read.GET("/trends", h.GetTrends)
	read.GET("/clients", h.ListClients)
	read.GET("/clients/:id", h.GetClient)
	read.GET("/clients/:id/export", h.ExportClient)
	read.GET("/forms", h.ListForms)
	read.GET("/protocols", h.ListProtocols)
	read.GET("/distribution", h.GetDistribution)
	read.GET("/reports/:type", h.GetReport)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/cache", h.InvalidateCache)
}

// snapshot fetches the current dataset, mapping any store failure to 503.
func (h *Handler) snapshot(c echo.Context) (*dataset.Snapshot, error) {
	s, err := h.source.Get(c.Request().Context())
	if err != nil {
		h.logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFrom(c)).
			Msg("load dataset")
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, StoreUnavailable)
	}
	return s, nil
}

// InvalidateCache drops the cached snapshot so the next request reloads.
func (h *Handler) InvalidateCache(c echo.Context) error {
	if inv, ok := h.source.(invalidator); ok {
		inv.Invalidate()
		h.logger.Info().
			Str("user", auth.UserIDFromContext(c.Request().Context())).
			Str("request_id", middleware.RequestIDFrom(c)).
			Msg("dataset cache invalidated")
	}
	return c.NoContent(http.StatusNoContent)
}
