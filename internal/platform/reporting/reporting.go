package reporting

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/naitur/dashboard/internal/platform/auth"
	"github.com/naitur/dashboard/internal/platform/db"
)

// Relations lists every table of the wellness schema in dependency order.
var Relations = []string{
	"protocol",
	"client",
	"form",
	"question",
	"form_question",
	"response",
	"question_response",
	"client_form_response",
	"protocol_form",
}

// MeasureDefinition defines a store measure with its SQL query. Columns
// names the result columns in select order.
type MeasureDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SQL         string   `json:"sql"`
	Columns     []string `json:"columns"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string           `json:"measure_id"`
	MeasureName string           `json:"measure_name"`
	GeneratedAt time.Time        `json:"generated_at"`
	Results     []map[string]any `json:"results"`
}

// RelationCount is the row count of one table.
type RelationCount struct {
	Relation string `json:"relation"`
	Rows     int64  `json:"rows"`
}

func relationCountsSQL() string {
	parts := make([]string, len(Relations))
	for i, r := range Relations {
		parts[i] = fmt.Sprintf("SELECT '%s' AS relation, COUNT(*) AS total FROM %s", r, r)
	}
	return strings.Join(parts, " UNION ALL ")
}

// PredefinedMeasures is the list of available store measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "relation-counts",
		Name:        "Relation Row Counts",
		Description: "Number of rows in each table of the wellness schema",
		SQL:         relationCountsSQL(),
		Columns:     []string{"relation", "total"},
	},
	{
		ID:          "answers-by-time-point",
		Name:        "Answers by Time Point",
		Description: "Number of recorded answers at each assessment time point",
		SQL:         `SELECT time_point, COUNT(*) AS total FROM client_form_response GROUP BY time_point ORDER BY time_point`,
		Columns:     []string{"time_point", "total"},
	},
	{
		ID:          "clients-per-protocol",
		Name:        "Clients per Protocol",
		Description: "Distinct clients with at least one answer under each protocol",
		SQL: `SELECT p.name AS protocol, COUNT(DISTINCT cfr.client_id) AS clients
			FROM protocol p LEFT JOIN client_form_response cfr ON cfr.protocol_id = p.id
			GROUP BY p.id, p.name ORDER BY p.id`,
		Columns: []string{"protocol", "clients"},
	},
	{
		ID:          "questions-per-form",
		Name:        "Questions per Form",
		Description: "Number of questions linked to each form",
		SQL: `SELECT f.name AS form, COUNT(fq.question_id) AS questions
			FROM form f LEFT JOIN form_question fq ON fq.form_id = f.id
			GROUP BY f.id, f.name ORDER BY f.id`,
		Columns: []string{"form", "questions"},
	},
}

// Handler provides HTTP handlers for the store measures API.
type Handler struct {
	store db.Store
}

func NewHandler(store db.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers the measure routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/measures", auth.RequireRole(auth.RoleViewer))
	reportGroup.GET("", h.ListMeasures)
	reportGroup.GET("/:id/evaluate", h.EvaluateMeasure)
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure executes a measure's SQL and returns the results.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	report, err := Evaluate(c.Request().Context(), h.store, *measure)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "data store unavailable")
	}
	return c.JSON(http.StatusOK, report)
}

// Evaluate runs a measure against conn.
func Evaluate(ctx context.Context, conn db.Conn, measure MeasureDefinition) (*MeasureReport, error) {
	results, err := executeSQL(ctx, conn, measure.SQL, measure.Columns)
	if err != nil {
		return nil, fmt.Errorf("evaluate measure %s: %w", measure.ID, err)
	}
	return &MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: time.Now().UTC(),
		Results:     results,
	}, nil
}

// RelationCounts returns the row count of every relation, in Relations order.
func RelationCounts(ctx context.Context, conn db.Conn) ([]RelationCount, error) {
	rows, err := conn.Query(ctx, relationCountsSQL())
	if err != nil {
		return nil, fmt.Errorf("count relations: %w", err)
	}
	defer rows.Close()

	byName := make(map[string]int64, len(Relations))
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan relation count: %w", err)
		}
		byName[name] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	counts := make([]RelationCount, len(Relations))
	for i, r := range Relations {
		counts[i] = RelationCount{Relation: r, Rows: byName[r]}
	}
	return counts, nil
}

// executeSQL runs a query and returns results as a slice of maps keyed by
// columns.
func executeSQL(ctx context.Context, conn db.Conn, query string, columns []string) ([]map[string]any, error) {
	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}
