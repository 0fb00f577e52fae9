package dashboard

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naitur/dashboard/internal/domain/dataset"
	"github.com/naitur/dashboard/internal/domain/tracking"
	"github.com/naitur/dashboard/internal/platform/auth"
	"github.com/naitur/dashboard/internal/platform/charts"
	"github.com/naitur/dashboard/internal/platform/db"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func testSnapshot() *dataset.Snapshot {
	t := dataset.Tables{
		Protocols: []tracking.Protocol{
			{ID: 1, Name: "Basic Protocol Template for Group Ceremony"},
			{ID: 2, Name: "Stress Protocol"},
		},
		Clients: []tracking.Client{
			{ID: 1, Name: "Client 1", Email: "client1@example.com"},
			{ID: 2, Name: "Client 2", Email: "client2@example.com"},
		},
		Forms: []tracking.Form{
			{ID: 5, Name: "PTSD Form", Type: "Likert scale"},
			{ID: 6, Name: "Stress Form", Type: "Likert scale"},
		},
		Questions: []tracking.Question{
			{ID: 9, Text: "Nightmares?", Description: "PTSD Question"},
			{ID: 10, Text: "Flashbacks?", Description: "PTSD Question"},
		},
		FormQuestions: []tracking.FormQuestion{{FormID: 5, QuestionID: 9}, {FormID: 5, QuestionID: 10}},
		ProtocolForms: []tracking.ProtocolForm{{ProtocolID: 1, FormID: 5}, {ProtocolID: 2, FormID: 6}},
	}

	answers := []struct {
		client, form, protocol, question int64
		tp                               tracking.TimePoint
		text                             string
	}{
		{1, 5, 1, 9, tracking.Baseline, "4"},
		{1, 5, 1, 10, tracking.Baseline, "3"},
		{2, 5, 1, 9, tracking.Baseline, "2"},
		{2, 5, 1, 10, tracking.Baseline, "2"},
		{1, 5, 1, 9, tracking.OneMonth, "2"},
		{1, 6, 2, 9, tracking.OneMonth, "1"},
		{2, 6, 2, 10, tracking.ThreeMonths, "0"},
	}
	for i, a := range answers {
		id := int64(i + 1)
		t.Responses = append(t.Responses, tracking.Response{ID: id, Text: a.text})
		t.Facts = append(t.Facts, tracking.ClientFormResponse{
			ID: id, ClientID: a.client, FormID: a.form, ProtocolID: a.protocol,
			QuestionID: a.question, ResponseID: id, TimePoint: a.tp,
		})
	}
	return dataset.NewSnapshot(t, "test-version", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
}

type countingSource struct {
	dataset.Static
	invalidations int
}

func (s *countingSource) Invalidate() { s.invalidations++ }

func newTestServer(t *testing.T, source dataset.Source, store db.Store) *echo.Echo {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)

	e := echo.New()
	e.Renderer = r
	e.Validator = NewValidator()

	h := NewHandler(source, store, charts.Options{Width: 400, Height: 300}, zerolog.Nop())
	h.RegisterRoutes(e)
	h.RegisterAPI(e.Group("/api/v1", auth.NoAuthMiddleware()))
	return e
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func serve(t *testing.T) *echo.Echo {
	return newTestServer(t, dataset.Static{Snapshot: testSnapshot()}, nil)
}

// --------------------------------------------------------------------------
// Pages
// --------------------------------------------------------------------------

func TestNewRenderer_ParsesEveryPage(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	for _, name := range []string{"overview", "distribution", "clients", "protocols", "integration", "export"} {
		assert.Contains(t, r.pages, name)
	}
	assert.NotContains(t, r.pages, "layout")
}

func TestPages_Render(t *testing.T) {
	e := serve(t)
	tests := []struct {
		path  string
		title string
	}{
		{"/overview", "Overview"},
		{"/distribution", "Form Response Distribution"},
		{"/clients", "Client Progress Over Time"},
		{"/protocols", "Protocol Effectiveness"},
		{"/integration", "Data Integration"},
		{"/export", "Data Export"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(e, tt.path)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), "<h1>"+tt.title+"</h1>")
			assert.Contains(t, rec.Body.String(), `href="`+tt.path+`" class="active"`)
		})
	}
}

func TestRoot_RedirectsToOverview(t *testing.T) {
	rec := get(serve(t), "/")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/overview", rec.Header().Get(echo.HeaderLocation))
}

func TestPages_StoreUnavailable(t *testing.T) {
	e := newTestServer(t, dataset.Static{Err: errors.New("connection refused")}, nil)
	for _, path := range []string{"/overview", "/clients", "/export"} {
		rec := get(e, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Contains(t, rec.Body.String(), StoreUnavailable, path)
		assert.NotContains(t, rec.Body.String(), "connection refused", path)
	}
}

func TestPages_WideLayoutIsPerRequest(t *testing.T) {
	e := serve(t)

	wide := get(e, "/overview?layout=wide")
	require.Equal(t, http.StatusOK, wide.Code)
	assert.Contains(t, wide.Body.String(), `<main class="wide">`)
	assert.Contains(t, wide.Body.String(), "Centered layout")

	centered := get(e, "/overview")
	require.Equal(t, http.StatusOK, centered.Code)
	assert.Contains(t, centered.Body.String(), "<main>")
	assert.Contains(t, centered.Body.String(), "Wide layout")
}

func TestPages_InvalidOptions(t *testing.T) {
	e := serve(t)
	for _, target := range []string{
		"/overview?layout=huge",
		"/overview?forms=abc",
		"/charts/form-trend.png?width=5",
		"/overview?client=x",
	} {
		assert.Equal(t, http.StatusBadRequest, get(e, target).Code, target)
	}
}

func TestOverview_DefaultsToAllAndEncodesSelection(t *testing.T) {
	e := serve(t)

	body := get(e, "/overview").Body.String()
	assert.Contains(t, body, `src="/charts/form-trend.png"`)
	assert.Contains(t, body, "Total Clients</th><td>2<")

	body = get(e, "/overview?filtered=1&forms=5&variance=1").Body.String()
	assert.Contains(t, body, `src="/charts/form-trend.png?forms=5&amp;variance=1"`)
	// no protocol ticked on a submitted form means none, not all
	assert.Contains(t, body, "No protocols selected")
}

func TestOverview_EmptySelection(t *testing.T) {
	rec := get(serve(t), "/overview?filtered=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No forms selected")
	assert.Contains(t, rec.Body.String(), "No protocols selected")
	assert.NotContains(t, rec.Body.String(), "/charts/form-trend")
}

func TestDistribution(t *testing.T) {
	e := serve(t)

	body := get(e, "/distribution").Body.String()
	assert.Contains(t, body, "Select a form")

	body = get(e, "/distribution?form=5").Body.String()
	assert.Contains(t, body, `src="/charts/histogram.png?form=5"`)
	assert.NotContains(t, body, "/charts/box.png")
	assert.NotContains(t, body, "Cronbach")

	body = get(e, "/distribution?form=5&filtered=1&box=1&stats=1").Body.String()
	assert.NotContains(t, body, "/charts/histogram.png")
	assert.Contains(t, body, `src="/charts/box.png?form=5"`)
	assert.Contains(t, body, "Cronbach")

	assert.Equal(t, http.StatusNotFound, get(e, "/distribution?form=99").Code)
}

func TestClientProgress(t *testing.T) {
	e := serve(t)

	body := get(e, "/clients").Body.String()
	assert.Contains(t, body, "Select a client")

	rec := get(e, "/clients?client=1&protocol_variance=1&form_counts=1")
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	assert.Contains(t, body, "client1@example.com")
	assert.Contains(t, body, `src="/charts/protocol-trend.png?client=1&amp;variance=1"`)
	assert.Contains(t, body, `src="/charts/form-trend.png?client=1&amp;counts=1"`)
	assert.Contains(t, body, `src="/charts/histogram.png?client=1"`)

	assert.Equal(t, http.StatusNotFound, get(e, "/clients?client=42").Code)
}

func TestProtocolEffectiveness_TableFollowsTimePointOrder(t *testing.T) {
	body := get(serve(t), "/protocols").Body.String()
	base := strings.Index(body, "<th>Baseline</th>")
	month := strings.Index(body, "<th>1-Month</th>")
	year := strings.Index(body, "<th>1-Year</th>")
	require.True(t, base >= 0 && month >= 0 && year >= 0)
	assert.True(t, base < month && month < year)
	// protocol 1 baseline mean of 4,3,2,2
	assert.Contains(t, body, "2.75 (n=4)")
}

func TestDataIntegration_WithStore(t *testing.T) {
	ctx := context.Background()
	store, err := db.OpenSQLite(ctx, db.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	_, err = db.NewMigrator(store, nil).Up(ctx)
	require.NoError(t, err)

	e := newTestServer(t, dataset.Static{Snapshot: testSnapshot()}, store)
	rec := get(e, "/integration")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<td>sqlite</td>")
	assert.Contains(t, body, "<td>client_form_response</td>")
	assert.Contains(t, body, "applied")
	assert.Contains(t, body, "test-version")
}

func TestDataExport_Preview(t *testing.T) {
	rec := get(serve(t), "/export?client=1&columns=Time+Point&columns=Response+Text")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<th>Time Point</th><th>Response Text</th>")
	assert.Contains(t, body, "(4 rows)")
	assert.Contains(t, body, `href="/export/download?client=1&amp;columns=Time`)
}

func TestDataExport_EmptyColumnChoice(t *testing.T) {
	e := serve(t)

	rec := get(e, "/export?filtered=1&client=1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "No columns selected.")
	assert.Contains(t, body, "<h2>Client 1</h2>")
	assert.NotContains(t, body, "Download CSV")
	assert.NotContains(t, body, "<th>")

	// no choice made yet keeps the default columns
	body = get(e, "/export?client=1").Body.String()
	assert.Contains(t, body, "<th>Client Name</th>")
	assert.NotContains(t, body, "No columns selected.")

	assert.Equal(t, http.StatusBadRequest, get(e, "/export/download?client=1&filtered=1").Code)
	assert.Equal(t, http.StatusBadRequest, get(e, "/export/download?client=1&columns=").Code)
}

func TestDataExport_ReportPreview(t *testing.T) {
	e := serve(t)

	body := get(e, "/export?report=protocol-efficacy").Body.String()
	assert.Contains(t, body, `src="/charts/protocol-trend.png"`)

	body = get(e, "/export?report=client").Body.String()
	assert.Contains(t, body, "Select a client to build the client report")

	body = get(e, "/export?report=client&client=2").Body.String()
	assert.Contains(t, body, `src="/charts/form-trend.png?client=2"`)

	assert.Equal(t, http.StatusNotImplemented, get(e, "/export/report.pdf?report=client").Code)
}

func TestDownloadCSV(t *testing.T) {
	e := serve(t)

	rec := get(e, "/export/download?client=1&columns=Time+Point&columns=Client+Name")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="Client 1_data.csv"`, rec.Header().Get(echo.HeaderContentDisposition))
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/csv"))

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, []string{"Time Point", "Client Name"}, records[0])
	assert.Equal(t, []string{"Baseline", "Client 1"}, records[1])

	assert.Equal(t, http.StatusBadRequest, get(e, "/export/download").Code)
	assert.Equal(t, http.StatusNotFound, get(e, "/export/download?client=7").Code)
	assert.Equal(t, http.StatusBadRequest, get(e, "/export/download?client=1&columns=Shoe+Size").Code)
}

// --------------------------------------------------------------------------
// Charts
// --------------------------------------------------------------------------

func TestChart_Formats(t *testing.T) {
	e := serve(t)

	rec := get(e, "/charts/form-trend.png?variance=1&counts=1&percentages=1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	rec = get(e, "/charts/box.svg?form=5")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/svg+xml", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Body.String(), "<svg")
}

func TestChart_EveryNameRenders(t *testing.T) {
	e := serve(t)
	for name := range chartRegistry {
		rec := get(e, "/charts/"+name+".png?client=1")
		assert.Equal(t, http.StatusOK, rec.Code, name)
	}
	// an empty selection still draws a figure
	rec := get(e, "/charts/protocol-trend.png?protocols=")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChart_NotFound(t *testing.T) {
	e := serve(t)
	for _, target := range []string{"/charts/pie.png", "/charts/form-trend.gif", "/charts/form-trend", "/charts/.png"} {
		assert.Equal(t, http.StatusNotFound, get(e, target).Code, target)
	}
}

// --------------------------------------------------------------------------
// API
// --------------------------------------------------------------------------

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestAPI_Summary(t *testing.T) {
	var got map[string]interface{}
	decode(t, get(serve(t), "/api/v1/summary"), &got)
	assert.EqualValues(t, 2, got["total_clients"])
	assert.EqualValues(t, 7, got["questions_filled"])
	assert.EqualValues(t, 2, got["forms_filled"])
	assert.Equal(t, "test-version", got["version"])
}

func TestAPI_Trends(t *testing.T) {
	e := serve(t)

	var got struct {
		Dimension string `json:"dimension"`
		Series    []struct {
			ID     int64 `json:"id"`
			Points []struct {
				TimePoint string  `json:"time_point"`
				Mean      float64 `json:"mean"`
			} `json:"points"`
		} `json:"series"`
	}
	decode(t, get(e, "/api/v1/trends?dimension=protocol&protocols=2"), &got)
	assert.Equal(t, "protocol", got.Dimension)
	require.Len(t, got.Series, 1)
	assert.Equal(t, int64(2), got.Series[0].ID)
	require.Len(t, got.Series[0].Points, 2)
	assert.Equal(t, "1-Month", got.Series[0].Points[0].TimePoint)

	rec := get(e, "/api/v1/trends?forms=")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"series":[]`)

	assert.Equal(t, http.StatusBadRequest, get(e, "/api/v1/trends?dimension=question").Code)
}

func TestAPI_ListClients_Paginates(t *testing.T) {
	var got struct {
		Data    []tracking.Client `json:"data"`
		Total   int               `json:"total"`
		HasMore bool              `json:"has_more"`
		Links   []struct {
			Relation string `json:"relation"`
			URL      string `json:"url"`
		} `json:"links"`
	}
	decode(t, get(serve(t), "/api/v1/clients?limit=1"), &got)
	assert.Equal(t, 2, got.Total)
	assert.True(t, got.HasMore)
	require.Len(t, got.Data, 1)
	assert.Equal(t, "Client 1", got.Data[0].Name)
	require.Len(t, got.Links, 2)
	next, err := url.Parse(got.Links[1].URL)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/clients", next.Path)
	assert.Equal(t, "1", next.Query().Get("offset"))
}

func TestAPI_Client(t *testing.T) {
	e := serve(t)

	var got struct {
		Client     tracking.Client   `json:"client"`
		ByForm     []json.RawMessage `json:"by_form"`
		ByProtocol []json.RawMessage `json:"by_protocol"`
	}
	decode(t, get(e, "/api/v1/clients/1"), &got)
	assert.Equal(t, "Client 1", got.Client.Name)
	assert.Len(t, got.ByForm, 2)
	assert.Len(t, got.ByProtocol, 2)

	assert.Equal(t, http.StatusNotFound, get(e, "/api/v1/clients/9").Code)
	assert.Equal(t, http.StatusBadRequest, get(e, "/api/v1/clients/abc").Code)

	rec := get(e, "/api/v1/clients/2/export?columns=Client+ID")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Client ID\n2\n2\n2\n", rec.Body.String())
}

func TestAPI_FormsAndProtocols(t *testing.T) {
	e := serve(t)

	var forms []struct {
		ID          int64   `json:"id"`
		QuestionIDs []int64 `json:"question_ids"`
	}
	decode(t, get(e, "/api/v1/forms"), &forms)
	require.Len(t, forms, 2)
	assert.Equal(t, []int64{9, 10}, forms[0].QuestionIDs)
	assert.Empty(t, forms[1].QuestionIDs)

	var protocols []struct {
		ID      int64   `json:"id"`
		FormIDs []int64 `json:"form_ids"`
	}
	decode(t, get(e, "/api/v1/protocols"), &protocols)
	require.Len(t, protocols, 2)
	assert.Equal(t, []int64{6}, protocols[1].FormIDs)
}

func TestAPI_Distribution(t *testing.T) {
	e := serve(t)

	var got struct {
		N           int     `json:"n"`
		Mean        float64 `json:"mean"`
		Mode        int     `json:"mode"`
		Reliability *struct {
			Respondents int `json:"respondents"`
		} `json:"reliability"`
	}
	decode(t, get(e, "/api/v1/distribution?form=5"), &got)
	assert.Equal(t, 5, got.N)
	assert.Equal(t, 2, got.Mode)
	require.NotNil(t, got.Reliability)
	assert.Equal(t, 2, got.Reliability.Respondents)

	assert.Equal(t, http.StatusNotFound, get(e, "/api/v1/distribution?form=77").Code)
}

func TestAPI_Reports(t *testing.T) {
	e := serve(t)

	rec := get(e, "/api/v1/reports/protocol-efficacy?protocols=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"protocols":[`)

	assert.Equal(t, http.StatusBadRequest, get(e, "/api/v1/reports/client").Code)
	assert.Equal(t, http.StatusNotFound, get(e, "/api/v1/reports/client?client=3").Code)
	assert.Equal(t, http.StatusOK, get(e, "/api/v1/reports/client?client=1").Code)
	assert.Equal(t, http.StatusNotImplemented, get(e, "/api/v1/reports/client?client=1&output=pdf").Code)
	assert.Equal(t, http.StatusNotFound, get(e, "/api/v1/reports/weekly").Code)
}

func TestAPI_StoreUnavailable(t *testing.T) {
	e := newTestServer(t, dataset.Static{Err: errors.New("dial tcp: refused")}, nil)
	rec := get(e, "/api/v1/summary")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), StoreUnavailable)
}

func TestAPI_InvalidateCache(t *testing.T) {
	src := &countingSource{Static: dataset.Static{Snapshot: testSnapshot()}}
	e := newTestServer(t, src, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cache", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, src.invalidations)
}
