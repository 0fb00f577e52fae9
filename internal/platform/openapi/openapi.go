package openapi

import (
	"net/http"
	"sort"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"
)

// Generator builds an OpenAPI 3.0 spec from the routes registered on echo.
// Only routes under prefix are described.
type Generator struct {
	version   string
	baseURL   string
	prefix    string
	routes    func() []*echo.Route
	summaries map[string]string
	bearer    bool
}

// NewGenerator creates a new OpenAPI spec generator. routes is usually
// (*echo.Echo).Routes so the document follows whatever is registered.
func NewGenerator(version, baseURL, prefix string, routes func() []*echo.Route) *Generator {
	return &Generator{
		version:   version,
		baseURL:   baseURL,
		prefix:    prefix,
		routes:    routes,
		summaries: make(map[string]string),
	}
}

// Describe attaches a summary to the operation with the given id.
func (g *Generator) Describe(operationID, summary string) *Generator {
	g.summaries[operationID] = summary
	return g
}

// WithBearerAuth marks every operation as requiring a bearer token.
func (g *Generator) WithBearerAuth() *Generator {
	g.bearer = true
	return g
}

// GenerateSpec produces the OpenAPI 3.0 spec as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := make(map[string]interface{})
	tags := make(map[string]bool)

	routes := g.routes()
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})

	for _, r := range routes {
		if !strings.HasPrefix(r.Path, g.prefix) || r.Method == echo.RouteNotFound {
			continue
		}
		path, params := convertPath(r.Path)
		tag := routeTag(strings.TrimPrefix(r.Path, g.prefix))
		tags[tag] = true

		id := OperationID(r.Name)
		op := map[string]interface{}{
			"operationId": id,
			"tags":        []string{tag},
			"responses":   buildResponses(r.Method),
		}
		if s, ok := g.summaries[id]; ok {
			op["summary"] = s
		}
		if len(params) > 0 {
			op["parameters"] = params
		}

		item, _ := paths[path].(map[string]interface{})
		if item == nil {
			item = make(map[string]interface{})
			paths[path] = item
		}
		item[strings.ToLower(r.Method)] = op
	}

	tagList := make([]map[string]string, 0, len(tags))
	for t := range tags {
		tagList = append(tagList, map[string]string{"name": t})
	}
	sort.Slice(tagList, func(i, j int) bool { return tagList[i]["name"] < tagList[j]["name"] })

	components := map[string]interface{}{
		"schemas": map[string]interface{}{
			"Error": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"message": map[string]string{"type": "string"},
				},
			},
		},
	}

	spec := map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Wellness Dashboard API",
			"version":     g.version,
			"description": "Read-only reporting API over the wellness tracking store",
		},
		"paths":      paths,
		"tags":       tagList,
		"components": components,
	}
	if g.baseURL != "" {
		spec["servers"] = []map[string]string{{"url": g.baseURL}}
	}
	if g.bearer {
		components["securitySchemes"] = map[string]interface{}{
			"bearerAuth": map[string]string{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
		}
		spec["security"] = []map[string][]string{{"bearerAuth": {}}}
	}
	return spec
}

// convertPath rewrites echo's :param segments to {param} and lists them.
func convertPath(p string) (string, []map[string]interface{}) {
	segments := strings.Split(p, "/")
	var params []map[string]interface{}
	for i, s := range segments {
		if strings.HasPrefix(s, ":") {
			name := s[1:]
			segments[i] = "{" + name + "}"
			params = append(params, map[string]interface{}{
				"name": name, "in": "path", "required": true,
				"schema": map[string]string{"type": "string"},
			})
		}
	}
	return strings.Join(segments, "/"), params
}

func routeTag(rest string) string {
	rest = strings.TrimPrefix(rest, "/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "default"
	}
	return rest
}

// OperationID derives an operation id from an echo route name, which is
// the handler's function name: ".../dashboard.(*Handler).GetSummary-fm"
// becomes "getSummary".
func OperationID(routeName string) string {
	name := strings.TrimSuffix(routeName, "-fm")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return routeName
	}
	r := []rune(name)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func buildResponses(method string) map[string]interface{} {
	errorResponse := map[string]interface{}{
		"description": "Error",
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]string{"$ref": "#/components/schemas/Error"},
			},
		},
	}
	ok := map[string]interface{}{"200": map[string]interface{}{"description": "Success"}}
	if method == http.MethodDelete {
		ok = map[string]interface{}{"204": map[string]interface{}{"description": "No Content"}}
	}
	ok["default"] = errorResponse
	return ok
}

// RegisterRoutes registers the OpenAPI endpoint.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
}
