package dashboard

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer executes one template set per page; every set shares the layout.
type Renderer struct {
	pages map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	"f2": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"pct": func(v float64) string {
		return fmt.Sprintf("%.2f%%", v)
	},
	"ts": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.UTC().Format(time.RFC3339)
	},
	"contains": func(list []string, s string) bool {
		for _, v := range list {
			if strings.EqualFold(v, s) {
				return true
			}
		}
		return false
	},
}

// NewRenderer parses the embedded page templates.
func NewRenderer() (*Renderer, error) {
	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, name := range names {
		base := strings.TrimSuffix(strings.TrimPrefix(name, "templates/"), ".html")
		if base == "layout" {
			continue
		}
		t, err := template.New(base).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", base, err)
		}
		r.pages[base] = t
	}
	return r, nil
}

func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown template %q", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}

type navLink struct {
	Title  string
	Path   string
	Active bool
}

var navPages = []struct{ Title, Path string }{
	{"Overview", "/overview"},
	{"Form Response Distribution", "/distribution"},
	{"Client Progress Over Time", "/clients"},
	{"Protocol Effectiveness", "/protocols"},
	{"Data Integration", "/integration"},
	{"Data Export", "/export"},
}

// view is what the layout renders; Data is the page's own model.
type view struct {
	Title      string
	Wide       bool
	Layout     string
	Nav        []navLink
	ToggleWide string
	Error      string
	Data       interface{}
}

func newView(c echo.Context, title string, o ViewOptions, data interface{}) view {
	layout := o.Layout
	if layout == "" {
		layout = LayoutCentered
	}

	path := c.Request().URL.Path
	nav := make([]navLink, len(navPages))
	for i, p := range navPages {
		href := p.Path
		if o.Wide() {
			href += "?layout=" + LayoutWide
		}
		nav[i] = navLink{Title: p.Title, Path: href, Active: p.Path == path}
	}

	toggle := url.Values{}
	for k, v := range c.QueryParams() {
		toggle[k] = v
	}
	if o.Wide() {
		toggle.Set("layout", LayoutCentered)
	} else {
		toggle.Set("layout", LayoutWide)
	}

	return view{
		Title:      title,
		Wide:       o.Wide(),
		Layout:     layout,
		Nav:        nav,
		ToggleWide: path + "?" + toggle.Encode(),
		Data:       data,
	}
}
