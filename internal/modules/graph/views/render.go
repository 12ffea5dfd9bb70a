package views

import (
	"embed"
	"errors"
	"html/template"
	"io"
	"io/fs"

	"github.com/Redpill-Linpro/hegemone-client/internal/modules/graph/chart"
)

//go:embed templates
var viewsFS embed.FS

var graphTmpl *template.Template

// loadTemplatesFromFS loads graph templates from the given fs and dir.
// Used by LoadTemplates and by tests to simulate failure scenarios.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	graphTmpl, err = template.ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	return nil
}

// LoadTemplates loads embedded graph templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

// GraphData is the view model shared by the page and the HTMX fragment.
type GraphData struct {
	// ViewID names the page view the loading fragment polls.
	ViewID  string
	Title   string
	Loading bool
	Chart   *chart.Chart
}

func RenderIndex(w io.Writer, data *GraphData) error {
	if graphTmpl == nil {
		return errors.New("graph template not loaded: call views.LoadTemplates during startup")
	}
	return graphTmpl.ExecuteTemplate(w, "index.html", data)
}

// RenderGraphPartial executes only the graph fragment into w.
// The loading fragment polls /partials/graph/{ViewID} until the chart is ready.
func RenderGraphPartial(w io.Writer, data *GraphData) error {
	if graphTmpl == nil {
		return errors.New("graph template not loaded: call views.LoadTemplates during startup")
	}
	return graphTmpl.ExecuteTemplate(w, "partials/graph.html", data)
}
