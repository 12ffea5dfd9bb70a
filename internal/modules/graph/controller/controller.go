package controller

import (
	"net/http"

	"github.com/Redpill-Linpro/hegemone-client/internal/modules/graph/component"
)

// Views hands out one graph component per page view.
type Views interface {
	Open() (string, *component.Component, error)
	Get(id string) (*component.Component, bool)
}

type GraphController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type graphControllerImpl struct {
	views Views
	title string
}

func NewGraphController(views Views, title string) GraphController {
	return &graphControllerImpl{views: views, title: title}
}

func (c *graphControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", c.handleIndex)
	mux.HandleFunc("GET /partials/graph/{id}", c.handleGraphPartial)
	mux.HandleFunc("POST /api/v1/graph", c.handleOpenGraph)
	mux.HandleFunc("GET /api/v1/graph/{id}", c.handleGraphJSON)
}
