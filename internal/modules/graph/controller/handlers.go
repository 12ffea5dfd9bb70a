package controller

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/Redpill-Linpro/hegemone-client/internal/modules/graph/chart"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/graph/component"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/graph/views"
	"github.com/Redpill-Linpro/hegemone-client/internal/utils"
)

type graphResponse struct {
	ID     string       `json:"id"`
	Loaded bool         `json:"loaded"`
	Chart  *chart.Chart `json:"chart"`
}

func newGraphResponse(id string, c *component.Component) graphResponse {
	v := c.View()
	return graphResponse{ID: id, Loaded: !v.Loading, Chart: v.Chart}
}

func (c *graphControllerImpl) graphData(id string, comp *component.Component) *views.GraphData {
	v := comp.View()
	return &views.GraphData{ViewID: id, Title: c.title, Loading: v.Loading, Chart: v.Chart}
}

// handleIndex opens a new view, so every page load fetches its own records.
func (c *graphControllerImpl) handleIndex(w http.ResponseWriter, r *http.Request) {
	id, comp, err := c.views.Open()
	if err != nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "graph unavailable")
		return
	}

	var buf bytes.Buffer
	if err := views.RenderIndex(&buf, c.graphData(id, comp)); err != nil {
		slog.Error("render index failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func (c *graphControllerImpl) handleGraphPartial(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	comp, ok := c.views.Get(id)
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "graph view not found or expired")
		return
	}

	var buf bytes.Buffer
	if err := views.RenderGraphPartial(&buf, c.graphData(id, comp)); err != nil {
		slog.Error("render graph partial failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render graph")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func (c *graphControllerImpl) handleOpenGraph(w http.ResponseWriter, r *http.Request) {
	id, comp, err := c.views.Open()
	if err != nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "graph unavailable")
		return
	}
	w.Header().Set("Location", "/api/v1/graph/"+id)
	utils.WriteJSON(w, http.StatusCreated, newGraphResponse(id, comp))
}

func (c *graphControllerImpl) handleGraphJSON(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	comp, ok := c.views.Get(id)
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "graph view not found or expired")
		return
	}
	utils.WriteJSON(w, http.StatusOK, newGraphResponse(id, comp))
}
