package controller

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/types"
	"github.com/Redpill-Linpro/hegemone-client/internal/utils"
)

func (c *measurementControllerImpl) handleList(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	measurements, err := c.repository.ListMeasurements(r.Context(), q)
	if err != nil {
		slog.Error("list measurements failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load measurements")
		return
	}
	utils.WriteJSON(w, http.StatusOK, measurements)
}

func (c *measurementControllerImpl) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := c.repository.ListDevices(r.Context())
	if err != nil {
		slog.Error("list devices failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load devices")
		return
	}
	utils.WriteJSON(w, http.StatusOK, devices)
}

func (c *measurementControllerImpl) handleIngest(w http.ResponseWriter, r *http.Request) {
	var t types.Telemetry
	if err := utils.DecodeJSON(r, &t); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := c.submitter.Submit(r.Context(), "http", t)
	switch {
	case errors.Is(err, types.ErrInvalidTelemetry):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		// Sink failures are logged by the submitter; the sample itself was accepted.
		slog.Warn("ingest completed with sink errors", "device_id", t.DeviceID, "error", err)
	}
	utils.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
