package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/Redpill-Linpro/hegemone-client/internal/utils"
)

// MQTTStatus reports the telemetry subscription state. A nil MQTTStatus means MQTT is disabled.
type MQTTStatus interface {
	IsSubscribed() bool
}

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	db     *sql.DB
	mqtt   MQTTStatus
	logger *slog.Logger
}

func NewHealthchecker(db *sql.DB, mqtt MQTTStatus, logger *slog.Logger) healthchecker {
	return &healthcheckerImpl{db: db, mqtt: mqtt, logger: logger}
}

func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	var ok int
	if err := h.db.QueryRowContext(r.Context(), `SELECT 1`).Scan(&ok); err != nil {
		h.logger.Error("failed to check database connectivity", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to check database connectivity")
		return
	}

	// MQTT being down degrades ingest but the service still serves.
	mqtt := "disabled"
	if h.mqtt != nil {
		mqtt = "disconnected"
		if h.mqtt.IsSubscribed() {
			mqtt = "connected"
		}
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "mqtt": mqtt})
}

func registerHealthcheck(mux *http.ServeMux, db *sql.DB, mqtt MQTTStatus, logger *slog.Logger) {
	healthchecker := NewHealthchecker(db, mqtt, logger)
	mux.HandleFunc("GET /healthz", healthchecker.handleHealthz)
}
