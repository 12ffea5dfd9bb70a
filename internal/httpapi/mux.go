package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/Redpill-Linpro/hegemone-client/internal/metrics"
)

// NewMux returns a mux with the operational routes registered. Feature
// modules add their own routes to it.
func NewMux(db *sql.DB, mqtt MQTTStatus, m *metrics.Metrics, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	registerHealthcheck(mux, db, mqtt, logger)
	mux.Handle("GET /metrics", m.Handler())
	return mux
}
