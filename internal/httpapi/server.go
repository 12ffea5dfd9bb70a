package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Redpill-Linpro/hegemone-client/internal/config"
	"github.com/Redpill-Linpro/hegemone-client/internal/metrics"

	"github.com/rs/cors"
)

func NewServer(cfg config.Config, handler http.Handler, logger *slog.Logger, m *metrics.Metrics) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           requestLogger(withCORS(cfg, handler), logger, m),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func withCORS(cfg config.Config, handler http.Handler) http.Handler {
	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "HX-Request", "HX-Target", "HX-Current-URL"},
	}).Handler(handler)
}
