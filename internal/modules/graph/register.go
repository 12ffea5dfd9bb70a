package graph

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Redpill-Linpro/hegemone-client/internal/config"
	"github.com/Redpill-Linpro/hegemone-client/internal/logging"
	"github.com/Redpill-Linpro/hegemone-client/internal/metrics"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/graph/chart"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/graph/component"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/graph/controller"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/graph/provider"
)

// RegisterFeature registers the graph page and API routes over the configured
// measurements endpoint. Each page view mounts its own component under ctx.
// The caller runs the returned pool's sweeper and closes it on shutdown.
func RegisterFeature(ctx context.Context, mux *http.ServeMux, cfg config.Config, logger *slog.Logger, m *metrics.Metrics) *component.Pool {
	p := provider.NewHTTPProvider(cfg.MeasurementsURL, cfg.FetchTimeout)
	poolCfg := component.PoolConfig{TTL: cfg.GraphViewTTL, MaxViews: cfg.GraphMaxViews}
	return Register(ctx, mux, p, cfg.ChartTitle, poolCfg, logger, m)
}

// Register is RegisterFeature with an explicit data provider.
func Register(ctx context.Context, mux *http.ServeMux, p provider.DataProvider, title string, poolCfg component.PoolConfig, logger *slog.Logger, m *metrics.Metrics) *component.Pool {
	if title == "" {
		title = chart.DefaultTitle
	}
	logger = logging.Component(logger, "graph")
	pool := component.NewPool(ctx, func() *component.Component {
		return component.New(p,
			component.WithLogger(logger),
			component.WithMetrics(m),
			component.WithTitle(title),
		)
	}, poolCfg, logger, m)
	controller.NewGraphController(pool, title).RegisterRoutes(mux)
	return pool
}
