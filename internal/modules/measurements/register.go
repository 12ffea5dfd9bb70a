package measurements

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/Redpill-Linpro/hegemone-client/internal/config"
	"github.com/Redpill-Linpro/hegemone-client/internal/metrics"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/controller"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/repository"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/service"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/sink"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/types"
)

// MQTTSubscriber receives telemetry from the broker.
type MQTTSubscriber interface {
	SetMessageHandler(handler func(telemetry types.Telemetry) error)
}

type Feature struct {
	Submitter *service.Submitter
	influx    *sink.Influx
	forward   *sink.Forward
}

// RegisterFeature wires the measurement store, the ingest fan-out and its HTTP
// routes. When subscriber is non-nil, MQTT telemetry is fed into the same fan-out.
func RegisterFeature(ctx context.Context, mux *http.ServeMux, db *sql.DB, subscriber MQTTSubscriber, cfg config.Config, logger *slog.Logger, m *metrics.Metrics) *Feature {
	if logger == nil {
		logger = slog.Default()
	}
	repo := repository.NewRepository(db)

	sinks := []service.Sink{
		sink.NewLog(logger),
		sink.NewStore(repo),
	}
	f := &Feature{}
	if cfg.InfluxURL != "" {
		f.influx = sink.NewInflux(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
		sinks = append(sinks, f.influx)
		logger.Info("influx sink enabled", "url", cfg.InfluxURL, "bucket", cfg.InfluxBucket)
	}
	if cfg.ForwardURL != "" {
		opts := sink.DefaultForwardOptions()
		opts.MaxRetries = uint64(cfg.ForwardMaxRetries)
		if cfg.ForwardQueueSize > 0 {
			opts.QueueSize = cfg.ForwardQueueSize
		}
		f.forward = sink.NewForward(cfg.ForwardURL, opts, logger.With("sink", "forward"), m)
		sinks = append(sinks, f.forward)
		logger.Info("forward sink enabled", "url", cfg.ForwardURL, "queueSize", opts.QueueSize)
	}

	f.Submitter = service.NewSubmitter(logger, m, sinks...)
	controller.NewMeasurementController(repo, f.Submitter).RegisterRoutes(mux)

	if subscriber != nil {
		subscriber.SetMessageHandler(f.Submitter.Handler(ctx))
	}
	return f
}

// Close stops the forward worker and releases sink clients.
func (f *Feature) Close() {
	if f.forward != nil {
		f.forward.Close()
	}
	if f.influx != nil {
		f.influx.Close()
	}
}
