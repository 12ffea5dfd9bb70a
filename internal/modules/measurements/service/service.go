package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Redpill-Linpro/hegemone-client/internal/metrics"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/types"
)

// Sink is one destination for accepted telemetry.
type Sink interface {
	Name() string
	Accept(ctx context.Context, t types.Telemetry) error
}

// Submitter validates telemetry and fans it out to every sink in order.
type Submitter struct {
	sinks   []Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewSubmitter(logger *slog.Logger, m *metrics.Metrics, sinks ...Sink) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		sinks:   sinks,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Submit delivers t to all sinks. A failing sink does not stop the others;
// their errors are joined in the result. Invalid telemetry reaches no sink.
func (s *Submitter) Submit(ctx context.Context, source string, t types.Telemetry) error {
	if err := t.Validate(); err != nil {
		return err
	}
	t.Stamp(s.now())
	s.metrics.Ingested(source)

	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Accept(ctx, t); err != nil {
			s.metrics.SinkError(sink.Name())
			s.logger.Error("sink delivery failed",
				"sink", sink.Name(),
				"source", source,
				"device_id", t.DeviceID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Handler adapts the submitter to the MQTT subscriber's message callback.
func (s *Submitter) Handler(ctx context.Context) func(types.Telemetry) error {
	return func(t types.Telemetry) error {
		return s.Submit(ctx, "mqtt", t)
	}
}
