// Package sink holds the destinations an accepted telemetry message is delivered to.
package sink

import (
	"context"
	"log/slog"

	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/repository"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/types"
)

// Log writes every message to the logger at debug level.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (s *Log) Name() string { return "log" }

func (s *Log) Accept(_ context.Context, t types.Telemetry) error {
	attrs := []any{
		"device_id", t.DeviceID,
		"date_time", t.Timestamp(),
		"soil_temp", *t.SoilTemp,
		"ambient_temp", *t.AmbientTemp,
	}
	if t.MoistureLevel != nil {
		attrs = append(attrs, "moisture_level", *t.MoistureLevel)
	}
	s.logger.Debug("telemetry", attrs...)
	return nil
}

// Store persists messages in the measurements table.
type Store struct {
	repo repository.MeasurementRepository
}

func NewStore(repo repository.MeasurementRepository) *Store {
	return &Store{repo: repo}
}

func (s *Store) Name() string { return "store" }

func (s *Store) Accept(ctx context.Context, t types.Telemetry) error {
	return s.repo.InsertMeasurement(ctx, t)
}
