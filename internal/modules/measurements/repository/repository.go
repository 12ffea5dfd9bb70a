package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/types"
)

//go:embed sql/insert-measurement.sql
var insertMeasurementSQL string

//go:embed sql/list-measurements.sql
var listMeasurementsSQL string

//go:embed sql/list-devices.sql
var listDevicesSQL string

// ListQuery selects the most recent Limit measurements, optionally for one
// device and within [From, To]. Zero values mean unbounded.
type ListQuery struct {
	DeviceID string
	From     time.Time
	To       time.Time
	Limit    int
}

type MeasurementRepository interface {
	InsertMeasurement(ctx context.Context, t types.Telemetry) error
	ListMeasurements(ctx context.Context, q ListQuery) ([]types.Measurement, error)
	ListDevices(ctx context.Context) ([]string, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) MeasurementRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) InsertMeasurement(ctx context.Context, t types.Telemetry) error {
	if t.DateTime == nil {
		return errors.New("insert measurement: date_time not stamped")
	}
	if t.SoilTemp == nil || t.AmbientTemp == nil {
		return errors.New("insert measurement: temperatures are required")
	}

	var moisture any
	if t.MoistureLevel != nil {
		moisture = *t.MoistureLevel
	}

	var red, green, blue, white, farRed any
	if t.Light != nil {
		red, green, blue, white, farRed = t.Light.Red, t.Light.Green, t.Light.Blue, t.Light.White, t.Light.FarRed
	}

	var spectral any
	if len(t.SpectralData) > 0 {
		b, err := json.Marshal(t.SpectralData)
		if err != nil {
			return fmt.Errorf("encode spectral_data: %w", err)
		}
		spectral = string(b)
	}

	_, err := r.db.ExecContext(ctx, insertMeasurementSQL,
		t.DeviceID, t.Timestamp(), *t.SoilTemp, *t.AmbientTemp, moisture,
		red, green, blue, white, farRed,
		spectral,
	)
	if err != nil {
		return fmt.Errorf("insert measurement: %w", err)
	}
	return nil
}

func (r *repositoryImpl) ListMeasurements(ctx context.Context, q ListQuery) ([]types.Measurement, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("list measurements: limit must be > 0, got %d", q.Limit)
	}
	rows, err := r.db.QueryContext(ctx, listMeasurementsSQL,
		q.DeviceID, formatBound(q.From), formatBound(q.To), q.Limit)
	if err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close measurements rows", "error", err)
		}
	}()

	out := make([]types.Measurement, 0)
	for rows.Next() {
		var m types.Measurement
		var moisture, red, green, blue, white, farRed sql.NullInt64
		if err := rows.Scan(&m.DeviceID, &m.DateTime, &m.SoilTemp, &m.AmbientTemp, &moisture,
			&red, &green, &blue, &white, &farRed); err != nil {
			return nil, err
		}
		if moisture.Valid {
			v := int(moisture.Int64)
			m.MoistureLevel = &v
		}
		if red.Valid || green.Valid || blue.Valid || white.Valid || farRed.Valid {
			m.Light = &types.LightMeasurement{
				Red:    int(red.Int64),
				Green:  int(green.Int64),
				Blue:   int(blue.Int64),
				White:  int(white.Int64),
				FarRed: int(farRed.Int64),
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) ListDevices(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, listDevicesSQL)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close devices rows", "error", err)
		}
	}()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return types.FormatTime(t)
}
