package types

import (
	"errors"
	"fmt"
	"time"
)

// Measurement is one sampled reading as served by the measurements API and
// plotted by the graph. DateTime is kept as an opaque string.
type Measurement struct {
	DeviceID      string            `json:"device_id,omitempty"`
	DateTime      string            `json:"date_time"`
	SoilTemp      float64           `json:"soil_temp"`
	AmbientTemp   float64           `json:"ambient_temp"`
	MoistureLevel *int              `json:"moisture_level,omitempty"`
	Light         *LightMeasurement `json:"light_measurement,omitempty"`
}

type LightMeasurement struct {
	Red    int `json:"red"`
	Blue   int `json:"blue"`
	Green  int `json:"green"`
	White  int `json:"white"`
	FarRed int `json:"far_red"`
}

// Telemetry is the payload a sensor node submits over HTTP or MQTT.
type Telemetry struct {
	DeviceID      string            `json:"device_id"`
	DateTime      *time.Time        `json:"date_time,omitempty"`
	SoilTemp      *float64          `json:"soil_temp"`
	AmbientTemp   *float64          `json:"ambient_temp"`
	MoistureLevel *int              `json:"moisture_level,omitempty"`
	SpectralData  []int             `json:"spectral_data,omitempty"`
	Light         *LightMeasurement `json:"light_measurement,omitempty"`
}

var ErrInvalidTelemetry = errors.New("invalid telemetry")

func (t Telemetry) Validate() error {
	if t.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidTelemetry)
	}
	if t.SoilTemp == nil {
		return fmt.Errorf("%w: soil_temp is required", ErrInvalidTelemetry)
	}
	if t.AmbientTemp == nil {
		return fmt.Errorf("%w: ambient_temp is required", ErrInvalidTelemetry)
	}
	if t.MoistureLevel != nil && *t.MoistureLevel < 0 {
		return fmt.Errorf("%w: moisture_level must be >= 0: %d", ErrInvalidTelemetry, *t.MoistureLevel)
	}
	if t.DateTime != nil && t.DateTime.IsZero() {
		return fmt.Errorf("%w: date_time is zero", ErrInvalidTelemetry)
	}
	return nil
}

// Stamp fills DateTime with now when the sensor did not send one.
func (t *Telemetry) Stamp(now time.Time) {
	if t.DateTime == nil {
		ts := now.UTC()
		t.DateTime = &ts
	}
}

// Timestamp formats the reading time the way it is stored and served.
func (t Telemetry) Timestamp() string {
	if t.DateTime == nil {
		return ""
	}
	return FormatTime(*t.DateTime)
}

// TimeLayout is fixed width so stored timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000Z"

func FormatTime(ts time.Time) string {
	return ts.UTC().Format(TimeLayout)
}
