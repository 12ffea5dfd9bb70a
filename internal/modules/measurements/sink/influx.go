package sink

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/types"
)

const (
	influxMeasurement = "hegemone_sensors"
	influxOrigin      = "hegemone"
)

// Influx writes each message as one point of the hegemone_sensors measurement.
type Influx struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

func NewInflux(url, token, org, bucket string) *Influx {
	client := influxdb2.NewClient(url, token)
	return &Influx{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
	}
}

func (s *Influx) Name() string { return "influx" }

func (s *Influx) Accept(ctx context.Context, t types.Telemetry) error {
	tags := map[string]string{
		"by":        influxOrigin,
		"device_id": t.DeviceID,
	}
	fields := map[string]interface{}{
		"soil_temp":    *t.SoilTemp,
		"ambient_temp": *t.AmbientTemp,
	}
	if t.MoistureLevel != nil {
		fields["moisture_level"] = *t.MoistureLevel
	}
	if l := t.Light; l != nil {
		fields["light_red"] = l.Red
		fields["light_green"] = l.Green
		fields["light_blue"] = l.Blue
		fields["light_white"] = l.White
		fields["light_far_red"] = l.FarRed
	}

	p := influxdb2.NewPoint(influxMeasurement, tags, fields, *t.DateTime)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

func (s *Influx) Close() {
	s.client.Close()
}
