package measurements

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Redpill-Linpro/hegemone-client/internal/config"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/types"
	"github.com/Redpill-Linpro/hegemone-client/tools/migrate"

	_ "github.com/mattn/go-sqlite3"
)

type fakeSubscriber struct {
	handler func(types.Telemetry) error
}

func (f *fakeSubscriber) SetMessageHandler(h func(types.Telemetry) error) { f.handler = h }

func TestRegisterFeature_httpAndMQTTShareTheStore(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	defer func() { _ = db.Close() }()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := migrate.Run(db, quiet); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mux := http.NewServeMux()
	sub := &fakeSubscriber{}
	f := RegisterFeature(context.Background(), mux, db, sub, config.Config{}, quiet, nil)
	defer f.Close()

	if sub.handler == nil {
		t.Fatal("MQTT handler not registered")
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/measurements",
		strings.NewReader(`{"device_id":"http-node","date_time":"2025-01-01T00:00:00Z","soil_temp":10,"ambient_temp":20}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST status = %d: %s", rec.Code, rec.Body.String())
	}

	soil, ambient := 11.0, 19.0
	if err := sub.handler(types.Telemetry{DeviceID: "mqtt-node", SoilTemp: &soil, AmbientTemp: &ambient}); err != nil {
		t.Fatalf("mqtt handler: %v", err)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/measurements", nil))
	var got []types.Measurement
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].DeviceID != "http-node" || got[1].DeviceID != "mqtt-node" {
		t.Fatalf("measurements = %+v", got)
	}
}
