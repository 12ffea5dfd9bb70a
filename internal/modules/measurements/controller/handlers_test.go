package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/repository"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/types"
)

type mockRepo struct {
	measurements []types.Measurement
	listErr      error
	lastQuery    repository.ListQuery
	devices      []string
	devicesErr   error
}

func (m *mockRepo) InsertMeasurement(context.Context, types.Telemetry) error { return nil }

func (m *mockRepo) ListMeasurements(_ context.Context, q repository.ListQuery) ([]types.Measurement, error) {
	m.lastQuery = q
	return m.measurements, m.listErr
}

func (m *mockRepo) ListDevices(context.Context) ([]string, error) {
	return m.devices, m.devicesErr
}

type mockSubmitter struct {
	got []types.Telemetry
	err error
}

func (m *mockSubmitter) Submit(_ context.Context, _ string, t types.Telemetry) error {
	if err := t.Validate(); err != nil {
		return err
	}
	m.got = append(m.got, t)
	return m.err
}

func newMux(repo *mockRepo, sub *mockSubmitter) *http.ServeMux {
	mux := http.NewServeMux()
	NewMeasurementController(repo, sub).RegisterRoutes(mux)
	return mux
}

func TestHandleList(t *testing.T) {
	repo := &mockRepo{measurements: []types.Measurement{
		{DateTime: "t1", SoilTemp: 10, AmbientTemp: 20},
		{DateTime: "t2", SoilTemp: 11, AmbientTemp: 19},
	}}
	mux := newMux(repo, &mockSubmitter{})

	t.Run("returns records in repository order", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/measurements", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want 200", rec.Code)
		}
		var got []map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got) != 2 || got[0]["date_time"] != "t1" || got[1]["soil_temp"] != 11.0 {
			t.Fatalf("body = %v", got)
		}
		if repo.lastQuery.Limit != defaultLimit {
			t.Errorf("limit = %d; want default %d", repo.lastQuery.Limit, defaultLimit)
		}
	})

	t.Run("passes filters", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			"/api/v1/measurements?device_id=plant-1&from=2025-01-01T00:00:00Z&limit=5", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want 200", rec.Code)
		}
		if repo.lastQuery.DeviceID != "plant-1" || repo.lastQuery.Limit != 5 || repo.lastQuery.From.IsZero() {
			t.Errorf("query = %+v", repo.lastQuery)
		}
	})

	t.Run("bad query is 400", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/measurements?limit=0", nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d; want 400", rec.Code)
		}
	})

	t.Run("repository error is 500", func(t *testing.T) {
		failing := newMux(&mockRepo{listErr: errors.New("db down")}, &mockSubmitter{})
		rec := httptest.NewRecorder()
		failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/measurements", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d; want 500", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "db down") {
			t.Errorf("internal error leaked: %q", rec.Body.String())
		}
	})
}

func TestHandleDevices(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux(&mockRepo{devices: []string{"a", "b"}}, &mockSubmitter{}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `["a","b"]` {
		t.Errorf("body = %s", got)
	}
}

func TestHandleIngest(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		submitErr  error
		wantStatus int
		wantStored int
	}{
		{
			name:       "accepted",
			body:       `{"device_id":"PlantyPlantMonitor","soil_temp":19.5,"ambient_temp":22,"moisture_level":400}`,
			wantStatus: http.StatusAccepted,
			wantStored: 1,
		},
		{
			name:       "sink failure still accepted",
			body:       `{"device_id":"PlantyPlantMonitor","soil_temp":19.5,"ambient_temp":22}`,
			submitErr:  errors.New("influx down"),
			wantStatus: http.StatusAccepted,
			wantStored: 1,
		},
		{name: "missing temperature", body: `{"device_id":"x","soil_temp":1}`, wantStatus: http.StatusBadRequest},
		{name: "malformed", body: `{"device_id":`, wantStatus: http.StatusBadRequest},
		{name: "empty", body: ``, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &mockSubmitter{err: tt.submitErr}
			rec := httptest.NewRecorder()
			newMux(&mockRepo{}, sub).ServeHTTP(rec,
				httptest.NewRequest(http.MethodPost, "/api/v1/measurements", strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d; want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if len(sub.got) != tt.wantStored {
				t.Errorf("submitted %d; want %d", len(sub.got), tt.wantStored)
			}
		})
	}
}
