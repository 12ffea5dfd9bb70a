package httpapi

import (
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Redpill-Linpro/hegemone-client/internal/config"
	"github.com/Redpill-Linpro/hegemone-client/internal/metrics"

	_ "github.com/mattn/go-sqlite3"
)

type fakeMQTT bool

func (f fakeMQTT) IsSubscribed() bool { return bool(f) }

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHealthz(t *testing.T) {
	tests := []struct {
		name     string
		mqtt     MQTTStatus
		wantMQTT string
	}{
		{name: "mqtt disabled", mqtt: nil, wantMQTT: "disabled"},
		{name: "mqtt connected", mqtt: fakeMQTT(true), wantMQTT: "connected"},
		{name: "mqtt down", mqtt: fakeMQTT(false), wantMQTT: "disconnected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := NewMux(openDB(t), tt.mqtt, nil, quiet())
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d; want 200", rec.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["status"] != "ok" || body["mqtt"] != tt.wantMQTT {
				t.Fatalf("body = %v", body)
			}
		})
	}
}

func TestHealthz_dbDown(t *testing.T) {
	db := openDB(t)
	_ = db.Close()

	mux := NewMux(db, nil, nil, quiet())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d; want 500", rec.Code)
	}
}

func TestServer_recordsRouteMetrics(t *testing.T) {
	m := metrics.New()
	mux := NewMux(openDB(t), nil, m, quiet())
	srv := NewServer(config.Config{}, mux, quiet(), m)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`route="GET /healthz"`,
		`route="unmatched",status="404"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestServer_cors(t *testing.T) {
	cfg := config.Config{CORSAllowedOrigins: []string{"https://dash.example"}}
	srv := NewServer(cfg, NewMux(openDB(t), nil, nil, quiet()), quiet(), nil)

	req := httptest.NewRequest(http.MethodOptions, "/healthz", nil)
	req.Header.Set("Origin", "https://dash.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example" {
		t.Fatalf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Allow-Origin for unlisted origin = %q; want empty", got)
	}
}
