package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Redpill-Linpro/hegemone-client/internal/broker"
	"github.com/Redpill-Linpro/hegemone-client/internal/config"
)

var viewIDPattern = regexp.MustCompile(`hx-get="/partials/graph/([^"]+)"`)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func testConfig(t *testing.T) config.Config {
	addr := freeAddr(t)
	return config.Config{
		AppEnv:             "dev",
		LogLevel:           slog.LevelInfo,
		HTTPAddr:           addr,
		SQLiteDriver:       "sqlite3",
		SQLitePath:         filepath.Join(t.TempDir(), "hegemone.db"),
		SQLiteMaxOpenConns: 1,
		SQLiteMaxIdleConns: 1,
		MeasurementsURL:    fmt.Sprintf("http://%s/api/v1/measurements", addr),
		FetchTimeout:       2 * time.Second,
		ChartTitle:         "Greenhouse",
		GraphViewTTL:       time.Minute,
		GraphMaxViews:      10,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRun_servesGraphAndShutsDown(t *testing.T) {
	cfg := testConfig(t)
	base := "http://" + cfg.HTTPAddr

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil))) }()

	waitFor(t, "healthz", func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	})

	resp, err := http.Post(base+"/api/v1/measurements", "application/json",
		strings.NewReader(`{"device_id":"node-1","soil_temp":10,"ambient_temp":20}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST status = %d", resp.StatusCode)
	}

	// A page opened now fetches the record just stored.
	resp, err = http.Get(base + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	page, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	m := viewIDPattern.FindSubmatch(page)
	if m == nil {
		t.Fatalf("index page does not poll a view: %s", page)
	}
	id := string(m[1])

	var labels []string
	waitFor(t, "graph loaded", func() bool {
		resp, err := http.Get(base + "/api/v1/graph/" + id)
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		var body struct {
			Loaded bool `json:"loaded"`
			Chart  struct {
				Data struct {
					Labels []string `json:"labels"`
				} `json:"data"`
			} `json:"chart"`
		}
		if json.NewDecoder(resp.Body).Decode(&body) != nil || !body.Loaded {
			return false
		}
		labels = body.Chart.Data.Labels
		return true
	})
	if len(labels) != 1 {
		t.Fatalf("labels = %v; want the stored record", labels)
	}

	resp, err = http.Get(base + "/partials/graph/" + id)
	if err != nil {
		t.Fatalf("GET partial: %v", err)
	}
	fragment, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(fragment), "graph-canvas") {
		t.Errorf("graph fragment has no chart: %s", fragment)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_badDatabasePath(t *testing.T) {
	cfg := testConfig(t)
	notADir := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(notADir, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg.SQLitePath = filepath.Join(notADir, "hegemone.db")

	err := Run(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		t.Fatal("Run() = nil; want db error")
	}
}

func TestRun_listenFailureDisconnectsMQTT(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := broker.New(freeAddr(t), quiet)
	if err != nil {
		t.Fatalf("broker.New: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("broker.Start: %v", err)
	}
	defer func() { _ = b.Close() }()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = busy.Close() }()

	host, portStr, _ := net.SplitHostPort(b.Addr())
	port, _ := strconv.Atoi(portStr)
	cfg := testConfig(t)
	cfg.HTTPAddr = busy.Addr().String()
	cfg.MQTTEnabled = true
	cfg.MQTTBroker = host
	cfg.MQTTPort = port
	cfg.MQTTClientID = "hegemone-run-test"
	cfg.MQTTTopic = "hegemone/+/sensors"

	logs := &messageHandler{}
	err = Run(context.Background(), cfg, slog.New(logs))
	if err == nil || !strings.Contains(err.Error(), "http listen") {
		t.Fatalf("Run() = %v; want listen error", err)
	}
	if !logs.has("subscribed to mqtt topic") {
		t.Fatal("subscriber never subscribed before the listen failure")
	}
	if !logs.has("mqtt subscriber disconnected") {
		t.Error("subscriber not disconnected on the listen error path")
	}
	waitFor(t, "broker to drop the subscriber", func() bool { return b.Connected() == 0 })
}

// messageHandler records log messages.
type messageHandler struct {
	mu   sync.Mutex
	msgs []string
}

func (h *messageHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *messageHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	h.msgs = append(h.msgs, r.Message)
	h.mu.Unlock()
	return nil
}

func (h *messageHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *messageHandler) WithGroup(string) slog.Handler { return h }

func (h *messageHandler) has(msg string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Contains(h.msgs, msg)
}
