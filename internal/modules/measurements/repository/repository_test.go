package repository

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/types"
	"github.com/Redpill-Linpro/hegemone-client/tools/migrate"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Fatalf("close db: %v", closeErr)
		}
	})
	if _, err := migrate.Run(db, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func ptr[T any](v T) *T { return &v }

func telemetry(device string, ts time.Time, soil, ambient float64) types.Telemetry {
	return types.Telemetry{DeviceID: device, DateTime: &ts, SoilTemp: &soil, AmbientTemp: &ambient}
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestListMeasurements_Empty(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	got, err := repo.ListMeasurements(context.Background(), ListQuery{Limit: 10})
	if err != nil {
		t.Fatalf("ListMeasurements: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("ListMeasurements = %#v, want empty non-nil slice", got)
	}
}

func TestInsertAndList_OldestFirst(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	// Inserted out of order on purpose.
	for _, tel := range []types.Telemetry{
		telemetry("plant-1", base.Add(2*time.Minute), 12, 18),
		telemetry("plant-1", base, 10, 20),
		telemetry("plant-1", base.Add(time.Minute), 11, 19),
	} {
		if err := repo.InsertMeasurement(ctx, tel); err != nil {
			t.Fatalf("InsertMeasurement: %v", err)
		}
	}

	got, err := repo.ListMeasurements(ctx, ListQuery{Limit: 10})
	if err != nil {
		t.Fatalf("ListMeasurements: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d measurements, want 3", len(got))
	}
	for i, want := range []float64{10, 11, 12} {
		if got[i].SoilTemp != want {
			t.Errorf("got[%d].SoilTemp = %v, want %v", i, got[i].SoilTemp, want)
		}
	}
	if got[0].DateTime != "2025-03-01T12:00:00.000Z" {
		t.Errorf("DateTime = %q", got[0].DateTime)
	}
}

func TestListMeasurements_LimitKeepsLatest(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := repo.InsertMeasurement(ctx, telemetry("plant-1", base.Add(time.Duration(i)*time.Second), float64(i), 0)); err != nil {
			t.Fatalf("InsertMeasurement: %v", err)
		}
	}

	got, err := repo.ListMeasurements(ctx, ListQuery{Limit: 2})
	if err != nil {
		t.Fatalf("ListMeasurements: %v", err)
	}
	if len(got) != 2 || got[0].SoilTemp != 3 || got[1].SoilTemp != 4 {
		t.Fatalf("got %+v, want the two latest oldest first", got)
	}
}

func TestListMeasurements_Filters(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	for i, dev := range []string{"a", "b", "a", "b"} {
		if err := repo.InsertMeasurement(ctx, telemetry(dev, base.Add(time.Duration(i)*time.Hour), float64(i), 0)); err != nil {
			t.Fatalf("InsertMeasurement: %v", err)
		}
	}

	tests := []struct {
		name string
		q    ListQuery
		want []float64
	}{
		{name: "device", q: ListQuery{DeviceID: "a", Limit: 10}, want: []float64{0, 2}},
		{name: "from", q: ListQuery{From: base.Add(2 * time.Hour), Limit: 10}, want: []float64{2, 3}},
		{name: "to", q: ListQuery{To: base.Add(time.Hour), Limit: 10}, want: []float64{0, 1}},
		{name: "device and window", q: ListQuery{DeviceID: "b", From: base.Add(2 * time.Hour), To: base.Add(3 * time.Hour), Limit: 10}, want: []float64{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListMeasurements(ctx, tt.q)
			if err != nil {
				t.Fatalf("ListMeasurements: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d rows, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i].SoilTemp != tt.want[i] {
					t.Errorf("got[%d].SoilTemp = %v, want %v", i, got[i].SoilTemp, tt.want[i])
				}
			}
		})
	}
}

func TestListMeasurements_DuplicateTimestampsKept(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	for _, soil := range []float64{1, 2} {
		if err := repo.InsertMeasurement(ctx, telemetry("plant-1", base, soil, 0)); err != nil {
			t.Fatalf("InsertMeasurement: %v", err)
		}
	}
	got, err := repo.ListMeasurements(ctx, ListQuery{Limit: 10})
	if err != nil {
		t.Fatalf("ListMeasurements: %v", err)
	}
	if len(got) != 2 || got[0].SoilTemp != 1 || got[1].SoilTemp != 2 {
		t.Fatalf("got %+v, want both rows in insertion order", got)
	}
}

func TestInsertMeasurement_OptionalFields(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	tel := telemetry("plant-1", base, 10, 20)
	tel.MoistureLevel = ptr(512)
	tel.Light = &types.LightMeasurement{Red: 1, Green: 2, Blue: 3, White: 4, FarRed: 5}
	tel.SpectralData = []int{7, 8, 9}
	if err := repo.InsertMeasurement(ctx, tel); err != nil {
		t.Fatalf("InsertMeasurement: %v", err)
	}
	if err := repo.InsertMeasurement(ctx, telemetry("plant-2", base.Add(time.Second), 11, 21)); err != nil {
		t.Fatalf("InsertMeasurement: %v", err)
	}

	got, err := repo.ListMeasurements(ctx, ListQuery{Limit: 10})
	if err != nil {
		t.Fatalf("ListMeasurements: %v", err)
	}
	if got[0].MoistureLevel == nil || *got[0].MoistureLevel != 512 {
		t.Errorf("MoistureLevel = %v, want 512", got[0].MoistureLevel)
	}
	if got[0].Light == nil || *got[0].Light != *tel.Light {
		t.Errorf("Light = %+v, want %+v", got[0].Light, tel.Light)
	}
	if got[1].MoistureLevel != nil || got[1].Light != nil {
		t.Errorf("optional fields of bare reading = %+v", got[1])
	}
}

func TestInsertMeasurement_Rejects(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.InsertMeasurement(ctx, types.Telemetry{DeviceID: "x", SoilTemp: ptr(1.0), AmbientTemp: ptr(2.0)}); err == nil {
		t.Error("unstamped telemetry: want error")
	}
	if err := repo.InsertMeasurement(ctx, types.Telemetry{DeviceID: "x", DateTime: &base}); err == nil {
		t.Error("telemetry without temperatures: want error")
	}
	if _, err := repo.ListMeasurements(ctx, ListQuery{}); err == nil {
		t.Error("zero limit: want error")
	}
}

func TestListDevices(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	for i, dev := range []string{"beta", "alpha", "beta"} {
		if err := repo.InsertMeasurement(ctx, telemetry(dev, base.Add(time.Duration(i)*time.Second), 1, 1)); err != nil {
			t.Fatalf("InsertMeasurement: %v", err)
		}
	}
	got, err := repo.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(got) != 2 || got[0] != "alpha" || got[1] != "beta" {
		t.Fatalf("ListDevices = %v, want [alpha beta]", got)
	}
}
