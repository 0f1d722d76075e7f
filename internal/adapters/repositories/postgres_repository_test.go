package repositories

import (
	"context"
	"database/sql"
	"delivery-coordination-service/internal/domain"
	"delivery-coordination-service/internal/platform/db"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// openTestDB connects to TEST_DATABASE_URL and loads the demo seed.
// The tests are skipped when no database is configured.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, url)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := InitSchema(ctx, conn); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	if err := SeedFromJSON(ctx, conn, "../../../data/seeds/demo.json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return conn
}

func TestPostgresRouteRepository(t *testing.T) {
	conn := openTestDB(t)
	repo := NewPostgresRouteRepository(conn)
	ctx := context.Background()

	stops, err := repo.ListRouteStops(ctx, "route-1")
	if err != nil {
		t.Fatalf("list stops: %v", err)
	}
	if len(stops) != 3 || stops[1].StopID != "stop-2" || !stops[1].HasDeliveryWindow() {
		t.Fatalf("stops = %+v", stops)
	}

	if _, err := repo.ListRouteStops(ctx, "route-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	eta := time.Date(2026, 3, 1, 17, 30, 0, 0, time.UTC)
	route := &domain.OptimizedRoute{
		OrderedStops: []domain.OrderedStop{
			{StopID: "stop-3", StopIndex: 0},
			{StopID: "stop-1", StopIndex: 1, ETA: &eta},
			{StopID: "stop-2", StopIndex: 2},
		},
		TotalDistanceMeters:  42000,
		TotalDurationSeconds: 3600,
		Strategy:             "nearest_neighbor",
	}
	rows, err := repo.SaveOptimizedRoute(ctx, "route-1", route)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(rows) != 3 || rows[1].OrderID != "ord-1001" || rows[1].ETA == nil || !rows[1].ETA.Equal(eta) {
		t.Fatalf("rows = %+v", rows)
	}

	stops, _ = repo.ListRouteStops(ctx, "route-1")
	if stops[0].StopID != "stop-3" {
		t.Fatalf("order not persisted: %+v", stops)
	}
}

func TestPostgresTrackingRepository(t *testing.T) {
	conn := openTestDB(t)
	repo := NewPostgresTrackingRepository(conn)
	ctx := context.Background()

	if _, err := repo.GetTrackingSnapshot(ctx, "ord-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	snap, err := repo.GetTrackingSnapshot(ctx, "ord-1004")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.RouteStop != nil || snap.Driver != nil || snap.Location != nil {
		t.Fatalf("unassigned order has route data: %+v", snap)
	}

	recorded := time.Now().UTC().Truncate(time.Second)
	if err := repo.InsertDriverLocation(ctx, "route-1", domain.DriverLocation{Latitude: 34.06, Longitude: -118.25, RecordedAt: recorded}); err != nil {
		t.Fatalf("insert location: %v", err)
	}
	if err := repo.InsertDriverLocation(ctx, "route-missing", domain.DriverLocation{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	photo := "https://cdn.example.com/p/1.jpg"
	stop, err := repo.UpdateStopStatus(ctx, "stop-1", domain.StopStatusDelivered, &photo)
	if err != nil {
		t.Fatalf("update stop: %v", err)
	}
	if stop.DeliveryPhotoURL == nil || *stop.DeliveryPhotoURL != photo {
		t.Fatalf("photo not stored: %+v", stop)
	}

	order, err := repo.UpdateOrderStatus(ctx, "ord-1001", domain.OrderStatusDelivered)
	if err != nil || order.Status != domain.OrderStatusDelivered {
		t.Fatalf("update order = %+v, %v", order, err)
	}

	snap, err = repo.GetTrackingSnapshot(ctx, "ord-1001")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Driver == nil || snap.Driver.DriverID != "drv-1" {
		t.Fatalf("driver = %+v", snap.Driver)
	}
	if snap.Location == nil || !snap.Location.RecordedAt.Equal(recorded) {
		t.Fatalf("location = %+v", snap.Location)
	}
	if snap.RouteStop == nil || snap.RouteStop.Status != domain.StopStatusDelivered {
		t.Fatalf("route stop = %+v", snap.RouteStop)
	}
}

func TestPostgresOrderRepository(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	repo := NewPostgresOrderRepository(conn)

	missing, err := repo.ListOrdersMissingCoordinates(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(missing) != 1 || missing[0].OrderID != "ord-1004" || missing[0].Address == "" {
		t.Fatalf("missing = %+v", missing)
	}

	if err := repo.SetOrderCoordinates(ctx, "ord-1004", domain.Coordinates{Lat: 33.9416, Lng: -118.4085}); err != nil {
		t.Fatalf("set: %v", err)
	}
	missing, err = repo.ListOrdersMissingCoordinates(ctx)
	if err != nil || len(missing) != 0 {
		t.Fatalf("after set: %+v, %v", missing, err)
	}

	err = repo.SetOrderCoordinates(ctx, "ord-9999", domain.Coordinates{Lat: 1, Lng: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
