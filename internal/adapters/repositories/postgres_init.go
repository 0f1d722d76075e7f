package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Initialize the Postgres database schema.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createDriversQuery := `
	CREATE TABLE IF NOT EXISTS drivers (
		driver_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		vehicle TEXT NOT NULL DEFAULT ''
	);
	`

	createOrdersQuery := `
	CREATE TABLE IF NOT EXISTS orders (
		order_id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'confirmed', 'preparing', 'out_for_delivery', 'delivered', 'cancelled')),
		address TEXT NOT NULL DEFAULT '',
		lat DOUBLE PRECISION,
		lng DOUBLE PRECISION,
		delivery_window_start TIMESTAMPTZ,
		delivery_window_end TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`

	createRoutesQuery := `
	CREATE TABLE IF NOT EXISTS routes (
		route_id TEXT PRIMARY KEY,
		driver_id TEXT REFERENCES drivers(driver_id),
		route_date DATE NOT NULL DEFAULT CURRENT_DATE,
		total_distance_meters INTEGER NOT NULL DEFAULT 0,
		total_duration_seconds INTEGER NOT NULL DEFAULT 0,
		optimized_polyline TEXT,
		strategy TEXT,
		optimized_at TIMESTAMPTZ
	);
	`

	createRouteStopsQuery := `
	CREATE TABLE IF NOT EXISTS route_stops (
		stop_id TEXT PRIMARY KEY,
		route_id TEXT NOT NULL REFERENCES routes(route_id) ON DELETE CASCADE,
		order_id TEXT NOT NULL REFERENCES orders(order_id),
		stop_index INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'enroute', 'arrived', 'delivered', 'skipped')),
		lat DOUBLE PRECISION,
		lng DOUBLE PRECISION,
		delivery_window_start TIMESTAMPTZ,
		delivery_window_end TIMESTAMPTZ,
		eta TIMESTAMPTZ,
		delivery_photo_url TEXT
	);
	`

	createDriverLocationsQuery := `
	CREATE TABLE IF NOT EXISTS driver_locations (
		location_id BIGSERIAL PRIMARY KEY,
		route_id TEXT NOT NULL REFERENCES routes(route_id) ON DELETE CASCADE,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		accuracy DOUBLE PRECISION,
		heading DOUBLE PRECISION,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`

	createGeocodeCacheQuery := `
	CREATE TABLE IF NOT EXISTS geocode_cache (
		address TEXT PRIMARY KEY,
		lat DOUBLE PRECISION NOT NULL,
		lng DOUBLE PRECISION NOT NULL
	);
	`

	createIndexQueries := []string{
		`CREATE INDEX IF NOT EXISTS idx_route_stops_route_index ON route_stops(route_id, stop_index);`,
		`CREATE INDEX IF NOT EXISTS idx_route_stops_order ON route_stops(order_id);`,
		`CREATE INDEX IF NOT EXISTS idx_driver_locations_route_recorded ON driver_locations(route_id, recorded_at DESC);`,
	}

	statements := []string{
		createDriversQuery,
		createOrdersQuery,
		createRoutesQuery,
		createRouteStopsQuery,
		createDriverLocationsQuery,
		createGeocodeCacheQuery,
	}
	statements = append(statements, createIndexQueries...)

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}
