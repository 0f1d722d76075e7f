package repositories

import (
	"context"
	"database/sql"
	"delivery-coordination-service/internal/domain"
	"delivery-coordination-service/internal/platform/obs"
	"errors"
	"fmt"
)

// Postgres-backed implementation of the RouteRepository port.
type PostgresRouteRepository struct{ DB *sql.DB }

func NewPostgresRouteRepository(db *sql.DB) *PostgresRouteRepository {
	return &PostgresRouteRepository{DB: db}
}

// Return the stops of a route in their current order.
// An unknown route is ErrNotFound; a known route without stops is empty.
func (r *PostgresRouteRepository) ListRouteStops(ctx context.Context, routeID string) (_ []domain.Stop, err error) {
	defer obs.Time(ctx, "routes.ListRouteStops")(&err)

	if r.DB == nil {
		return nil, errors.New("postgres route repository: DB is nil")
	}

	if err := routeExists(ctx, r.DB, routeID); err != nil {
		return nil, fmt.Errorf("list route stops: %w", err)
	}

	query := `
	SELECT
		stop_id,
		order_id,
		lat,
		lng,
		delivery_window_start,
		delivery_window_end
	FROM route_stops
	WHERE route_id = $1
	ORDER BY stop_index, stop_id;
	`
	rows, err := r.DB.QueryContext(ctx, query, routeID)
	if err != nil {
		return nil, fmt.Errorf("list route stops: query route_stops table: %w", err)
	}
	defer rows.Close()

	stops := make([]domain.Stop, 0, 32)
	for rows.Next() {
		var s domain.Stop
		err := rows.Scan(&s.StopID, &s.OrderID, &s.Lat, &s.Lng, &s.DeliveryWindowStart, &s.DeliveryWindowEnd)
		if err != nil {
			return nil, fmt.Errorf("list route stops: scan row: %w", err)
		}
		stops = append(stops, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list route stops: row iteration: %w", err)
	}

	return stops, nil
}

// Persist stop order, ETAs, polyline and totals in one transaction.
func (r *PostgresRouteRepository) SaveOptimizedRoute(
	ctx context.Context,
	routeID string,
	route *domain.OptimizedRoute,
) (_ []domain.RouteStopInfo, err error) {
	defer obs.Time(ctx, "routes.SaveOptimizedRoute")(&err)

	if r.DB == nil {
		return nil, errors.New("postgres route repository: DB is nil")
	}
	if route == nil {
		return nil, errors.New("save optimized route: route is nil")
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("save optimized route: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
	UPDATE routes
	SET total_distance_meters = $2,
		total_duration_seconds = $3,
		optimized_polyline = $4,
		strategy = $5,
		optimized_at = now()
	WHERE route_id = $1;
	`, routeID, route.TotalDistanceMeters, route.TotalDurationSeconds, route.OptimizedPolyline, route.Strategy)
	if err != nil {
		return nil, fmt.Errorf("save optimized route: update routes: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("save optimized route %q: %w", routeID, ErrNotFound)
	}

	stmt, err := tx.PrepareContext(ctx, `
	UPDATE route_stops
	SET stop_index = $3, eta = $4
	WHERE route_id = $1 AND stop_id = $2
	RETURNING stop_id, route_id, order_id, stop_index, status, eta, delivery_photo_url;
	`)
	if err != nil {
		return nil, fmt.Errorf("save optimized route: db prepare: %w", err)
	}
	defer stmt.Close()

	out := make([]domain.RouteStopInfo, 0, len(route.OrderedStops))
	for _, s := range route.OrderedStops {
		info, err := scanRouteStop(stmt.QueryRowContext(ctx, routeID, s.StopID, s.StopIndex, s.ETA))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("save optimized route: stop %q on route %q: %w", s.StopID, routeID, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("save optimized route: stop %q: %w", s.StopID, err)
		}
		out = append(out, info)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("save optimized route: commit: %w", err)
	}

	return out, nil
}

func routeExists(ctx context.Context, db *sql.DB, routeID string) error {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM routes WHERE route_id = $1;`, routeID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("route %q: %w", routeID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("route %q: %w", routeID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRouteStop(row rowScanner) (domain.RouteStopInfo, error) {
	var info domain.RouteStopInfo
	var status string
	err := row.Scan(
		&info.StopID,
		&info.RouteID,
		&info.OrderID,
		&info.StopIndex,
		&status,
		&info.ETA,
		&info.DeliveryPhotoURL,
	)
	info.Status = domain.StopStatus(status)
	return info, err
}
