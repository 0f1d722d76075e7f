package repositories

import (
	"context"
	"database/sql"
	"delivery-coordination-service/internal/domain"
	"delivery-coordination-service/internal/platform/obs"
	"errors"
	"fmt"
	"time"
)

// Postgres-backed implementation of the TrackingRepository port.
type PostgresTrackingRepository struct{ DB *sql.DB }

func NewPostgresTrackingRepository(db *sql.DB) *PostgresTrackingRepository {
	return &PostgresTrackingRepository{DB: db}
}

// Assemble the full tracking view of one order.
// Only a missing order is ErrNotFound; route, driver and location are optional.
func (r *PostgresTrackingRepository) GetTrackingSnapshot(
	ctx context.Context,
	orderID string,
) (_ *domain.TrackingSnapshot, err error) {
	defer obs.Time(ctx, "tracking.GetTrackingSnapshot")(&err)

	if r.DB == nil {
		return nil, errors.New("postgres tracking repository: DB is nil")
	}

	snap := &domain.TrackingSnapshot{}

	err = r.DB.QueryRowContext(ctx, `
	SELECT order_id, status, updated_at FROM orders WHERE order_id = $1;
	`, orderID).Scan(&snap.Order.OrderID, &snap.Order.Status, &snap.Order.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get tracking snapshot: order %q: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tracking snapshot: query orders: %w", err)
	}

	// Latest route the order is assigned to.
	stop, err := scanRouteStop(r.DB.QueryRowContext(ctx, `
	SELECT s.stop_id, s.route_id, s.order_id, s.stop_index, s.status, s.eta, s.delivery_photo_url
	FROM route_stops s
	JOIN routes r ON r.route_id = s.route_id
	WHERE s.order_id = $1
	ORDER BY r.route_date DESC, s.route_id DESC
	LIMIT 1;
	`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tracking snapshot: query route_stops: %w", err)
	}
	snap.RouteStop = &stop
	if stop.ETA != nil {
		snap.ETA = domain.NewETAWindow(*stop.ETA)
	}

	var driver domain.DriverInfo
	err = r.DB.QueryRowContext(ctx, `
	SELECT d.driver_id, d.name, d.phone, d.vehicle
	FROM routes r
	JOIN drivers d ON d.driver_id = r.driver_id
	WHERE r.route_id = $1;
	`, stop.RouteID).Scan(&driver.DriverID, &driver.Name, &driver.Phone, &driver.Vehicle)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("get tracking snapshot: query drivers: %w", err)
	default:
		snap.Driver = &driver
	}

	var loc domain.DriverLocation
	err = r.DB.QueryRowContext(ctx, `
	SELECT latitude, longitude, recorded_at, accuracy, heading
	FROM driver_locations
	WHERE route_id = $1
	ORDER BY recorded_at DESC, location_id DESC
	LIMIT 1;
	`, stop.RouteID).Scan(&loc.Latitude, &loc.Longitude, &loc.RecordedAt, &loc.Accuracy, &loc.Heading)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("get tracking snapshot: query driver_locations: %w", err)
	default:
		snap.Location = &loc
	}

	return snap, nil
}

func (r *PostgresTrackingRepository) UpdateOrderStatus(
	ctx context.Context,
	orderID string,
	status domain.OrderStatus,
) (_ *domain.OrderInfo, err error) {
	defer obs.Time(ctx, "tracking.UpdateOrderStatus")(&err)

	if r.DB == nil {
		return nil, errors.New("postgres tracking repository: DB is nil")
	}
	if !status.Valid() {
		return nil, fmt.Errorf("update order status: unknown status %q", status)
	}

	var info domain.OrderInfo
	err = r.DB.QueryRowContext(ctx, `
	UPDATE orders SET status = $2, updated_at = now()
	WHERE order_id = $1
	RETURNING order_id, status, updated_at;
	`, orderID, string(status)).Scan(&info.OrderID, &info.Status, &info.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update order status: order %q: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	return &info, nil
}

// A nil photoURL keeps the stored photo.
func (r *PostgresTrackingRepository) UpdateStopStatus(
	ctx context.Context,
	stopID string,
	status domain.StopStatus,
	photoURL *string,
) (_ *domain.RouteStopInfo, err error) {
	defer obs.Time(ctx, "tracking.UpdateStopStatus")(&err)

	if r.DB == nil {
		return nil, errors.New("postgres tracking repository: DB is nil")
	}
	if !status.Valid() {
		return nil, fmt.Errorf("update stop status: unknown status %q", status)
	}

	info, err := scanRouteStop(r.DB.QueryRowContext(ctx, `
	UPDATE route_stops
	SET status = $2, delivery_photo_url = COALESCE($3, delivery_photo_url)
	WHERE stop_id = $1
	RETURNING stop_id, route_id, order_id, stop_index, status, eta, delivery_photo_url;
	`, stopID, string(status), photoURL))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update stop status: stop %q: %w", stopID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update stop status: %w", err)
	}

	return &info, nil
}

// A zero RecordedAt is stored as the database's current time.
func (r *PostgresTrackingRepository) InsertDriverLocation(
	ctx context.Context,
	routeID string,
	loc domain.DriverLocation,
) (err error) {
	defer obs.Time(ctx, "tracking.InsertDriverLocation")(&err)

	if r.DB == nil {
		return errors.New("postgres tracking repository: DB is nil")
	}

	var recordedAt *time.Time
	if !loc.RecordedAt.IsZero() {
		recordedAt = &loc.RecordedAt
	}

	res, err := r.DB.ExecContext(ctx, `
	INSERT INTO driver_locations (route_id, latitude, longitude, accuracy, heading, recorded_at)
	SELECT $1, $2, $3, $4, $5, COALESCE($6, now())
	WHERE EXISTS (SELECT 1 FROM routes WHERE route_id = $1);
	`, routeID, loc.Latitude, loc.Longitude, loc.Accuracy, loc.Heading, recordedAt)
	if err != nil {
		return fmt.Errorf("insert driver location: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("insert driver location: route %q: %w", routeID, ErrNotFound)
	}

	return nil
}
