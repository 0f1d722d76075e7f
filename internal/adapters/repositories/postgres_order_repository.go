package repositories

import (
	"context"
	"database/sql"
	"delivery-coordination-service/internal/domain"
	"delivery-coordination-service/internal/platform/obs"
	"delivery-coordination-service/internal/ports"
	"errors"
	"fmt"
)

// Postgres-backed implementation of the OrderLocationRepository port.
type PostgresOrderRepository struct{ DB *sql.DB }

func NewPostgresOrderRepository(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{DB: db}
}

// Orders with an address but no coordinates, oldest first.
func (r *PostgresOrderRepository) ListOrdersMissingCoordinates(ctx context.Context) (_ []ports.OrderAddress, err error) {
	defer obs.Time(ctx, "orders.ListMissingCoordinates")(&err)

	if r.DB == nil {
		return nil, errors.New("postgres order repository: DB is nil")
	}

	rows, err := r.DB.QueryContext(ctx, `
	SELECT order_id, address
	FROM orders
	WHERE (lat IS NULL OR lng IS NULL) AND address <> ''
	ORDER BY updated_at, order_id;
	`)
	if err != nil {
		return nil, fmt.Errorf("list orders missing coordinates: query orders: %w", err)
	}
	defer rows.Close()

	var out []ports.OrderAddress
	for rows.Next() {
		var o ports.OrderAddress
		if err := rows.Scan(&o.OrderID, &o.Address); err != nil {
			return nil, fmt.Errorf("list orders missing coordinates: scan row: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders missing coordinates: row iteration: %w", err)
	}

	return out, nil
}

func (r *PostgresOrderRepository) SetOrderCoordinates(
	ctx context.Context,
	orderID string,
	c domain.Coordinates,
) (err error) {
	defer obs.Time(ctx, "orders.SetCoordinates")(&err)

	if r.DB == nil {
		return errors.New("postgres order repository: DB is nil")
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set order coordinates: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
	UPDATE orders SET lat = $2, lng = $3, updated_at = now() WHERE order_id = $1;
	`, orderID, c.Lat, c.Lng)
	if err != nil {
		return fmt.Errorf("set order coordinates: update orders: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set order coordinates: order %q: %w", orderID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
	UPDATE route_stops SET lat = $2, lng = $3 WHERE order_id = $1;
	`, orderID, c.Lat, c.Lng); err != nil {
		return fmt.Errorf("set order coordinates: update route_stops: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set order coordinates: commit tx: %w", err)
	}
	return nil
}
