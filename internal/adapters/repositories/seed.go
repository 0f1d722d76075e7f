package repositories

import (
	"context"
	"database/sql"
	"delivery-coordination-service/internal/domain"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

type DriverSeed struct {
	DriverID string `json:"driver_id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Vehicle  string `json:"vehicle"`
}

type OrderSeed struct {
	OrderID             string             `json:"order_id"`
	Status              domain.OrderStatus `json:"status"`
	Address             string             `json:"address"`
	Lat                 *float64           `json:"lat"`
	Lng                 *float64           `json:"lng"`
	DeliveryWindowStart *time.Time         `json:"delivery_window_start"`
	DeliveryWindowEnd   *time.Time         `json:"delivery_window_end"`
}

type RouteStopSeed struct {
	StopID  string `json:"stop_id"`
	OrderID string `json:"order_id"`
}

type RouteSeed struct {
	RouteID   string          `json:"route_id"`
	DriverID  string          `json:"driver_id"`
	RouteDate string          `json:"route_date"`
	Stops     []RouteStopSeed `json:"stops"`
}

type Seed struct {
	Drivers []DriverSeed `json:"drivers"`
	Orders  []OrderSeed  `json:"orders"`
	Routes  []RouteSeed  `json:"routes"`
}

// ParseSeed decodes and checks demo data. Stops inherit coordinates and
// delivery windows from their order.
func ParseSeed(b []byte) (*Seed, error) {
	var s Seed
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	drivers := make(map[string]struct{}, len(s.Drivers))
	for i, d := range s.Drivers {
		if strings.TrimSpace(d.DriverID) == "" || strings.TrimSpace(d.Name) == "" {
			return nil, fmt.Errorf("driver at index %d: driver_id and name are required", i)
		}
		drivers[d.DriverID] = struct{}{}
	}

	orders := make(map[string]struct{}, len(s.Orders))
	for i := range s.Orders {
		o := &s.Orders[i]
		if strings.TrimSpace(o.OrderID) == "" {
			return nil, fmt.Errorf("order at index %d: order_id is required", i)
		}
		if o.Status == "" {
			o.Status = domain.OrderStatusPending
		}
		if !o.Status.Valid() {
			return nil, fmt.Errorf("order %q: unknown status %q", o.OrderID, o.Status)
		}
		orders[o.OrderID] = struct{}{}
	}

	stops := make(map[string]struct{})
	for i, r := range s.Routes {
		if strings.TrimSpace(r.RouteID) == "" {
			return nil, fmt.Errorf("route at index %d: route_id is required", i)
		}
		if r.DriverID != "" {
			if _, ok := drivers[r.DriverID]; !ok {
				return nil, fmt.Errorf("route %q: unknown driver %q", r.RouteID, r.DriverID)
			}
		}
		for j, st := range r.Stops {
			if st.StopID == "" {
				return nil, fmt.Errorf("route %q stop at index %d: stop_id is required", r.RouteID, j)
			}
			if _, ok := orders[st.OrderID]; !ok {
				return nil, fmt.Errorf("route %q stop %q: unknown order %q", r.RouteID, st.StopID, st.OrderID)
			}
			if _, dup := stops[st.StopID]; dup {
				return nil, fmt.Errorf("route %q: duplicate stop %q", r.RouteID, st.StopID)
			}
			stops[st.StopID] = struct{}{}
		}
	}

	return &s, nil
}

// Populate the database with demo data from a JSON file.
func SeedFromJSON(ctx context.Context, db *sql.DB, jsonPath string) error {
	b, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("seed: read %q: %w", jsonPath, err)
	}

	s, err := ParseSeed(b)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, d := range s.Drivers {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO drivers (driver_id, name, phone, vehicle)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (driver_id) DO UPDATE
		SET name = EXCLUDED.name, phone = EXCLUDED.phone, vehicle = EXCLUDED.vehicle;
		`, d.DriverID, d.Name, d.Phone, d.Vehicle)
		if err != nil {
			return fmt.Errorf("seed: insert driver_id=%s: %w", d.DriverID, err)
		}
	}

	byOrder := make(map[string]OrderSeed, len(s.Orders))
	for _, o := range s.Orders {
		byOrder[o.OrderID] = o
		_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (order_id, status, address, lat, lng, delivery_window_start, delivery_window_end, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (order_id) DO UPDATE
		SET status = EXCLUDED.status,
			address = EXCLUDED.address,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			delivery_window_start = EXCLUDED.delivery_window_start,
			delivery_window_end = EXCLUDED.delivery_window_end,
			updated_at = now();
		`, o.OrderID, string(o.Status), o.Address, o.Lat, o.Lng, o.DeliveryWindowStart, o.DeliveryWindowEnd)
		if err != nil {
			return fmt.Errorf("seed: insert order_id=%s: %w", o.OrderID, err)
		}
	}

	for _, r := range s.Routes {
		var driverID, routeDate any
		if r.DriverID != "" {
			driverID = r.DriverID
		}
		if r.RouteDate != "" {
			routeDate = r.RouteDate
		}

		_, err := tx.ExecContext(ctx, `
		INSERT INTO routes (route_id, driver_id, route_date)
		VALUES ($1, $2, COALESCE($3::date, CURRENT_DATE))
		ON CONFLICT (route_id) DO UPDATE
		SET driver_id = EXCLUDED.driver_id, route_date = EXCLUDED.route_date;
		`, r.RouteID, driverID, routeDate)
		if err != nil {
			return fmt.Errorf("seed: insert route_id=%s: %w", r.RouteID, err)
		}

		for i, st := range r.Stops {
			o := byOrder[st.OrderID]
			_, err := tx.ExecContext(ctx, `
			INSERT INTO route_stops (stop_id, route_id, order_id, stop_index, lat, lng, delivery_window_start, delivery_window_end)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (stop_id) DO UPDATE
			SET route_id = EXCLUDED.route_id,
				order_id = EXCLUDED.order_id,
				stop_index = EXCLUDED.stop_index,
				lat = EXCLUDED.lat,
				lng = EXCLUDED.lng,
				delivery_window_start = EXCLUDED.delivery_window_start,
				delivery_window_end = EXCLUDED.delivery_window_end;
			`, st.StopID, r.RouteID, st.OrderID, i, o.Lat, o.Lng, o.DeliveryWindowStart, o.DeliveryWindowEnd)
			if err != nil {
				return fmt.Errorf("seed: insert stop_id=%s: %w", st.StopID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed: commit tx: %w", err)
	}

	return nil
}
