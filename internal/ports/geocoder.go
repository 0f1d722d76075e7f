package ports

import (
	"context"
	"delivery-coordination-service/internal/domain"
)

// Contract for resolving free-form delivery addresses to coordinates.
// Addresses without a match are absent from the result; that is not an error.
type Geocoder interface {
	GeocodeMany(ctx context.Context, addresses []string) (map[string]domain.Coordinates, error)
}

// Optional persistent cache in front of a Geocoder, keyed by normalized address.
type GeocodeCache interface {
	GetMany(ctx context.Context, addresses []string) (map[string]domain.Coordinates, error)
	PutMany(ctx context.Context, results map[string]domain.Coordinates) error
}

// An order that still needs coordinates before it can be routed.
type OrderAddress struct {
	OrderID string
	Address string
}

// Port: the orders whose coordinates come from geocoding.
type OrderLocationRepository interface {
	ListOrdersMissingCoordinates(ctx context.Context) ([]OrderAddress, error)
	// Store coordinates on the order and on every route stop for it.
	SetOrderCoordinates(ctx context.Context, orderID string, c domain.Coordinates) error
}
