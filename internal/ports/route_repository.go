package ports

import (
	"context"
	"delivery-coordination-service/internal/domain"
)

// Port: a boundary for loading route stops and storing optimization results.
type RouteRepository interface {
	// Retrieve the stops assigned to a route in their current order.
	ListRouteStops(ctx context.Context, routeID string) ([]domain.Stop, error)
	// Persist stop ordering, stop ETAs, polyline and totals for a route.
	// Returns the updated stop rows so callers can announce them.
	SaveOptimizedRoute(ctx context.Context, routeID string, route *domain.OptimizedRoute) ([]domain.RouteStopInfo, error)
}
