package ports

import (
	"context"
	"delivery-coordination-service/internal/domain"
)

// Contract for producing a visiting order for a set of validated stops.
// Implementations may assume every stop has coordinates.
type RouteStrategy interface {
	// Short identifier used in logs and metrics.
	Name() string
	// Return an ordered route from origin through every stop.
	Optimize(ctx context.Context, origin domain.Coordinates, stops []domain.Stop, opts domain.OptimizeOptions) (*domain.OptimizedRoute, error)
}
