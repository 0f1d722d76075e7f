package ports

import (
	"context"
	"delivery-coordination-service/internal/domain"
)

// Optional cache for provider-computed routes.
// Get returns (nil, nil) on a miss.
type RouteCache interface {
	Get(ctx context.Context, origin domain.Coordinates, stops []domain.Stop, opts domain.OptimizeOptions) (*domain.OptimizedRoute, error)
	Put(ctx context.Context, origin domain.Coordinates, stops []domain.Stop, opts domain.OptimizeOptions, route *domain.OptimizedRoute) error
}
