package ports

import (
	"context"
	"delivery-coordination-service/internal/domain"
)

// Port: the store of record for live delivery progress.
type TrackingRepository interface {
	GetTrackingSnapshot(ctx context.Context, orderID string) (*domain.TrackingSnapshot, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.OrderInfo, error)
	UpdateStopStatus(ctx context.Context, stopID string, status domain.StopStatus, photoURL *string) (*domain.RouteStopInfo, error)
	InsertDriverLocation(ctx context.Context, routeID string, loc domain.DriverLocation) error
}

// Read side of the snapshot endpoint, as consumed by tracking sessions.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, orderID string) (*domain.TrackingSnapshot, error)
}
