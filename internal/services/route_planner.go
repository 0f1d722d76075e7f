package services

import (
	"context"
	"delivery-coordination-service/internal/domain"
	"delivery-coordination-service/internal/platform/obs"
	"delivery-coordination-service/internal/ports"
	"errors"
	"fmt"
	"log"
	"time"
)

const EventRouteOptimized = "route.optimized"

// RoutePlanner builds and stores the visiting order for a persisted route.
type RoutePlanner struct {
	Routes    ports.RouteRepository
	Optimizer *RouteOptimizer
	Origin    domain.Coordinates
	Changes   ports.ChangePublisher // optional
	Events    ports.EventPublisher  // optional
}

// RouteOptimizedEvent is the payload of a route.optimized event.
type RouteOptimizedEvent struct {
	RouteID              string    `json:"route_id"`
	StopIDs              []string  `json:"stop_ids"`
	TotalDistanceMeters  int       `json:"total_distance_meters"`
	TotalDurationSeconds int       `json:"total_duration_seconds"`
	Strategy             string    `json:"strategy"`
	OptimizedAt          time.Time `json:"optimized_at"`
}

// Plan the stops of routeID, persist the order and announce the new stop rows.
//
// Announcement failures are logged and do not fail the plan; the stored route
// is the source of truth and tracking clients poll it.
func (p *RoutePlanner) PlanRoute(
	ctx context.Context,
	routeID string,
	opts domain.OptimizeOptions,
) (_ *domain.OptimizedRoute, err error) {
	defer obs.Time(ctx, "route.PlanRoute")(&err)

	if routeID == "" {
		return nil, errors.New("plan route: routeID must be non-empty")
	}
	if p.Optimizer == nil {
		return nil, errors.New("plan route: optimizer must be non-nil")
	}

	stops, err := p.Routes.ListRouteStops(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("plan route: list stops for route %q: %w", routeID, err)
	}

	route, err := p.Optimizer.Optimize(ctx, p.Origin, stops, opts)
	if err != nil {
		return nil, fmt.Errorf("plan route: route %q: %w", routeID, err)
	}

	rows, err := p.Routes.SaveOptimizedRoute(ctx, routeID, route)
	if err != nil {
		return nil, fmt.Errorf("plan route: save route %q: %w", routeID, err)
	}

	if p.Changes != nil {
		for _, row := range rows {
			topic := ports.Topic{Table: ports.TableRouteStops, Key: row.OrderID}
			if err := p.Changes.Publish(ctx, topic, row); err != nil {
				log.Printf("req_id=%s op=route.PlanRoute publish=%s err=%v", obs.RequestID(ctx), topic, err)
			}
		}
	}

	if p.Events != nil {
		evt := RouteOptimizedEvent{
			RouteID:              routeID,
			StopIDs:              route.StopIDs(),
			TotalDistanceMeters:  route.TotalDistanceMeters,
			TotalDurationSeconds: route.TotalDurationSeconds,
			Strategy:             route.Strategy,
			OptimizedAt:          p.Optimizer.now(),
		}
		if err := p.Events.PublishEvent(ctx, routeID, EventRouteOptimized, evt); err != nil {
			log.Printf("req_id=%s op=route.PlanRoute event=%s err=%v", obs.RequestID(ctx), EventRouteOptimized, err)
		}
	}

	return route, nil
}
