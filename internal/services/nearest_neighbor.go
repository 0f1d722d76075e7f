package services

import (
	"context"
	"delivery-coordination-service/internal/domain"
	"delivery-coordination-service/internal/geo"
	"fmt"
	"math"
	"slices"
)

const StrategyNearestNeighbor = "nearest_neighbor"

// NearestNeighborStrategy plans a route with a greedy nearest-neighbor walk
// over straight-line distances.
//
// At each step it picks the unvisited stop closest to the current position.
// Ties go to the stop that appears first in the input, so identical input
// always yields an identical order. ETAs are never set and no polyline is
// produced: without a routing provider there is no confidence in absolute
// arrival times.
type NearestNeighborStrategy struct{}

func NewNearestNeighborStrategy() *NearestNeighborStrategy {
	return &NearestNeighborStrategy{}
}

func (*NearestNeighborStrategy) Name() string { return StrategyNearestNeighbor }

func (*NearestNeighborStrategy) Optimize(
	ctx context.Context,
	origin domain.Coordinates,
	stops []domain.Stop,
	opts domain.OptimizeOptions,
) (*domain.OptimizedRoute, error) {
	coords := make([]domain.Coordinates, len(stops))
	for i, s := range stops {
		c, ok := s.Coordinates()
		if !ok {
			return nil, fmt.Errorf("nearest neighbor: stop %q has no coordinates", s.StopID)
		}
		if !c.Valid() {
			return nil, fmt.Errorf("nearest neighbor: stop %q has invalid coordinates %v,%v", s.StopID, c.Lat, c.Lng)
		}
		coords[i] = c
	}

	// Indices into stops, kept in input order so the first candidate wins ties.
	remaining := make([]int, len(stops))
	for i := range stops {
		remaining[i] = i
	}

	current := origin
	ordered := make([]domain.OrderedStop, 0, len(stops))
	totalDistanceMeters := 0
	totalDurationSeconds := 0

	for len(remaining) > 0 {
		bestPos := -1
		bestKm := math.Inf(1)

		for pos, idx := range remaining {
			km := geo.Between(current, coords[idx])
			if km < bestKm {
				bestKm = km
				bestPos = pos
			}
		}

		best := remaining[bestPos]
		meters := int(math.Round(bestKm * 1000))
		seconds := geo.EstimateDurationSeconds(bestKm)

		ordered = append(ordered, domain.OrderedStop{
			StopID:          stops[best].StopID,
			StopIndex:       len(ordered),
			DistanceMeters:  meters,
			DurationSeconds: seconds,
		})
		totalDistanceMeters += meters
		totalDurationSeconds += seconds

		remaining = slices.Delete(remaining, bestPos, bestPos+1)
		current = coords[best]
	}

	// Optionally includes return leg to origin for total route metrics.
	if opts.ReturnToOrigin && len(ordered) > 0 {
		backKm := geo.Between(current, origin)
		totalDistanceMeters += int(math.Round(backKm * 1000))
		totalDurationSeconds += geo.EstimateDurationSeconds(backKm)
	}

	return &domain.OptimizedRoute{
		OrderedStops:         ordered,
		TotalDistanceMeters:  totalDistanceMeters,
		TotalDurationSeconds: totalDurationSeconds,
		OptimizedPolyline:    nil,
		Strategy:             StrategyNearestNeighbor,
	}, nil
}
