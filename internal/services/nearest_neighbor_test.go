package services

import (
	"context"
	"delivery-coordination-service/internal/domain"
	"math"
	"slices"
	"testing"
)

var testOrigin = domain.Coordinates{Lat: 34.0894, Lng: -117.8897}

func laStops() []domain.Stop {
	return []domain.Stop{
		stopAt("downtown", 34.0522, -118.2437),
		stopAt("westside", 34.0825, -118.4107),
		stopAt("pasadena", 34.1478, -118.1445),
	}
}

func TestNearestNeighborOptimize(t *testing.T) {
	route, err := NewNearestNeighborStrategy().Optimize(context.Background(), testOrigin, laStops(), domain.OptimizeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(route.OrderedStops) != 3 {
		t.Fatalf("expected 3 stops, got %d", len(route.OrderedStops))
	}

	want := []string{"pasadena", "downtown", "westside"}
	if got := route.StopIDs(); !slices.Equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}

	for i, s := range route.OrderedStops {
		if s.StopIndex != i {
			t.Fatalf("stop %q index = %d, want %d", s.StopID, s.StopIndex, i)
		}
		if s.ETA != nil {
			t.Fatalf("stop %q has ETA, want nil", s.StopID)
		}
		if s.DistanceMeters <= 0 || s.DurationSeconds <= 0 {
			t.Fatalf("stop %q leg = %d m / %d s, want positive", s.StopID, s.DistanceMeters, s.DurationSeconds)
		}
	}

	if route.TotalDistanceMeters <= 0 || route.TotalDurationSeconds <= 0 {
		t.Fatalf("totals = %d m / %d s, want positive", route.TotalDistanceMeters, route.TotalDurationSeconds)
	}
	if route.OptimizedPolyline != nil {
		t.Fatalf("expected nil polyline")
	}
	if route.Strategy != StrategyNearestNeighbor {
		t.Fatalf("strategy = %q", route.Strategy)
	}
}

func TestNearestNeighborTotalsAreSumOfLegs(t *testing.T) {
	route, _ := NewNearestNeighborStrategy().Optimize(context.Background(), testOrigin, laStops(), domain.OptimizeOptions{})

	meters, seconds := 0, 0
	for _, s := range route.OrderedStops {
		meters += s.DistanceMeters
		seconds += s.DurationSeconds
	}
	if meters != route.TotalDistanceMeters || seconds != route.TotalDurationSeconds {
		t.Fatalf("legs sum to %d m / %d s, totals are %d m / %d s",
			meters, seconds, route.TotalDistanceMeters, route.TotalDurationSeconds)
	}
}

func TestNearestNeighborReturnLegAddsToTotals(t *testing.T) {
	s := NewNearestNeighborStrategy()
	oneWay, _ := s.Optimize(context.Background(), testOrigin, laStops(), domain.OptimizeOptions{})
	round, _ := s.Optimize(context.Background(), testOrigin, laStops(), domain.OptimizeOptions{ReturnToOrigin: true})

	if !slices.Equal(oneWay.StopIDs(), round.StopIDs()) {
		t.Fatalf("return leg changed the order: %v vs %v", oneWay.StopIDs(), round.StopIDs())
	}
	if round.TotalDistanceMeters <= oneWay.TotalDistanceMeters {
		t.Fatalf("round trip %d m should exceed one way %d m", round.TotalDistanceMeters, oneWay.TotalDistanceMeters)
	}
}

func TestNearestNeighborTieGoesToFirstInput(t *testing.T) {
	stops := []domain.Stop{
		stopAt("second", 34.10, -118.00),
		stopAt("first", 34.10, -118.00),
	}

	route, _ := NewNearestNeighborStrategy().Optimize(context.Background(), testOrigin, stops, domain.OptimizeOptions{})
	if got := route.StopIDs(); !slices.Equal(got, []string{"second", "first"}) {
		t.Fatalf("order = %v, want input order on tie", got)
	}
	if route.OrderedStops[1].DistanceMeters != 0 {
		t.Fatalf("co-located leg = %d m, want 0", route.OrderedStops[1].DistanceMeters)
	}
}

func TestNearestNeighborIsDeterministic(t *testing.T) {
	s := NewNearestNeighborStrategy()
	first, _ := s.Optimize(context.Background(), testOrigin, laStops(), domain.OptimizeOptions{})

	for i := 0; i < 20; i++ {
		next, _ := s.Optimize(context.Background(), testOrigin, laStops(), domain.OptimizeOptions{})
		if !slices.Equal(first.StopIDs(), next.StopIDs()) || first.TotalDistanceMeters != next.TotalDistanceMeters {
			t.Fatalf("run %d differs: %v vs %v", i, first.StopIDs(), next.StopIDs())
		}
	}
}

func TestNearestNeighborRejectsMissingCoordinates(t *testing.T) {
	stops := []domain.Stop{{StopID: "x"}}
	if _, err := NewNearestNeighborStrategy().Optimize(context.Background(), testOrigin, stops, domain.OptimizeOptions{}); err == nil {
		t.Fatalf("expected error for stop without coordinates")
	}
}

func TestNearestNeighborRejectsNaNCoordinates(t *testing.T) {
	stops := []domain.Stop{stopAt("a", 34.05, -118.24), stopAt("b", math.NaN(), -118.14)}
	if _, err := NewNearestNeighborStrategy().Optimize(context.Background(), testOrigin, stops, domain.OptimizeOptions{}); err == nil {
		t.Fatalf("expected error for NaN coordinate")
	}
}
