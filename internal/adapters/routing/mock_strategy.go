package routing

import (
	"context"
	"delivery-coordination-service/internal/domain"
	"sync"
)

// MockStrategy returns a canned route or error and records each call.
// If Order is set, the route visits stops in that order of stop IDs, with
// LegSeconds and LegMeters for every leg.
type MockStrategy struct {
	Order      []string
	LegSeconds int
	LegMeters  int
	Polyline   string
	Err        error

	mu    sync.Mutex
	calls int
}

func (m *MockStrategy) Name() string { return "mock" }

func (m *MockStrategy) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockStrategy) Optimize(
	ctx context.Context,
	origin domain.Coordinates,
	stops []domain.Stop,
	opts domain.OptimizeOptions,
) (*domain.OptimizedRoute, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	order := m.Order
	if order == nil {
		for _, s := range stops {
			order = append(order, s.StopID)
		}
	}

	route := &domain.OptimizedRoute{Strategy: m.Name()}
	for i, id := range order {
		route.OrderedStops = append(route.OrderedStops, domain.OrderedStop{
			StopID:          id,
			StopIndex:       i,
			DistanceMeters:  m.LegMeters,
			DurationSeconds: m.LegSeconds,
		})
		route.TotalDistanceMeters += m.LegMeters
		route.TotalDurationSeconds += m.LegSeconds
	}
	if m.Polyline != "" {
		p := m.Polyline
		route.OptimizedPolyline = &p
	}

	return route, nil
}
