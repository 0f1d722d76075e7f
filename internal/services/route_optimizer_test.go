package services

import (
	"context"
	"delivery-coordination-service/internal/adapters/routing"
	"delivery-coordination-service/internal/domain"
	"errors"
	"math"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

var testDepart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type memRouteCache struct {
	mu   sync.Mutex
	m    map[string]domain.OptimizedRoute
	puts int
}

func cacheKey(stops []domain.Stop) string {
	ids := make([]string, 0, len(stops))
	for _, s := range stops {
		ids = append(ids, s.StopID)
	}
	return strings.Join(ids, ",")
}

func (c *memRouteCache) Get(_ context.Context, _ domain.Coordinates, stops []domain.Stop, _ domain.OptimizeOptions) (*domain.OptimizedRoute, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.m[cacheKey(stops)]
	if !ok {
		return nil, nil
	}
	r.OrderedStops = slices.Clone(r.OrderedStops)
	return &r, nil
}

func (c *memRouteCache) Put(_ context.Context, _ domain.Coordinates, stops []domain.Stop, _ domain.OptimizeOptions, route *domain.OptimizedRoute) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[string]domain.OptimizedRoute)
	}
	c.m[cacheKey(stops)] = *route
	c.puts++
	return nil
}

// blockingStrategy never answers before its context ends.
type blockingStrategy struct{}

func (blockingStrategy) Name() string { return "blocking" }

func (blockingStrategy) Optimize(ctx context.Context, _ domain.Coordinates, _ []domain.Stop, _ domain.OptimizeOptions) (*domain.OptimizedRoute, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestOptimizer(provider *routing.MockStrategy) *RouteOptimizer {
	o := NewRouteOptimizer(nil, nil)
	if provider != nil {
		o.Provider = provider
	}
	o.Now = func() time.Time { return testDepart }
	return o
}

func assertPermutation(t *testing.T, route *domain.OptimizedRoute, stops []domain.Stop) {
	t.Helper()

	if err := checkPermutation(route, stops); err != nil {
		t.Fatalf("route is not a permutation of the input: %v", err)
	}
}

func TestOptimizeRejectsStopsWithoutCoordinates(t *testing.T) {
	provider := &routing.MockStrategy{}
	cache := &memRouteCache{}
	o := newTestOptimizer(provider)
	o.Cache = cache

	stops := append(laStops(), domain.Stop{StopID: "nowhere", OrderID: "o-9"})
	_, err := o.Optimize(context.Background(), testOrigin, stops, domain.OptimizeOptions{})

	var verr *StopValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *StopValidationError", err)
	}
	if len(verr.Issues) != 1 || verr.Issues[0].StopID != "nowhere" {
		t.Fatalf("issues = %+v", verr.Issues)
	}
	if provider.Calls() != 0 {
		t.Fatalf("provider called %d times on invalid input", provider.Calls())
	}
	if cache.puts != 0 {
		t.Fatalf("cache touched on invalid input")
	}
}

func TestOptimizeRejectsDuplicateAndNonFiniteStops(t *testing.T) {
	tests := []struct {
		name  string
		stops []domain.Stop
		code  string
	}{
		{name: "duplicate stop id", stops: []domain.Stop{stopAt("a", 34.05, -118.24), stopAt("a", 34.10, -118.30), stopAt("b", 34.14, -118.14)}, code: CodeDuplicateStopID},
		{name: "nan coordinate", stops: []domain.Stop{stopAt("a", 34.05, -118.24), stopAt("b", math.NaN(), -118.14)}, code: CodeInvalidCoordinates},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &routing.MockStrategy{}
			cache := &memRouteCache{}
			o := newTestOptimizer(provider)
			o.Cache = cache

			route, err := o.Optimize(context.Background(), testOrigin, tt.stops, domain.OptimizeOptions{})

			var verr *StopValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v (route %+v), want *StopValidationError", err, route)
			}
			if len(verr.Issues) != 1 || verr.Issues[0].Code != tt.code {
				t.Fatalf("issues = %+v, want one %s", verr.Issues, tt.code)
			}
			if provider.Calls() != 0 || cache.puts != 0 {
				t.Fatalf("collaborators called on invalid input: provider=%d puts=%d", provider.Calls(), cache.puts)
			}
		})
	}
}

func TestOptimizeEmptyInput(t *testing.T) {
	provider := &routing.MockStrategy{}
	route, err := newTestOptimizer(provider).Optimize(context.Background(), testOrigin, nil, domain.OptimizeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(route.OrderedStops) != 0 || route.TotalDistanceMeters != 0 {
		t.Fatalf("expected empty route, got %+v", route)
	}
	if provider.Calls() != 0 {
		t.Fatalf("provider called for empty input")
	}
}

func TestOptimizeSingleStopSkipsProvider(t *testing.T) {
	provider := &routing.MockStrategy{}
	stops := []domain.Stop{stopAt("only", 34.05, -118.24)}

	route, err := newTestOptimizer(provider).Optimize(context.Background(), testOrigin, stops, domain.OptimizeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if provider.Calls() != 0 {
		t.Fatalf("provider called for a single stop")
	}
	if len(route.OrderedStops) != 1 || route.OrderedStops[0].StopID != "only" || route.OrderedStops[0].StopIndex != 0 {
		t.Fatalf("route = %+v", route.OrderedStops)
	}
	if route.OrderedStops[0].ETA != nil || route.OptimizedPolyline != nil {
		t.Fatalf("single stop route should carry no ETA or polyline")
	}
	if route.TotalDistanceMeters != 0 || route.TotalDurationSeconds != 0 {
		t.Fatalf("single stop totals = %d / %d, want 0 / 0", route.TotalDistanceMeters, route.TotalDurationSeconds)
	}
}

func TestOptimizeProviderSuccessSetsETAs(t *testing.T) {
	provider := &routing.MockStrategy{
		Order:      []string{"westside", "downtown", "pasadena"},
		LegSeconds: 600,
		LegMeters:  5000,
		Polyline:   "encoded",
	}
	stops := laStops()

	route, err := newTestOptimizer(provider).Optimize(context.Background(), testOrigin, stops, domain.OptimizeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertPermutation(t, route, stops)

	if !slices.Equal(route.StopIDs(), provider.Order) {
		t.Fatalf("order = %v, want provider order %v", route.StopIDs(), provider.Order)
	}
	for i, s := range route.OrderedStops {
		want := testDepart.Add(time.Duration(600*(i+1)) * time.Second)
		if s.ETA == nil || !s.ETA.Equal(want) {
			t.Fatalf("stop %d ETA = %v, want %v", i, s.ETA, want)
		}
	}
	if route.OptimizedPolyline == nil || *route.OptimizedPolyline != "encoded" {
		t.Fatalf("polyline = %v", route.OptimizedPolyline)
	}
}

func TestOptimizeUsesExplicitDeparture(t *testing.T) {
	provider := &routing.MockStrategy{LegSeconds: 60}
	depart := testDepart.Add(3 * time.Hour)

	route, _ := newTestOptimizer(provider).Optimize(context.Background(), testOrigin, laStops(), domain.OptimizeOptions{DepartAt: depart})
	if got := *route.OrderedStops[0].ETA; !got.Equal(depart.Add(time.Minute)) {
		t.Fatalf("first ETA = %v, want %v", got, depart.Add(time.Minute))
	}
}

func TestOptimizeFallsBackOnProviderFailure(t *testing.T) {
	tests := []struct {
		name     string
		provider *routing.MockStrategy
	}{
		{"provider error", &routing.MockStrategy{Err: errors.New("503 from provider")}},
		{"missing stop", &routing.MockStrategy{Order: []string{"downtown", "westside"}}},
		{"unknown stop", &routing.MockStrategy{Order: []string{"downtown", "westside", "mars"}}},
		{"duplicate stop", &routing.MockStrategy{Order: []string{"downtown", "downtown", "westside"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stops := laStops()
			route, err := newTestOptimizer(tt.provider).Optimize(context.Background(), testOrigin, stops, domain.OptimizeOptions{})
			if err != nil {
				t.Fatalf("provider failure leaked to caller: %v", err)
			}

			assertPermutation(t, route, stops)
			if route.Strategy != StrategyNearestNeighbor {
				t.Fatalf("strategy = %q, want fallback", route.Strategy)
			}
			if route.OptimizedPolyline != nil {
				t.Fatalf("fallback route has a polyline")
			}
			for _, s := range route.OrderedStops {
				if s.ETA != nil {
					t.Fatalf("fallback stop %q has ETA", s.StopID)
				}
			}
		})
	}
}

func TestOptimizeWithoutProviderUsesFallback(t *testing.T) {
	route, err := newTestOptimizer(nil).Optimize(context.Background(), testOrigin, laStops(), domain.OptimizeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Strategy != StrategyNearestNeighbor {
		t.Fatalf("strategy = %q", route.Strategy)
	}
}

func TestOptimizeFallsBackOnProviderTimeout(t *testing.T) {
	o := newTestOptimizer(nil)
	o.Provider = blockingStrategy{}
	o.ProviderTimeout = 20 * time.Millisecond

	start := time.Now()
	route, err := o.Optimize(context.Background(), testOrigin, laStops(), domain.OptimizeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Strategy != StrategyNearestNeighbor {
		t.Fatalf("strategy = %q, want fallback", route.Strategy)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not enforced")
	}
}

func TestOptimizeCachesProviderResults(t *testing.T) {
	provider := &routing.MockStrategy{LegSeconds: 300, Polyline: "p"}
	cache := &memRouteCache{}
	o := newTestOptimizer(provider)
	o.Cache = cache

	first, err := o.Optimize(context.Background(), testOrigin, laStops(), domain.OptimizeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cache.puts != 1 {
		t.Fatalf("puts = %d, want 1", cache.puts)
	}

	later := testDepart.Add(time.Hour)
	second, err := o.Optimize(context.Background(), testOrigin, laStops(), domain.OptimizeOptions{DepartAt: later})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if provider.Calls() != 1 {
		t.Fatalf("provider calls = %d, want 1", provider.Calls())
	}
	if second.Strategy != "cache:mock" {
		t.Fatalf("strategy = %q, want cache:mock", second.Strategy)
	}
	if !slices.Equal(first.StopIDs(), second.StopIDs()) {
		t.Fatalf("cached order differs")
	}
	if got := *second.OrderedStops[0].ETA; !got.Equal(later.Add(5 * time.Minute)) {
		t.Fatalf("cached ETA = %v, want recomputed from new departure", got)
	}
}

func TestOptimizeDoesNotCacheFallbackResults(t *testing.T) {
	cache := &memRouteCache{}
	o := newTestOptimizer(&routing.MockStrategy{Err: errors.New("down")})
	o.Cache = cache

	o.Optimize(context.Background(), testOrigin, laStops(), domain.OptimizeOptions{})
	if cache.puts != 0 {
		t.Fatalf("fallback result was cached")
	}
}

func TestApplyETAsIsCumulative(t *testing.T) {
	route := &domain.OptimizedRoute{OrderedStops: []domain.OrderedStop{
		{StopID: "a", DurationSeconds: 100},
		{StopID: "b", DurationSeconds: 0},
		{StopID: "c", DurationSeconds: 50},
	}}
	ApplyETAs(route, testDepart)

	want := []int{100, 100, 150}
	for i, s := range route.OrderedStops {
		if !s.ETA.Equal(testDepart.Add(time.Duration(want[i]) * time.Second)) {
			t.Fatalf("ETA %d = %v, want +%ds", i, s.ETA, want[i])
		}
	}
}
