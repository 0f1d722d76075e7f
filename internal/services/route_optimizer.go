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

const (
	StrategySingleStop = "single_stop"
	StrategyEmpty      = "empty"

	DefaultProviderTimeout = 15 * time.Second
)

// RouteOptimizer selects between a provider-backed strategy and the local
// fallback.
//
// Policy: validate every stop, short-circuit trivial inputs, try the provider
// when one is configured, and on any provider failure run the fallback.
// Provider errors are logged and never returned to the caller.
type RouteOptimizer struct {
	Provider        ports.RouteStrategy // nil when no provider credential is configured
	Fallback        ports.RouteStrategy
	Cache           ports.RouteCache // optional
	ProviderTimeout time.Duration
	Now             func() time.Time
}

func NewRouteOptimizer(provider ports.RouteStrategy, cache ports.RouteCache) *RouteOptimizer {
	return &RouteOptimizer{
		Provider:        provider,
		Fallback:        NewNearestNeighborStrategy(),
		Cache:           cache,
		ProviderTimeout: DefaultProviderTimeout,
		Now:             time.Now,
	}
}

// Optimize orders stops into a route starting at origin.
//
// A *StopValidationError is returned when any stop is unroutable; in that
// case no collaborator is called. Every other outcome is a complete route
// containing each input stop exactly once.
func (o *RouteOptimizer) Optimize(
	ctx context.Context,
	origin domain.Coordinates,
	stops []domain.Stop,
	opts domain.OptimizeOptions,
) (_ *domain.OptimizedRoute, err error) {
	defer obs.Time(ctx, "route.Optimize")(&err)
	start := time.Now()

	if res := ValidateStops(stops); !res.Valid {
		return nil, &StopValidationError{Issues: res.Errors}
	}

	if opts.DepartAt.IsZero() {
		opts.DepartAt = o.now()
	}

	var route *domain.OptimizedRoute
	switch len(stops) {
	case 0:
		route = &domain.OptimizedRoute{OrderedStops: []domain.OrderedStop{}, Strategy: StrategyEmpty}
	case 1:
		// A single destination needs no routing call.
		route = &domain.OptimizedRoute{
			OrderedStops: []domain.OrderedStop{{StopID: stops[0].StopID, StopIndex: 0}},
			Strategy:     StrategySingleStop,
		}
	default:
		route = o.tryProvider(ctx, origin, stops, opts)
		if route == nil {
			route, err = o.Fallback.Optimize(ctx, origin, stops, opts)
			if err != nil {
				return nil, fmt.Errorf("optimize route: fallback %s: %w", o.Fallback.Name(), err)
			}
		}
	}

	obs.ObserveOptimization(route.Strategy, time.Since(start))
	return route, nil
}

// tryProvider returns nil whenever the provider is unavailable or fails.
func (o *RouteOptimizer) tryProvider(
	ctx context.Context,
	origin domain.Coordinates,
	stops []domain.Stop,
	opts domain.OptimizeOptions,
) *domain.OptimizedRoute {
	if o.Provider == nil {
		return nil
	}

	if o.Cache != nil {
		cached, err := o.Cache.Get(ctx, origin, stops, opts)
		if err != nil {
			log.Printf("req_id=%s op=route.cache.Get err=%v", obs.RequestID(ctx), err)
		}
		if cached != nil && checkPermutation(cached, stops) == nil {
			cached.Strategy = "cache:" + o.Provider.Name()
			ApplyETAs(cached, opts.DepartAt)
			return cached
		}
	}

	timeout := o.ProviderTimeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	route, err := o.Provider.Optimize(pctx, origin, stops, opts)
	if err == nil {
		err = checkPermutation(route, stops)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("provider timed out after %s: %w", timeout, err)
		}
		log.Printf(
			"req_id=%s op=optimize provider=%s fallback=%s err=%v",
			obs.RequestID(ctx), o.Provider.Name(), o.Fallback.Name(), err,
		)
		obs.IncProviderFallback()
		return nil
	}

	ApplyETAs(route, opts.DepartAt)

	if o.Cache != nil {
		if err := o.Cache.Put(ctx, origin, stops, opts, route); err != nil {
			log.Printf("req_id=%s op=route.cache.Put err=%v", obs.RequestID(ctx), err)
		}
	}

	return route
}

func (o *RouteOptimizer) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// ApplyETAs sets each stop's ETA to departAt plus the duration of every leg up
// to and including the leg that arrives at that stop.
func ApplyETAs(route *domain.OptimizedRoute, departAt time.Time) {
	elapsed := 0
	for i := range route.OrderedStops {
		elapsed += route.OrderedStops[i].DurationSeconds
		eta := departAt.Add(time.Duration(elapsed) * time.Second)
		route.OrderedStops[i].ETA = &eta
	}
}

// checkPermutation rejects any route that is not exactly one entry per input
// stop with StopIndex values 0..n-1.
func checkPermutation(route *domain.OptimizedRoute, stops []domain.Stop) error {
	if route == nil {
		return errors.New("strategy returned no route")
	}
	if len(route.OrderedStops) != len(stops) {
		return fmt.Errorf("route has %d stops, want %d", len(route.OrderedStops), len(stops))
	}

	want := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		want[s.StopID] = struct{}{}
	}

	for i, s := range route.OrderedStops {
		if s.StopIndex != i {
			return fmt.Errorf("stop %q has index %d at position %d", s.StopID, s.StopIndex, i)
		}
		if _, ok := want[s.StopID]; !ok {
			return fmt.Errorf("stop %q is unknown or repeated", s.StopID)
		}
		delete(want, s.StopID)
	}

	return nil
}
