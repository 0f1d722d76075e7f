package cache

import (
	"context"
	"delivery-coordination-service/internal/domain"
	"delivery-coordination-service/internal/platform/obs"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
)

const (
	routeKeyPrefix = "route:opt:"

	DefaultRouteTTL = 10 * time.Minute
)

// RedisRouteCache stores provider-computed routes in Redis.
//
// Entries are keyed by a hash of the origin, the options and every stop
// field that can change the answer. ETAs are stored but callers recompute
// them from their own departure time.
type RedisRouteCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisRouteCache(client *redis.Client, ttl time.Duration) *RedisRouteCache {
	if ttl <= 0 {
		ttl = DefaultRouteTTL
	}
	return &RedisRouteCache{Client: client, TTL: ttl}
}

// Get returns (nil, nil) on a miss.
func (c *RedisRouteCache) Get(
	ctx context.Context,
	origin domain.Coordinates,
	stops []domain.Stop,
	opts domain.OptimizeOptions,
) (_ *domain.OptimizedRoute, err error) {
	defer obs.Time(ctx, "route.cache.Get")(&err)

	if c.Client == nil {
		return nil, errors.New("route cache: client is nil")
	}

	b, err := c.Client.Get(ctx, RouteKey(origin, stops, opts)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get route cache: %w", err)
	}

	var route domain.OptimizedRoute
	if err := json.Unmarshal(b, &route); err != nil {
		return nil, fmt.Errorf("get route cache: decode: %w", err)
	}

	return &route, nil
}

func (c *RedisRouteCache) Put(
	ctx context.Context,
	origin domain.Coordinates,
	stops []domain.Stop,
	opts domain.OptimizeOptions,
	route *domain.OptimizedRoute,
) error {
	if c.Client == nil {
		return errors.New("route cache: client is nil")
	}
	if route == nil {
		return errors.New("put route cache: route is nil")
	}

	b, err := json.Marshal(route)
	if err != nil {
		return fmt.Errorf("put route cache: encode: %w", err)
	}

	if err := c.Client.Set(ctx, RouteKey(origin, stops, opts), b, c.TTL).Err(); err != nil {
		return fmt.Errorf("put route cache: %w", err)
	}

	return nil
}

// RouteKey derives the cache key for an optimization request.
//
// Departure only matters when a stop has a delivery window, so it is part of
// the key (to the minute) only in that case.
func RouteKey(origin domain.Coordinates, stops []domain.Stop, opts domain.OptimizeOptions) string {
	d := xxhash.New()

	writeFloat := func(f float64) {
		d.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		d.WriteString("|")
	}
	writeTime := func(t *time.Time) {
		if t == nil {
			d.WriteString("-|")
			return
		}
		d.WriteString(strconv.FormatInt(t.Unix(), 10))
		d.WriteString("|")
	}

	writeFloat(origin.Lat)
	writeFloat(origin.Lng)
	d.WriteString(strconv.FormatBool(opts.ReturnToOrigin))
	d.WriteString("|")

	windowed := false
	for _, s := range stops {
		d.WriteString(s.StopID)
		d.WriteString("|")
		if c, ok := s.Coordinates(); ok {
			writeFloat(c.Lat)
			writeFloat(c.Lng)
		}
		writeTime(s.DeliveryWindowStart)
		writeTime(s.DeliveryWindowEnd)
		windowed = windowed || s.HasDeliveryWindow()
	}

	if windowed {
		depart := opts.DepartAt.Truncate(time.Minute)
		writeTime(&depart)
	}

	return routeKeyPrefix + strconv.FormatUint(d.Sum64(), 16)
}
