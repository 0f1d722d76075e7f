package geocoding

import (
	"context"
	"delivery-coordination-service/internal/domain"
	"delivery-coordination-service/internal/platform/httpx"
	"delivery-coordination-service/internal/platform/obs"
	"delivery-coordination-service/internal/ports"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.openrouteservice.org"
	DefaultCountry = "US"
)

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// ORSGeocoder resolves addresses with OpenRouteService (/geocode/search),
// one request per distinct address, behind an optional cache.
type ORSGeocoder struct {
	client  *httpx.Client
	baseURL string
	country string
	cache   ports.GeocodeCache
}

func NewORSGeocoder(apiKey, baseURL string, cache ports.GeocodeCache) (*ORSGeocoder, error) {
	if apiKey == "" {
		return nil, errors.New("ORS api key is empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &ORSGeocoder{
		client:  httpx.NewClient(30*time.Second, map[string]string{"Authorization": apiKey}),
		baseURL: strings.TrimRight(baseURL, "/"),
		country: DefaultCountry,
		cache:   cache,
	}, nil
}

// GeocodeMany returns coordinates keyed by domain.NormalizeAddress. Cache failures
// are logged and fall through to the provider.
func (g *ORSGeocoder) GeocodeMany(
	ctx context.Context,
	addresses []string,
) (_ map[string]domain.Coordinates, err error) {
	defer obs.Time(ctx, "ors.GeocodeMany")(&err)

	seen := make(map[string]struct{}, len(addresses))
	uniq := make([]string, 0, len(addresses))
	for _, a := range addresses {
		norm := domain.NormalizeAddress(a)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		uniq = append(uniq, norm)
	}

	out := make(map[string]domain.Coordinates, len(uniq))
	if g.cache != nil && len(uniq) > 0 {
		cached, err := g.cache.GetMany(ctx, uniq)
		if err != nil {
			log.Printf("req_id=%s op=geocode.cache.GetMany err=%v", obs.RequestID(ctx), err)
		}
		for k, v := range cached {
			out[k] = v
		}
	}

	fresh := make(map[string]domain.Coordinates)
	for _, a := range uniq {
		if _, ok := out[a]; ok {
			continue
		}

		c, found, err := g.geocodeOne(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("geocode %q: %w", a, err)
		}
		if !found {
			continue
		}
		out[a] = c
		fresh[a] = c
	}

	if g.cache != nil && len(fresh) > 0 {
		if err := g.cache.PutMany(ctx, fresh); err != nil {
			log.Printf("req_id=%s op=geocode.cache.PutMany err=%v", obs.RequestID(ctx), err)
		}
	}

	return out, nil
}

func (g *ORSGeocoder) geocodeOne(ctx context.Context, address string) (domain.Coordinates, bool, error) {
	q := url.Values{}
	q.Set("text", address)
	q.Set("boundary.country", g.country)
	q.Set("size", "1")
	endpoint := g.baseURL + "/geocode/search?" + q.Encode()

	resp, err := g.client.DoWithRetry(ctx, func() (*http.Request, error) {
		return g.client.NewRequest(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return domain.Coordinates{}, false, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	var decoded geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.Coordinates{}, false, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(decoded.Features) == 0 {
		return domain.Coordinates{}, false, nil
	}

	coords := decoded.Features[0].Geometry.Coordinates
	if len(coords) != 2 {
		return domain.Coordinates{}, false, fmt.Errorf("invalid coordinate format for %q", address)
	}

	// GeoJSON order is [lng, lat].
	c := domain.Coordinates{Lat: coords[1], Lng: coords[0]}
	if !c.Valid() {
		return domain.Coordinates{}, false, fmt.Errorf("coordinates out of range for %q", address)
	}
	return c, true, nil
}
