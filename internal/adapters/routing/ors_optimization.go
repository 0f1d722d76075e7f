package routing

import (
	"bytes"
	"context"
	"delivery-coordination-service/internal/domain"
	"delivery-coordination-service/internal/platform/httpx"
	"delivery-coordination-service/internal/platform/obs"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	StrategyORS = "ors"

	DefaultBaseURL = "https://api.openrouteservice.org"
	DefaultProfile = "driving-car"
)

// ORSOptimizationStrategy orders stops with the OpenRouteService
// optimization endpoint (a hosted VROOM instance).
//
// The origin is the vehicle start. When the route does not return to the
// origin, the last input stop is the vehicle end and only the remaining stops
// are reordered.
//
// The strategy is safe for concurrent use.
type ORSOptimizationStrategy struct {
	client  *httpx.Client
	baseURL string
	profile string
}

func NewORSOptimizationStrategy(apiKey, baseURL string) (*ORSOptimizationStrategy, error) {
	if apiKey == "" {
		return nil, errors.New("ORS api key is empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &ORSOptimizationStrategy{
		client:  httpx.NewClient(30*time.Second, map[string]string{"Authorization": apiKey}),
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: DefaultProfile,
	}, nil
}

func (*ORSOptimizationStrategy) Name() string { return StrategyORS }

type optimizationJob struct {
	ID          int        `json:"id"`
	Location    []float64  `json:"location"`
	TimeWindows [][2]int64 `json:"time_windows,omitempty"`
}

type optimizationVehicle struct {
	ID      int       `json:"id"`
	Profile string    `json:"profile"`
	Start   []float64 `json:"start"`
	End     []float64 `json:"end"`
}

type optimizationRequest struct {
	Jobs     []optimizationJob     `json:"jobs"`
	Vehicles []optimizationVehicle `json:"vehicles"`
	Options  struct {
		G bool `json:"g"`
	} `json:"options"`
}

type optimizationStep struct {
	Type     string  `json:"type"`
	Job      int     `json:"job"`
	Duration float64 `json:"duration"`
	Distance float64 `json:"distance"`
}

type optimizationResponse struct {
	Code   int `json:"code"`
	Routes []struct {
		Steps    []optimizationStep `json:"steps"`
		Duration float64            `json:"duration"`
		Distance float64            `json:"distance"`
		Geometry string             `json:"geometry"`
	} `json:"routes"`
	Unassigned []struct {
		ID int `json:"id"`
	} `json:"unassigned"`
}

// Optimize requests a visiting order for stops. Any problem with the answer
// is returned as an error so the caller can fall back.
func (o *ORSOptimizationStrategy) Optimize(
	ctx context.Context,
	origin domain.Coordinates,
	stops []domain.Stop,
	opts domain.OptimizeOptions,
) (_ *domain.OptimizedRoute, err error) {
	defer obs.Time(ctx, "ors.Optimize")(&err)

	if len(stops) == 0 {
		return &domain.OptimizedRoute{OrderedStops: []domain.OrderedStop{}, Strategy: StrategyORS}, nil
	}

	body, jobCount, err := o.buildRequest(origin, stops, opts)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal optimization request: %w", err)
	}

	endpoint := o.baseURL + "/optimization"
	resp, err := o.client.DoWithRetry(ctx, func() (*http.Request, error) {
		return o.client.NewRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	})
	if err != nil {
		return nil, fmt.Errorf("optimization request failed: %w", err)
	}
	defer resp.Body.Close()

	var decoded optimizationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode optimization response: %w", err)
	}

	return extractRoute(&decoded, stops, jobCount)
}

// buildRequest returns the request body and the number of stops sent as jobs.
// Job IDs are input index + 1.
func (o *ORSOptimizationStrategy) buildRequest(
	origin domain.Coordinates,
	stops []domain.Stop,
	opts domain.OptimizeOptions,
) (*optimizationRequest, int, error) {
	coords := make([]domain.Coordinates, len(stops))
	for i, s := range stops {
		c, ok := s.Coordinates()
		if !ok {
			return nil, 0, fmt.Errorf("stop %q has no coordinates", s.StopID)
		}
		coords[i] = c
	}

	jobCount := len(stops)
	end := origin
	if !opts.ReturnToOrigin {
		jobCount--
		end = coords[len(coords)-1]
	}

	req := &optimizationRequest{
		Jobs: make([]optimizationJob, 0, jobCount),
		Vehicles: []optimizationVehicle{{
			ID:      1,
			Profile: o.profile,
			Start:   origin.CoordsToList(),
			End:     end.CoordsToList(),
		}},
	}
	req.Options.G = true

	for i := 0; i < jobCount; i++ {
		job := optimizationJob{ID: i + 1, Location: coords[i].CoordsToList()}
		if w, ok := relativeWindow(stops[i], opts.DepartAt); ok {
			job.TimeWindows = [][2]int64{w}
		}
		req.Jobs = append(req.Jobs, job)
	}

	return req, jobCount, nil
}

// relativeWindow converts a delivery window to seconds after departure.
// Windows that closed before departure are dropped; they are advisory only.
func relativeWindow(s domain.Stop, departAt time.Time) ([2]int64, bool) {
	if !s.HasDeliveryWindow() || departAt.IsZero() {
		return [2]int64{}, false
	}

	start := int64(s.DeliveryWindowStart.Sub(departAt) / time.Second)
	end := int64(s.DeliveryWindowEnd.Sub(departAt) / time.Second)
	if end <= 0 || end < start {
		return [2]int64{}, false
	}

	return [2]int64{max(start, 0), end}, true
}

func extractRoute(resp *optimizationResponse, stops []domain.Stop, jobCount int) (*domain.OptimizedRoute, error) {
	if resp.Code != 0 {
		return nil, fmt.Errorf("optimization returned code %d", resp.Code)
	}
	if len(resp.Routes) == 0 {
		return nil, errors.New("optimization returned no routes")
	}
	if len(resp.Unassigned) > 0 {
		return nil, fmt.Errorf("optimization left %d stops unassigned", len(resp.Unassigned))
	}

	r := resp.Routes[0]
	seen := make(map[int]struct{}, jobCount)
	ordered := make([]domain.OrderedStop, 0, len(stops))

	var prevDuration, prevDistance float64
	appendStop := func(stopIdx int, cumDuration, cumDistance float64) {
		ordered = append(ordered, domain.OrderedStop{
			StopID:          stops[stopIdx].StopID,
			StopIndex:       len(ordered),
			DistanceMeters:  int(math.Round(cumDistance - prevDistance)),
			DurationSeconds: int(math.Round(cumDuration - prevDuration)),
		})
		prevDuration, prevDistance = cumDuration, cumDistance
	}

	var endStep *optimizationStep
	for i := range r.Steps {
		step := &r.Steps[i]
		switch step.Type {
		case "job":
			if step.Job < 1 || step.Job > jobCount {
				return nil, fmt.Errorf("optimization returned unknown job %d", step.Job)
			}
			if _, dup := seen[step.Job]; dup {
				return nil, fmt.Errorf("optimization returned job %d twice", step.Job)
			}
			seen[step.Job] = struct{}{}
			appendStop(step.Job-1, step.Duration, step.Distance)
		case "end":
			endStep = step
		}
	}

	if len(seen) != jobCount {
		return nil, fmt.Errorf("optimization returned %d of %d jobs", len(seen), jobCount)
	}

	totalDuration, totalDistance := r.Duration, r.Distance
	if endStep != nil {
		totalDuration, totalDistance = endStep.Duration, endStep.Distance
	}

	// The fixed final stop is the vehicle end, not a job.
	if jobCount < len(stops) {
		appendStop(len(stops)-1, totalDuration, totalDistance)
	}

	route := &domain.OptimizedRoute{
		OrderedStops:         ordered,
		TotalDistanceMeters:  int(math.Round(totalDistance)),
		TotalDurationSeconds: int(math.Round(totalDuration)),
		Strategy:             StrategyORS,
	}
	if r.Geometry != "" {
		g := r.Geometry
		route.OptimizedPolyline = &g
	}

	return route, nil
}
