package domain

import "time"

// Options accepted by route optimization.
// A zero DepartAt means "depart now".
type OptimizeOptions struct {
	DepartAt       time.Time
	ReturnToOrigin bool
}

// Represents a single stop in an optimized route.
// StopIndex is the 0-based visiting position. DistanceMeters and
// DurationSeconds describe the leg that arrives at this stop.
type OrderedStop struct {
	StopID          string     `json:"stop_id"`
	StopIndex       int        `json:"stop_index"`
	ETA             *time.Time `json:"eta"`
	DistanceMeters  int        `json:"distance_meters"`
	DurationSeconds int        `json:"duration_seconds"`
}

// Represents the result of route optimization.
// OrderedStops is a permutation of the input stops. OptimizedPolyline is only
// set when an external provider returned an encoded path.
type OptimizedRoute struct {
	OrderedStops         []OrderedStop `json:"ordered_stops"`
	TotalDistanceMeters  int           `json:"total_distance_meters"`
	TotalDurationSeconds int           `json:"total_duration_seconds"`
	OptimizedPolyline    *string       `json:"optimized_polyline"`
	Strategy             string        `json:"strategy"`
}

// StopIDs returns the stop IDs in visiting order.
func (r *OptimizedRoute) StopIDs() []string {
	ids := make([]string, 0, len(r.OrderedStops))
	for _, s := range r.OrderedStops {
		ids = append(ids, s.StopID)
	}
	return ids
}
