package domain

import "time"

// Represents one delivery destination within a route.
// Coordinates are populated by an earlier geocoding step and may be missing;
// a Stop without both coordinates cannot take part in route optimization.
type Stop struct {
	StopID              string     `json:"stop_id"`
	OrderID             string     `json:"order_id"`
	Lat                 *float64   `json:"lat"`
	Lng                 *float64   `json:"lng"`
	DeliveryWindowStart *time.Time `json:"delivery_window_start,omitempty"`
	DeliveryWindowEnd   *time.Time `json:"delivery_window_end,omitempty"`
}

// Coordinates returns the stop location and whether both components are present.
func (s Stop) Coordinates() (Coordinates, bool) {
	if s.Lat == nil || s.Lng == nil {
		return Coordinates{}, false
	}
	return Coordinates{Lat: *s.Lat, Lng: *s.Lng}, true
}

// HasDeliveryWindow reports whether both window bounds are set.
func (s Stop) HasDeliveryWindow() bool {
	return s.DeliveryWindowStart != nil && s.DeliveryWindowEnd != nil
}
