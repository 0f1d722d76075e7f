package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// OrderStatuses lists every order status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, v := range OrderStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type StopStatus string

const (
	StopStatusPending   StopStatus = "pending"
	StopStatusEnroute   StopStatus = "enroute"
	StopStatusArrived   StopStatus = "arrived"
	StopStatusDelivered StopStatus = "delivered"
	StopStatusSkipped   StopStatus = "skipped"
)

func (s StopStatus) Valid() bool {
	switch s {
	case StopStatusPending, StopStatusEnroute, StopStatusArrived, StopStatusDelivered, StopStatusSkipped:
		return true
	}
	return false
}

// Latest known driver position. Heading is in degrees (0-360), accuracy in meters.
type DriverLocation struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
}

type OrderInfo struct {
	OrderID   string      `json:"order_id"`
	Status    OrderStatus `json:"status"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Stop status, ETA and delivery photo always travel together.
type RouteStopInfo struct {
	StopID           string     `json:"stop_id"`
	RouteID          string     `json:"route_id"`
	OrderID          string     `json:"order_id"`
	StopIndex        int        `json:"stop_index"`
	Status           StopStatus `json:"status"`
	ETA              *time.Time `json:"eta"`
	DeliveryPhotoURL *string    `json:"delivery_photo_url"`
}

type DriverInfo struct {
	DriverID string `json:"driver_id"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Vehicle  string `json:"vehicle,omitempty"`
}

type ETAWindow struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// ETAWindowSpread widens a stop ETA into the window shown to customers.
const ETAWindowSpread = 10 * time.Minute

// NewETAWindow returns the customer-facing window around eta.
func NewETAWindow(eta time.Time) *ETAWindow {
	return &ETAWindow{Earliest: eta.Add(-ETAWindowSpread), Latest: eta.Add(ETAWindowSpread)}
}

// Full current tracking view of one order, as served by the snapshot endpoint.
type TrackingSnapshot struct {
	Order     OrderInfo       `json:"order"`
	RouteStop *RouteStopInfo  `json:"route_stop"`
	Driver    *DriverInfo     `json:"driver"`
	Location  *DriverLocation `json:"location"`
	ETA       *ETAWindow      `json:"eta"`
}
