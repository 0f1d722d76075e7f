package tracking

import (
	"delivery-coordination-service/internal/domain"
	"time"
)

type Phase string

const (
	PhaseConnecting Phase = "connecting"
	PhaseLive       Phase = "live"
	PhaseDegraded   Phase = "degraded"
	PhaseClosed     Phase = "closed"
)

// State is one session's merged view of an order's delivery progress.
//
// Pointer fields are replaced wholesale on every update and never mutated in
// place, so a State returned by Session.State can be read freely.
type State struct {
	Phase           Phase
	IsConnected     bool
	ConnectionError string

	OrderID     string
	RouteID     string
	OrderStatus domain.OrderStatus

	// Stop status, stop ETA and delivery photo.
	RouteStop      *domain.RouteStopInfo
	Driver         *domain.DriverInfo
	DriverLocation *domain.DriverLocation
	ETA            *domain.ETAWindow

	// Time the most recent change was accepted, from any source.
	LastUpdate *time.Time
}
