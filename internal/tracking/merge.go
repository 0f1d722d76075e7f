package tracking

import (
	"delivery-coordination-service/internal/domain"
	"delivery-coordination-service/internal/ports"
	"encoding/json"
	"log"
)

// Merge rules. Each stream replaces only its own fields and bumps LastUpdate.
// Updates are applied in arrival order; a late duplicate can overwrite newer
// data until the next snapshot corrects it.

func (s *Session) handleEvent(gen uint64, e ports.ChangeEvent) {
	s.mu.Lock()
	if s.state.Phase == PhaseClosed || gen != s.gen {
		s.mu.Unlock()
		return
	}

	var accepted, routeChanged bool
	switch e.Table {
	case ports.TableOrders:
		accepted = s.applyOrderLocked(e.Record)
	case ports.TableRouteStops:
		accepted, routeChanged = s.applyStopLocked(e.Record)
	default:
		log.Printf("op=tracking.event order_id=%s table=%s err=unexpected table", s.state.OrderID, e.Table)
	}
	s.mu.Unlock()

	if routeChanged {
		s.subscribeLocation()
	}
	if accepted {
		s.changed()
	}
}

func (s *Session) handleLocationEvent(gen uint64, e ports.ChangeEvent) {
	s.mu.Lock()
	if s.state.Phase == PhaseClosed || gen != s.locGen {
		s.mu.Unlock()
		return
	}

	var loc domain.DriverLocation
	if err := json.Unmarshal(e.Record, &loc); err != nil {
		s.mu.Unlock()
		log.Printf("op=tracking.location order_id=%s err=decode: %v", s.state.OrderID, err)
		return
	}
	s.state.DriverLocation = &loc
	s.touchLocked()
	s.mu.Unlock()

	s.changed()
}

func (s *Session) applyOrderLocked(record json.RawMessage) bool {
	var info domain.OrderInfo
	if err := json.Unmarshal(record, &info); err != nil {
		log.Printf("op=tracking.order order_id=%s err=decode: %v", s.state.OrderID, err)
		return false
	}
	if info.OrderID != "" && info.OrderID != s.state.OrderID {
		return false
	}
	if !info.Status.Valid() {
		log.Printf("op=tracking.order order_id=%s err=unknown status %q", s.state.OrderID, info.Status)
		return false
	}

	s.state.OrderStatus = info.Status
	s.touchLocked()
	return true
}

// Stop status, ETA and photo arrive as one unit and replace each other together.
func (s *Session) applyStopLocked(record json.RawMessage) (accepted, routeChanged bool) {
	var info domain.RouteStopInfo
	if err := json.Unmarshal(record, &info); err != nil {
		log.Printf("op=tracking.stop order_id=%s err=decode: %v", s.state.OrderID, err)
		return false, false
	}
	if info.OrderID != "" && info.OrderID != s.state.OrderID {
		return false, false
	}

	s.state.RouteStop = &info
	s.state.ETA = nil
	if info.ETA != nil {
		s.state.ETA = domain.NewETAWindow(*info.ETA)
	}
	s.touchLocked()

	if info.RouteID != "" {
		routeChanged = s.setRouteLocked(info.RouteID)
	}
	return true, routeChanged
}

// applySnapshotLocked overwrites every field from snap. It reports whether
// the snapshot moved the session to a different route, including to no route
// at all. With keepRouteHint a snapshot without a stop leaves the route the
// caller supplied to Open in place.
func (s *Session) applySnapshotLocked(snap *domain.TrackingSnapshot, keepRouteHint bool) bool {
	if snap == nil {
		return false
	}

	if snap.Order.Status.Valid() {
		s.state.OrderStatus = snap.Order.Status
	} else {
		log.Printf("op=tracking.snapshot order_id=%s err=unknown status %q", s.state.OrderID, snap.Order.Status)
	}
	s.state.RouteStop = snap.RouteStop
	s.state.Driver = snap.Driver
	s.state.DriverLocation = snap.Location
	s.state.ETA = snap.ETA
	s.touchLocked()

	routeID := ""
	if snap.RouteStop != nil {
		routeID = snap.RouteStop.RouteID
	}
	if routeID == "" && keepRouteHint {
		return false
	}
	return s.setRouteLocked(routeID)
}

func (s *Session) touchLocked() {
	now := s.opts.clock.Now()
	s.state.LastUpdate = &now
}
