package handlers

import (
	"delivery-coordination-service/internal/api/dto"
	"delivery-coordination-service/internal/domain"
	"delivery-coordination-service/internal/platform/obs"
	"delivery-coordination-service/internal/ports"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// TrackingHandler serves the snapshot endpoint and the writes that drive
// live tracking. Every accepted write is announced on the change feed.
type TrackingHandler struct {
	Repo    ports.TrackingRepository
	Changes ports.ChangePublisher // optional
	Now     func() time.Time
}

func (h *TrackingHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Repo.GetTrackingSnapshot(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(w, r, "tracking_snapshot", err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

func (h *TrackingHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateOrderStatusRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status := domain.OrderStatus(req.Status)
	if !status.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown order status")
		return
	}

	info, err := h.Repo.UpdateOrderStatus(r.Context(), chi.URLParam(r, "orderID"), status)
	if err != nil {
		writeServiceError(w, r, "update_order_status", err)
		return
	}

	h.publish(r, ports.Topic{Table: ports.TableOrders, Key: info.OrderID}, info)
	writeJSON(w, r, http.StatusOK, info)
}

func (h *TrackingHandler) UpdateStop(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateStopRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status := domain.StopStatus(req.Status)
	if !status.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown stop status")
		return
	}

	info, err := h.Repo.UpdateStopStatus(r.Context(), chi.URLParam(r, "stopID"), status, req.DeliveryPhotoURL)
	if err != nil {
		writeServiceError(w, r, "update_stop", err)
		return
	}

	h.publish(r, ports.Topic{Table: ports.TableRouteStops, Key: info.OrderID}, info)
	writeJSON(w, r, http.StatusOK, info)
}

func (h *TrackingHandler) RecordLocation(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeID")

	var req dto.RecordLocationRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeError(w, r, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	if !(domain.Coordinates{Lat: *req.Latitude, Lng: *req.Longitude}).Valid() {
		writeError(w, r, http.StatusBadRequest, "latitude/longitude out of range")
		return
	}
	if req.Heading != nil && (*req.Heading < 0 || *req.Heading > 360) {
		writeError(w, r, http.StatusBadRequest, "heading must be between 0 and 360")
		return
	}
	if req.Accuracy != nil && *req.Accuracy < 0 {
		writeError(w, r, http.StatusBadRequest, "accuracy must not be negative")
		return
	}

	loc := domain.DriverLocation{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Accuracy:  req.Accuracy,
		Heading:   req.Heading,
	}
	if req.RecordedAt != nil {
		loc.RecordedAt = *req.RecordedAt
	} else {
		loc.RecordedAt = h.now()
	}

	if err := h.Repo.InsertDriverLocation(r.Context(), routeID, loc); err != nil {
		writeServiceError(w, r, "record_location", err)
		return
	}

	h.publish(r, ports.Topic{Table: ports.TableDriverLocations, Key: routeID}, loc)
	writeJSON(w, r, http.StatusCreated, loc)
}

// The write is already stored; a lost announcement is repaired by client polling.
func (h *TrackingHandler) publish(r *http.Request, topic ports.Topic, record any) {
	if h.Changes == nil {
		return
	}
	if err := h.Changes.Publish(r.Context(), topic, record); err != nil {
		log.Printf("req_id=%s op=publish topic=%s err=%v", obs.RequestID(r.Context()), topic, err)
	}
}

func (h *TrackingHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}
