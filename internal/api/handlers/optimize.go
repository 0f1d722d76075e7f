package handlers

import (
	"delivery-coordination-service/internal/api/dto"
	"delivery-coordination-service/internal/domain"
	"delivery-coordination-service/internal/services"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

type OptimizeHandler struct {
	Optimizer *services.RouteOptimizer
	Planner   *services.RoutePlanner
	Origin    domain.Coordinates
}

// Optimize orders an ad hoc list of stops without touching stored routes.
func (h *OptimizeHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req dto.OptimizeRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	origin := h.Origin
	if req.Origin != nil {
		origin = *req.Origin
	}
	if !origin.Valid() {
		writeError(w, r, http.StatusBadRequest, "origin is outside valid lat/lng ranges")
		return
	}
	for _, s := range req.Stops {
		if strings.TrimSpace(s.StopID) == "" {
			writeError(w, r, http.StatusBadRequest, "every stop needs a stop_id")
			return
		}
	}

	route, err := h.Optimizer.Optimize(r.Context(), origin, req.Stops, optimizeOptions(req.DepartAt, req.ReturnToOrigin))
	if err != nil {
		writeServiceError(w, r, "optimize", err)
		return
	}

	writeJSON(w, r, http.StatusOK, route)
}

// PlanRoute optimizes a stored route and persists the new order and ETAs.
func (h *OptimizeHandler) PlanRoute(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeID")

	var req dto.PlanRouteRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	route, err := h.Planner.PlanRoute(r.Context(), routeID, optimizeOptions(req.DepartAt, req.ReturnToOrigin))
	if err != nil {
		writeServiceError(w, r, "plan_route", err)
		return
	}

	writeJSON(w, r, http.StatusOK, route)
}

func optimizeOptions(departAt *time.Time, returnToOrigin bool) domain.OptimizeOptions {
	opts := domain.OptimizeOptions{ReturnToOrigin: returnToOrigin}
	if departAt != nil {
		opts.DepartAt = *departAt
	}
	return opts
}
