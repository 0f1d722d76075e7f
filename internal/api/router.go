package api

import (
	"delivery-coordination-service/internal/api/handlers"
	"delivery-coordination-service/internal/domain"
	"delivery-coordination-service/internal/ports"
	"delivery-coordination-service/internal/services"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the collaborators the HTTP layer needs.
// Changes and Realtime are optional.
type Deps struct {
	Optimizer *services.RouteOptimizer
	Planner   *services.RoutePlanner
	Tracking  ports.TrackingRepository
	Changes   ports.ChangePublisher
	Realtime  http.Handler
	Origin    domain.Coordinates
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)

	optimize := &handlers.OptimizeHandler{
		Optimizer: d.Optimizer,
		Planner:   d.Planner,
		Origin:    d.Origin,
	}
	tracking := &handlers.TrackingHandler{Repo: d.Tracking, Changes: d.Changes}

	r.Get("/health", handlers.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/optimize", optimize.Optimize)
	r.Post("/routes/{routeID}/optimize", optimize.PlanRoute)
	r.Post("/routes/{routeID}/locations", tracking.RecordLocation)

	r.Get("/orders/{orderID}/tracking", tracking.Snapshot)
	r.Patch("/orders/{orderID}/status", tracking.UpdateOrderStatus)
	r.Patch("/stops/{stopID}", tracking.UpdateStop)

	if d.Realtime != nil {
		r.Method(http.MethodGet, "/ws/changes", d.Realtime)
	}

	return r
}
