package dto

import (
	"delivery-coordination-service/internal/domain"
	"delivery-coordination-service/internal/services"
	"time"
)

// OptimizeRequest is the body of POST /optimize.
// A missing origin uses the server's configured origin.
type OptimizeRequest struct {
	Origin         *domain.Coordinates `json:"origin"`
	Stops          []domain.Stop       `json:"stops"`
	DepartAt       *time.Time          `json:"depart_at"`
	ReturnToOrigin bool                `json:"return_to_origin"`
}

// PlanRouteRequest is the body of POST /routes/{routeID}/optimize. The body is optional.
type PlanRouteRequest struct {
	DepartAt       *time.Time `json:"depart_at"`
	ReturnToOrigin bool       `json:"return_to_origin"`
}

type ValidationErrorResponse struct {
	Error  string                         `json:"error"`
	Issues []services.StopValidationIssue `json:"issues"`
}
