package services

import (
	"delivery-coordination-service/internal/domain"
	"fmt"
	"strings"
)

const (
	CodeMissingCoordinates = "MISSING_COORDINATES"
	CodeInvalidCoordinates = "INVALID_COORDINATES"
	CodeDuplicateStopID    = "DUPLICATE_STOP_ID"
)

// A single reason a stop cannot be optimized.
type StopValidationIssue struct {
	Code    string `json:"code"`
	StopID  string `json:"stop_id"`
	Message string `json:"message"`
}

type StopValidationResult struct {
	Valid  bool
	Errors []StopValidationIssue
}

// ValidateStops reports every stop that cannot be routed: a missing or
// out-of-range coordinate, or a stop ID already used earlier in the input.
// It does not stop at the first invalid stop.
func ValidateStops(stops []domain.Stop) StopValidationResult {
	issues := make([]StopValidationIssue, 0)
	seen := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		if _, dup := seen[s.StopID]; dup {
			issues = append(issues, StopValidationIssue{
				Code:    CodeDuplicateStopID,
				StopID:  s.StopID,
				Message: fmt.Sprintf("stop id %q appears more than once; every stop must be unique", s.StopID),
			})
			continue
		}
		seen[s.StopID] = struct{}{}

		c, ok := s.Coordinates()
		switch {
		case !ok:
			issues = append(issues, StopValidationIssue{
				Code:    CodeMissingCoordinates,
				StopID:  s.StopID,
				Message: fmt.Sprintf("stop %s (order %s) has no coordinates; geocode the address before optimizing", s.StopID, s.OrderID),
			})
		case !c.Valid():
			// NaN fails every comparison in Valid, so it lands here too.
			issues = append(issues, StopValidationIssue{
				Code:    CodeInvalidCoordinates,
				StopID:  s.StopID,
				Message: fmt.Sprintf("stop %s (order %s) has coordinates out of range: lat=%v lng=%v", s.StopID, s.OrderID, c.Lat, c.Lng),
			})
		}
	}

	return StopValidationResult{Valid: len(issues) == 0, Errors: issues}
}

// StopValidationError aborts an optimization and carries every invalid stop.
type StopValidationError struct {
	Issues []StopValidationIssue
}

func (e *StopValidationError) Error() string {
	ids := make([]string, 0, len(e.Issues))
	for _, i := range e.Issues {
		ids = append(ids, i.StopID+" ("+i.Code+")")
	}
	return fmt.Sprintf("validate stops: %d invalid stop(s): %s", len(e.Issues), strings.Join(ids, ", "))
}
