// Package routes turns extracted route bundles into reviewable route
// candidates and stores them.
package routes

import "time"

// Status is the review state of a candidate.
type Status string

const (
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusApproved      Status = "APPROVED"
)

// Candidate is one proposed bus route with a single departure time. Several
// candidates expanded from the same bundle share a RouteGroupID.
type Candidate struct {
	ID             string    `json:"id"`
	ContributionID string    `json:"contributionId"`
	BusNumber      string    `json:"busNumber,omitempty"`
	Origin         string    `json:"origin"`
	Destination    string    `json:"destination"`
	DepartureTime  string    `json:"departureTime"`
	Via            string    `json:"via,omitempty"`
	BusType        string    `json:"busType,omitempty"`
	RouteGroupID   string    `json:"routeGroupId"`
	ScheduleIndex  int       `json:"scheduleIndex"`
	TotalSchedules int       `json:"totalSchedules"`
	Status         Status    `json:"status"`
	ProvenanceNote string    `json:"provenanceNote"`
	CreatedAt      time.Time `json:"createdAt"`
}
