package assignment

import (
	"time"
)

// CategoryLicenseSeat is the group category of the license-seat pool
const CategoryLicenseSeat = "license-seat-pool"

// Conflict reasons surfaced to callers
const (
	ReasonAlreadyAssigned = "already assigned"
	ReasonSeatLimit       = "seat limit reached"
	ReasonContended       = "seat assignment contended"
)

// Outcome describes what an assign or remove call did
type Outcome string

const (
	OutcomeAssigned        Outcome = "assigned"
	OutcomeMoved           Outcome = "moved"
	OutcomeAlreadyAssigned Outcome = "already_assigned"
	OutcomeRemoved         Outcome = "removed"
	OutcomeNotAssigned     Outcome = "not_assigned"
)

// Assignment is one row of group membership history
type Assignment struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	EntityID       int64      `json:"entity_id"`
	GroupID        string     `json:"group_id"`
	Category       string     `json:"group_category"`
	SeatSlot       *int       `json:"seat_slot,omitempty"`
	Active         bool       `json:"active"`
	AssignedAt     time.Time  `json:"assigned_at"`
	RemovedAt      *time.Time `json:"removed_at,omitempty"`
}

// Request asks for entity to be placed in group within category
type Request struct {
	OrganizationID int64
	EntityID       int64
	GroupID        string
	Category       string
}

// SeatRequest asks for a license seat of a given type
type SeatRequest struct {
	OrganizationID int64
	PrincipalID    int64
	SeatType       string
}

// Result is the outcome of an assign or remove
type Result struct {
	Outcome    Outcome     `json:"outcome"`
	Assignment *Assignment `json:"assignment,omitempty"`
	Previous   *Assignment `json:"previous,omitempty"`
}

// Observer receives conflict and retry signals, typically for metrics
type Observer interface {
	ObserveConflict(category, reason string)
	ObserveRetry(category string)
}

type nopObserver struct{}

func (nopObserver) ObserveConflict(string, string) {}
func (nopObserver) ObserveRetry(string)            {}
