package orgs

import (
	"time"
)

// Status is the lifecycle state of a tenant membership
type Status string

const (
	StatusInvited  Status = "invited"
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusInvited, StatusActive, StatusDisabled:
		return true
	}
	return false
}

// transitions lists the allowed status changes. Disabled members can be
// re-activated; nothing returns to invited.
var transitions = map[Status][]Status{
	StatusInvited:  {StatusActive},
	StatusActive:   {StatusDisabled},
	StatusDisabled: {StatusActive},
}

// CanTransition reports whether from -> to is allowed. Same-status is
// allowed and treated as a no-op by callers.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LicenseFilter narrows a member list by seat state
type LicenseFilter string

const (
	LicenseAny        LicenseFilter = ""
	LicenseAssigned   LicenseFilter = "assigned"
	LicenseUnassigned LicenseFilter = "unassigned"
)

// Organization is a tenant
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	SeatLimit int       `json:"seat_limit"`
	CreatedAt time.Time `json:"created_at"`
}

// Company belongs to exactly one organization
type Company struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
}

// PrincipalRecord is the persisted identity of a user
type PrincipalRecord struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Subject     string     `json:"subject,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// SignInRequest carries verified identity claims
type SignInRequest struct {
	Email       string
	DisplayName string
	Subject     string
}

// Removal reports what RemoveOrgMembership changed
type Removal struct {
	Removed      bool
	MembershipID int64
	SeatReleased bool
	RolesRetired int64
}

// Membership binds a principal to an organization
type Membership struct {
	ID             int64     `json:"id"`
	PrincipalID    int64     `json:"principal_id"`
	OrganizationID int64     `json:"organization_id"`
	Status         Status    `json:"status"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	DepartmentID   *int64    `json:"department_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProfileUpdate holds optional profile changes. Nil fields are left alone.
type ProfileUpdate struct {
	FirstName    *string
	LastName     *string
	DepartmentID *int64
}

// RoleGrant asks for a catalog role on a membership
type RoleGrant struct {
	MembershipID int64
	RoleKey      string
	Reason       string
	ExpiresAt    *time.Time
}

// RoleAssignment is one row of role grant history
type RoleAssignment struct {
	ID             int64      `json:"id"`
	MembershipID   int64      `json:"membership_id"`
	PrincipalID    int64      `json:"principal_id"`
	OrganizationID int64      `json:"organization_id"`
	RoleKey        string     `json:"role_key"`
	AssignedBy     *int64     `json:"assigned_by,omitempty"`
	AssignedAt     time.Time  `json:"assigned_at"`
	IsActive       bool       `json:"is_active"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	RemovedAt      *time.Time `json:"removed_at,omitempty"`
	Reason         string     `json:"reason,omitempty"`
}

// ListQuery selects members of one organization. Filters combine with AND.
type ListQuery struct {
	OrganizationID int64
	Limit          int
	Offset         int
	Search         string
	RoleKey        string
	CompanyID      *int64
	License        LicenseFilter
	Status         Status
}

// License describes a member's active seat
type License struct {
	SeatType string `json:"seat_type"`
	SeatSlot *int   `json:"seat_slot,omitempty"`
}

// MemberSummary is one enriched row of a member list
type MemberSummary struct {
	MembershipID int64    `json:"membership_id"`
	PrincipalID  int64    `json:"principal_id"`
	Email        string   `json:"email"`
	DisplayName  string   `json:"display_name"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	Status       Status   `json:"status"`
	DepartmentID *int64   `json:"department_id,omitempty"`
	Roles        []string `json:"roles"`
	PrimaryRole  string   `json:"primary_role,omitempty"`
	Companies    []int64  `json:"companies"`
	HasLicense   bool     `json:"has_license"`
	License      *License `json:"license,omitempty"`
}

// ListResult is one page of members plus the unpaged total
type ListResult struct {
	Items []*MemberSummary `json:"items"`
	Total int              `json:"total"`
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)
