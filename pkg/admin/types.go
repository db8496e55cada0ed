package admin

import (
	"time"

	"github.com/platinummonkey/tenantguard/pkg/httputil"
)

// Action names accepted by Dispatch and the HTTP surface
const (
	ActionList          = "list"
	ActionAddUser       = "add_user"
	ActionUpdateProfile = "update_profile"
	ActionSetStatus     = "set_status"
	ActionSetRole       = "set_role"
	ActionSetCompany    = "set_company"
	ActionSetLicense    = "set_license"
	ActionRemoveUser    = "remove_user"
)

// Actions lists every action in a stable order
func Actions() []string {
	return []string{
		ActionList, ActionAddUser, ActionUpdateProfile, ActionSetStatus,
		ActionSetRole, ActionSetCompany, ActionSetLicense, ActionRemoveUser,
	}
}

func known(action string) bool {
	for _, a := range Actions() {
		if a == action {
			return true
		}
	}
	return false
}

// mutating reports whether an action changes state and is therefore audited
func mutating(action string) bool {
	return action != ActionList
}

// Envelope is the response of every action
type Envelope = httputil.Envelope

// Caller identifies who invoked an action. A zero PrincipalID means the
// bearer token did not resolve; AuthErr then says why.
type Caller struct {
	PrincipalID int64
	AuthErr     error
	RequestID   string
}

// ListRequest pages through one tenant's members
type ListRequest struct {
	TenantID  int64  `json:"tenant_id" validate:"required,gt=0"`
	Limit     int    `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
	Offset    int    `json:"offset,omitempty" validate:"min=0"`
	Search    string `json:"search,omitempty" validate:"max=200"`
	RoleKey   string `json:"role_key,omitempty" validate:"max=64"`
	CompanyID *int64 `json:"company_id,omitempty" validate:"omitempty,gt=0"`
	License   string `json:"license,omitempty" validate:"omitempty,oneof=assigned unassigned"`
	Status    string `json:"status,omitempty" validate:"omitempty,oneof=invited active disabled"`
}

// AddUserRequest adds an existing principal to a tenant by email
type AddUserRequest struct {
	TenantID int64  `json:"tenant_id" validate:"required,gt=0"`
	Email    string `json:"email" validate:"required,email,max=254"`
}

// UpdateProfileRequest changes a member's profile fields. Omitted fields are
// left alone.
type UpdateProfileRequest struct {
	MembershipID int64   `json:"membership_id" validate:"required,gt=0"`
	FirstName    *string `json:"first_name,omitempty" validate:"omitempty,max=100"`
	LastName     *string `json:"last_name,omitempty" validate:"omitempty,max=100"`
	DepartmentID *int64  `json:"department_id,omitempty" validate:"omitempty,gt=0"`
}

// SetStatusRequest moves a membership to a new status
type SetStatusRequest struct {
	MembershipID int64  `json:"membership_id" validate:"required,gt=0"`
	Status       string `json:"status" validate:"required,oneof=invited active disabled"`
}

// SetRoleRequest grants (add=true) or revokes a tenant role
type SetRoleRequest struct {
	MembershipID int64      `json:"membership_id" validate:"required,gt=0"`
	RoleKey      string     `json:"role_key" validate:"required,max=64"`
	Add          *bool      `json:"add" validate:"required"`
	Reason       string     `json:"reason,omitempty" validate:"max=500"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// SetCompanyRequest adds a member to, or removes them from, a company
type SetCompanyRequest struct {
	TenantID    int64 `json:"tenant_id" validate:"required,gt=0"`
	PrincipalID int64 `json:"principal_id" validate:"required,gt=0"`
	CompanyID   int64 `json:"company_id" validate:"required,gt=0"`
	Add         *bool `json:"add" validate:"required"`
}

// SetLicenseRequest activates or releases a member's license seat
type SetLicenseRequest struct {
	TenantID    int64  `json:"tenant_id" validate:"required,gt=0"`
	PrincipalID int64  `json:"principal_id" validate:"required,gt=0"`
	Active      *bool  `json:"active" validate:"required"`
	SeatType    string `json:"seat_type,omitempty" validate:"max=64"`
}

// RemoveUserRequest removes a membership and releases its seat
type RemoveUserRequest struct {
	MembershipID int64 `json:"membership_id" validate:"required,gt=0"`
}

// AddUserResult is the data of a successful add_user
type AddUserResult struct {
	MembershipID int64 `json:"membership_id"`
	Created      bool  `json:"created"`
}

// LicenseResult is the data of a successful seat activation
type LicenseResult struct {
	SeatSlot *int `json:"seat_slot,omitempty"`
}
