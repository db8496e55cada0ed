package rbac

import (
	"github.com/platinummonkey/tenantguard/pkg/catalog"
)

// Action is an operation requested on a resource
type Action string

const (
	ActionView    Action = "view"
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
	ActionExport  Action = "export"
)

// Principal is an authenticated actor bound to one tenant for the duration of
// a request
type Principal struct {
	ID             int64          `json:"id"`
	Email          string         `json:"email"`
	DisplayName    string         `json:"display_name,omitempty"`
	OrganizationID int64          `json:"organization_id"`
	MembershipID   int64          `json:"membership_id,omitempty"`
	DepartmentID   *int64         `json:"department_id,omitempty"`
	Roles          []catalog.Role `json:"roles"`
	PlatformRoles  []catalog.Role `json:"platform_roles,omitempty"`
}

// AllRoles returns tenant roles followed by platform roles
func (p *Principal) AllRoles() []catalog.Role {
	if p == nil {
		return nil
	}
	roles := make([]catalog.Role, 0, len(p.Roles)+len(p.PlatformRoles))
	roles = append(roles, p.Roles...)
	return append(roles, p.PlatformRoles...)
}

// MaxLevel returns the highest level among held roles, or 0
func (p *Principal) MaxLevel() int {
	max := 0
	for _, r := range p.AllRoles() {
		if r.Level > max {
			max = r.Level
		}
	}
	return max
}

// HasRole reports whether the principal holds the role key
func (p *Principal) HasRole(key string) bool {
	for _, r := range p.AllRoles() {
		if r.Key == key {
			return true
		}
	}
	return false
}

// RoleKeys returns the keys of all held roles
func (p *Principal) RoleKeys() []string {
	roles := p.AllRoles()
	keys := make([]string, 0, len(roles))
	for _, r := range roles {
		keys = append(keys, r.Key)
	}
	return keys
}

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow builds an allowing decision
func Allow(reason string) Decision {
	return Decision{Allowed: true, Reason: reason}
}

// Deny builds a denying decision
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// AccessContext optionally narrows a check to one target record. Nil fields
// are not checked.
type AccessContext struct {
	OrganizationID *int64
	DepartmentID   *int64
	OwnerID        *int64
}
