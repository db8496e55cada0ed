package rbac

import (
	"github.com/platinummonkey/tenantguard/pkg/catalog"
)

// DataScope returns the broadest scope any held role grants on a resource
func (r *Resolver) DataScope(p *Principal, resource catalog.Resource) catalog.Scope {
	if p == nil || !resource.IsValid() {
		return catalog.ScopeNone
	}
	scope := catalog.ScopeNone
	for _, role := range p.AllRoles() {
		scope = catalog.Broader(scope, role.ScopeFor(resource))
	}
	return scope
}

// Filter is a storage-neutral visibility predicate. Set fields must all match.
type Filter struct {
	Scope          catalog.Scope `json:"scope"`
	OrganizationID *int64        `json:"organization_id,omitempty"`
	DepartmentID   *int64        `json:"department_id,omitempty"`
	OwnerID        *int64        `json:"owner_id,omitempty"`
	DenyAll        bool          `json:"deny_all,omitempty"`
}

// FilterFor builds the list filter for a principal and resource. A
// department scope without a known department narrows to own.
func (r *Resolver) FilterFor(p *Principal, resource catalog.Resource) Filter {
	scope := r.DataScope(p, resource)
	if scope == catalog.ScopeDepartment && p.DepartmentID == nil {
		scope = catalog.ScopeOwn
	}

	f := Filter{Scope: scope}
	switch scope {
	case catalog.ScopeAll:
	case catalog.ScopeOrganization:
		f.OrganizationID = int64Ptr(p.OrganizationID)
	case catalog.ScopeDepartment:
		f.OrganizationID = int64Ptr(p.OrganizationID)
		f.DepartmentID = int64Ptr(*p.DepartmentID)
	case catalog.ScopeOwn:
		f.OrganizationID = int64Ptr(p.OrganizationID)
		f.OwnerID = int64Ptr(p.ID)
	default:
		f.DenyAll = true
	}
	return f
}

// Allows reports whether a target record falls inside the filter. Nil
// target fields are not checked.
func (f Filter) Allows(target AccessContext) bool {
	if f.DenyAll {
		return false
	}
	return matches(f.OrganizationID, target.OrganizationID) &&
		matches(f.DepartmentID, target.DepartmentID) &&
		matches(f.OwnerID, target.OwnerID)
}

func matches(want, got *int64) bool {
	if want == nil || got == nil {
		return true
	}
	return *want == *got
}

func int64Ptr(v int64) *int64 {
	return &v
}
