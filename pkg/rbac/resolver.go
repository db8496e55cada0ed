package rbac

import (
	"fmt"

	"github.com/platinummonkey/tenantguard/pkg/catalog"
)

// Checker answers permission questions for an explicitly passed principal
type Checker interface {
	HasPermission(p *Principal, perm catalog.Permission) Decision
	CanView(p *Principal, resource string, ctx *AccessContext) Decision
	CanEdit(p *Principal, resource string, ctx *AccessContext) Decision
	CanDelete(p *Principal, resource string, ctx *AccessContext) Decision
	CanApprove(p *Principal, resource string, ctx *AccessContext) Decision
	CanExport(p *Principal, resource string, ctx *AccessContext) Decision
	DataScope(p *Principal, resource catalog.Resource) catalog.Scope
}

// Resolver implements Checker against a role catalog
type Resolver struct {
	catalog *catalog.Catalog
}

var _ Checker = (*Resolver)(nil)

// NewResolver creates a resolver over an immutable catalog
func NewResolver(c *catalog.Catalog) *Resolver {
	return &Resolver{catalog: c}
}

// Catalog returns the backing role catalog
func (r *Resolver) Catalog() *catalog.Catalog {
	return r.catalog
}

// approval maps an approvable resource to its baseline resource and token
type approval struct {
	baseline catalog.Resource
	perm     catalog.Permission
}

var approvals = map[string]approval{
	"payroll":  {catalog.ResourcePayroll, catalog.PermApprovePayroll},
	"expenses": {catalog.ResourceEmployees, catalog.PermApproveExpenses},
	"leave":    {catalog.ResourceEmployees, catalog.PermApproveLeave},
	"overtime": {catalog.ResourceEmployees, catalog.PermApproveOvertime},
}

// PermissionFor maps a view or edit on a resource to its permission token
func PermissionFor(resource catalog.Resource, action Action) (catalog.Permission, bool) {
	if !resource.IsValid() {
		return "", false
	}
	switch action {
	case ActionView:
		return catalog.Permission("view_" + string(resource)), true
	case ActionEdit:
		return catalog.Permission("edit_" + string(resource)), true
	}
	return "", false
}

// HasPermission checks whether any held role grants perm
func (r *Resolver) HasPermission(p *Principal, perm catalog.Permission) Decision {
	if p == nil {
		return Deny("no principal")
	}
	for _, role := range p.AllRoles() {
		if role.Has(perm) {
			return Allow(fmt.Sprintf("granted by role %s", role.Key))
		}
	}
	return Deny(fmt.Sprintf("role %s lacks permission %s", r.primaryKey(p), perm))
}

func (r *Resolver) primaryKey(p *Principal) string {
	if primary, ok := r.catalog.Primary(p.AllRoles()); ok {
		return primary.Key
	}
	return "none"
}

// baseline confirms the principal can see the resource at all and that the
// optional target lies within its scope
func (r *Resolver) baseline(p *Principal, resource catalog.Resource, ctx *AccessContext) (Decision, bool) {
	if r.DataScope(p, resource) == catalog.ScopeNone {
		return Deny(fmt.Sprintf("no access to %s", resource)), false
	}
	if ctx != nil && !r.FilterFor(p, resource).Allows(*ctx) {
		return Deny(fmt.Sprintf("%s record outside %s scope", resource, r.DataScope(p, resource))), false
	}
	return Decision{}, true
}

func (r *Resolver) check(p *Principal, resource string, action Action, ctx *AccessContext) Decision {
	if p == nil {
		return Deny("no principal")
	}
	res := catalog.Resource(resource)
	perm, ok := PermissionFor(res, action)
	if !ok {
		return Deny("unknown resource")
	}
	if d, ok := r.baseline(p, res, ctx); !ok {
		return d
	}
	return r.HasPermission(p, perm)
}

// CanView checks read access to a resource
func (r *Resolver) CanView(p *Principal, resource string, ctx *AccessContext) Decision {
	return r.check(p, resource, ActionView, ctx)
}

// CanEdit checks write access to a resource
func (r *Resolver) CanEdit(p *Principal, resource string, ctx *AccessContext) Decision {
	return r.check(p, resource, ActionEdit, ctx)
}

// CanDelete allows only holders of the catalog's highest role
func (r *Resolver) CanDelete(p *Principal, resource string, ctx *AccessContext) Decision {
	if p == nil {
		return Deny("no principal")
	}
	res := catalog.Resource(resource)
	if !res.IsValid() {
		return Deny("unknown resource")
	}
	if d, ok := r.baseline(p, res, ctx); !ok {
		return d
	}
	top := r.catalog.Highest()
	if !p.HasRole(top.Key) {
		return Deny(fmt.Sprintf("delete requires role %s", top.Key))
	}
	return Allow(fmt.Sprintf("granted by role %s", top.Key))
}

// CanApprove checks approval rights for payroll, expenses, leave or overtime
func (r *Resolver) CanApprove(p *Principal, resource string, ctx *AccessContext) Decision {
	if p == nil {
		return Deny("no principal")
	}
	a, ok := approvals[resource]
	if !ok {
		return Deny("unknown approval resource")
	}
	if d, ok := r.baseline(p, a.baseline, ctx); !ok {
		return d
	}
	return r.HasPermission(p, a.perm)
}

// CanExport requires export_data and view access to the resource. The first
// failing reason is returned.
func (r *Resolver) CanExport(p *Principal, resource string, ctx *AccessContext) Decision {
	if d := r.HasPermission(p, catalog.PermExportData); !d.Allowed {
		return d
	}
	return r.CanView(p, resource, ctx)
}

// Can dispatches on action
func (r *Resolver) Can(p *Principal, action Action, resource string, ctx *AccessContext) Decision {
	switch action {
	case ActionView:
		return r.CanView(p, resource, ctx)
	case ActionEdit:
		return r.CanEdit(p, resource, ctx)
	case ActionDelete:
		return r.CanDelete(p, resource, ctx)
	case ActionApprove:
		return r.CanApprove(p, resource, ctx)
	case ActionExport:
		return r.CanExport(p, resource, ctx)
	}
	return Deny("unknown resource")
}
