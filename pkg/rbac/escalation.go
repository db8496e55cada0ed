package rbac

import (
	"github.com/platinummonkey/tenantguard/pkg/apperrors"
	"github.com/platinummonkey/tenantguard/pkg/catalog"
)

// ReasonInsufficient is the denial reason for any grant above the assigner
const ReasonInsufficient = "insufficient permissions"

// CheckGrant enforces that a granted role never exceeds the assigner's
// highest level
func (r *Resolver) CheckGrant(assigner *Principal, role catalog.Role) error {
	if assigner == nil {
		return apperrors.Authentication("no principal")
	}
	if role.Level > assigner.MaxLevel() {
		return apperrors.Authorization(ReasonInsufficient)
	}
	return nil
}

// CheckGrantKey resolves a role key and enforces CheckGrant
func (r *Resolver) CheckGrantKey(assigner *Principal, key string) (catalog.Role, error) {
	role, err := r.catalog.Resolve(key)
	if err != nil {
		return catalog.Role{}, err
	}
	if err := r.CheckGrant(assigner, role); err != nil {
		return catalog.Role{}, err
	}
	return role, nil
}

// CheckPermissionGrant enforces that every permission in a direct grant is
// already held by the assigner
func (r *Resolver) CheckPermissionGrant(assigner *Principal, perms []catalog.Permission) error {
	if assigner == nil {
		return apperrors.Authentication("no principal")
	}
	for _, p := range perms {
		if !p.IsKnown() {
			return apperrors.Validation("unknown permission %q", p)
		}
		if !r.HasPermission(assigner, p).Allowed {
			return apperrors.Authorization(ReasonInsufficient)
		}
	}
	return nil
}
