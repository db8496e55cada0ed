// Package rbac decides what a principal may do.
//
// # Overview
//
// The package has three parts, all pure functions of the principal and the
// role catalog:
//
//  1. Permission Resolver: HasPermission and the CanView/CanEdit/CanDelete/
//     CanApprove/CanExport family. Every check returns a Decision carrying a
//     human-readable reason, never a bare boolean.
//  2. Scope Resolver: DataScope and FilterFor turn a principal's capability
//     matrix entry into a visibility scope and a storage-neutral filter.
//  3. Escalation Guard: CheckGrant and CheckPermissionGrant refuse any grant
//     above the assigner's own standing.
//
// # Principals
//
// A Principal is loaded fresh for each request by the membership directory
// and passed explicitly to every check:
//
//	principal, err := directory.LoadPrincipal(ctx, identity.PrincipalID, tenantID)
//	if err != nil {
//		return err
//	}
//	decision := resolver.CanApprove(principal, "leave", nil)
//	if !decision.Allowed {
//		return apperrors.Authorization(decision.Reason)
//	}
//
// # Deletion
//
// CanDelete is granted only to holders of the catalog's single highest role.
// It is never derived from the capability matrix.
//
// # Concurrency
//
// A Resolver holds only the immutable catalog. It is safe for concurrent use.
package rbac
