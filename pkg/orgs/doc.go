// Package orgs manages tenant membership: principals, their memberships in
// organizations, company and platform-role set relations, and catalog role
// grants.
//
// # Overview
//
// Every add and remove is idempotent. Adding an existing relation reports
// created=false; removing an absent one is a no-op. Role grants pass the
// escalation guard before any row is written, and a revoked role keeps its
// history row with is_active=false.
//
// Membership status follows invited -> active -> disabled, and a disabled
// member can be re-activated. SignIn activates every invited membership of
// the signing-in principal.
//
// # Usage Example
//
//	svc := orgs.NewSQLService(db, rbac.NewResolver(catalog.Default()))
//
//	id, created, err := svc.AddOrgMembership(ctx, principalID, orgID)
//	granted, err := svc.GrantRole(ctx, admin, orgs.RoleGrant{
//		MembershipID: id,
//		RoleKey:      catalog.RolePayrollClerk,
//	})
//
// Loading a principal for a decision always reads the store:
//
//	p, err := svc.LoadPrincipal(ctx, principalID, orgID)
//	decision := resolver.CanEdit(p, "payroll", nil)
//
// # Related Packages
//
//   - pkg/rbac: decisions, scope filters and the escalation guard
//   - pkg/assignment: license seats reported by ListMembers
package orgs
