package admin

import (
	"context"

	"github.com/platinummonkey/tenantguard/pkg/apperrors"
	"github.com/platinummonkey/tenantguard/pkg/assignment"
	"github.com/platinummonkey/tenantguard/pkg/catalog"
	"github.com/platinummonkey/tenantguard/pkg/orgs"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// List returns one page of a tenant's members, restricted to what the
// caller may see
func (s *Service) List(ctx context.Context, caller Caller, req ListRequest) Envelope {
	c := s.start(ctx, ActionList, caller)
	result, err := s.list(c, req)
	if err != nil {
		return c.finish("", nil, err)
	}
	return c.finish("", result, nil)
}

func (s *Service) list(c *call, req ListRequest) (*orgs.ListResult, error) {
	if err := c.authenticate(); err != nil {
		return nil, err
	}
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	p, err := c.principal(req.TenantID)
	if err != nil {
		return nil, err
	}
	target := tenantTarget(req.TenantID)
	if err := c.decide("view_users", s.resolver.CanView(p, string(catalog.ResourceUsers), &target)); err != nil {
		return nil, err
	}
	q := orgs.ListQuery{
		OrganizationID: req.TenantID,
		Limit:          req.Limit,
		Offset:         req.Offset,
		Search:         req.Search,
		RoleKey:        req.RoleKey,
		CompanyID:      req.CompanyID,
		License:        orgs.LicenseFilter(req.License),
		Status:         orgs.Status(req.Status),
	}
	return s.members.ListMembers(c.ctx, q, s.resolver.FilterFor(p, catalog.ResourceUsers))
}

// AddUser adds the principal registered under an email to a tenant as an
// invited member. Adding an existing member reports created=false.
func (s *Service) AddUser(ctx context.Context, caller Caller, req AddUserRequest) Envelope {
	c := s.start(ctx, ActionAddUser, caller)
	c.details["email"] = req.Email
	result, err := s.addUser(c, req)
	if err != nil {
		return c.finish("", nil, err)
	}
	msg := "user added"
	if !result.Created {
		msg = "user already a member"
	}
	return c.finish(msg, result, nil)
}

func (s *Service) addUser(c *call, req AddUserRequest) (*AddUserResult, error) {
	if err := c.authenticate(); err != nil {
		return nil, err
	}
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	if _, err := c.admin(tenantTarget(req.TenantID)); err != nil {
		return nil, err
	}
	rec, err := s.members.FindPrincipalByEmail(c.ctx, req.Email)
	if err != nil {
		return nil, err
	}
	c.details["principal_id"] = rec.ID
	membershipID, created, err := s.members.AddOrgMembership(c.ctx, rec.ID, req.TenantID)
	if err != nil {
		return nil, err
	}
	c.resourceID = idString(membershipID)
	c.details["created"] = created
	return &AddUserResult{MembershipID: membershipID, Created: created}, nil
}

// UpdateProfile changes a member's name or department
func (s *Service) UpdateProfile(ctx context.Context, caller Caller, req UpdateProfileRequest) Envelope {
	c := s.start(ctx, ActionUpdateProfile, caller)
	c.resourceID = idString(req.MembershipID)
	if req.FirstName != nil {
		c.details["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		c.details["last_name"] = *req.LastName
	}
	if req.DepartmentID != nil {
		c.details["department_id"] = *req.DepartmentID
	}
	return c.finish("profile updated", nil, s.updateProfile(c, req))
}

func (s *Service) updateProfile(c *call, req UpdateProfileRequest) error {
	m, err := s.target(c, req, req.MembershipID)
	if err != nil {
		return err
	}
	if _, err := c.admin(memberTarget(m)); err != nil {
		return err
	}
	return s.members.UpdateProfile(c.ctx, m.ID, orgs.ProfileUpdate{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		DepartmentID: req.DepartmentID,
	})
}

// SetStatus moves a membership through invited, active and disabled
func (s *Service) SetStatus(ctx context.Context, caller Caller, req SetStatusRequest) Envelope {
	c := s.start(ctx, ActionSetStatus, caller)
	c.resourceID = idString(req.MembershipID)
	c.details["status"] = req.Status
	changed, err := s.setStatus(c, req)
	if err != nil {
		return c.finish("", nil, err)
	}
	c.details["changed"] = changed
	if !changed {
		return c.finish("status unchanged", nil, nil)
	}
	return c.finish("status updated", nil, nil)
}

func (s *Service) setStatus(c *call, req SetStatusRequest) (bool, error) {
	m, err := s.target(c, req, req.MembershipID)
	if err != nil {
		return false, err
	}
	if _, err := c.admin(memberTarget(m)); err != nil {
		return false, err
	}
	return s.members.SetStatus(c.ctx, m.ID, orgs.Status(req.Status))
}

// SetRole grants or revokes a tenant role. The escalation guard runs before
// the caller's standing is checked, so a grant above the caller's level is
// always reported as insufficient permissions.
func (s *Service) SetRole(ctx context.Context, caller Caller, req SetRoleRequest) Envelope {
	c := s.start(ctx, ActionSetRole, caller)
	c.resourceID = idString(req.MembershipID)
	c.details["role_key"] = req.RoleKey
	if req.Add != nil {
		c.details["add"] = *req.Add
	}
	if req.ExpiresAt != nil {
		c.details["expires_at"] = req.ExpiresAt.UTC()
	}
	msg, err := s.setRole(c, req)
	return c.finish(msg, nil, err)
}

func (s *Service) setRole(c *call, req SetRoleRequest) (string, error) {
	m, err := s.target(c, req, req.MembershipID)
	if err != nil {
		return "", err
	}
	p, err := c.principal(m.OrganizationID)
	if err != nil {
		return "", err
	}
	if err := c.grantable(p, req.RoleKey); err != nil {
		return "", err
	}
	if err := c.standing(p, memberTarget(m)); err != nil {
		return "", err
	}

	if *req.Add {
		granted, err := s.members.GrantRole(c.ctx, p, orgs.RoleGrant{
			MembershipID: m.ID,
			RoleKey:      req.RoleKey,
			Reason:       req.Reason,
			ExpiresAt:    req.ExpiresAt,
		})
		if err != nil {
			return "", err
		}
		if !granted {
			return "role already assigned", nil
		}
		return "role granted", nil
	}

	revoked, err := s.members.RevokeRole(c.ctx, p, m.ID, req.RoleKey)
	if err != nil {
		return "", err
	}
	if !revoked {
		return "role not assigned", nil
	}
	return "role revoked", nil
}

// grantable runs the escalation guard
func (c *call) grantable(p *rbac.Principal, roleKey string) error {
	_, err := c.s.resolver.CheckGrantKey(p, roleKey)
	if apperrors.KindOf(err) == apperrors.KindAuthorization {
		c.s.observer.ObserveDecision("grant_role", false)
		return err
	}
	if err != nil {
		return err
	}
	c.s.observer.ObserveDecision("grant_role", true)
	return nil
}

// SetCompany adds a tenant member to one of the tenant's companies, or
// removes them. Both directions are idempotent.
func (s *Service) SetCompany(ctx context.Context, caller Caller, req SetCompanyRequest) Envelope {
	c := s.start(ctx, ActionSetCompany, caller)
	c.resourceID = idString(req.PrincipalID)
	c.details["company_id"] = req.CompanyID
	if req.Add != nil {
		c.details["add"] = *req.Add
	}
	changed, err := s.setCompany(c, req)
	if err != nil {
		return c.finish("", nil, err)
	}
	c.details["changed"] = changed
	switch {
	case *req.Add && changed:
		return c.finish("company membership added", nil, nil)
	case *req.Add:
		return c.finish("already a company member", nil, nil)
	case changed:
		return c.finish("company membership removed", nil, nil)
	}
	return c.finish("not a company member", nil, nil)
}

func (s *Service) setCompany(c *call, req SetCompanyRequest) (bool, error) {
	if err := c.authenticate(); err != nil {
		return false, err
	}
	if err := s.validateRequest(req); err != nil {
		return false, err
	}
	if _, err := c.admin(tenantTarget(req.TenantID)); err != nil {
		return false, err
	}
	company, err := s.members.GetCompany(c.ctx, req.CompanyID)
	if err != nil {
		return false, err
	}
	if company.OrganizationID != req.TenantID {
		return false, apperrors.NotFound("company %d not found", req.CompanyID)
	}
	if *req.Add {
		return s.members.AddCompanyMembership(c.ctx, req.PrincipalID, company.ID)
	}
	return s.members.RemoveCompanyMembership(c.ctx, req.PrincipalID, company.ID)
}

// SetLicense activates a seat from the tenant's pool for a member, or
// releases it
func (s *Service) SetLicense(ctx context.Context, caller Caller, req SetLicenseRequest) Envelope {
	c := s.start(ctx, ActionSetLicense, caller)
	c.resourceID = idString(req.PrincipalID)
	if req.Active != nil {
		c.details["active"] = *req.Active
	}
	if req.SeatType != "" {
		c.details["seat_type"] = req.SeatType
	}
	res, err := s.setLicense(c, req)
	if err != nil {
		return c.finish("", nil, err)
	}
	c.details["outcome"] = string(res.Outcome)
	switch res.Outcome {
	case assignment.OutcomeAssigned, assignment.OutcomeMoved, assignment.OutcomeAlreadyAssigned:
		var slot *int
		if res.Assignment != nil {
			slot = res.Assignment.SeatSlot
		}
		if slot != nil {
			c.details["seat_slot"] = *slot
		}
		return c.finish("license active", &LicenseResult{SeatSlot: slot}, nil)
	case assignment.OutcomeNotAssigned:
		return c.finish("no license to release", nil, nil)
	}
	return c.finish("license released", nil, nil)
}

func (s *Service) setLicense(c *call, req SetLicenseRequest) (*assignment.Result, error) {
	if err := c.authenticate(); err != nil {
		return nil, err
	}
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	if *req.Active && req.SeatType == "" {
		return nil, apperrors.Validation("seat_type is required")
	}
	if _, err := c.admin(tenantTarget(req.TenantID)); err != nil {
		return nil, err
	}
	if *req.Active {
		if _, err := s.members.FindMembership(c.ctx, req.PrincipalID, req.TenantID); err != nil {
			return nil, err
		}
		return s.seats.AssignSeat(c.ctx, assignment.SeatRequest{
			OrganizationID: req.TenantID,
			PrincipalID:    req.PrincipalID,
			SeatType:       req.SeatType,
		})
	}
	return s.seats.ReleaseSeat(c.ctx, req.TenantID, req.PrincipalID)
}

// RemoveUser releases the member's seat and deletes the membership. Role
// assignment rows are kept as history.
func (s *Service) RemoveUser(ctx context.Context, caller Caller, req RemoveUserRequest) Envelope {
	c := s.start(ctx, ActionRemoveUser, caller)
	c.resourceID = idString(req.MembershipID)
	return c.finish("user removed", nil, s.removeUser(c, req))
}

func (s *Service) removeUser(c *call, req RemoveUserRequest) error {
	m, err := s.target(c, req, req.MembershipID)
	if err != nil {
		return err
	}
	if _, err := c.admin(memberTarget(m)); err != nil {
		return err
	}
	c.details["principal_id"] = m.PrincipalID

	removal, err := s.members.RemoveOrgMembership(c.ctx, m.PrincipalID, m.OrganizationID)
	if err != nil {
		return err
	}
	if !removal.Removed {
		return apperrors.NotFound("membership %d not found", m.ID)
	}
	c.details["seat_released"] = removal.SeatReleased
	c.details["roles_retired"] = removal.RolesRetired
	return nil
}

// target authenticates, validates req and resolves the membership an action
// addresses, which fixes the tenant
func (s *Service) target(c *call, req interface{}, membershipID int64) (*orgs.Membership, error) {
	if err := c.authenticate(); err != nil {
		return nil, err
	}
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	m, err := s.members.GetMembership(c.ctx, membershipID)
	if err != nil {
		return nil, err
	}
	c.tenant(m.OrganizationID)
	return m, nil
}
