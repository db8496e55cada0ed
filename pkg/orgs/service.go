package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/apperrors"
	"github.com/platinummonkey/tenantguard/pkg/assignment"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

// Directory resolves and records principals
type Directory interface {
	SignIn(ctx context.Context, req SignInRequest) (*PrincipalRecord, error)
	FindPrincipalByEmail(ctx context.Context, email string) (*PrincipalRecord, error)
	GetPrincipal(ctx context.Context, id int64) (*PrincipalRecord, error)
}

// Service is the tenant membership manager
type Service interface {
	Directory

	GetOrganization(ctx context.Context, id int64) (*Organization, error)
	GetCompany(ctx context.Context, id int64) (*Company, error)

	AddOrgMembership(ctx context.Context, principalID, orgID int64) (int64, bool, error)
	RemoveOrgMembership(ctx context.Context, principalID, orgID int64) (*Removal, error)
	GetMembership(ctx context.Context, membershipID int64) (*Membership, error)
	FindMembership(ctx context.Context, principalID, orgID int64) (*Membership, error)
	UpdateProfile(ctx context.Context, membershipID int64, update ProfileUpdate) error
	SetStatus(ctx context.Context, membershipID int64, status Status) (bool, error)

	AddCompanyMembership(ctx context.Context, principalID, companyID int64) (bool, error)
	RemoveCompanyMembership(ctx context.Context, principalID, companyID int64) (bool, error)

	GrantRole(ctx context.Context, assigner *rbac.Principal, grant RoleGrant) (bool, error)
	RevokeRole(ctx context.Context, assigner *rbac.Principal, membershipID int64, roleKey string) (bool, error)
	RoleHistory(ctx context.Context, membershipID int64) ([]*RoleAssignment, error)
	AddPlatformRole(ctx context.Context, assigner *rbac.Principal, principalID int64, roleKey string) (bool, error)
	RemovePlatformRole(ctx context.Context, assigner *rbac.Principal, principalID int64, roleKey string) (bool, error)

	LoadPrincipal(ctx context.Context, principalID, orgID int64) (*rbac.Principal, error)
	ListMembers(ctx context.Context, q ListQuery, filter rbac.Filter) (*ListResult, error)
}

// SQLService implements Service over database/sql. Queries are written for
// both the postgres and sqlite3 dialects.
type SQLService struct {
	db       *sql.DB
	resolver *rbac.Resolver
	now      func() time.Time
}

// NewSQLService creates a membership manager
func NewSQLService(db *sql.DB, resolver *rbac.Resolver) *SQLService {
	return &SQLService{
		db:       db,
		resolver: resolver,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var _ Service = (*SQLService)(nil)

// GetOrganization retrieves an organization by ID
func (s *SQLService) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	org := &Organization{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, seat_limit, created_at FROM organizations WHERE id = $1`, id,
	).Scan(&org.ID, &org.Name, &org.SeatLimit, &org.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("organization %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// CreateOrganization creates a tenant with a seat limit
func (s *SQLService) CreateOrganization(ctx context.Context, name string, seatLimit int) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Validation("organization name is required")
	}
	if seatLimit < 0 {
		return nil, apperrors.Validation("seat limit must not be negative")
	}
	org := &Organization{Name: name, SeatLimit: seatLimit, CreatedAt: s.now()}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO organizations (name, seat_limit, created_at) VALUES ($1, $2, $3) RETURNING id`,
		org.Name, org.SeatLimit, org.CreatedAt,
	).Scan(&org.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}
	return org, nil
}

// SetSeatLimit changes the size of an organization's license pool. Seats
// already held above a lowered limit are kept; new seats are refused until
// usage drops.
func (s *SQLService) SetSeatLimit(ctx context.Context, orgID int64, seatLimit int) error {
	if seatLimit < 0 {
		return apperrors.Validation("seat limit must not be negative")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE organizations SET seat_limit = $1 WHERE id = $2`, seatLimit, orgID)
	if err != nil {
		return fmt.Errorf("failed to update seat limit: %w", err)
	}
	return requireAffected(res, "organization %d not found", orgID)
}

// CreateCompany adds a company under an organization
func (s *SQLService) CreateCompany(ctx context.Context, orgID int64, name string) (*Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Validation("company name is required")
	}
	if _, err := s.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	c := &Company{OrganizationID: orgID, Name: name, CreatedAt: s.now()}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO companies (organization_id, name, created_at) VALUES ($1, $2, $3) RETURNING id`,
		c.OrganizationID, c.Name, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create company: %w", err)
	}
	return c, nil
}

// GetCompany retrieves a company by ID
func (s *SQLService) GetCompany(ctx context.Context, id int64) (*Company, error) {
	c := &Company{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, created_at FROM companies WHERE id = $1`, id,
	).Scan(&c.ID, &c.OrganizationID, &c.Name, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("company %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return c, nil
}

const membershipColumns = `id, principal_id, organization_id, status, first_name, last_name, department_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMembership(row rowScanner) (*Membership, error) {
	m := &Membership{}
	var dept sql.NullInt64
	if err := row.Scan(&m.ID, &m.PrincipalID, &m.OrganizationID, &m.Status,
		&m.FirstName, &m.LastName, &dept, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if dept.Valid {
		d := dept.Int64
		m.DepartmentID = &d
	}
	return m, nil
}

// AddOrgMembership adds a principal to an organization as invited. It
// returns the membership id and whether a row was created.
func (s *SQLService) AddOrgMembership(ctx context.Context, principalID, orgID int64) (int64, bool, error) {
	if _, err := s.GetPrincipal(ctx, principalID); err != nil {
		return 0, false, err
	}
	if _, err := s.GetOrganization(ctx, orgID); err != nil {
		return 0, false, err
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tenant_memberships (principal_id, organization_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (principal_id, organization_id) DO NOTHING
	`, principalID, orgID, StatusInvited, now)
	if err != nil {
		return 0, false, fmt.Errorf("failed to add membership: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	m, err := s.FindMembership(ctx, principalID, orgID)
	if err != nil {
		return 0, false, err
	}
	return m.ID, affected > 0, nil
}

// RemoveOrgMembership deletes a principal's membership in an organization.
// In the same transaction the principal's license seat in that organization
// is released, role assignments are deactivated and kept as history, and
// company memberships for companies of that organization are dropped.
// Removing an absent membership is a no-op.
func (s *SQLService) RemoveOrgMembership(ctx context.Context, principalID, orgID int64) (*Removal, error) {
	out := &Removal{}
	err := store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		m, err := lockMembership(ctx, tx, `principal_id = $1 AND organization_id = $2`, principalID, orgID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to lock membership: %w", err)
		}
		out.MembershipID = m.ID

		now := s.now()
		res, err := tx.ExecContext(ctx, `
			UPDATE group_assignments SET active = FALSE, removed_at = $1
			WHERE entity_id = $2 AND organization_id = $3 AND group_category = $4 AND active = TRUE
		`, now, principalID, orgID, assignment.CategoryLicenseSeat)
		if err != nil {
			return fmt.Errorf("failed to release license seat: %w", err)
		}
		if out.SeatReleased, err = affectedAny(res); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE role_assignments SET is_active = FALSE, removed_at = $1
			WHERE membership_id = $2 AND is_active = TRUE
		`, now, m.ID)
		if err != nil {
			return fmt.Errorf("failed to deactivate role assignments: %w", err)
		}
		if out.RolesRetired, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM principal_companies
			WHERE principal_id = $1 AND company_id IN (SELECT id FROM companies WHERE organization_id = $2)
		`, principalID, orgID); err != nil {
			return fmt.Errorf("failed to remove company memberships: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tenant_memberships WHERE id = $1`, m.ID); err != nil {
			return fmt.Errorf("failed to delete membership: %w", err)
		}
		out.Removed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lockMembership reads one membership inside tx and holds its row lock
// until tx ends. The no-op update stands in for SELECT ... FOR UPDATE,
// which sqlite lacks.
func lockMembership(ctx context.Context, tx *sql.Tx, where string, args ...interface{}) (*Membership, error) {
	return scanMembership(tx.QueryRowContext(ctx,
		`UPDATE tenant_memberships SET id = id WHERE `+where+` RETURNING `+membershipColumns, args...))
}

// GetMembership retrieves a membership by ID
func (s *SQLService) GetMembership(ctx context.Context, membershipID int64) (*Membership, error) {
	m, err := scanMembership(s.db.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM tenant_memberships WHERE id = $1`, membershipID))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("membership %d not found", membershipID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// FindMembership retrieves the membership of a principal in an organization
func (s *SQLService) FindMembership(ctx context.Context, principalID, orgID int64) (*Membership, error) {
	m, err := scanMembership(s.db.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM tenant_memberships WHERE principal_id = $1 AND organization_id = $2`,
		principalID, orgID))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("principal %d is not a member of organization %d", principalID, orgID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// UpdateProfile changes the name and department fields of a membership
func (s *SQLService) UpdateProfile(ctx context.Context, membershipID int64, update ProfileUpdate) error {
	var first, last sql.NullString
	if update.FirstName != nil {
		first = sql.NullString{String: strings.TrimSpace(*update.FirstName), Valid: true}
	}
	if update.LastName != nil {
		last = sql.NullString{String: strings.TrimSpace(*update.LastName), Valid: true}
	}
	var dept sql.NullInt64
	if update.DepartmentID != nil {
		dept = sql.NullInt64{Int64: *update.DepartmentID, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tenant_memberships
		SET first_name = COALESCE($1, first_name),
		    last_name = COALESCE($2, last_name),
		    department_id = COALESCE($3, department_id),
		    updated_at = $4
		WHERE id = $5
	`, first, last, dept, s.now(), membershipID)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return requireAffected(res, "membership %d not found", membershipID)
}

// SetStatus moves a membership through the status machine. Setting the
// current status is a no-op and reports false.
func (s *SQLService) SetStatus(ctx context.Context, membershipID int64, status Status) (bool, error) {
	if !status.IsValid() {
		return false, apperrors.Validation("unknown status %q", status)
	}
	m, err := s.GetMembership(ctx, membershipID)
	if err != nil {
		return false, err
	}
	if m.Status == status {
		return false, nil
	}
	if !CanTransition(m.Status, status) {
		return false, apperrors.Validation("invalid status transition")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tenant_memberships SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, status, s.now(), membershipID, m.Status)
	if err != nil {
		return false, fmt.Errorf("failed to set status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return false, apperrors.Conflict("membership status changed concurrently")
	}
	return true, nil
}

// AddCompanyMembership adds a principal to a company. The principal must be
// a member of the company's organization. Adding twice is a no-op.
func (s *SQLService) AddCompanyMembership(ctx context.Context, principalID, companyID int64) (bool, error) {
	c, err := s.GetCompany(ctx, companyID)
	if err != nil {
		return false, err
	}
	if _, err := s.FindMembership(ctx, principalID, c.OrganizationID); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO principal_companies (principal_id, company_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (principal_id, company_id) DO NOTHING
	`, principalID, companyID, s.now())
	if err != nil {
		return false, fmt.Errorf("failed to add company membership: %w", err)
	}
	return affectedAny(res)
}

// RemoveCompanyMembership removes a principal from a company. Removing an
// absent membership is a no-op.
func (s *SQLService) RemoveCompanyMembership(ctx context.Context, principalID, companyID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM principal_companies WHERE principal_id = $1 AND company_id = $2`,
		principalID, companyID)
	if err != nil {
		return false, fmt.Errorf("failed to remove company membership: %w", err)
	}
	return affectedAny(res)
}

func affectedAny(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func requireAffected(res sql.Result, format string, args ...interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound(format, args...)
	}
	return nil
}
