package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/platinummonkey/tenantguard/pkg/apperrors"
	"github.com/platinummonkey/tenantguard/pkg/catalog"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

// ReasonRoleAlreadyAssigned is the conflict reason for a lost grant race
const ReasonRoleAlreadyAssigned = "role already assigned"

// GrantRole grants a catalog role on a membership. The escalation guard runs
// before anything is read or written. Granting an already active role is a
// no-op and reports false.
func (s *SQLService) GrantRole(ctx context.Context, assigner *rbac.Principal, grant RoleGrant) (bool, error) {
	role, err := s.resolver.CheckGrantKey(assigner, grant.RoleKey)
	if err != nil {
		return false, err
	}
	if grant.ExpiresAt != nil && !grant.ExpiresAt.After(s.now()) {
		return false, apperrors.Validation("expiry must be in the future")
	}

	granted := false
	err = store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		// held until commit so a concurrent removal cannot orphan the grant
		m, err := lockMembership(ctx, tx, `id = $1`, grant.MembershipID)
		if err == sql.ErrNoRows {
			return apperrors.NotFound("membership %d not found", grant.MembershipID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock membership: %w", err)
		}

		now := s.now()
		var id int64
		var expires sql.NullTime
		err = tx.QueryRowContext(ctx, `
			SELECT id, expires_at FROM role_assignments
			WHERE membership_id = $1 AND role_key = $2 AND is_active = TRUE
		`, m.ID, role.Key).Scan(&id, &expires)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return fmt.Errorf("failed to read role assignment: %w", err)
		case !expires.Valid || expires.Time.After(now):
			return nil
		default:
			// an expired grant still holds the active slot; retire it
			if _, err := tx.ExecContext(ctx, `
				UPDATE role_assignments SET is_active = FALSE, removed_at = $1 WHERE id = $2
			`, now, id); err != nil {
				return fmt.Errorf("failed to retire expired role: %w", err)
			}
		}

		var expiresAt interface{}
		if grant.ExpiresAt != nil {
			expiresAt = grant.ExpiresAt.UTC()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO role_assignments
				(membership_id, principal_id, organization_id, role_key, assigned_by, assigned_at, is_active, expires_at, reason)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8)
		`, m.ID, m.PrincipalID, m.OrganizationID, role.Key, assignedBy(assigner), now, expiresAt, grant.Reason)
		if err != nil {
			if store.IsUniqueViolation(err) {
				return apperrors.Conflict(ReasonRoleAlreadyAssigned)
			}
			return fmt.Errorf("failed to grant role: %w", err)
		}
		granted = true
		return nil
	})
	return granted, err
}

// RevokeRole deactivates a role on a membership, keeping the history row.
// Revoking a role above the assigner's own level is denied. Revoking an
// inactive role is a no-op.
func (s *SQLService) RevokeRole(ctx context.Context, assigner *rbac.Principal, membershipID int64, roleKey string) (bool, error) {
	role, err := s.resolver.CheckGrantKey(assigner, roleKey)
	if err != nil {
		return false, err
	}
	if _, err := s.GetMembership(ctx, membershipID); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE role_assignments SET is_active = FALSE, removed_at = $1
		WHERE membership_id = $2 AND role_key = $3 AND is_active = TRUE
	`, s.now(), membershipID, role.Key)
	if err != nil {
		return false, fmt.Errorf("failed to revoke role: %w", err)
	}
	return affectedAny(res)
}

// RetireExpiredRoles deactivates every active grant whose expiry has passed
// and returns how many rows it retired. Loading already skips expired grants;
// this keeps the active slot free and the history accurate.
func (s *SQLService) RetireExpiredRoles(ctx context.Context) (int64, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE role_assignments SET is_active = FALSE, removed_at = $1
		WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to retire expired roles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// assignedBy is NULL for the operator principal, which has no row
func assignedBy(assigner *rbac.Principal) interface{} {
	if assigner.ID == 0 {
		return nil
	}
	return assigner.ID
}

// RoleHistory returns every role assignment row of a membership, oldest first
func (s *SQLService) RoleHistory(ctx context.Context, membershipID int64) ([]*RoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, membership_id, principal_id, organization_id, role_key, assigned_by,
		       assigned_at, is_active, expires_at, removed_at, reason
		FROM role_assignments
		WHERE membership_id = $1
		ORDER BY id ASC
	`, membershipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role history: %w", err)
	}
	defer rows.Close()

	var history []*RoleAssignment
	for rows.Next() {
		ra := &RoleAssignment{}
		var assignedBy sql.NullInt64
		var expiresAt, removedAt sql.NullTime
		if err := rows.Scan(&ra.ID, &ra.MembershipID, &ra.PrincipalID, &ra.OrganizationID, &ra.RoleKey,
			&assignedBy, &ra.AssignedAt, &ra.IsActive, &expiresAt, &removedAt, &ra.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan role assignment: %w", err)
		}
		if assignedBy.Valid {
			v := assignedBy.Int64
			ra.AssignedBy = &v
		}
		if expiresAt.Valid {
			ra.ExpiresAt = &expiresAt.Time
		}
		if removedAt.Valid {
			ra.RemovedAt = &removedAt.Time
		}
		history = append(history, ra)
	}
	return history, rows.Err()
}

// AddPlatformRole grants a role that applies across every tenant
func (s *SQLService) AddPlatformRole(ctx context.Context, assigner *rbac.Principal, principalID int64, roleKey string) (bool, error) {
	role, err := s.resolver.CheckGrantKey(assigner, roleKey)
	if err != nil {
		return false, err
	}
	if _, err := s.GetPrincipal(ctx, principalID); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO platform_role_assignments (principal_id, role_key, assigned_by, assigned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (principal_id, role_key) DO NOTHING
	`, principalID, role.Key, assignedBy(assigner), s.now())
	if err != nil {
		return false, fmt.Errorf("failed to add platform role: %w", err)
	}
	return affectedAny(res)
}

// RemovePlatformRole revokes a platform role. Removing an absent role is a
// no-op.
func (s *SQLService) RemovePlatformRole(ctx context.Context, assigner *rbac.Principal, principalID int64, roleKey string) (bool, error) {
	role, err := s.resolver.CheckGrantKey(assigner, roleKey)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM platform_role_assignments WHERE principal_id = $1 AND role_key = $2`,
		principalID, role.Key)
	if err != nil {
		return false, fmt.Errorf("failed to remove platform role: %w", err)
	}
	return affectedAny(res)
}

// LoadPrincipal builds the decision-time view of a principal bound to an
// organization. It reads the store on every call. Tenant roles apply only
// to an active membership; expired grants are skipped. Platform roles apply
// regardless of membership.
func (s *SQLService) LoadPrincipal(ctx context.Context, principalID, orgID int64) (*rbac.Principal, error) {
	rec, err := s.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	p := &rbac.Principal{
		ID:             rec.ID,
		Email:          rec.Email,
		DisplayName:    rec.DisplayName,
		OrganizationID: orgID,
	}

	platformKeys, err := s.queryKeys(ctx,
		`SELECT role_key FROM platform_role_assignments WHERE principal_id = $1`, principalID)
	if err != nil {
		return nil, err
	}
	if p.PlatformRoles, err = s.resolveRoles(platformKeys); err != nil {
		return nil, err
	}

	m, err := s.FindMembership(ctx, principalID, orgID)
	if apperrors.IsNotFound(err) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	p.MembershipID = m.ID
	p.DepartmentID = m.DepartmentID
	if m.Status != StatusActive {
		return p, nil
	}

	tenantKeys, err := s.queryKeys(ctx, `
		SELECT role_key FROM role_assignments
		WHERE membership_id = $1 AND is_active = TRUE AND (expires_at IS NULL OR expires_at > $2)
	`, m.ID, s.now())
	if err != nil {
		return nil, err
	}
	if p.Roles, err = s.resolveRoles(tenantKeys); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLService) queryKeys(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// resolveRoles maps stored keys to catalog roles, highest level first. A key
// the catalog no longer knows is a configuration error.
func (s *SQLService) resolveRoles(keys []string) ([]catalog.Role, error) {
	cat := s.resolver.Catalog()
	roles := make([]catalog.Role, 0, len(keys))
	for _, key := range keys {
		role, err := cat.Resolve(key)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	sort.SliceStable(roles, func(i, j int) bool {
		return roles[i].Level > roles[j].Level
	})
	return roles, nil
}
