package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tenantguard/pkg/apperrors"
	"github.com/platinummonkey/tenantguard/pkg/assignment"
	"github.com/platinummonkey/tenantguard/pkg/catalog"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// enrichConcurrency bounds the per-member lookups in flight
const enrichConcurrency = 4

// Normalize applies defaults and validates a list query
func (q *ListQuery) Normalize() error {
	if q.OrganizationID <= 0 {
		return apperrors.Validation("tenant id is required")
	}
	if q.Limit == 0 {
		q.Limit = DefaultListLimit
	}
	if q.Limit < 1 || q.Limit > MaxListLimit {
		return apperrors.Validation("limit must be between 1 and %d", MaxListLimit)
	}
	if q.Offset < 0 {
		return apperrors.Validation("offset must not be negative")
	}
	switch q.License {
	case LicenseAny, LicenseAssigned, LicenseUnassigned:
	default:
		return apperrors.Validation("unknown license filter %q", q.License)
	}
	if q.Status != "" && !q.Status.IsValid() {
		return apperrors.Validation("unknown status %q", q.Status)
	}
	q.Search = strings.TrimSpace(q.Search)
	return nil
}

// whereBuilder accumulates AND-ed predicates with numbered placeholders
type whereBuilder struct {
	clauses []string
	args    []interface{}
}

func (w *whereBuilder) arg(v interface{}) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *whereBuilder) add(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *whereBuilder) String() string {
	return strings.Join(w.clauses, " AND ")
}

// ListMembers returns one page of an organization's members, restricted by
// the caller's visibility filter, enriched with roles, companies and seat.
func (s *SQLService) ListMembers(ctx context.Context, q ListQuery, filter rbac.Filter) (*ListResult, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}
	if q.RoleKey != "" && !s.resolver.Catalog().Has(q.RoleKey) {
		return nil, apperrors.Validation("unknown role key %q", q.RoleKey)
	}

	empty := &ListResult{Items: []*MemberSummary{}}
	if filter.DenyAll {
		return empty, nil
	}
	if filter.OrganizationID != nil && *filter.OrganizationID != q.OrganizationID {
		return empty, nil
	}

	w := &whereBuilder{}
	w.add("m.organization_id = " + w.arg(q.OrganizationID))
	if filter.DepartmentID != nil {
		w.add("m.department_id = " + w.arg(*filter.DepartmentID))
	}
	if filter.OwnerID != nil {
		w.add("m.principal_id = " + w.arg(*filter.OwnerID))
	}
	if q.Search != "" {
		p := w.arg(containsPattern(strings.ToLower(q.Search)))
		w.add(fmt.Sprintf(`(LOWER(p.email) LIKE %[1]s ESCAPE '\' OR LOWER(p.display_name) LIKE %[1]s ESCAPE '\' `+
			`OR LOWER(m.first_name) LIKE %[1]s ESCAPE '\' OR LOWER(m.last_name) LIKE %[1]s ESCAPE '\')`, p))
	}
	if q.Status != "" {
		w.add("m.status = " + w.arg(q.Status))
	}
	if q.RoleKey != "" {
		key := w.arg(q.RoleKey)
		now := w.arg(s.now())
		w.add(fmt.Sprintf(`EXISTS (SELECT 1 FROM role_assignments ra
			WHERE ra.membership_id = m.id AND ra.role_key = %s AND ra.is_active = TRUE
			AND (ra.expires_at IS NULL OR ra.expires_at > %s))`, key, now))
	}
	if q.CompanyID != nil {
		w.add(fmt.Sprintf(`EXISTS (SELECT 1 FROM principal_companies pc
			WHERE pc.principal_id = m.principal_id AND pc.company_id = %s)`, w.arg(*q.CompanyID)))
	}
	if q.License != LicenseAny {
		seat := fmt.Sprintf(`EXISTS (SELECT 1 FROM group_assignments ga
			WHERE ga.entity_id = m.principal_id AND ga.organization_id = m.organization_id
			AND ga.group_category = %s AND ga.active = TRUE)`, w.arg(assignment.CategoryLicenseSeat))
		if q.License == LicenseUnassigned {
			seat = "NOT " + seat
		}
		w.add(seat)
	}

	from := ` FROM tenant_memberships m JOIN principals p ON p.id = m.principal_id WHERE ` + w.String()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+from, w.args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}

	pageArgs := append(append([]interface{}{}, w.args...), q.Limit, q.Offset)
	query := `SELECT m.id, m.principal_id, p.email, p.display_name, m.first_name, m.last_name, m.status, m.department_id` +
		from + fmt.Sprintf(` ORDER BY m.id ASC LIMIT $%d OFFSET $%d`, len(w.args)+1, len(w.args)+2)
	rows, err := s.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	items := []*MemberSummary{}
	for rows.Next() {
		ms := &MemberSummary{Roles: []string{}, Companies: []int64{}}
		var dept sql.NullInt64
		if err := rows.Scan(&ms.MembershipID, &ms.PrincipalID, &ms.Email, &ms.DisplayName,
			&ms.FirstName, &ms.LastName, &ms.Status, &dept); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		if dept.Valid {
			d := dept.Int64
			ms.DepartmentID = &d
		}
		items = append(items, ms)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	rows.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for _, ms := range items {
		ms := ms
		g.Go(func() error {
			return s.enrich(gctx, q.OrganizationID, ms)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &ListResult{Items: items, Total: total}, nil
}

func (s *SQLService) enrich(ctx context.Context, orgID int64, ms *MemberSummary) error {
	keys, err := s.queryKeys(ctx, `
		SELECT role_key FROM role_assignments
		WHERE membership_id = $1 AND is_active = TRUE AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY id ASC
	`, ms.MembershipID, s.now())
	if err != nil {
		return err
	}
	ms.Roles = append(ms.Roles, keys...)

	cat := s.resolver.Catalog()
	held := make([]catalog.Role, 0, len(keys))
	for _, key := range keys {
		if role, err := cat.Resolve(key); err == nil {
			held = append(held, role)
		}
	}
	if primary, ok := cat.Primary(held); ok {
		ms.PrimaryRole = primary.Key
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT pc.company_id FROM principal_companies pc
		JOIN companies c ON c.id = pc.company_id
		WHERE pc.principal_id = $1 AND c.organization_id = $2
		ORDER BY pc.company_id ASC
	`, ms.PrincipalID, orgID)
	if err != nil {
		return fmt.Errorf("failed to load companies: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan company: %w", err)
		}
		ms.Companies = append(ms.Companies, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to iterate companies: %w", err)
	}
	rows.Close()

	var seatType string
	var slot sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT group_id, seat_slot FROM group_assignments
		WHERE entity_id = $1 AND organization_id = $2 AND group_category = $3 AND active = TRUE
	`, ms.PrincipalID, orgID, assignment.CategoryLicenseSeat).Scan(&seatType, &slot)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load license: %w", err)
	}
	ms.HasLicense = true
	ms.License = &License{SeatType: seatType}
	if slot.Valid {
		v := int(slot.Int64)
		ms.License.SeatSlot = &v
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// containsPattern matches term literally anywhere in a LIKE operand
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
