package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations in order. The SQL uses
// {{ID}}, {{TS}} and {{JSON}} tokens that Render fills per dialect.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create organizations and companies",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id {{ID}},
					name TEXT NOT NULL,
					seat_limit INTEGER NOT NULL DEFAULT 0,
					created_at {{TS}} NOT NULL
				);

				CREATE TABLE IF NOT EXISTS companies (
					id {{ID}},
					organization_id BIGINT NOT NULL REFERENCES organizations(id),
					name TEXT NOT NULL,
					created_at {{TS}} NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_companies_organization_id ON companies(organization_id);
			`,
		},
		{
			Version:     2,
			Description: "Create principals and tenant memberships",
			SQL: `
				CREATE TABLE IF NOT EXISTS principals (
					id {{ID}},
					email TEXT NOT NULL UNIQUE,
					display_name TEXT NOT NULL DEFAULT '',
					subject TEXT,
					created_at {{TS}} NOT NULL,
					last_login_at {{TS}}
				);

				CREATE TABLE IF NOT EXISTS tenant_memberships (
					id {{ID}},
					principal_id BIGINT NOT NULL REFERENCES principals(id),
					organization_id BIGINT NOT NULL REFERENCES organizations(id),
					status TEXT NOT NULL DEFAULT 'invited' CHECK (status IN ('invited', 'active', 'disabled')),
					first_name TEXT NOT NULL DEFAULT '',
					last_name TEXT NOT NULL DEFAULT '',
					department_id BIGINT,
					created_at {{TS}} NOT NULL,
					updated_at {{TS}} NOT NULL,
					UNIQUE (principal_id, organization_id)
				);

				CREATE INDEX IF NOT EXISTS idx_tenant_memberships_organization_id ON tenant_memberships(organization_id);

				CREATE TABLE IF NOT EXISTS principal_companies (
					principal_id BIGINT NOT NULL REFERENCES principals(id),
					company_id BIGINT NOT NULL REFERENCES companies(id),
					created_at {{TS}} NOT NULL,
					PRIMARY KEY (principal_id, company_id)
				);

				CREATE TABLE IF NOT EXISTS platform_role_assignments (
					principal_id BIGINT NOT NULL REFERENCES principals(id),
					role_key TEXT NOT NULL,
					assigned_by BIGINT,
					assigned_at {{TS}} NOT NULL,
					PRIMARY KEY (principal_id, role_key)
				);
			`,
		},
		{
			Version:     3,
			Description: "Create role assignments with history",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_assignments (
					id {{ID}},
					membership_id BIGINT NOT NULL,
					principal_id BIGINT NOT NULL,
					organization_id BIGINT NOT NULL,
					role_key TEXT NOT NULL,
					assigned_by BIGINT,
					assigned_at {{TS}} NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					expires_at {{TS}},
					removed_at {{TS}},
					reason TEXT NOT NULL DEFAULT ''
				);

				CREATE UNIQUE INDEX IF NOT EXISTS uq_role_assignments_active
					ON role_assignments(membership_id, role_key) WHERE is_active;
				CREATE INDEX IF NOT EXISTS idx_role_assignments_principal
					ON role_assignments(principal_id, organization_id);
			`,
		},
		{
			Version:     4,
			Description: "Create group assignments and seat slots",
			SQL: `
				CREATE TABLE IF NOT EXISTS group_assignments (
					id {{ID}},
					organization_id BIGINT NOT NULL,
					entity_id BIGINT NOT NULL,
					group_id TEXT NOT NULL,
					group_category TEXT NOT NULL,
					seat_slot INTEGER,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					assigned_at {{TS}} NOT NULL,
					removed_at {{TS}}
				);

				CREATE UNIQUE INDEX IF NOT EXISTS uq_group_assignments_active
					ON group_assignments(entity_id, group_category) WHERE active;
				CREATE UNIQUE INDEX IF NOT EXISTS uq_group_assignments_seat_slot
					ON group_assignments(organization_id, group_category, seat_slot)
					WHERE active AND seat_slot IS NOT NULL;
				CREATE INDEX IF NOT EXISTS idx_group_assignments_org_category
					ON group_assignments(organization_id, group_category);
			`,
		},
		{
			Version:     5,
			Description: "Create audit log",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_log (
					id {{ID}},
					actor_id BIGINT,
					organization_id BIGINT,
					action TEXT NOT NULL,
					resource TEXT NOT NULL,
					resource_id TEXT NOT NULL DEFAULT '',
					details {{JSON}},
					result TEXT NOT NULL CHECK (result IN ('success', 'failure')),
					reason TEXT NOT NULL DEFAULT '',
					request_id TEXT NOT NULL DEFAULT '',
					created_at {{TS}} NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_audit_log_created_at ON audit_log(created_at);
				CREATE INDEX IF NOT EXISTS idx_audit_log_actor_id ON audit_log(actor_id);
				CREATE INDEX IF NOT EXISTS idx_audit_log_organization_id ON audit_log(organization_id);
			`,
		},
	}
}

// Render fills dialect tokens in migration SQL
func Render(dialect Dialect, sqlText string) string {
	var r *strings.Replacer
	switch dialect {
	case DialectPostgres:
		r = strings.NewReplacer("{{ID}}", "BIGSERIAL PRIMARY KEY", "{{TS}}", "TIMESTAMPTZ", "{{JSON}}", "JSONB")
	default:
		r = strings.NewReplacer("{{ID}}", "INTEGER PRIMARY KEY AUTOINCREMENT", "{{TS}}", "TIMESTAMP", "{{JSON}}", "TEXT")
	}
	return r.Replace(sqlText)
}

// Migrate applies all pending migrations, each in its own transaction
func Migrate(ctx context.Context, db *DB) error {
	_, err := db.ExecContext(ctx, Render(db.Dialect, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at {{TS}} NOT NULL
		)
	`))
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied, err := appliedVersions(ctx, db.DB)
	if err != nil {
		return err
	}

	for _, m := range GetMigrations() {
		if applied[m.Version] {
			continue
		}
		err := WithTx(ctx, db.DB, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, Render(db.Dialect, m.SQL)); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, description, applied_at) VALUES ($1, $2, $3)`,
				m.Version, m.Description, time.Now().UTC())
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Description, err)
		}
	}

	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// SeedOrganization inserts an organization and returns its id
func SeedOrganization(ctx context.Context, db *sql.DB, name string, seatLimit int) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx,
		`INSERT INTO organizations (name, seat_limit, created_at) VALUES ($1, $2, $3) RETURNING id`,
		name, seatLimit, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create organization: %w", err)
	}
	return id, nil
}

// SeedCompany inserts a company under an organization and returns its id
func SeedCompany(ctx context.Context, db *sql.DB, orgID int64, name string) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx,
		`INSERT INTO companies (organization_id, name, created_at) VALUES ($1, $2, $3) RETURNING id`,
		orgID, name, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create company: %w", err)
	}
	return id, nil
}
