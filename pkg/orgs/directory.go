package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/apperrors"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

const principalColumns = `id, email, display_name, subject, created_at, last_login_at`

func scanPrincipal(row rowScanner) (*PrincipalRecord, error) {
	p := &PrincipalRecord{}
	var subject sql.NullString
	var lastLogin sql.NullTime
	if err := row.Scan(&p.ID, &p.Email, &p.DisplayName, &subject, &p.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	p.Subject = subject.String
	if lastLogin.Valid {
		p.LastLoginAt = &lastLogin.Time
	}
	return p, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignIn records an authenticated contact. The principal is created on first
// contact; every invited membership it holds becomes active.
func (s *SQLService) SignIn(ctx context.Context, req SignInRequest) (*PrincipalRecord, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, apperrors.Authentication("identity has no email")
	}

	var principal *PrincipalRecord
	err := store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		now := s.now()
		p, err := scanPrincipal(tx.QueryRowContext(ctx,
			`SELECT `+principalColumns+` FROM principals WHERE email = $1`, email))
		switch {
		case err == sql.ErrNoRows:
			p = &PrincipalRecord{Email: email, DisplayName: req.DisplayName, Subject: req.Subject, CreatedAt: now}
			if err := tx.QueryRowContext(ctx, `
				INSERT INTO principals (email, display_name, subject, created_at, last_login_at)
				VALUES ($1, $2, $3, $4, $4)
				RETURNING id
			`, p.Email, p.DisplayName, nullString(p.Subject), now).Scan(&p.ID); err != nil {
				return fmt.Errorf("failed to create principal: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to read principal: %w", err)
		default:
			if req.DisplayName != "" {
				p.DisplayName = req.DisplayName
			}
			if req.Subject != "" {
				p.Subject = req.Subject
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE principals SET display_name = $1, subject = $2, last_login_at = $3 WHERE id = $4
			`, p.DisplayName, nullString(p.Subject), now, p.ID); err != nil {
				return fmt.Errorf("failed to update principal: %w", err)
			}
		}
		p.LastLoginAt = &now

		if _, err := tx.ExecContext(ctx, `
			UPDATE tenant_memberships SET status = $1, updated_at = $2
			WHERE principal_id = $3 AND status = $4
		`, StatusActive, now, p.ID, StatusInvited); err != nil {
			return fmt.Errorf("failed to activate memberships: %w", err)
		}
		principal = p
		return nil
	})
	if err != nil {
		// two first contacts for one email: the loser reads the winner's row
		if store.IsUniqueViolation(err) {
			return s.FindPrincipalByEmail(ctx, email)
		}
		return nil, err
	}
	return principal, nil
}

// FindPrincipalByEmail looks up a principal by case-insensitive email
func (s *SQLService) FindPrincipalByEmail(ctx context.Context, email string) (*PrincipalRecord, error) {
	email = normalizeEmail(email)
	p, err := scanPrincipal(s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE email = $1`, email))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("no principal with email %s", email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find principal: %w", err)
	}
	return p, nil
}

// GetPrincipal retrieves a principal by ID
func (s *SQLService) GetPrincipal(ctx context.Context, id int64) (*PrincipalRecord, error) {
	p, err := scanPrincipal(s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("principal %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
