// Package assignment keeps "at most one active assignment" invariants for
// group-style resources such as pay-group membership and license seats.
//
// Reads are optimistic pre-checks that produce good error messages. The
// partial unique indexes on group_assignments are the source of truth: a
// rejected insert is translated into a typed conflict. No in-process lock is
// held, since callers may run on separate instances.
package assignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/apperrors"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

const (
	// DefaultMaxAttempts bounds the seat-pool retry loop
	DefaultMaxAttempts = 3
	maxAttemptsCeiling = 5
)

// Config holds guard settings
type Config struct {
	MaxAttempts int
}

// Guard enforces single active assignment per (entity, category)
type Guard struct {
	db          *sql.DB
	maxAttempts int
	observer    Observer
	now         func() time.Time
}

// NewGuard creates a guard over the store. MaxAttempts is clamped to 1..5.
func NewGuard(db *sql.DB, cfg Config) *Guard {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	if attempts > maxAttemptsCeiling {
		attempts = maxAttemptsCeiling
	}
	return &Guard{
		db:          db,
		maxAttempts: attempts,
		observer:    nopObserver{},
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetObserver installs a conflict/retry observer
func (g *Guard) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	g.observer = o
}

// errRace marks a unique violation that a fresh attempt may resolve
var errRace = errors.New("assignment race")

const assignmentColumns = `id, organization_id, entity_id, group_id, group_category, seat_slot, active, assigned_at, removed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAssignment(row rowScanner) (*Assignment, error) {
	var a Assignment
	var slot sql.NullInt64
	var removedAt sql.NullTime
	if err := row.Scan(&a.ID, &a.OrganizationID, &a.EntityID, &a.GroupID, &a.Category,
		&slot, &a.Active, &a.AssignedAt, &removedAt); err != nil {
		return nil, err
	}
	if slot.Valid {
		s := int(slot.Int64)
		a.SeatSlot = &s
	}
	if removedAt.Valid {
		a.RemovedAt = &removedAt.Time
	}
	return &a, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func activeFor(ctx context.Context, q querier, entityID int64, category string) (*Assignment, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM group_assignments
		WHERE entity_id = $1 AND group_category = $2 AND active = TRUE
	`, entityID, category)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read active assignment: %w", err)
	}
	return a, nil
}

func (g *Guard) deactivate(ctx context.Context, q querier, id int64, at time.Time) error {
	_, err := q.ExecContext(ctx, `
		UPDATE group_assignments SET active = FALSE, removed_at = $1
		WHERE id = $2 AND active = TRUE
	`, at, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate assignment: %w", err)
	}
	return nil
}

func (g *Guard) insert(ctx context.Context, q querier, a *Assignment) error {
	var slot interface{}
	if a.SeatSlot != nil {
		slot = *a.SeatSlot
	}
	err := q.QueryRowContext(ctx, `
		INSERT INTO group_assignments (organization_id, entity_id, group_id, group_category, seat_slot, active, assigned_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		RETURNING id
	`, a.OrganizationID, a.EntityID, a.GroupID, a.Category, slot, a.AssignedAt).Scan(&a.ID)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return errRace
		}
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	a.Active = true
	return nil
}

func validate(req Request) error {
	if req.OrganizationID <= 0 {
		return apperrors.Validation("organization id is required")
	}
	if req.EntityID <= 0 {
		return apperrors.Validation("entity id is required")
	}
	if req.GroupID == "" {
		return apperrors.Validation("group id is required")
	}
	if req.Category == "" {
		return apperrors.Validation("group category is required")
	}
	return nil
}

// Assign places an entity in a group. An existing active assignment to the
// same group is a no-op; one to a different group is deactivated in the same
// transaction before the new row is inserted.
func (g *Guard) Assign(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if req.Category == CategoryLicenseSeat {
		return nil, apperrors.Validation("license seats must be assigned through the seat pool")
	}

	res, err := g.assignOnce(ctx, req)
	if !errors.Is(err, errRace) {
		return res, err
	}

	// a concurrent writer won; re-read once against the committed state
	g.observer.ObserveRetry(req.Category)
	current, err := activeFor(ctx, g.db, req.EntityID, req.Category)
	if err != nil {
		return nil, err
	}
	if current != nil && current.GroupID == req.GroupID {
		return &Result{Outcome: OutcomeAlreadyAssigned, Assignment: current}, nil
	}
	g.observer.ObserveConflict(req.Category, ReasonAlreadyAssigned)
	return nil, apperrors.Conflict(ReasonAlreadyAssigned)
}

func (g *Guard) assignOnce(ctx context.Context, req Request) (*Result, error) {
	var result *Result
	err := store.WithTx(ctx, g.db, func(tx *sql.Tx) error {
		current, err := activeFor(ctx, tx, req.EntityID, req.Category)
		if err != nil {
			return err
		}
		if current != nil && current.GroupID == req.GroupID {
			result = &Result{Outcome: OutcomeAlreadyAssigned, Assignment: current}
			return nil
		}

		now := g.now()
		outcome := OutcomeAssigned
		if current != nil {
			if err := g.deactivate(ctx, tx, current.ID, now); err != nil {
				return err
			}
			current.Active = false
			current.RemovedAt = &now
			outcome = OutcomeMoved
		}

		a := &Assignment{
			OrganizationID: req.OrganizationID,
			EntityID:       req.EntityID,
			GroupID:        req.GroupID,
			Category:       req.Category,
			AssignedAt:     now,
		}
		if err := g.insert(ctx, tx, a); err != nil {
			return err
		}
		result = &Result{Outcome: outcome, Assignment: a, Previous: current}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Remove soft-deletes the active assignment for (entity, category). Removing
// nothing is not an error.
func (g *Guard) Remove(ctx context.Context, entityID int64, category string) (*Result, error) {
	return g.remove(ctx, entityID, category, nil)
}

func (g *Guard) remove(ctx context.Context, entityID int64, category string, orgID *int64) (*Result, error) {
	var result *Result
	err := store.WithTx(ctx, g.db, func(tx *sql.Tx) error {
		current, err := activeFor(ctx, tx, entityID, category)
		if err != nil {
			return err
		}
		if current == nil || (orgID != nil && current.OrganizationID != *orgID) {
			result = &Result{Outcome: OutcomeNotAssigned}
			return nil
		}
		now := g.now()
		if err := g.deactivate(ctx, tx, current.ID, now); err != nil {
			return err
		}
		current.Active = false
		current.RemovedAt = &now
		result = &Result{Outcome: OutcomeRemoved, Previous: current}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Active returns the active assignment for (entity, category), or nil
func (g *Guard) Active(ctx context.Context, entityID int64, category string) (*Assignment, error) {
	return activeFor(ctx, g.db, entityID, category)
}

// History returns every assignment row for (entity, category), oldest first
func (g *Guard) History(ctx context.Context, entityID int64, category string) ([]*Assignment, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM group_assignments
		WHERE entity_id = $1 AND group_category = $2
		ORDER BY id ASC
	`, entityID, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignment history: %w", err)
	}
	defer rows.Close()

	var history []*Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		history = append(history, a)
	}
	return history, rows.Err()
}

// CountActive counts active assignments in an organization's category
func (g *Guard) CountActive(ctx context.Context, orgID int64, category string) (int, error) {
	var count int
	err := g.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM group_assignments
		WHERE organization_id = $1 AND group_category = $2 AND active = TRUE
	`, orgID, category).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active assignments: %w", err)
	}
	return count, nil
}
