package assignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/tenantguard/pkg/apperrors"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

// AssignSeat activates a license seat for a principal. Each active seat
// claims a numbered slot in 1..seat_limit; the slot index turns concurrent
// over-allocation into a unique violation, which is retried a bounded
// number of times.
func (g *Guard) AssignSeat(ctx context.Context, req SeatRequest) (*Result, error) {
	if req.OrganizationID <= 0 {
		return nil, apperrors.Validation("organization id is required")
	}
	if req.PrincipalID <= 0 {
		return nil, apperrors.Validation("principal id is required")
	}
	if req.SeatType == "" {
		return nil, apperrors.Validation("seat type is required")
	}

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		res, err := g.assignSeatOnce(ctx, req)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, errRace) {
			if apperrors.IsConflict(err) {
				g.observer.ObserveConflict(CategoryLicenseSeat, apperrors.ReasonOf(err))
			}
			return nil, err
		}
		if attempt < g.maxAttempts {
			g.observer.ObserveRetry(CategoryLicenseSeat)
		}
	}

	g.observer.ObserveConflict(CategoryLicenseSeat, ReasonContended)
	return nil, apperrors.Conflict(ReasonContended)
}

func (g *Guard) assignSeatOnce(ctx context.Context, req SeatRequest) (*Result, error) {
	var result *Result
	err := store.WithTx(ctx, g.db, func(tx *sql.Tx) error {
		var limit int
		err := tx.QueryRowContext(ctx, `SELECT seat_limit FROM organizations WHERE id = $1`, req.OrganizationID).Scan(&limit)
		if err == sql.ErrNoRows {
			return apperrors.NotFound("organization %d not found", req.OrganizationID)
		}
		if err != nil {
			return fmt.Errorf("failed to read seat limit: %w", err)
		}

		current, err := activeFor(ctx, tx, req.PrincipalID, CategoryLicenseSeat)
		if err != nil {
			return err
		}
		if current != nil && current.OrganizationID != req.OrganizationID {
			return apperrors.Conflict(ReasonAlreadyAssigned)
		}
		if current != nil && current.GroupID == req.SeatType {
			result = &Result{Outcome: OutcomeAlreadyAssigned, Assignment: current}
			return nil
		}

		now := g.now()
		outcome := OutcomeAssigned
		if current != nil {
			// changing seat type frees the old slot first
			if err := g.deactivate(ctx, tx, current.ID, now); err != nil {
				return err
			}
			current.Active = false
			current.RemovedAt = &now
			outcome = OutcomeMoved
		}

		used, err := usedSlots(ctx, tx, req.OrganizationID)
		if err != nil {
			return err
		}
		if len(used) >= limit {
			return apperrors.Conflict(ReasonSeatLimit)
		}
		slot := lowestFreeSlot(used, limit)

		a := &Assignment{
			OrganizationID: req.OrganizationID,
			EntityID:       req.PrincipalID,
			GroupID:        req.SeatType,
			Category:       CategoryLicenseSeat,
			SeatSlot:       &slot,
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

func usedSlots(ctx context.Context, q querier, orgID int64) (map[int]bool, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT seat_slot FROM group_assignments
		WHERE organization_id = $1 AND group_category = $2 AND active = TRUE
	`, orgID, CategoryLicenseSeat)
	if err != nil {
		return nil, fmt.Errorf("failed to count active seats: %w", err)
	}
	defer rows.Close()

	used := make(map[int]bool)
	for rows.Next() {
		var slot sql.NullInt64
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("failed to scan seat slot: %w", err)
		}
		// legacy rows without a slot still consume a seat
		key := -len(used) - 1
		if slot.Valid {
			key = int(slot.Int64)
		}
		used[key] = true
	}
	return used, rows.Err()
}

func lowestFreeSlot(used map[int]bool, limit int) int {
	for slot := 1; slot <= limit; slot++ {
		if !used[slot] {
			return slot
		}
	}
	return limit + 1
}

// ReleaseSeat soft-deletes the principal's seat in an organization.
// Releasing an absent seat is a no-op.
func (g *Guard) ReleaseSeat(ctx context.Context, orgID, principalID int64) (*Result, error) {
	return g.remove(ctx, principalID, CategoryLicenseSeat, &orgID)
}

// SeatUsage reports active seats against the organization's limit
func (g *Guard) SeatUsage(ctx context.Context, orgID int64) (used, limit int, err error) {
	err = g.db.QueryRowContext(ctx, `SELECT seat_limit FROM organizations WHERE id = $1`, orgID).Scan(&limit)
	if err == sql.ErrNoRows {
		return 0, 0, apperrors.NotFound("organization %d not found", orgID)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read seat limit: %w", err)
	}
	used, err = g.CountActive(ctx, orgID, CategoryLicenseSeat)
	return used, limit, err
}
