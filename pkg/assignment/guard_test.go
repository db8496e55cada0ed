package assignment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/platinummonkey/tenantguard/pkg/apperrors"
	"github.com/platinummonkey/tenantguard/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	mu        sync.Mutex
	conflicts map[string]int
	retries   int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{conflicts: make(map[string]int)}
}

func (o *countingObserver) ObserveConflict(category, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conflicts[category+"/"+reason]++
}

func (o *countingObserver) ObserveRetry(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries++
}

func setupGuard(t *testing.T, seatLimit int) (*Guard, *store.DB, int64) {
	t.Helper()
	ctx := context.Background()
	db, err := store.OpenMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	orgID, err := store.SeedOrganization(ctx, db.DB, "Acme", seatLimit)
	require.NoError(t, err)

	return NewGuard(db.DB, Config{}), db, orgID
}

func countActive(t *testing.T, db *store.DB, entityID int64, category string) int {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM group_assignments WHERE entity_id = $1 AND group_category = $2 AND active = TRUE`,
		entityID, category).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestNewGuard_ClampsAttempts(t *testing.T) {
	assert.Equal(t, DefaultMaxAttempts, NewGuard(nil, Config{}).maxAttempts)
	assert.Equal(t, 1, NewGuard(nil, Config{MaxAttempts: 1}).maxAttempts)
	assert.Equal(t, 5, NewGuard(nil, Config{MaxAttempts: 50}).maxAttempts)
}

func TestAssign_Validation(t *testing.T) {
	g, _, orgID := setupGuard(t, 1)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
	}{
		{"missing org", Request{EntityID: 1, GroupID: "G1", Category: "payroll"}},
		{"missing entity", Request{OrganizationID: orgID, GroupID: "G1", Category: "payroll"}},
		{"missing group", Request{OrganizationID: orgID, EntityID: 1, Category: "payroll"}},
		{"missing category", Request{OrganizationID: orgID, EntityID: 1, GroupID: "G1"}},
		{"seat pool", Request{OrganizationID: orgID, EntityID: 1, GroupID: "standard", Category: CategoryLicenseSeat}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Assign(ctx, tt.req)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
		})
	}
}

func TestAssign_NewAndRepeat(t *testing.T) {
	g, db, orgID := setupGuard(t, 1)
	ctx := context.Background()
	req := Request{OrganizationID: orgID, EntityID: 10, GroupID: "G1", Category: "payroll"}

	res, err := g.Assign(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAssigned, res.Outcome)
	require.NotNil(t, res.Assignment)
	assert.True(t, res.Assignment.Active)
	assert.Nil(t, res.Previous)

	res, err = g.Assign(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyAssigned, res.Outcome)

	assert.Equal(t, 1, countActive(t, db, 10, "payroll"))
}

func TestAssign_MoveBetweenGroups(t *testing.T) {
	g, db, orgID := setupGuard(t, 1)
	ctx := context.Background()

	first, err := g.Assign(ctx, Request{OrganizationID: orgID, EntityID: 10, GroupID: "G1", Category: "payroll"})
	require.NoError(t, err)

	moved, err := g.Assign(ctx, Request{OrganizationID: orgID, EntityID: 10, GroupID: "G2", Category: "payroll"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeMoved, moved.Outcome)
	require.NotNil(t, moved.Previous)
	assert.Equal(t, first.Assignment.ID, moved.Previous.ID)

	assert.Equal(t, 1, countActive(t, db, 10, "payroll"))

	active, err := g.Active(ctx, 10, "payroll")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "G2", active.GroupID)

	history, err := g.History(ctx, 10, "payroll")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "G1", history[0].GroupID)
	assert.False(t, history[0].Active)
	assert.NotNil(t, history[0].RemovedAt)
	assert.True(t, history[1].Active)
	assert.Nil(t, history[1].RemovedAt)
}

func TestAssign_CategoriesAreIndependent(t *testing.T) {
	g, db, orgID := setupGuard(t, 1)
	ctx := context.Background()

	_, err := g.Assign(ctx, Request{OrganizationID: orgID, EntityID: 10, GroupID: "G1", Category: "payroll"})
	require.NoError(t, err)
	_, err = g.Assign(ctx, Request{OrganizationID: orgID, EntityID: 10, GroupID: "night", Category: "shift"})
	require.NoError(t, err)

	assert.Equal(t, 1, countActive(t, db, 10, "payroll"))
	assert.Equal(t, 1, countActive(t, db, 10, "shift"))
}

func TestRemove(t *testing.T) {
	g, db, orgID := setupGuard(t, 1)
	ctx := context.Background()

	res, err := g.Remove(ctx, 10, "payroll")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotAssigned, res.Outcome)

	_, err = g.Assign(ctx, Request{OrganizationID: orgID, EntityID: 10, GroupID: "G1", Category: "payroll"})
	require.NoError(t, err)

	res, err = g.Remove(ctx, 10, "payroll")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRemoved, res.Outcome)
	require.NotNil(t, res.Previous)
	assert.NotNil(t, res.Previous.RemovedAt)
	assert.Equal(t, 0, countActive(t, db, 10, "payroll"))

	res, err = g.Remove(ctx, 10, "payroll")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotAssigned, res.Outcome)

	history, err := g.History(ctx, 10, "payroll")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

// After any interleaving of concurrent assigns and removes, at most one row
// per (entity, category) is active.
func TestAssign_ConcurrentAtMostOneActive(t *testing.T) {
	g, db, orgID := setupGuard(t, 1)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(i)))
			entity := int64(1 + rng.Intn(3))
			if rng.Intn(4) == 0 {
				_, _ = g.Remove(ctx, entity, "payroll")
				return
			}
			_, err := g.Assign(ctx, Request{
				OrganizationID: orgID,
				EntityID:       entity,
				GroupID:        fmt.Sprintf("G%d", rng.Intn(3)),
				Category:       "payroll",
			})
			if err != nil {
				assert.True(t, apperrors.IsConflict(err), "unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	for entity := int64(1); entity <= 3; entity++ {
		assert.LessOrEqual(t, countActive(t, db, entity, "payroll"), 1)
	}
}

func TestAssignSeat(t *testing.T) {
	g, db, orgID := setupGuard(t, 2)
	ctx := context.Background()

	res, err := g.AssignSeat(ctx, SeatRequest{OrganizationID: orgID, PrincipalID: 1, SeatType: "standard"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAssigned, res.Outcome)
	require.NotNil(t, res.Assignment.SeatSlot)
	assert.Equal(t, 1, *res.Assignment.SeatSlot)

	res, err = g.AssignSeat(ctx, SeatRequest{OrganizationID: orgID, PrincipalID: 1, SeatType: "standard"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyAssigned, res.Outcome)

	res, err = g.AssignSeat(ctx, SeatRequest{OrganizationID: orgID, PrincipalID: 2, SeatType: "premium"})
	require.NoError(t, err)
	assert.Equal(t, 2, *res.Assignment.SeatSlot)

	t.Run("limit reached", func(t *testing.T) {
		_, err := g.AssignSeat(ctx, SeatRequest{OrganizationID: orgID, PrincipalID: 3, SeatType: "standard"})
		require.Error(t, err)
		assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
		assert.Equal(t, ReasonSeatLimit, apperrors.ReasonOf(err))
	})

	t.Run("changing seat type keeps the count", func(t *testing.T) {
		res, err := g.AssignSeat(ctx, SeatRequest{OrganizationID: orgID, PrincipalID: 1, SeatType: "premium"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeMoved, res.Outcome)
		assert.Equal(t, 1, *res.Assignment.SeatSlot)
		assert.Equal(t, 1, countActive(t, db, 1, CategoryLicenseSeat))
	})

	t.Run("release frees a slot", func(t *testing.T) {
		rel, err := g.ReleaseSeat(ctx, orgID, 2)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRemoved, rel.Outcome)

		res, err := g.AssignSeat(ctx, SeatRequest{OrganizationID: orgID, PrincipalID: 3, SeatType: "standard"})
		require.NoError(t, err)
		assert.Equal(t, 2, *res.Assignment.SeatSlot)

		used, limit, err := g.SeatUsage(ctx, orgID)
		require.NoError(t, err)
		assert.Equal(t, 2, used)
		assert.Equal(t, 2, limit)
	})

	t.Run("release in another org is a no-op", func(t *testing.T) {
		rel, err := g.ReleaseSeat(ctx, orgID+100, 3)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotAssigned, rel.Outcome)
	})
}

func TestAssignSeat_Errors(t *testing.T) {
	g, _, orgID := setupGuard(t, 0)
	ctx := context.Background()

	_, err := g.AssignSeat(ctx, SeatRequest{OrganizationID: orgID, PrincipalID: 1})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = g.AssignSeat(ctx, SeatRequest{OrganizationID: 9999, PrincipalID: 1, SeatType: "standard"})
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	_, err = g.AssignSeat(ctx, SeatRequest{OrganizationID: orgID, PrincipalID: 1, SeatType: "standard"})
	assert.Equal(t, ReasonSeatLimit, apperrors.ReasonOf(err))

	_, _, err = g.SeatUsage(ctx, 9999)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestAssignSeat_OneSeatPerUserAcrossTenants(t *testing.T) {
	g, db, orgID := setupGuard(t, 5)
	ctx := context.Background()
	otherOrg, err := store.SeedOrganization(ctx, db.DB, "Globex", 5)
	require.NoError(t, err)

	_, err = g.AssignSeat(ctx, SeatRequest{OrganizationID: orgID, PrincipalID: 1, SeatType: "standard"})
	require.NoError(t, err)

	_, err = g.AssignSeat(ctx, SeatRequest{OrganizationID: otherOrg, PrincipalID: 1, SeatType: "standard"})
	assert.Equal(t, ReasonAlreadyAssigned, apperrors.ReasonOf(err))
}

// With seat_limit N, exactly N of many concurrent requests win and every
// other caller gets a conflict.
func TestAssignSeat_ConcurrentLimit(t *testing.T) {
	const limit = 3
	g, _, orgID := setupGuard(t, limit)
	obs := newCountingObserver()
	g.SetObserver(obs)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(principal int64) {
			defer wg.Done()
			_, err := g.AssignSeat(ctx, SeatRequest{OrganizationID: orgID, PrincipalID: principal, SeatType: "standard"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			assert.True(t, apperrors.IsConflict(err), "unexpected error: %v", err)
			conflicts++
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, limit, succeeded)
	assert.Equal(t, 10-limit, conflicts)

	used, _, err := g.SeatUsage(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, limit, used)
	assert.Equal(t, 10-limit, obs.conflicts[CategoryLicenseSeat+"/"+ReasonSeatLimit])
}
