package audit

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/platinummonkey/tenantguard/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDBSink_RequiresDB(t *testing.T) {
	_, err := NewDBSink(nil)
	assert.Error(t, err)
}

func TestDBSink_Write(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sink, err := NewDBSink(db)
	require.NoError(t, err)

	actor := int64(4)
	now := time.Now().UTC()
	mock.ExpectQuery(`INSERT INTO audit_log`).
		WithArgs(&actor, nil, "set_status", "membership", "12", `{"status":"disabled"}`, "success", "", "req-9", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(31))

	entry := &Entry{
		ActorID:    &actor,
		Action:     "set_status",
		Resource:   "membership",
		ResourceID: "12",
		Details:    map[string]interface{}{"status": "disabled"},
		Result:     ResultSuccess,
		RequestID:  "req-9",
		CreatedAt:  now,
	}
	require.NoError(t, sink.Write(context.Background(), entry))
	assert.Equal(t, int64(31), entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBSink_WriteError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sink, _ := NewDBSink(db)
	mock.ExpectQuery(`INSERT INTO audit_log`).WillReturnError(assert.AnError)

	err = sink.Write(context.Background(), &Entry{Action: "list", Result: ResultSuccess})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestDBSink_QueryShape(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sink, _ := NewDBSink(db)
	org := int64(2)
	mock.ExpectQuery(`FROM audit_log WHERE organization_id = \$1 AND result = \$2 ORDER BY id DESC LIMIT \$3 OFFSET \$4`).
		WithArgs(org, "failure", 10, 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "actor_id", "organization_id", "action", "resource", "resource_id", "details", "result", "reason", "request_id", "created_at"}).
			AddRow(5, nil, org, "set_role", "membership", "9", []byte(`{"role_key":"ORG_ADMIN"}`), "failure", "insufficient permissions", "", time.Now()))

	entries, err := sink.Query(context.Background(), Filter{OrganizationID: &org, Result: ResultFailure, Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].ActorID)
	assert.Equal(t, "ORG_ADMIN", entries[0].Details["role_key"])
	assert.Equal(t, ResultFailure, entries[0].Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBSink_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := store.OpenMemory(ctx)
	require.NoError(t, err)
	defer db.Close()

	sink, err := NewDBSink(db.DB)
	require.NoError(t, err)
	rec := NewRecorder(sink, nil)

	actor, org := int64(1), int64(10)
	start := time.Now().UTC().Add(-time.Minute)
	rec.Record(ctx, Entry{ActorID: &actor, OrganizationID: &org, Action: "add_user", Resource: "membership", Result: ResultSuccess})
	rec.Record(ctx, Entry{ActorID: &actor, OrganizationID: &org, Action: "set_role", Resource: "membership", Result: ResultFailure, Reason: "insufficient permissions"})
	rec.Record(ctx, Entry{Action: "set_status", Resource: "membership", Result: ResultFailure, Reason: "missing bearer token"})

	all, err := sink.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "set_status", all[0].Action)
	assert.Nil(t, all[0].ActorID)

	failures, err := sink.Query(ctx, Filter{ActorID: &actor, Result: ResultFailure, StartTime: &start})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "insufficient permissions", failures[0].Reason)

	byAction, err := sink.Query(ctx, Filter{Action: "add_user", Limit: 1})
	require.NoError(t, err)
	require.Len(t, byAction, 1)
	require.NotNil(t, byAction[0].OrganizationID)
	assert.Equal(t, org, *byAction[0].OrganizationID)
}

func TestDBSink_BeforeID(t *testing.T) {
	ctx := context.Background()
	db, err := store.OpenMemory(ctx)
	require.NoError(t, err)
	defer db.Close()

	sink, err := NewDBSink(db.DB)
	require.NoError(t, err)
	for _, action := range []string{"add_user", "set_role", "set_status"} {
		require.NoError(t, sink.Write(ctx, &Entry{Action: action, Resource: "users", Result: ResultSuccess, CreatedAt: time.Now().UTC()}))
	}

	all, err := sink.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	older, err := sink.Query(ctx, Filter{BeforeID: all[0].ID})
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, "set_role", older[0].Action)

	var buf bytes.Buffer
	n, err := Export(ctx, sink, Filter{Action: "add_user"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), `"action":"add_user"`)
}
