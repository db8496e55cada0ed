package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql", URL: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, db))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, len(GetMigrations()), count)
}

func TestRender(t *testing.T) {
	in := "id {{ID}}, at {{TS}}, d {{JSON}}"
	assert.Equal(t, "id BIGSERIAL PRIMARY KEY, at TIMESTAMPTZ, d JSONB", Render(DialectPostgres, in))
	assert.Equal(t, "id INTEGER PRIMARY KEY AUTOINCREMENT, at TIMESTAMP, d TEXT", Render(DialectSQLite, in))
}

func TestIsUniqueViolation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	orgID, err := SeedOrganization(ctx, db.DB, "Acme", 2)
	require.NoError(t, err)

	insert := func(entity int64, group string, active bool) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO group_assignments (organization_id, entity_id, group_id, group_category, active, assigned_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			orgID, entity, group, "payroll", active, time.Now().UTC())
		return err
	}

	t.Run("partial index rejects a second active row", func(t *testing.T) {
		require.NoError(t, insert(1, "G1", true))
		err := insert(1, "G2", true)
		require.Error(t, err)
		assert.True(t, IsUniqueViolation(err))
	})

	t.Run("inactive history rows are unconstrained", func(t *testing.T) {
		require.NoError(t, insert(2, "G1", false))
		require.NoError(t, insert(2, "G2", false))
		require.NoError(t, insert(2, "G3", true))
	})

	t.Run("other errors", func(t *testing.T) {
		assert.False(t, IsUniqueViolation(nil))
		assert.False(t, IsUniqueViolation(errors.New("boom")))
		assert.False(t, IsUniqueViolation(sql.ErrNoRows))
	})

	t.Run("postgres code", func(t *testing.T) {
		assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
		assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	})
}

func TestWithTx(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	t.Run("rolls back on error", func(t *testing.T) {
		err := WithTx(ctx, db.DB, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO organizations (name, seat_limit, created_at) VALUES ($1, $2, $3)`,
				"Ghost", 0, time.Now().UTC())
			require.NoError(t, err)
			return errors.New("abort")
		})
		require.EqualError(t, err, "abort")

		var count int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations WHERE name = $1`, "Ghost").Scan(&count))
		assert.Equal(t, 0, count)
	})

	t.Run("commits on success", func(t *testing.T) {
		err := WithTx(ctx, db.DB, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO organizations (name, seat_limit, created_at) VALUES ($1, $2, $3)`,
				"Real", 0, time.Now().UTC())
			return err
		})
		require.NoError(t, err)

		var count int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations WHERE name = $1`, "Real").Scan(&count))
		assert.Equal(t, 1, count)
	})
}

func TestSeedCompany(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	orgID, err := SeedOrganization(ctx, db.DB, "Acme", 5)
	require.NoError(t, err)
	companyID, err := SeedCompany(ctx, db.DB, orgID, "Acme East")
	require.NoError(t, err)
	assert.Greater(t, companyID, int64(0))
}
