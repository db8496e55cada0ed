//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a disposable Postgres container and returns a
// migrated connection
func setupPostgres(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	defer provider.Close()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("tenantguard_test"),
		postgres.WithUsername("tenantguard"),
		postgres.WithPassword("tenantguard_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(ctx, Config{Driver: string(DialectPostgres), URL: connStr, MaxOpenConns: 10, Timeout: 10 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(ctx, db))
	return db
}

func TestPostgres_MigrateAndUniqueIndexes(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, db), "second migrate must be a no-op")

	orgID, err := SeedOrganization(ctx, db.DB, "Acme", 1)
	require.NoError(t, err)

	insert := `
		INSERT INTO group_assignments (organization_id, entity_id, group_id, group_category, seat_slot, active, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = db.ExecContext(ctx, insert, orgID, 1, "standard", "license-seat-pool", 1, true, time.Now().UTC())
	require.NoError(t, err)

	t.Run("same entity and category", func(t *testing.T) {
		_, err := db.ExecContext(ctx, insert, orgID, 1, "premium", "license-seat-pool", 2, true, time.Now().UTC())
		require.Error(t, err)
		assert.True(t, IsUniqueViolation(err))
	})

	t.Run("same seat slot", func(t *testing.T) {
		_, err := db.ExecContext(ctx, insert, orgID, 2, "standard", "license-seat-pool", 1, true, time.Now().UTC())
		require.Error(t, err)
		assert.True(t, IsUniqueViolation(err))
	})

	t.Run("history rows are free", func(t *testing.T) {
		_, err := db.ExecContext(ctx, insert, orgID, 1, "standard", "license-seat-pool", 1, false, time.Now().UTC())
		require.NoError(t, err)
	})
}
