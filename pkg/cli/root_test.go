package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/apperrors"
	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/catalog"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/orgs"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

type fakeArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (a *fakeArchive) Key(parts ...string) string {
	return "tg/" + strings.Join(parts, "/")
}

func (a *fakeArchive) PutObject(_ context.Context, key string, data []byte, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.objects == nil {
		a.objects = map[string][]byte{}
	}
	a.objects[key] = append([]byte(nil), data...)
	return nil
}

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newEnv(t *testing.T) (*Env, *bytes.Buffer) {
	t.Helper()
	db, err := store.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var out bytes.Buffer
	return &Env{
		Out:     &out,
		Logger:  observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{}),
		DB:      db,
		Catalog: catalog.Default(),
		Now:     func() time.Time { return fixedNow },
	}, &out
}

// auditLog returns the recorded entries oldest first
func auditLog(t *testing.T, env *Env) []*audit.Entry {
	t.Helper()
	sink, err := audit.NewDBSink(env.DB.DB)
	require.NoError(t, err)
	entries, err := sink.Query(context.Background(), audit.Filter{})
	require.NoError(t, err)
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	assert.Equal(t, "tenantguard-admin", root.Name)
	expected := []string{
		"migrate",
		"create-org",
		"create-company",
		"set-seat-limit",
		"platform-role",
		"sweep-expired-roles",
		"export-audit",
		"schedule",
	}
	for _, name := range expected {
		assert.Contains(t, root.Subcommands, name)
	}
	assert.Len(t, root.Subcommands, len(expected))
}

func TestCommandExecute_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"--HELP"}} {
		env, out := newEnv(t)
		require.NoError(t, NewRootCommand().Execute(context.Background(), env, args))
		assert.Contains(t, out.String(), "Usage: tenantguard-admin <command> [args]")
		assert.Contains(t, out.String(), "sweep-expired-roles")
	}
}

func TestCommandExecute_UnknownCommand(t *testing.T) {
	env, _ := newEnv(t)
	err := NewRootCommand().Execute(context.Background(), env, []string{"nonexistent"})
	assert.EqualError(t, err, "unknown command: nonexistent")
}

func TestCommandExecute_SubcommandWithArgs(t *testing.T) {
	root := NewRootCommand()
	var received []string
	root.Subcommands["test"] = &Command{
		Name: "test",
		Run: func(_ context.Context, _ *Env, args []string) error {
			received = args
			return nil
		},
	}

	env, _ := newEnv(t)
	require.NoError(t, root.Execute(context.Background(), env, []string{"test", "arg1", "-flag"}))
	assert.Equal(t, []string{"arg1", "-flag"}, received)
}

func TestTenancyCommands(t *testing.T) {
	ctx := context.Background()
	env, out := newEnv(t)
	root := NewRootCommand()

	require.NoError(t, root.Execute(ctx, env, []string{"migrate"}))
	assert.Contains(t, out.String(), "migrations applied")

	require.NoError(t, root.Execute(ctx, env, []string{"create-org", "--name", "Acme", "--seat-limit", "3"}))
	assert.Contains(t, out.String(), "organization 1 created: Acme (3 seats)")

	require.NoError(t, root.Execute(ctx, env, []string{"create-company", "--org", "1", "--name", "Acme Payroll"}))
	assert.Contains(t, out.String(), "company 1 created in organization 1")

	require.NoError(t, root.Execute(ctx, env, []string{"set-seat-limit", "--org", "1", "--limit", "7"}))
	org, err := env.members().GetOrganization(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, org.SeatLimit)

	err = root.Execute(ctx, env, []string{"set-seat-limit", "--org", "99", "--limit", "1"})
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	err = root.Execute(ctx, env, []string{"create-org"})
	assert.EqualError(t, err, "--name is required")

	err = root.Execute(ctx, env, []string{"create-company", "--org", "nope"})
	assert.Error(t, err)
}

func TestPlatformRoleCommand(t *testing.T) {
	ctx := context.Background()
	env, out := newEnv(t)
	members := env.members()
	p, err := members.SignIn(ctx, orgs.SignInRequest{Email: "root@acme.test"})
	require.NoError(t, err)
	org, err := members.CreateOrganization(ctx, "Acme", 1)
	require.NoError(t, err)

	root := NewRootCommand()
	require.NoError(t, root.Execute(ctx, env, []string{"platform-role", "--email", "ROOT@acme.test", "--role", catalog.RoleSuperAdmin}))
	assert.Contains(t, out.String(), "granted SUPER_ADMIN to root@acme.test")

	loaded, err := members.LoadPrincipal(ctx, p.ID, org.ID)
	require.NoError(t, err)
	assert.True(t, loaded.HasRole(catalog.RoleSuperAdmin))

	root = NewRootCommand()
	require.NoError(t, root.Execute(ctx, env, []string{"platform-role", "--email", "root@acme.test", "--role", catalog.RoleSuperAdmin}))
	assert.Contains(t, out.String(), "already holds SUPER_ADMIN")

	root = NewRootCommand()
	require.NoError(t, root.Execute(ctx, env, []string{"platform-role", "--email", "root@acme.test", "--role", catalog.RoleSuperAdmin, "--revoke"}))
	assert.Contains(t, out.String(), "revoked SUPER_ADMIN from root@acme.test")

	root = NewRootCommand()
	err = root.Execute(ctx, env, []string{"platform-role", "--email", "ghost@acme.test", "--role", catalog.RoleSuperAdmin})
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	root = NewRootCommand()
	err = root.Execute(ctx, env, []string{"platform-role", "--email", "root@acme.test", "--role", "WIZARD"})
	assert.Equal(t, apperrors.KindConfiguration, apperrors.KindOf(err))
}

func TestSweepCommand(t *testing.T) {
	ctx := context.Background()
	env, out := newEnv(t)
	members := env.members()
	org, err := members.CreateOrganization(ctx, "Acme", 1)
	require.NoError(t, err)
	p, err := members.SignIn(ctx, orgs.SignInRequest{Email: "temp@acme.test"})
	require.NoError(t, err)
	mID, _, err := members.AddOrgMembership(ctx, p.ID, org.ID)
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour).UTC()
	_, err = env.DB.ExecContext(ctx, `
		INSERT INTO role_assignments (membership_id, principal_id, organization_id, role_key, assigned_at, is_active, expires_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
	`, mID, p.ID, org.ID, catalog.RolePayrollClerk, past.Add(-time.Hour), past)
	require.NoError(t, err)

	require.NoError(t, NewRootCommand().Execute(ctx, env, []string{"sweep-expired-roles"}))
	assert.Contains(t, out.String(), "retired 1 expired role grants")

	entries := auditLog(t, env)
	require.Len(t, entries, 1)
	assert.Equal(t, "sweep_expired_roles", entries[0].Action)
	assert.Equal(t, float64(1), entries[0].Details["retired"])
}

func TestParseTimeFlag(t *testing.T) {
	got, err := parseTimeFlag("", fixedNow)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseTimeFlag("2026-01-02T03:04:05Z", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), *got)

	got, err = parseTimeFlag("24h", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(-24*time.Hour), *got)

	_, err = parseTimeFlag("yesterday", fixedNow)
	assert.EqualError(t, err, `"yesterday" is neither RFC3339 nor a duration`)
}

func TestOperatorCommands_Audited(t *testing.T) {
	ctx := context.Background()
	env, _ := newEnv(t)
	_, err := env.members().SignIn(ctx, orgs.SignInRequest{Email: "root@acme.test"})
	require.NoError(t, err)

	steps := []struct {
		args     []string
		action   string
		resource string
		result   audit.Result
		reason   string
	}{
		{[]string{"create-org", "--name", "Acme", "--seat-limit", "3"}, "create_org", "organizations", audit.ResultSuccess, ""},
		{[]string{"create-company", "--org", "1", "--name", "Acme Payroll"}, "create_company", "companies", audit.ResultSuccess, ""},
		{[]string{"set-seat-limit", "--org", "1", "--limit", "5"}, "set_seat_limit", "organizations", audit.ResultSuccess, ""},
		{[]string{"set-seat-limit", "--org", "99", "--limit", "5"}, "set_seat_limit", "organizations", audit.ResultFailure, "organization 99 not found"},
		{[]string{"platform-role", "--email", "root@acme.test", "--role", catalog.RoleSuperAdmin}, "grant_platform_role", "platform_roles", audit.ResultSuccess, ""},
		{[]string{"platform-role", "--email", "root@acme.test", "--role", "WIZARD"}, "grant_platform_role", "platform_roles", audit.ResultFailure, ""},
		{[]string{"platform-role", "--email", "root@acme.test", "--role", catalog.RoleSuperAdmin, "--revoke"}, "revoke_platform_role", "platform_roles", audit.ResultSuccess, ""},
		{[]string{"create-org"}, "create_org", "organizations", audit.ResultFailure, "--name is required"},
	}
	for i, step := range steps {
		_ = NewRootCommand().Execute(ctx, env, step.args)

		entries := auditLog(t, env)
		require.Len(t, entries, i+1, "after %v", step.args)
		got := entries[i]
		assert.Equal(t, step.action, got.Action)
		assert.Equal(t, step.resource, got.Resource)
		assert.Equal(t, step.result, got.Result)
		assert.Nil(t, got.ActorID)
		assert.Equal(t, "operator", got.Details["actor"])
		if step.reason != "" {
			assert.Equal(t, step.reason, got.Reason)
		}
	}

	grant := auditLog(t, env)[4]
	assert.Equal(t, catalog.RoleSuperAdmin, grant.ResourceID)
	assert.Equal(t, true, grant.Details["changed"])
	assert.Equal(t, "root@acme.test", grant.Details["email"])

	org := auditLog(t, env)[0]
	require.NotNil(t, org.OrganizationID)
	assert.Equal(t, int64(1), *org.OrganizationID)
	assert.Equal(t, "1", org.ResourceID)
}

func TestSweepCommand_AuditsOnlyChanges(t *testing.T) {
	ctx := context.Background()
	env, _ := newEnv(t)

	require.NoError(t, NewRootCommand().Execute(ctx, env, []string{"sweep-expired-roles"}))
	assert.Empty(t, auditLog(t, env))
}
