package rbac

import (
	"testing"

	"github.com/platinummonkey/tenantguard/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataScope(t *testing.T) {
	r := newTestResolver()

	assert.Equal(t, catalog.ScopeNone, r.DataScope(nil, catalog.ResourceUsers))
	assert.Equal(t, catalog.ScopeNone, r.DataScope(principalWith(t, r, catalog.RoleOrgAdmin), "bogus"))
	assert.Equal(t, catalog.ScopeOwn, r.DataScope(principalWith(t, r, catalog.RoleEmployee), catalog.ResourcePayroll))

	t.Run("broadest role wins", func(t *testing.T) {
		p := principalWith(t, r, catalog.RoleEmployee, catalog.RoleHRManager)
		assert.Equal(t, catalog.ScopeOrganization, r.DataScope(p, catalog.ResourceEmployees))
		assert.Equal(t, catalog.ScopeOwn, r.DataScope(p, catalog.ResourcePayroll))
	})
}

func TestFilterFor(t *testing.T) {
	r := newTestResolver()
	dept := int64(5)

	t.Run("organization", func(t *testing.T) {
		f := r.FilterFor(principalWith(t, r, catalog.RoleOrgViewer), catalog.ResourceUsers)
		assert.Equal(t, catalog.ScopeOrganization, f.Scope)
		require.NotNil(t, f.OrganizationID)
		assert.Equal(t, int64(1), *f.OrganizationID)
		assert.Nil(t, f.OwnerID)
	})

	t.Run("own", func(t *testing.T) {
		f := r.FilterFor(principalWith(t, r, catalog.RoleEmployee), catalog.ResourceUsers)
		assert.Equal(t, catalog.ScopeOwn, f.Scope)
		require.NotNil(t, f.OwnerID)
		assert.Equal(t, int64(7), *f.OwnerID)
	})

	t.Run("department", func(t *testing.T) {
		p := principalWith(t, r, catalog.RoleDepartmentManager)
		p.DepartmentID = &dept
		f := r.FilterFor(p, catalog.ResourceEmployees)
		assert.Equal(t, catalog.ScopeDepartment, f.Scope)
		require.NotNil(t, f.DepartmentID)
		assert.Equal(t, dept, *f.DepartmentID)
	})

	t.Run("department without department narrows to own", func(t *testing.T) {
		f := r.FilterFor(principalWith(t, r, catalog.RoleDepartmentManager), catalog.ResourceEmployees)
		assert.Equal(t, catalog.ScopeOwn, f.Scope)
	})

	t.Run("all", func(t *testing.T) {
		f := r.FilterFor(principalWith(t, r, catalog.RoleSuperAdmin), catalog.ResourceUsers)
		assert.Equal(t, catalog.ScopeAll, f.Scope)
		assert.Nil(t, f.OrganizationID)
		assert.False(t, f.DenyAll)
	})

	t.Run("none", func(t *testing.T) {
		f := r.FilterFor(principalWith(t, r, catalog.RoleEmployee), catalog.ResourceSystem)
		assert.True(t, f.DenyAll)
		assert.False(t, f.Allows(AccessContext{}))
	})
}

func TestFilterAllows(t *testing.T) {
	org, otherOrg, owner, other := int64(1), int64(2), int64(7), int64(8)
	f := Filter{Scope: catalog.ScopeOwn, OrganizationID: &org, OwnerID: &owner}

	assert.True(t, f.Allows(AccessContext{}))
	assert.True(t, f.Allows(AccessContext{OrganizationID: &org, OwnerID: &owner}))
	assert.False(t, f.Allows(AccessContext{OwnerID: &other}))
	assert.False(t, f.Allows(AccessContext{OrganizationID: &otherOrg}))
}
