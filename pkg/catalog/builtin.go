package catalog

// Built-in role keys
const (
	RoleSuperAdmin        = "SUPER_ADMIN"
	RoleOrgAdmin          = "ORG_ADMIN"
	RolePayrollAdmin      = "PAYROLL_ADMIN"
	RoleHRManager         = "HR_MANAGER"
	RoleDepartmentManager = "DEPARTMENT_MANAGER"
	RolePayrollClerk      = "PAYROLL_CLERK"
	RoleEmployee          = "EMPLOYEE"
	RoleOrgViewer         = "ORG_VIEWER"
)

func capability(scope Scope, perms ...Permission) Capability {
	return Capability{Scope: scope, Permissions: perms}
}

// BuiltInRoles returns the default role definitions, highest first
func BuiltInRoles() []Role {
	return []Role{
		{
			Key:      RoleSuperAdmin,
			Name:     "Super Administrator",
			Level:    100,
			Category: CategoryPlatform,
			Capabilities: map[Resource]Capability{
				ResourceEmployees: capability(ScopeAll, PermViewEmployees, PermEditEmployees, PermApproveExpenses, PermApproveLeave, PermApproveOvertime, PermBulkOperations),
				ResourcePayroll:   capability(ScopeAll, PermViewPayroll, PermEditPayroll, PermApprovePayroll),
				ResourceReports:   capability(ScopeAll, PermViewReports, PermEditReports, PermExportData),
				ResourceUsers:     capability(ScopeAll, PermViewUsers, PermEditUsers, PermManageUsers),
				ResourceSystem:    capability(ScopeAll, PermViewSystem, PermEditSystem),
			},
		},
		{
			Key:      RoleOrgAdmin,
			Name:     "Organization Administrator",
			Level:    80,
			Category: CategoryAdministration,
			Capabilities: map[Resource]Capability{
				ResourceEmployees: capability(ScopeOrganization, PermViewEmployees, PermEditEmployees, PermApproveExpenses, PermApproveLeave, PermApproveOvertime, PermBulkOperations),
				ResourcePayroll:   capability(ScopeOrganization, PermViewPayroll, PermEditPayroll, PermApprovePayroll),
				ResourceReports:   capability(ScopeOrganization, PermViewReports, PermEditReports, PermExportData),
				ResourceUsers:     capability(ScopeOrganization, PermViewUsers, PermEditUsers, PermManageUsers),
				ResourceSystem:    capability(ScopeOrganization, PermViewSystem),
			},
		},
		{
			Key:      RolePayrollAdmin,
			Name:     "Payroll Administrator",
			Level:    60,
			Category: CategoryPayroll,
			Capabilities: map[Resource]Capability{
				ResourceEmployees: capability(ScopeOrganization, PermViewEmployees, PermEditEmployees),
				ResourcePayroll:   capability(ScopeOrganization, PermViewPayroll, PermEditPayroll, PermApprovePayroll, PermBulkOperations),
				ResourceReports:   capability(ScopeOrganization, PermViewReports, PermExportData),
				ResourceUsers:     capability(ScopeOwn, PermViewUsers),
			},
		},
		{
			Key:      RoleHRManager,
			Name:     "HR Manager",
			Level:    50,
			Category: CategoryHumanResources,
			Capabilities: map[Resource]Capability{
				ResourceEmployees: capability(ScopeOrganization, PermViewEmployees, PermEditEmployees, PermApproveExpenses, PermApproveLeave, PermApproveOvertime),
				ResourcePayroll:   capability(ScopeOwn, PermViewPayroll),
				ResourceReports:   capability(ScopeOrganization, PermViewReports, PermExportData),
				ResourceUsers:     capability(ScopeOrganization, PermViewUsers),
			},
		},
		{
			Key:      RoleDepartmentManager,
			Name:     "Department Manager",
			Level:    40,
			Category: CategoryManagement,
			Capabilities: map[Resource]Capability{
				ResourceEmployees: capability(ScopeDepartment, PermViewEmployees, PermApproveExpenses, PermApproveLeave, PermApproveOvertime),
				ResourcePayroll:   capability(ScopeOwn, PermViewPayroll),
				ResourceReports:   capability(ScopeDepartment, PermViewReports),
				ResourceUsers:     capability(ScopeDepartment, PermViewUsers),
			},
		},
		{
			Key:      RolePayrollClerk,
			Name:     "Payroll Clerk",
			Level:    30,
			Category: CategoryPayroll,
			Capabilities: map[Resource]Capability{
				ResourceEmployees: capability(ScopeOrganization, PermViewEmployees),
				ResourcePayroll:   capability(ScopeOrganization, PermViewPayroll, PermEditPayroll),
				ResourceReports:   capability(ScopeOwn, PermViewReports),
				ResourceUsers:     capability(ScopeOwn, PermViewUsers),
			},
		},
		{
			Key:      RoleEmployee,
			Name:     "Employee",
			Level:    20,
			Category: CategorySelfService,
			Capabilities: map[Resource]Capability{
				ResourceEmployees: capability(ScopeOwn, PermViewEmployees),
				ResourcePayroll:   capability(ScopeOwn, PermViewPayroll),
				ResourceUsers:     capability(ScopeOwn, PermViewUsers),
			},
		},
		{
			Key:      RoleOrgViewer,
			Name:     "Organization Viewer",
			Level:    10,
			Category: CategoryReadOnly,
			Capabilities: map[Resource]Capability{
				ResourceEmployees: capability(ScopeOrganization, PermViewEmployees),
				ResourcePayroll:   capability(ScopeOrganization, PermViewPayroll),
				ResourceReports:   capability(ScopeOrganization, PermViewReports),
				ResourceUsers:     capability(ScopeOrganization, PermViewUsers),
			},
		},
	}
}

// Default returns a catalog of the built-in roles
func Default() *Catalog {
	c, err := New(BuiltInRoles())
	if err != nil {
		panic("invalid built-in role catalog: " + err.Error())
	}
	return c
}
