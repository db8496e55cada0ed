package catalog

// Resource is a guarded resource collection
type Resource string

const (
	ResourceEmployees Resource = "employees"
	ResourcePayroll   Resource = "payroll"
	ResourceReports   Resource = "reports"
	ResourceUsers     Resource = "users"
	ResourceSystem    Resource = "system"
)

// Resources lists every resource a capability matrix may address
func Resources() []Resource {
	return []Resource{ResourceEmployees, ResourcePayroll, ResourceReports, ResourceUsers, ResourceSystem}
}

// IsValid reports whether r is a known resource
func (r Resource) IsValid() bool {
	switch r {
	case ResourceEmployees, ResourcePayroll, ResourceReports, ResourceUsers, ResourceSystem:
		return true
	}
	return false
}

// Scope describes how much of a resource collection a role may see
type Scope string

const (
	ScopeAll          Scope = "all"
	ScopeOrganization Scope = "organization"
	ScopeDepartment   Scope = "department"
	ScopeOwn          Scope = "own"
	ScopeNone         Scope = "none"
)

// Rank orders scopes from none (0) to all (4). Unknown scopes rank as none.
func (s Scope) Rank() int {
	switch s {
	case ScopeAll:
		return 4
	case ScopeOrganization:
		return 3
	case ScopeDepartment:
		return 2
	case ScopeOwn:
		return 1
	default:
		return 0
	}
}

// IsValid reports whether s is a known scope
func (s Scope) IsValid() bool {
	switch s {
	case ScopeAll, ScopeOrganization, ScopeDepartment, ScopeOwn, ScopeNone:
		return true
	}
	return false
}

// Broader returns the wider of two scopes
func Broader(a, b Scope) Scope {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Permission is a fine-grained permission token
type Permission string

const (
	PermViewEmployees   Permission = "view_employees"
	PermEditEmployees   Permission = "edit_employees"
	PermViewPayroll     Permission = "view_payroll"
	PermEditPayroll     Permission = "edit_payroll"
	PermViewReports     Permission = "view_reports"
	PermEditReports     Permission = "edit_reports"
	PermViewUsers       Permission = "view_users"
	PermEditUsers       Permission = "edit_users"
	PermViewSystem      Permission = "view_system"
	PermEditSystem      Permission = "edit_system"
	PermApprovePayroll  Permission = "approve_payroll"
	PermApproveExpenses Permission = "approve_expenses"
	PermApproveLeave    Permission = "approve_leave"
	PermApproveOvertime Permission = "approve_overtime"
	PermExportData      Permission = "export_data"
	PermBulkOperations  Permission = "bulk_operations"
	PermManageUsers     Permission = "manage_users"
)

var knownPermissions = map[Permission]struct{}{
	PermViewEmployees: {}, PermEditEmployees: {},
	PermViewPayroll: {}, PermEditPayroll: {},
	PermViewReports: {}, PermEditReports: {},
	PermViewUsers: {}, PermEditUsers: {},
	PermViewSystem: {}, PermEditSystem: {},
	PermApprovePayroll: {}, PermApproveExpenses: {}, PermApproveLeave: {}, PermApproveOvertime: {},
	PermExportData: {}, PermBulkOperations: {}, PermManageUsers: {},
}

// IsKnown reports whether p is a recognized permission token
func (p Permission) IsKnown() bool {
	_, ok := knownPermissions[p]
	return ok
}

// Category is the display bucket a role belongs to. It is set explicitly on
// every role definition.
type Category string

const (
	CategoryPlatform       Category = "platform"
	CategoryAdministration Category = "administration"
	CategoryPayroll        Category = "payroll"
	CategoryHumanResources Category = "human_resources"
	CategoryManagement     Category = "management"
	CategorySelfService    Category = "self_service"
	CategoryReadOnly       Category = "read_only"
)

// IsValid reports whether c is a known category
func (c Category) IsValid() bool {
	switch c {
	case CategoryPlatform, CategoryAdministration, CategoryPayroll, CategoryHumanResources,
		CategoryManagement, CategorySelfService, CategoryReadOnly:
		return true
	}
	return false
}

// Capability is one row of a role's capability matrix
type Capability struct {
	Scope       Scope        `json:"scope" yaml:"scope"`
	Permissions []Permission `json:"permissions" yaml:"permissions"`
}

// Role is immutable reference data describing a privilege level
type Role struct {
	Key          string                  `json:"key" yaml:"key"`
	Name         string                  `json:"name" yaml:"name"`
	Level        int                     `json:"level" yaml:"level"`
	Category     Category                `json:"category" yaml:"category"`
	Capabilities map[Resource]Capability `json:"capabilities" yaml:"capabilities"`
}

// ScopeFor returns the role's scope on a resource, or none
func (r Role) ScopeFor(resource Resource) Scope {
	if c, ok := r.Capabilities[resource]; ok {
		return c.Scope
	}
	return ScopeNone
}

// Has reports whether any capability row grants the permission
func (r Role) Has(p Permission) bool {
	for _, c := range r.Capabilities {
		for _, granted := range c.Permissions {
			if granted == p {
				return true
			}
		}
	}
	return false
}

// Permissions returns the union of permission tokens across the matrix
func (r Role) Permissions() []Permission {
	seen := make(map[Permission]struct{})
	var perms []Permission
	for _, res := range Resources() {
		for _, p := range r.Capabilities[res].Permissions {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			perms = append(perms, p)
		}
	}
	return perms
}
