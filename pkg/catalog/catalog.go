// Package catalog holds the role catalog: the loaded, read-only table of roles
// with their privilege levels, categories and capability matrices.
//
// A Catalog is built once per process and never mutated afterwards, so it is
// safe for concurrent reads without synchronization.
package catalog

import (
	"fmt"
	"sort"

	"github.com/platinummonkey/tenantguard/pkg/apperrors"
)

// Catalog is an immutable role lookup table
type Catalog struct {
	roles   map[string]Role
	order   map[string]int
	keys    []string
	highest Role
}

// New validates roles and builds a catalog. Slice order defines the
// tie-break order used by Primary.
func New(roles []Role) (*Catalog, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("catalog must define at least one role")
	}

	c := &Catalog{
		roles: make(map[string]Role, len(roles)),
		order: make(map[string]int, len(roles)),
		keys:  make([]string, 0, len(roles)),
	}

	for i, role := range roles {
		if err := validateRole(role); err != nil {
			return nil, err
		}
		if _, dup := c.roles[role.Key]; dup {
			return nil, fmt.Errorf("duplicate role key %q", role.Key)
		}
		c.roles[role.Key] = copyRole(role)
		c.order[role.Key] = i
		c.keys = append(c.keys, role.Key)
	}

	top := 0
	for _, role := range c.roles {
		if role.Level > top {
			top = role.Level
		}
	}
	var atTop []string
	for _, key := range c.keys {
		if c.roles[key].Level == top {
			atTop = append(atTop, key)
		}
	}
	if len(atTop) != 1 {
		return nil, fmt.Errorf("exactly one role must hold the highest level %d, found %v", top, atTop)
	}
	c.highest = c.roles[atTop[0]]

	return c, nil
}

func validateRole(role Role) error {
	if role.Key == "" {
		return fmt.Errorf("role key is required")
	}
	if role.Level <= 0 {
		return fmt.Errorf("role %s: level must be positive", role.Key)
	}
	if !role.Category.IsValid() {
		return fmt.Errorf("role %s: invalid category %q", role.Key, role.Category)
	}
	for res, capability := range role.Capabilities {
		if !res.IsValid() {
			return fmt.Errorf("role %s: unknown resource %q", role.Key, res)
		}
		if !capability.Scope.IsValid() {
			return fmt.Errorf("role %s: invalid scope %q for %s", role.Key, capability.Scope, res)
		}
		for _, p := range capability.Permissions {
			if !p.IsKnown() {
				return fmt.Errorf("role %s: unknown permission %q", role.Key, p)
			}
		}
	}
	return nil
}

// copyRole detaches the stored role from caller-owned maps and slices
func copyRole(role Role) Role {
	caps := make(map[Resource]Capability, len(role.Capabilities))
	for res, c := range role.Capabilities {
		perms := make([]Permission, len(c.Permissions))
		copy(perms, c.Permissions)
		caps[res] = Capability{Scope: c.Scope, Permissions: perms}
	}
	role.Capabilities = caps
	return role
}

// Resolve looks up a role by key. An unknown key is a configuration error.
func (c *Catalog) Resolve(key string) (Role, error) {
	role, ok := c.roles[key]
	if !ok {
		return Role{}, apperrors.Configuration("unknown role key %q", key)
	}
	return role, nil
}

// Has reports whether key names a catalog role
func (c *Catalog) Has(key string) bool {
	_, ok := c.roles[key]
	return ok
}

// LevelOf returns the privilege level of a role
func (c *Catalog) LevelOf(role Role) int {
	return role.Level
}

// Highest returns the single maximum-level role
func (c *Catalog) Highest() Role {
	return c.highest
}

// Roles returns every role in definition order
func (c *Catalog) Roles() []Role {
	roles := make([]Role, 0, len(c.keys))
	for _, key := range c.keys {
		roles = append(roles, c.roles[key])
	}
	return roles
}

// ByCategory returns the roles tagged with a category, in definition order
func (c *Catalog) ByCategory(category Category) []Role {
	var roles []Role
	for _, key := range c.keys {
		if c.roles[key].Category == category {
			roles = append(roles, c.roles[key])
		}
	}
	return roles
}

// Primary picks the legacy single role out of a set of held roles: the
// highest level wins, ties go to the role defined first in the catalog.
// Roles not in the catalog sort last. Returns false for an empty set.
func (c *Catalog) Primary(held []Role) (Role, bool) {
	if len(held) == 0 {
		return Role{}, false
	}
	sorted := make([]Role, len(held))
	copy(sorted, held)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Level != sorted[j].Level {
			return sorted[i].Level > sorted[j].Level
		}
		return c.orderOf(sorted[i].Key) < c.orderOf(sorted[j].Key)
	})
	return sorted[0], true
}

func (c *Catalog) orderOf(key string) int {
	if idx, ok := c.order[key]; ok {
		return idx
	}
	return len(c.keys)
}
