package rbac

import (
	"context"
	"sort"
)

// Override is a direct employee-permission association. Granted=false is
// an explicit revocation; absence of an Override means "defer to roles".
type Override struct {
	Permission Permission
	Granted    bool
}

// Store is the persistence interface behind the resolver. Every call
// reads current state — entitlements are never cached across requests,
// so permission changes take effect on the very next request.
type Store interface {
	// DirectOverride returns the employee's direct grant/revocation for
	// one permission name, if any.
	DirectOverride(ctx context.Context, employeeID int64, permission string) (granted, found bool, err error)
	// RoleGrants reports whether any of the employee's roles carries the
	// named permission.
	RoleGrants(ctx context.Context, employeeID int64, permission string) (bool, error)
	// RolePermissions returns the union of permissions granted by the
	// employee's roles.
	RolePermissions(ctx context.Context, employeeID int64) ([]Permission, error)
	// DirectOverrides returns all of the employee's direct associations.
	DirectOverrides(ctx context.Context, employeeID int64) ([]Override, error)
	// RoleNames returns the names of the employee's assigned roles.
	RoleNames(ctx context.Context, employeeID int64) ([]string, error)
	// ListPermissions returns the whole permission catalog ordered by name.
	ListPermissions(ctx context.Context) ([]Permission, error)
}

// Resolver answers permission questions for employee principals.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Can reports whether the employee holds the named permission.
// The check order is load-bearing: an explicit revocation wins
// unconditionally, so no role can reinstate a revoked permission.
func (r *Resolver) Can(ctx context.Context, employeeID int64, permission string) (bool, error) {
	granted, found, err := r.store.DirectOverride(ctx, employeeID, permission)
	if err != nil {
		return false, err
	}
	if found {
		return granted, nil
	}
	return r.store.RoleGrants(ctx, employeeID, permission)
}

// AllPermissions computes the effective permission set: role grants plus
// direct grants, minus direct revocations. An employee with no roles and
// no grants has an empty set, not an error.
func (r *Resolver) AllPermissions(ctx context.Context, employeeID int64) ([]Permission, error) {
	rolePerms, err := r.store.RolePermissions(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	overrides, err := r.store.DirectOverrides(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	revoked := make(map[string]struct{})
	byName := make(map[string]Permission, len(rolePerms))
	for _, p := range rolePerms {
		byName[p.Name] = p
	}
	for _, o := range overrides {
		if o.Granted {
			byName[o.Permission.Name] = o.Permission
		} else {
			revoked[o.Permission.Name] = struct{}{}
		}
	}

	effective := make([]Permission, 0, len(byName))
	for name, p := range byName {
		if _, isRevoked := revoked[name]; isRevoked {
			continue
		}
		effective = append(effective, p)
	}
	sort.Slice(effective, func(i, j int) bool { return effective[i].Name < effective[j].Name })
	return effective, nil
}

// AllPermissionNames returns just the names of the effective set.
func (r *Resolver) AllPermissionNames(ctx context.Context, employeeID int64) ([]string, error) {
	perms, err := r.AllPermissions(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.Name
	}
	return names, nil
}

// RoleNames returns the employee's assigned role names.
func (r *Resolver) RoleNames(ctx context.Context, employeeID int64) ([]string, error) {
	return r.store.RoleNames(ctx, employeeID)
}

// CanAny reports whether the employee holds at least one of the named
// permissions.
func (r *Resolver) CanAny(ctx context.Context, employeeID int64, permissions ...string) (bool, error) {
	for _, p := range permissions {
		ok, err := r.Can(ctx, employeeID, p)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
