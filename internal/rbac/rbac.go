// Package rbac computes employee entitlements: role-granted permissions
// layered with direct grants and revocations, revocation winning.
package rbac

import (
	"strings"
	"time"
)

// Permission is an atomic capability, named by the dotted
// "module.action" convention (e.g. "invoices.create").
type Permission struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	Module      string    `json:"module"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// ModuleOf derives the module tag from a permission name's prefix.
func ModuleOf(name string) string {
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}

// GroupByModule buckets permissions under their module tag, preserving
// the input order within each bucket.
func GroupByModule(perms []Permission) map[string][]Permission {
	grouped := make(map[string][]Permission)
	for _, p := range perms {
		module := p.Module
		if module == "" {
			module = ModuleOf(p.Name)
		}
		grouped[module] = append(grouped[module], p)
	}
	return grouped
}
