package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore reads role grants and direct overrides from Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) DirectOverride(ctx context.Context, employeeID int64, permission string) (bool, bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ep.granted
		 FROM employee_permission ep
		 JOIN permissions p ON p.id = ep.permission_id
		 WHERE ep.employee_id = $1 AND p.name = $2`,
		employeeID, permission,
	)
	if err != nil {
		return false, false, fmt.Errorf("loading direct override: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return false, false, rows.Err()
	}
	var granted bool
	if err := rows.Scan(&granted); err != nil {
		return false, false, fmt.Errorf("scanning direct override: %w", err)
	}
	return granted, true, rows.Err()
}

func (s *PGStore) RoleGrants(ctx context.Context, employeeID int64, permission string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1
		   FROM employee_role er
		   JOIN permission_role pr ON pr.role_id = er.role_id
		   JOIN permissions p ON p.id = pr.permission_id
		   WHERE er.employee_id = $1 AND p.name = $2
		 )`,
		employeeID, permission,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking role grants: %w", err)
	}
	return exists, nil
}

func (s *PGStore) RolePermissions(ctx context.Context, employeeID int64) ([]Permission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT p.id, p.name, p.display_name, COALESCE(p.description, ''), p.module
		 FROM employee_role er
		 JOIN permission_role pr ON pr.role_id = er.role_id
		 JOIN permissions p ON p.id = pr.permission_id
		 WHERE er.employee_id = $1
		 ORDER BY p.name`,
		employeeID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing role permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.DisplayName, &p.Description, &p.Module); err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *PGStore) DirectOverrides(ctx context.Context, employeeID int64) ([]Override, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.name, p.display_name, COALESCE(p.description, ''), p.module, ep.granted
		 FROM employee_permission ep
		 JOIN permissions p ON p.id = ep.permission_id
		 WHERE ep.employee_id = $1
		 ORDER BY p.name`,
		employeeID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing direct overrides: %w", err)
	}
	defer rows.Close()

	var overrides []Override
	for rows.Next() {
		var o Override
		if err := rows.Scan(&o.Permission.ID, &o.Permission.Name, &o.Permission.DisplayName,
			&o.Permission.Description, &o.Permission.Module, &o.Granted); err != nil {
			return nil, fmt.Errorf("scanning override: %w", err)
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

func (s *PGStore) RoleNames(ctx context.Context, employeeID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.name
		 FROM employee_role er
		 JOIN roles r ON r.id = er.role_id
		 WHERE er.employee_id = $1
		 ORDER BY r.name`,
		employeeID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing role names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning role name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *PGStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, display_name, COALESCE(description, ''), module, created_at
		 FROM permissions ORDER BY module, name`)
	if err != nil {
		return nil, fmt.Errorf("listing permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.DisplayName, &p.Description, &p.Module, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

var _ Store = (*PGStore)(nil)
