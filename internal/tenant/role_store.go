package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andino-labs/andino/internal/platform/database"
)

const roleColumns = `r.id, r.company_id, r.name, r.display_name, r.description,
	r.is_system, r.created_at, r.updated_at`

// RoleStore persists roles and their permission sets.
type RoleStore interface {
	Create(ctx context.Context, companyID *int64, in RoleInput) (*Role, error)
	GetByID(ctx context.Context, scope Scope, id int64) (*Role, error)
	List(ctx context.Context, scope Scope, page Page) (PageResult[Role], error)
	Update(ctx context.Context, scope Scope, id int64, in RoleInput) (*Role, error)
	Delete(ctx context.Context, scope Scope, id int64) error
	SyncPermissions(ctx context.Context, scope Scope, id int64, permissions []string) (*Role, error)
}

// PGRoleStore is the Postgres implementation of RoleStore.
type PGRoleStore struct {
	pool *pgxpool.Pool
}

func NewPGRoleStore(pool *pgxpool.Pool) *PGRoleStore {
	return &PGRoleStore{pool: pool}
}

func scanRole(row pgx.Row) (*Role, error) {
	var r Role
	err := row.Scan(&r.ID, &r.CompanyID, &r.Name, &r.DisplayName, &r.Description,
		&r.IsSystem, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning role: %w", err)
	}
	return &r, nil
}

func rolePermissions(ctx context.Context, q database.Querier, roleID int64) ([]string, error) {
	rows, err := q.Query(ctx,
		`SELECT p.name FROM permissions p
		 JOIN permission_role pr ON pr.permission_id = p.id
		 WHERE pr.role_id = $1 ORDER BY p.name`,
		roleID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing role permissions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// syncRolePermissions replaces the role's permission set inside the
// caller's transaction. Unknown permission names are rejected.
func syncRolePermissions(ctx context.Context, q database.Querier, roleID int64, permissions []string) error {
	if _, err := q.Exec(ctx, `DELETE FROM permission_role WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("clearing role permissions: %w", err)
	}
	for _, name := range permissions {
		tag, err := q.Exec(ctx,
			`INSERT INTO permission_role (permission_id, role_id)
			 SELECT p.id, $1 FROM permissions p WHERE p.name = $2
			 ON CONFLICT DO NOTHING`,
			roleID, name,
		)
		if err != nil {
			return fmt.Errorf("adding permission %q: %w", name, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: permission %q", ErrNotFound, name)
		}
	}
	return nil
}

func (s *PGRoleStore) Create(ctx context.Context, companyID *int64, in RoleInput) (*Role, error) {
	var role *Role
	err := database.WithTx(ctx, s.pool, func(ctx context.Context, q database.Querier) error {
		row := q.QueryRow(ctx,
			`INSERT INTO roles AS r (company_id, name, display_name, description)
			 VALUES ($1, $2, $3, $4)
			 RETURNING `+roleColumns,
			companyID, in.Name, in.DisplayName, in.Description,
		)
		var err error
		role, err = scanRole(row)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return &DuplicateError{Field: "name"}
			}
			return fmt.Errorf("creating role: %w", err)
		}
		if err := syncRolePermissions(ctx, q, role.ID, in.Permissions); err != nil {
			return err
		}
		role.Permissions, err = rolePermissions(ctx, q, role.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

func (s *PGRoleStore) GetByID(ctx context.Context, scope Scope, id int64) (*Role, error) {
	clause, args := scope.RoleClause("r", 2)
	role, err := scanRole(s.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles r WHERE r.id = $1 AND `+clause,
		append([]any{id}, args...)...,
	))
	if err != nil {
		return nil, err
	}
	role.Permissions, err = rolePermissions(ctx, s.pool, role.ID)
	if err != nil {
		return nil, err
	}
	return role, nil
}

func (s *PGRoleStore) List(ctx context.Context, scope Scope, page Page) (PageResult[Role], error) {
	page = page.Normalize()

	clause, args := scope.RoleClause("r", 1)
	where := ` WHERE ` + clause
	if page.Search != "" {
		where += fmt.Sprintf(` AND (r.name ILIKE $%d OR r.display_name ILIKE $%d)`, len(args)+1, len(args)+1)
		args = append(args, "%"+page.Search+"%")
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM roles r`+where, args...).Scan(&total); err != nil {
		return PageResult[Role]{}, fmt.Errorf("counting roles: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT %s, count(er.employee_id) AS employee_count
		 FROM roles r
		 LEFT JOIN employee_role er ON er.role_id = r.id
		 %s
		 GROUP BY r.id
		 ORDER BY r.is_system DESC, r.name
		 LIMIT $%d OFFSET $%d`,
		roleColumns, where, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return PageResult[Role]{}, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.Name, &r.DisplayName, &r.Description,
			&r.IsSystem, &r.CreatedAt, &r.UpdatedAt, &r.EmployeeCount); err != nil {
			return PageResult[Role]{}, fmt.Errorf("scanning role: %w", err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return PageResult[Role]{}, err
	}
	return NewPageResult(roles, total, page), nil
}

func (s *PGRoleStore) Update(ctx context.Context, scope Scope, id int64, in RoleInput) (*Role, error) {
	var role *Role
	err := database.WithTx(ctx, s.pool, func(ctx context.Context, q database.Querier) error {
		current, err := s.lockRole(ctx, q, scope, id)
		if err != nil {
			return err
		}
		if current.IsSystem {
			return ErrSystemRoleImmutable
		}

		row := q.QueryRow(ctx,
			`UPDATE roles r SET name = $2, display_name = $3, description = $4, updated_at = now()
			 WHERE r.id = $1
			 RETURNING `+roleColumns,
			id, in.Name, in.DisplayName, in.Description,
		)
		role, err = scanRole(row)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return &DuplicateError{Field: "name"}
			}
			return err
		}
		if in.Permissions != nil {
			if err := syncRolePermissions(ctx, q, id, in.Permissions); err != nil {
				return err
			}
		}
		role.Permissions, err = rolePermissions(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

func (s *PGRoleStore) Delete(ctx context.Context, scope Scope, id int64) error {
	return database.WithTx(ctx, s.pool, func(ctx context.Context, q database.Querier) error {
		role, err := s.lockRole(ctx, q, scope, id)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return ErrSystemRoleImmutable
		}

		var assigned int64
		if err := q.QueryRow(ctx,
			`SELECT count(*) FROM employee_role WHERE role_id = $1`, id,
		).Scan(&assigned); err != nil {
			return fmt.Errorf("counting assignments: %w", err)
		}
		if assigned > 0 {
			return ErrRoleInUse
		}

		if _, err := q.Exec(ctx, `DELETE FROM permission_role WHERE role_id = $1`, id); err != nil {
			return fmt.Errorf("clearing role permissions: %w", err)
		}
		if _, err := q.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id); err != nil {
			return fmt.Errorf("deleting role: %w", err)
		}
		return nil
	})
}

// SyncPermissions atomically replaces the role's permission set. A
// failure partway leaves the previous set intact.
func (s *PGRoleStore) SyncPermissions(ctx context.Context, scope Scope, id int64, permissions []string) (*Role, error) {
	var role *Role
	err := database.WithTx(ctx, s.pool, func(ctx context.Context, q database.Querier) error {
		var err error
		role, err = s.lockRole(ctx, q, scope, id)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return ErrSystemRoleImmutable
		}
		if err := syncRolePermissions(ctx, q, id, permissions); err != nil {
			return err
		}
		role.Permissions, err = rolePermissions(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

func (s *PGRoleStore) lockRole(ctx context.Context, q database.Querier, scope Scope, id int64) (*Role, error) {
	clause, args := scope.RoleClause("r", 2)
	return scanRole(q.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles r WHERE r.id = $1 AND `+clause+` FOR UPDATE`,
		append([]any{id}, args...)...,
	))
}
