package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andino-labs/andino/internal/platform/database"
)

const employeeColumns = `e.id, e.company_id, e.name, e.email, e.identification, e.phone,
	e.is_active, e.last_login_at, e.last_login_ip, e.created_at, e.updated_at, e.deleted_at`

// EmployeeStore persists employees, their role assignments, and their
// direct permission overrides.
type EmployeeStore interface {
	Create(ctx context.Context, scope Scope, companyID int64, in EmployeeInput, passwordHash string, roleIDs []int64) (*Employee, error)
	GetByID(ctx context.Context, scope Scope, id int64, includeDeleted bool) (*Employee, error)
	List(ctx context.Context, scope Scope, page Page, includeDeleted bool) (PageResult[Employee], error)
	Update(ctx context.Context, scope Scope, id int64, in EmployeeInput) (*Employee, error)
	SetActive(ctx context.Context, scope Scope, id int64, active bool) (*Employee, error)
	SoftDelete(ctx context.Context, scope Scope, id int64) error
	Restore(ctx context.Context, scope Scope, id int64) (*Employee, error)
	UpdatePassword(ctx context.Context, scope Scope, id int64, passwordHash string) error
	SyncRoles(ctx context.Context, scope Scope, id int64, roleIDs []int64) error
	RemoveRole(ctx context.Context, scope Scope, id, roleID int64) error
	SetOverride(ctx context.Context, scope Scope, id int64, permission string, granted bool) error
	ClearOverride(ctx context.Context, scope Scope, id int64, permission string) error
	Overrides(ctx context.Context, scope Scope, id int64) ([]EmployeeOverride, error)
}

// PGEmployeeStore is the Postgres implementation of EmployeeStore.
// It holds the pool directly because role sync and creation need
// transactions.
type PGEmployeeStore struct {
	pool *pgxpool.Pool
}

func NewPGEmployeeStore(pool *pgxpool.Pool) *PGEmployeeStore {
	return &PGEmployeeStore{pool: pool}
}

func scanEmployee(row pgx.Row) (*Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.CompanyID, &e.Name, &e.Email, &e.Identification, &e.Phone,
		&e.IsActive, &e.LastLoginAt, &e.LastLoginIP, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning employee: %w", err)
	}
	return &e, nil
}

// duplicateEmployeeError maps a unique violation to the colliding field.
func duplicateEmployeeError(err error) error {
	var field string
	switch {
	case database.ConstraintName(err) == "employees_email_key":
		field = "email"
	default:
		field = "identification"
	}
	return &DuplicateError{Field: field}
}

func (s *PGEmployeeStore) Create(ctx context.Context, scope Scope, companyID int64, in EmployeeInput, passwordHash string, roleIDs []int64) (*Employee, error) {
	if len(roleIDs) == 0 {
		return nil, ErrLastRole
	}

	var employee *Employee
	err := database.WithTx(ctx, s.pool, func(ctx context.Context, q database.Querier) error {
		// Verify the target company is visible to the caller. An
		// out-of-scope company must look like it does not exist.
		clause, args := scope.CompanyClause("c", 2)
		var ok bool
		err := q.QueryRow(ctx,
			`SELECT true FROM companies c WHERE c.id = $1 AND c.deleted_at IS NULL AND `+clause,
			append([]any{companyID}, args...)...,
		).Scan(&ok)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking company: %w", err)
		}

		row := q.QueryRow(ctx,
			`INSERT INTO employees AS e (company_id, name, email, identification, phone, password_hash)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING `+employeeColumns,
			companyID, in.Name, in.Email, in.Identification, in.Phone, passwordHash,
		)
		employee, err = scanEmployee(row)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return duplicateEmployeeError(err)
			}
			return fmt.Errorf("creating employee: %w", err)
		}

		if err := insertRoles(ctx, q, employee.ID, employee.CompanyID, roleIDs); err != nil {
			return err
		}
		employee.Roles, err = roleNames(ctx, q, employee.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return employee, nil
}

// insertRoles assigns roles, accepting only roles visible to the
// employee's company (its own roles plus global system roles).
func insertRoles(ctx context.Context, q database.Querier, employeeID, companyID int64, roleIDs []int64) error {
	for _, roleID := range roleIDs {
		tag, err := q.Exec(ctx,
			`INSERT INTO employee_role (employee_id, role_id)
			 SELECT $1, r.id FROM roles r
			 WHERE r.id = $2 AND (r.company_id IS NULL OR r.company_id = $3)
			 ON CONFLICT DO NOTHING`,
			employeeID, roleID, companyID,
		)
		if err != nil {
			return fmt.Errorf("assigning role %d: %w", roleID, err)
		}
		if tag.RowsAffected() == 0 {
			// Either the role does not exist in this scope or it was
			// already assigned. Distinguish the two.
			var exists bool
			err := q.QueryRow(ctx,
				`SELECT true FROM employee_role WHERE employee_id = $1 AND role_id = $2`,
				employeeID, roleID,
			).Scan(&exists)
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("checking role assignment: %w", err)
			}
		}
	}
	return nil
}

func roleNames(ctx context.Context, q database.Querier, employeeID int64) ([]string, error) {
	rows, err := q.Query(ctx,
		`SELECT r.name FROM roles r
		 JOIN employee_role er ON er.role_id = r.id
		 WHERE er.employee_id = $1 ORDER BY r.name`,
		employeeID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing employee roles: %w", err)
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

// employeeScopeJoin constrains employee queries to companies visible
// to the caller.
func employeeScopeJoin(scope Scope, argIndex int) (string, []any) {
	clause, args := scope.CompanyClause("c", argIndex)
	return ` JOIN companies c ON c.id = e.company_id AND c.deleted_at IS NULL AND ` + clause, args
}

func (s *PGEmployeeStore) GetByID(ctx context.Context, scope Scope, id int64, includeDeleted bool) (*Employee, error) {
	join, args := employeeScopeJoin(scope, 2)
	query := `SELECT ` + employeeColumns + ` FROM employees e` + join + ` WHERE e.id = $1`
	if !includeDeleted {
		query += ` AND e.deleted_at IS NULL`
	}
	employee, err := scanEmployee(s.pool.QueryRow(ctx, query, append([]any{id}, args...)...))
	if err != nil {
		return nil, err
	}
	employee.Roles, err = roleNames(ctx, s.pool, employee.ID)
	if err != nil {
		return nil, err
	}
	return employee, nil
}

func (s *PGEmployeeStore) List(ctx context.Context, scope Scope, page Page, includeDeleted bool) (PageResult[Employee], error) {
	page = page.Normalize()

	join, args := employeeScopeJoin(scope, 1)
	where := ""
	if !includeDeleted {
		where = ` WHERE e.deleted_at IS NULL`
	}
	if page.Search != "" {
		conj := " WHERE "
		if where != "" {
			conj = " AND "
		}
		where += fmt.Sprintf(`%s(e.name ILIKE $%d OR e.email ILIKE $%d OR e.identification ILIKE $%d)`,
			conj, len(args)+1, len(args)+1, len(args)+1)
		args = append(args, "%"+page.Search+"%")
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM employees e`+join+where, args...).Scan(&total); err != nil {
		return PageResult[Employee]{}, fmt.Errorf("counting employees: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM employees e%s%s ORDER BY e.name LIMIT $%d OFFSET $%d`,
		employeeColumns, join, where, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return PageResult[Employee]{}, fmt.Errorf("listing employees: %w", err)
	}
	defer rows.Close()

	var employees []Employee
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Name, &e.Email, &e.Identification, &e.Phone,
			&e.IsActive, &e.LastLoginAt, &e.LastLoginIP, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt); err != nil {
			return PageResult[Employee]{}, fmt.Errorf("scanning employee: %w", err)
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return PageResult[Employee]{}, err
	}
	return NewPageResult(employees, total, page), nil
}

func (s *PGEmployeeStore) Update(ctx context.Context, scope Scope, id int64, in EmployeeInput) (*Employee, error) {
	clause, args := scope.CompanyClause("c", 6)
	row := s.pool.QueryRow(ctx,
		`UPDATE employees e SET name = $2, email = $3, identification = $4, phone = $5, updated_at = now()
		 FROM companies c
		 WHERE e.id = $1 AND e.deleted_at IS NULL
		   AND c.id = e.company_id AND c.deleted_at IS NULL AND `+clause+`
		 RETURNING `+employeeColumns,
		append([]any{id, in.Name, in.Email, in.Identification, in.Phone}, args...)...,
	)
	employee, err := scanEmployee(row)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, duplicateEmployeeError(err)
		}
		return nil, err
	}
	employee.Roles, err = roleNames(ctx, s.pool, employee.ID)
	if err != nil {
		return nil, err
	}
	return employee, nil
}

func (s *PGEmployeeStore) SetActive(ctx context.Context, scope Scope, id int64, active bool) (*Employee, error) {
	clause, args := scope.CompanyClause("c", 3)
	row := s.pool.QueryRow(ctx,
		`UPDATE employees e SET is_active = $2, updated_at = now()
		 FROM companies c
		 WHERE e.id = $1 AND e.deleted_at IS NULL
		   AND c.id = e.company_id AND c.deleted_at IS NULL AND `+clause+`
		 RETURNING `+employeeColumns,
		append([]any{id, active}, args...)...,
	)
	return scanEmployee(row)
}

func (s *PGEmployeeStore) SoftDelete(ctx context.Context, scope Scope, id int64) error {
	clause, args := scope.CompanyClause("c", 2)
	tag, err := s.pool.Exec(ctx,
		`UPDATE employees e SET deleted_at = now(), updated_at = now()
		 FROM companies c
		 WHERE e.id = $1 AND e.deleted_at IS NULL
		   AND c.id = e.company_id AND c.deleted_at IS NULL AND `+clause,
		append([]any{id}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("deleting employee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGEmployeeStore) Restore(ctx context.Context, scope Scope, id int64) (*Employee, error) {
	clause, args := scope.CompanyClause("c", 2)
	row := s.pool.QueryRow(ctx,
		`UPDATE employees e SET deleted_at = NULL, updated_at = now()
		 FROM companies c
		 WHERE e.id = $1 AND e.deleted_at IS NOT NULL
		   AND c.id = e.company_id AND c.deleted_at IS NULL AND `+clause+`
		 RETURNING `+employeeColumns,
		append([]any{id}, args...)...,
	)
	return scanEmployee(row)
}

func (s *PGEmployeeStore) UpdatePassword(ctx context.Context, scope Scope, id int64, passwordHash string) error {
	clause, args := scope.CompanyClause("c", 3)
	tag, err := s.pool.Exec(ctx,
		`UPDATE employees e SET password_hash = $2, updated_at = now()
		 FROM companies c
		 WHERE e.id = $1 AND e.deleted_at IS NULL
		   AND c.id = e.company_id AND c.deleted_at IS NULL AND `+clause,
		append([]any{id, passwordHash}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SyncRoles replaces the employee's role set atomically. An empty set
// is rejected so every employee keeps at least one role.
func (s *PGEmployeeStore) SyncRoles(ctx context.Context, scope Scope, id int64, roleIDs []int64) error {
	if len(roleIDs) == 0 {
		return ErrLastRole
	}
	return database.WithTx(ctx, s.pool, func(ctx context.Context, q database.Querier) error {
		employee, err := s.lockEmployee(ctx, q, scope, id)
		if err != nil {
			return err
		}
		if _, err := q.Exec(ctx, `DELETE FROM employee_role WHERE employee_id = $1`, id); err != nil {
			return fmt.Errorf("clearing roles: %w", err)
		}
		return insertRoles(ctx, q, id, employee.CompanyID, roleIDs)
	})
}

func (s *PGEmployeeStore) RemoveRole(ctx context.Context, scope Scope, id, roleID int64) error {
	return database.WithTx(ctx, s.pool, func(ctx context.Context, q database.Querier) error {
		if _, err := s.lockEmployee(ctx, q, scope, id); err != nil {
			return err
		}
		var count int
		if err := q.QueryRow(ctx,
			`SELECT count(*) FROM employee_role WHERE employee_id = $1`, id,
		).Scan(&count); err != nil {
			return fmt.Errorf("counting roles: %w", err)
		}
		if count <= 1 {
			return ErrLastRole
		}
		tag, err := q.Exec(ctx,
			`DELETE FROM employee_role WHERE employee_id = $1 AND role_id = $2`, id, roleID)
		if err != nil {
			return fmt.Errorf("removing role: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// lockEmployee loads and row-locks an employee within scope so role
// mutations serialize per employee.
func (s *PGEmployeeStore) lockEmployee(ctx context.Context, q database.Querier, scope Scope, id int64) (*Employee, error) {
	join, args := employeeScopeJoin(scope, 2)
	return scanEmployee(q.QueryRow(ctx,
		`SELECT `+employeeColumns+` FROM employees e`+join+`
		 WHERE e.id = $1 AND e.deleted_at IS NULL FOR UPDATE OF e`,
		append([]any{id}, args...)...,
	))
}

func (s *PGEmployeeStore) SetOverride(ctx context.Context, scope Scope, id int64, permission string, granted bool) error {
	join, args := employeeScopeJoin(scope, 3)
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO employee_permission (employee_id, permission_id, granted)
		 SELECT e.id, p.id, $2
		 FROM employees e`+join+`, permissions p
		 WHERE e.id = $1 AND e.deleted_at IS NULL AND p.name = $`+fmt.Sprint(len(args)+3)+`
		 ON CONFLICT (employee_id, permission_id) DO UPDATE SET granted = EXCLUDED.granted`,
		append(append([]any{id, granted}, args...), permission)...,
	)
	if err != nil {
		return fmt.Errorf("setting permission override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGEmployeeStore) ClearOverride(ctx context.Context, scope Scope, id int64, permission string) error {
	join, args := employeeScopeJoin(scope, 3)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM employee_permission ep
		 USING employees e`+join+`, permissions p
		 WHERE ep.employee_id = e.id AND ep.permission_id = p.id
		   AND e.id = $1 AND p.name = $2`,
		append([]any{id, permission}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("clearing permission override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGEmployeeStore) Overrides(ctx context.Context, scope Scope, id int64) ([]EmployeeOverride, error) {
	if _, err := s.GetByID(ctx, scope, id, false); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT p.name, ep.granted FROM employee_permission ep
		 JOIN permissions p ON p.id = ep.permission_id
		 WHERE ep.employee_id = $1 ORDER BY p.name`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("listing overrides: %w", err)
	}
	defer rows.Close()

	var overrides []EmployeeOverride
	for rows.Next() {
		var o EmployeeOverride
		if err := rows.Scan(&o.Permission, &o.Granted); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}
