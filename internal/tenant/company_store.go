package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/andino-labs/andino/internal/platform/database"
)

const companyColumns = `c.id, c.owner_id, c.name, c.trade_name, c.ruc, c.address, c.city,
	c.province, c.phone, c.email, c.is_active, c.created_at, c.updated_at, c.deleted_at`

// CompanyStore persists companies with scope filtering applied in SQL.
type CompanyStore interface {
	Create(ctx context.Context, ownerID int64, in CompanyInput) (*Company, error)
	GetByID(ctx context.Context, scope Scope, id int64, includeDeleted bool) (*Company, error)
	List(ctx context.Context, scope Scope, page Page, includeDeleted bool) (PageResult[Company], error)
	Update(ctx context.Context, scope Scope, id int64, in CompanyInput) (*Company, error)
	SetActive(ctx context.Context, scope Scope, id int64, active bool) (*Company, error)
	SoftDelete(ctx context.Context, scope Scope, id int64) error
	Restore(ctx context.Context, scope Scope, id int64) (*Company, error)
}

// PGCompanyStore is the Postgres implementation of CompanyStore.
type PGCompanyStore struct {
	db database.Querier
}

func NewPGCompanyStore(db database.Querier) *PGCompanyStore {
	return &PGCompanyStore{db: db}
}

func scanCompany(row pgx.Row) (*Company, error) {
	var c Company
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.TradeName, &c.RUC, &c.Address, &c.City,
		&c.Province, &c.Phone, &c.Email, &c.IsActive, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning company: %w", err)
	}
	return &c, nil
}

func (s *PGCompanyStore) Create(ctx context.Context, ownerID int64, in CompanyInput) (*Company, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO companies AS c (owner_id, name, trade_name, ruc, address, city, province, phone, email)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+companyColumns,
		ownerID, in.Name, in.TradeName, in.RUC, in.Address, in.City, in.Province, in.Phone, in.Email,
	)
	c, err := scanCompany(row)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, &DuplicateError{Field: "ruc"}
		}
		return nil, fmt.Errorf("creating company: %w", err)
	}
	return c, nil
}

func (s *PGCompanyStore) GetByID(ctx context.Context, scope Scope, id int64, includeDeleted bool) (*Company, error) {
	clause, args := scope.CompanyClause("c", 2)
	query := `SELECT ` + companyColumns + ` FROM companies c WHERE c.id = $1 AND ` + clause
	if !includeDeleted {
		query += ` AND c.deleted_at IS NULL`
	}
	return scanCompany(s.db.QueryRow(ctx, query, append([]any{id}, args...)...))
}

func (s *PGCompanyStore) List(ctx context.Context, scope Scope, page Page, includeDeleted bool) (PageResult[Company], error) {
	page = page.Normalize()

	clause, args := scope.CompanyClause("c", 1)
	where := ` WHERE ` + clause
	if !includeDeleted {
		where += ` AND c.deleted_at IS NULL`
	}
	if page.Search != "" {
		where += fmt.Sprintf(` AND (c.name ILIKE $%d OR c.trade_name ILIKE $%d OR c.ruc ILIKE $%d)`,
			len(args)+1, len(args)+1, len(args)+1)
		args = append(args, "%"+page.Search+"%")
	}

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM companies c`+where, args...).Scan(&total); err != nil {
		return PageResult[Company]{}, fmt.Errorf("counting companies: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM companies c%s ORDER BY c.name LIMIT $%d OFFSET $%d`,
		companyColumns, where, len(args)+1, len(args)+2)
	rows, err := s.db.Query(ctx, query, append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return PageResult[Company]{}, fmt.Errorf("listing companies: %w", err)
	}
	defer rows.Close()

	var companies []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.TradeName, &c.RUC, &c.Address, &c.City,
			&c.Province, &c.Phone, &c.Email, &c.IsActive, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt); err != nil {
			return PageResult[Company]{}, fmt.Errorf("scanning company: %w", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return PageResult[Company]{}, err
	}
	return NewPageResult(companies, total, page), nil
}

func (s *PGCompanyStore) Update(ctx context.Context, scope Scope, id int64, in CompanyInput) (*Company, error) {
	clause, args := scope.CompanyClause("c", 10)
	row := s.db.QueryRow(ctx,
		`UPDATE companies c
		 SET name = $2, trade_name = $3, ruc = $4, address = $5, city = $6,
		     province = $7, phone = $8, email = $9, updated_at = now()
		 WHERE c.id = $1 AND c.deleted_at IS NULL AND `+clause+`
		 RETURNING `+companyColumns,
		append([]any{id, in.Name, in.TradeName, in.RUC, in.Address, in.City, in.Province, in.Phone, in.Email}, args...)...,
	)
	c, err := scanCompany(row)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, &DuplicateError{Field: "ruc"}
		}
		return nil, err
	}
	return c, nil
}

func (s *PGCompanyStore) SetActive(ctx context.Context, scope Scope, id int64, active bool) (*Company, error) {
	clause, args := scope.CompanyClause("c", 3)
	row := s.db.QueryRow(ctx,
		`UPDATE companies c SET is_active = $2, updated_at = now()
		 WHERE c.id = $1 AND c.deleted_at IS NULL AND `+clause+`
		 RETURNING `+companyColumns,
		append([]any{id, active}, args...)...,
	)
	return scanCompany(row)
}

func (s *PGCompanyStore) SoftDelete(ctx context.Context, scope Scope, id int64) error {
	clause, args := scope.CompanyClause("c", 2)
	tag, err := s.db.Exec(ctx,
		`UPDATE companies c SET deleted_at = now(), updated_at = now()
		 WHERE c.id = $1 AND c.deleted_at IS NULL AND `+clause,
		append([]any{id}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("deleting company: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGCompanyStore) Restore(ctx context.Context, scope Scope, id int64) (*Company, error) {
	clause, args := scope.CompanyClause("c", 2)
	row := s.db.QueryRow(ctx,
		`UPDATE companies c SET deleted_at = NULL, updated_at = now()
		 WHERE c.id = $1 AND c.deleted_at IS NOT NULL AND `+clause+`
		 RETURNING `+companyColumns,
		append([]any{id}, args...)...,
	)
	return scanCompany(row)
}
