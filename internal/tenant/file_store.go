package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/andino-labs/andino/internal/platform/database"
)

const fileColumns = `f.id, f.company_id, f.category_id, f.uploader_guard, f.uploader_id,
	f.original_name, f.stored_name, f.path, f.mime_type, f.extension, f.size_bytes,
	f.file_type, f.description, f.download_count, f.expires_at, f.created_at, f.updated_at, f.deleted_at`

// FileStore persists uploaded-file metadata with scope filtering
// applied in SQL. Expired records behave like missing ones on reads.
type FileStore interface {
	Create(ctx context.Context, scope Scope, companyID int64, uploaderGuard string, uploaderID int64, in FileInput, expiresAt *time.Time) (*UploadedFile, error)
	GetByID(ctx context.Context, scope Scope, id int64) (*UploadedFile, error)
	List(ctx context.Context, scope Scope, page Page, filter FileFilter) (PageResult[UploadedFile], error)
	RecordDownload(ctx context.Context, scope Scope, id int64) (*UploadedFile, error)
	SoftDelete(ctx context.Context, scope Scope, id int64) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// FileCategoryStore persists the global category catalog.
type FileCategoryStore interface {
	ListCategories(ctx context.Context, page Page) (PageResult[FileCategory], error)
	GetCategory(ctx context.Context, id int64) (*FileCategory, error)
	CreateCategory(ctx context.Context, in FileCategoryInput) (*FileCategory, error)
	UpdateCategory(ctx context.Context, id int64, in FileCategoryInput) (*FileCategory, error)
	DeleteCategory(ctx context.Context, id int64) error
}

// PGFileStore is the Postgres implementation of FileStore and
// FileCategoryStore.
type PGFileStore struct {
	db database.Querier
}

func NewPGFileStore(db database.Querier) *PGFileStore {
	return &PGFileStore{db: db}
}

func scanFile(row pgx.Row) (*UploadedFile, error) {
	var f UploadedFile
	err := row.Scan(&f.ID, &f.CompanyID, &f.CategoryID, &f.UploaderGuard, &f.UploaderID,
		&f.OriginalName, &f.StoredName, &f.Path, &f.MimeType, &f.Extension, &f.SizeBytes,
		&f.FileType, &f.Description, &f.DownloadCount, &f.ExpiresAt, &f.CreatedAt, &f.UpdatedAt, &f.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning uploaded file: %w", err)
	}
	return &f, nil
}

// fileScopeJoin constrains file queries to companies visible to the
// caller.
func fileScopeJoin(scope Scope, argIndex int) (string, []any) {
	clause, args := scope.CompanyClause("c", argIndex)
	return ` JOIN companies c ON c.id = f.company_id AND c.deleted_at IS NULL AND ` + clause, args
}

func (s *PGFileStore) Create(ctx context.Context, scope Scope, companyID int64, uploaderGuard string, uploaderID int64, in FileInput, expiresAt *time.Time) (*UploadedFile, error) {
	clause, args := scope.CompanyClause("c", 2)
	var ok bool
	err := s.db.QueryRow(ctx,
		`SELECT true FROM companies c WHERE c.id = $1 AND c.deleted_at IS NULL AND `+clause,
		append([]any{companyID}, args...)...,
	).Scan(&ok)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking company: %w", err)
	}

	fileType := in.FileType
	if fileType == "" {
		fileType = "other"
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO uploaded_files AS f (company_id, category_id, uploader_guard, uploader_id,
		     original_name, stored_name, path, mime_type, extension, size_bytes,
		     file_type, description, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING `+fileColumns,
		companyID, in.CategoryID, uploaderGuard, uploaderID,
		in.OriginalName, in.StoredName, in.Path, in.MimeType, in.Extension, in.SizeBytes,
		fileType, in.Description, expiresAt,
	)
	f, err := scanFile(row)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, &DuplicateError{Field: "stored_name"}
		}
		if database.IsForeignKeyViolation(err) {
			return nil, ErrCategoryInvalid
		}
		return nil, fmt.Errorf("creating uploaded file: %w", err)
	}
	return f, nil
}

const notExpired = `(f.expires_at IS NULL OR f.expires_at > now())`

func (s *PGFileStore) GetByID(ctx context.Context, scope Scope, id int64) (*UploadedFile, error) {
	join, args := fileScopeJoin(scope, 2)
	return scanFile(s.db.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM uploaded_files f`+join+
			` WHERE f.id = $1 AND f.deleted_at IS NULL AND `+notExpired,
		append([]any{id}, args...)...,
	))
}

func (s *PGFileStore) List(ctx context.Context, scope Scope, page Page, filter FileFilter) (PageResult[UploadedFile], error) {
	page = page.Normalize()

	join, args := fileScopeJoin(scope, 1)
	where := ` WHERE f.deleted_at IS NULL`
	if filter.FileType != "" {
		where += fmt.Sprintf(` AND f.file_type = $%d`, len(args)+1)
		args = append(args, filter.FileType)
	}
	if filter.ExcludeExpired {
		where += ` AND ` + notExpired
	}
	if page.Search != "" {
		where += fmt.Sprintf(` AND f.original_name ILIKE $%d`, len(args)+1)
		args = append(args, "%"+page.Search+"%")
	}

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM uploaded_files f`+join+where, args...).Scan(&total); err != nil {
		return PageResult[UploadedFile]{}, fmt.Errorf("counting uploaded files: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM uploaded_files f%s%s ORDER BY f.created_at DESC LIMIT $%d OFFSET $%d`,
		fileColumns, join, where, len(args)+1, len(args)+2)
	rows, err := s.db.Query(ctx, query, append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return PageResult[UploadedFile]{}, fmt.Errorf("listing uploaded files: %w", err)
	}
	defer rows.Close()

	var files []UploadedFile
	for rows.Next() {
		var f UploadedFile
		if err := rows.Scan(&f.ID, &f.CompanyID, &f.CategoryID, &f.UploaderGuard, &f.UploaderID,
			&f.OriginalName, &f.StoredName, &f.Path, &f.MimeType, &f.Extension, &f.SizeBytes,
			&f.FileType, &f.Description, &f.DownloadCount, &f.ExpiresAt, &f.CreatedAt, &f.UpdatedAt, &f.DeletedAt); err != nil {
			return PageResult[UploadedFile]{}, fmt.Errorf("scanning uploaded file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return PageResult[UploadedFile]{}, err
	}
	return NewPageResult(files, total, page), nil
}

func (s *PGFileStore) RecordDownload(ctx context.Context, scope Scope, id int64) (*UploadedFile, error) {
	clause, args := scope.CompanyClause("c", 2)
	return scanFile(s.db.QueryRow(ctx,
		`UPDATE uploaded_files f SET download_count = f.download_count + 1, updated_at = now()
		 WHERE f.id = $1 AND f.deleted_at IS NULL AND `+notExpired+`
		   AND f.company_id IN (SELECT c.id FROM companies c WHERE c.deleted_at IS NULL AND `+clause+`)
		 RETURNING `+fileColumns,
		append([]any{id}, args...)...,
	))
}

func (s *PGFileStore) SoftDelete(ctx context.Context, scope Scope, id int64) error {
	join, args := fileScopeJoin(scope, 2)
	tag, err := s.db.Exec(ctx,
		`UPDATE uploaded_files SET deleted_at = now(), updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL
		   AND id IN (SELECT f.id FROM uploaded_files f`+join+`)`,
		append([]any{id}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("deleting uploaded file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpired soft-deletes every record whose expiry has passed,
// across all companies. Called by the background sweeper.
func (s *PGFileStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE uploaded_files SET deleted_at = now(), updated_at = now()
		 WHERE deleted_at IS NULL AND expires_at IS NOT NULL AND expires_at <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired files: %w", err)
	}
	return tag.RowsAffected(), nil
}

const categoryColumns = `id, name, description, is_active, created_at, updated_at`

func scanCategory(row pgx.Row) (*FileCategory, error) {
	var c FileCategory
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning file category: %w", err)
	}
	return &c, nil
}

func (s *PGFileStore) ListCategories(ctx context.Context, page Page) (PageResult[FileCategory], error) {
	page = page.Normalize()

	where := ""
	var args []any
	if page.Search != "" {
		where = ` WHERE name ILIKE $1`
		args = append(args, "%"+page.Search+"%")
	}

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM file_categories`+where, args...).Scan(&total); err != nil {
		return PageResult[FileCategory]{}, fmt.Errorf("counting file categories: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM file_categories%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		categoryColumns, where, len(args)+1, len(args)+2)
	rows, err := s.db.Query(ctx, query, append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return PageResult[FileCategory]{}, fmt.Errorf("listing file categories: %w", err)
	}
	defer rows.Close()

	var categories []FileCategory
	for rows.Next() {
		var c FileCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return PageResult[FileCategory]{}, fmt.Errorf("scanning file category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return PageResult[FileCategory]{}, err
	}
	return NewPageResult(categories, total, page), nil
}

func (s *PGFileStore) GetCategory(ctx context.Context, id int64) (*FileCategory, error) {
	return scanCategory(s.db.QueryRow(ctx,
		`SELECT `+categoryColumns+` FROM file_categories WHERE id = $1`, id))
}

func (s *PGFileStore) CreateCategory(ctx context.Context, in FileCategoryInput) (*FileCategory, error) {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	c, err := scanCategory(s.db.QueryRow(ctx,
		`INSERT INTO file_categories (name, description, is_active)
		 VALUES ($1, $2, $3) RETURNING `+categoryColumns,
		in.Name, in.Description, active,
	))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, &DuplicateError{Field: "name"}
		}
		return nil, err
	}
	return c, nil
}

func (s *PGFileStore) UpdateCategory(ctx context.Context, id int64, in FileCategoryInput) (*FileCategory, error) {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	c, err := scanCategory(s.db.QueryRow(ctx,
		`UPDATE file_categories SET name = $2, description = $3, is_active = $4, updated_at = now()
		 WHERE id = $1 RETURNING `+categoryColumns,
		id, in.Name, in.Description, active,
	))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, &DuplicateError{Field: "name"}
		}
		return nil, err
	}
	return c, nil
}

func (s *PGFileStore) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM file_categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting file category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
