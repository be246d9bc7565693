package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store abstracts principal lookup so the service can be unit tested.
type Store interface {
	FindByEmail(ctx context.Context, guard Guard, email string) (*Account, error)
	FindByID(ctx context.Context, guard Guard, id int64) (*Account, error)
	RecordLogin(ctx context.Context, guard Guard, id int64, at time.Time, ip string) error
}

// PGStore looks principals up across the three guard tables.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) FindByEmail(ctx context.Context, guard Guard, email string) (*Account, error) {
	return s.find(ctx, guard, "email = $1", email)
}

func (s *PGStore) FindByID(ctx context.Context, guard Guard, id int64) (*Account, error) {
	return s.find(ctx, guard, "id = $1", id)
}

func (s *PGStore) find(ctx context.Context, guard Guard, where string, arg any) (*Account, error) {
	var a Account
	var err error

	switch guard {
	case GuardSuperadmin:
		err = s.pool.QueryRow(ctx,
			`SELECT id, email, name, password_hash, is_active, last_login_at, COALESCE(last_login_ip, '')
			 FROM superadmins WHERE `+where,
			arg,
		).Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Active, &a.LastLoginAt, &a.LastLoginIP)
	case GuardOwner:
		err = s.pool.QueryRow(ctx,
			`SELECT id, email, name, password_hash, is_active, last_login_at, COALESCE(last_login_ip, '')
			 FROM owners WHERE `+where,
			arg,
		).Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Active, &a.LastLoginAt, &a.LastLoginIP)
	case GuardEmployee:
		// The company join is deliberate: an inactive or deleted company
		// blocks its employees regardless of their own active flag.
		err = s.pool.QueryRow(ctx,
			`SELECT e.id, e.email, e.name, e.password_hash, e.is_active,
			        e.last_login_at, COALESCE(e.last_login_ip, ''),
			        e.company_id, c.is_active
			 FROM employees e
			 JOIN companies c ON c.id = e.company_id AND c.deleted_at IS NULL
			 WHERE e.deleted_at IS NULL AND e.`+where,
			arg,
		).Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Active,
			&a.LastLoginAt, &a.LastLoginIP, &a.CompanyID, &a.CompanyActive)
	default:
		return nil, fmt.Errorf("%w: unknown guard %q", ErrTokenInvalid, guard)
	}

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding %s principal: %w", guard, err)
	}
	return &a, nil
}

func (s *PGStore) RecordLogin(ctx context.Context, guard Guard, id int64, at time.Time, ip string) error {
	table, ok := guardTable(guard)
	if !ok {
		return fmt.Errorf("%w: unknown guard %q", ErrTokenInvalid, guard)
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE `+table+` SET last_login_at = $1, last_login_ip = $2 WHERE id = $3`,
		at.UTC(), ip, id,
	)
	if err != nil {
		return fmt.Errorf("recording login: %w", err)
	}
	return nil
}

func guardTable(guard Guard) (string, bool) {
	switch guard {
	case GuardSuperadmin:
		return "superadmins", true
	case GuardOwner:
		return "owners", true
	case GuardEmployee:
		return "employees", true
	}
	return "", false
}

var _ Store = (*PGStore)(nil)
