package tenant

import (
	"errors"
	"fmt"

	"github.com/andino-labs/andino/internal/auth"
)

var (
	// ErrNotFound covers both genuinely missing resources and resources
	// outside the caller's scope. Callers must not be able to tell the
	// difference.
	ErrNotFound = errors.New("resource not found")

	ErrDuplicateValue      = errors.New("duplicate value")
	ErrSystemRoleImmutable = errors.New("system role cannot be modified")
	ErrRoleInUse           = errors.New("role is assigned to employees")
	ErrLastRole            = errors.New("employee must keep at least one role")
	ErrSelfAction          = errors.New("action not permitted on own account")
	ErrCategoryInvalid     = errors.New("file category does not exist")
)

// DuplicateError reports which field collided with an existing row.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate value for %s", e.Field)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicateValue }

// Scope restricts queries to the rows the calling principal may see.
// Superadmins see everything, owners see their own companies, and
// employees see only their company. Every store query takes a Scope
// so isolation lives next to the SQL instead of in session state.
type Scope struct {
	all       bool
	ownerID   int64
	companyID int64
}

// ScopeFor derives the query scope from an authenticated principal.
func ScopeFor(p *auth.Principal) Scope {
	switch p.Guard {
	case auth.GuardSuperadmin:
		return Scope{all: true}
	case auth.GuardOwner:
		return Scope{ownerID: p.ID}
	default:
		return Scope{companyID: p.CompanyID}
	}
}

// ScopeAll grants unrestricted visibility. Used by seeders and tests.
func ScopeAll() Scope { return Scope{all: true} }

// ScopeCompany restricts visibility to a single company.
func ScopeCompany(companyID int64) Scope { return Scope{companyID: companyID} }

// All reports whether the scope is unrestricted.
func (s Scope) All() bool { return s.all }

// OwnerID returns the owning principal, or zero when not owner-scoped.
func (s Scope) OwnerID() int64 { return s.ownerID }

// CompanyID returns the bound company, or zero when not company-scoped.
func (s Scope) CompanyID() int64 { return s.companyID }

// CompanyClause renders the scope as a SQL predicate over a companies
// table alias. The returned args continue from argIndex.
func (s Scope) CompanyClause(alias string, argIndex int) (string, []any) {
	switch {
	case s.all:
		return "TRUE", nil
	case s.ownerID != 0:
		return fmt.Sprintf("%s.owner_id = $%d", alias, argIndex), []any{s.ownerID}
	default:
		return fmt.Sprintf("%s.id = $%d", alias, argIndex), []any{s.companyID}
	}
}

// RoleClause renders the scope as a SQL predicate over a roles table
// alias. Global roles (NULL company) are visible to everyone.
func (s Scope) RoleClause(alias string, argIndex int) (string, []any) {
	switch {
	case s.all:
		return "TRUE", nil
	case s.ownerID != 0:
		return fmt.Sprintf(
			"(%s.company_id IS NULL OR %s.company_id IN (SELECT id FROM companies WHERE owner_id = $%d AND deleted_at IS NULL))",
			alias, alias, argIndex), []any{s.ownerID}
	default:
		return fmt.Sprintf("(%s.company_id IS NULL OR %s.company_id = $%d)",
			alias, alias, argIndex), []any{s.companyID}
	}
}

// Page describes a pagination request.
type Page struct {
	Number  int
	PerPage int
	Search  string
}

// Normalize clamps page parameters to sane values.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 15
	}
	if p.PerPage > 100 {
		p.PerPage = 100
	}
	return p
}

// Offset returns the SQL offset for the page.
func (p Page) Offset() int { return (p.Number - 1) * p.PerPage }

// PageResult is a paginated listing in the shape the API returns.
type PageResult[T any] struct {
	Data        []T   `json:"data"`
	Total       int64 `json:"total"`
	PerPage     int   `json:"per_page"`
	CurrentPage int   `json:"current_page"`
	LastPage    int   `json:"last_page"`
}

// NewPageResult assembles a page result, computing the last page.
func NewPageResult[T any](items []T, total int64, page Page) PageResult[T] {
	last := int((total + int64(page.PerPage) - 1) / int64(page.PerPage))
	if last < 1 {
		last = 1
	}
	if items == nil {
		items = []T{}
	}
	return PageResult[T]{
		Data:        items,
		Total:       total,
		PerPage:     page.PerPage,
		CurrentPage: page.Number,
		LastPage:    last,
	}
}
