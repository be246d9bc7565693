package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/andino-labs/andino/internal/auth"
)

func TestScopeFor(t *testing.T) {
	sa := ScopeFor(&auth.Principal{Guard: auth.GuardSuperadmin, ID: 1})
	assert.True(t, sa.All())

	owner := ScopeFor(&auth.Principal{Guard: auth.GuardOwner, ID: 4})
	assert.False(t, owner.All())
	assert.Equal(t, int64(4), owner.OwnerID())

	emp := ScopeFor(&auth.Principal{Guard: auth.GuardEmployee, ID: 9, CompanyID: 7})
	assert.False(t, emp.All())
	assert.Equal(t, int64(7), emp.CompanyID())
}

func TestScopeCompanyClause(t *testing.T) {
	clause, args := ScopeAll().CompanyClause("c", 1)
	assert.Equal(t, "TRUE", clause)
	assert.Empty(t, args)

	clause, args = ScopeFor(&auth.Principal{Guard: auth.GuardOwner, ID: 4}).CompanyClause("c", 3)
	assert.Equal(t, "c.owner_id = $3", clause)
	assert.Equal(t, []any{int64(4)}, args)

	clause, args = ScopeCompany(7).CompanyClause("c", 2)
	assert.Equal(t, "c.id = $2", clause)
	assert.Equal(t, []any{int64(7)}, args)
}

func TestScopeRoleClause(t *testing.T) {
	clause, _ := ScopeAll().RoleClause("r", 1)
	assert.Equal(t, "TRUE", clause)

	clause, args := ScopeCompany(7).RoleClause("r", 1)
	assert.Equal(t, "(r.company_id IS NULL OR r.company_id = $1)", clause)
	assert.Equal(t, []any{int64(7)}, args)

	clause, args = ScopeFor(&auth.Principal{Guard: auth.GuardOwner, ID: 4}).RoleClause("r", 2)
	assert.Contains(t, clause, "r.company_id IS NULL")
	assert.Contains(t, clause, "owner_id = $2")
	assert.Equal(t, []any{int64(4)}, args)
}

func TestPageNormalize(t *testing.T) {
	p := Page{}.Normalize()
	assert.Equal(t, 1, p.Number)
	assert.Equal(t, 15, p.PerPage)
	assert.Equal(t, 0, p.Offset())

	p = Page{Number: 3, PerPage: 500}.Normalize()
	assert.Equal(t, 100, p.PerPage)
	assert.Equal(t, 200, p.Offset())
}

func TestNewPageResult(t *testing.T) {
	r := NewPageResult([]Company{{ID: 1}}, 31, Page{Number: 1, PerPage: 15})
	assert.Equal(t, 3, r.LastPage)
	assert.Equal(t, int64(31), r.Total)

	empty := NewPageResult[Company](nil, 0, Page{Number: 1, PerPage: 15})
	assert.NotNil(t, empty.Data)
	assert.Equal(t, 1, empty.LastPage)
}
