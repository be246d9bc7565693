package tenant

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andino-labs/andino/internal/auth"
)

type fakeEmployeeStore struct {
	employees map[int64]*Employee
	roles     map[int64][]int64 // employee -> role IDs
	overrides map[int64]map[string]bool
	passwords map[int64]string
	nextID    int64
}

func newFakeEmployeeStore() *fakeEmployeeStore {
	return &fakeEmployeeStore{
		employees: map[int64]*Employee{},
		roles:     map[int64][]int64{},
		overrides: map[int64]map[string]bool{},
		passwords: map[int64]string{},
		nextID:    1,
	}
}

func (f *fakeEmployeeStore) visible(scope Scope, e *Employee) bool {
	return scope.All() || scope.CompanyID() == e.CompanyID
}

func (f *fakeEmployeeStore) Create(ctx context.Context, scope Scope, companyID int64, in EmployeeInput, hash string, roleIDs []int64) (*Employee, error) {
	if len(roleIDs) == 0 {
		return nil, ErrLastRole
	}
	for _, e := range f.employees {
		if e.Email == in.Email {
			return nil, &DuplicateError{Field: "email"}
		}
	}
	e := &Employee{ID: f.nextID, CompanyID: companyID, Name: in.Name, Email: in.Email,
		Identification: in.Identification, IsActive: true}
	f.employees[e.ID] = e
	f.roles[e.ID] = slices.Clone(roleIDs)
	f.passwords[e.ID] = hash
	f.nextID++
	return e, nil
}

func (f *fakeEmployeeStore) GetByID(ctx context.Context, scope Scope, id int64, includeDeleted bool) (*Employee, error) {
	e, ok := f.employees[id]
	if !ok || !f.visible(scope, e) || (e.DeletedAt != nil && !includeDeleted) {
		return nil, ErrNotFound
	}
	return e, nil
}

func (f *fakeEmployeeStore) List(ctx context.Context, scope Scope, page Page, includeDeleted bool) (PageResult[Employee], error) {
	var out []Employee
	for _, e := range f.employees {
		if f.visible(scope, e) && (e.DeletedAt == nil || includeDeleted) {
			out = append(out, *e)
		}
	}
	return NewPageResult(out, int64(len(out)), page.Normalize()), nil
}

func (f *fakeEmployeeStore) Update(ctx context.Context, scope Scope, id int64, in EmployeeInput) (*Employee, error) {
	e, err := f.GetByID(ctx, scope, id, false)
	if err != nil {
		return nil, err
	}
	e.Name, e.Email, e.Identification = in.Name, in.Email, in.Identification
	return e, nil
}

func (f *fakeEmployeeStore) SetActive(ctx context.Context, scope Scope, id int64, active bool) (*Employee, error) {
	e, err := f.GetByID(ctx, scope, id, false)
	if err != nil {
		return nil, err
	}
	e.IsActive = active
	return e, nil
}

func (f *fakeEmployeeStore) SoftDelete(ctx context.Context, scope Scope, id int64) error {
	e, err := f.GetByID(ctx, scope, id, false)
	if err != nil {
		return err
	}
	now := time.Now()
	e.DeletedAt = &now
	return nil
}

func (f *fakeEmployeeStore) Restore(ctx context.Context, scope Scope, id int64) (*Employee, error) {
	e, ok := f.employees[id]
	if !ok || !f.visible(scope, e) || e.DeletedAt == nil {
		return nil, ErrNotFound
	}
	e.DeletedAt = nil
	return e, nil
}

func (f *fakeEmployeeStore) UpdatePassword(ctx context.Context, scope Scope, id int64, hash string) error {
	if _, err := f.GetByID(ctx, scope, id, false); err != nil {
		return err
	}
	f.passwords[id] = hash
	return nil
}

func (f *fakeEmployeeStore) SyncRoles(ctx context.Context, scope Scope, id int64, roleIDs []int64) error {
	if len(roleIDs) == 0 {
		return ErrLastRole
	}
	if _, err := f.GetByID(ctx, scope, id, false); err != nil {
		return err
	}
	f.roles[id] = slices.Clone(roleIDs)
	return nil
}

func (f *fakeEmployeeStore) RemoveRole(ctx context.Context, scope Scope, id, roleID int64) error {
	if _, err := f.GetByID(ctx, scope, id, false); err != nil {
		return err
	}
	current := f.roles[id]
	if len(current) <= 1 {
		return ErrLastRole
	}
	idx := slices.Index(current, roleID)
	if idx < 0 {
		return ErrNotFound
	}
	f.roles[id] = slices.Delete(current, idx, idx+1)
	return nil
}

func (f *fakeEmployeeStore) SetOverride(ctx context.Context, scope Scope, id int64, permission string, granted bool) error {
	if _, err := f.GetByID(ctx, scope, id, false); err != nil {
		return err
	}
	if f.overrides[id] == nil {
		f.overrides[id] = map[string]bool{}
	}
	f.overrides[id][permission] = granted
	return nil
}

func (f *fakeEmployeeStore) ClearOverride(ctx context.Context, scope Scope, id int64, permission string) error {
	if _, ok := f.overrides[id][permission]; !ok {
		return ErrNotFound
	}
	delete(f.overrides[id], permission)
	return nil
}

func (f *fakeEmployeeStore) Overrides(ctx context.Context, scope Scope, id int64) ([]EmployeeOverride, error) {
	if _, err := f.GetByID(ctx, scope, id, false); err != nil {
		return nil, err
	}
	var out []EmployeeOverride
	for p, g := range f.overrides[id] {
		out = append(out, EmployeeOverride{Permission: p, Granted: g})
	}
	return out, nil
}

func adminPrincipal(companyID int64) *auth.Principal {
	return &auth.Principal{Guard: auth.GuardEmployee, ID: 1, Active: true, CompanyID: companyID}
}

func seedEmployee(t *testing.T, store *fakeEmployeeStore, companyID int64, email string) *Employee {
	t.Helper()
	e, err := store.Create(context.Background(), ScopeCompany(companyID), companyID,
		EmployeeInput{Name: "Empleado", Email: email, Identification: "0912345678"},
		"hash", []int64{1})
	require.NoError(t, err)
	return e
}

func TestEmployeeHandlerCreate(t *testing.T) {
	store := newFakeEmployeeStore()
	h := NewEmployeeHandler(store, testLogger())

	t.Run("requires at least one role", func(t *testing.T) {
		payload := `{"name":"Ana","email":"ana@example.com","identification":"0912345678","password":"secret123","role_ids":[]}`
		req := asPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/users",
			bytes.NewBufferString(payload)), adminPrincipal(7))
		rec := httptest.NewRecorder()
		h.HandleCreate(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "role_ids")
	})

	t.Run("creates within own company", func(t *testing.T) {
		payload := `{"name":"Ana","email":"ana@example.com","identification":"0912345678","password":"secret123","role_ids":[2]}`
		req := asPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/users",
			bytes.NewBufferString(payload)), adminPrincipal(7))
		rec := httptest.NewRecorder()
		h.HandleCreate(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		var created *Employee
		for _, e := range store.employees {
			created = e
		}
		require.NotNil(t, created)
		assert.Equal(t, int64(7), created.CompanyID)
		// Password hash must never be the raw password.
		assert.NotEqual(t, "secret123", store.passwords[created.ID])
	})

	t.Run("duplicate email is a validation error", func(t *testing.T) {
		payload := `{"name":"Ana Dos","email":"ana@example.com","identification":"0998765432","password":"secret123","role_ids":[2]}`
		req := asPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/users",
			bytes.NewBufferString(payload)), adminPrincipal(7))
		rec := httptest.NewRecorder()
		h.HandleCreate(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "email")
	})
}

func TestEmployeeHandlerSelfActions(t *testing.T) {
	store := newFakeEmployeeStore()
	self := seedEmployee(t, store, 7, "yo@example.com")
	h := NewEmployeeHandler(store, testLogger())

	principal := &auth.Principal{Guard: auth.GuardEmployee, ID: self.ID, Active: true, CompanyID: 7}

	t.Run("cannot deactivate self", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/users/{id}/toggle-status", nil)
		req.SetPathValue("id", fmtInt(self.ID))
		rec := httptest.NewRecorder()
		h.HandleToggleStatus(rec, asPrincipal(req, principal))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.True(t, store.employees[self.ID].IsActive)
	})

	t.Run("cannot delete self", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/users/{id}", nil)
		req.SetPathValue("id", fmtInt(self.ID))
		rec := httptest.NewRecorder()
		h.HandleDelete(rec, asPrincipal(req, principal))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Nil(t, store.employees[self.ID].DeletedAt)
	})
}

func TestEmployeeHandlerRoles(t *testing.T) {
	store := newFakeEmployeeStore()
	e := seedEmployee(t, store, 7, "ana@example.com")
	h := NewEmployeeHandler(store, testLogger())

	t.Run("cannot remove the last role", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/users/{id}/roles/{roleID}", nil)
		req.SetPathValue("id", fmtInt(e.ID))
		req.SetPathValue("roleID", "1")
		rec := httptest.NewRecorder()
		h.HandleRemoveRole(rec, asPrincipal(req, adminPrincipal(7)))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "al menos un rol")
	})

	t.Run("sync replaces the role set", func(t *testing.T) {
		payload := `{"role_ids":[2,3]}`
		req := httptest.NewRequest(http.MethodPut, "/api/v1/users/{id}/roles",
			bytes.NewBufferString(payload))
		req.SetPathValue("id", fmtInt(e.ID))
		rec := httptest.NewRecorder()
		h.HandleSyncRoles(rec, asPrincipal(req, adminPrincipal(7)))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []int64{2, 3}, store.roles[e.ID])
	})

	t.Run("sync to empty set is rejected", func(t *testing.T) {
		payload := `{"role_ids":[]}`
		req := httptest.NewRequest(http.MethodPut, "/api/v1/users/{id}/roles",
			bytes.NewBufferString(payload))
		req.SetPathValue("id", fmtInt(e.ID))
		rec := httptest.NewRecorder()
		h.HandleSyncRoles(rec, asPrincipal(req, adminPrincipal(7)))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, []int64{2, 3}, store.roles[e.ID])
	})
}

func TestEmployeeHandlerOverrides(t *testing.T) {
	store := newFakeEmployeeStore()
	e := seedEmployee(t, store, 7, "ana@example.com")
	h := NewEmployeeHandler(store, testLogger())

	t.Run("grant", func(t *testing.T) {
		payload := `{"permission":"reports.view","granted":true}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/{id}/permissions",
			bytes.NewBufferString(payload))
		req.SetPathValue("id", fmtInt(e.ID))
		rec := httptest.NewRecorder()
		h.HandleSetOverride(rec, asPrincipal(req, adminPrincipal(7)))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, store.overrides[e.ID]["reports.view"])
	})

	t.Run("revoke", func(t *testing.T) {
		payload := `{"permission":"invoices.delete","granted":false}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/{id}/permissions",
			bytes.NewBufferString(payload))
		req.SetPathValue("id", fmtInt(e.ID))
		rec := httptest.NewRecorder()
		h.HandleSetOverride(rec, asPrincipal(req, adminPrincipal(7)))

		require.Equal(t, http.StatusOK, rec.Code)
		granted, ok := store.overrides[e.ID]["invoices.delete"]
		assert.True(t, ok)
		assert.False(t, granted)
	})

	t.Run("clear", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/users/{id}/permissions/{permission}", nil)
		req.SetPathValue("id", fmtInt(e.ID))
		req.SetPathValue("permission", "reports.view")
		rec := httptest.NewRecorder()
		h.HandleClearOverride(rec, asPrincipal(req, adminPrincipal(7)))

		require.Equal(t, http.StatusOK, rec.Code)
		_, ok := store.overrides[e.ID]["reports.view"]
		assert.False(t, ok)
	})
}

func TestEmployeeHandlerScopeIsolation(t *testing.T) {
	store := newFakeEmployeeStore()
	other := seedEmployee(t, store, 9, "otra@example.com")
	h := NewEmployeeHandler(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/{id}", nil)
	req.SetPathValue("id", fmtInt(other.ID))
	rec := httptest.NewRecorder()
	h.HandleGet(rec, asPrincipal(req, adminPrincipal(7)))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Usuario no encontrado")
}
