package tenant

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andino-labs/andino/internal/auth"
)

type fakeRoleStore struct {
	roles     map[int64]*Role
	assigned  map[int64]int64 // role -> employee count
	nextID    int64
}

func newFakeRoleStore() *fakeRoleStore {
	return &fakeRoleStore{roles: map[int64]*Role{}, assigned: map[int64]int64{}, nextID: 1}
}

func (f *fakeRoleStore) visible(scope Scope, r *Role) bool {
	if r.CompanyID == nil || scope.All() {
		return true
	}
	return scope.CompanyID() == *r.CompanyID
}

func (f *fakeRoleStore) Create(ctx context.Context, companyID *int64, in RoleInput) (*Role, error) {
	for _, r := range f.roles {
		if r.Name == in.Name && sameCompany(r.CompanyID, companyID) {
			return nil, &DuplicateError{Field: "name"}
		}
	}
	r := &Role{ID: f.nextID, CompanyID: companyID, Name: in.Name,
		DisplayName: in.DisplayName, Permissions: slices.Clone(in.Permissions)}
	f.roles[r.ID] = r
	f.nextID++
	return r, nil
}

func sameCompany(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (f *fakeRoleStore) GetByID(ctx context.Context, scope Scope, id int64) (*Role, error) {
	r, ok := f.roles[id]
	if !ok || !f.visible(scope, r) {
		return nil, ErrNotFound
	}
	return r, nil
}

func (f *fakeRoleStore) List(ctx context.Context, scope Scope, page Page) (PageResult[Role], error) {
	var out []Role
	for _, r := range f.roles {
		if f.visible(scope, r) {
			out = append(out, *r)
		}
	}
	return NewPageResult(out, int64(len(out)), page.Normalize()), nil
}

func (f *fakeRoleStore) Update(ctx context.Context, scope Scope, id int64, in RoleInput) (*Role, error) {
	r, err := f.GetByID(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if r.IsSystem {
		return nil, ErrSystemRoleImmutable
	}
	r.Name, r.DisplayName, r.Description = in.Name, in.DisplayName, in.Description
	return r, nil
}

func (f *fakeRoleStore) Delete(ctx context.Context, scope Scope, id int64) error {
	r, err := f.GetByID(ctx, scope, id)
	if err != nil {
		return err
	}
	if r.IsSystem {
		return ErrSystemRoleImmutable
	}
	if f.assigned[id] > 0 {
		return ErrRoleInUse
	}
	delete(f.roles, id)
	return nil
}

func (f *fakeRoleStore) SyncPermissions(ctx context.Context, scope Scope, id int64, permissions []string) (*Role, error) {
	r, err := f.GetByID(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if r.IsSystem {
		return nil, ErrSystemRoleImmutable
	}
	r.Permissions = slices.Clone(permissions)
	return r, nil
}

func seedSystemRole(store *fakeRoleStore, name string) *Role {
	r := &Role{ID: store.nextID, Name: name, DisplayName: name, IsSystem: true}
	store.roles[r.ID] = r
	store.nextID++
	return r
}

func TestRoleHandlerCreate(t *testing.T) {
	store := newFakeRoleStore()
	h := NewRoleHandler(store, testLogger())

	t.Run("employee creates role in own company", func(t *testing.T) {
		payload := `{"name":"cajero","display_name":"Cajero","permissions":["invoices.view"]}`
		req := asPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/roles",
			bytes.NewBufferString(payload)), adminPrincipal(7))
		rec := httptest.NewRecorder()
		h.HandleCreate(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		var created *Role
		for _, r := range store.roles {
			created = r
		}
		require.NotNil(t, created)
		require.NotNil(t, created.CompanyID)
		assert.Equal(t, int64(7), *created.CompanyID)
	})

	t.Run("duplicate name in scope is a validation error", func(t *testing.T) {
		payload := `{"name":"cajero","display_name":"Cajero"}`
		req := asPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/roles",
			bytes.NewBufferString(payload)), adminPrincipal(7))
		rec := httptest.NewRecorder()
		h.HandleCreate(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "name")
	})

	t.Run("superadmin may create a global role", func(t *testing.T) {
		payload := `{"name":"soporte","display_name":"Soporte"}`
		req := asPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/superadmin/roles",
			bytes.NewBufferString(payload)), &auth.Principal{Guard: auth.GuardSuperadmin, ID: 1, Active: true})
		rec := httptest.NewRecorder()
		h.HandleCreate(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		var created *Role
		for _, r := range store.roles {
			if r.Name == "soporte" {
				created = r
			}
		}
		require.NotNil(t, created)
		assert.Nil(t, created.CompanyID)
	})
}

func TestRoleHandlerSystemRoleProtection(t *testing.T) {
	store := newFakeRoleStore()
	system := seedSystemRole(store, "admin")
	h := NewRoleHandler(store, testLogger())

	t.Run("update rejected", func(t *testing.T) {
		payload := `{"name":"admin","display_name":"Administrador"}`
		req := httptest.NewRequest(http.MethodPut, "/api/v1/roles/{id}", bytes.NewBufferString(payload))
		req.SetPathValue("id", fmtInt(system.ID))
		rec := httptest.NewRecorder()
		h.HandleUpdate(rec, asPrincipal(req, adminPrincipal(7)))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "roles del sistema")
	})

	t.Run("delete rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/roles/{id}", nil)
		req.SetPathValue("id", fmtInt(system.ID))
		rec := httptest.NewRecorder()
		h.HandleDelete(rec, asPrincipal(req, adminPrincipal(7)))

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("permission sync rejected", func(t *testing.T) {
		payload := `{"permissions":["invoices.view"]}`
		req := httptest.NewRequest(http.MethodPut, "/api/v1/roles/{id}/permissions", bytes.NewBufferString(payload))
		req.SetPathValue("id", fmtInt(system.ID))
		rec := httptest.NewRecorder()
		h.HandleSyncPermissions(rec, asPrincipal(req, adminPrincipal(7)))

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestRoleHandlerDeleteInUse(t *testing.T) {
	store := newFakeRoleStore()
	companyID := int64(7)
	role, err := store.Create(context.Background(), &companyID, RoleInput{Name: "cajero", DisplayName: "Cajero"})
	require.NoError(t, err)
	store.assigned[role.ID] = 2

	h := NewRoleHandler(store, testLogger())
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/roles/{id}", nil)
	req.SetPathValue("id", fmtInt(role.ID))
	rec := httptest.NewRecorder()
	h.HandleDelete(rec, asPrincipal(req, adminPrincipal(7)))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "asignado")
	assert.Contains(t, store.roles, role.ID)
}

func TestRoleHandlerScopeIsolation(t *testing.T) {
	store := newFakeRoleStore()
	otherCompany := int64(9)
	role, err := store.Create(context.Background(), &otherCompany, RoleInput{Name: "cajero", DisplayName: "Cajero"})
	require.NoError(t, err)

	h := NewRoleHandler(store, testLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/roles/{id}", nil)
	req.SetPathValue("id", fmtInt(role.ID))
	rec := httptest.NewRecorder()
	h.HandleGet(rec, asPrincipal(req, adminPrincipal(7)))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
