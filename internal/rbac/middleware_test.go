package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/andino-labs/andino/internal/auth"
)

type denialRecorder struct {
	employeeID int64
	permission string
	calls      int
}

func (d *denialRecorder) LogDenial(ctx context.Context, employeeID int64, permission, reason string) {
	d.employeeID = employeeID
	d.permission = permission
	d.calls++
}

func employeeRequest(t *testing.T, id int64) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
	p := &auth.Principal{Guard: auth.GuardEmployee, ID: id, Active: true, CompanyID: 7}
	return req.WithContext(auth.WithPrincipal(req.Context(), p))
}

func TestRequirePermission(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("allowed passes through", func(t *testing.T) {
		resolver := NewResolver(&fakeStore{
			rolePerms: []Permission{perm("invoices.view")},
			overrides: map[string]bool{},
		})
		rec := httptest.NewRecorder()
		RequirePermission(resolver, "invoices.view")(next).ServeHTTP(rec, employeeRequest(t, 3))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("denied returns 403 and logs", func(t *testing.T) {
		resolver := NewResolver(&fakeStore{overrides: map[string]bool{}})
		denials := &denialRecorder{}
		rec := httptest.NewRecorder()
		RequirePermission(resolver, "invoices.delete", WithDenialLogger(denials))(next).ServeHTTP(rec, employeeRequest(t, 3))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "invoices.delete")
		assert.Equal(t, 1, denials.calls)
		assert.Equal(t, int64(3), denials.employeeID)
		assert.Equal(t, "invoices.delete", denials.permission)
	})

	t.Run("no principal returns 401", func(t *testing.T) {
		resolver := NewResolver(&fakeStore{overrides: map[string]bool{}})
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
		RequirePermission(resolver, "invoices.view")(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("non-employee principal returns 401", func(t *testing.T) {
		resolver := NewResolver(&fakeStore{overrides: map[string]bool{}})
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
		p := &auth.Principal{Guard: auth.GuardOwner, ID: 9, Active: true}
		req = req.WithContext(auth.WithPrincipal(req.Context(), p))
		RequirePermission(resolver, "invoices.view")(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
