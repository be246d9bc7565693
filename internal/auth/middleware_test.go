package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andino-labs/andino/internal/auth"
)

func loginAs(t *testing.T, svc *auth.Service, guard auth.Guard, email string) *auth.TokenPair {
	t.Helper()
	_, pair, err := svc.Login(context.Background(), guard, email, "secret123", "")
	require.NoError(t, err)
	return pair
}

func TestRequireGuard_Allows(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.add(auth.GuardOwner, &auth.Account{
		ID:           1,
		Email:        "owner@acme.ec",
		PasswordHash: hashPassword(t, "secret123"),
		Active:       true,
	})
	pair := loginAs(t, svc, auth.GuardOwner, "owner@acme.ec")

	var got *auth.Principal
	handler := auth.RequireGuard(svc, auth.GuardOwner)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, auth.GuardOwner, got.Guard)
}

func TestRequireGuard_MissingToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	handler := auth.RequireGuard(svc, auth.GuardOwner)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireGuard_MalformedHeader(t *testing.T) {
	svc, _, _ := newTestService(t)

	handler := auth.RequireGuard(svc, auth.GuardOwner)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireGuard_WrongGuardIsForbidden(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.add(auth.GuardOwner, &auth.Account{
		ID:           1,
		Email:        "owner@acme.ec",
		PasswordHash: hashPassword(t, "secret123"),
		Active:       true,
	})
	pair := loginAs(t, svc, auth.GuardOwner, "owner@acme.ec")

	// A valid owner token on a superadmin route: authenticated but
	// forbidden, never 401.
	handler := auth.RequireGuard(svc, auth.GuardSuperadmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireGuard_DeactivatedAccount(t *testing.T) {
	svc, store, _ := newTestService(t)
	account := &auth.Account{
		ID:           1,
		Email:        "owner@acme.ec",
		PasswordHash: hashPassword(t, "secret123"),
		Active:       true,
	}
	store.add(auth.GuardOwner, account)
	pair := loginAs(t, svc, auth.GuardOwner, "owner@acme.ec")

	account.Active = false

	handler := auth.RequireGuard(svc, auth.GuardOwner)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
