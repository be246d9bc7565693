package tenant_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/andino-labs/andino/internal/auth"
	"github.com/andino-labs/andino/internal/platform/database"
	"github.com/andino-labs/andino/internal/tenant"
)

func ownerPrincipalFor(id int64) *auth.Principal {
	return &auth.Principal{Guard: auth.GuardOwner, ID: id, Active: true}
}

func setupTestDB(t *testing.T) (*database.Pool, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("andino_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
		),
	)
	require.NoError(t, err)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = database.RunMigrations(connStr, "file://../../migrations")
	require.NoError(t, err)

	pool, err := database.Connect(ctx, connStr, 5)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup
}

func seedOwner(t *testing.T, pool *database.Pool, email string) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO owners (name, email, password_hash) VALUES ('Dueño', $1, 'x') RETURNING id`,
		email,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestCompanyStoreLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ownerID := seedOwner(t, pool, "dueno@example.com")
	store := tenant.NewPGCompanyStore(pool)

	created, err := store.Create(ctx, ownerID, tenant.CompanyInput{
		Name: "Ferretería Central", RUC: "1790012345001",
	})
	require.NoError(t, err)
	assert.True(t, created.IsActive)

	// Duplicate RUC is rejected by the database constraint.
	_, err = store.Create(ctx, ownerID, tenant.CompanyInput{
		Name: "Otra", RUC: "1790012345001",
	})
	var dup *tenant.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "ruc", dup.Field)

	// Visible to its owner, invisible to another.
	ownerScope := tenant.ScopeFor(ownerPrincipalFor(ownerID))
	got, err := store.GetByID(ctx, ownerScope, created.ID, false)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	otherID := seedOwner(t, pool, "otro@example.com")
	_, err = store.GetByID(ctx, tenant.ScopeFor(ownerPrincipalFor(otherID)), created.ID, false)
	assert.ErrorIs(t, err, tenant.ErrNotFound)

	// Soft delete hides the company until restored.
	require.NoError(t, store.SoftDelete(ctx, ownerScope, created.ID))
	_, err = store.GetByID(ctx, ownerScope, created.ID, false)
	assert.ErrorIs(t, err, tenant.ErrNotFound)

	trashed, err := store.GetByID(ctx, ownerScope, created.ID, true)
	require.NoError(t, err)
	assert.NotNil(t, trashed.DeletedAt)

	restored, err := store.Restore(ctx, ownerScope, created.ID)
	require.NoError(t, err)
	assert.Nil(t, restored.DeletedAt)
}

func TestCompanyStoreSearchAndPagination(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ownerID := seedOwner(t, pool, "dueno@example.com")
	store := tenant.NewPGCompanyStore(pool)

	names := []string{"Alfa Motors", "Beta Seguros", "Alfa Seguros"}
	for i, name := range names {
		_, err := store.Create(ctx, ownerID, tenant.CompanyInput{
			Name: name, RUC: "179001234500" + string(rune('1'+i)),
		})
		require.NoError(t, err)
	}

	scope := tenant.ScopeFor(ownerPrincipalFor(ownerID))
	result, err := store.List(ctx, scope, tenant.Page{Search: "Alfa"}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Total)

	paged, err := store.List(ctx, scope, tenant.Page{Number: 2, PerPage: 2}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), paged.Total)
	assert.Len(t, paged.Data, 1)
	assert.Equal(t, 2, paged.LastPage)
}

func TestEmployeeStoreRolesAndOverrides(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ownerID := seedOwner(t, pool, "dueno@example.com")
	companies := tenant.NewPGCompanyStore(pool)
	company, err := companies.Create(ctx, ownerID, tenant.CompanyInput{
		Name: "Ferretería Central", RUC: "1790012345001",
	})
	require.NoError(t, err)

	roles := tenant.NewPGRoleStore(pool)
	scope := tenant.ScopeCompany(company.ID)

	// Seeded system roles come from the migrations.
	admin := findRoleByName(t, roles, scope, "admin")
	sales := findRoleByName(t, roles, scope, "sales")

	employees := tenant.NewPGEmployeeStore(pool)

	_, err = employees.Create(ctx, scope, company.ID, tenant.EmployeeInput{
		Name: "Ana", Email: "ana@example.com", Identification: "0912345678",
	}, "hash", nil)
	assert.ErrorIs(t, err, tenant.ErrLastRole)

	e, err := employees.Create(ctx, scope, company.ID, tenant.EmployeeInput{
		Name: "Ana", Email: "ana@example.com", Identification: "0912345678",
	}, "hash", []int64{admin.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, e.Roles)

	// The only role cannot be removed.
	err = employees.RemoveRole(ctx, scope, e.ID, admin.ID)
	assert.ErrorIs(t, err, tenant.ErrLastRole)

	require.NoError(t, employees.SyncRoles(ctx, scope, e.ID, []int64{admin.ID, sales.ID}))
	require.NoError(t, employees.RemoveRole(ctx, scope, e.ID, admin.ID))

	got, err := employees.GetByID(ctx, scope, e.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"sales"}, got.Roles)

	// Direct overrides round-trip.
	require.NoError(t, employees.SetOverride(ctx, scope, e.ID, "reports.view", true))
	require.NoError(t, employees.SetOverride(ctx, scope, e.ID, "invoices.delete", false))

	overrides, err := employees.Overrides(ctx, scope, e.ID)
	require.NoError(t, err)
	assert.Len(t, overrides, 2)

	require.NoError(t, employees.ClearOverride(ctx, scope, e.ID, "reports.view"))
	overrides, err = employees.Overrides(ctx, scope, e.ID)
	require.NoError(t, err)
	assert.Len(t, overrides, 1)

	// Unknown permission name behaves like a missing resource.
	err = employees.SetOverride(ctx, scope, e.ID, "nope.nothing", true)
	assert.ErrorIs(t, err, tenant.ErrNotFound)
}

func TestEmployeeStoreCrossTenantInvisible(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ownerID := seedOwner(t, pool, "dueno@example.com")
	companies := tenant.NewPGCompanyStore(pool)
	a, err := companies.Create(ctx, ownerID, tenant.CompanyInput{Name: "A", RUC: "1790011111001"})
	require.NoError(t, err)
	b, err := companies.Create(ctx, ownerID, tenant.CompanyInput{Name: "B", RUC: "1790022222001"})
	require.NoError(t, err)

	roles := tenant.NewPGRoleStore(pool)
	admin := findRoleByName(t, roles, tenant.ScopeCompany(a.ID), "admin")

	employees := tenant.NewPGEmployeeStore(pool)
	e, err := employees.Create(ctx, tenant.ScopeCompany(a.ID), a.ID, tenant.EmployeeInput{
		Name: "Ana", Email: "ana@example.com", Identification: "0912345678",
	}, "hash", []int64{admin.ID})
	require.NoError(t, err)

	// From company B's scope, company A's employee does not exist.
	_, err = employees.GetByID(ctx, tenant.ScopeCompany(b.ID), e.ID, false)
	assert.ErrorIs(t, err, tenant.ErrNotFound)

	err = employees.SoftDelete(ctx, tenant.ScopeCompany(b.ID), e.ID)
	assert.ErrorIs(t, err, tenant.ErrNotFound)

	// Creating into a company outside scope is also a 404 shape.
	_, err = employees.Create(ctx, tenant.ScopeCompany(b.ID), a.ID, tenant.EmployeeInput{
		Name: "Eva", Email: "eva@example.com", Identification: "0998765432",
	}, "hash", []int64{admin.ID})
	assert.ErrorIs(t, err, tenant.ErrNotFound)
}

func TestRoleStoreSystemAndCustomRoles(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ownerID := seedOwner(t, pool, "dueno@example.com")
	companies := tenant.NewPGCompanyStore(pool)
	company, err := companies.Create(ctx, ownerID, tenant.CompanyInput{
		Name: "Ferretería Central", RUC: "1790012345001",
	})
	require.NoError(t, err)

	roles := tenant.NewPGRoleStore(pool)
	scope := tenant.ScopeCompany(company.ID)

	admin := findRoleByName(t, roles, scope, "admin")
	_, err = roles.Update(ctx, scope, admin.ID, tenant.RoleInput{Name: "admin", DisplayName: "Admin"})
	assert.ErrorIs(t, err, tenant.ErrSystemRoleImmutable)
	err = roles.Delete(ctx, scope, admin.ID)
	assert.ErrorIs(t, err, tenant.ErrSystemRoleImmutable)

	custom, err := roles.Create(ctx, &company.ID, tenant.RoleInput{
		Name: "cajero", DisplayName: "Cajero",
		Permissions: []string{"invoices.view", "invoices.create"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"invoices.create", "invoices.view"}, custom.Permissions)

	// Same name in the same company collides; a global "cajero" would not.
	_, err = roles.Create(ctx, &company.ID, tenant.RoleInput{Name: "cajero", DisplayName: "Otro"})
	var dup *tenant.DuplicateError
	require.ErrorAs(t, err, &dup)

	// Sync with an unknown permission rolls back entirely.
	_, err = roles.SyncPermissions(ctx, scope, custom.ID, []string{"invoices.view", "nope.nothing"})
	require.Error(t, err)
	got, err := roles.GetByID(ctx, scope, custom.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"invoices.create", "invoices.view"}, got.Permissions)

	synced, err := roles.SyncPermissions(ctx, scope, custom.ID, []string{"reports.view"})
	require.NoError(t, err)
	assert.Equal(t, []string{"reports.view"}, synced.Permissions)
}

func findRoleByName(t *testing.T, store tenant.RoleStore, scope tenant.Scope, name string) *tenant.Role {
	t.Helper()
	result, err := store.List(context.Background(), scope, tenant.Page{PerPage: 100})
	require.NoError(t, err)
	for _, r := range result.Data {
		if r.Name == name {
			return &r
		}
	}
	t.Fatalf("role %q not seeded", name)
	return nil
}
