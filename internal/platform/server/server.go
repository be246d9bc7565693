package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andino-labs/andino/internal/audit"
	"github.com/andino-labs/andino/internal/auth"
	"github.com/andino-labs/andino/internal/platform/middleware"
	"github.com/andino-labs/andino/internal/rbac"
	"github.com/andino-labs/andino/internal/tenant"
)

// Dependencies holds all injected dependencies for the server.
type Dependencies struct {
	Pool               *pgxpool.Pool
	Auth               *auth.Service
	AuthHandler        *auth.Handler
	Resolver           *rbac.Resolver
	PermissionsHandler *rbac.PermissionsHandler
	CompanyHandler     *tenant.CompanyHandler
	EmployeeHandler    *tenant.EmployeeHandler
	RoleHandler        *tenant.RoleHandler
	FileHandler        *tenant.FileHandler
	AuditHandler       *audit.Handler
	DenialLogger       rbac.DenialLogger
	Logger             *slog.Logger
	CORSAllowedOrigins []string
}

type Server struct {
	httpServer *http.Server
	pool       *pgxpool.Pool
	handler    http.Handler
}

// New wires the API surface: a public tree (health, logins, refresh)
// plus one authenticated tree per guard.
func New(addr string, deps Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		pool: deps.Pool,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReadiness)

	if deps.AuthHandler != nil && deps.Auth != nil {
		registerAuthRoutes(mux, deps)
	}
	if deps.Auth != nil {
		registerSuperadminRoutes(mux, deps)
		registerOwnerRoutes(mux, deps)
		registerEmployeeRoutes(mux, deps)
	}

	var handler http.Handler = mux
	if deps.Logger != nil {
		handler = middleware.Logging(deps.Logger)(handler)
	}
	handler = middleware.RequestID(handler)
	if len(deps.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(deps.CORSAllowedOrigins)(handler)
	}

	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

// registerAuthRoutes mounts the public authentication endpoints. The
// refresh and logout endpoints authenticate with the refresh token in
// the request body, so they need no middleware.
func registerAuthRoutes(mux *http.ServeMux, deps Dependencies) {
	h := deps.AuthHandler

	mux.Handle("POST /api/v1/superadmin/auth/login", h.HandleLogin(auth.GuardSuperadmin))
	mux.Handle("POST /api/v1/owner/auth/login", h.HandleLogin(auth.GuardOwner))
	mux.Handle("POST /api/v1/auth/login", h.HandleLogin(auth.GuardEmployee))

	for _, prefix := range []string{"/api/v1/superadmin/auth", "/api/v1/owner/auth", "/api/v1/auth"} {
		mux.HandleFunc("POST "+prefix+"/refresh", h.HandleRefresh)
		mux.HandleFunc("POST "+prefix+"/logout", h.HandleLogout)
	}

	requireSuperadmin := auth.RequireGuard(deps.Auth, auth.GuardSuperadmin)
	requireOwner := auth.RequireGuard(deps.Auth, auth.GuardOwner)
	requireEmployee := auth.RequireGuard(deps.Auth, auth.GuardEmployee)

	mux.Handle("GET /api/v1/superadmin/auth/me", requireSuperadmin(http.HandlerFunc(h.HandleMe)))
	mux.Handle("GET /api/v1/owner/auth/me", requireOwner(http.HandlerFunc(h.HandleMe)))
	mux.Handle("GET /api/v1/auth/me", requireEmployee(http.HandlerFunc(h.HandleMe)))
	mux.Handle("POST /api/v1/auth/check-permission", requireEmployee(http.HandlerFunc(h.HandleCheckPermission)))
}

// registerSuperadminRoutes mounts platform administration: every
// company, global roles, and the audit trail.
func registerSuperadminRoutes(mux *http.ServeMux, deps Dependencies) {
	guard := auth.RequireGuard(deps.Auth, auth.GuardSuperadmin)
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, guard(fn))
	}

	if deps.CompanyHandler != nil {
		h := deps.CompanyHandler
		handle("GET /api/v1/superadmin/companies", h.HandleList)
		handle("POST /api/v1/superadmin/companies", h.HandleCreate)
		handle("GET /api/v1/superadmin/companies/{id}", h.HandleGet)
		handle("PUT /api/v1/superadmin/companies/{id}", h.HandleUpdate)
		handle("PATCH /api/v1/superadmin/companies/{id}/toggle-status", h.HandleToggleStatus)
		handle("DELETE /api/v1/superadmin/companies/{id}", h.HandleDelete)
		handle("POST /api/v1/superadmin/companies/{id}/restore", h.HandleRestore)
	}

	if deps.RoleHandler != nil {
		h := deps.RoleHandler
		handle("GET /api/v1/superadmin/roles", h.HandleList)
		handle("POST /api/v1/superadmin/roles", h.HandleCreate)
		handle("GET /api/v1/superadmin/roles/{id}", h.HandleGet)
	}

	if deps.AuditHandler != nil {
		handle("GET /api/v1/superadmin/audit/events", deps.AuditHandler.HandleListEvents)
	}
}

// registerOwnerRoutes mounts company and staff management for owners,
// scoped to the companies they own.
func registerOwnerRoutes(mux *http.ServeMux, deps Dependencies) {
	guard := auth.RequireGuard(deps.Auth, auth.GuardOwner)
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, guard(fn))
	}

	if deps.CompanyHandler != nil {
		h := deps.CompanyHandler
		handle("GET /api/v1/owner/companies", h.HandleList)
		handle("POST /api/v1/owner/companies", h.HandleCreate)
		handle("GET /api/v1/owner/companies/{id}", h.HandleGet)
		handle("PUT /api/v1/owner/companies/{id}", h.HandleUpdate)
		handle("PATCH /api/v1/owner/companies/{id}/toggle-status", h.HandleToggleStatus)
		handle("DELETE /api/v1/owner/companies/{id}", h.HandleDelete)
		handle("POST /api/v1/owner/companies/{id}/restore", h.HandleRestore)
	}

	if deps.EmployeeHandler != nil {
		h := deps.EmployeeHandler
		handle("GET /api/v1/owner/users", h.HandleList)
		handle("POST /api/v1/owner/users", h.HandleCreate)
		handle("GET /api/v1/owner/users/{id}", h.HandleGet)
		handle("PUT /api/v1/owner/users/{id}", h.HandleUpdate)
		handle("PATCH /api/v1/owner/users/{id}/toggle-status", h.HandleToggleStatus)
		handle("DELETE /api/v1/owner/users/{id}", h.HandleDelete)
		handle("POST /api/v1/owner/users/{id}/restore", h.HandleRestore)
		handle("POST /api/v1/owner/users/{id}/reset-password", h.HandleResetPassword)
		handle("PUT /api/v1/owner/users/{id}/roles", h.HandleSyncRoles)
		handle("DELETE /api/v1/owner/users/{id}/roles/{roleID}", h.HandleRemoveRole)
	}

	if deps.RoleHandler != nil {
		h := deps.RoleHandler
		handle("GET /api/v1/owner/roles", h.HandleList)
		handle("POST /api/v1/owner/roles", h.HandleCreate)
		handle("GET /api/v1/owner/roles/{id}", h.HandleGet)
		handle("PUT /api/v1/owner/roles/{id}", h.HandleUpdate)
		handle("DELETE /api/v1/owner/roles/{id}", h.HandleDelete)
	}

	if deps.FileHandler != nil {
		h := deps.FileHandler
		handle("GET /api/v1/owner/files", h.HandleList)
		handle("POST /api/v1/owner/files", h.HandleRegister)
		handle("GET /api/v1/owner/files/{id}", h.HandleGet)
		handle("GET /api/v1/owner/files/{id}/download", h.HandleDownload)
		handle("DELETE /api/v1/owner/files/{id}", h.HandleDelete)
	}
}

// registerEmployeeRoutes mounts the company-internal API. Every route
// passes the guard check and then a per-permission RBAC check.
func registerEmployeeRoutes(mux *http.ServeMux, deps Dependencies) {
	if deps.Resolver == nil {
		return
	}
	guard := auth.RequireGuard(deps.Auth, auth.GuardEmployee)

	var rbacOpts []rbac.MiddlewareOption
	if deps.DenialLogger != nil {
		rbacOpts = append(rbacOpts, rbac.WithDenialLogger(deps.DenialLogger))
	}
	handle := func(pattern, permission string, fn http.HandlerFunc) {
		mux.Handle(pattern, guard(rbac.RequirePermission(deps.Resolver, permission, rbacOpts...)(fn)))
	}

	if deps.EmployeeHandler != nil {
		h := deps.EmployeeHandler
		handle("GET /api/v1/users", "employees.view", h.HandleList)
		handle("POST /api/v1/users", "employees.create", h.HandleCreate)
		handle("GET /api/v1/users/{id}", "employees.view", h.HandleGet)
		handle("PUT /api/v1/users/{id}", "employees.edit", h.HandleUpdate)
		handle("PATCH /api/v1/users/{id}/toggle-status", "employees.edit", h.HandleToggleStatus)
		handle("DELETE /api/v1/users/{id}", "employees.delete", h.HandleDelete)
		handle("POST /api/v1/users/{id}/restore", "employees.delete", h.HandleRestore)
		handle("POST /api/v1/users/{id}/reset-password", "employees.edit", h.HandleResetPassword)
		handle("PUT /api/v1/users/{id}/roles", "employees.manage-roles", h.HandleSyncRoles)
		handle("DELETE /api/v1/users/{id}/roles/{roleID}", "employees.manage-roles", h.HandleRemoveRole)
		handle("POST /api/v1/users/{id}/permissions", "employees.manage-permissions", h.HandleSetOverride)
		handle("DELETE /api/v1/users/{id}/permissions/{permission}", "employees.manage-permissions", h.HandleClearOverride)
	}

	if deps.RoleHandler != nil {
		h := deps.RoleHandler
		handle("GET /api/v1/roles", "roles.view", h.HandleList)
		handle("POST /api/v1/roles", "roles.create", h.HandleCreate)
		handle("GET /api/v1/roles/{id}", "roles.view", h.HandleGet)
		handle("PUT /api/v1/roles/{id}", "roles.edit", h.HandleUpdate)
		handle("DELETE /api/v1/roles/{id}", "roles.delete", h.HandleDelete)
		handle("PUT /api/v1/roles/{id}/permissions", "roles.edit", h.HandleSyncPermissions)
	}

	if deps.FileHandler != nil {
		h := deps.FileHandler
		handle("GET /api/v1/files", "files.view", h.HandleList)
		handle("POST /api/v1/files", "files.upload", h.HandleRegister)
		handle("GET /api/v1/files/{id}", "files.view", h.HandleGet)
		handle("GET /api/v1/files/{id}/download", "files.download", h.HandleDownload)
		handle("DELETE /api/v1/files/{id}", "files.delete", h.HandleDelete)

		handle("GET /api/v1/categories", "files.view", h.HandleListCategories)
		handle("POST /api/v1/categories", "files.manage", h.HandleCreateCategory)
		handle("GET /api/v1/categories/{id}", "files.view", h.HandleGetCategory)
		handle("PUT /api/v1/categories/{id}", "files.manage", h.HandleUpdateCategory)
		handle("DELETE /api/v1/categories/{id}", "files.manage", h.HandleDeleteCategory)
	}

	if deps.PermissionsHandler != nil {
		handle("GET /api/v1/roles/permissions", "roles.view", deps.PermissionsHandler.HandleList)
	}
}

// Handler returns the full middleware-wrapped handler chain (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	slog.Info("server starting", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.pool == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database not connected",
		})
		return
	}

	if err := s.pool.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database ping failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
