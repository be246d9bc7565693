package tenant

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/andino-labs/andino/internal/audit"
	"github.com/andino-labs/andino/internal/auth"
	"github.com/andino-labs/andino/internal/platform/httpx"
)

// EmployeeHandler serves employee management endpoints. Routes are
// guarded by employees.* permissions for the employee guard; owners and
// superadmins reach them through their own route trees.
type EmployeeHandler struct {
	store    EmployeeStore
	audit    audit.Logger
	logger   *slog.Logger
	validate *validator.Validate
}

func NewEmployeeHandler(store EmployeeStore, logger *slog.Logger, opts ...HandlerOption) *EmployeeHandler {
	o := buildHandlerOptions(opts)
	return &EmployeeHandler{
		store:    store,
		audit:    o.audit,
		logger:   logger,
		validate: httpx.NewValidator(),
	}
}

func (h *EmployeeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	scope := ScopeFor(auth.GetPrincipal(r.Context()))
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	result, err := h.store.List(r.Context(), scope, pageFromQuery(r), includeDeleted)
	if err != nil {
		h.logger.Error("listing employees", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
		return
	}
	httpx.OK(w, "", result)
}

func (h *EmployeeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Usuario no encontrado.")
		return
	}
	scope := ScopeFor(auth.GetPrincipal(r.Context()))
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	employee, err := h.store.GetByID(r.Context(), scope, id, includeDeleted)
	if err != nil {
		h.respondEmployeeError(w, err, "getting employee")
		return
	}

	overrides, err := h.store.Overrides(r.Context(), scope, id)
	if err != nil {
		h.respondEmployeeError(w, err, "listing overrides")
		return
	}
	httpx.OK(w, "", map[string]any{"user": employee, "direct_permissions": overrides})
}

type createEmployeeRequest struct {
	EmployeeInput
	CompanyID int64   `json:"company_id" validate:"omitempty,gt=0"`
	Password  string  `json:"password" validate:"required,min=8"`
	RoleIDs   []int64 `json:"role_ids" validate:"required,min=1,dive,gt=0"`
}

func (h *EmployeeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createEmployeeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationFailed(w, httpx.FieldErrors(err))
		return
	}

	principal := auth.GetPrincipal(r.Context())
	companyID := principal.CompanyID
	if principal.Guard != auth.GuardEmployee {
		if req.CompanyID == 0 {
			httpx.ValidationFailed(w, map[string]string{"company_id": "El campo company_id es obligatorio."})
			return
		}
		companyID = req.CompanyID
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hashing password", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
		return
	}

	scope := ScopeFor(principal)
	employee, err := h.store.Create(r.Context(), scope, companyID, req.EmployeeInput, string(hash), req.RoleIDs)
	if err != nil {
		h.respondEmployeeError(w, err, "creating employee")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionUserCreated, "user", employee.ID, nil)
	httpx.Created(w, "Usuario creado exitosamente.", map[string]any{"user": employee})
}

func (h *EmployeeHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Usuario no encontrado.")
		return
	}
	var in EmployeeInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.ValidationFailed(w, httpx.FieldErrors(err))
		return
	}

	scope := ScopeFor(auth.GetPrincipal(r.Context()))
	employee, err := h.store.Update(r.Context(), scope, id, in)
	if err != nil {
		h.respondEmployeeError(w, err, "updating employee")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionUserUpdated, "user", employee.ID, nil)
	httpx.OK(w, "Usuario actualizado exitosamente.", map[string]any{"user": employee})
}

func (h *EmployeeHandler) HandleToggleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Usuario no encontrado.")
		return
	}
	principal := auth.GetPrincipal(r.Context())
	if principal.Guard == auth.GuardEmployee && principal.ID == id {
		h.respondEmployeeError(w, ErrSelfAction, "toggling employee status")
		return
	}
	scope := ScopeFor(principal)

	current, err := h.store.GetByID(r.Context(), scope, id, false)
	if err != nil {
		h.respondEmployeeError(w, err, "getting employee")
		return
	}
	employee, err := h.store.SetActive(r.Context(), scope, id, !current.IsActive)
	if err != nil {
		h.respondEmployeeError(w, err, "toggling employee status")
		return
	}

	logChange(r.Context(), h.audit, audit.ActionUserToggled, "user", employee.ID,
		map[string]any{"active": employee.IsActive})

	message := "Usuario desactivado exitosamente."
	if employee.IsActive {
		message = "Usuario activado exitosamente."
	}
	httpx.OK(w, message, map[string]any{"user": employee})
}

func (h *EmployeeHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Usuario no encontrado.")
		return
	}
	principal := auth.GetPrincipal(r.Context())
	if principal.Guard == auth.GuardEmployee && principal.ID == id {
		h.respondEmployeeError(w, ErrSelfAction, "deleting employee")
		return
	}

	if err := h.store.SoftDelete(r.Context(), ScopeFor(principal), id); err != nil {
		h.respondEmployeeError(w, err, "deleting employee")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionUserDeleted, "user", id, nil)
	httpx.OK(w, "Usuario eliminado exitosamente.", nil)
}

func (h *EmployeeHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Usuario no encontrado.")
		return
	}
	scope := ScopeFor(auth.GetPrincipal(r.Context()))

	employee, err := h.store.Restore(r.Context(), scope, id)
	if err != nil {
		h.respondEmployeeError(w, err, "restoring employee")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionUserRestored, "user", employee.ID, nil)
	httpx.OK(w, "Usuario restaurado exitosamente.", map[string]any{"user": employee})
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

func (h *EmployeeHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Usuario no encontrado.")
		return
	}
	var req resetPasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationFailed(w, httpx.FieldErrors(err))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hashing password", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
		return
	}

	scope := ScopeFor(auth.GetPrincipal(r.Context()))
	if err := h.store.UpdatePassword(r.Context(), scope, id, string(hash)); err != nil {
		h.respondEmployeeError(w, err, "resetting password")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionUserPasswordReset, "user", id, nil)
	httpx.OK(w, "Contraseña restablecida exitosamente.", nil)
}

type syncRolesRequest struct {
	RoleIDs []int64 `json:"role_ids" validate:"required,min=1,dive,gt=0"`
}

func (h *EmployeeHandler) HandleSyncRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Usuario no encontrado.")
		return
	}
	var req syncRolesRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationFailed(w, httpx.FieldErrors(err))
		return
	}

	scope := ScopeFor(auth.GetPrincipal(r.Context()))
	if err := h.store.SyncRoles(r.Context(), scope, id, req.RoleIDs); err != nil {
		h.respondEmployeeError(w, err, "syncing roles")
		return
	}
	employee, err := h.store.GetByID(r.Context(), scope, id, false)
	if err != nil {
		h.respondEmployeeError(w, err, "getting employee")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionUserRolesSynced, "user", id,
		map[string]any{"role_ids": req.RoleIDs})
	httpx.OK(w, "Roles actualizados exitosamente.", map[string]any{"user": employee})
}

func (h *EmployeeHandler) HandleRemoveRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Usuario no encontrado.")
		return
	}
	roleID, err := pathValueID(r, "roleID")
	if err != nil {
		httpx.Error(w, http.StatusNotFound, "Rol no encontrado.")
		return
	}

	scope := ScopeFor(auth.GetPrincipal(r.Context()))
	if err := h.store.RemoveRole(r.Context(), scope, id, roleID); err != nil {
		h.respondEmployeeError(w, err, "removing role")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionUserRoleRemoved, "user", id,
		map[string]any{"role_id": roleID})
	httpx.OK(w, "Rol removido exitosamente.", nil)
}

type overrideRequest struct {
	Permission string `json:"permission" validate:"required,max=255"`
	Granted    *bool  `json:"granted" validate:"required"`
}

// HandleSetOverride records a direct grant or revocation for one
// permission. Overrides take precedence over role-derived grants.
func (h *EmployeeHandler) HandleSetOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Usuario no encontrado.")
		return
	}
	var req overrideRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationFailed(w, httpx.FieldErrors(err))
		return
	}

	scope := ScopeFor(auth.GetPrincipal(r.Context()))
	if err := h.store.SetOverride(r.Context(), scope, id, req.Permission, *req.Granted); err != nil {
		h.respondEmployeeError(w, err, "setting permission override")
		return
	}

	action := audit.ActionPermissionRevoked
	message := "Permiso revocado exitosamente."
	if *req.Granted {
		action = audit.ActionPermissionGranted
		message = "Permiso otorgado exitosamente."
	}
	logChange(r.Context(), h.audit, action, "user", id,
		map[string]any{audit.MetadataPermission: req.Permission})
	httpx.OK(w, message, nil)
}

func (h *EmployeeHandler) HandleClearOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Usuario no encontrado.")
		return
	}
	permission := r.PathValue("permission")
	if permission == "" {
		httpx.Error(w, http.StatusNotFound, "Permiso no encontrado.")
		return
	}

	scope := ScopeFor(auth.GetPrincipal(r.Context()))
	if err := h.store.ClearOverride(r.Context(), scope, id, permission); err != nil {
		h.respondEmployeeError(w, err, "clearing permission override")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionPermissionOverrideCleared, "user", id,
		map[string]any{audit.MetadataPermission: permission})
	httpx.OK(w, "Permiso directo eliminado exitosamente.", nil)
}

func (h *EmployeeHandler) respondEmployeeError(w http.ResponseWriter, err error, op string) {
	var dup *DuplicateError
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Error(w, http.StatusNotFound, "Usuario no encontrado.")
	case errors.Is(err, ErrLastRole):
		httpx.ValidationFailed(w, map[string]string{"role_ids": "El usuario debe tener al menos un rol."})
	case errors.Is(err, ErrSelfAction):
		httpx.Error(w, http.StatusForbidden, "No puedes realizar esta acción sobre tu propia cuenta.")
	case errors.As(err, &dup):
		httpx.ValidationFailed(w, map[string]string{dup.Field: "El valor ya está en uso."})
	default:
		h.logger.Error(op, "error", err)
		httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
	}
}
