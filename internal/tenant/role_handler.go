package tenant

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/andino-labs/andino/internal/audit"
	"github.com/andino-labs/andino/internal/auth"
	"github.com/andino-labs/andino/internal/platform/httpx"
)

// RoleHandler serves role administration endpoints.
type RoleHandler struct {
	store    RoleStore
	audit    audit.Logger
	logger   *slog.Logger
	validate *validator.Validate
}

func NewRoleHandler(store RoleStore, logger *slog.Logger, opts ...HandlerOption) *RoleHandler {
	o := buildHandlerOptions(opts)
	return &RoleHandler{
		store:    store,
		audit:    o.audit,
		logger:   logger,
		validate: httpx.NewValidator(),
	}
}

func (h *RoleHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	scope := ScopeFor(auth.GetPrincipal(r.Context()))

	result, err := h.store.List(r.Context(), scope, pageFromQuery(r))
	if err != nil {
		h.logger.Error("listing roles", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
		return
	}
	httpx.OK(w, "", result)
}

func (h *RoleHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Rol no encontrado.")
		return
	}
	scope := ScopeFor(auth.GetPrincipal(r.Context()))

	role, err := h.store.GetByID(r.Context(), scope, id)
	if err != nil {
		h.respondRoleError(w, err, "getting role")
		return
	}
	httpx.OK(w, "", map[string]any{"role": role})
}

type createRoleRequest struct {
	RoleInput
	CompanyID *int64 `json:"company_id" validate:"omitempty,gt=0"`
}

func (h *RoleHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationFailed(w, httpx.FieldErrors(err))
		return
	}

	principal := auth.GetPrincipal(r.Context())
	companyID := req.CompanyID
	switch principal.Guard {
	case auth.GuardEmployee:
		companyID = &principal.CompanyID
	case auth.GuardOwner:
		if companyID == nil {
			httpx.ValidationFailed(w, map[string]string{"company_id": "El campo company_id es obligatorio."})
			return
		}
	}
	// Superadmins may omit company_id to create a global role.

	role, err := h.store.Create(r.Context(), companyID, req.RoleInput)
	if err != nil {
		h.respondRoleError(w, err, "creating role")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionRoleCreated, "role", role.ID, nil)
	httpx.Created(w, "Rol creado exitosamente.", map[string]any{"role": role})
}

func (h *RoleHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Rol no encontrado.")
		return
	}
	var in RoleInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.ValidationFailed(w, httpx.FieldErrors(err))
		return
	}

	scope := ScopeFor(auth.GetPrincipal(r.Context()))
	role, err := h.store.Update(r.Context(), scope, id, in)
	if err != nil {
		h.respondRoleError(w, err, "updating role")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionRoleUpdated, "role", role.ID, nil)
	httpx.OK(w, "Rol actualizado exitosamente.", map[string]any{"role": role})
}

func (h *RoleHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Rol no encontrado.")
		return
	}
	scope := ScopeFor(auth.GetPrincipal(r.Context()))

	if err := h.store.Delete(r.Context(), scope, id); err != nil {
		h.respondRoleError(w, err, "deleting role")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionRoleDeleted, "role", id, nil)
	httpx.OK(w, "Rol eliminado exitosamente.", nil)
}

type syncPermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required,dive,required,max=255"`
}

func (h *RoleHandler) HandleSyncPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Rol no encontrado.")
		return
	}
	var req syncPermissionsRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationFailed(w, httpx.FieldErrors(err))
		return
	}

	scope := ScopeFor(auth.GetPrincipal(r.Context()))
	role, err := h.store.SyncPermissions(r.Context(), scope, id, req.Permissions)
	if err != nil {
		h.respondRoleError(w, err, "syncing permissions")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionRoleSynced, "role", role.ID,
		map[string]any{"permissions": req.Permissions})
	httpx.OK(w, "Permisos del rol actualizados exitosamente.", map[string]any{"role": role})
}

func (h *RoleHandler) respondRoleError(w http.ResponseWriter, err error, op string) {
	var dup *DuplicateError
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Error(w, http.StatusNotFound, "Rol no encontrado.")
	case errors.Is(err, ErrSystemRoleImmutable):
		httpx.Error(w, http.StatusForbidden, "Los roles del sistema no pueden ser modificados.")
	case errors.Is(err, ErrRoleInUse):
		httpx.Error(w, http.StatusUnprocessableEntity, "El rol está asignado a uno o más usuarios.")
	case errors.As(err, &dup):
		httpx.ValidationFailed(w, map[string]string{dup.Field: "El valor ya está en uso."})
	default:
		h.logger.Error(op, "error", err)
		httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
	}
}
