package tenant

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/andino-labs/andino/internal/audit"
	"github.com/andino-labs/andino/internal/auth"
	"github.com/andino-labs/andino/internal/platform/httpx"
)

// CompanyHandler serves company management endpoints for the
// superadmin and owner guards.
type CompanyHandler struct {
	store    CompanyStore
	audit    audit.Logger
	logger   *slog.Logger
	validate *validator.Validate
}

func NewCompanyHandler(store CompanyStore, logger *slog.Logger, opts ...HandlerOption) *CompanyHandler {
	o := buildHandlerOptions(opts)
	return &CompanyHandler{
		store:    store,
		audit:    o.audit,
		logger:   logger,
		validate: httpx.NewValidator(),
	}
}

// pathID parses the {id} segment. A malformed ID behaves like a
// missing resource.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func pathValueID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, ErrNotFound
	}
	return id, nil
}

func pageFromQuery(r *http.Request) Page {
	q := r.URL.Query()
	number, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return Page{Number: number, PerPage: perPage, Search: q.Get("search")}.Normalize()
}

func (h *CompanyHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	scope := ScopeFor(auth.GetPrincipal(r.Context()))
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	result, err := h.store.List(r.Context(), scope, pageFromQuery(r), includeDeleted)
	if err != nil {
		h.logger.Error("listing companies", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
		return
	}
	httpx.OK(w, "", result)
}

func (h *CompanyHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Empresa no encontrada.")
		return
	}
	scope := ScopeFor(auth.GetPrincipal(r.Context()))
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	company, err := h.store.GetByID(r.Context(), scope, id, includeDeleted)
	if err != nil {
		h.respondCompanyError(w, err, "getting company")
		return
	}
	httpx.OK(w, "", map[string]any{"company": company})
}

type createCompanyRequest struct {
	CompanyInput
	OwnerID int64 `json:"owner_id" validate:"omitempty,gt=0"`
}

func (h *CompanyHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createCompanyRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationFailed(w, httpx.FieldErrors(err))
		return
	}

	principal := auth.GetPrincipal(r.Context())
	ownerID := principal.ID
	if principal.Guard == auth.GuardSuperadmin {
		if req.OwnerID == 0 {
			httpx.ValidationFailed(w, map[string]string{"owner_id": "El campo owner_id es obligatorio."})
			return
		}
		ownerID = req.OwnerID
	}

	company, err := h.store.Create(r.Context(), ownerID, req.CompanyInput)
	if err != nil {
		h.respondCompanyError(w, err, "creating company")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionCompanyCreated, "company", company.ID, nil)
	httpx.Created(w, "Empresa creada exitosamente.", map[string]any{"company": company})
}

func (h *CompanyHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Empresa no encontrada.")
		return
	}
	var in CompanyInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.ValidationFailed(w, httpx.FieldErrors(err))
		return
	}

	scope := ScopeFor(auth.GetPrincipal(r.Context()))
	company, err := h.store.Update(r.Context(), scope, id, in)
	if err != nil {
		h.respondCompanyError(w, err, "updating company")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionCompanyUpdated, "company", company.ID, nil)
	httpx.OK(w, "Empresa actualizada exitosamente.", map[string]any{"company": company})
}

func (h *CompanyHandler) HandleToggleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Empresa no encontrada.")
		return
	}
	scope := ScopeFor(auth.GetPrincipal(r.Context()))

	current, err := h.store.GetByID(r.Context(), scope, id, false)
	if err != nil {
		h.respondCompanyError(w, err, "getting company")
		return
	}
	company, err := h.store.SetActive(r.Context(), scope, id, !current.IsActive)
	if err != nil {
		h.respondCompanyError(w, err, "toggling company status")
		return
	}

	logChange(r.Context(), h.audit, audit.ActionCompanyToggled, "company", company.ID,
		map[string]any{"active": company.IsActive})

	message := "Empresa desactivada exitosamente."
	if company.IsActive {
		message = "Empresa activada exitosamente."
	}
	httpx.OK(w, message, map[string]any{"company": company})
}

func (h *CompanyHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Empresa no encontrada.")
		return
	}
	scope := ScopeFor(auth.GetPrincipal(r.Context()))

	if err := h.store.SoftDelete(r.Context(), scope, id); err != nil {
		h.respondCompanyError(w, err, "deleting company")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionCompanyDeleted, "company", id, nil)
	httpx.OK(w, "Empresa eliminada exitosamente.", nil)
}

func (h *CompanyHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Empresa no encontrada.")
		return
	}
	scope := ScopeFor(auth.GetPrincipal(r.Context()))

	company, err := h.store.Restore(r.Context(), scope, id)
	if err != nil {
		h.respondCompanyError(w, err, "restoring company")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionCompanyRestored, "company", company.ID, nil)
	httpx.OK(w, "Empresa restaurada exitosamente.", map[string]any{"company": company})
}

func (h *CompanyHandler) respondCompanyError(w http.ResponseWriter, err error, op string) {
	var dup *DuplicateError
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Error(w, http.StatusNotFound, "Empresa no encontrada.")
	case errors.As(err, &dup):
		httpx.ValidationFailed(w, map[string]string{dup.Field: "El valor ya está en uso."})
	default:
		h.logger.Error(op, "error", err)
		httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
	}
}
