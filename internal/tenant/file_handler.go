package tenant

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/andino-labs/andino/internal/audit"
	"github.com/andino-labs/andino/internal/auth"
	"github.com/andino-labs/andino/internal/platform/httpx"
)

// FileExpiryPolicy bounds how long a file record may live. Requests
// that omit an expiry get the default; requests above the maximum are
// rejected.
type FileExpiryPolicy struct {
	DefaultExpiry time.Duration
	MaxExpiry     time.Duration
}

// FileHandler serves uploaded-file metadata and the category catalog.
// Routes are guarded by files.* permissions for the employee guard.
type FileHandler struct {
	store      FileStore
	categories FileCategoryStore
	expiry     FileExpiryPolicy
	audit      audit.Logger
	logger     *slog.Logger
	validate   *validator.Validate
	now        func() time.Time
}

func NewFileHandler(store FileStore, categories FileCategoryStore, expiry FileExpiryPolicy, logger *slog.Logger, opts ...HandlerOption) *FileHandler {
	o := buildHandlerOptions(opts)
	if expiry.DefaultExpiry <= 0 {
		expiry.DefaultExpiry = 24 * time.Hour
	}
	if expiry.MaxExpiry <= 0 {
		expiry.MaxExpiry = 24 * time.Hour
	}
	return &FileHandler{
		store:      store,
		categories: categories,
		expiry:     expiry,
		audit:      o.audit,
		logger:     logger,
		validate:   httpx.NewValidator(),
		now:        time.Now,
	}
}

func (h *FileHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	scope := ScopeFor(auth.GetPrincipal(r.Context()))
	q := r.URL.Query()
	filter := FileFilter{
		FileType:       q.Get("file_type"),
		ExcludeExpired: q.Get("exclude_expired") == "true",
	}

	result, err := h.store.List(r.Context(), scope, pageFromQuery(r), filter)
	if err != nil {
		h.logger.Error("listing files", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
		return
	}
	httpx.OK(w, "", result)
}

func (h *FileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Archivo no encontrado.")
		return
	}
	scope := ScopeFor(auth.GetPrincipal(r.Context()))

	file, err := h.store.GetByID(r.Context(), scope, id)
	if err != nil {
		h.respondFileError(w, err, "getting file")
		return
	}
	httpx.OK(w, "", map[string]any{"file": file})
}

type registerFileRequest struct {
	FileInput
	CompanyID     int64 `json:"company_id" validate:"omitempty,gt=0"`
	ExpiresInMins int   `json:"expires_in_minutes" validate:"omitempty,gt=0"`
}

// HandleRegister records metadata for a file that was placed in
// storage. The expiry window is clamped by policy; storage itself is
// outside this service.
func (h *FileHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerFileRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationFailed(w, httpx.FieldErrors(err))
		return
	}

	expiry := h.expiry.DefaultExpiry
	if req.ExpiresInMins > 0 {
		expiry = time.Duration(req.ExpiresInMins) * time.Minute
		if expiry > h.expiry.MaxExpiry {
			httpx.ValidationFailed(w, map[string]string{
				"expires_in_minutes": "El tiempo de expiración excede el máximo permitido.",
			})
			return
		}
	}
	expiresAt := h.now().Add(expiry)

	principal := auth.GetPrincipal(r.Context())
	companyID := principal.CompanyID
	if principal.Guard != auth.GuardEmployee {
		if req.CompanyID == 0 {
			httpx.ValidationFailed(w, map[string]string{"company_id": "El campo company_id es obligatorio."})
			return
		}
		companyID = req.CompanyID
	}

	scope := ScopeFor(principal)
	file, err := h.store.Create(r.Context(), scope, companyID,
		string(principal.Guard), principal.ID, req.FileInput, &expiresAt)
	if err != nil {
		h.respondFileError(w, err, "registering file")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionFileRegistered, "file", file.ID,
		map[string]any{"stored_name": file.StoredName})
	httpx.Created(w, "Archivo subido exitosamente.", map[string]any{"file": file})
}

// HandleDownload resolves a file record for download and bumps its
// counter. Serving the bytes is the storage layer's concern.
func (h *FileHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Archivo no encontrado.")
		return
	}
	scope := ScopeFor(auth.GetPrincipal(r.Context()))

	file, err := h.store.RecordDownload(r.Context(), scope, id)
	if err != nil {
		h.respondFileError(w, err, "recording download")
		return
	}
	httpx.OK(w, "", map[string]any{"file": file})
}

func (h *FileHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Archivo no encontrado.")
		return
	}
	scope := ScopeFor(auth.GetPrincipal(r.Context()))

	if err := h.store.SoftDelete(r.Context(), scope, id); err != nil {
		h.respondFileError(w, err, "deleting file")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionFileDeleted, "file", id, nil)
	httpx.OK(w, "Archivo eliminado exitosamente.", nil)
}

func (h *FileHandler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	result, err := h.categories.ListCategories(r.Context(), pageFromQuery(r))
	if err != nil {
		h.logger.Error("listing categories", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
		return
	}
	httpx.OK(w, "Listado de categorías", result)
}

func (h *FileHandler) HandleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Categoría no encontrada.")
		return
	}
	category, err := h.categories.GetCategory(r.Context(), id)
	if err != nil {
		h.respondCategoryError(w, err, "getting category")
		return
	}
	httpx.OK(w, "Detalle de la categoría", map[string]any{"category": category})
}

func (h *FileHandler) HandleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in FileCategoryInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.ValidationFailed(w, httpx.FieldErrors(err))
		return
	}

	category, err := h.categories.CreateCategory(r.Context(), in)
	if err != nil {
		h.respondCategoryError(w, err, "creating category")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionCategoryCreated, "category", category.ID, nil)
	httpx.Created(w, "Categoría creada exitosamente.", map[string]any{"category": category})
}

func (h *FileHandler) HandleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Categoría no encontrada.")
		return
	}
	var in FileCategoryInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.ValidationFailed(w, httpx.FieldErrors(err))
		return
	}

	category, err := h.categories.UpdateCategory(r.Context(), id, in)
	if err != nil {
		h.respondCategoryError(w, err, "updating category")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionCategoryUpdated, "category", category.ID, nil)
	httpx.OK(w, "Categoría actualizada exitosamente.", map[string]any{"category": category})
}

func (h *FileHandler) HandleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Categoría no encontrada.")
		return
	}
	if err := h.categories.DeleteCategory(r.Context(), id); err != nil {
		h.respondCategoryError(w, err, "deleting category")
		return
	}
	logChange(r.Context(), h.audit, audit.ActionCategoryDeleted, "category", id, nil)
	httpx.OK(w, "Categoría eliminada exitosamente.", nil)
}

func (h *FileHandler) respondFileError(w http.ResponseWriter, err error, op string) {
	var dup *DuplicateError
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Error(w, http.StatusNotFound, "Archivo no encontrado.")
	case errors.Is(err, ErrCategoryInvalid):
		httpx.ValidationFailed(w, map[string]string{"category_id": "La categoría seleccionada no existe."})
	case errors.As(err, &dup):
		httpx.ValidationFailed(w, map[string]string{dup.Field: "El valor ya está en uso."})
	default:
		h.logger.Error(op, "error", err)
		httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
	}
}

func (h *FileHandler) respondCategoryError(w http.ResponseWriter, err error, op string) {
	var dup *DuplicateError
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Error(w, http.StatusNotFound, "Categoría no encontrada.")
	case errors.As(err, &dup):
		httpx.ValidationFailed(w, map[string]string{dup.Field: "El valor ya está en uso."})
	default:
		h.logger.Error(op, "error", err)
		httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
	}
}
