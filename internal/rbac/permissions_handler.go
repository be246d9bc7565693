package rbac

import (
	"log/slog"
	"net/http"

	"github.com/andino-labs/andino/internal/platform/httpx"
)

// PermissionsHandler serves the permission catalog.
type PermissionsHandler struct {
	store  Store
	logger *slog.Logger
}

func NewPermissionsHandler(store Store, logger *slog.Logger) *PermissionsHandler {
	return &PermissionsHandler{store: store, logger: logger}
}

// HandleList returns the whole catalog grouped by module, for role
// editing screens.
func (h *PermissionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	perms, err := h.store.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("listing permissions", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
		return
	}

	httpx.OK(w, "", map[string]any{
		"permissions": GroupByModule(perms),
		"total":       len(perms),
	})
}
