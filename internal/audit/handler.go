package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/andino-labs/andino/internal/auth"
	"github.com/andino-labs/andino/internal/platform/database"
	"github.com/andino-labs/andino/internal/platform/httpx"
)

// Handler serves audit query endpoints for the superadmin guard.
type Handler struct {
	db     database.Querier
	store  *Store
	logger *slog.Logger
}

func NewHandler(db database.Querier, store *Store, logger *slog.Logger) *Handler {
	return &Handler{db: db, store: store, logger: logger}
}

// HandleListEvents returns audit events, newest first.
// GET /api/v1/superadmin/audit/events?limit=50&action=auth.login&company_id=3
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := ListParams{
		Action: q.Get("action"),
		Guard:  q.Get("guard"),
	}

	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			params.Limit = n
		}
	}
	if raw := q.Get("company_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			params.CompanyID = &id
		}
	}
	if raw := q.Get("actor_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			params.ActorID = &id
		}
	}
	if raw := q.Get("after"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			params.After = &ts
		}
	}
	if raw := q.Get("before"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			params.Before = &ts
		}
	}

	// Non-superadmin callers only ever see their own company's trail.
	if p := auth.GetPrincipal(r.Context()); p != nil && p.Guard != auth.GuardSuperadmin && p.CompanyID != 0 {
		cid := p.CompanyID
		params.CompanyID = &cid
	}

	events, err := h.store.List(r.Context(), h.db, params)
	if err != nil {
		h.logger.Error("listing audit events", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
		return
	}
	if events == nil {
		events = []StoredEvent{}
	}

	httpx.OK(w, "", map[string]any{"events": events, "count": len(events)})
}
