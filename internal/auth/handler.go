package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/andino-labs/andino/internal/platform/httpx"
)

// EntitlementSource resolves employee permissions for login/me payloads
// and the check-permission endpoint.
type EntitlementSource interface {
	Can(ctx context.Context, employeeID int64, permission string) (bool, error)
	AllPermissionNames(ctx context.Context, employeeID int64) ([]string, error)
	RoleNames(ctx context.Context, employeeID int64) ([]string, error)
}

// Handler wires the per-guard authentication HTTP surfaces.
type Handler struct {
	svc          *Service
	entitlements EntitlementSource // nil for superadmin/owner guards
	logger       *slog.Logger
	validate     *validator.Validate
}

func NewHandler(svc *Service, entitlements EntitlementSource, logger *slog.Logger) *Handler {
	return &Handler{
		svc:          svc,
		entitlements: entitlements,
		logger:       logger,
		validate:     httpx.NewValidator(),
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type checkPermissionRequest struct {
	Permission string `json:"permission" validate:"required"`
}

// HandleLogin returns the login handler for one guard.
func (h *Handler) HandleLogin(guard Guard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			httpx.Error(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.ValidationFailed(w, httpx.FieldErrors(err))
			return
		}

		principal, pair, err := h.svc.Login(r.Context(), guard, req.Email, req.Password, clientIP(r))
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidCredentials):
				httpx.ValidationFailed(w, map[string]string{"email": "Las credenciales son incorrectas."})
			case errors.Is(err, ErrAccountInactive):
				httpx.Error(w, http.StatusForbidden, "Tu cuenta está inactiva. Contacta al administrador.")
			case errors.Is(err, ErrCompanyInactive):
				httpx.Error(w, http.StatusForbidden, "La empresa se encuentra inactiva. Contacte al administrador.")
			default:
				h.logger.Error("login", "guard", guard, "error", err)
				httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
			}
			return
		}

		data := map[string]any{
			"user":          principal,
			"token":         pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"token_type":    pair.TokenType,
			"expires_in":    pair.ExpiresIn,
		}
		if guard == GuardEmployee && h.entitlements != nil {
			h.attachEntitlements(r.Context(), principal.ID, data)
		}

		httpx.OK(w, "Login exitoso", data)
	}
}

// HandleMe returns the authenticated principal. Employee responses carry
// role names and the effective permission set.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal := GetPrincipal(r.Context())
	if principal == nil {
		httpx.Error(w, http.StatusUnauthorized, "No autenticado")
		return
	}

	data := map[string]any{"user": principal}
	if principal.Guard == GuardEmployee && h.entitlements != nil {
		h.attachEntitlements(r.Context(), principal.ID, data)
	}
	httpx.OK(w, "", data)
}

// HandleRefresh rotates a refresh token.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationFailed(w, httpx.FieldErrors(err))
		return
	}

	_, pair, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenExpired), errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrNotFound):
			httpx.Error(w, http.StatusUnauthorized, "Token inválido")
		case errors.Is(err, ErrAccountInactive), errors.Is(err, ErrCompanyInactive):
			httpx.Error(w, http.StatusForbidden, "Cuenta o empresa inactiva")
		default:
			h.logger.Error("refresh", "error", err)
			httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
		}
		return
	}

	httpx.OK(w, "", map[string]any{
		"token":         pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    pair.TokenType,
		"expires_in":    pair.ExpiresIn,
	})
}

// HandleLogout revokes the caller's refresh token family.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err == nil && req.RefreshToken != "" {
		if err := h.svc.Logout(r.Context(), req.RefreshToken); err != nil {
			h.logger.Warn("logout", "error", err)
		}
	}
	httpx.OK(w, "Sesión cerrada exitosamente", nil)
}

// HandleCheckPermission answers whether the authenticated employee holds
// a named permission.
func (h *Handler) HandleCheckPermission(w http.ResponseWriter, r *http.Request) {
	principal := GetPrincipal(r.Context())
	if principal == nil || principal.Guard != GuardEmployee {
		httpx.Error(w, http.StatusUnauthorized, "No autenticado")
		return
	}

	var req checkPermissionRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationFailed(w, httpx.FieldErrors(err))
		return
	}

	has, err := h.entitlements.Can(r.Context(), principal.ID, req.Permission)
	if err != nil {
		h.logger.Error("check permission", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
		return
	}

	httpx.OK(w, "", map[string]any{
		"permission":     req.Permission,
		"has_permission": has,
	})
}

func (h *Handler) attachEntitlements(ctx context.Context, employeeID int64, data map[string]any) {
	if perms, err := h.entitlements.AllPermissionNames(ctx, employeeID); err == nil {
		data["permissions"] = perms
	} else {
		h.logger.Warn("loading permissions", "employee_id", employeeID, "error", err)
	}
	if roles, err := h.entitlements.RoleNames(ctx, employeeID); err == nil {
		data["roles"] = roles
	} else {
		h.logger.Warn("loading roles", "employee_id", employeeID, "error", err)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
