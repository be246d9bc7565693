package rbac

import (
	"context"
	"net/http"

	"github.com/andino-labs/andino/internal/auth"
	"github.com/andino-labs/andino/internal/platform/httpx"
)

// DenialLogger records RBAC denials for the audit trail.
type DenialLogger interface {
	LogDenial(ctx context.Context, employeeID int64, permission, reason string)
}

// MiddlewareOption configures RBAC middleware behavior.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	denials DenialLogger
}

// WithDenialLogger attaches an audit logger for denied requests.
func WithDenialLogger(logger DenialLogger) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.denials = logger
	}
}

// RequirePermission returns middleware for employee-guard routes that
// checks the authenticated employee's effective permission set.
func RequirePermission(resolver *Resolver, permission string, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	var mc middlewareConfig
	for _, opt := range opts {
		opt(&mc)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := auth.GetPrincipal(r.Context())
			if principal == nil || principal.Guard != auth.GuardEmployee {
				httpx.Error(w, http.StatusUnauthorized, "No autenticado")
				return
			}

			allowed, err := resolver.Can(r.Context(), principal.ID, permission)
			if err != nil {
				httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
				return
			}

			if !allowed {
				if mc.denials != nil {
					mc.denials.LogDenial(r.Context(), principal.ID, permission, "permission not held")
				}
				httpx.Error(w, http.StatusForbidden, "No tienes permiso para realizar esta acción: "+permission)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
