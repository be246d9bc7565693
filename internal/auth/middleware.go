package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/andino-labs/andino/internal/platform/httpx"
)

type principalContextKey struct{}

// RequireGuard returns middleware that authenticates the bearer token and
// enforces that it was issued under the expected guard. A valid token for
// a different guard is authenticated-but-forbidden, not unauthenticated.
func RequireGuard(svc *Service, guard Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractBearerToken(r)
			if err != nil {
				httpx.Error(w, http.StatusUnauthorized, "Token de autenticación requerido")
				return
			}

			principal, err := svc.Authenticate(r.Context(), token)
			if err == nil && principal.Guard != guard {
				err = ErrWrongGuard
			}
			if err != nil {
				switch {
				case errors.Is(err, ErrWrongGuard):
					httpx.Error(w, http.StatusForbidden, "Acceso no autorizado para este tipo de usuario")
				case errors.Is(err, ErrTokenExpired):
					httpx.Error(w, http.StatusUnauthorized, "Token expirado")
				case errors.Is(err, ErrAccountInactive):
					httpx.Error(w, http.StatusUnauthorized, "Tu cuenta está inactiva. Contacta al administrador.")
				case errors.Is(err, ErrCompanyInactive):
					httpx.Error(w, http.StatusUnauthorized, "La empresa se encuentra inactiva. Contacte al administrador.")
				default:
					httpx.Error(w, http.StatusUnauthorized, "Token inválido")
				}
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal retrieves the authenticated principal from the context.
func GetPrincipal(ctx context.Context) *Principal {
	principal, _ := ctx.Value(principalContextKey{}).(*Principal)
	return principal
}

// WithPrincipal returns a context carrying the principal, for tests.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrTokenMissing
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrTokenInvalid
	}

	return parts[1], nil
}
