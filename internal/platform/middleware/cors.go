package middleware

import (
	"net/http"
	"strings"
)

// CORS restricts cross-origin access to the configured frontend
// origins. The API is consumed by a separate SPA, so credentials are
// allowed and the exposed method set covers the whole REST surface.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Caches must key on the request Origin or they may serve
			// one origin's CORS response to another.
			w.Header().Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if !allowed[origin] {
				// Requests from unknown origins pass through without
				// CORS headers; the browser enforces the block.
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
