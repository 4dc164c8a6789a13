package http

import (
	"net/http"
	"strings"

	"github.com/Flarenzy/smart-ipam/internal/auth"
)

func (a *API) authMiddleware(next http.Handler) http.Handler {
	if a.Auth == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		authz := r.Header.Get("Authorization")
		tokenStr, ok := strings.CutPrefix(authz, "Bearer ")
		if !ok || tokenStr == "" {
			a.respond(w, r, http.StatusUnauthorized, ErrorResponse{Error: "missing token"})
			return
		}

		principal, err := a.Auth.Authenticate(r.Context(), tokenStr)
		if err != nil {
			a.Logger.DebugContext(r.Context(), "rejected bearer token", "path", r.URL.Path, "err", err.Error())
			a.respond(w, r, http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		if a.writeRole != "" && !isReadOnly(r.Method) && !principal.HasRole(a.writeRole) {
			a.Logger.InfoContext(r.Context(), "write denied", "subject", principal.Subject, "path", r.URL.Path)
			a.respond(w, r, http.StatusForbidden, ErrorResponse{Error: "forbidden"})
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

func isPublicPath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics" || strings.HasPrefix(path, "/swagger/")
}

func isReadOnly(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}
