package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/sso/pkg/slogx"
)

// KeyFromHeader reads the key from the Authorization header. Both a bare
// value and "Bearer <value>" are accepted.
func KeyFromHeader(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, rest, _ := strings.Cut(authz, " ")
	if strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(rest)
	}
	return authz
}

// RequireKey rejects requests without a key and stores the key in the
// request context. Whether the key is any good is up to the handler.
func RequireKey() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value := KeyFromHeader(r)
			if value == "" {
				slogx.FromContext(r.Context()).Debug("request without key")
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="missing key"`)
				WriteError(w, http.StatusUnauthorized, "unauthorised", "missing key")
				return
			}
			next.ServeHTTP(w, r.WithContext(contextWithKeyValue(r.Context(), value)))
		})
	}
}
