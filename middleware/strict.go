package middleware

import (
	"context"
	"net/http"

	goToken "github.com/MrEthical07/goToken"
)

// RequireRole is Guard followed by a role check. A valid token with another
// role gets 403.
func RequireRole(engine *goToken.Engine, roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, status := authenticate(engine, r)
			if status != http.StatusOK {
				http.Error(w, http.StatusText(status), status)
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
