package middleware

import (
	"context"
	"net/http"

	goToken "github.com/MrEthical07/goToken"
)

type subjectContextKey struct{}

// SubjectFromContext returns the user id stored by RequireSignatureOnly.
func SubjectFromContext(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectContextKey{}).(string)
	return sub, ok
}

// RequireSignatureOnly accepts any token whose signature and expiry verify.
// Blacklisted and invalidated tokens pass, so use it only where a revoked
// token may still be honoured until it expires.
func RequireSignatureOnly(engine *goToken.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			sub, ok := engine.SubjectOf(r.Context(), token)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), subjectContextKey{}, sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
