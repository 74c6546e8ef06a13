package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	goToken "github.com/MrEthical07/goToken"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by Guard or RequireRole.
func ClaimsFromContext(ctx context.Context) (*goToken.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*goToken.Claims)
	return claims, ok
}

// Guard rejects requests without a valid access token with 401 and a generic
// body. Store outages are answered with 503 so clients retry instead of
// logging out.
func Guard(engine *goToken.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, status := authenticate(engine, r)
			if status != http.StatusOK {
				http.Error(w, http.StatusText(status), status)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(engine *goToken.Engine, r *http.Request) (*goToken.Claims, int) {
	if engine == nil {
		return nil, http.StatusUnauthorized
	}
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, http.StatusUnauthorized
	}

	ctx := goToken.WithUserAgent(r.Context(), r.UserAgent())
	claims, err := engine.Validate(ctx, token, ClientIP(r))
	switch {
	case err == nil:
		return claims, http.StatusOK
	case errors.Is(err, goToken.ErrStoreUnavailable):
		return nil, http.StatusServiceUnavailable
	default:
		return nil, http.StatusUnauthorized
	}
}

// ClientIP returns the host part of r.RemoteAddr. Forwarding headers are not
// trusted here; put a proxy-aware handler in front to rewrite RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
