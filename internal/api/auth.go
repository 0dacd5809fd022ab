package api

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/kalambet/applytrack/internal/accounts"
	"github.com/kalambet/applytrack/internal/ratelimit"
)

// Authenticator resolves a user session token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (accounts.User, error)
}

type ctxKey int

const userKey ctxKey = iota

// UserFrom returns the user a request was authenticated as. ok is false for
// requests made with the static API token.
func UserFrom(ctx context.Context) (accounts.User, bool) {
	u, ok := ctx.Value(userKey).(accounts.User)
	return u, ok
}

// BearerAuth accepts either the static API token or a user session token.
// users may be nil, in which case only the static token is accepted.
func BearerAuth(token string, users Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			presented := auth[len(prefix):]
			if token != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			if users != nil {
				if u, err := users.Authenticate(r.Context(), presented); err == nil {
					next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
					return
				}
			}
			httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
		})
	}
}

// RateLimit rejects clients that exceed limit requests per window. The
// bucket key combines the route prefix and the client IP as resolved by
// ClientIP with the given trusted proxies.
func RateLimit(l ratelimit.Limiter, prefix string, limit int, window time.Duration, trusted []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l != nil && limit > 0 && !l.Allow(r.Context(), prefix+":"+ClientIP(r, trusted), limit, window) {
				w.Header().Set("Retry-After", "60")
				httpError(w, http.StatusTooManyRequests, "rate_limit_error", "too many requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the caller address. The first X-Forwarded-For hop is
// used only when the direct peer is one of the trusted proxies.
func ClientIP(r *http.Request, trusted []string) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !slices.Contains(trusted, host) {
		return host
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return host
}
