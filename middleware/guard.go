// Package middleware adapts the portalauth engine to net/http. The guards
// translate HTTP semantics into engine calls and inject the authenticated
// user id into the request context; every authentication decision stays in
// the engine.
package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/openclinic/portalauth"
	"github.com/openclinic/portalauth/cookie"
)

// Guard rejects requests without a valid access token and passes the rest
// through with the user id on the context. The token is read from the
// access-token cookie, falling back to a Bearer Authorization header for
// non-browser clients.
func Guard(engine *portalauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := authenticate(engine, r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := portalauth.WithUserID(r.Context(), userID)
			ctx = portalauth.WithClientIP(ctx, clientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Optional is Guard without the rejection: anonymous requests pass through
// untouched, authenticated ones get the user id on the context. Intake
// pages that work for visitors and patients alike sit behind this one.
func Optional(engine *portalauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, ok := authenticate(engine, r); ok {
				ctx := portalauth.WithUserID(r.Context(), userID)
				ctx = portalauth.WithClientIP(ctx, clientIP(r))
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(engine *portalauth.Engine, r *http.Request) (string, bool) {
	if engine == nil {
		return "", false
	}

	token, ok := accessToken(r)
	if !ok {
		return "", false
	}

	userID, err := engine.VerifyAccess(r.Context(), token)
	if err != nil {
		return "", false
	}
	return userID, true
}

func accessToken(r *http.Request) (string, bool) {
	if c, err := r.Cookie(cookie.AccessTokenName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}
	return token, true
}
