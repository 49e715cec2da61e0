package middleware

import (
	"net"
	"net/http"

	goCred "github.com/MrEthical07/goCred"
)

// RequireRole admits requests whose verified principal has one of roles.
// It must run after a guard.
func RequireRole(roles ...goCred.Role) func(http.Handler) http.Handler {
	allowed := make(map[goCred.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResult(r.Context())
			if !ok {
				WriteError(w, r, ErrUnauthorized)
				return
			}
			if _, ok := allowed[res.Principal.Role]; !ok {
				WriteError(w, r, goCred.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP stores the host part of r.RemoteAddr with goCred.WithClientIP.
// Put chi's RealIP in front of it when running behind a proxy.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		next.ServeHTTP(w, r.WithContext(goCred.WithClientIP(r.Context(), host)))
	})
}
