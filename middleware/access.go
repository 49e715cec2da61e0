package middleware

import (
	"net/http"

	goCred "github.com/MrEthical07/goCred"
)

// RequireAccess guards a route with an access token.
func RequireAccess(v Verifier, opts ...Option) func(http.Handler) http.Handler {
	return Guard(v, goCred.TokenAccess, opts...)
}
