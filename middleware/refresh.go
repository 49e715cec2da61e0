package middleware

import (
	"net/http"

	goCred "github.com/MrEthical07/goCred"
)

// RequireRefresh guards a route with a refresh token. Handlers behind it
// usually call Engine.Refresh, which verifies the header again and rotates.
func RequireRefresh(v Verifier, opts ...Option) func(http.Handler) http.Handler {
	return Guard(v, goCred.TokenRefresh, opts...)
}
