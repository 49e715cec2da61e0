package middleware

import (
	"context"
	"net/http"

	goCred "github.com/MrEthical07/goCred"
)

// Verifier is the part of goCred.Engine the guard calls.
type Verifier interface {
	Verify(ctx context.Context, authorization string, tokenType goCred.TokenType) (*goCred.AuthResult, error)
}

// ErrorHandler writes the response for a rejected request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Option configures a guard.
type Option func(*guardOptions)

type guardOptions struct {
	onError ErrorHandler
}

// WithErrorHandler replaces the default JSON error response.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *guardOptions) {
		if h != nil {
			o.onError = h
		}
	}
}

// AuthResult returns the verified result stored by a guard.
func AuthResult(ctx context.Context) (*goCred.AuthResult, bool) {
	return goCred.AuthResultFromContext(ctx)
}

// Guard verifies the Authorization header as tokenType and stores the
// result on the request context. Every verification failure reaches the
// error handler as [ErrUnauthorized]; store outages pass through.
func Guard(v Verifier, tokenType goCred.TokenType, opts ...Option) func(http.Handler) http.Handler {
	o := guardOptions{onError: WriteError}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				o.onError(w, r, goCred.ErrEngineNotReady)
				return
			}

			res, err := v.Verify(r.Context(), r.Header.Get("Authorization"), tokenType)
			if err != nil {
				o.onError(w, r, Unauthorized(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(goCred.WithAuthResult(r.Context(), res)))
		})
	}
}
