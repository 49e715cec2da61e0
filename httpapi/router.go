// Package httpapi exposes goCred.Engine over HTTP with a chi router.
//
// Handlers decode JSON, validate the request shape and call one engine
// operation. Every credential rule lives in the engine.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	goCred "github.com/MrEthical07/goCred"
	authmw "github.com/MrEthical07/goCred/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Options configures optional routes.
type Options struct {
	// Metrics is mounted at GET /metrics when non-nil.
	Metrics http.Handler
	// SecureCookies marks the refreshToken cookie Secure. Enable it behind TLS.
	SecureCookies bool
}

// NewRouter builds the HTTP surface over engine.
func NewRouter(engine *goCred.Engine, logger *slog.Logger, opts Options) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{engine: engine, logger: logger, secureCookies: opts.SecureCookies}
	onError := authmw.WithErrorHandler(h.writeError)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(authmw.ClientIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.signUp)
		r.Post("/confirm-email", h.confirmEmail)
		r.Post("/confirm-email/resend", h.resendConfirmEmail)
		r.Post("/signin", h.signIn)
		r.Post("/signin/google", h.signInGoogle)
		r.Post("/refresh", h.refresh)
		r.Post("/forgot-password", h.forgotPassword)
		r.Post("/forgot-password/confirm", h.confirmReset)
		r.Post("/reset-password", h.resetPassword)
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(authmw.RequireAccess(engine, onError))

		r.Post("/logout", h.logout)
		r.Patch("/password", h.updatePassword)
		r.Delete("/freeze", h.freezeSelf)

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole(goCred.RoleAdmin))
			r.Delete("/{id}/freeze", h.freezeOther)
			r.Patch("/{id}/restore", h.restore)
		})
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.LogAttrs(r.Context(), slog.LevelInfo, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
