// Package router assembles the local API served to the UI shell.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jurisprep/authd/internal/api/http/handler"
	"github.com/jurisprep/authd/internal/api/http/middleware"
	"github.com/jurisprep/authd/internal/logger"
	"github.com/jurisprep/authd/internal/notify"
	"github.com/jurisprep/authd/internal/session"
)

// Router wires handlers and middleware for the local API.
type Router struct {
	manager        handler.SessionManager
	profileService handler.ProfileService
	redirector     *session.Redirector
	notifications  *notify.Queue
	loginLimiter   *middleware.RateLimiter
	requests       middleware.RequestRecorder
	metricsHandler http.Handler
	logger         *logger.Logger
}

// New creates a Router instance.
func New(
	manager handler.SessionManager,
	profileService handler.ProfileService,
	redirector *session.Redirector,
	notifications *notify.Queue,
	loginLimiter *middleware.RateLimiter,
	requests middleware.RequestRecorder,
	metricsHandler http.Handler,
	logger *logger.Logger,
) *Router {
	return &Router{
		manager:        manager,
		profileService: profileService,
		redirector:     redirector,
		notifications:  notifications,
		loginLimiter:   loginLimiter,
		requests:       requests,
		metricsHandler: metricsHandler,
		logger:         logger,
	}
}

// Register builds the chi mux with all routes.
func (rt *Router) Register() chi.Router {
	authHandler := handler.NewAuth(rt.manager, rt.redirector, rt.notifications, rt.logger)
	profileHandler := handler.NewProfile(rt.manager, rt.profileService, rt.logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logging(rt.logger))
	if rt.requests != nil {
		r.Use(middleware.Metrics(rt.requests))
	}

	r.Route("/api/auth", func(r chi.Router) {
		if rt.loginLimiter != nil {
			r.With(rt.loginLimiter.Handler).Post("/login", authHandler.Login)
			r.With(rt.loginLimiter.Handler).Post("/signup", authHandler.Signup)
			r.With(rt.loginLimiter.Handler).Post("/magic-link", authHandler.MagicLink)
		} else {
			r.Post("/login", authHandler.Login)
			r.Post("/signup", authHandler.Signup)
			r.Post("/magic-link", authHandler.MagicLink)
		}
		r.Post("/verify", authHandler.Verify)
		r.Get("/oauth/{provider}", authHandler.OAuth)
		r.Post("/logout", authHandler.Logout)
		r.Post("/password/reset", authHandler.ResetPassword)
		r.Post("/password/update", authHandler.UpdatePassword)
		r.Get("/session", authHandler.Session)
		r.Get("/redirect", authHandler.Redirect)
	})

	r.Get("/api/notifications", authHandler.Notifications)

	r.Route("/api/profile", func(r chi.Router) {
		r.Get("/", profileHandler.Get)
		r.Put("/", profileHandler.Update)
		r.Post("/onboarding", profileHandler.CompleteOnboarding)
		r.Post("/avatar", profileHandler.UploadAvatar)
		r.Get("/avatar", profileHandler.Avatar)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if rt.metricsHandler != nil {
		r.Handle("/metrics", rt.metricsHandler)
	}

	return r
}
