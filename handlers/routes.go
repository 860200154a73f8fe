package handlers

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/juho05/apcalt/config"
	"github.com/juho05/apcalt/metrics"
)

func (h *Handler) registerMiddlewares() {
	h.Router.Use(recoverPanic)
	h.Router.Use(middleware.RealIP)
	h.Router.Use(middleware.RequestID)
	h.Router.Use(middleware.Timeout(60 * time.Second))
	h.Router.Use(logRequest)
	h.Router.Use(corsHeaders(config.CORSOrigins()))
}

func (h *Handler) RegisterRoutes() {
	if h.Router == nil {
		h.Router = chi.NewRouter()
	}
	h.registerMiddlewares()

	h.Router.Get("/healthz", h.healthz)
	h.Router.Handle("/metrics", metrics.Handler())

	h.Router.With(h.loadAndSave, h.auth).Route("/api", h.apiRoutes)
}

func (h *Handler) apiRoutes(r chi.Router) {
	r.With(rateLimit(config.LoginRateLimit(), time.Minute)).Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Get("/me", h.me)

	r.Get("/subjects", h.subjects)
	r.Get("/outline/{subjectID}", h.outline)
}
