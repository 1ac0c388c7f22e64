// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/mediarelay/internal/config"
)

// Router wires handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	adminToken    string
}

// NewRouter creates a Router from the server configuration.
func NewRouter(handler *Handler, cfg config.ServerConfig) *Router {
	return &Router{
		handler: handler,
		chiMiddleware: NewChiMiddleware(&ChiMiddlewareConfig{
			RateLimitRequests: cfg.RateLimit,
			RateLimitWindow:   cfg.RateLimitWindow,
			RateLimitDisabled: cfg.RateLimit <= 0,
		}),
		adminToken: cfg.AdminToken,
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(PrometheusMetrics())
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.With(router.chiMiddleware.RateLimitHealth()).Get("/healthz", router.handler.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())

		r.Get("/stats", router.handler.Stats)
		r.Get("/top", router.handler.Top)

		// Admin routes only exist when a token is configured.
		if router.adminToken == "" {
			return
		}
		r.Route("/admin", func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitAdmin())
			r.Use(RequireAdminToken(router.adminToken))

			r.Get("/keys", router.handler.ListKeys)
			r.Post("/keys", router.handler.CreateKey)
			r.Post("/keys/{code}/disable", router.handler.DisableKey)
			r.Get("/users/{id}", router.handler.GetUser)
			r.Post("/users/{id}/{action}", router.handler.UserAction)
			r.Delete("/media/{id}", router.handler.DeleteMedia)
		})
	})

	return r
}
