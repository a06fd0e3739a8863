// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router sets up all HTTP routes and middleware chains for the
// NovelPress API. Routes are grouped by who may call them: anyone, signed-in
// users, authors and admins.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"novelpress/internal/handlers"
	"novelpress/internal/middleware"
	"novelpress/internal/models"
)

// Deps are the handler groups and middleware dependencies the router wires.
type Deps struct {
	Sessions   middleware.SessionLoader
	Identities middleware.Identities

	Auth   *handlers.Auth
	Novels *handlers.Novels
	Codes  *handlers.Codes
	Admin  *handlers.Admin

	// Limiter throttles sign-in, registration and code endpoints per client.
	Limiter *middleware.RateLimiter

	SecureCookies bool
}

// New creates and returns the configured Chi router with all middleware
// and route groups wired up.
func New(d Deps) chi.Router {
	r := chi.NewRouter()
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Metrics)

	// Probes, no session or CSRF.
	r.Get("/health", healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.SecureHeaders(d.SecureCookies))
		r.Use(middleware.LoadSession(d.Sessions))
		r.Use(middleware.LoadIdentity(d.Identities))
		r.Use(middleware.NewCSRF(d.SecureCookies))

		r.Get("/settings", d.Admin.Settings)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/csrf", d.Auth.CSRFToken)
			r.Post("/logout", d.Auth.Logout)

			r.Group(func(r chi.Router) {
				r.Use(d.Limiter.Middleware)
				r.Post("/register", d.Auth.Register)
				r.Post("/login", d.Auth.Login)
			})

			// Signed in; 2FA may still be pending.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth)
				r.Get("/me", d.Auth.Me)
				r.Patch("/profile", d.Auth.UpdateProfile)
				r.Post("/2fa/setup", d.Auth.TwoFASetup)
				r.With(d.Limiter.Middleware).Post("/2fa/verify", d.Auth.TwoFAVerify)
			})
		})

		r.Route("/novels", func(r chi.Router) {
			r.Get("/", d.Novels.List)
			r.Get("/{id}", d.Novels.Get)
			r.Get("/{id}/download", d.Novels.Download)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth)
				r.Use(middleware.Require2FA)
				r.Use(middleware.RequireRole(models.RoleAuthor, models.RoleAdmin))
				r.Post("/", d.Novels.Create)
				r.Patch("/{id}", d.Novels.Update)
				r.Post("/{id}/attachments/{slot}", d.Novels.Upload)
			})
		})

		r.Route("/codes", func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Use(d.Limiter.Middleware)
			r.Post("/validate", d.Codes.Validate)
			r.Post("/redeem", d.Codes.Redeem)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Use(middleware.Require2FA)
			r.Use(middleware.RequireRole(models.RoleAdmin))

			r.Get("/stats", d.Admin.Stats)

			r.Route("/novels", func(r chi.Router) {
				r.Get("/", d.Admin.NovelsList)
				r.Post("/{id}/approve", d.Admin.NovelApprove)
				r.Post("/{id}/reject", d.Admin.NovelReject)
				r.Put("/{id}/featured", d.Admin.NovelFeature)
				r.Delete("/{id}", d.Admin.NovelDelete)
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/", d.Admin.UsersList)
				r.Put("/{id}/role", d.Admin.UserSetRole)
				r.Post("/{id}/reset-2fa", d.Admin.UserResetTwoFA)
			})

			r.Route("/codes", func(r chi.Router) {
				r.Get("/", d.Admin.CodesList)
				r.Post("/", d.Admin.CodeCreate)
				r.Delete("/{id}", d.Admin.CodeDelete)
			})

			r.Get("/settings", d.Admin.Settings)
			r.Put("/settings", d.Admin.SettingsUpdate)
		})
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"success":false,"error":"not found","data":null}` + "\n"))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	w.Write([]byte(`{"success":false,"error":"method not allowed","data":null}` + "\n"))
}
