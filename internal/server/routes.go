package server

import (
	"context"

	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"horoscope/internal/db"
	"horoscope/internal/handlers"
	"horoscope/internal/handlers/api"
	"horoscope/internal/middleware"
)

// Deps are the collaborators the routes are wired to.
type Deps struct {
	Store  db.HoroscopeStore
	Picker api.Picker
	Pinger api.Pinger
}

// RegisterRoutes registers all application routes.
func (s *Server) RegisterRoutes(ctx context.Context, deps Deps) error {
	authMiddleware := middleware.NewAuthMiddleware(s.Cfg)

	fortuneHandler := api.NewFortuneHandler(deps.Picker, s.Log)
	horoscopeAPI := api.NewHoroscopeHandler(deps.Store, s.Log)
	healthHandler := api.NewHealthHandler(deps.Pinger)
	pageHandler := handlers.NewPageHandler(s.Cfg)
	adminHandler := handlers.NewAdminHandler(deps.Store, s.Cfg, s.Log)

	// Operational endpoints
	s.App.Get("/healthz", healthHandler.Check)
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Random fortune: public, no session required
	s.App.Get("/fortune/random", fortuneHandler.Random)
	s.App.Get("/api/horoscope/random", fortuneHandler.Random)

	// Session API
	s.App.Get("/api/session", authMiddleware.OptionalAuth, api.Session)
	s.App.Post("/api/logout", api.Logout)

	// Admin JSON API
	admin := s.App.Group("/api", authMiddleware.RequireAdminAPI)
	admin.Get("/horoscopes", horoscopeAPI.List)
	admin.Get("/horoscope/:id", horoscopeAPI.Get)
	admin.Post("/horoscope", horoscopeAPI.Create)
	admin.Put("/horoscope/:id", horoscopeAPI.Update)
	admin.Delete("/horoscope/:id", horoscopeAPI.Delete)

	// Identity provider and admin pages
	if s.Cfg.IsAuthEnabled() {
		authHandler, err := handlers.NewAuthHandler(ctx, s.Cfg, s.Log)
		if err != nil {
			return err
		}

		s.App.Get("/auth/login", authHandler.Login)
		s.App.Get("/auth/callback", authHandler.Callback)
		s.App.Get("/auth/logout", authHandler.Logout)

		s.App.Get("/admin", authMiddleware.RequireAdmin, adminHandler.Index)
		s.App.Post("/admin/horoscopes", authMiddleware.RequireAdmin, adminHandler.Create)
		s.App.Post("/admin/horoscopes/:id", authMiddleware.RequireAdmin, adminHandler.Update)
		s.App.Post("/admin/horoscopes/:id/delete", authMiddleware.RequireAdmin, adminHandler.Delete)
	} else {
		s.Log.Warn().Msg("OIDC_ISSUER not set: sign-in and the admin pages are disabled")
	}

	// Pages
	s.App.Get("/", authMiddleware.OptionalAuth, pageHandler.Index)
	s.App.Get("/login", authMiddleware.OptionalAuth, pageHandler.Login)

	return nil
}
