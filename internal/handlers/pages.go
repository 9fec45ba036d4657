package handlers

import (
	"github.com/gofiber/fiber/v3"

	"horoscope/internal/config"
	"horoscope/internal/middleware"
	"horoscope/internal/models"
)

// PageHandler renders the public pages.
type PageHandler struct {
	cfg *config.Config
}

// NewPageHandler creates a new page handler.
func NewPageHandler(cfg *config.Config) *PageHandler {
	return &PageHandler{cfg: cfg}
}

// Index renders the fortune page. The fortune itself is drawn client-side
// from /fortune/random so the once-per-day gate lives with the visitor.
func (h *PageHandler) Index(c fiber.Ctx) error {
	return c.Render("index", MergeBranding(fiber.Map{
		"Title":    "Today's fortune",
		"Identity": middleware.CurrentIdentity(c),
		"Levels":   models.Levels(),
	}, h.cfg))
}

// Login renders the sign-in page.
func (h *PageHandler) Login(c fiber.Ctx) error {
	if middleware.CurrentIdentity(c) != nil {
		return c.Redirect().To("/admin")
	}
	return c.Render("login", MergeBranding(fiber.Map{
		"Title": "Sign in",
	}, h.cfg))
}
