package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/session"

	"horoscope/internal/middleware"
)

// sessionResponse describes the current login state.
type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	Admin         bool   `json:"admin"`
}

// Session reports who is signed in. Requires OptionalAuth upstream.
func Session(c fiber.Ctx) error {
	id := middleware.CurrentIdentity(c)
	if id == nil {
		return jsonSuccess(c, sessionResponse{})
	}
	return jsonSuccess(c, sessionResponse{
		Authenticated: true,
		Email:         id.Email,
		Name:          id.Name,
		Admin:         id.Admin,
	})
}

// Logout destroys the session.
func Logout(c fiber.Ctx) error {
	if sess := session.FromContext(c); sess != nil {
		if err := sess.Destroy(); err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "failed to logout")
		}
	}
	return jsonSuccess(c, fiber.Map{"logged_out": true})
}
