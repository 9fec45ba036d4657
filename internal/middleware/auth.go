package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/session"

	"horoscope/internal/config"
)

// Session keys written by the OIDC callback.
const (
	SessionKeySub           = "user_sub"
	SessionKeyEmail         = "user_email"
	SessionKeyName          = "user_name"
	SessionKeyOAuthState    = "oauth_state"
	SessionKeyRedirectAfter = "redirect_after_login"
)

const identityLocal = "identity"

// Identity is the signed-in user as recorded in the session.
type Identity struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

// CurrentIdentity returns the identity loaded by the auth middleware, or nil.
func CurrentIdentity(c fiber.Ctx) *Identity {
	id, _ := c.Locals(identityLocal).(*Identity)
	return id
}

// AuthMiddleware gates the admin surface on the session identity.
type AuthMiddleware struct {
	cfg *config.Config
}

// NewAuthMiddleware creates a new auth middleware instance.
func NewAuthMiddleware(cfg *config.Config) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg}
}

// identityFromSession reads the identity stored by the login callback.
func (m *AuthMiddleware) identityFromSession(c fiber.Ctx) *Identity {
	sess := session.FromContext(c)
	if sess == nil {
		return nil
	}

	sub, _ := sess.Get(SessionKeySub).(string)
	if sub == "" {
		return nil
	}
	email, _ := sess.Get(SessionKeyEmail).(string)
	name, _ := sess.Get(SessionKeyName).(string)

	return &Identity{
		Sub:   sub,
		Email: email,
		Name:  name,
		Admin: m.cfg.IsAdminEmail(email),
	}
}

// OptionalAuth loads the identity if authenticated, but doesn't require authentication.
func (m *AuthMiddleware) OptionalAuth(c fiber.Ctx) error {
	if id := m.identityFromSession(c); id != nil {
		c.Locals(identityLocal, id)
	}
	return c.Next()
}

// RequireAdmin protects HTML routes: anonymous users are sent to /login and
// signed-in non-admins get a 403.
func (m *AuthMiddleware) RequireAdmin(c fiber.Ctx) error {
	id := m.identityFromSession(c)
	if id == nil {
		if sess := session.FromContext(c); sess != nil && c.Method() == fiber.MethodGet {
			sess.Set(SessionKeyRedirectAfter, c.OriginalURL())
		}
		return c.Redirect().To("/login")
	}
	if !id.Admin {
		return fiber.NewError(fiber.StatusForbidden, "admin access required")
	}

	c.Locals(identityLocal, id)
	return c.Next()
}

// RequireAdminAPI protects JSON routes with 401/403 responses instead of redirects.
func (m *AuthMiddleware) RequireAdminAPI(c fiber.Ctx) error {
	id := m.identityFromSession(c)
	if id == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"status": "error",
			"error":  "unauthorized",
		})
	}
	if !id.Admin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"status": "error",
			"error":  "admin access required",
		})
	}

	c.Locals(identityLocal, id)
	return c.Next()
}

// IsAPIRequest reports whether the request targets a JSON route.
func IsAPIRequest(c fiber.Ctx) bool {
	p := c.Path()
	return strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/fortune/")
}
