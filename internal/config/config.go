package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Environment
	Env      string `envconfig:"ENV" default:"development"` // "development", "production", etc.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Server
	ServerAddr string `envconfig:"SERVER_ADDR" default:":3000"`
	BaseURL    string `envconfig:"BASE_URL" default:"http://localhost:3000"`

	// Storage
	DatabaseURL string `envconfig:"DATABASE_URL" default:"postgres://localhost:5432/horoscope?sslmode=disable"`
	RedisURL    string `envconfig:"REDIS_URL"` // Sessions and rate limits stay in memory when empty
	SeedFile    string `envconfig:"SEED_FILE"`

	// TLS/mTLS
	TLSEnabled  bool   `envconfig:"TLS_ENABLED"`
	TLSCertFile string `envconfig:"TLS_CERT_FILE"`
	TLSKeyFile  string `envconfig:"TLS_KEY_FILE"`
	TLSCAFile   string `envconfig:"TLS_CA_FILE"` // CA for verifying client certs (mTLS)

	// OIDC
	OIDCIssuer       string `envconfig:"OIDC_ISSUER"`
	OIDCClientID     string `envconfig:"OIDC_CLIENT_ID"`
	OIDCClientSecret string `envconfig:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURL  string `envconfig:"OIDC_REDIRECT_URL" default:"http://localhost:3000/auth/callback"`

	// Admin access. Empty means every authenticated user is an admin.
	AdminEmails []string `envconfig:"ADMIN_EMAILS"`

	// Session
	SessionSecret string `envconfig:"SESSION_SECRET" default:"change-me-in-production-min-32-chars"`

	// CORS
	CORSOrigins string `envconfig:"CORS_ORIGINS"` // Comma-separated allowed origins

	// Rate limiting, per client IP
	RateLimitMax    int           `envconfig:"RATE_LIMIT_MAX" default:"100"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// Site Branding
	SiteTitle   string `envconfig:"SITE_TITLE" default:"Daily Fortune"`
	SiteTagline string `envconfig:"SITE_TAGLINE" default:"One fortune a day, fresh at midnight"`
	SiteFooter  string `envconfig:"SITE_FOOTER" default:"Good luck"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot run safely.
func (c *Config) Validate() error {
	if !c.IsDev() && len(c.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 characters outside development")
	}
	if c.OIDCIssuer != "" && (c.OIDCClientID == "" || c.OIDCRedirectURL == "") {
		return errors.New("OIDC_CLIENT_ID and OIDC_REDIRECT_URL are required when OIDC_ISSUER is set")
	}
	if c.TLSEnabled && (c.TLSCertFile == "" || c.TLSKeyFile == "") {
		return errors.New("TLS_CERT_FILE and TLS_KEY_FILE are required when TLS_ENABLED is set")
	}
	if c.RateLimitMax <= 0 {
		return errors.New("RATE_LIMIT_MAX must be positive")
	}
	return nil
}

// IsDev returns true if the environment is set to development.
func (c *Config) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

// IsMTLSEnabled returns true if mTLS is configured with a CA file.
func (c *Config) IsMTLSEnabled() bool {
	return c.TLSEnabled && c.TLSCAFile != ""
}

// IsAuthEnabled returns true if an identity provider is configured.
func (c *Config) IsAuthEnabled() bool {
	return c.OIDCIssuer != ""
}

// IsAdminEmail reports whether the email may use the admin surface.
func (c *Config) IsAdminEmail(email string) bool {
	if len(c.AdminEmails) == 0 {
		return true
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	return slices.ContainsFunc(c.AdminEmails, func(a string) bool {
		return strings.ToLower(strings.TrimSpace(a)) == email
	})
}

// AllowedOrigins returns the CORS origins, falling back to the base URL.
func (c *Config) AllowedOrigins() []string {
	origins := c.BaseURL
	if c.CORSOrigins != "" {
		origins = c.CORSOrigins
	}
	var out []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
